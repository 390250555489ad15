package parser

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"policy-rag/internal/models"
)

// TableStrategy turns a candidate region into rows of cells. Strategies are
// pure: they only read the region and report ErrTableStructureInvalid when
// they cannot see a grid in it.
type TableStrategy struct {
	Name    string
	Weight  float64 // scales the fill ratio into a confidence
	Extract func(Region) ([][]string, error)
}

// DefaultStrategies is the fallback chain tried in order: ruling lines,
// column alignment, then whitespace layout.
func DefaultStrategies() []TableStrategy {
	return []TableStrategy{
		{Name: models.MethodLattice, Weight: 1.0, Extract: latticeRows},
		{Name: models.MethodStream, Weight: 0.85, Extract: streamRows},
		{Name: models.MethodLayout, Weight: 0.7, Extract: layoutRows},
	}
}

// TableValidator accepts rows that look like a real table.
type TableValidator struct {
	MinRows      int
	MinFillRatio float64
}

// Check returns the fill ratio of rows, or ErrTableStructureInvalid when rows
// are too few, ragged, single-column or too sparse.
func (v TableValidator) Check(rows [][]string) (float64, error) {
	if len(rows) < v.MinRows {
		return 0, fmt.Errorf("%w: %d rows, need %d", models.ErrTableStructureInvalid, len(rows), v.MinRows)
	}
	cols := len(rows[0])
	if cols < 2 {
		return 0, fmt.Errorf("%w: single column", models.ErrTableStructureInvalid)
	}
	filled := 0
	for i, row := range rows {
		if len(row) != cols {
			return 0, fmt.Errorf("%w: row %d has %d cells, want %d", models.ErrTableStructureInvalid, i, len(row), cols)
		}
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				filled++
			}
		}
	}
	fill := float64(filled) / float64(len(rows)*cols)
	if fill < v.MinFillRatio {
		return 0, fmt.Errorf("%w: fill ratio %.2f below %.2f", models.ErrTableStructureInvalid, fill, v.MinFillRatio)
	}
	return fill, nil
}

const ruleTolerance = 2.0

// latticeRows uses vertical ruling lines as column boundaries and horizontal
// ones, when there are enough, as row boundaries.
func latticeRows(r Region) ([][]string, error) {
	if len(r.Lines) == 0 {
		return nil, models.ErrTableStructureInvalid
	}
	top, bottom := r.Lines[0].Y, r.Lines[len(r.Lines)-1].Y
	slack := max(r.Unit*2, ruleTolerance)

	var xs, ys []float64
	for _, rule := range r.Rules {
		if rule.Y1 < top-slack || rule.Y0 > bottom+slack {
			continue
		}
		if rule.vertical() {
			xs = append(xs, (rule.X0+rule.X1)/2)
		} else {
			ys = append(ys, (rule.Y0+rule.Y1)/2)
		}
	}
	xs = clusterPositions(xs, ruleTolerance)
	if len(xs) < 3 {
		return nil, fmt.Errorf("%w: %d vertical rules", models.ErrTableStructureInvalid, len(xs))
	}
	ys = clusterPositions(ys, ruleTolerance)

	cols := len(xs) - 1
	rowOf := func(l Line, i int) int { return i }
	nrows := len(r.Lines)
	if len(ys) >= 3 {
		nrows = len(ys) - 1
		rowOf = func(l Line, _ int) int { return bandIndex(ys, l.Y) }
	}

	grid := make([][]string, nrows)
	for i := range grid {
		grid[i] = make([]string, cols)
	}
	for i, l := range r.Lines {
		row := rowOf(l, i)
		if row < 0 || row >= nrows {
			continue
		}
		for _, s := range l.Spans {
			col := bandIndex(xs, (s.X0+s.X1)/2)
			if col < 0 || col >= cols {
				continue
			}
			grid[row][col] = strings.TrimSpace(grid[row][col] + " " + s.Text)
		}
	}
	return trimRows(grid), nil
}

// streamRows clusters span start positions into columns. Only starts shared by
// at least two lines count as columns.
func streamRows(r Region) ([][]string, error) {
	tol := max(r.Unit*1.5, 1)

	var starts []float64
	for _, l := range r.Lines {
		for _, s := range l.Spans {
			starts = append(starts, s.X0)
		}
	}
	sort.Float64s(starts)

	var cols []float64
	for i := 0; i < len(starts); {
		j := i
		for j < len(starts) && starts[j]-starts[i] <= tol {
			j++
		}
		if j-i >= 2 {
			cols = append(cols, starts[i])
		}
		i = j
	}
	if len(cols) < 2 {
		return nil, fmt.Errorf("%w: %d aligned columns", models.ErrTableStructureInvalid, len(cols))
	}

	rows := make([][]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		row := make([]string, len(cols))
		for _, s := range l.Spans {
			col := 0
			for k, x := range cols {
				if x <= s.X0+tol {
					col = k
				}
			}
			row[col] = strings.TrimSpace(row[col] + " " + s.Text)
		}
		rows = append(rows, row)
	}
	return trimRows(rows), nil
}

var layoutSplitRe = regexp.MustCompile(`\t+|\s{2,}|\s*\|\s*`)

// layoutRows splits each raw line on tabs, pipes and runs of two or more spaces.
func layoutRows(r Region) ([][]string, error) {
	rows := make([][]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		raw := strings.TrimSpace(l.Raw)
		if raw == "" {
			raw = l.Text()
		}
		raw = strings.TrimSpace(strings.Trim(raw, "|"))
		if raw == "" {
			continue
		}
		rows = append(rows, layoutSplitRe.Split(raw, -1))
	}
	if len(rows) == 0 {
		return nil, models.ErrTableStructureInvalid
	}
	return trimRows(rows), nil
}

// clusterPositions sorts values and merges those within tol of each other.
func clusterPositions(vs []float64, tol float64) []float64 {
	if len(vs) == 0 {
		return nil
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	out := []float64{sorted[0]}
	for _, v := range sorted[1:] {
		if math.Abs(v-out[len(out)-1]) > tol {
			out = append(out, v)
		}
	}
	return out
}

// bandIndex returns i such that bounds[i] <= v < bounds[i+1], or -1.
func bandIndex(bounds []float64, v float64) int {
	for i := 0; i+1 < len(bounds); i++ {
		if v >= bounds[i] && v < bounds[i+1] {
			return i
		}
	}
	return -1
}
