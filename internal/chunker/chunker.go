// Package chunker turns a document's content blocks into classified,
// overlapping chunks. Text is windowed by words inside sections delimited by
// header lines; tables become standalone chunks and are never split.
package chunker

import (
	"sort"
	"strings"

	"policy-rag/internal/models"
)

type Chunker struct {
	size       int
	overlap    int
	classifier *Classifier
	headers    *HeaderDetector
}

// New returns a Chunker emitting text chunks of at most size words that share
// overlap words with their predecessor. Out-of-range overlaps are clamped the
// same way the config layer clamps them.
func New(size, overlap int, vocab models.Vocabulary) *Chunker {
	if size <= 0 {
		size = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		classifier: NewClassifier(vocab),
		headers:    NewHeaderDetector(vocab),
	}
}

// Classifier exposes the section classifier used for chunks.
func (c *Chunker) Classifier() *Classifier {
	return c.classifier
}

type word struct {
	text  string
	page  int
	block int
}

type section struct {
	heading string
	start   int // offset of the first word in the document word stream
	words   []word
}

// pending is a chunk plus the block position used to restore document order.
type pending struct {
	block int
	chunk models.Chunk
}

// Chunk splits blocks of one document into chunks. The returned chunks are in
// document order and carry ids "<source>_<index>".
func (c *Chunker) Chunk(source string, blocks []models.ContentBlock) []models.Chunk {
	var (
		out    []pending
		cur    section
		offset int
	)

	flush := func() {
		out = append(out, c.windowSection(cur)...)
		cur = section{start: offset}
	}

	for bi, b := range blocks {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		if b.Kind == models.KindTable {
			out = append(out, pending{block: bi, chunk: c.tableChunk(b, offset)})
			continue
		}
		for _, line := range strings.Split(b.Text, "\n") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if b.Heading || c.headers.IsHeader(line) {
				flush()
				cur.heading = strings.Join(fields, " ")
			}
			for _, f := range fields {
				cur.words = append(cur.words, word{text: f, page: b.Page, block: bi})
				offset++
			}
		}
	}
	flush()

	sort.SliceStable(out, func(i, j int) bool { return out[i].block < out[j].block })

	chunks := make([]models.Chunk, len(out))
	for i, p := range out {
		ch := p.chunk
		ch.Source = source
		ch.Index = i
		ch.ID = models.ChunkID(source, i)
		chunks[i] = ch
	}
	return chunks
}

// windowSection slides a window of c.size words over the section, advancing
// by c.size-c.overlap. Overlap is never carried across sections.
func (c *Chunker) windowSection(s section) []pending {
	n := len(s.words)
	if n == 0 {
		return nil
	}
	step := c.size - c.overlap

	var out []pending
	for start := 0; ; start += step {
		end := min(start+c.size, n)
		ws := s.words[start:end]
		content := joinWords(ws)

		classifyText := content
		if start > 0 && s.heading != "" {
			classifyText = s.heading + "\n" + content
		}

		ch := models.Chunk{
			StartWord:   s.start + start,
			EndWord:     s.start + end,
			PageStart:   ws[0].page,
			PageEnd:     ws[len(ws)-1].page,
			SectionType: c.classifier.Classify(classifyText),
			Kind:        models.KindText,
			Content:     content,
			Method:      models.MethodText,
		}
		if start > 0 {
			ch.Overlap = joinWords(s.words[start:min(start+c.overlap, end)])
		}
		out = append(out, pending{block: ws[0].block, chunk: ch})

		if end == n {
			break
		}
	}
	return out
}

func (c *Chunker) tableChunk(b models.ContentBlock, offset int) models.Chunk {
	return models.Chunk{
		StartWord:   offset,
		EndWord:     offset,
		PageStart:   b.Page,
		PageEnd:     b.Page,
		SectionType: c.classifier.Classify(b.Text),
		Kind:        models.KindTable,
		Content:     strings.TrimSpace(b.Text),
		Method:      b.Method,
		Confidence:  b.Confidence,
	}
}

func joinWords(ws []word) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.text
	}
	return strings.Join(parts, " ")
}
