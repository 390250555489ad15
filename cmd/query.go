package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"policy-rag/internal/helper"
	"policy-rag/internal/models"
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Search indexed policies",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().Int("top-k", 0, "number of results (default from config)")
	queryCmd.Flags().String("section", "", "filter by section type: coverage, exclusions, definitions, conditions, premium, claims, schedule, general")
	queryCmd.Flags().String("source", "", "filter by source file name")
	queryCmd.Flags().String("kind", "", "filter by chunk kind: text or table")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")
	topK, _ := cmd.Flags().GetInt("top-k")
	section, _ := cmd.Flags().GetString("section")
	source, _ := cmd.Flags().GetString("source")
	kind, _ := cmd.Flags().GetString("kind")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	filter := &models.Filter{SourceFile: source, ChunkKind: models.BlockKind(kind)}
	if section != "" {
		st, err := models.ParseSectionType(section)
		if err != nil {
			return err
		}
		filter.SectionType = &st
	}

	svc, _, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	results, err := svc.Query(ctx, question, topK, filter)
	if err != nil {
		return err
	}

	if jsonOutput {
		if results == nil {
			results = []models.QueryResult{}
		}
		helper.PrettyPrint(results)
		return nil
	}
	if len(results) == 0 {
		fmt.Println("No relevant results found.")
		return nil
	}
	for _, r := range results {
		md := r.Metadata
		fmt.Printf("%d. %s [%s, %s] pages %d-%d\n", r.Rank, md.SourceFile, md.SectionType, md.ChunkKind, md.PageStart, md.PageEnd)
		fmt.Printf("   combined %.3f  similarity %.3f  relevance %.3f\n", r.CombinedScore, r.SimilarityScore, r.RelevanceScore)
		fmt.Printf("   %s\n\n", preview(r.Content, 300))
	}
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
