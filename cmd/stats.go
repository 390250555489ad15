package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"policy-rag/internal/helper"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the index holds",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")

	svc, _, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.Statistics(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		helper.PrettyPrint(stats)
		return nil
	}

	fmt.Printf("Documents: %d\n", stats.TotalDocuments)
	fmt.Printf("Chunks:    %d\n", stats.TotalChunks)
	fmt.Println("\nChunks per section:")
	for _, k := range sortedKeys(stats.PerSectionTypeCounts) {
		fmt.Printf("  %-12s %d\n", k, stats.PerSectionTypeCounts[k])
	}
	fmt.Println("\nFiles:")
	for _, k := range sortedKeys(stats.ProcessedFiles) {
		fmt.Printf("  %-40s %d\n", k, stats.ProcessedFiles[k])
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
