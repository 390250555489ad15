package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"policy-rag/internal/helper"
	"policy-rag/internal/rag"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <cases.yaml>",
	Short: "Score retrieval against labelled questions",
	Long: `Runs every case of a YAML file through query and reports precision, recall
and F1. A result counts as relevant when its section is one of
expected_sections or its text contains one of expected_keywords.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().Int("top-k", 5, "results per question")
	evaluateCmd.Flags().Bool("json", false, "output the full report as JSON")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	topK, _ := cmd.Flags().GetInt("top-k")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cases, err := rag.LoadEvalCases(args[0])
	if err != nil {
		return err
	}
	svc, _, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Evaluate(ctx, cases, topK)
	if err != nil {
		return err
	}
	if jsonOutput {
		helper.PrettyPrint(report)
		return nil
	}

	for _, r := range report.Results {
		fmt.Printf("%-60s P %.3f  R %.3f  F1 %.3f\n", preview(r.Query, 60), r.Precision, r.Recall, r.F1)
	}
	fmt.Printf("\nQueries: %d\n", report.TotalQueries)
	fmt.Printf("%-10s %6s %6s %6s\n", "", "min", "max", "avg")
	fmt.Printf("%-10s %6.3f %6.3f %6.3f\n", "precision", report.Precision.Min, report.Precision.Max, report.Precision.Avg)
	fmt.Printf("%-10s %6.3f %6.3f %6.3f\n", "recall", report.Recall.Min, report.Recall.Max, report.Recall.Avg)
	fmt.Printf("%-10s %6.3f %6.3f %6.3f\n", "f1", report.F1.Min, report.F1.Max, report.F1.Avg)
	return nil
}
