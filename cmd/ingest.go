package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"policy-rag/internal/helper"
	"policy-rag/internal/parser"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-dir>...",
	Short: "Extract, chunk, embed and index policy documents",
	Long: `Indexes PDF, DOCX, XLSX, PPTX, Markdown and text files. Directories are
scanned for supported files. Re-ingesting a file replaces its previous chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("reset", false, "empty the index before ingesting")
	ingestCmd.Flags().Bool("json", false, "print the result as JSON")
	ingestCmd.Flags().Bool("no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reset, _ := cmd.Flags().GetBool("reset")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	runID, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	log.Logger = log.With().Str("run_id", runID).Logger()

	svc, index, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if reset {
		if err := resetIndex(ctx, index); err != nil {
			return fmt.Errorf("resetting index: %w", err)
		}
		log.Info().Msg("Index emptied")
	}

	files, err := parser.CollectSources(args...)
	if err != nil {
		log.Warn().Err(err).Msg("Some paths cannot be read")
	}
	var bar *progressbar.ProgressBar
	if !noProgress && len(files) > 0 {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Ingesting"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	result, err := svc.IngestWithProgress(ctx, func(source string, _ int, _ error) {
		if bar != nil {
			bar.Describe(source)
			_ = bar.Add(1)
		}
	}, args...)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}
	if err := persist(ctx, cfg, index); err != nil {
		return err
	}

	if jsonOutput {
		helper.PrettyPrint(result)
		return nil
	}
	fmt.Printf("Documents processed: %d\n", result.DocumentsProcessed)
	fmt.Printf("Chunks written:      %d\n", result.ChunksWritten)
	for _, f := range result.Failures {
		if f.Page > 0 {
			fmt.Printf("  failed: %s page %d: %s\n", f.Source, f.Page, f.Reason)
		} else {
			fmt.Printf("  failed: %s: %s\n", f.Source, f.Reason)
		}
	}
	return nil
}
