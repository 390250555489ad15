package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"policy-rag/internal/chromemdb"
	"policy-rag/internal/parser"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every chunk from the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		index, err := openIndex(ctx, cfg)
		if err != nil {
			return err
		}
		defer index.Close()
		if err := resetIndex(ctx, index); err != nil {
			return err
		}
		log.Info().Msg("Index emptied")
		return persist(ctx, cfg, index)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <source-file>...",
	Short: "Remove the chunks of the named source files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		index, err := openIndex(ctx, cfg)
		if err != nil {
			return err
		}
		defer index.Close()
		for _, a := range args {
			source := parser.SourceName(a)
			if err := index.DeleteBySource(ctx, source); err != nil {
				return err
			}
			log.Info().Str("source", source).Msg("Removed document")
		}
		return persist(ctx, cfg, index)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the chromem collection to an encrypted file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := chromemIndex(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.Export(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Exported to %s\n", m.ExportPath())
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the chromem collection from its encrypted export file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := chromemIndex(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.Import(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Imported from %s\n", m.ExportPath())
		return nil
	},
}

func chromemIndex(cmd *cobra.Command) (*chromemdb.VectorDBManager, error) {
	index, err := openIndex(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	m, ok := index.(*chromemdb.VectorDBManager)
	if !ok {
		index.Close()
		return nil, errors.New("export and import need the chromem backend")
	}
	return m, nil
}

func init() {
	rootCmd.AddCommand(resetCmd, removeCmd, exportCmd, importCmd)
}
