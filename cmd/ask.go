package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed policies with the inference model",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().Bool("stream", true, "print the answer as it is generated")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")
	stream, _ := cmd.Flags().GetBool("stream")

	svc, _, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", question)

	streamed := false
	var onChunk func(string)
	if stream {
		onChunk = func(s string) {
			if !streamed {
				log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
				streamed = true
			}
			fmt.Print(s)
		}
	}
	response, err := svc.Ask(ctx, question, onChunk)
	if err != nil {
		return err
	}

	if streamed {
		fmt.Print("\n\n")
	} else {
		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", response.Content)
	}
	if response.Source != "" {
		log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", response.Source)
	}
	return nil
}
