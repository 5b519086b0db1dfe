package cli

import (
	"errors"
	"os"
	"os/signal"
	"strings"

	"github.com/compozy/vachanamrut/engine/infra/server"
	"github.com/compozy/vachanamrut/engine/pipeline"
	"github.com/compozy/vachanamrut/pkg/config"
	"github.com/spf13/cobra"
)

var errAnswerFailed = errors.New("the question could not be answered")

// AskCmd runs one pipeline pass in-process and prints its events.
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and stream the answer to the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	cmd.Flags().String("chapter", "", "Restrict search to a chapter")
	cmd.Flags().String("section", "", "Restrict search to a section")
	cmd.Flags().Int("number", 0, "Restrict search to a discourse number")
	cmd.Flags().Bool("json", false, "Print one JSON event per line")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	query, err := askQuery(cmd, args)
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	deps, err := server.NewDependencies(ctx, config.FromContext(ctx), nil)
	if err != nil {
		return err
	}
	defer deps.Close(ctx)
	out := newEventPrinter(cmd.OutOrStdout(), asJSON)
	for ev := range deps.State.Asker.Run(ctx, query) {
		if err := out.Print(ev); err != nil {
			return err
		}
	}
	if err := out.Finish(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if out.Failed() {
		return errAnswerFailed
	}
	return nil
}

func askQuery(cmd *cobra.Command, args []string) (pipeline.Query, error) {
	chapter, err := cmd.Flags().GetString("chapter")
	if err != nil {
		return pipeline.Query{}, err
	}
	section, err := cmd.Flags().GetString("section")
	if err != nil {
		return pipeline.Query{}, err
	}
	number, err := cmd.Flags().GetInt("number")
	if err != nil {
		return pipeline.Query{}, err
	}
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return pipeline.Query{}, errors.New("question must not be empty")
	}
	return pipeline.Query{
		Question: question,
		Filter:   pipeline.ManualFilter(chapter, section, number),
	}, nil
}
