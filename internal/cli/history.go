package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quizsnap/internal/domain"
)

// NewHistoryCmd lists recently completed quizzes.
func NewHistoryCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the last completed quizzes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), *configPath, cmd.OutOrStdout())
		},
	}
}

func runHistory(ctx context.Context, configPath string, out io.Writer) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	history, closeHistory, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	entries, err := history.List(ctx)
	if err != nil {
		return err
	}
	return printHistory(out, entries)
}

func printHistory(out io.Writer, entries []domain.MatchSummary) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No quizzes played yet.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tDATE\tTITLE\tSCORE\tLANG\tLEVEL")
	for i, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%s\t%s\n",
			i+1, e.Timestamp.Local().Format("2006-01-02 15:04"), e.Title, e.BestScore, len(e.Questions), e.Config.Language, e.Config.Difficulty)
	}
	return w.Flush()
}
