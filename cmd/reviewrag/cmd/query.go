package cmd

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/gardenhotel/reviewrag/internal/rag"
)

func newQueryCmd() *cobra.Command {
	var (
		asJSON  bool
		noHyde  bool
		noRank  bool
		topK    int
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a single question from the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.cleanup()

			opts := rag.DefaultOptions()
			if noHyde {
				opts.EnableHyde = false
			}
			if noRank {
				opts.EnableRanking = false
			}
			if topK > 0 {
				opts.RankingTopK = topK
			}

			result, err := a.pipeline.Query(ctx, args[0], opts, nil)
			if err != nil {
				return err
			}

			if asJSON {
				out, err := sonic.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Response)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result envelope as JSON")
	cmd.Flags().BoolVar(&noHyde, "no-hyde", false, "Disable hypothetical document retrieval")
	cmd.Flags().BoolVar(&noRank, "no-rank", false, "Disable multi-factor ranking")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of references to keep after ranking")
	return cmd
}
