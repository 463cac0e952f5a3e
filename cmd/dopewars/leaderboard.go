package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dopewars-xyz/gameclient/internal/backendhttp"
	"github.com/dopewars-xyz/gameclient/pkg/game"
)

func newLeaderboardCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the settled-run leaderboard",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sortBy, err := cmd.Flags().GetString(flagSortBy)
			if err != nil {
				return err
			}
			limit, err := cmd.Flags().GetInt(flagLimit)
			if err != nil {
				return err
			}
			return runLeaderboard(cmd, cfg, sortBy, limit)
		},
	}

	cmd.Flags().String(flagSortBy, string(game.LeaderboardByTotalIce),
		fmt.Sprintf("Ranking column: %s or %s", game.LeaderboardByTotalIce, game.LeaderboardByBestNetWorth))
	cmd.Flags().Int(flagLimit, 25, "Maximum rows to fetch")

	return cmd
}

func runLeaderboard(cmd *cobra.Command, cfg *runtimeConfig, sortBy string, limit int) error {
	sort := game.LeaderboardSort(sortBy)
	if sort != game.LeaderboardByTotalIce && sort != game.LeaderboardByBestNetWorth {
		return fmt.Errorf("unknown sort column %q", sortBy)
	}

	logger := zap.NewNop()
	client, err := backendhttp.NewClient(cfg.APIBaseURL, backendhttp.WithLogger(logger))
	if err != nil {
		return err
	}

	rows, err := client.Leaderboard(cmd.Context(), sort, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No settled runs yet.")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "RANK\tPLAYER\tICE\tBEST NET WORTH")
	for rank, row := range rows {
		fmt.Fprintf(writer, "%d\t%s\t%d\t$%d\n", rank+1, row.Player, row.TotalIce, row.BestNetWorth)
	}
	return writer.Flush()
}
