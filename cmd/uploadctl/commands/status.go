package commands

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/uploadkit/engine/pkg/progress"
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show the progress of one session, or every active session",
	Long: `status prints the current Progress Projection (§4.8) as JSON: uploaded
parts and bytes, overall percentage, and the part currently in flight. With
no session-id, it prints every non-terminal session (observe_all, §6).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}

		ctx := context.Background()
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			snap, err := progress.Observe(ctx, s, args[0])
			if err != nil {
				return err
			}
			return enc.Encode(snap)
		}

		snaps, err := progress.ObserveAll(ctx, s)
		if err != nil {
			return err
		}
		return enc.Encode(snaps)
	},
}
