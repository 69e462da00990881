package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <session-id>",
	Short: "Pause an in-progress upload session",
	Long: `pause cancels any in-flight part uploads for the session, resets parts
left Uploading back to Pending, and marks the session Paused so it can be
resumed later (§6).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		e := newEngine(cfg, s)

		if err := e.Pause(context.Background(), args[0]); err != nil {
			return err
		}
		cmd.Printf("session %s paused\n", args[0])
		return nil
	},
}
