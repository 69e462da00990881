package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel an upload session and abort it on the backend",
	Long: `cancel stops any in-flight work, best-effort notifies the backend via
abort_upload, and marks the session Aborted. Aborted sessions are terminal
and cannot be resumed (§6).`,
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

		if err := e.Cancel(context.Background(), args[0]); err != nil {
			return err
		}
		cmd.Printf("session %s cancelled\n", args[0])
		return nil
	},
}
