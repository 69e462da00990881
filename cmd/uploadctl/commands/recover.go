package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/uploadkit/engine/pkg/recovery"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Scan for sessions left behind by a crash and resume them",
	Long: `recover implements the startup Recovery procedure (§4.7): it resets any
part left Uploading back to Pending, fails sessions whose source file has
disappeared, and resumes every other recoverable session. Run this once at
process startup before accepting new uploads.`,
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

		ctx := context.Background()
		recovered, stats, err := recovery.Recover(ctx, s, e)
		if err != nil {
			return err
		}

		cmd.Printf("sessions scanned:  %d\n", stats.SessionsScanned)
		cmd.Printf("parts reset:       %d\n", stats.PartsReset)
		cmd.Printf("sessions failed:   %d\n", stats.SessionsFailed)
		cmd.Printf("sessions resumed:  %d\n", len(recovered))

		// recovery.Recover only transitions recovered sessions back to
		// Pending, or to InProgress for a constraint-violated one (it never
		// executes them, so an external scheduler can
		// decide when to run them); standalone here, drive each to
		// completion directly.
		for _, id := range recovered {
			result := e.Execute(ctx, id)
			cmd.Printf("  - %s: %s\n", id, result.Outcome)
		}
		return nil
	},
}
