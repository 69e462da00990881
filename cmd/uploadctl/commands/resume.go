package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uploadkit/engine/internal/logger"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a paused, failed, or constraint-violated upload session",
	Long: `resume transitions the session back to Pending (resetting its Failed parts
first when the session itself is Failed; a constraint-violated session has its
violation cleared and goes to InProgress instead), then drives it to
completion. resume blocks the same way start does.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		e := newEngine(cfg, s)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			logger.Info("interrupt received, pausing upload")
			cancel()
		}()

		if err := e.Resume(ctx, sessionID); err != nil {
			return err
		}

		result := e.Execute(ctx, sessionID)
		return printResult(cmd, result)
	},
}
