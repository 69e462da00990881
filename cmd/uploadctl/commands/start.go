package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/engine"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

var (
	remoteName  string
	contentType string
	initiateURL string
	presignURL  string
	completeURL string
	abortURL    string
)

var startCmd = &cobra.Command{
	Use:   "start <local-path>",
	Short: "Start (or resume) a multipart upload for a local file",
	Long: `Start uploads a local file to the configured backend's multipart upload
protocol. If an active session already exists for this local path, start
attaches to it instead of creating a new one (§6).

start blocks until the upload completes, fails (on a non-recoverable error
or a part that used up its retries), is paused (by a constraint violation),
or the process receives an interrupt signal.

Examples:
  uploadctl start ./video.mp4 --remote-name videos/video.mp4 \
    --initiate-url https://api.example.com/uploads/initiate \
    --presign-url https://api.example.com/uploads/presign \
    --complete-url https://api.example.com/uploads/complete \
    --abort-url https://api.example.com/uploads/abort`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&remoteName, "remote-name", "", "Remote object key (default: local file name)")
	startCmd.Flags().StringVar(&contentType, "content-type", "application/octet-stream", "Content-Type of the uploaded object")
	startCmd.Flags().StringVar(&initiateURL, "initiate-url", "", "Backend initiate_upload endpoint (required)")
	startCmd.Flags().StringVar(&presignURL, "presign-url", "", "Backend presign_part endpoint (required)")
	startCmd.Flags().StringVar(&completeURL, "complete-url", "", "Backend complete_upload endpoint (required)")
	startCmd.Flags().StringVar(&abortURL, "abort-url", "", "Backend abort_upload endpoint (required)")
	_ = startCmd.MarkFlagRequired("initiate-url")
	_ = startCmd.MarkFlagRequired("presign-url")
	_ = startCmd.MarkFlagRequired("complete-url")
	_ = startCmd.MarkFlagRequired("abort-url")
}

func runStart(cmd *cobra.Command, args []string) error {
	localPath := args[0]
	if remoteName == "" {
		remoteName = filepath.Base(localPath)
	}

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

	endpoints := uploadmodel.Endpoints{
		InitiateURL:    initiateURL,
		PresignPartURL: presignURL,
		CompleteURL:    completeURL,
		AbortURL:       abortURL,
	}

	result := e.Start(ctx, localPath, remoteName, contentType, endpoints, nil)
	return printResult(cmd, result)
}

func printResult(cmd *cobra.Command, result engine.Result) error {
	cmd.Printf("session:  %s\n", result.SessionID)
	cmd.Printf("outcome:  %s\n", result.Outcome)
	switch result.Outcome {
	case engine.OutcomeSuccess:
		cmd.Printf("location: %s\n", result.Location)
		return nil
	case engine.OutcomePaused:
		cmd.Println("upload paused; resume later with:")
		cmd.Printf("  uploadctl resume %s\n", result.SessionID)
		return nil
	case engine.OutcomeCancelled:
		cmd.Println("upload cancelled")
		return nil
	default:
		if result.Err != nil {
			return fmt.Errorf("upload failed: %w", result.Err)
		}
		return fmt.Errorf("upload failed")
	}
}

