package cmd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inercia/tether/internal/approval"
	"github.com/inercia/tether/internal/input"
)

var (
	runAuto   bool
	runImages []string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [flags] <task>",
	Short: "Run a single task and exit",
	Long: `Submit one task to the engine and wait until it completes.

Questions and approvals are read from stdin. With --auto, approvals are
left to the engine's auto-approval settings and questions are answered
with their first suggestion when nobody replies in time.

The command exits with status 0 when the task completes or stops in a
resumable state, and 1 when it times out or is cancelled.

Examples:
  tether run "Add a README"
  tether run --auto "Fix the failing tests"
  tether run --image screenshot.png "Why does the layout break?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runAuto, "auto", false, "Run in auto mode (same as --mode auto)")
	runCmd.Flags().StringArrayVar(&runImages, "image", nil, "Attach an image file to the task. Can be specified multiple times.")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runAuto {
		cfg.Mode = string(approval.PolicyAuto)
	}
	task := strings.Join(args, " ")

	images, err := loadImages(runImages)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, input.NewLines(os.Stdin, os.Stdout))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.waitReady(ctx); err != nil {
		return err
	}

	info, err := s.client.SubmitTask(ctx, task, images...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("interrupted")
		}
		return err
	}
	if !quiet {
		fmt.Fprintf(os.Stdout, "\n%s\n", outcome(info))
	}
	return nil
}

// loadImages reads image files as data URLs.
func loadImages(paths []string) ([]string, error) {
	var images []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		mimeType := http.DetectContentType(data)
		if !strings.HasPrefix(mimeType, "image/") {
			return nil, fmt.Errorf("%s is not an image (%s)", path, mimeType)
		}
		images = append(images, fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)))
	}
	return images, nil
}
