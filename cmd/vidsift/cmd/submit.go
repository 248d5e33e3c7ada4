package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lmejias/vidsift/pkg/models"
	"github.com/lmejias/vidsift/pkg/queue"
)

var (
	submitDatasetID string
	submitRubric    string
	submitWait      bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <video>",
	Short: "Enqueue one video for a worker to process",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitDatasetID, "dataset", "", "existing dataset id (default: create one per video)")
	submitCmd.Flags().StringVar(&submitRubric, "rubric", "", "custom analysis dimensions")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "poll until the job reaches a terminal state")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	videoPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("video not readable: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, "submit")
	if err != nil {
		return err
	}
	defer logger.Close()

	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	req := models.JobRequest{
		ID:           uuid.NewString(),
		SourcePath:   videoPath,
		OriginalName: filepath.Base(videoPath),
		DatasetID:    submitDatasetID,
		Rubric:       submitRubric,
	}

	ctx := cmd.Context()
	if err := q.Submit(ctx, req); err != nil {
		return err
	}
	fmt.Printf("Submitted job %s for %s\n", req.ID, req.OriginalName)

	if !submitWait {
		return nil
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := q.GetStatus(ctx, req.ID)
		if err != nil {
			return err
		}

		if IsJSONOutput() {
			out, _ := json.Marshal(status)
			fmt.Println(string(out))
		} else {
			fmt.Printf("%s  %d%%  %s\n", status.State, status.Progress, status.Step)
		}

		if status.State.IsTerminal() {
			if status.State != models.JobStatusSucceeded {
				return fmt.Errorf("job ended %s: %s", status.State, status.Error)
			}
			return nil
		}
	}
}
