package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/lmejias/vidsift/pkg/models"
)

var jobsStatusFilter string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List job history",
	RunE:  runJobs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsShowCmd)

	jobsCmd.Flags().StringVar(&jobsStatusFilter, "status", "", "filter by status (queued, running, succeeded, failed, skipped)")
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	jobStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer jobStore.Close()

	var jobs []*models.VideoJob
	if jobsStatusFilter != "" {
		jobs, err = jobStore.GetJobs(models.JobStatus(jobsStatusFilter))
	} else {
		jobs, err = jobStore.GetAllJobs()
	}
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		out, err := json.MarshalIndent(jobs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job ID", "Video", "Status", "Progress", "Segments", "Created", "Error")
	for _, job := range jobs {
		errText := job.Error
		if len(errText) > 40 {
			errText = errText[:37] + "..."
		}
		table.Append(
			job.ID,
			job.Name,
			string(job.Status),
			fmt.Sprintf("%d%%", job.Progress),
			fmt.Sprintf("%d", job.Segments),
			job.CreatedAt.Format(time.RFC3339),
			errText,
		)
	}
	table.Render()
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	jobStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer jobStore.Close()

	job, err := jobStore.GetJob(args[0])
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		out, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Job ID", job.ID)
	table.Append("Video", job.Name)
	table.Append("Source", job.SourcePath)
	table.Append("Dataset", job.DatasetID)
	table.Append("Status", string(job.Status))
	table.Append("Progress", fmt.Sprintf("%d%%", job.Progress))
	table.Append("Segments", fmt.Sprintf("%d", job.Segments))
	table.Append("Step", job.Step)
	table.Append("Created", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		table.Append("Started", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		table.Append("Completed", job.CompletedAt.Format(time.RFC3339))
	}
	if job.Error != "" {
		table.Append("Error", job.Error)
	}
	table.Render()
	return nil
}
