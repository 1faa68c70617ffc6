// Package commands holds the cobra subcommands of the siteporter CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyonweb/siteporter/internal/api/v1/client"
	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/types"
)

// jobOutput represents the filtered output for a job
type jobOutput struct {
	ID        uint   `json:"id"`
	PortalID  uint   `json:"portal_id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func newClient() (client.Client, error) {
	opts := client.DefaultOptions()
	if base := os.Getenv("SITEPORTER_API_URL"); base != "" {
		opts.BaseURL = base
	}
	return client.New(opts)
}

func printJSON(v interface{}) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	fmt.Println(string(prettyJSON))
	return nil
}

// GetJobsCmd returns the jobs command group
func GetJobsCmd() *cobra.Command {
	return jobsCmd
}

func init() {
	jobsCmd.AddCommand(createJobCmd)
	jobsCmd.AddCommand(listJobsCmd)
	jobsCmd.AddCommand(getJobCmd)
	jobsCmd.AddCommand(cancelJobCmd)
	jobsCmd.AddCommand(removeJobCmd)
	jobsCmd.AddCommand(jobLogCmd)

	createJobCmd.Flags().UintP("portal", "p", 0, "Portal ID to export or import")
	createJobCmd.Flags().UintP("user", "u", 0, "Initiating user ID")
	createJobCmd.Flags().StringP("type", "t", "export", "Job type (export|import)")
	createJobCmd.Flags().Bool("incremental", false, "Only process entities modified since the last successful run")
	_ = createJobCmd.MarkFlagRequired("portal")
	_ = createJobCmd.MarkFlagRequired("user")

	listJobsCmd.Flags().UintP("portal", "p", 0, "Filter jobs by portal ID")
	listJobsCmd.Flags().IntP("limit", "l", 0, "Limit the number of jobs returned")
	listJobsCmd.Flags().IntP("offset", "o", 0, "Offset into the job listing")

	jobLogCmd.Flags().StringP("mode", "m", "summary", "Log granularity (summary|full)")
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage export/import jobs",
}

var createJobCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a new export or import job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		portal, _ := cmd.Flags().GetUint("portal")
		user, _ := cmd.Flags().GetUint("user")
		typeStr, _ := cmd.Flags().GetString("type")
		incremental, _ := cmd.Flags().GetBool("incremental")

		jobType, err := models.ParseJobType(typeStr)
		if err != nil {
			return err
		}

		config, err := json.Marshal(types.JobConfig{Incremental: incremental})
		if err != nil {
			return fmt.Errorf("error encoding job config: %w", err)
		}

		api, err := newClient()
		if err != nil {
			return err
		}
		job, err := api.CreateJob(context.Background(), &types.JobRequest{
			PortalID: portal,
			UserID:   user,
			Type:     jobType,
			Config:   config,
		})
		if err != nil {
			return fmt.Errorf("error creating job: %w", err)
		}
		return printJSON(job)
	},
}

var listJobsCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, most recent first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		portal, _ := cmd.Flags().GetUint("portal")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		api, err := newClient()
		if err != nil {
			return err
		}
		response, err := api.ListJobs(context.Background(), portal, models.ListOptions{Limit: limit, Offset: offset})
		if err != nil {
			return fmt.Errorf("error fetching jobs: %w", err)
		}

		output := make([]jobOutput, len(response.Jobs))
		for i, job := range response.Jobs {
			output[i] = jobOutput{
				ID:        job.ID,
				PortalID:  job.PortalID,
				Type:      job.Type.String(),
				Status:    job.Status.String(),
				CreatedAt: job.CreatedAt.Format("2006-01-02 15:04:05"),
			}
		}
		return printJSON(output)
	},
}

var getJobCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job's status and category progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		api, err := newClient()
		if err != nil {
			return err
		}
		status, err := api.GetJob(context.Background(), id)
		if err != nil {
			return fmt.Errorf("error fetching job: %w", err)
		}
		return printJSON(status)
	},
}

var cancelJobCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Request a cooperative stop of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		api, err := newClient()
		if err != nil {
			return err
		}
		if err := api.CancelJob(context.Background(), id); err != nil {
			return fmt.Errorf("error cancelling job: %w", err)
		}
		fmt.Printf("cancellation requested for job %d\n", id)
		return nil
	},
}

var removeJobCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Delete a finished job with its checkpoints and logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		api, err := newClient()
		if err != nil {
			return err
		}
		if err := api.RemoveJob(context.Background(), id); err != nil {
			return fmt.Errorf("error removing job: %w", err)
		}
		fmt.Printf("job %d removed\n", id)
		return nil
	},
}

var jobLogCmd = &cobra.Command{
	Use:   "log <job-id>",
	Short: "Show a job's log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		mode, _ := cmd.Flags().GetString("mode")

		api, err := newClient()
		if err != nil {
			return err
		}
		switch mode {
		case "summary":
			summary, err := api.GetJobSummaryLog(context.Background(), id)
			if err != nil {
				return fmt.Errorf("error fetching job log: %w", err)
			}
			return printJSON(summary)
		case "full":
			entries, err := api.GetJobFullLog(context.Background(), id)
			if err != nil {
				return fmt.Errorf("error fetching job log: %w", err)
			}
			return printJSON(entries)
		default:
			return fmt.Errorf("invalid log mode: %s", mode)
		}
	},
}

func parseID(raw string) (uint, error) {
	var id uint
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil || id == 0 {
		return 0, fmt.Errorf("invalid job id: %s", raw)
	}
	return id, nil
}
