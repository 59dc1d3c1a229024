package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pnslabs/pns-indexer/pkg/client"
)

func createJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and retry sync jobs",
	}

	cmd.AddCommand(createJobsListCmd())
	cmd.AddCommand(createJobsRetryCmd())

	return cmd
}

func createJobsListCmd() *cobra.Command {
	var status string
	var target string
	var jobType string
	var nameHash string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sync jobs",
		Long: `List cross-chain sync jobs. Requires an operator API key.

EXAMPLES:
  # All recent jobs
  pnsctl jobs list

  # Failed jobs bound for solana
  pnsctl jobs list --status failed --target solana

  # Jobs for one domain
  pnsctl jobs list --name-hash 0x9c22...b658
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(client.JobListOptions{
				Status:      status,
				TargetChain: target,
				JobType:     jobType,
				NameHash:    nameHash,
				Limit:       limit,
			}, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, in_flight, done, failed)")
	cmd.Flags().StringVar(&target, "target", "", "filter by target chain")
	cmd.Flags().StringVar(&jobType, "type", "", "filter by job type")
	cmd.Flags().StringVar(&nameHash, "name-hash", "", "filter by domain name hash")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createJobsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Retry a failed job",
		Long: `Move a failed sync job back to pending. Requires an operator API key.

Use 'pnsctl jobs list --status failed' to find job IDs.

EXAMPLES:
  pnsctl jobs retry 4f7c2a1e-...
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsRetry(args[0])
		},
	}
}

func runJobsList(opts client.JobListOptions, jsonOutput bool) error {
	c := client.New(getServer(), getAPIKey())

	jobs, err := c.ListJobs(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tTARGET\tDOMAIN\tSTATUS\tRETRIES\tLAST ERROR")
	for _, j := range jobs {
		id := j.ID
		if len(id) > 8 {
			id = id[:8] + "..."
		}
		lastErr := j.LastError
		if len(lastErr) > 40 {
			lastErr = lastErr[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			id, j.JobType, j.TargetChain, truncateHash(j.NameHash), j.Status, j.RetryCount, lastErr)
	}
	w.Flush()

	return nil
}

func runJobsRetry(id string) error {
	c := client.New(getServer(), getAPIKey())

	job, err := c.RetryJob(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}

	fmt.Printf("✅ Job %s requeued (%s -> %s, attempt %d)\n", job.ID, job.JobType, job.TargetChain, job.RetryCount)
	return nil
}
