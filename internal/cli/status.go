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

func createStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show indexer health",
		Long: `Show per-chain scan progress and sync job counts.

The command exits non-zero when a scan loop is faulted.

EXAMPLES:
  pnsctl status
  pnsctl status --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runStatus(jsonOutput bool) error {
	c := client.New(getServer(), getAPIKey())

	status, err := c.GetStatus(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			return err
		}
	} else {
		if status.Healthy {
			fmt.Println("Indexer: healthy")
		} else {
			fmt.Println("Indexer: UNHEALTHY")
		}
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHAIN\tSTATE\tCHECKPOINT\tEVENTS\tLAST TICK\tLAST ERROR")
		for _, cs := range status.Chains {
			checkpoint := "(none)"
			if cs.HasCheckpoint {
				checkpoint = fmt.Sprintf("%d", cs.Checkpoint)
			}
			lastTick := cs.LastTick
			if lastTick == "" {
				lastTick = "never"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				cs.Chain, cs.State, checkpoint, cs.EventsApplied, lastTick, cs.LastError)
		}
		w.Flush()

		if len(status.Jobs) > 0 {
			fmt.Println()
			fmt.Println("Jobs:")
			for _, s := range []string{"pending", "in_flight", "done", "failed"} {
				if n, ok := status.Jobs[s]; ok {
					fmt.Printf("  %-10s %d\n", s, n)
				}
			}
		}
	}

	if !status.Healthy {
		return fmt.Errorf("indexer is unhealthy")
	}
	return nil
}
