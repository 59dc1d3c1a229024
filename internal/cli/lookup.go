package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pnslabs/pns-indexer/pkg/client"
)

func createLookupCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "lookup <name|hash>",
		Short: "Show a domain",
		Long: `Look up a domain by label or 0x-prefixed name hash.

EXAMPLES:
  # Look up by label
  pnsctl lookup alice

  # Look up by name hash
  pnsctl lookup 0x9c22ff5f21f0b81b113e63f7db6da94fedef11b2119b4088b89664fb9a3cb658

  # Output as JSON
  pnsctl lookup alice --json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createRecordsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "records <name|hash>",
		Short: "List a domain's records",
		Long: `List every record of a domain, tombstones included.

EXAMPLES:
  pnsctl records alice
  pnsctl records alice --json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecords(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createDomainsCmd() *cobra.Command {
	var owner string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "domains",
		Short: "List domains by owner",
		Long: `List domains owned by an address on either chain.

The owner defaults to the 'owner' entry in pns.toml.

EXAMPLES:
  pnsctl domains --owner 0x1111111111111111111111111111111111111111
  pnsctl domains --owner 5VH9qPp9cPhyvyGAyVPQKWcW4W5xK9wkqNzjbAKCqEp7
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				if config := loadProjectConfigSilent(); config != nil {
					owner = config.Owner
				}
			}
			if owner == "" {
				return fmt.Errorf("owner address required (--owner flag or 'owner' in pns.toml)")
			}
			return runDomains(owner, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner address (EVM 0x... or Solana base58)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runLookup(nameOrHash string, jsonOutput bool) error {
	c := client.New(getServer(), getAPIKey())

	d, err := c.GetDomain(context.Background(), nameOrHash)
	if err != nil {
		return fmt.Errorf("failed to look up domain: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	fmt.Printf("Name:       %s\n", displayName(d))
	fmt.Printf("Hash:       %s\n", d.NameHash)
	fmt.Printf("Owner:      %s\n", d.OwnerPrimary)
	if d.OwnerMirror != "" {
		fmt.Printf("Delegate:   %s\n", d.OwnerMirror)
	}
	fmt.Printf("Expires:    %s\n", formatExpiration(d.Expiration, d.Expired))
	if d.Resolver != "" {
		fmt.Printf("Resolver:   %s\n", d.Resolver)
	}
	fmt.Printf("Wrap state: %s\n", d.WrapState)
	if d.NFTMint != "" {
		fmt.Printf("NFT mint:   %s\n", d.NFTMint)
	}
	if d.LastSyncedAt != "" {
		fmt.Printf("Synced:     %s\n", d.LastSyncedAt)
	}

	return nil
}

func runRecords(nameOrHash string, jsonOutput bool) error {
	c := client.New(getServer(), getAPIKey())

	records, err := c.ListRecords(context.Background(), nameOrHash)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No records")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTYPE\tVALUE\tSOURCE\tVERSION\tMIRRORED")
	for _, r := range records {
		key := r.Key
		if key == "" {
			key = truncateHash(r.KeyHash)
		}
		value := string(r.Value)
		if r.Tombstone {
			value = "(deleted)"
		} else if len(value) > 48 {
			value = value[:45] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			key, r.RecordType, value, r.SourceChain, r.Version, r.MirroredVersion)
	}
	w.Flush()

	return nil
}

func runDomains(owner string, limit int, jsonOutput bool) error {
	c := client.New(getServer(), getAPIKey())

	domains, err := c.ListDomainsByOwner(context.Background(), owner, limit)
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(domains)
	}

	if len(domains) == 0 {
		fmt.Printf("No domains owned by %s\n", owner)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEXPIRES\tWRAP\tHASH")
	for _, d := range domains {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			displayName(&d), formatExpiration(d.Expiration, d.Expired), d.WrapState, truncateHash(d.NameHash))
	}
	w.Flush()

	return nil
}

func displayName(d *client.Domain) string {
	if d.Label != "" {
		return d.Label
	}
	return truncateHash(d.NameHash)
}

func formatExpiration(expiration int64, expired bool) string {
	if expiration == 0 {
		return "never"
	}
	ts := time.Unix(expiration, 0).UTC().Format("2006-01-02")
	if expired {
		return ts + " (expired)"
	}
	return ts
}

func truncateHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:10] + "..." + h[len(h)-4:]
}
