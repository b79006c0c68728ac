package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"oauthsample-go/internal/registry"
	"oauthsample-go/internal/worker"
)

const pruneWorkers = 4

func newClientsCmd(opts *rootOptions) *cobra.Command {
	clientsCmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage registered OAuth clients",
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered OAuth clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := opts.adminClient()
			if err != nil {
				return err
			}
			clients, err := client.ListClients(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), clients)
			}
			return writeTable(cmd.OutOrStdout(), clients)
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one registered OAuth client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := opts.adminClient()
			if err != nil {
				return err
			}
			c, err := client.GetClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), c)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete registered OAuth clients",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, log, err := opts.adminClient()
			if err != nil {
				return err
			}
			targets := make([]registry.OAuthClient, 0, len(args))
			for _, id := range args {
				targets = append(targets, registry.OAuthClient{ID: id})
			}
			return deleteClients(cmd.Context(), cmd.OutOrStdout(), client, log, targets)
		},
	}

	var prefix string
	var dryRun bool
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete every client whose name starts with a prefix",
		Long:  `Removes leftover clients, for example those registered by repeated sample runs.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(prefix) == "" {
				return errors.New("--name-prefix is required")
			}
			client, log, err := opts.adminClient()
			if err != nil {
				return err
			}
			clients, err := client.ListClients(cmd.Context())
			if err != nil {
				return err
			}
			matched := registry.FilterByNamePrefix(clients, prefix)
			out := cmd.OutOrStdout()
			if len(matched) == 0 {
				fmt.Fprintf(out, "no clients match prefix %q\n", prefix)
				return nil
			}
			if dryRun {
				fmt.Fprintf(out, "would delete %d client(s):\n", len(matched))
				return writeTable(out, matched)
			}
			return deleteClients(cmd.Context(), out, client, log, matched)
		},
	}
	pruneCmd.Flags().StringVar(&prefix, "name-prefix", "", "delete clients whose name starts with this prefix")
	pruneCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the matching clients without deleting them")

	clientsCmd.AddCommand(listCmd, getCmd, deleteCmd, pruneCmd)
	return clientsCmd
}

// deleteTask removes one client; it is run by the worker pool.
type deleteTask struct {
	client *registry.AdminClient
	target registry.OAuthClient
}

func (t deleteTask) Name() string {
	if t.target.Name != "" {
		return fmt.Sprintf("%s (%s)", t.target.ID, t.target.Name)
	}
	return t.target.ID
}

func (t deleteTask) Process(ctx context.Context) error {
	return t.client.DeleteClient(ctx, t.target.ID)
}

// deleteClients deletes targets concurrently, one attempt each, and reports
// every failure with the upstream body.
func deleteClients(ctx context.Context, out io.Writer, client *registry.AdminClient, log *zap.Logger, targets []registry.OAuthClient) error {
	pool := worker.NewWorkerPool(ctx, pruneWorkers, 1)
	pool.Start()
	for _, target := range targets {
		if err := pool.Submit(deleteTask{client: client, target: target}); err != nil {
			pool.Stop()
			return fmt.Errorf("queueing delete of %s: %w", target.ID, err)
		}
	}
	pool.Wait()

	failures := pool.Failures()
	stats := pool.Stats()
	fmt.Fprintf(out, "deleted %d of %d client(s)\n", stats.Succeeded, len(targets))

	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		log.Debug("delete failed", zap.String("client", f.Task.Name()), zap.Error(f.Err))
		fmt.Fprintf(out, "failed: %s: %v\n", f.Task.Name(), f.Err)
		errs = append(errs, f.Err)
	}
	return fmt.Errorf("%d delete(s) failed: %w", len(failures), errors.Join(errs...))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, clients []registry.OAuthClient) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCLIENT ID\tCREATED")
	for _, c := range clients {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.ClientID, c.CreatedAt)
	}
	return tw.Flush()
}
