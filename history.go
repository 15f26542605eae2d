package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mc-review/submission-engine/pkg/database"
)

func historyCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the submitted revision history of a contract or rate",
	}
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")

	contract := &cobra.Command{
		Use:   "contract <contract-id>",
		Short: "Print a contract's revision history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args[0], output, func(ctx context.Context, a *app, id uuid.UUID) (any, error) {
				return a.history.FindContractRevisions(ctx, id)
			})
		},
	}

	rate := &cobra.Command{
		Use:   "rate <rate-id>",
		Short: "Print a rate's revision history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args[0], output, func(ctx context.Context, a *app, id uuid.UUID) (any, error) {
				return a.history.FindRate(ctx, id)
			})
		},
	}

	cmd.AddCommand(contract, rate)
	return cmd
}

type historyFinder func(ctx context.Context, a *app, id uuid.UUID) (any, error)

func runHistory(cmd *cobra.Command, rawID, output string, find historyFinder) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", rawID, err)
	}
	if output != "json" && output != "yaml" {
		return fmt.Errorf("unsupported output format %q", output)
	}

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	scoped, release, err := database.NewScopeProvider(a.db).WithScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire database connection: %w", err)
	}
	defer release()

	result, err := find(scoped, a, id)
	if err != nil {
		return err
	}
	return writeHistory(cmd.OutOrStdout(), output, result)
}

func writeHistory(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}
