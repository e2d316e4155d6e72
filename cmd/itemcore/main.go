// Command itemcore loads schema documents and exposes the value engine from
// the command line: lint schemas, inspect resolved values and manage stored
// slot snapshots.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"itemcore/internal/blob"
	"itemcore/internal/config"
	"itemcore/internal/engine"
	"itemcore/pkg/schema"
	"itemcore/pkg/schema/loader"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "itemcore",
		Short:   "Schema-driven value engine",
		Version: version,
		Long: `Itemcore compiles declarative schema documents into a value engine with
layered resolution (enforced, default, hidden), rule-based validation and
per-slot state.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")

	cmd.AddCommand(checkCmd(&configPath))
	cmd.AddCommand(valueCmd(&configPath))
	cmd.AddCommand(slotsCmd(&configPath))
	cmd.AddCommand(watchCmd(&configPath))
	return cmd
}

func loadRuntime(configPath string, schemaArg string) (*config.Config, *engine.Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	path := cfg.Schema.Path
	if schemaArg != "" {
		path = schemaArg
	}
	root, err := loader.Load(path)
	if err != nil {
		return nil, nil, err
	}
	rt, err := engine.NewRuntime(root, engine.WithLogger(cfg.Logger()))
	if err != nil {
		return nil, nil, err
	}
	return cfg, rt, nil
}

func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check [schema-path]",
		Short: "Validate schema documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			_, rt, err := loadRuntime(*configPath, arg)
			if err != nil {
				var invalid *loader.InvalidDocumentError
				if errors.As(err, &invalid) {
					for _, p := range invalid.Problems {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", p.Path, p.Message)
					}
					return fmt.Errorf("%d problem(s) found", len(invalid.Problems))
				}
				return err
			}
			defs := 0
			for _, mod := range rt.Modules() {
				defs += countDefinitions(mod)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d module(s), %d item definition(s)\n", len(rt.Modules()), defs)
			return nil
		},
	}
}

func countDefinitions(mod *engine.Module) int {
	n := len(mod.Children())
	for _, child := range mod.Modules() {
		n += countDefinitions(child)
	}
	return n
}

func valueCmd(configPath *string) *cobra.Command {
	var slotID, slotVersion string

	cmd := &cobra.Command{
		Use:   "value <definition-path>",
		Short: "Print the resolved value tree for a definition and slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rt, err := loadRuntime(*configPath, "")
			if err != nil {
				return err
			}
			def, ok := rt.ItemDefinition(args[0])
			if !ok {
				return &schema.ErrNotFound{Kind: "item definition", Name: args[0]}
			}
			slot := schema.NewSlotKey(slotID, slotVersion)
			value := def.Value(slot, engine.ValueOptions{})
			out, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&slotID, "slot", "", "slot id (empty for a new slot)")
	cmd.Flags().StringVar(&slotVersion, "slot-version", "", "slot version")
	return cmd
}

func slotsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "slots <definition-path>",
		Short: "List stored slot snapshots for a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rt, err := loadRuntime(*configPath, "")
			if err != nil {
				return err
			}
			store, err := engine.OpenSnapshotStore()
			if err != nil {
				return err
			}
			svc := engine.NewService(rt, store, nil)
			defer func() { _ = svc.Close() }()

			slots, err := svc.Slots(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, slot := range slots {
				fmt.Fprintln(cmd.OutOrStdout(), slot.String())
			}
			if len(slots) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no stored slots")
			}
			return nil
		},
	}
}

func watchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch schema documents and report reloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, rt, err := loadRuntime(*configPath, "")
			if err != nil {
				return err
			}
			logger := cfg.Logger()

			store, err := engine.OpenSnapshotStore()
			if err != nil {
				return err
			}
			blobs, err := blob.Open(cmd.Context())
			if err != nil {
				return err
			}
			svc := engine.NewService(rt, store, blobs)
			defer func() { _ = svc.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			watcher, err := loader.NewWatcher(cfg.Schema.Path, cfg.Schema.DebounceDelay, logger)
			if err != nil {
				return err
			}
			if err := watcher.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = watcher.Stop() }()

			logger.Info("watching schema", "path", cfg.Schema.Path)
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-watcher.Events():
					if !ok {
						return nil
					}
					if ev.Err != nil {
						logger.Warn("schema invalid, keeping current runtime", "error", ev.Err)
						continue
					}
					next, err := engine.NewRuntime(ev.Root, engine.WithLogger(logger))
					if err != nil {
						logger.Warn("schema rejected by engine", "error", err)
						continue
					}
					rt = next
					svc = engine.NewService(rt, store, blobs)
					logger.Info("runtime reloaded", "modules", len(rt.Modules()))
				}
			}
		},
	}
}
