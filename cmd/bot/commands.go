package main

import (
	"fmt"
	"slices"
	"strings"

	"errand-bot/internal/driver"
	"errand-bot/internal/store"
	"errand-bot/pkg/errand"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "bot",
		Short:         "Chat assistant for todos, reminders, polls and lookups",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	root.AddCommand(newRunCommand(), newStateCommand())

	return root
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect the configured drivers and serve commands until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

func newStateCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:       "state <collection>",
		Short:     "Print the stored JSON document of one collection",
		Args:      cobra.ExactArgs(1),
		ValidArgs: errand.Collections(),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if !slices.Contains(errand.Collections(), name) {
				return fmt.Errorf("unknown collection %q, want one of %s", name, strings.Join(errand.Collections(), ", "))
			}

			storeConfig, err := resolveStoreConfig(dir)
			if err != nil {
				return err
			}
			stateStore, err := store.Open(storeConfig)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			raw, err := stateStore.Dump(name)
			if err != nil {
				return fmt.Errorf("dump %s: %w", name, err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "state directory; defaults to the configured store.dir")

	return cmd
}

// resolveStoreConfig prefers an explicit directory over the config file.
func resolveStoreConfig(dir string) (store.Config, error) {
	if dir = strings.TrimSpace(dir); dir != "" {
		return store.Config{Dir: dir}, nil
	}

	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return store.Config{}, fmt.Errorf("new builtin driver registry: %w", err)
	}
	cfg, err := loadConfig(registry)
	if err != nil {
		return store.Config{}, fmt.Errorf("load config: %w", err)
	}

	return cfg.store, nil
}
