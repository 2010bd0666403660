package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/next-trace/scg-port-bus/storage"
	"github.com/next-trace/scg-port-bus/storage/sqlite"
)

const (
	areaSync  = "sync"
	areaLocal = "local"
)

func openStorage(ctx context.Context, a *app) (*storage.Storage, func(), error) {
	db, err := sqlite.Open(ctx, a.cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}

	return storage.New(db.Area(areaSync), db.Area(areaLocal), a.logger), func() { _ = db.Close() }, nil
}

func newStorageCmd(a *app) *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Read and write the sync and local storage areas",
	}

	cmd.PersistentFlags().BoolVar(&local, "local", false, "use the local area instead of sync")

	// with opens storage for one subcommand run.
	with := func(fn func(cmd *cobra.Command, st *storage.Storage, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			st, closeStorage, err := openStorage(cmd.Context(), a)
			if err != nil {
				return err
			}
			defer closeStorage()

			return fn(cmd, st, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [key...]",
		Short: "Print stored values; no keys prints everything",
		RunE: with(func(cmd *cobra.Command, st *storage.Storage, keys []string) error {
			read := st.Read
			if local {
				read = st.ReadLocal
			}

			items, err := read(cmd.Context(), keys...)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), items)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set key=value...",
		Short: "Store values; each value is parsed as JSON, falling back to a string",
		Args:  cobra.MinimumNArgs(1),
		RunE: with(func(cmd *cobra.Command, st *storage.Storage, args []string) error {
			items, err := parseAssignments(args)
			if err != nil {
				return err
			}

			save := st.Save
			if local {
				save = st.SaveLocal
			}

			saved, err := save(cmd.Context(), items)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), saved)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove key...",
		Short: "Delete keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: with(func(cmd *cobra.Command, st *storage.Storage, keys []string) error {
			if local {
				return st.RemoveLocal(cmd.Context(), keys...)
			}

			return st.Remove(cmd.Context(), keys...)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every key in the area",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, st *storage.Storage, _ []string) error {
			if local {
				return st.ClearLocal(cmd.Context())
			}

			return st.Clear(cmd.Context())
		}),
	})

	return cmd
}

func parseAssignments(args []string) (map[string]any, error) {
	items := make(map[string]any, len(args))

	for _, arg := range args {
		k, raw, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}

		items[k] = parseValue(raw)
	}

	return items, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}

	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
