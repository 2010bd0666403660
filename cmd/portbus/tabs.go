package main

import (
	"github.com/spf13/cobra"

	"github.com/next-trace/scg-port-bus/adapters/chrome"
	"github.com/next-trace/scg-port-bus/tabs"
)

func newTabsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "Inspect browser tabs over the DevTools protocol (cdp.url)",
	}

	with := func(fn func(cmd *cobra.Command, t *tabs.Tabs) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			b, err := chrome.Connect(cmd.Context(), chrome.Config{URL: a.cfg.CDP.URL, Headless: true, Logger: a.logger})
			if err != nil {
				return err
			}
			defer b.Close()

			return fn(cmd, tabs.New(b.Tabs(), a.logger))
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every tab",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, t *tabs.Tabs) error {
			all, err := t.AllTabs(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), all)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Print the active tab of the current window",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, t *tabs.Tabs) error {
			tab, err := t.CurrentTab(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), tab)
		}),
	})

	return cmd
}
