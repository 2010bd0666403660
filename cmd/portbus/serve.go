package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/next-trace/scg-port-bus/adapters/chrome"
	"github.com/next-trace/scg-port-bus/contract/port"
	"github.com/next-trace/scg-port-bus/messages"
	"github.com/next-trace/scg-port-bus/storage"
	"github.com/next-trace/scg-port-bus/tabs"
)

func newServeCmd(a *app) *cobra.Command {
	var withTabs bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer requests sent to this endpoint until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			h, closeHost, err := openHost(ctx, a.cfg, a.cfg.Endpoint, a.logger)
			if err != nil {
				return err
			}
			defer closeHost()

			st, closeStorage, err := openStorage(ctx, a)
			if err != nil {
				return err
			}
			defer closeStorage()

			bindings := append(echoActions(), storageActions(st)...)

			if withTabs {
				b, err := chrome.Connect(ctx, chrome.Config{URL: a.cfg.CDP.URL, Headless: true, Logger: a.logger})
				if err != nil {
					return err
				}
				defer b.Close()

				bindings = append(bindings, tabsActions(tabs.New(b.Tabs(), a.logger))...)
			}

			reg := messages.NewRegistry(h, a.logger, messages.WithSuppressEmptyReply(a.cfg.Messages.SuppressEmptyReply))
			defer reg.Close()

			for _, b := range bindings {
				if _, err := reg.Register(b); err != nil {
					return err
				}
			}

			a.logger.Info("serving", "inbox", h.Inbox(), "actions", reg.Len())
			fmt.Fprintf(cmd.OutOrStdout(), "serving %s\n", h.Inbox())

			<-ctx.Done()

			return nil
		},
	}

	cmd.Flags().BoolVar(&withTabs, "tabs", false, "also answer tabs.current and tabs.all from the browser at cdp.url")

	return cmd
}

// answer turns a failure into the {"error": ...} reply shape so callers see
// the reason instead of a missing response.
func answer[R any](v R, err error) (any, error) {
	if err != nil {
		return messages.ErrorResponse{Error: err.Error()}, nil
	}

	return v, nil
}

func echoActions() []messages.Binding {
	return []messages.Binding{
		messages.CreateAction("echo", func(_ context.Context, p any, _ *port.Sender) (any, error) {
			return p, nil
		}),
		messages.CreateAction("whoami", func(_ context.Context, _ struct{}, s *port.Sender) (*port.Sender, error) {
			return s, nil
		}),
	}
}

func storageActions(st *storage.Storage) []messages.Binding {
	return []messages.Binding{
		messages.CreateAction("storage.read", func(ctx context.Context, keys []string, _ *port.Sender) (any, error) {
			return answer(st.Read(ctx, keys...))
		}),
		messages.CreateAction("storage.save", func(ctx context.Context, items map[string]any, _ *port.Sender) (any, error) {
			return answer(st.Save(ctx, items))
		}),
		messages.CreateAction("storage.remove", func(ctx context.Context, keys []string, _ *port.Sender) (any, error) {
			return answer(true, st.Remove(ctx, keys...))
		}),
		messages.CreateAction("storage.clear", func(ctx context.Context, _ struct{}, _ *port.Sender) (any, error) {
			return answer(true, st.Clear(ctx))
		}),
	}
}

func tabsActions(t *tabs.Tabs) []messages.Binding {
	return []messages.Binding{
		messages.CreateAction("tabs.current", func(ctx context.Context, _ struct{}, _ *port.Sender) (any, error) {
			return answer(t.CurrentTab(ctx))
		}),
		messages.CreateAction("tabs.all", func(ctx context.Context, _ struct{}, _ *port.Sender) (any, error) {
			return answer(t.AllTabs(ctx))
		}),
	}
}
