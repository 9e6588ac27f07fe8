package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
)

func init() {
	cmdRoot.AddCommand(cmdRefresh())
}

func cmdRefresh() *cobra.Command {
	return &cobra.Command{
		Use:          "refresh",
		Short:        "Fetch every enabled catalog and update the local cache",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			bus := application.GetEventBus()
			bus.Subscribe(domain.EventIndexLoaded, func(event domain.Event) {
				if e, ok := event.(domain.IndexLoadedEvent); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "loaded %s (%s): %d variants\n", e.Index.Name, e.Index.ID, e.Variants)
				}
			})

			if err := application.Start(ctx); err != nil {
				return err
			}
			// A cold cache is only created by Start; fetch it now.
			index, _, _, _ := application.GetServices()
			if !index.Initialized() {
				if err := index.RefreshCatalogs(ctx); err != nil {
					return err
				}
			}

			loaded := index.LoadedIndexes()
			fmt.Fprintf(cmd.OutOrStdout(), "%d catalog(s) loaded\n", len(loaded))
			return nil
		},
	}
}
