package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
)

func init() {
	cmdRoot.AddCommand(cmdDownload())
}

func cmdDownload() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "download <song-id> <unique-id>",
		Short:        "Download a hosted or YouTube variant and make it active",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gdID, err := parseSongID(args[0])
			if err != nil {
				return err
			}
			uniqueID := args[1]
			refresh, _ := cmd.Flags().GetBool("refresh")

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if err := loadCatalogs(ctx, refresh); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var finished domain.DownloadFinishedEvent
			bus := application.GetEventBus()
			subID := bus.SubscribeWhere(domain.ForVariant(uniqueID), func(event domain.Event) {
				switch e := event.(type) {
				case domain.DownloadProgressEvent:
					fmt.Fprintf(out, "\r%s: %3.0f%%", uniqueID, e.Progress*100)
				case domain.DownloadFinishedEvent:
					finished = e
				}
			})
			defer bus.Unsubscribe(subID)

			_, _, downloads, _ := application.GetServices()
			if err := downloads.Download(gdID, uniqueID); err != nil {
				return err
			}

			done := make(chan struct{})
			go func() {
				downloads.Wait(uniqueID)
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				downloads.Cancel(uniqueID)
				<-done
			}
			fmt.Fprintln(out)

			if finished.UniqueID == "" {
				return fmt.Errorf("download of %s did not report an outcome", uniqueID)
			}
			switch finished.Outcome {
			case domain.DownloadCompleted:
				fmt.Fprintf(out, "saved to %s\n", finished.Path)
				return nil
			default:
				return fmt.Errorf("download %s: %w", finished.Outcome, finished.Err)
			}
		},
	}
	cmd.Flags().BoolP("refresh", "r", false, "refetch catalogs before downloading")
	return cmd
}
