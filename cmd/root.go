package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tejashwikalptaru/gojukebox/internal/app"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
)

var (
	configPath  string
	application *app.Application

	cmdRoot = &cobra.Command{
		Use:   "gojukebox",
		Short: "Manage replacement songs from community catalogs",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipApp"] == "true" || cmd.Name() == "help" {
				return nil
			}
			a, err := app.NewApplication(app.Config{ConfigPath: configPath})
			if err != nil {
				return err
			}
			application = a
			application.GetEventBus().Subscribe(domain.EventSongError, printSongError)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if application != nil {
				application.Shutdown()
			}
		},
	}
)

func init() {
	cmdRoot.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/gojukebox/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if application != nil {
			application.Shutdown()
		}
		os.Exit(1)
	}
}

func printSongError(event domain.Event) {
	e, ok := event.(domain.SongErrorEvent)
	if !ok {
		return
	}
	if e.UserFacing {
		fmt.Fprintln(os.Stderr, "error:", e.Message)
		return
	}
	fmt.Fprintln(os.Stderr, "warning:", e.Message)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func parseSongID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid song id %q", arg)
	}
	return id, nil
}

// loadCatalogs fills the index table from the cache, or refetches first
// when refresh is set.
func loadCatalogs(ctx context.Context, refresh bool) error {
	index, _, _, _ := application.GetServices()
	if refresh {
		return index.RefreshCatalogs(ctx)
	}
	_, err := index.LoadCachedCatalogs()
	return err
}
