package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmdRoot.AddCommand(cmdSources())
}

func cmdSources() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sources",
		Short:        "List catalog sources",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sources, err := application.GetSourceService().Sources()
			if err != nil {
				return err
			}
			for _, src := range sources {
				state := "enabled"
				if !src.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s  %s\n", state, src.URL)
			}
			return nil
		},
	}

	cmd.AddCommand(
		sourceCommand("add <url>", "Add an enabled catalog source", func(url string) error {
			return application.GetSourceService().Add(url)
		}),
		sourceCommand("remove <url>", "Remove a catalog source", func(url string) error {
			return application.GetSourceService().Remove(url)
		}),
		sourceCommand("enable <url>", "Enable a catalog source", func(url string) error {
			return application.GetSourceService().SetEnabled(url, true)
		}),
		sourceCommand("disable <url>", "Disable a catalog source", func(url string) error {
			return application.GetSourceService().SetEnabled(url, false)
		}),
	)
	return cmd
}

func sourceCommand(use, short string, run func(url string) error) *cobra.Command {
	return &cobra.Command{
		Use:          use,
		Short:        short,
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
}
