package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tejashwikalptaru/gojukebox/internal/app"
)

func init() {
	cmdRoot.AddCommand(cmdActivate(), cmdRemove(), cmdIndexName(), cmdSongs(), cmdVersion())
}

func cmdActivate() *cobra.Command {
	return &cobra.Command{
		Use:          "activate <song-id> <unique-id>",
		Short:        "Use a stored variant for a song",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			gdID, err := parseSongID(args[0])
			if err != nil {
				return err
			}
			_, _, _, library := application.GetServices()
			return library.Activate(gdID, args[1])
		},
	}
}

func cmdRemove() *cobra.Command {
	return &cobra.Command{
		Use:          "remove <song-id> <unique-id>",
		Short:        "Delete a stored variant and its downloaded file",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			gdID, err := parseSongID(args[0])
			if err != nil {
				return err
			}
			_, _, _, library := application.GetServices()
			return library.Remove(gdID, args[1])
		},
	}
}

func cmdIndexName() *cobra.Command {
	return &cobra.Command{
		Use:          "index-name <index-id>",
		Short:        "Print the display name of a catalog",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, _, _, _ := application.GetServices()
			name, ok := index.LookupDisplayName(args[0])
			if !ok {
				return fmt.Errorf("unknown index %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
}

func cmdSongs() *cobra.Command {
	return &cobra.Command{
		Use:          "songs",
		Short:        "List songs with stored variants",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := application.GetStore()
			ids, err := store.SongIDs()
			if err != nil {
				return err
			}
			for _, id := range ids {
				nongs, err := store.GetNongs(id)
				if err != nil {
					return err
				}
				active := nongs.Active()
				name := ""
				if active != nil {
					name = active.Metadata().Name
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%d variant(s)\tactive: %s\n", id, nongs.Len(), name)
			}
			return nil
		},
	}
}

func cmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipApp": "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.GetVersionInfo().FullString())
		},
	}
}
