package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tejashwikalptaru/gojukebox/internal/service"
)

func init() {
	cmdRoot.AddCommand(cmdImport())
}

func cmdImport() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <song-id> <file-or-folder>",
		Short: "Add local audio files as variants of a song",
		Long: "Add local audio files as variants of a song. Name and artist are read\n" +
			"from the file's tags unless given. A folder imports every supported file in it.",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gdID, err := parseSongID(args[0])
			if err != nil {
				return err
			}
			path := args[1]

			var opts service.ImportOptions
			opts.Name, _ = cmd.Flags().GetString("name")
			opts.Artist, _ = cmd.Flags().GetString("artist")
			opts.StartOffset, _ = cmd.Flags().GetInt("offset")
			opts.AsDefault, _ = cmd.Flags().GetBool("default")
			opts.Activate, _ = cmd.Flags().GetBool("activate")

			_, _, _, library := application.GetServices()
			out := cmd.OutOrStdout()

			info, err := os.Stat(path)
			if err == nil && info.IsDir() {
				ctx, stop := signalContext(cmd.Context())
				defer stop()

				songs, err := library.ImportFolder(ctx, gdID, path)
				for _, song := range songs {
					fmt.Fprintf(out, "imported %s  %s\n", song.Metadata().UniqueID, song.Path())
				}
				return err
			}

			song, err := library.ImportFile(gdID, path, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "imported %s  %s\n", song.Metadata().UniqueID, song.Path())
			return nil
		},
	}
	cmd.Flags().String("name", "", "song name (default from tags or file name)")
	cmd.Flags().String("artist", "", "artist (default from tags)")
	cmd.Flags().Int("offset", 0, "start offset in milliseconds")
	cmd.Flags().Bool("default", false, "use the file as the song's default")
	cmd.Flags().Bool("activate", false, "make the imported variant active")
	return cmd
}
