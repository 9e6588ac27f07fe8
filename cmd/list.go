package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
)

func init() {
	cmdRoot.AddCommand(cmdList())
}

func cmdList() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "list <song-id>",
		Short:        "List the variants of a song, local ones first",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gdID, err := parseSongID(args[0])
			if err != nil {
				return err
			}
			refresh, _ := cmd.Flags().GetBool("refresh")
			query, _ := cmd.Flags().GetString("query")

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if err := loadCatalogs(ctx, refresh); err != nil {
				return err
			}

			_, variants, _, _ := application.GetServices()
			list, err := variants.Search(gdID, query)
			if err != nil {
				return err
			}

			nongs, err := application.GetStore().GetNongs(gdID)
			if err != nil {
				return err
			}
			printVariants(cmd.OutOrStdout(), nongs, list)
			return nil
		},
	}
	cmd.Flags().BoolP("refresh", "r", false, "refetch catalogs before listing")
	cmd.Flags().StringP("query", "q", "", "fuzzy filter on \"artist - name\"")
	return cmd
}

func printVariants(out io.Writer, local *domain.Nongs, variants []domain.Variant) {
	index, _, _, _ := application.GetServices()
	active := local.Active()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tTYPE\tSONG\tSOURCE\tPATH")
	for _, v := range variants {
		marker := ""
		if active != nil && active.Metadata().UniqueID == v.Metadata().UniqueID {
			marker = "*"
		}

		source := "local"
		if local.IsDefault(v) {
			source = "default"
		} else if id := v.IndexID(); id != "" {
			source = id
			if name, ok := index.LookupDisplayName(id); ok {
				source = name
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			marker, v.Metadata().UniqueID, v.Type(), domain.DisplayName(v), source, v.Path())
	}
	w.Flush()
}
