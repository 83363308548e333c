package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"attractions/catalog"
	"attractions/webui"

	"github.com/spf13/cobra"
)

var cmdCatalog = &cobra.Command{
	Use:   "catalog [command]",
	Short: "Browse the catalog",
}

var catalogListFull bool

func init() {
	cmdCatalogList.Flags().BoolVar(&catalogListFull, "full", false, "Print whole reviews instead of excerpts.")
}

var cmdCatalogList = &cobra.Command{
	Use:   "list",
	Short: "List every attraction with its reviews",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		view, err := a.repo.LoadCatalog(ctx)
		if err != nil {
			return err
		}
		printCatalog(cmd.OutOrStdout(), view, catalogListFull)
		return nil
	}),
}

func printCatalog(w io.Writer, view *catalog.View, full bool) {
	for _, entry := range view.Entries {
		a := entry.Attraction
		fmt.Fprintf(w, "%s\t%s (%s)\n", a.ID, a.Name, a.Location)
		fmt.Fprintf(w, "\timage: %s\n", a.ImageAddress)
		for _, r := range entry.Reviews {
			text := r.Text
			if !full {
				if excerpt, cut := webui.Excerpt(text, webui.ExcerptLength); cut {
					text = excerpt + "..."
				}
			}
			// Stored ratings are not validated on read.
			stars := strings.Repeat("*", min(max(r.Rating, 0), 5))
			fmt.Fprintf(w, "\t%s\t%s %s\t%s\n", r.ID, stars, r.AuthorUserID, text)
		}
	}
}

var cmdWhoami = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in identity",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		user, admin := a.session.Current()
		if user == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> admin=%v\n", user.ID, user.Email, admin)
		return nil
	}),
}
