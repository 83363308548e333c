package main

import (
	"context"
	"fmt"

	"attractions/apperrors"
	"attractions/upload"

	"github.com/spf13/cobra"
)

var cmdAttraction = &cobra.Command{
	Use:   "attraction [command]",
	Short: "Manage attractions (administrator only)",
}

var (
	attractionName     string
	attractionLocation string
	attractionImage    string
)

func init() {
	cmdAttractionAdd.Flags().StringVar(&attractionName, "name", "", "Name of the attraction.")
	cmdAttractionAdd.Flags().StringVar(&attractionLocation, "location", "", "Where the attraction is.")
	cmdAttractionAdd.Flags().StringVar(&attractionImage, "image", "", "Path to an image file to upload.")
}

var cmdAttractionAdd = &cobra.Command{
	Use:   "add",
	Short: "Upload an image and add a new attraction",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if !a.session.IsAdmin() {
			return apperrors.PermissionDenied("only the administrator may add attractions")
		}
		if attractionName == "" || attractionLocation == "" || attractionImage == "" {
			return apperrors.Validation("--name, --location and --image are all required")
		}

		file, err := upload.FileFromPath(attractionImage)
		if err != nil {
			return err
		}

		out := cmd.ErrOrStderr()
		cancelWatch := a.pipeline.Watch(func(s upload.State) {
			if s.Phase == upload.Uploading {
				fmt.Fprintf(out, "\ruploading %s: %3.0f%%", file.Name, s.ProgressPercent)
			}
		})
		address, err := a.pipeline.UploadAndWait(ctx, file)
		cancelWatch()
		fmt.Fprintln(out)
		if err != nil {
			return err
		}

		attraction, err := a.repo.CreateAttraction(ctx, attractionName, attractionLocation, address)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s: %s (%s) %s\n", attraction.ID, attraction.Name, attraction.Location, attraction.ImageAddress)
		return nil
	}),
}
