package main

import (
	"context"
	"fmt"

	"attractions/apperrors"
	"attractions/revieweditor"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var cmdReview = &cobra.Command{
	Use:   "review [command]",
	Short: "Write and manage your reviews",
}

var (
	reviewAttractionID string
	reviewID           string
	reviewText         string
	reviewRating       int
	reviewYes          bool
)

func init() {
	for _, c := range []*cobra.Command{cmdReviewAdd, cmdReviewEdit, cmdReviewDelete} {
		c.Flags().StringVar(&reviewAttractionID, "attraction", "", "ID of the attraction.")
		c.MarkFlagRequired("attraction")
	}
	for _, c := range []*cobra.Command{cmdReviewEdit, cmdReviewDelete} {
		c.Flags().StringVar(&reviewID, "review", "", "ID of the review.")
		c.MarkFlagRequired("review")
	}
	for _, c := range []*cobra.Command{cmdReviewAdd, cmdReviewEdit} {
		c.Flags().StringVar(&reviewText, "text", "", "Review text.")
		c.Flags().IntVar(&reviewRating, "rating", 0, "Star rating, 1 to 5.")
	}
	cmdReviewDelete.Flags().BoolVar(&reviewYes, "yes", false, "Delete without asking.")
}

var cmdReviewAdd = &cobra.Command{
	Use:   "add",
	Short: "Review an attraction",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		editor := revieweditor.New(a.repo, a.session)
		if err := editor.OpenCreate(reviewAttractionID); err != nil {
			return err
		}
		editor.SetText(reviewText)
		editor.SetRating(reviewRating)
		if err := editor.Submit(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "review added")
		return nil
	}),
}

var cmdReviewEdit = &cobra.Command{
	Use:   "edit",
	Short: "Change one of your reviews",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		view, err := a.repo.LoadCatalog(ctx)
		if err != nil {
			return err
		}
		review, ok := view.FindReview(reviewAttractionID, reviewID)
		if !ok {
			return apperrors.Validation("no review %s on attraction %s", reviewID, reviewAttractionID)
		}

		editor := revieweditor.New(a.repo, a.session)
		if err := editor.OpenEdit(reviewAttractionID, review); err != nil {
			return err
		}
		// Unset flags keep the stored values.
		if cmd.Flags().Changed("text") {
			editor.SetText(reviewText)
		}
		if cmd.Flags().Changed("rating") {
			editor.SetRating(reviewRating)
		}
		if err := editor.Submit(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "review updated")
		return nil
	}),
}

var cmdReviewDelete = &cobra.Command{
	Use:   "delete",
	Short: "Delete one of your reviews",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		view, err := a.repo.LoadCatalog(ctx)
		if err != nil {
			return err
		}
		review, ok := view.FindReview(reviewAttractionID, reviewID)
		if !ok {
			return apperrors.Validation("no review %s on attraction %s", reviewID, reviewAttractionID)
		}

		confirm := newTerminalConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr(), reviewYes)
		deleted, err := revieweditor.DeleteOwnReview(ctx, a.repo, a.session.User(), reviewAttractionID, review, confirm)
		if err != nil {
			return err
		}
		if !deleted {
			glog.Infof("Delete of review %s declined", reviewID)
			fmt.Fprintln(cmd.OutOrStdout(), "not deleted")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "review deleted")
		return nil
	}),
}
