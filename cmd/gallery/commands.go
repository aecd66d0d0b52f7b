package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gallery/internal/filter"
	"gallery/internal/middleware"
	"gallery/internal/models"
	"gallery/internal/render"
	"gallery/internal/upload"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var errNotConfirmed = errors.New("not confirmed; pass --yes")

func newFoldersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List folders and how many images each holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := a.repo.Snapshot()
			out := cmd.OutOrStdout()
			for _, name := range a.repo.ListFolderNames() {
				n := len(doc.Folders[name])
				fmt.Fprintf(out, "%s\t%s\n", name, humanize.Comma(int64(n))+" "+plural(n, "image"))
			}
			return nil
		},
	}
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir NAME",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := a.repo.CreateFolder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created folder %q\n", name)
			return nil
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	var folder, tags string
	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Add image files to a folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]upload.File, 0, len(args))
			for _, p := range args {
				f, err := upload.FromPath(p)
				if err != nil {
					return err
				}
				files = append(files, f)
			}
			pipeline := upload.New(a.repo, upload.Config{
				Concurrency: a.cfg.Upload.Concurrency,
				MaxBytes:    a.cfg.Upload.MaxBytes,
			}, a.logger.Named("upload"))

			res, err := pipeline.Upload(cmd.Context(), files, folder, tags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range res.Skipped {
				fmt.Fprintf(out, "skipped %s: %s\n", s.Name, s.Reason)
			}
			fmt.Fprintf(out, "Added %d %s to %q\n", len(res.Added), plural(len(res.Added), "image"), res.Folder)
			return nil
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", models.DefaultFolder, "destination folder")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "comma separated tags for every file")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var q filter.Query
	var tags string
	cmd := &cobra.Command{
		Use:   "search [TEXT]",
		Short: "List images matching a folder, name text and tags",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				q.Text = args[0]
			}
			q.Tags = models.ParseTags(tags)
			all := a.repo.AllImages()
			view := render.Build(filter.Apply(all, q), len(all), q, render.DataLinks{}, time.Now())
			return render.Text(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVarP(&q.Folder, "folder", "f", filter.AllFolders, "folder to search")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "comma separated tags, all required")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete one image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, ok := a.repo.FindImage(args[0])
			if !ok {
				return fmt.Errorf("no image with id %s", args[0])
			}
			label := img.Name
			if label == "" {
				label = render.NoName
			}
			if !confirm(cmd, yes, fmt.Sprintf("Delete %s from %q?", label, img.Folder)) {
				return errNotConfirmed
			}
			if _, err := a.repo.DeleteImage(cmd.Context(), img.Folder, img.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", img.ID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every folder and image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n := a.repo.Count()
			if !confirm(cmd, yes, fmt.Sprintf("Delete ALL folders and %d %s?", n, plural(n, "image"))) {
				return errNotConfirmed
			}
			if err := a.repo.ResetAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Gallery reset")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the whole gallery document as JSON to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.repo.Snapshot())
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "hash-password PASSWORD",
		Short:       "Print the bcrypt hash to use as auth.password_hash",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"store": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := middleware.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

// confirm asks on the command's input unless yes is set.
func confirm(cmd *cobra.Command, yes bool, prompt string) bool {
	if yes {
		return true
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
