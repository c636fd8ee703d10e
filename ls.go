package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

// newLsCmd lists the contents of a folder, or searches the whole drive
// when --search is given.
func newLsCmd() *cobra.Command {
	var (
		search string
		exact  bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List folder contents or search for files",
		Long: "List the contents of a folder by ID (default: root folder 0).\n" +
			"With --search, searches the entire drive instead; --exact restricts\n" +
			"the search to exact filename matches.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if search != "" {
				page, err := app.files.Search(cmd.Context(), search, exact, limit, 0)
				if err != nil {
					return err
				}

				return printFileList(page.Files)
			}

			parentID := int64(0)
			if len(args) == 1 {
				parentID, err = strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return err
				}
			}

			files, err := app.files.ListAll(cmd.Context(), parentID)
			if err != nil {
				return err
			}

			return printFileList(files)
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "search for files by name instead of listing a folder")
	cmd.Flags().BoolVar(&exact, "exact", false, "match the search term exactly")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum results per search page")

	return cmd
}
