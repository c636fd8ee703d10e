package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newMkdirCmd creates a folder path, making intermediate folders as needed
// and reusing any that already exist.
func newMkdirCmd() *cobra.Command {
	var parentID int64

	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder path, reusing existing folders",
		Long: "Create all folders in a slash-separated path under the given parent\n" +
			"(default: root). Folders that already exist are reused, so repeating\n" +
			"the command is safe.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			dirID, err := app.files.MkdirAll(cmd.Context(), args[0], parentID)
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(map[string]any{"dirID": dirID})
			}

			fmt.Printf("Created %s (ID %d)\n", args[0], dirID)

			return nil
		},
	}

	cmd.Flags().Int64Var(&parentID, "parent", 0, "parent folder ID to create the path under")

	return cmd
}
