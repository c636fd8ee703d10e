package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// newPathCmd resolves a file ID to its full path from the root folder.
func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path <file-id>",
		Short: "Resolve a file ID to its full path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			fileID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}

			path, err := app.files.Path(cmd.Context(), fileID)
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(map[string]any{"fileID": fileID, "path": path})
			}

			fmt.Println(path)

			return nil
		},
	}
}
