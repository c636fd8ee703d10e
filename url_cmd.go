package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// newURLCmd prints a short-lived direct download URL for a file.
func newURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <file-id>",
		Short: "Print a direct download URL for a file",
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

			url, err := app.files.DownloadURL(cmd.Context(), fileID)
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(map[string]any{"fileID": fileID, "url": url})
			}

			fmt.Println(url)

			return nil
		},
	}
}
