package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

// newStatCmd shows details for one or more files by ID.
func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <file-id> [file-id...]",
		Short: "Show file details",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			fileIDs := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return err
				}
				fileIDs = append(fileIDs, id)
			}

			files, err := app.files.Infos(cmd.Context(), fileIDs)
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(files)
			}

			for i := range files {
				if i > 0 {
					cmd.Println()
				}
				if err := printFile(&files[i]); err != nil {
					return err
				}
			}

			return nil
		},
	}
}
