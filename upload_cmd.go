package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/binghezhouke/123/internal/config"
	"github.com/binghezhouke/123/internal/pan"
	"github.com/binghezhouke/123/internal/uploader"
)

// newUploadCmd uploads a local file, using the content hash to skip the
// transfer entirely when the server already has the bytes.
func newUploadCmd() *cobra.Command {
	var (
		parentID  int64
		remote    string
		overwrite bool
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "upload <local-file>",
		Short: "Upload a file",
		Long: "Upload a local file to the given parent folder (default: root).\n" +
			"Files the server already knows by content hash complete instantly\n" +
			"without transferring any data.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			engine := buildEngine(app, overwrite, workers)

			src, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			fi, err := src.Stat()
			if err != nil {
				return err
			}

			name := remote
			if name == "" {
				name = filepath.Base(args[0])
			}

			var reader io.ReaderAt = src

			var bar *pb.ProgressBar
			if stdoutIsTerminal() && !flagQuiet && !flagJSON {
				bar = pb.Full.Start64(fi.Size())
				bar.Set(pb.Bytes, true)
				reader = &progressReaderAt{src: src, bar: bar}
			}

			result, err := engine.Upload(cmd.Context(), reader, fi.Size(), parentID, name, "")

			if bar != nil {
				bar.Finish()
			}

			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(result)
			}

			if result.Reused {
				fmt.Printf("Uploaded %s instantly (ID %d, content already known)\n", result.Filename, result.FileID)
			} else {
				fmt.Printf("Uploaded %s (ID %d, %s)\n", result.Filename, result.FileID, formatSize(result.Size))
			}

			return nil
		},
	}

	cmd.Flags().Int64Var(&parentID, "parent", 0, "parent folder ID to upload into")
	cmd.Flags().StringVar(&remote, "name", "", "remote filename (default: local basename)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite an existing file with the same name")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel slice uploads (default from config)")

	return cmd
}

// buildEngine assembles an upload engine from config, letting the
// --overwrite and --workers flags override the configured values.
func buildEngine(app *appContext, overwrite bool, workers int) *uploader.Engine {
	duplicate := pan.DuplicateKeepBoth
	if overwrite || app.cfg.Upload.DuplicatePolicy == config.PolicyOverwrite {
		duplicate = pan.DuplicateOverwrite
	}

	if workers <= 0 {
		workers = app.cfg.Upload.Workers
	}

	completeDelay, _ := config.Duration(app.cfg.Upload.CompleteDelay, 2*time.Second)

	return uploader.New(app.client, app.logger, uploader.Options{
		Duplicate:       duplicate,
		Workers:         workers,
		CompleteRetries: app.cfg.Upload.CompleteRetries,
		CompleteDelay:   completeDelay,
	})
}

// progressReaderAt advances the progress bar as slices read from the
// source file. ReadAt is safe for the engine's concurrent slice workers;
// pb's counters are atomic.
type progressReaderAt struct {
	src io.ReaderAt
	bar *pb.ProgressBar
}

func (p *progressReaderAt) ReadAt(b []byte, off int64) (int, error) {
	n, err := p.src.ReadAt(b, off)
	p.bar.Add(n)

	return n, err
}
