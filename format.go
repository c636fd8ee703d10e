package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/binghezhouke/123/internal/pan"
)

// formatSize renders a size in bytes as a human-readable string.
func formatSize(size int64) string {
	const unit = 1024

	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// formatTime renders an API timestamp for display, passing through values
// it cannot parse.
func formatTime(s string) string {
	if s == "" {
		return "-"
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Local().Format("2006-01-02 15:04")
		}
	}

	return s
}

// stdoutIsTerminal reports whether stdout is an interactive terminal, used
// to decide whether progress bars are worth drawing.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// fileTypeRune returns a one-character type marker for listings.
func fileTypeRune(f *pan.File) rune {
	if f.IsFolder {
		return 'd'
	}

	return '-'
}

// printFileList renders a slice of files in either JSON or a column layout.
func printFileList(files []pan.File) error {
	if flagJSON {
		return printJSON(files)
	}

	for i := range files {
		f := &files[i]
		fmt.Printf("%c %12d  %10s  %16s  %s\n",
			fileTypeRune(f), f.FileID, formatSize(f.Size), formatTime(f.UpdateAt), f.Filename)
	}

	return nil
}

// printFile renders a single file's details.
func printFile(f *pan.File) error {
	if flagJSON {
		return printJSON(f)
	}

	kind := "file"
	if f.IsFolder {
		kind = "folder"
	}

	fmt.Printf("ID:       %d\n", f.FileID)
	fmt.Printf("Name:     %s\n", f.Filename)
	fmt.Printf("Type:     %s\n", kind)
	fmt.Printf("Size:     %s (%d bytes)\n", formatSize(f.Size), f.Size)
	fmt.Printf("Parent:   %d\n", f.ParentID)

	if f.Etag != "" {
		fmt.Printf("MD5:      %s\n", f.Etag)
	}

	fmt.Printf("Created:  %s\n", formatTime(f.CreateAt))
	fmt.Printf("Updated:  %s\n", formatTime(f.UpdateAt))

	return nil
}
