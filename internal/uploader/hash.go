package uploader

import (
	"crypto/md5" //nolint:gosec // vendor protocol identifies content by MD5 etag
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ComputeEtag computes the hex MD5 digest the vendor uses as a
// content-addressed identity. Streaming, constant memory.
func ComputeEtag(r io.Reader) (string, error) {
	h := md5.New() //nolint:gosec // see package note on MD5 etags

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("uploader: hashing content: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileEtag computes the etag of a file on disk.
func FileEtag(fsPath string) (string, error) {
	f, err := os.Open(fsPath)
	if err != nil {
		return "", fmt.Errorf("uploader: opening %s for hashing: %w", fsPath, err)
	}
	defer f.Close()

	return ComputeEtag(f)
}
