// Package uploader implements the per-file upload state machine: instant
// upload (content-addressed dedup), sliced transfer across the session's
// upload servers, and completion polling while the server verifies.
package uploader

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // vendor protocol checksums slices with MD5
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/binghezhouke/123/internal/pan"
)

// API is the slice of the transport the engine needs. Defined here per
// "accept interfaces, return structs"; *pan.Client satisfies it.
type API interface {
	CreateFile(ctx context.Context, req pan.CreateFileRequest) (*pan.UploadSession, error)
	UploadSlice(ctx context.Context, server, preuploadID string, sliceNo int64, sliceMD5 string, slice io.Reader) error
	UploadComplete(ctx context.Context, preuploadID string, bypassVerifyRetry bool) (*pan.UploadCompleteResult, error)
	ListFiles(ctx context.Context, params pan.ListParams) (*pan.FileListPage, error)
}

// Completion polling defaults. The delay is fixed, not exponential: the
// wait represents server-side checksum verification, a domain state, not a
// transient network condition.
const (
	defaultCompleteRetries = 5
	defaultCompleteDelay   = 2 * time.Second

	// probePageCap bounds the reconciliation probe's directory walk.
	probePageCap = 10
)

// Options tunes an Engine. Zero fields take defaults.
type Options struct {
	// Duplicate is the name-collision policy sent to the pre-upload call.
	// Defaults to pan.DuplicateKeepBoth.
	Duplicate int

	// AllowDirQualified permits path separators in filenames; the create
	// call then asks the server to materialize intermediate directories.
	AllowDirQualified bool

	// Workers caps parallel slice transfers. The effective pool is
	// min(Workers, len(session servers)); 0 or 1 means sequential.
	Workers int

	// CompleteRetries and CompleteDelay bound the verification polling.
	CompleteRetries int
	CompleteDelay   time.Duration

	// DisableReconcile turns off the best-effort probe that treats a
	// same-name/same-size entry as an already-finished earlier attempt
	// when the pre-upload call fails.
	DisableReconcile bool
}

// Engine orchestrates uploads. One Engine serves many uploads; each upload
// attempt owns its ephemeral session and never persists it.
type Engine struct {
	api    API
	logger *slog.Logger
	opts   Options
}

// Result is what a finished upload reports. Reused means the server
// recognized the content hash and no bytes were transferred.
type Result struct {
	FileID   int64
	Filename string
	Size     int64
	Reused   bool
}

// New creates an upload engine.
func New(api API, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Duplicate == 0 {
		opts.Duplicate = pan.DuplicateKeepBoth
	}

	if opts.CompleteRetries == 0 {
		opts.CompleteRetries = defaultCompleteRetries
	}

	if opts.CompleteDelay == 0 {
		opts.CompleteDelay = defaultCompleteDelay
	}

	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	return &Engine{api: api, logger: logger, opts: opts}
}

// UploadFile uploads a file from disk. name defaults to the basename.
func (e *Engine) UploadFile(ctx context.Context, fsPath string, parentID int64, name string) (*Result, error) {
	if name == "" {
		name = filepath.Base(fsPath)
	}

	f, err := os.Open(fsPath)
	if err != nil {
		return nil, fmt.Errorf("uploader: opening %s: %w", fsPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("uploader: stat %s: %w", fsPath, err)
	}

	return e.Upload(ctx, f, info.Size(), parentID, name, "")
}

// Upload runs one upload attempt: dedup check, slice transfer, completion.
// etag may carry a precomputed content hash; when empty it is computed by
// reading src once. src must remain readable for the whole attempt.
func (e *Engine) Upload(
	ctx context.Context, src io.ReaderAt, size int64, parentID int64, name, etag string,
) (*Result, error) {
	if err := ValidateFilename(name, e.opts.AllowDirQualified); err != nil {
		return nil, err
	}

	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", pan.ErrValidation, size)
	}

	if etag == "" {
		var err error
		if etag, err = ComputeEtag(io.NewSectionReader(src, 0, size)); err != nil {
			return nil, err
		}
	}

	session, err := e.api.CreateFile(ctx, pan.CreateFileRequest{
		ParentID:   parentID,
		Filename:   name,
		Etag:       etag,
		Size:       size,
		Duplicate:  e.opts.Duplicate,
		ContainDir: e.opts.AllowDirQualified,
	})
	if err != nil {
		if recovered := e.reconcile(ctx, parentID, name, size, err); recovered != nil {
			return recovered, nil
		}

		return nil, err
	}

	if session.Reused {
		e.logger.Info("instant upload hit, no bytes transferred",
			slog.String("filename", name),
			slog.Int64("file_id", session.FileID),
		)

		return &Result{FileID: session.FileID, Filename: name, Size: size, Reused: true}, nil
	}

	if err := e.transferSlices(ctx, src, size, session); err != nil {
		return nil, err
	}

	fileID, err := e.complete(ctx, session.PreuploadID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("upload complete",
		slog.String("filename", name),
		slog.Int64("file_id", fileID),
		slog.Int64("size", size),
	)

	return &Result{FileID: fileID, Filename: name, Size: size, Reused: false}, nil
}

// transferSlices sends every slice to the session's servers, round-robin,
// with a bounded worker pool. All slices must succeed before returning;
// one failure cancels the remaining in-flight slices and the attempt.
func (e *Engine) transferSlices(ctx context.Context, src io.ReaderAt, size int64, session *pan.UploadSession) error {
	if size == 0 {
		// ceil(0/K) = 0: nothing to send, straight to completion.
		return nil
	}

	if session.SliceSize <= 0 {
		return fmt.Errorf("%w: pre-upload returned slice size %d", pan.ErrUploadFailed, session.SliceSize)
	}

	if len(session.Servers) == 0 {
		return fmt.Errorf("%w: pre-upload returned no upload servers", pan.ErrUploadFailed)
	}

	sliceSize := session.SliceSize
	numSlices := (size + sliceSize - 1) / sliceSize

	workers := e.opts.Workers
	if workers > len(session.Servers) {
		workers = len(session.Servers)
	}

	e.logger.Debug("starting slice transfer",
		slog.Int64("slices", numSlices),
		slog.Int64("slice_size", sliceSize),
		slog.Int("workers", workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for n := int64(1); n <= numSlices; n++ {
		if gctx.Err() != nil {
			break
		}

		sliceNo := n
		server := session.Servers[(sliceNo-1)%int64(len(session.Servers))]
		offset := (sliceNo - 1) * sliceSize

		length := sliceSize
		if remaining := size - offset; remaining < length {
			length = remaining
		}

		g.Go(func() error {
			return e.sendSlice(gctx, src, session.PreuploadID, server, sliceNo, offset, length)
		})
	}

	return g.Wait()
}

// sendSlice reads one slice into a buffer, checksums it, and posts it. The
// buffer lives only for this round-trip.
func (e *Engine) sendSlice(
	ctx context.Context, src io.ReaderAt, preuploadID, server string, sliceNo, offset, length int64,
) error {
	buf := make([]byte, length)
	if _, err := src.ReadAt(buf, offset); err != nil && err != io.EOF {
		return fmt.Errorf("uploader: reading slice %d: %w", sliceNo, err)
	}

	sum := md5.Sum(buf) //nolint:gosec // vendor protocol checksum
	sliceMD5 := hex.EncodeToString(sum[:])

	if err := e.api.UploadSlice(ctx, server, preuploadID, sliceNo, sliceMD5, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("slice %d to %s: %w", sliceNo, server, err)
	}

	e.logger.Debug("slice transferred",
		slog.Int64("slice_no", sliceNo),
		slog.String("server", server),
	)

	return nil
}

// errVerifyPending drives the polling loop when the server reports the
// session as not yet completed without a business code.
var errVerifyPending = errors.New("uploader: server still verifying")

// complete polls the completion endpoint with a fixed delay until the
// server reports the file assembled, up to the configured ceiling. The
// verify-pending business code is excluded from transport retry here so
// the two retry authorities cannot compound.
func (e *Engine) complete(ctx context.Context, preuploadID string) (int64, error) {
	var (
		fileID   int64
		attempts int
	)

	backoff := retry.WithMaxRetries(uint64(e.opts.CompleteRetries), retry.NewConstant(e.opts.CompleteDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		res, err := e.api.UploadComplete(ctx, preuploadID, true)
		if err != nil {
			if pan.BusinessCode(err) == pan.CodeVerifyPending {
				e.logger.Debug("verification pending",
					slog.Int("attempt", attempts),
				)

				return retry.RetryableError(err)
			}

			return err
		}

		if !res.Completed {
			return retry.RetryableError(errVerifyPending)
		}

		fileID = res.FileID

		return nil
	})
	if err != nil {
		if errors.Is(err, errVerifyPending) || pan.BusinessCode(err) == pan.CodeVerifyPending {
			return 0, fmt.Errorf("%w: verification did not finish after %d attempts", pan.ErrUploadFailed, attempts)
		}

		return 0, fmt.Errorf("%w: completing upload: %v", pan.ErrUploadFailed, err)
	}

	return fileID, nil
}

// reconcile is the best-effort recovery for a failed pre-upload call: if
// the destination directory already holds a same-name/same-size entry, a
// previous attempt likely finished and this one is an idempotent retry.
// Returns nil when no match is found; the caller then surfaces the
// original error. Validation failures are never reconciled.
func (e *Engine) reconcile(ctx context.Context, parentID int64, name string, size int64, cause error) *Result {
	if e.opts.DisableReconcile || errors.Is(cause, pan.ErrValidation) {
		return nil
	}

	var lastFileID int64

	for page := 0; page < probePageCap; page++ {
		list, err := e.api.ListFiles(ctx, pan.ListParams{ParentID: parentID, LastFileID: lastFileID})
		if err != nil {
			e.logger.Debug("reconciliation probe failed",
				slog.String("error", err.Error()),
			)

			return nil
		}

		for i := range list.Files {
			f := &list.Files[i]
			if !f.IsFolder && f.Filename == name && f.Size == size && !f.Trashed {
				e.logger.Info("pre-upload failed but file already present, treating as uploaded",
					slog.String("filename", name),
					slog.Int64("file_id", f.FileID),
					slog.String("cause", cause.Error()),
				)

				return &Result{FileID: f.FileID, Filename: name, Size: size, Reused: true}
			}
		}

		if list.NextLastFileID == pan.LastPageMarker || list.NextLastFileID == 0 {
			return nil
		}

		lastFileID = list.NextLastFileID
	}

	return nil
}
