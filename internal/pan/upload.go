package pan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

// Upload endpoints. Slice uploads go to the per-session servers returned by
// the create call, not to the base URL.
const (
	createFileEndpoint     = "/upload/v2/file/create"
	uploadSlicePath        = "/upload/v2/file/slice"
	uploadCompleteEndpoint = "/upload/v2/file/upload_complete"
)

// CreateFileRequest is the pre-upload (instant upload) payload. Etag is the
// hex MD5 of the full content; when the server already knows the hash the
// response reuses the stored bytes and no transfer happens.
type CreateFileRequest struct {
	ParentID   int64
	Filename   string
	Etag       string
	Size       int64
	Duplicate  int // DuplicateKeepBoth or DuplicateOverwrite
	ContainDir bool
}

// UploadCompleteResult is the outcome of one completion call.
type UploadCompleteResult struct {
	Completed bool
	FileID    int64
}

// CreateFile performs the pre-upload call: content-addressed dedup check
// plus, on a miss, allocation of an upload session with slice size and
// upload servers.
func (c *Client) CreateFile(ctx context.Context, req CreateFileRequest) (*UploadSession, error) {
	body := map[string]any{
		"parentFileID": req.ParentID,
		"filename":     req.Filename,
		"etag":         req.Etag,
		"size":         req.Size,
		"duplicate":    req.Duplicate,
		"containDir":   req.ContainDir,
	}

	data, err := c.Do(ctx, http.MethodPost, createFileEndpoint, nil, body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		FileID      int64    `json:"fileID"`
		PreuploadID string   `json:"preuploadID"`
		Reuse       bool     `json:"reuse"`
		SliceSize   int64    `json:"sliceSize"`
		Servers     []string `json:"servers"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("pan: decoding create file response: %w", err)
	}

	session := &UploadSession{
		PreuploadID: payload.PreuploadID,
		SliceSize:   payload.SliceSize,
		Servers:     payload.Servers,
		Reused:      payload.Reuse,
		FileID:      payload.FileID,
	}

	c.logger.Info("pre-upload created",
		slog.String("filename", req.Filename),
		slog.Int64("size", req.Size),
		slog.Bool("reuse", session.Reused),
		slog.Int64("slice_size", session.SliceSize),
		slog.Int("servers", len(session.Servers)),
	)

	return session, nil
}

// UploadSlice POSTs one slice's raw bytes to the given upload server as a
// multipart payload. Unlike Do, this does not retry: the engine aborts the
// whole attempt on any slice failure, and a partially-consumed reader is
// not safe to re-send.
func (c *Client) UploadSlice(
	ctx context.Context, server, preuploadID string, sliceNo int64, sliceMD5 string, slice io.Reader,
) error {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"preuploadID": preuploadID,
		"sliceNo":     strconv.FormatInt(sliceNo, 10),
		"sliceMD5":    sliceMD5,
	}

	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return fmt.Errorf("pan: building slice form: %w", err)
		}
	}

	part, err := mw.CreateFormFile("slice", "slice")
	if err != nil {
		return fmt.Errorf("pan: building slice form: %w", err)
	}

	if _, err := io.Copy(part, slice); err != nil {
		return fmt.Errorf("pan: buffering slice %d: %w", sliceNo, err)
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("pan: finalizing slice form: %w", err)
	}

	sliceURL := strings.TrimRight(server, "/") + uploadSlicePath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sliceURL, &buf)
	if err != nil {
		return fmt.Errorf("pan: creating slice request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Platform", platformHeader)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Debug("uploading slice",
		slog.String("server", server),
		slog.Int64("slice_no", sliceNo),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: slice %d: %v", ErrNetwork, sliceNo, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("%w: reading slice response: %v", ErrNetwork, readErr)
	}

	if _, err := c.classifyResponse(resp, respBody); err != nil {
		return err
	}

	return nil
}

// UploadComplete asks the server to assemble and verify the session.
// bypassVerifyRetry excludes the verify-pending code from transport retry,
// so the caller's own fixed-delay polling is the single authority for that
// state.
func (c *Client) UploadComplete(ctx context.Context, preuploadID string, bypassVerifyRetry bool) (*UploadCompleteResult, error) {
	body := map[string]any{"preuploadID": preuploadID}

	var opts []CallOption
	if bypassVerifyRetry {
		opts = append(opts, WithoutRetryOn(CodeVerifyPending))
	}

	data, err := c.Do(ctx, http.MethodPost, uploadCompleteEndpoint, nil, body, opts...)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Completed bool  `json:"completed"`
		FileID    int64 `json:"fileID"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("pan: decoding upload complete response: %w", err)
	}

	return &UploadCompleteResult{Completed: payload.Completed, FileID: payload.FileID}, nil
}
