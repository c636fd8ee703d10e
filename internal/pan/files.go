package pan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// API endpoints for file metadata operations.
const (
	listEndpoint         = "/api/v2/file/list"
	infosEndpoint        = "/api/v1/file/infos"
	downloadInfoEndpoint = "/api/v1/file/download_info"
	mkdirEndpoint        = "/upload/v1/file/mkdir"
)

// maxListLimit is the server-side page size ceiling.
const maxListLimit = 100

// ListFiles returns one page of a directory listing, or of a global search
// when params.SearchData is set (the server then ignores ParentID).
func (c *Client) ListFiles(ctx context.Context, params ListParams) (*FileListPage, error) {
	limit := params.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("parentFileId", strconv.FormatInt(params.ParentID, 10))

	if params.SearchData != "" {
		query.Set("searchData", params.SearchData)
		query.Set("searchMode", strconv.Itoa(params.SearchMode))
	}

	if params.LastFileID != 0 {
		query.Set("lastFileId", strconv.FormatInt(params.LastFileID, 10))
	}

	data, err := c.Do(ctx, http.MethodGet, listEndpoint, query, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		LastFileID int64        `json:"lastFileId"`
		FileList   []fileRecord `json:"fileList"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("pan: decoding file list: %w", err)
	}

	page := &FileListPage{
		Files:          make([]File, 0, len(payload.FileList)),
		NextLastFileID: payload.LastFileID,
	}

	for i := range payload.FileList {
		page.Files = append(page.Files, payload.FileList[i].toFile())
	}

	c.logger.Debug("listed files",
		slog.Int64("parent_id", params.ParentID),
		slog.Int("count", len(page.Files)),
		slog.Int64("next_last_file_id", page.NextLastFileID),
	)

	return page, nil
}

// FileInfos fetches metadata for a batch of file IDs.
func (c *Client) FileInfos(ctx context.Context, fileIDs []int64) ([]File, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("%w: fileIDs must be non-empty", ErrValidation)
	}

	body := map[string]any{"fileIds": fileIDs}

	data, err := c.Do(ctx, http.MethodPost, infosEndpoint, nil, body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		FileList []fileRecord `json:"fileList"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("pan: decoding file infos: %w", err)
	}

	files := make([]File, 0, len(payload.FileList))
	for i := range payload.FileList {
		files = append(files, payload.FileList[i].toFile())
	}

	return files, nil
}

// DownloadInfo returns the ephemeral download URL for a file. Requesting a
// folder is a vendor-side error and surfaces as an APIError.
func (c *Client) DownloadInfo(ctx context.Context, fileID int64) (*DownloadInfo, error) {
	query := url.Values{}
	query.Set("fileId", strconv.FormatInt(fileID, 10))

	data, err := c.Do(ctx, http.MethodGet, downloadInfoEndpoint, query, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		DownloadURL string `json:"downloadUrl"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("pan: decoding download info: %w", err)
	}

	return &DownloadInfo{URL: payload.DownloadURL}, nil
}

// Mkdir creates a single directory under parentID (0 is the root) and
// returns its ID. The vendor rejects duplicate names within a parent.
func (c *Client) Mkdir(ctx context.Context, name string, parentID int64) (int64, error) {
	body := map[string]any{"name": name, "parentID": parentID}

	data, err := c.Do(ctx, http.MethodPost, mkdirEndpoint, nil, body)
	if err != nil {
		return 0, err
	}

	var payload struct {
		DirID int64 `json:"dirID"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("pan: decoding mkdir response: %w", err)
	}

	c.logger.Info("created directory",
		slog.String("name", name),
		slog.Int64("parent_id", parentID),
		slog.Int64("dir_id", payload.DirID),
	)

	return payload.DirID, nil
}
