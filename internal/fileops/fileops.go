// Package fileops provides the caller-side glue over the raw API: cached
// metadata lookups, full path resolution, exhaustive listing, and
// create-or-find directory trees. It is simple request/response plumbing;
// the transport underneath owns all retry behavior.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/binghezhouke/123/internal/dircache"
	"github.com/binghezhouke/123/internal/pan"
)

// API is the slice of the transport this service needs; *pan.Client
// satisfies it.
type API interface {
	ListFiles(ctx context.Context, params pan.ListParams) (*pan.FileListPage, error)
	FileInfos(ctx context.Context, fileIDs []int64) ([]pan.File, error)
	DownloadInfo(ctx context.Context, fileID int64) (*pan.DownloadInfo, error)
	Mkdir(ctx context.Context, name string, parentID int64) (int64, error)
}

// RootID is the parent identifier of the drive root.
const RootID = 0

// maxPathDepth bounds the parent walk in Path so a corrupt parent chain
// cannot loop forever.
const maxPathDepth = 64

// maxListPages bounds ListAll pagination.
const maxListPages = 100

// Service bundles the API with an optional metadata cache. A nil cache
// disables caching; every cache failure degrades to a miss.
type Service struct {
	api    API
	cache  dircache.Cache
	logger *slog.Logger
}

// New creates a Service. cache may be nil.
func New(api API, cache dircache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{api: api, cache: cache, logger: logger}
}

// Info returns metadata for one file, consulting the cache first.
func (s *Service) Info(ctx context.Context, fileID int64) (*pan.File, error) {
	files, err := s.Infos(ctx, []int64{fileID})
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("pan: file %d not found", fileID)
	}

	return &files[0], nil
}

// Infos returns metadata for a batch of files, serving what it can from
// the cache and fetching the rest in one API call. Results follow the
// input order; IDs the server does not know are omitted.
func (s *Service) Infos(ctx context.Context, fileIDs []int64) ([]pan.File, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("%w: fileIDs must be non-empty", pan.ErrValidation)
	}

	byID := make(map[int64]pan.File, len(fileIDs))

	var missing []int64

	for _, id := range fileIDs {
		if f, ok := s.cacheGet(ctx, id); ok {
			byID[id] = *f
			continue
		}

		missing = append(missing, id)
	}

	if len(missing) > 0 {
		fetched, err := s.api.FileInfos(ctx, missing)
		if err != nil {
			return nil, err
		}

		for i := range fetched {
			byID[fetched[i].FileID] = fetched[i]
			s.cachePut(ctx, &fetched[i])
		}
	}

	out := make([]pan.File, 0, len(fileIDs))

	for _, id := range fileIDs {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		}
	}

	return out, nil
}

// Path resolves the full "/a/b/c" path of a file by walking parent IDs up
// to the root. Intermediate lookups go through the cache.
func (s *Service) Path(ctx context.Context, fileID int64) (string, error) {
	var segments []string

	current := fileID

	for depth := 0; depth < maxPathDepth; depth++ {
		f, err := s.Info(ctx, current)
		if err != nil {
			return "", fmt.Errorf("resolving path of %d: %w", fileID, err)
		}

		segments = append(segments, f.Filename)

		if f.ParentID == RootID {
			// Reverse into root-first order.
			for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
				segments[i], segments[j] = segments[j], segments[i]
			}

			return "/" + strings.Join(segments, "/"), nil
		}

		current = f.ParentID
	}

	return "", fmt.Errorf("pan: parent chain of file %d exceeds depth %d", fileID, maxPathDepth)
}

// ListAll drains every page of a directory listing.
func (s *Service) ListAll(ctx context.Context, parentID int64) ([]pan.File, error) {
	var (
		all        []pan.File
		lastFileID int64
	)

	for page := 0; page < maxListPages; page++ {
		list, err := s.api.ListFiles(ctx, pan.ListParams{ParentID: parentID, LastFileID: lastFileID})
		if err != nil {
			return nil, err
		}

		all = append(all, list.Files...)

		if list.NextLastFileID == pan.LastPageMarker || list.NextLastFileID == 0 {
			return all, nil
		}

		lastFileID = list.NextLastFileID
	}

	s.logger.Warn("listing stopped at page cap",
		slog.Int64("parent_id", parentID),
		slog.Int("pages", maxListPages),
	)

	return all, nil
}

// Search runs one page of a global search.
func (s *Service) Search(ctx context.Context, term string, exact bool, limit int, lastFileID int64) (*pan.FileListPage, error) {
	mode := 0
	if exact {
		mode = pan.SearchModeExact
	}

	return s.api.ListFiles(ctx, pan.ListParams{
		SearchData: term,
		SearchMode: mode,
		Limit:      limit,
		LastFileID: lastFileID,
	})
}

// FindChild looks for a direct child with the given name under parentID.
// Returns nil when absent.
func (s *Service) FindChild(ctx context.Context, parentID int64, name string) (*pan.File, error) {
	files, err := s.ListAll(ctx, parentID)
	if err != nil {
		return nil, err
	}

	for i := range files {
		if files[i].Filename == name && !files[i].Trashed {
			return &files[i], nil
		}
	}

	return nil, nil //nolint:nilnil // absence is not an error
}

// MkdirAll creates each missing segment of a slash-separated path under
// parentID and returns the final directory's ID. A segment the vendor
// refuses to create (duplicate name) is resolved by looking it up — the
// create-or-find pattern makes the call idempotent.
func (s *Service) MkdirAll(ctx context.Context, path string, parentID int64) (int64, error) {
	current := parentID

	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment == "" {
			continue
		}

		dirID, err := s.api.Mkdir(ctx, segment, current)
		if err == nil {
			current = dirID
			continue
		}

		var apiErr *pan.APIError
		if !errors.As(err, &apiErr) {
			return 0, err
		}

		existing, findErr := s.FindChild(ctx, current, segment)
		if findErr != nil || existing == nil || !existing.IsFolder {
			return 0, fmt.Errorf("creating directory %q: %w", segment, err)
		}

		s.logger.Debug("directory already exists, reusing",
			slog.String("name", segment),
			slog.Int64("dir_id", existing.FileID),
		)

		current = existing.FileID
	}

	return current, nil
}

// DownloadURL returns the ephemeral download URL for a file.
func (s *Service) DownloadURL(ctx context.Context, fileID int64) (string, error) {
	info, err := s.api.DownloadInfo(ctx, fileID)
	if err != nil {
		return "", err
	}

	return info.URL, nil
}

// InvalidateCache drops one file's cached record, if a cache is present.
func (s *Service) InvalidateCache(ctx context.Context, fileID int64) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Invalidate(ctx, fileID); err != nil {
		s.logger.Warn("cache invalidate failed",
			slog.Int64("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) cacheGet(ctx context.Context, fileID int64) (*pan.File, bool) {
	if s.cache == nil {
		return nil, false
	}

	f, ok, err := s.cache.Get(ctx, fileID)
	if err != nil {
		s.logger.Warn("cache read failed",
			slog.Int64("file_id", fileID),
			slog.String("error", err.Error()),
		)

		return nil, false
	}

	return f, ok
}

func (s *Service) cachePut(ctx context.Context, f *pan.File) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Put(ctx, f); err != nil {
		s.logger.Warn("cache write failed",
			slog.Int64("file_id", f.FileID),
			slog.String("error", err.Error()),
		)
	}
}
