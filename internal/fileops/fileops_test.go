package fileops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binghezhouke/123/internal/dircache"
	"github.com/binghezhouke/123/internal/pan"
)

// fakeAPI serves canned file records and counts calls.
type fakeAPI struct {
	files map[int64]pan.File

	// children maps parentID to its directory contents.
	children map[int64][]pan.File

	mkdirFunc func(name string, parentID int64) (int64, error)

	infosCalls int
	listCalls  int
	mkdirCalls int
}

func (f *fakeAPI) ListFiles(_ context.Context, params pan.ListParams) (*pan.FileListPage, error) {
	f.listCalls++

	return &pan.FileListPage{
		Files:          f.children[params.ParentID],
		NextLastFileID: pan.LastPageMarker,
	}, nil
}

func (f *fakeAPI) FileInfos(_ context.Context, fileIDs []int64) ([]pan.File, error) {
	f.infosCalls++

	out := make([]pan.File, 0, len(fileIDs))

	for _, id := range fileIDs {
		if file, ok := f.files[id]; ok {
			out = append(out, file)
		}
	}

	return out, nil
}

func (f *fakeAPI) DownloadInfo(context.Context, int64) (*pan.DownloadInfo, error) {
	return &pan.DownloadInfo{URL: "https://dl.example.com/x"}, nil
}

func (f *fakeAPI) Mkdir(_ context.Context, name string, parentID int64) (int64, error) {
	f.mkdirCalls++

	if f.mkdirFunc != nil {
		return f.mkdirFunc(name, parentID)
	}

	return 0, errors.New("mkdir not configured")
}

func TestInfosCacheMiss(t *testing.T) {
	api := &fakeAPI{files: map[int64]pan.File{
		10: {FileID: 10, Filename: "a.txt"},
		11: {FileID: 11, Filename: "b.txt"},
	}}

	s := New(api, dircache.NewMemory(time.Hour), nil)

	files, err := s.Infos(context.Background(), []int64{10, 11})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, 1, api.infosCalls)

	// Second lookup is fully cache-served.
	files, err = s.Infos(context.Background(), []int64{10, 11})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, 1, api.infosCalls)
}

func TestInfosPartialCacheHit(t *testing.T) {
	api := &fakeAPI{files: map[int64]pan.File{
		10: {FileID: 10, Filename: "a.txt"},
		11: {FileID: 11, Filename: "b.txt"},
	}}

	cache := dircache.NewMemory(time.Hour)
	require.NoError(t, cache.Put(context.Background(), &pan.File{FileID: 10, Filename: "a.txt"}))

	s := New(api, cache, nil)

	files, err := s.Infos(context.Background(), []int64{10, 11})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Filename)
	assert.Equal(t, "b.txt", files[1].Filename)
	assert.Equal(t, 1, api.infosCalls)
}

func TestInfosNilCache(t *testing.T) {
	api := &fakeAPI{files: map[int64]pan.File{10: {FileID: 10, Filename: "a.txt"}}}
	s := New(api, nil, nil)

	files, err := s.Infos(context.Background(), []int64{10})
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestInfosOmitsUnknownIDs(t *testing.T) {
	api := &fakeAPI{files: map[int64]pan.File{10: {FileID: 10, Filename: "a.txt"}}}
	s := New(api, nil, nil)

	files, err := s.Infos(context.Background(), []int64{10, 404})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(10), files[0].FileID)
}

func TestInfosEmptyInput(t *testing.T) {
	s := New(&fakeAPI{}, nil, nil)

	_, err := s.Infos(context.Background(), nil)
	assert.ErrorIs(t, err, pan.ErrValidation)
}

func TestPath(t *testing.T) {
	api := &fakeAPI{files: map[int64]pan.File{
		1: {FileID: 1, Filename: "docs", ParentID: RootID, IsFolder: true},
		2: {FileID: 2, Filename: "2026", ParentID: 1, IsFolder: true},
		3: {FileID: 3, Filename: "report.pdf", ParentID: 2},
	}}

	s := New(api, dircache.NewMemory(time.Hour), nil)

	path, err := s.Path(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "/docs/2026/report.pdf", path)
}

func TestPathRootChild(t *testing.T) {
	api := &fakeAPI{files: map[int64]pan.File{
		1: {FileID: 1, Filename: "top.txt", ParentID: RootID},
	}}

	s := New(api, nil, nil)

	path, err := s.Path(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "/top.txt", path)
}

func TestPathCyclicParentChain(t *testing.T) {
	api := &fakeAPI{files: map[int64]pan.File{
		1: {FileID: 1, Filename: "a", ParentID: 2},
		2: {FileID: 2, Filename: "b", ParentID: 1},
	}}

	s := New(api, nil, nil)

	_, err := s.Path(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
}

func TestMkdirAllCreatesEverySegment(t *testing.T) {
	nextID := int64(100)
	api := &fakeAPI{
		mkdirFunc: func(string, int64) (int64, error) {
			nextID++
			return nextID, nil
		},
	}

	s := New(api, nil, nil)

	dirID, err := s.MkdirAll(context.Background(), "/a/b/c/", RootID)
	require.NoError(t, err)
	assert.Equal(t, int64(103), dirID)
	assert.Equal(t, 3, api.mkdirCalls)
}

func TestMkdirAllReusesExisting(t *testing.T) {
	api := &fakeAPI{
		children: map[int64][]pan.File{
			RootID: {{FileID: 7, Filename: "docs", IsFolder: true}},
		},
		mkdirFunc: func(name string, parentID int64) (int64, error) {
			if name == "docs" {
				return 0, &pan.APIError{Code: 1, Message: "duplicate filename"}
			}

			return 42, nil
		},
	}

	s := New(api, nil, nil)

	dirID, err := s.MkdirAll(context.Background(), "docs/new", RootID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), dirID)
}

func TestMkdirAllRejectsFileCollision(t *testing.T) {
	api := &fakeAPI{
		children: map[int64][]pan.File{
			RootID: {{FileID: 7, Filename: "docs", IsFolder: false}},
		},
		mkdirFunc: func(string, int64) (int64, error) {
			return 0, &pan.APIError{Code: 1, Message: "duplicate filename"}
		},
	}

	s := New(api, nil, nil)

	_, err := s.MkdirAll(context.Background(), "docs", RootID)
	require.Error(t, err)
	assert.Equal(t, 1, pan.BusinessCode(err))
}

func TestFindChild(t *testing.T) {
	api := &fakeAPI{
		children: map[int64][]pan.File{
			5: {
				{FileID: 20, Filename: "gone.txt", Trashed: true},
				{FileID: 21, Filename: "here.txt"},
			},
		},
	}

	s := New(api, nil, nil)

	f, err := s.FindChild(context.Background(), 5, "here.txt")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, int64(21), f.FileID)

	// Trashed entries are invisible.
	f, err = s.FindChild(context.Background(), 5, "gone.txt")
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = s.FindChild(context.Background(), 5, "missing.txt")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSearchMode(t *testing.T) {
	var got pan.ListParams

	api := &capturingAPI{onList: func(params pan.ListParams) { got = params }}
	s := New(api, nil, nil)

	_, err := s.Search(context.Background(), "report", true, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, "report", got.SearchData)
	assert.Equal(t, pan.SearchModeExact, got.SearchMode)
	assert.Equal(t, 50, got.Limit)

	_, err = s.Search(context.Background(), "report", false, 50, 0)
	require.NoError(t, err)
	assert.Zero(t, got.SearchMode)
}

func TestListAllDrainsPages(t *testing.T) {
	pages := []*pan.FileListPage{
		{Files: []pan.File{{FileID: 1}, {FileID: 2}}, NextLastFileID: 2},
		{Files: []pan.File{{FileID: 3}}, NextLastFileID: pan.LastPageMarker},
	}

	var call int

	api := &capturingAPI{list: func(params pan.ListParams) (*pan.FileListPage, error) {
		page := pages[call]
		call++

		if call == 2 {
			// The cursor from page one must be echoed back.
			if params.LastFileID != 2 {
				return nil, errors.New("missing pagination cursor")
			}
		}

		return page, nil
	}}

	s := New(api, nil, nil)

	files, err := s.ListAll(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, 2, call)
}

func TestDownloadURL(t *testing.T) {
	s := New(&fakeAPI{}, nil, nil)

	url, err := s.DownloadURL(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "https://dl.example.com/x", url)
}

// capturingAPI is a minimal API fake with injectable listing behavior.
type capturingAPI struct {
	onList func(pan.ListParams)
	list   func(pan.ListParams) (*pan.FileListPage, error)
}

func (c *capturingAPI) ListFiles(_ context.Context, params pan.ListParams) (*pan.FileListPage, error) {
	if c.onList != nil {
		c.onList(params)
	}

	if c.list != nil {
		return c.list(params)
	}

	return &pan.FileListPage{NextLastFileID: pan.LastPageMarker}, nil
}

func (c *capturingAPI) FileInfos(context.Context, []int64) ([]pan.File, error) {
	return nil, nil
}

func (c *capturingAPI) DownloadInfo(context.Context, int64) (*pan.DownloadInfo, error) {
	return nil, errors.New("not configured")
}

func (c *capturingAPI) Mkdir(context.Context, string, int64) (int64, error) {
	return 0, errors.New("not configured")
}
