package pan

import (
	"encoding/json"
	"time"
)

// File type discriminator values in the vendor API.
const (
	typeFile   = 0
	typeFolder = 1
)

// LastPageMarker is the lastFileId value the list endpoint returns on the
// final page.
const LastPageMarker int64 = -1

// File represents one file or folder record as returned by the listing and
// metadata endpoints. It is an immutable value once received; caches may
// copy it but this package never mutates one.
type File struct {
	FileID   int64
	Filename string
	Size     int64
	Etag     string // MD5 content hash, hex
	ParentID int64
	IsFolder bool
	Category int
	Status   int
	Hidden   bool
	Starred  bool
	Trashed  bool
	CreateAt string
	UpdateAt string
}

// fileRecord is the raw wire shape. Absent fields decode to their zero
// values, which are the documented defaults.
type fileRecord struct {
	FileID   int64  `json:"fileId"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Type     int    `json:"type"`
	Etag     string `json:"etag"`
	ParentID int64  `json:"parentFileId"`
	Category int    `json:"category"`
	Status   int    `json:"status"`
	Hidden   int    `json:"hidden"` // 0/1 on the wire
	Starred  int    `json:"starred"`
	Trashed  int    `json:"trashed"`
	CreateAt string `json:"createAt"`
	UpdateAt string `json:"updateAt"`
}

func (r *fileRecord) toFile() File {
	return File{
		FileID:   r.FileID,
		Filename: r.Filename,
		Size:     r.Size,
		Etag:     r.Etag,
		ParentID: r.ParentID,
		IsFolder: r.Type == typeFolder,
		Category: r.Category,
		Status:   r.Status,
		Hidden:   r.Hidden != 0,
		Starred:  r.Starred != 0,
		Trashed:  r.Trashed != 0,
		CreateAt: r.CreateAt,
		UpdateAt: r.UpdateAt,
	}
}

// FileListPage is one page of a listing or search. NextLastFileID carries
// the pagination cursor; LastPageMarker means no further pages.
type FileListPage struct {
	Files          []File
	NextLastFileID int64
}

// ListParams selects what ListFiles returns. A non-empty SearchData turns
// the call into a global search and the server ignores ParentID.
type ListParams struct {
	ParentID   int64
	Limit      int
	SearchData string
	SearchMode int // 0 = fuzzy, 1 = exact; only sent when SearchData is set
	LastFileID int64
}

// SearchModeExact requests exact-match search.
const SearchModeExact = 1

// Name-collision policies for uploads, as the create endpoint encodes them.
const (
	DuplicateKeepBoth  = 1
	DuplicateOverwrite = 2
)

// UploadSession is the ephemeral state of one upload attempt, produced by
// the pre-upload call and consumed entirely within that attempt. It is
// never persisted.
type UploadSession struct {
	PreuploadID string
	SliceSize   int64
	Servers     []string
	Reused      bool
	FileID      int64 // set on dedup hit
}

// envelope is the vendor's uniform response wrapper. Code zero (or a
// missing code field) means success and Data holds the payload.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// tokenResponse is the payload of the access-token endpoint. ExpiredAt is
// an absolute RFC 3339 timestamp and is preferred; ExpiresIn seconds is the
// fallback, defaulting to one hour when both are absent.
type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiredAt   string `json:"expiredAt"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// Credential is the single cached access-token record. It is usable only
// while now is more than the safety margin before ExpiresAt.
type Credential struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // epoch seconds
}

// Valid reports whether the credential is still usable under the given
// safety margin.
func (c *Credential) Valid(now time.Time, margin time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}

	return time.Unix(c.ExpiresAt, 0).Add(-margin).After(now)
}

// DownloadInfo carries the ephemeral pre-authenticated download URL for a
// file. Never log the URL.
type DownloadInfo struct {
	URL string
}
