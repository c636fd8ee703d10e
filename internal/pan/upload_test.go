package pan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/v2/file/create", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "backup.tar", body["filename"])
		assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", body["etag"])
		assert.Equal(t, float64(DuplicateKeepBoth), body["duplicate"])

		fmt.Fprint(w, `{"code":0,"message":"ok","data":{
			"fileID":0,"preuploadID":"pre-1","reuse":false,"sliceSize":16,
			"servers":["https://u1.example.com","https://u2.example.com"]}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, Options{})

	session, err := c.CreateFile(context.Background(), CreateFileRequest{
		ParentID:  0,
		Filename:  "backup.tar",
		Etag:      "d41d8cd98f00b204e9800998ecf8427e",
		Size:      48,
		Duplicate: DuplicateKeepBoth,
	})
	require.NoError(t, err)
	assert.False(t, session.Reused)
	assert.Equal(t, "pre-1", session.PreuploadID)
	assert.Equal(t, int64(16), session.SliceSize)
	assert.Len(t, session.Servers, 2)
}

func TestCreateFileDedupHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"message":"ok","data":{"fileID":321,"reuse":true}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, Options{})

	session, err := c.CreateFile(context.Background(), CreateFileRequest{
		Filename: "known.bin", Etag: "aa", Size: 10, Duplicate: DuplicateKeepBoth,
	})
	require.NoError(t, err)
	assert.True(t, session.Reused)
	assert.Equal(t, int64(321), session.FileID)
	assert.Empty(t, session.PreuploadID)
}

func TestUploadSlice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/v2/file/slice", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "pre-1", r.FormValue("preuploadID"))
		assert.Equal(t, "3", r.FormValue("sliceNo"))
		assert.Equal(t, "cafe", r.FormValue("sliceMD5"))

		part, _, err := r.FormFile("slice")
		require.NoError(t, err)
		defer part.Close()

		content, err := io.ReadAll(part)
		require.NoError(t, err)
		assert.Equal(t, "slice-bytes", string(content))

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("http://127.0.0.1:1", &staticToken{token: "test-token"}, Options{})

	err := c.UploadSlice(context.Background(), srv.URL, "pre-1", 3, "cafe", strings.NewReader("slice-bytes"))
	require.NoError(t, err)
}

func TestUploadSliceServerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":20104,"message":"slice md5 mismatch"}`)
	}))
	defer srv.Close()

	c := NewClient("http://127.0.0.1:1", &staticToken{token: "t"}, Options{})

	err := c.UploadSlice(context.Background(), srv.URL, "pre-1", 1, "bad", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, 20104, BusinessCode(err))
}

func TestUploadComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/v2/file/upload_complete", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pre-1", body["preuploadID"])

		fmt.Fprint(w, `{"code":0,"message":"ok","data":{"completed":true,"fileID":555}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, Options{})

	result, err := c.UploadComplete(context.Background(), "pre-1", true)
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, int64(555), result.FileID)
}

func TestUploadCompleteVerifyPendingBypassesTransportRetry(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"code":20103,"message":"file is validating"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, Options{MaxRetries: 5})

	_, err := c.UploadComplete(context.Background(), "pre-1", true)
	require.Error(t, err)
	assert.Equal(t, CodeVerifyPending, BusinessCode(err))
	assert.Equal(t, 1, calls)
}
