package couch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "hsn2", srv.Client())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient("ftp://example.com", "hsn2", nil)
	require.Error(t, err)

	_, err = NewClient("http://example.com", "", nil)
	require.Error(t, err)

	require.Equal(t, "http://localhost:5984/", ServerURL("localhost", 5984))
	_, err = NewClient(ServerURL("localhost", 5984), "hsn2", nil)
	require.NoError(t, err)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, []string{"/_up", "/"}, r.URL.Path)
		writeJSON(w, http.StatusOK, `{"status":"ok"}`)
	}))
	require.NoError(t, c.Ping(context.Background()))
}

func TestPing_Down(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{"error":"unavailable","reason":"down"}`)
	}))
	require.Error(t, c.Ping(context.Background()))
}

func TestJobDocuments_Pages(t *testing.T) {
	var requests []findRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/hsn2/_find", r.URL.Path)

		var req findRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		switch req.Bookmark {
		case "":
			writeJSON(w, http.StatusOK, `{"docs":[
				{"_id":"obj:1","type":"url","job":7,"classification":"benign","url_original":"http://a/"},
				{"_id":"obj:2","type":"file","job":7,"classification":"malicious","mime type":"text/plain","parent":1}
			],"bookmark":"b1"}`)
		case "b1":
			writeJSON(w, http.StatusOK, `{"docs":[{"_id":"job:7","type":"job","job":7}],"bookmark":"b2"}`)
		default:
			t.Errorf("unexpected bookmark %q", req.Bookmark)
		}
	}))
	c.PageSize = 2

	docs, err := c.JobDocuments(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	require.Equal(t, "obj:2", docs[1].ID)
	require.Equal(t, "1", docs[1].Parent.String())
	require.Equal(t, "text/plain", docs[1].MimeType.String())

	require.Len(t, requests, 2)
	require.Equal(t, 2, requests[0].Limit)
	or, ok := requests[0].Selector["$or"].([]interface{})
	require.True(t, ok)
	require.Len(t, or, 2, "numeric job ids match both encodings")
}

func TestJobSelector_NonNumeric(t *testing.T) {
	sel := jobSelector("abc")
	require.Len(t, sel["$or"], 1)
}

func TestJobDocuments_Error(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":"not_found","reason":"Database does not exist."}`)
	}))

	_, err := c.JobDocuments(context.Background(), "7")
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, kivik.HTTPStatus(err))
}

func TestDeployViews_RetriesOnConflict(t *testing.T) {
	var puts []DesignDoc
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hsn2/_design/hr", r.URL.Path)
		switch r.Method {
		case http.MethodPut:
			var doc DesignDoc
			require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
			puts = append(puts, doc)
			if doc.Rev != "1-abc" {
				writeJSON(w, http.StatusConflict, `{"error":"conflict","reason":"Document update conflict."}`)
				return
			}
			writeJSON(w, http.StatusCreated, `{"ok":true,"id":"_design/hr","rev":"2-def"}`)
		case http.MethodHead, http.MethodGet:
			w.Header().Set("ETag", `"1-abc"`)
			writeJSON(w, http.StatusOK, `{"_id":"_design/hr","_rev":"1-abc"}`)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	design, err := DesignDocument()
	require.NoError(t, err)

	rev, err := c.DeployViews(context.Background(), design)
	require.NoError(t, err)
	require.Equal(t, "2-def", rev)
	require.Len(t, puts, 2)
	require.Empty(t, puts[0].Rev)
	require.Equal(t, "1-abc", puts[1].Rev)
	require.Empty(t, design.Rev, "caller's document is not modified")
}

func TestDeployViews_OtherErrors(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusUnauthorized, `{"error":"unauthorized","reason":"You are not a server admin."}`)
	}))

	design, err := DesignDocument()
	require.NoError(t, err)

	_, err = c.DeployViews(context.Background(), design)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, kivik.HTTPStatus(err))
	require.Equal(t, 1, calls)
}

func TestDesignDocument(t *testing.T) {
	design, err := DesignDocument()
	require.NoError(t, err)
	require.Equal(t, DesignID, design.ID)
	require.Equal(t, "javascript", design.Language)
	require.Len(t, design.Views, 2)
	require.NotEmpty(t, design.Views[ListView].Map)
	require.Empty(t, design.Views[ListView].Reduce)
	require.NotEmpty(t, design.Views[ClassificationView].Reduce)
}

func TestLoadViewDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "by_origin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "by_origin", "map.js"), []byte("function (doc) {}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0644))

	design, err := LoadViewDir(dir)
	require.NoError(t, err)
	require.Equal(t, map[string]View{"by_origin": {Map: "function (doc) {}"}}, design.Views)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "broken"), 0755))
	_, err = LoadViewDir(dir)
	require.Error(t, err)

	_, err = LoadViewDir(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
