package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nanato/wp-github-updates/pkg/updates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositories(t *testing.T) {
	testData := []updates.Registration{
		{Type: updates.TypePlugin, Owner: "acme", Name: "widget", File: "widget/widget.php"},
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/repositories", r.URL.Path)
		assert.Equal(t, "admin-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewEncoder(w).Encode(testData))
	}))
	defer ts.Close()
	c := New(ts.URL+"/api/v1", "admin-token")
	repos, err := c.Repositories(context.Background())
	require.NoError(t, err)
	require.Equal(t, testData, repos)
}

func TestAddAndRemoveRepository(t *testing.T) {
	reqCount := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch reqCount {
		case 0:
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/repositories", r.URL.Path)
			var reg updates.Registration
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
			assert.Equal(t, "twentyfoo", reg.Slug)
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"ok":true}`)
		case 1:
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "/api/v1/repositories/3", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"repository not found"}`)
		}
		reqCount++
	}))
	defer ts.Close()
	c := New(ts.URL+"/api/v1", "admin-token")

	err := c.AddRepository(context.Background(), &updates.Registration{Type: updates.TypeTheme, Owner: "acme", Name: "theme", Slug: "twentyfoo"})
	require.NoError(t, err)

	_, err = c.RemoveRepository(context.Background(), 3)
	var errResp *ErrorResponse
	require.ErrorAs(t, err, &errResp)
	require.Equal(t, http.StatusNotFound, errResp.StatusCode)
	require.Equal(t, "repository not found", errResp.ErrorMsg)
	require.Equal(t, 2, reqCount)
}

func TestSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		assert.Equal(t, "wordpress theme", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		require.NoError(t, json.NewEncoder(w).Encode(&updates.SearchResult{
			TotalCount:   1,
			Repositories: []*updates.RepositorySummary{{FullName: "acme/theme"}},
		}))
	}))
	defer ts.Close()
	c := New(ts.URL+"/api/v1", "admin-token")
	res, err := c.Search(context.Background(), "wordpress theme", 2, 0)
	require.NoError(t, err)
	require.Equal(t, "acme/theme", res.Repositories[0].FullName)
}

func TestReleases(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/releases/acme/widget", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode([]updates.Release{{Version: "2.0.0"}, {Version: "1.5.0"}}))
	}))
	defer ts.Close()
	c := New(ts.URL+"/api/v1", "admin-token")
	releases, err := c.Releases(context.Background(), "acme", "widget")
	require.NoError(t, err)
	require.Len(t, releases, 2)
	require.Equal(t, "1.5.0", releases[1].Version)
}

func TestTestConnectionWithToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/connection", r.URL.Path)
		assert.Equal(t, "ghp_test", r.Header.Get("X-GitHub-Token"))
		require.NoError(t, json.NewEncoder(w).Encode(&updates.ConnectionStatus{Login: "octocat"}))
	}))
	defer ts.Close()
	c := New(ts.URL+"/api/v1", "admin-token")
	status, err := c.TestConnection(context.Background(), "ghp_test")
	require.NoError(t, err)
	require.Equal(t, "octocat", status.Login)
}

func TestDownloadPackage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/packages", r.URL.Path)
		var req updates.PackageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.URL == "https://example.com/other.zip" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = io.WriteString(w, "PK\x03\x04")
	}))
	defer ts.Close()
	c := New(ts.URL+"/api/v1", "admin-token")

	var buf bytes.Buffer
	handled, err := c.DownloadPackage(context.Background(), "https://example.com/other.zip", &buf)
	require.NoError(t, err)
	require.False(t, handled)
	require.Zero(t, buf.Len())

	handled, err = c.DownloadPackage(context.Background(), "https://api.github.com/repos/acme/widget/zipball/v1", &buf)
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, "PK\x03\x04", buf.String())
}

func TestLogs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/logs", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		require.NoError(t, json.NewEncoder(w).Encode([]updates.LogEntry{{Level: "error", Message: "boom"}}))
	}))
	defer ts.Close()
	c := New(ts.URL+"/api/v1", "admin-token")
	logs, err := c.Logs(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "boom", logs[0].Message)
}
