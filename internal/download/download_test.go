package download

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

func createZip(t *testing.T, files map[string]string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newDownloader(cfg Config) *Downloader {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return New(cfg)
}

func TestFetchAssetWithRedirect(t *testing.T) {
	archive := createZip(t, map[string]string{"plugin/plugin.php": "<?php\n/*\nPlugin Name: Test\n*/"})

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		require.Empty(t, r.Header.Get("Accept"))
		require.Empty(t, r.Header.Get("X-GitHub-Api-Version"))
		require.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	}))
	defer cdn.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/owner/repo/releases/assets/42", r.URL.Path)
		require.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		require.Equal(t, "Bearer ghp_secret", r.Header.Get("Authorization"))
		http.Redirect(w, r, cdn.URL+"/signed/plugin.zip?token=abc", http.StatusFound)
	}))
	defer api.Close()

	d := newDownloader(Config{Token: "ghp_secret", APIBaseURL: api.URL, UserAgent: "test-agent"})
	path, err := d.Fetch(context.Background(), api.URL+"/repos/owner/repo/releases/assets/42")
	require.NoError(t, err)
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, archive, data)
}

func TestFetchZipballHeaders(t *testing.T) {
	archive := createZip(t, map[string]string{"owner-repo-abc/style.css": "/* Theme Name: T */"})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		require.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))
		require.Equal(t, "token abc123", r.Header.Get("Authorization"))
		_, _ = w.Write(archive)
	}))
	defer ts.Close()

	d := newDownloader(Config{Token: "abc123", APIBaseURL: ts.URL})
	path, err := d.Fetch(context.Background(), ts.URL+"/repos/owner/repo/zipball/v1.0.0")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
}

func TestFetchForeignHostWithoutToken(t *testing.T) {
	archive := createZip(t, map[string]string{"plugin/plugin.php": "<?php\n/*\nPlugin Name: Test\n*/"})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write(archive)
	}))
	defer ts.Close()

	d := newDownloader(Config{Token: "ghp_secret"})
	path, err := d.Fetch(context.Background(), ts.URL+"/downloads/plugin.zip")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"message":"Not Found"}`, wantErr: ErrNotFound},
		{name: "missing permission", status: http.StatusForbidden, body: `{"message":"Resource not accessible by personal access token"}`, wantErr: ErrAccessDenied, wantMsg: "Contents: Read-only"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"Bad credentials"}`, wantErr: ErrAccessDenied, wantMsg: "Bad credentials"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer ts.Close()
			tmpDir := t.TempDir()
			d := newDownloader(Config{APIBaseURL: ts.URL, TempDir: tmpDir})
			_, err := d.Fetch(context.Background(), ts.URL+"/repos/owner/repo/zipball/main")
			require.ErrorIs(t, err, tc.wantErr)
			if tc.wantMsg != "" {
				require.ErrorContains(t, err, tc.wantMsg)
			}
			entries, err := os.ReadDir(tmpDir)
			require.NoError(t, err)
			require.Empty(t, entries)
		})
	}

	t.Run("server error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()
		d := newDownloader(Config{APIBaseURL: ts.URL})
		_, err := d.Fetch(context.Background(), ts.URL+"/file.zip")
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		require.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	})
}

func TestFetchRejectsInvalidArchive(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>not a zip</html>")
	}))
	defer ts.Close()
	tmpDir := t.TempDir()

	for _, mode := range []ValidationMode{ModeStructural, ModeSignature} {
		d := newDownloader(Config{APIBaseURL: ts.URL, TempDir: tmpDir, Validation: mode})
		_, err := d.Fetch(context.Background(), ts.URL+"/file.zip")
		require.ErrorIs(t, err, ErrInvalidArchive)
	}
	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

type fakeObject struct {
	body     []byte
	checksum string
}

func createS3Client(t *testing.T) (*s3.Client, map[string]*fakeObject) {
	var mu sync.Mutex
	objects := make(map[string]*fakeObject)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		key := strings.TrimPrefix(r.URL.Path, "/test/")
		switch r.Method {
		case http.MethodHead, http.MethodGet:
			obj, ok := objects[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("X-Amz-Meta-Checksum", obj.checksum)
			if r.Method == http.MethodGet {
				_, _ = w.Write(obj.body)
			}
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			objects[key] = &fakeObject{body: body, checksum: r.Header.Get("X-Amz-Meta-Checksum")}
		}
	}))
	t.Cleanup(ts.Close)
	s3Cfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
		awsConfig.WithRegion("auto"),
		awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               ts.URL,
				HostnameImmutable: true,
			}, nil
		})),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)
	return s3.NewFromConfig(s3Cfg), objects
}

func TestFetchWithMirror(t *testing.T) {
	archive := createZip(t, map[string]string{"theme/style.css": "/* Theme Name: T */"})
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write(archive)
	}))
	defer ts.Close()

	s3Client, objects := createS3Client(t)
	d := newDownloader(Config{APIBaseURL: ts.URL, Mirror: NewMirror(s3Client, "test")})
	assetURL := ts.URL + "/owner/repo/releases/download/v1.0.0/theme.zip"

	path, err := d.Fetch(context.Background(), assetURL)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	require.Equal(t, 1, requests)

	obj, ok := objects[ObjectKey(assetURL)]
	require.True(t, ok)
	require.Equal(t, archive, obj.body)
	require.Len(t, obj.checksum, 64)

	// the second download is served from the mirror
	path, err = d.Fetch(context.Background(), assetURL)
	require.NoError(t, err)
	defer os.Remove(path)
	require.Equal(t, 1, requests)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, archive, data)

	// branch archives are never mirrored
	branchURL := ts.URL + "/repos/owner/repo/zipball/main"
	path, err = d.Fetch(context.Background(), branchURL)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	_, ok = objects[ObjectKey(branchURL)]
	require.False(t, ok)
}

func TestZipValidation(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o644))
		return p
	}

	valid := write("valid.zip", createZip(t, map[string]string{"a.txt": "a", "b/c.txt": "c"}))
	require.True(t, HasZipSignature(valid))
	v := &Validator{}
	require.True(t, v.IsValid(context.Background(), valid))

	html := write("page.zip", []byte("<!DOCTYPE html>"))
	require.False(t, HasZipSignature(html))
	require.False(t, v.IsValid(context.Background(), html))

	short := write("short.zip", []byte{0x50, 0x4B})
	require.False(t, HasZipSignature(short))

	// signature only, no central directory
	header := write("header.zip", []byte{0x50, 0x4B, 0x03, 0x04, 0x00, 0x00})
	require.True(t, HasZipSignature(header))
	require.False(t, v.IsValid(context.Background(), header))
	require.True(t, (&Validator{Mode: ModeSignature}).Validate(context.Background(), header))
	require.False(t, (&Validator{Mode: ModeStructural}).Validate(context.Background(), header))

	require.False(t, HasZipSignature(filepath.Join(dir, "missing.zip")))
}

func TestMirrorable(t *testing.T) {
	require.True(t, Mirrorable("https://api.github.com/repos/o/r/releases/assets/1"))
	require.True(t, Mirrorable("https://github.com/o/r/releases/download/v1/p.zip"))
	require.False(t, Mirrorable("https://api.github.com/repos/o/r/zipball/main"))
	require.Equal(t, ObjectKey("a"), ObjectKey("a"))
	require.True(t, strings.HasPrefix(ObjectKey("a"), "archives/"))
}
