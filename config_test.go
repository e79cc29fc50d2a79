package blobcast

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchConfigLocal(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0644))

	content, err := fetchConfig(path)
	require.NoError(t, err)
	require.Equal(t, "rules: []\n", string(content))

	_, err = fetchConfig(filepath.Join(tmpDir, "missing.yaml"))
	require.Error(t, err)
}

func TestFetchConfigHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rules.yaml" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "rules: []\n")
	}))
	defer server.Close()

	content, err := fetchConfig(server.URL + "/rules.yaml")
	require.NoError(t, err)
	require.Equal(t, "rules: []\n", string(content))

	_, err = fetchConfig(server.URL + "/missing.yaml")
	require.ErrorContains(t, err, "404")
}

func TestFetchConfigUnsupportedScheme(t *testing.T) {
	_, err := fetchConfig("ftp://example.com/rules.yaml")
	require.ErrorContains(t, err, "not supported")
}
