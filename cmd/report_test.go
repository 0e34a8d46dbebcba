package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv clears every variable the command reads so the host environment
// cannot leak into a test.
func isolateEnv(t *testing.T) {
	for _, key := range []string{
		"GITLAB_URL", "GITLAB_TOKEN", "GITLAB_PROJECT_IDS", "GITLAB_DAYS", "GITLAB_TOKEN_TYPE",
		"GITLAB_INSECURE_SKIP_VERIFY", "OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"SUMMARY_LANGUAGE", "DISCORD_WEBHOOK_URL", "REPORT_FORMAT", "REPORT_OUTPUT_DIR",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")
}

func executeReport(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"report", "--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestReportCmd_EmptyProjectListFailsBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	isolateEnv(t)
	t.Setenv("GITLAB_URL", server.URL)
	t.Setenv("GITLAB_TOKEN", "tok")
	t.Setenv("GITLAB_PROJECT_IDS", "")

	_, err := executeReport(t, "--output-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITLAB_PROJECT_IDS")
	assert.Zero(t, hits.Load())
}

func TestReportCmd_AuthenticationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "401 Unauthorized"}`)
	}))
	defer server.Close()

	isolateEnv(t)
	t.Setenv("GITLAB_URL", server.URL)
	t.Setenv("GITLAB_TOKEN", "bad")
	t.Setenv("GITLAB_PROJECT_IDS", "1")

	_, err := executeReport(t, "--output-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to authenticate with GitLab")
}

func TestReportCmd_WritesReports(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/user", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 1, "username": "reporter"}`)
	})
	// Project 1 is missing; project 2 has one commit.
	mux.HandleFunc("/api/v4/projects/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "404 Project Not Found"}`)
	})
	mux.HandleFunc("/api/v4/projects/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 2, "name": "Web App"}`)
	})
	mux.HandleFunc("/api/v4/projects/2/repository/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": "abc123", "title": "Add login", "author_name": "Alice", "created_at": "2026-10-15T10:00:00Z"}]`)
	})
	mux.HandleFunc("/api/v4/projects/2/repository/commits/abc123/diff", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"old_path": "a.go", "new_path": "a.go", "new_file": true, "diff": "+package a"}]`)
	})
	mux.HandleFunc("/api/v4/projects/2/merge_requests", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("/api/v4/projects/2/issues", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	isolateEnv(t)
	t.Setenv("GITLAB_URL", server.URL)
	t.Setenv("GITLAB_TOKEN", "tok")
	t.Setenv("GITLAB_PROJECT_IDS", "1, 2")

	dir := t.TempDir()
	out, err := executeReport(t, "--output-dir", dir, "--format", "detailed", "--days", "7")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "gitlab_changes_report_web_app.md"))
	assert.Contains(t, out, "fetch_failed")
	assert.Contains(t, out, "reported")
	assert.Contains(t, out, "skipped")
}
