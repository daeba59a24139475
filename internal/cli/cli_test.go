package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand(io.NopCloser(strings.NewReader("")), &out, &errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func buildCorpus(t *testing.T) (root, out string) {
	t.Helper()
	root = t.TempDir()
	files := map[string]string{
		"a/0.txt": "The cat sat",
		"a/1.txt": "cat cat",
		"b/0.txt": "Dog!",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	out = filepath.Join(t.TempDir(), "index")
	stdout, _, err := run(t, "build", root, "--out", out, "--no-progress", "--log-level", "error")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(stdout, "indexed 3 documents from 2 shards") {
		t.Errorf("build output = %q", stdout)
	}
	return root, out
}

func TestBuildAndQuery(t *testing.T) {
	root, out := buildCorpus(t)
	stdout, _, err := run(t, "query", "cats", "zebra", "--out", out, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	want := "cats: 2 matches\n" +
		"  " + filepath.Join(root, "a", "0.txt") + "\n" +
		"  " + filepath.Join(root, "a", "1.txt") + "\n" +
		"zebra: No match found.\n"
	if stdout != want {
		t.Errorf("query output:\n%s\nwant:\n%s", stdout, want)
	}
}

func TestQueryJSONFromShards(t *testing.T) {
	root, out := buildCorpus(t)
	stdout, _, err := run(t, "query", "dog cat", "--shards", "--json", "--out", out, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	var r executor.Result
	if err := json.Unmarshal([]byte(stdout), &r); err != nil {
		t.Fatalf("decoding %q: %v", stdout, err)
	}
	if r.Count != 3 || r.Query != "dog cat" || len(r.MatchedTerms) != 2 {
		t.Errorf("result = %+v", r)
	}
	if r.Paths[2] != filepath.Join(root, "b", "0.txt") {
		t.Errorf("paths = %v", r.Paths)
	}
}

func TestMergeCommand(t *testing.T) {
	_, out := buildCorpus(t)
	if err := os.Remove(filepath.Join(out, "inverted_index_terms.txt")); err != nil {
		t.Fatal(err)
	}
	stdout, _, err := run(t, "merge", "--out", out, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "merged 3 terms") {
		t.Errorf("merge output = %q", stdout)
	}
}

func TestStatus(t *testing.T) {
	_, out := buildCorpus(t)
	stdout, _, err := run(t, "status", "--out", out, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "overall: up") || !strings.Contains(stdout, "3 documents") {
		t.Errorf("status output:\n%s", stdout)
	}

	_, _, err = run(t, "status", "--out", t.TempDir(), "--log-level", "error")
	if apperrors.ExitCode(err) != 3 {
		t.Errorf("status on empty dir: %v (exit %d)", err, apperrors.ExitCode(err))
	}
}

func TestQueryErrors(t *testing.T) {
	empty := t.TempDir()
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no index", []string{"query", "cat", "--out", empty}, 3},
		{"no query", []string{"query", "--out", empty}, 2},
		{"unknown flag", []string{"query", "--nope"}, 2},
		{"build without root", []string{"build"}, 2},
		{"build missing root", []string{"build", filepath.Join(empty, "missing"), "--out", empty, "--no-progress"}, 2},
		{"merge without shards", []string{"merge", "--out", empty}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, append(tt.args, "--log-level", "error")...)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperrors.ExitCode(err); got != tt.code {
				t.Errorf("exit code = %d (%v), want %d", got, err, tt.code)
			}
		})
	}
}

func TestBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("index:\n  html: sometimes\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, _, err := run(t, "status", "--config", path)
	if !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}
