package cmd

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout runs fn and returns everything it wrote to stdout.
func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()

	original := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = original }()

	fnErr := fn()
	if cerr := w.Close(); cerr != nil {
		t.Fatalf("closing pipe: %v", cerr)
	}
	if fnErr != nil {
		t.Fatalf("unexpected error: %v", fnErr)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("reading captured output: %v", err)
	}
	return buf.String()
}

func TestRunVersion(t *testing.T) {
	originalVersion, originalBuild, originalCommit := AppVersion, BuildTime, GitCommit
	defer func() {
		AppVersion, BuildTime, GitCommit = originalVersion, originalBuild, originalCommit
	}()

	AppVersion = "1.2.3"
	BuildTime = "2026-01-15T10:00:00Z"
	GitCommit = "abc1234"

	// Version output must work even when configuration cannot load.
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")

	out := captureStdout(t, runVersion)

	for _, want := range []string{"nutriqa 1.2.3", "2026-01-15T10:00:00Z", "abc1234"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 10, want: "short"},
		{in: "exactly ten", n: 11, want: "exactly ten"},
		{in: "a longer passage of text", n: 8, want: "a longer..."},
		{in: "", n: 5, want: ""},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRenderMarkdownFallback(t *testing.T) {
	// Plain text must survive rendering even without a real terminal.
	out := renderMarkdown("fiber slows glucose absorption")
	if !strings.Contains(out, "fiber slows glucose absorption") {
		t.Errorf("rendered output lost the content: %q", out)
	}
}
