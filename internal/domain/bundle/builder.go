// Package bundle assembles the bounded text context that every generation prompt embeds.
package bundle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/domain/model"
)

const (
	// MaxRelevant caps paths derived from the failure log.
	MaxRelevant = 12
	// MaxFallback caps the tracked-file fallback list.
	MaxFallback = 12
	// MaxFiles caps the final file list regardless of source.
	MaxFiles = 18
	// MaxFileChars caps each embedded file's content.
	MaxFileChars = 14000
	// TruncationMarker is appended to content cut at MaxFileChars.
	TruncationMarker = "\n...[truncated]"
)

// logPathPatterns are applied in order; capture group 1 is the candidate path.
var logPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`File "([^"]+)"`),
	regexp.MustCompile(`(\S+\.(?:js|ts|tsx|jsx|py|go|java|rb|php)):\d+`),
	regexp.MustCompile(`(\b[\w./-]+\.(?:js|ts|tsx|jsx|json|html|css|md|txt))\b`),
}

var vendoredMarkers = []string{"node_modules", "vendor/"}

var fallbackDirs = []string{"src/", "lib/", "test/", "tests/"}

var rootManifests = []string{"package.json", "go.mod", "pyproject.toml", "README.md"}

// Options configures a Builder.
type Options struct {
	Logger *slog.Logger
}

// Builder implements core.BundleBuilder.
type Builder struct {
	logger *slog.Logger
}

var _ core.BundleBuilder = (*Builder)(nil)

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger.With("component", "bundle")}
}

// Build collects repo metadata, selects files and renders the bundle document.
func (b *Builder) Build(ctx context.Context, repo core.Workspace, logTail string) (*model.Bundle, error) {
	head, err := repo.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}
	msg, err := repo.LastCommitMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("read last commit message: %w", err)
	}
	changed, err := repo.ChangedFiles(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger.WarnContext(ctx, "changed files unavailable", "error", err)
		changed = nil
	}

	root := repo.Dir()
	relevant := RelevantFromLog(root, logTail)
	files := union(relevant, existing(root, changed))

	if len(files) == 0 {
		tracked, err := repo.TrackedFiles(ctx)
		if err != nil {
			b.logger.WarnContext(ctx, "tracked files unavailable", "error", err)
		}
		files = Fallback(root, tracked)
	}
	if len(files) > MaxFiles {
		files = files[:MaxFiles]
	}

	blobs := make([]string, 0, len(files))
	for _, p := range files {
		blobs = append(blobs, "--- "+p+" ---\n"+ReadCapped(filepath.Join(root, filepath.FromSlash(p))))
	}

	text := Render(Sections{
		Head:          head,
		CommitMessage: msg,
		ChangedFiles:  changed,
		FailureLog:    logTail,
		FileBlobs:     blobs,
	})

	b.logger.DebugContext(ctx, "bundle built",
		"files", len(files),
		"relevant", len(relevant),
		"changed", len(changed),
		"bytes", len(text),
	)
	return &model.Bundle{Text: text, Files: files, Relevant: relevant}, nil
}

// Sections are the parts of a bundle document in render order.
type Sections struct {
	Head          string
	CommitMessage string
	ChangedFiles  []string
	FailureLog    string
	FileBlobs     []string
}

// Render produces the fixed-section bundle document consumed verbatim by prompts.
func Render(s Sections) string {
	var sb strings.Builder
	sb.WriteString("REPO_META\nHEAD: ")
	sb.WriteString(s.Head)
	sb.WriteString("\n\nLAST_COMMIT_MESSAGE\n")
	sb.WriteString(s.CommitMessage)
	sb.WriteString("\n\nCHANGED_FILES\n")
	sb.WriteString(strings.Join(s.ChangedFiles, "\n"))
	sb.WriteString("\n\nCI_FAILURE_LOG\n")
	sb.WriteString(s.FailureLog)
	sb.WriteString("\n\nRELEVANT_FILES\n")
	sb.WriteString(strings.Join(s.FileBlobs, "\n\n"))
	return sb.String()
}

// RelevantFromLog scans log text for file references that exist under root.
func RelevantFromLog(root, logText string) []string {
	var hits []string
	for _, re := range logPathPatterns {
		for _, m := range re.FindAllStringSubmatch(logText, -1) {
			p := normalizeLogPath(m[1])
			if p == "" || isVendored(p) || strings.HasPrefix(p, "/") {
				continue
			}
			if !slices.Contains(hits, p) && isFile(root, p) {
				hits = append(hits, p)
			}
		}
	}
	if len(hits) > MaxRelevant {
		hits = hits[:MaxRelevant]
	}
	return hits
}

func normalizeLogPath(p string) string {
	p = strings.TrimLeft(p, "([{'\"`")
	return strings.TrimPrefix(p, "./")
}

func isVendored(p string) bool {
	for _, m := range vendoredMarkers {
		if strings.Contains(p, m) {
			return true
		}
	}
	return false
}

// Fallback picks root manifests then conventional source/test files from tracked paths.
func Fallback(root string, tracked []string) []string {
	var roots, preferred []string
	for _, p := range tracked {
		switch {
		case slices.Contains(rootManifests, p):
			roots = append(roots, p)
		case hasAnyPrefix(p, fallbackDirs):
			preferred = append(preferred, p)
		}
	}
	files := existing(root, union(roots, preferred))
	if len(files) > MaxFallback {
		files = files[:MaxFallback]
	}
	return files
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if strings.HasPrefix(p, pre) {
			return true
		}
	}
	return false
}

// ReadCapped reads at most MaxFileChars characters, appending TruncationMarker when cut.
// Unreadable files read as empty.
func ReadCapped(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	// Worst case is 4 bytes per rune; one extra rune tells us truncation happened.
	data, err := io.ReadAll(io.LimitReader(f, int64(MaxFileChars+1)*utf8.UTFMax))
	if err != nil {
		return ""
	}
	return TruncateChars(string(data), MaxFileChars)
}

// TruncateChars cuts s to n characters and appends TruncationMarker when it was longer.
func TruncateChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + TruncationMarker
		}
		i++
	}
	return s
}

func existing(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if isFile(root, p) {
			out = append(out, p)
		}
	}
	return out
}

func isFile(root, p string) bool {
	if !filepath.IsLocal(filepath.FromSlash(p)) {
		return false
	}
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(p)))
	return err == nil && info.Mode().IsRegular()
}

func union(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		for _, p := range l {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}
