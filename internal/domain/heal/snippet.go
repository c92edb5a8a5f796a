package heal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/target/selfheal/internal/domain/patch"
)

const (
	// SnippetRadius is the number of lines shown on each side of the referenced line.
	SnippetRadius = 15
	// SnippetNone is passed when no apply diagnostic exists yet.
	SnippetNone = "FILE_SNIPPET: none"
	// SnippetUnavailable is returned when no usable file reference is found.
	SnippetUnavailable = "FILE_SNIPPET: unavailable"
	// InvalidDiffFormat is the error text for the first corrective diff prompt.
	InvalidDiffFormat = "Invalid diff format"
)

var fileLineRe = regexp.MustCompile(`([A-Za-z0-9_./-]+\.(?:html|js|ts|tsx|jsx|css|scss|json|md|txt|py|go|java|rb|php)):(\d+)`)

// ExtractSnippet finds the first path:line reference in errText that names an existing
// file under dir and renders the surrounding lines with line numbers. References to the
// engine's own patch artifact are skipped.
func ExtractSnippet(dir, errText string) string {
	for _, m := range fileLineRe.FindAllStringSubmatch(errText, -1) {
		p := m[1]
		if strings.HasSuffix(p, patch.FileName) {
			continue
		}
		line, err := strconv.Atoi(m[2])
		if err != nil || line <= 0 {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(p)) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil {
			continue
		}

		lines := strings.Split(string(data), "\n")
		start := max(1, line-SnippetRadius)
		end := min(len(lines), line+SnippetRadius)
		if start > end {
			continue
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "FILE_SNIPPET (%s lines %d-%d):", p, start, end)
		for i := start; i <= end; i++ {
			fmt.Fprintf(&sb, "\n%d: %s", i, lines[i-1])
		}
		return sb.String()
	}
	return SnippetUnavailable
}
