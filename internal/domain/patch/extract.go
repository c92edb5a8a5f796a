// Package patch normalizes generated unified-diff text and applies it to a working tree.
package patch

import (
	"regexp"
	"strings"

	apperrors "github.com/target/selfheal/internal/errors"
)

// ErrNoDiffContent is the message used when extraction finds nothing to apply.
const ErrNoDiffContent = "no diff content found"

var diffStartMarkers = []string{"diff --git ", "--- ", "+++ "}

var (
	reFileHeader = regexp.MustCompile(`(?m)^(diff --git |---\s+\S+)`)
	rePlusHeader = regexp.MustCompile(`(?m)^\+\+\+\s+\S+`)
	reHunk       = regexp.MustCompile(`(?m)^@@`)
)

// Extract returns the newline-terminated diff text inside generated output.
// Commentary before the first diff marker is dropped, and a fence line ends the
// current diff so prose after a closing fence is dropped too; a later diff
// marker starts a new section. A diff marker only counts at the start of a line.
// Extract(Extract(x)) == Extract(x).
func Extract(raw string) (string, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	var kept []string
	inDiff := false
	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inDiff = false
			continue
		}
		if !inDiff {
			if !hasDiffMarker(line) {
				continue
			}
			inDiff = true
		}
		kept = append(kept, line)
	}

	body := strings.TrimRight(strings.Join(kept, "\n"), " \t\r\n")
	if body == "" {
		return "", apperrors.PatchFormat(ErrNoDiffContent)
	}
	return body + "\n", nil
}

func hasDiffMarker(line string) bool {
	for _, m := range diffStartMarkers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

// Clean strips trailing whitespace from every line.
func Clean(patch string) string {
	lines := strings.Split(patch, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n")
}

// Preview returns the first n lines of text.
func Preview(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

// LikelyUnifiedDiff reports whether text has a file header, a +++ header and a hunk marker.
func LikelyUnifiedDiff(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	return reFileHeader.MatchString(t) && rePlusHeader.MatchString(t) && reHunk.MatchString(t)
}
