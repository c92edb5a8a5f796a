package heal

import (
	"fmt"
	"unicode/utf8"

	"github.com/target/selfheal/internal/domain/bundle"
)

// Caps applied to published job fields.
const (
	VerifyLogLimit = 8000
	PreviewLimit   = 12000
)

// BranchName is the deterministic branch for a run's fix.
func BranchName(runID int64, sha string) string {
	short := sha
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("selfheal/run-%d-%s", runID, short)
}

// CommitMessage is used both as the commit message and the pull request title.
func CommitMessage(runID int64) string {
	return fmt.Sprintf("Self-heal: CI fix for run %d", runID)
}

// Clip caps s at n characters, marking the cut.
func Clip(s string, n int) string {
	return bundle.TruncateChars(s, n)
}

// Tail keeps the last n characters of s.
func Tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	excess := utf8.RuneCountInString(s) - n
	if excess <= 0 {
		return s
	}
	for i := range s {
		if excess == 0 {
			return s[i:]
		}
		excess--
	}
	return ""
}
