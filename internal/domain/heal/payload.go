package heal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
)

// Messages surfaced verbatim as job errors.
const (
	MsgPlannerInvalid     = "Planner returned invalid JSON"
	MsgPatchInvalid       = "Patch invalid after retry; not a unified diff."
	MsgRewriteInvalidJSON = "File rewrite failed; invalid JSON output."
	MsgRewriteEntry       = "Invalid file rewrite entry."
	MsgRewriteEmpty       = "File rewrite payload is empty."
)

// jsonBody strips a surrounding markdown fence, if any, and returns the trimmed payload.
func jsonBody(raw string) []byte {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return []byte(strings.TrimSpace(s))
}

// ParsePlan decodes planner output. It returns the plan and its compact JSON form,
// which keeps any keys the struct does not model.
func ParsePlan(raw string) (*model.Plan, string, error) {
	body := jsonBody(raw)
	if len(body) == 0 || body[0] != '{' {
		return nil, "", apperrors.Planner(MsgPlannerInvalid)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, "", apperrors.Planner(MsgPlannerInvalid)
	}

	// Mistyped fields are left zero; the compact JSON still carries them to later prompts.
	var plan model.Plan
	if err := json.Unmarshal(compact.Bytes(), &plan); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, "", apperrors.Planner(MsgPlannerInvalid)
		}
	}
	return &plan, compact.String(), nil
}

// ParseRewrite decodes a full-file rewrite payload. A payload without a files array
// is a PatchFormat error; an empty array is returned as-is for the caller to escalate.
func ParseRewrite(raw string) (*model.RewritePayload, error) {
	var env struct {
		Files json.RawMessage `json:"files"`
	}
	body := jsonBody(raw)
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.PatchFormat(MsgRewriteInvalidJSON)
	}
	files := bytes.TrimSpace(env.Files)
	if len(files) == 0 || files[0] != '[' {
		return nil, apperrors.PatchFormat(MsgRewriteInvalidJSON)
	}

	var entries []*model.RewriteFile
	if err := json.Unmarshal(files, &entries); err != nil {
		return nil, apperrors.PatchFormat(MsgRewriteEntry)
	}
	out := &model.RewritePayload{Files: make([]model.RewriteFile, 0, len(entries))}
	for _, e := range entries {
		if e == nil || e.Path == "" {
			return nil, apperrors.PatchFormat(MsgRewriteEntry)
		}
		out.Files = append(out.Files, *e)
	}
	return out, nil
}

// ApplyRewrites overwrites each listed file under dir with its full content. Every path
// must be in allowed and already exist; nothing is written unless all entries pass.
func ApplyRewrites(dir string, files []model.RewriteFile, allowed []string) error {
	if len(files) == 0 {
		return apperrors.RewriteEmpty(MsgRewriteEmpty)
	}

	type target struct {
		abs     string
		mode    os.FileMode
		content string
	}
	targets := make([]target, 0, len(files))
	for _, f := range files {
		if !slices.Contains(allowed, f.Path) || !filepath.IsLocal(filepath.FromSlash(f.Path)) {
			return apperrors.PatchApply(fmt.Sprintf("File rewrite path not allowed: %s", f.Path))
		}
		abs := filepath.Join(dir, filepath.FromSlash(f.Path))
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			return apperrors.PatchApply(fmt.Sprintf("File not found for rewrite: %s", f.Path))
		}
		targets = append(targets, target{abs: abs, mode: info.Mode().Perm(), content: f.Content})
	}

	for _, t := range targets {
		if err := os.WriteFile(t.abs, []byte(t.content), t.mode); err != nil {
			return fmt.Errorf("rewrite %s: %w", t.abs, err)
		}
	}
	return nil
}
