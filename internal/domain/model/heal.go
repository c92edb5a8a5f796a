package model

import (
	"strings"

	apperrors "github.com/target/selfheal/internal/errors"
)

// HealRequest carries everything needed to start a heal job.
type HealRequest struct {
	Owner         string  `json:"owner"`
	Repo          string  `json:"repo"`
	Base          string  `json:"base"`
	Token         string  `json:"-"`
	RunID         int64   `json:"runId"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	VerifyCommand string  `json:"verifyCommand"`
}

// Validate rejects requests missing required parameters before a job exists.
func (r *HealRequest) Validate() error {
	if strings.TrimSpace(r.Owner) == "" || strings.TrimSpace(r.Repo) == "" {
		return apperrors.ValidationField("repo", "Missing owner/repo")
	}
	if strings.TrimSpace(r.Token) == "" {
		return apperrors.ValidationField("token", "Missing GitHub token")
	}
	if r.RunID <= 0 {
		return apperrors.ValidationField("runId", "Missing runId")
	}
	if strings.TrimSpace(r.Base) == "" {
		return apperrors.ValidationField("base", "Missing base branch")
	}
	if strings.TrimSpace(r.Model) == "" {
		return apperrors.ValidationField("model", "Missing model")
	}
	if strings.TrimSpace(r.VerifyCommand) == "" {
		return apperrors.ValidationField("verifyCommand", "Missing verify command")
	}
	return nil
}

// Role tags a conversation message.
type Role string

const (
	// RoleSystem is the instruction message.
	RoleSystem Role = "system"
	// RoleUser carries the task input.
	RoleUser Role = "user"
)

// Message is one role-tagged entry of a generation conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Plan is the structured output of the planning prompt.
type Plan struct {
	Summary             string              `json:"summary"`
	RootCauseHypotheses []Hypothesis        `json:"root_cause_hypotheses"`
	FixPlan             []FixStep           `json:"fix_plan"`
	PatchConstraints    PatchConstraints    `json:"patch_constraints"`
	Verification        []VerificationEntry `json:"verification"`
}

// Hypothesis is one candidate root cause with its supporting evidence.
type Hypothesis struct {
	Cause    string `json:"cause"`
	Evidence string `json:"evidence"`
}

// FixStep is one ordered step of the fix plan.
type FixStep struct {
	Step  string   `json:"step"`
	Files []string `json:"files"`
}

// PatchConstraints bound what the generated patch may do.
type PatchConstraints struct {
	MaxFilesTouched int      `json:"max_files_touched"`
	Avoid           []string `json:"avoid"`
	Must            []string `json:"must"`
}

// VerificationEntry is a command the planner expects to prove the fix.
type VerificationEntry struct {
	Command string `json:"command"`
	Why     string `json:"why"`
}

// RewriteFile is one full replacement file in a rewrite payload.
type RewriteFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// RewritePayload is the structured output of the full-file rewrite prompt.
type RewritePayload struct {
	Files []RewriteFile `json:"files"`
}

// HealResult holds the payloads published when a job completes.
type HealResult struct {
	PRURL        string
	DiffStat     string
	VerifyLog    string
	PatchPreview string
	PRBody       string
	Bundle       string
	BundleFiles  []string
}

// Patch converts the result into the final done transition.
func (r HealResult) Patch() JobPatch {
	p := StatusPatch(JobStatusDone, "done")
	p.PRURL = &r.PRURL
	p.DiffStat = &r.DiffStat
	p.VerifyLog = &r.VerifyLog
	p.PatchPreview = &r.PatchPreview
	p.PRBody = &r.PRBody
	p.Bundle = &r.Bundle
	p.BundleFiles = r.BundleFiles
	if p.BundleFiles == nil {
		p.BundleFiles = []string{}
	}
	return p
}

// GenerateRequest is one call to the text-generation service.
type GenerateRequest struct {
	Model       string
	Temperature float64
	Messages    []Message
}

// Bundle is the bounded context assembled once per job and fed verbatim into every prompt.
type Bundle struct {
	Text     string
	Files    []string
	Relevant []string
}

// CloneRequest identifies the commit to check out for a job.
type CloneRequest struct {
	RepoRef
	SHA string
}
