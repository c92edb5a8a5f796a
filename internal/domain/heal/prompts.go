// Package heal holds the pure pieces of the heal pipeline: prompt construction,
// parsing of generated payloads, snippet extraction and naming conventions.
package heal

import (
	"strings"

	"github.com/target/selfheal/internal/domain/model"
)

func conversation(system, user string) []model.Message {
	return []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: user},
	}
}

// PlannerPrompt asks for a structured fix plan for the failure in bundle.
func PlannerPrompt(bundle string) []model.Message {
	return conversation(
		"You are a senior software engineer acting as a CI repair planner.",
		`Input:
`+bundle+`

Output JSON ONLY with keys:
{
  "summary": string,
  "root_cause_hypotheses": [{"cause": string, "evidence": string}],
  "fix_plan": [{"step": string, "files": [string]}],
  "patch_constraints": {
    "max_files_touched": number,
    "avoid": [string],
    "must": [string]
  },
  "verification": [{"command": string, "why": string}]
}

Rules:
- Prefer smallest change that makes tests pass.
- Do not change public APIs unless logs clearly demand it.
- Never disable or skip tests.
- Keep max_files_touched <= 5.`,
	)
}

// PatcherPrompt asks for a unified diff that implements plan within allowed files.
func PatcherPrompt(bundle, planJSON string, allowed []string) []model.Message {
	return conversation(
		"You are an automated patch generator.",
		`Planner JSON:
`+planJSON+`

Context:
`+bundle+`

Return ONLY a valid unified diff patch that can be applied with git apply.
No explanation. No markdown.

Rules:
- Touch at most the planner's max_files_touched files.
- Only modify files that appear in this allowed list:
`+strings.Join(allowed, "\n")+`
- Never disable or skip tests.
- Keep style consistent with repo.
- Patch must directly address evidence in logs.
- Preserve original line breaks and formatting; do not compress multiple statements onto one line.`,
	)
}

// RetryInput carries the failure a corrective prompt responds to.
type RetryInput struct {
	Bundle   string
	PlanJSON string
	Allowed  []string
	// ErrorText is the previous apply diagnostic or format complaint.
	ErrorText string
	// Snippet is extra file context, typically from ExtractSnippet.
	Snippet string
}

func (in RetryInput) header() string {
	return `Planner JSON:
` + in.PlanJSON + `

Context:
` + in.Bundle + `

Previous apply error:
` + in.ErrorText + `

` + in.Snippet + `

`
}

// PatcherRetryPrompt is the stricter diff prompt used after a format or apply failure.
func PatcherRetryPrompt(in RetryInput) []model.Message {
	return conversation(
		"You are an automated patch generator. Your previous output was invalid. Return ONLY a valid unified diff with diff --git, ---/+++ headers, and @@ hunks. No explanation.",
		in.header()+`Return ONLY a valid unified diff patch that can be applied with git apply.
No explanation. No markdown.

Rules:
- Only modify files from this allowed list:
`+strings.Join(in.Allowed, "\n")+`
- Use exact context from the files shown in the bundle. Do not invent lines.`,
	)
}

const rewriteShape = `{
  "files": [
    { "path": "relative/path/from/repo", "content": "full file content" }
  ]
}`

// FileRewritePrompt escalates from diffs to complete replacement file contents.
func FileRewritePrompt(in RetryInput) []model.Message {
	return conversation(
		"You are an automated patch generator. Unified diff failed. Return ONLY JSON with full file contents.",
		in.header()+`Return ONLY valid JSON:
`+rewriteShape+`

Rules:
- Only include files from this allowed list:
`+strings.Join(in.Allowed, "\n")+`
- You MUST include at least one file in the response.
- Use exact content style from the repo (line breaks, indentation).
- Do not add commentary or markdown.`,
	)
}

// FileRewriteStrictPrompt is the final escalation after an empty rewrite payload.
func FileRewriteStrictPrompt(in RetryInput) []model.Message {
	return conversation(
		"You are an automated patch generator. You MUST return a non-empty file rewrite payload.",
		in.header()+`Return ONLY valid JSON with at least one file:
`+rewriteShape+`

Rules:
- Only include files from this allowed list:
`+strings.Join(in.Allowed, "\n")+`
- Use exact content style from the repo (line breaks, indentation).
- Do not add commentary or markdown.`,
	)
}

// PRBodyPrompt asks for the pull request description.
func PRBodyPrompt(bundle, planJSON, diffStat, verifyLog string) []model.Message {
	return conversation(
		"You are writing a PR description for an automated CI fix.",
		`Context:
`+bundle+`

Planner JSON:
`+planJSON+`

Diff stat:
`+diffStat+`

Verification output:
`+verifyLog+`

Write:
- What failed
- Root cause (with evidence from logs)
- What changed
- How verified (commands + results)
- Risks and rollback

Be crisp and technical.`,
	)
}
