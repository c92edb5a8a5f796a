package heal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
)

func TestPrompts_EmbedInputs(t *testing.T) {
	t.Parallel()
	allowed := []string{"src/a.js", "src/b.js"}
	in := RetryInput{
		Bundle:    "BUNDLE",
		PlanJSON:  `{"summary":"s"}`,
		Allowed:   allowed,
		ErrorText: "error: patch failed",
		Snippet:   SnippetNone,
	}

	cases := []struct {
		name     string
		msgs     []model.Message
		system   string
		contains []string
	}{
		{"planner", PlannerPrompt("BUNDLE"), "CI repair planner", []string{"Input:\nBUNDLE\n", `"max_files_touched": number`}},
		{"patcher", PatcherPrompt("BUNDLE", in.PlanJSON, allowed), "automated patch generator.", []string{"Planner JSON:\n{\"summary\":\"s\"}\n", "allowed list:\nsrc/a.js\nsrc/b.js\n"}},
		{"patcher retry", PatcherRetryPrompt(in), "previous output was invalid", []string{"Previous apply error:\nerror: patch failed\n\nFILE_SNIPPET: none\n\n", "Do not invent lines."}},
		{"rewrite", FileRewritePrompt(in), "Unified diff failed", []string{`"files": [`, "You MUST include at least one file"}},
		{"rewrite strict", FileRewriteStrictPrompt(in), "non-empty file rewrite payload", []string{"with at least one file:", "src/b.js\n- Use exact content"}},
		{"pr body", PRBodyPrompt("BUNDLE", "{}", "1 file changed", "$ npm test\nok"), "PR description", []string{"Diff stat:\n1 file changed\n", "Verification output:\n$ npm test\nok\n", "Risks and rollback"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Len(t, tc.msgs, 2)
			assert.Equal(t, model.RoleSystem, tc.msgs[0].Role)
			assert.Equal(t, model.RoleUser, tc.msgs[1].Role)
			assert.Contains(t, tc.msgs[0].Content, tc.system)
			for _, want := range tc.contains {
				assert.Contains(t, tc.msgs[1].Content, want)
			}
		})
	}
}

func TestParsePlan(t *testing.T) {
	t.Parallel()
	raw := "```json\n{\n  \"summary\": \"off by one\",\n  \"fix_plan\": [{\"step\": \"fix\", \"files\": [\"src/math.js\"]}],\n  \"patch_constraints\": {\"max_files_touched\": 1},\n  \"extra\": true\n}\n```"
	plan, compact, err := ParsePlan(raw)
	require.NoError(t, err)
	assert.Equal(t, "off by one", plan.Summary)
	require.Len(t, plan.FixPlan, 1)
	assert.Equal(t, []string{"src/math.js"}, plan.FixPlan[0].Files)
	assert.Equal(t, 1, plan.PatchConstraints.MaxFilesTouched)
	assert.Contains(t, compact, `"extra":true`)
	assert.NotContains(t, compact, "\n")
}

func TestParsePlan_MistypedFieldKept(t *testing.T) {
	t.Parallel()
	plan, compact, err := ParsePlan(`{"summary":"s","patch_constraints":{"max_files_touched":"two"}}`)
	require.NoError(t, err)
	assert.Equal(t, "s", plan.Summary)
	assert.Contains(t, compact, `"two"`)
}

func TestParsePlan_Invalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not json", "[1,2]", "42", `{"summary":`, `{"a":1} trailing`} {
		_, _, err := ParsePlan(raw)
		require.Error(t, err, raw)
		assert.True(t, apperrors.IsPlanner(err))
		assert.Equal(t, MsgPlannerInvalid, err.Error())
	}
}

func TestParseRewrite(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		raw     string
		files   int
		wantMsg string
	}{
		{"ok", `{"files":[{"path":"a.js","content":"x"}]}`, 1, ""},
		{"fenced", "```json\n{\"files\":[{\"path\":\"a.js\",\"content\":\"\"}]}\n```", 1, ""},
		{"empty array", `{"files": []}`, 0, ""},
		{"not json", "sorry", 0, MsgRewriteInvalidJSON},
		{"missing files", `{"path":"a.js"}`, 0, MsgRewriteInvalidJSON},
		{"files not array", `{"files":{}}`, 0, MsgRewriteInvalidJSON},
		{"null entry", `{"files":[null]}`, 0, MsgRewriteEntry},
		{"bad content type", `{"files":[{"path":"a.js","content":1}]}`, 0, MsgRewriteEntry},
		{"no path", `{"files":[{"content":"x"}]}`, 0, MsgRewriteEntry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := ParseRewrite(tc.raw)
			if tc.wantMsg != "" {
				require.Error(t, err)
				assert.True(t, apperrors.IsPatchFormat(err))
				assert.Equal(t, tc.wantMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Len(t, p.Files, tc.files)
		})
	}
}

func TestApplyRewrites(t *testing.T) {
	t.Parallel()
	newDir := func(t *testing.T) string {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.js"), []byte("old a"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "b.js"), []byte("old b"), 0o755))
		return dir
	}
	allowed := []string{"src/a.js", "src/b.js", "src/gone.js"}

	t.Run("writes all", func(t *testing.T) {
		t.Parallel()
		dir := newDir(t)
		err := ApplyRewrites(dir, []model.RewriteFile{
			{Path: "src/a.js", Content: "new a"},
			{Path: "src/b.js", Content: "new b"},
		}, allowed)
		require.NoError(t, err)
		a, _ := os.ReadFile(filepath.Join(dir, "src", "a.js"))
		assert.Equal(t, "new a", string(a))
		info, err := os.Stat(filepath.Join(dir, "src", "b.js"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		err := ApplyRewrites(newDir(t), nil, allowed)
		require.Error(t, err)
		assert.True(t, apperrors.IsRewriteEmpty(err))
		assert.Equal(t, MsgRewriteEmpty, err.Error())
	})

	t.Run("disallowed path writes nothing", func(t *testing.T) {
		t.Parallel()
		dir := newDir(t)
		err := ApplyRewrites(dir, []model.RewriteFile{
			{Path: "src/a.js", Content: "new a"},
			{Path: "package.json", Content: "{}"},
		}, allowed)
		require.Error(t, err)
		assert.Equal(t, "File rewrite path not allowed: package.json", err.Error())
		a, _ := os.ReadFile(filepath.Join(dir, "src", "a.js"))
		assert.Equal(t, "old a", string(a))
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		err := ApplyRewrites(newDir(t), []model.RewriteFile{{Path: "src/gone.js", Content: "x"}}, allowed)
		require.Error(t, err)
		assert.Equal(t, "File not found for rewrite: src/gone.js", err.Error())
	})

	t.Run("traversal", func(t *testing.T) {
		t.Parallel()
		err := ApplyRewrites(newDir(t), []model.RewriteFile{{Path: "../x.js"}}, []string{"../x.js"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not allowed")
	})
}

func TestExtractSnippet(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var lines []string
	for i := 1; i <= 40; i++ {
		lines = append(lines, "line"+strings.Repeat("x", i%3))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "math.js"), []byte(strings.Join(lines, "\n")), 0o644))

	t.Run("window around line", func(t *testing.T) {
		t.Parallel()
		got := ExtractSnippet(dir, "error: patch failed: .selfheal.patch:3\nerror: patch failed: src/math.js:20")
		parts := strings.Split(got, "\n")
		assert.Equal(t, "FILE_SNIPPET (src/math.js lines 5-35):", parts[0])
		assert.Len(t, parts, 32)
		assert.Equal(t, "5: "+lines[4], parts[1])
		assert.Equal(t, "35: "+lines[34], parts[31])
	})

	t.Run("clamped at file start", func(t *testing.T) {
		t.Parallel()
		got := ExtractSnippet(dir, "src/math.js:2")
		assert.True(t, strings.HasPrefix(got, "FILE_SNIPPET (src/math.js lines 1-17):\n1: "))
	})

	t.Run("clamped at file end", func(t *testing.T) {
		t.Parallel()
		got := ExtractSnippet(dir, "src/math.js:39")
		assert.True(t, strings.HasPrefix(got, "FILE_SNIPPET (src/math.js lines 24-40):"))
	})

	t.Run("unavailable", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, SnippetUnavailable, ExtractSnippet(dir, "src/missing.js:4 and src/math.js:0"))
		assert.Equal(t, SnippetUnavailable, ExtractSnippet(dir, ".selfheal.patch:7"))
	})
}

func TestNaming(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "selfheal/run-42-abcdef12", BranchName(42, "abcdef1234567890"))
	assert.Equal(t, "selfheal/run-7-abc", BranchName(7, "abc"))
	assert.Equal(t, "Self-heal: CI fix for run 42", CommitMessage(42))
}

func TestClipAndTail(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", Clip("abc", 3))
	assert.Equal(t, "ab\n...[truncated]", Clip("abc", 2))

	assert.Equal(t, "cdé", Tail("abcdé", 3))
	assert.Equal(t, "abc", Tail("abc", 10))
	assert.Equal(t, "", Tail("abc", 0))
}
