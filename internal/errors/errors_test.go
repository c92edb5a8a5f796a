package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "job not found"},
			want: "job not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "clone failed",
				Cause:   errors.New("exit status 128"),
			},
			want: "clone failed: exit status 128",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternal, "wrapped error")
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "x"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
	if err := Wrapf(nil, ErrCodeInternal, "x %d", 1); err != nil {
		t.Errorf("Wrapf(nil) = %v, want nil", err)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
		msg  string
	}{
		{"not found", NotFound("missing"), ErrCodeNotFound, "missing"},
		{"not foundf", NotFoundf("job %s not found", "j1"), ErrCodeNotFound, "job j1 not found"},
		{"conflict", Conflict("dup"), ErrCodeConflict, "dup"},
		{"validation", Validationf("runId must be positive, got %d", -1), ErrCodeValidation, "runId must be positive, got -1"},
		{"internal", Internal("boom"), ErrCodeInternal, "boom"},
		{"planner", Planner("Planner did not return valid JSON."), ErrCodePlanner, "Planner did not return valid JSON."},
		{"patch format", PatchFormat("no diff"), ErrCodePatchFormat, "no diff"},
		{"patch apply", PatchApply("corrupt patch"), ErrCodePatchApply, "corrupt patch"},
		{"rewrite empty", RewriteEmpty("empty"), ErrCodeRewriteEmpty, "empty"},
		{"verification", Verification("2 failing"), ErrCodeVerification, "2 failing"},
		{"call", Callf("OpenAI error %d", 500), ErrCodeCall, "OpenAI error 500"},
		{"rate limit", RateLimit("rate limit exceeded"), ErrCodeRateLimit, "rate limit exceeded"},
		{"percent without args", Internal("100% done"), ErrCodeInternal, "100% done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.Message != tt.msg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.msg)
			}
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("runId", "runId is required")
	if err.Code != ErrCodeValidation || err.Field != "runId" {
		t.Errorf("ValidationField() = %+v", err)
	}
	if GetField(fmt.Errorf("ctx: %w", err)) != "runId" {
		t.Errorf("GetField() through wrap lost the field")
	}
}

func TestPredicates(t *testing.T) {
	wrapped := func(e error) error { return fmt.Errorf("outer: %w", e) }

	tests := []struct {
		name string
		fn   func(error) bool
		yes  error
		no   error
	}{
		{"IsNotFound", IsNotFound, NotFound("x"), Conflict("x")},
		{"IsConflict", IsConflict, wrapped(Conflict("x")), NotFound("x")},
		{"IsValidation", IsValidation, Validation("x"), Internal("x")},
		{"IsInternal", IsInternal, Internal("x"), Validation("x")},
		{"IsTimeout", IsTimeout, &AppError{Code: ErrCodeTimeout}, Internal("x")},
		{"IsCanceled", IsCanceled, &AppError{Code: ErrCodeCanceled}, Internal("x")},
		{"IsPlanner", IsPlanner, Planner("x"), PatchFormat("x")},
		{"IsPatchFormat", IsPatchFormat, wrapped(PatchFormat("x")), PatchApply("x")},
		{"IsPatchApply", IsPatchApply, PatchApply("x"), PatchFormat("x")},
		{"IsRewriteEmpty", IsRewriteEmpty, RewriteEmpty("x"), PatchFormat("x")},
		{"IsVerification", IsVerification, Verification("x"), Call("x")},
		{"IsRateLimit", IsRateLimit, wrapped(RateLimit("x")), Call("x")},
		{"IsCall plain", IsCall, Call("x"), Verification("x")},
		{"IsCall rate limit", IsCall, RateLimit("x"), errors.New("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.fn(tt.yes) {
				t.Errorf("%s(%v) = false, want true", tt.name, tt.yes)
			}
			if tt.fn(tt.no) {
				t.Errorf("%s(%v) = true, want false", tt.name, tt.no)
			}
			if tt.fn(nil) {
				t.Errorf("%s(nil) = true, want false", tt.name)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %q, want empty", got)
	}
	if got := GetCode(wrapErr(Verification("x"))); got != ErrCodeVerification {
		t.Errorf("GetCode() = %q, want %q", got, ErrCodeVerification)
	}
}

func wrapErr(err error) error { return fmt.Errorf("step: %w", err) }
