package qerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := Validation("notebook is required")
	wrapped := fmt.Errorf("execute: %w", base)

	if got := KindOf(wrapped); got != KindValidation {
		t.Errorf("Expected kind %s, got %s", KindValidation, got)
	}
	if !errors.Is(wrapped, ErrValidation) {
		t.Error("Expected errors.Is to match the validation sentinel")
	}
	if errors.Is(wrapped, ErrConflict) {
		t.Error("Expected errors.Is not to match the conflict sentinel")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("Expected kind %s, got %s", KindInternal, got)
	}
	if IsKind(nil, KindInternal) {
		t.Error("Expected nil error to match no kind")
	}
}

func TestNewNil(t *testing.T) {
	if err := New(KindConflict, nil); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient(cause, "creating job").ForJob("job-42")

	want := "job job-42: creating job: connection refused"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected cause to be reachable through Unwrap")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Conflict("exists"), http.StatusConflict},
		{Rejected(nil, "quota"), http.StatusForbidden},
		{Transient(nil, "unavailable"), http.StatusServiceUnavailable},
		{WorkloadFailure("job-1", "exit"), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v): expected %d, got %d", tc.err, tc.want, got)
		}
	}
}
