package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusForCode(t *testing.T) {
	cases := map[string]int{
		CodeUnauthorized:       http.StatusUnauthorized,
		CodeForbidden:          http.StatusForbidden,
		CodeValidation:         http.StatusBadRequest,
		CodeInvalidRequest:     http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeDuplicateEntry:     http.StatusConflict,
		CodeInvalidCredentials: http.StatusUnauthorized,
		CodeRateLimited:        http.StatusTooManyRequests,
		CodeInternal:           http.StatusInternalServerError,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := StatusForCode(code); got != want {
			t.Fatalf("expected status %d for %s, got %d", want, code, got)
		}
	}
}

func TestAsUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NotFound("user not found"))
	e, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected wrapped *Error to be found")
	}
	if e.Code != CodeNotFound {
		t.Fatalf("expected code %s, got %s", CodeNotFound, e.Code)
	}
	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Fatalf("expected plain errors to classify as internal")
	}
}

func TestInvalidCredentialsIsIdentical(t *testing.T) {
	a := InvalidCredentials()
	b := InvalidCredentials()
	if a.Code != b.Code || a.Message != b.Message || a.Err != nil || b.Err != nil {
		t.Fatalf("expected identical credential errors, got %+v and %+v", a, b)
	}
}
