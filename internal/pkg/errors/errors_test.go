package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New("RESTORE_NOT_FOUND", "restore not found", http.StatusNotFound),
			want: "RESTORE_NOT_FOUND: restore not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("db error"), "DB_ERROR", "database failure", http.StatusInternalServerError),
			want: "DB_ERROR: database failure: db error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(inner, "CODE", "msg", 500)

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := NotFound("NOT_FOUND", "resource not found")
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, want NOT_FOUND", got.Code)
	}
	if !HasCode(wrapped, "NOT_FOUND") {
		t.Error("HasCode should match wrapped code")
	}
	if HasCode(errors.New("plain"), "NOT_FOUND") {
		t.Error("HasCode should not match a plain error")
	}
}

func TestErrACLCredentialNotFoundf(t *testing.T) {
	cause := errors.New("index out of range")
	err := ErrACLCredentialNotFoundf("prod", cause)

	if err.Code != CodeACLCredentialNotFound {
		t.Errorf("Code = %q", err.Code)
	}
	if err.Message != "credential ACLFROMHELL for env prod not found" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Params["environment"] != "prod" {
		t.Errorf("Params = %v", err.Params)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be wrapped")
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
	}{
		{"NotFound", NotFound("NF", "not found"), http.StatusNotFound},
		{"BadRequest", BadRequest("BR", "bad request"), http.StatusBadRequest},
		{"Upstream", Upstream("ACL_NOT_ACCEPTED", "rejected"), http.StatusBadGateway},
		{"Unavailable", Unavailable(errors.New("conn refused"), CodeStoreUnavailable, "store down"), http.StatusServiceUnavailable},
		{"RestoreNotFound", ErrRestoreNotFoundf(7), http.StatusNotFound},
		{"VMNotFound", ErrVMNotFoundf("h1"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
		})
	}
}
