package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: "transcript not found",
	}

	expected := "NOT_FOUND: transcript not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("url is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "url is required" {
		t.Errorf("Message = %q, want %q", err.Message, "url is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("https://youtu.be/abc123")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "https://youtu.be/abc123" {
		t.Errorf("Details[identifier] = %v", err.Details["identifier"])
	}
}

func TestNewInvalidRecord(t *testing.T) {
	err := NewInvalidRecord("utterances[2]", "end before start")

	if err.Code != ErrInvalidRecord {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRecord)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if err.Details["field"] != "utterances[2]" {
		t.Errorf("Details[field] = %v, want utterances[2]", err.Details["field"])
	}
}

func TestNewDecode(t *testing.T) {
	cause := fmt.Errorf("unexpected end of JSON input")
	err := NewDecode("utterances", cause)

	if err.Code != ErrDecode {
		t.Errorf("Code = %q, want %q", err.Code, ErrDecode)
	}
	if !stderrors.Is(err, cause) {
		t.Error("decode error should unwrap to its cause")
	}
	if err.Message != "malformed utterances: unexpected end of JSON input" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewCachePersist(t *testing.T) {
	cause := fmt.Errorf("database is locked")
	err := NewCachePersist("abc", cause)

	if err.Code != ErrCachePersist {
		t.Errorf("Code = %q, want %q", err.Code, ErrCachePersist)
	}
	if err.Status != 503 {
		t.Errorf("Status = %d, want 503", err.Status)
	}
	if err.Details["key"] != "abc" {
		t.Errorf("Details[key] = %v, want abc", err.Details["key"])
	}
	if !stderrors.Is(err, cause) {
		t.Error("persist error should unwrap to its cause")
	}
}

func TestNewComputeFailed(t *testing.T) {
	err := NewComputeFailed("download", fmt.Errorf("exit status 1"))

	if err.Code != ErrComputeFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrComputeFailed)
	}
	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if err.Message != "download failed: exit status 1" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewInternal(fmt.Errorf("database connection failed"))

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want generic message", err.Message)
		}
		if err.Details["internal_error"] != "database connection failed" {
			t.Errorf("Details[internal_error] = %q", err.Details["internal_error"])
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)
		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		if !Is(NewNotFound("x"), ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		if Is(NewNotFound("x"), ErrDecode) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if Is(fmt.Errorf("plain error"), ErrNotFound) {
			t.Error("Is() = true, want false for plain error")
		}
	})

	t.Run("wrapped", func(t *testing.T) {
		wrapped := fmt.Errorf("lookup: %w", NewDecode("chapters", nil))
		if !Is(wrapped, ErrDecode) {
			t.Error("Is() = false, want true for wrapped error")
		}
	})
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(NewCachePersist("k", nil)); got != 503 {
		t.Errorf("StatusOf(persist) = %d, want 503", got)
	}
	if got := StatusOf(fmt.Errorf("boom")); got != 500 {
		t.Errorf("StatusOf(plain) = %d, want 500", got)
	}
}
