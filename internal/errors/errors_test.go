package errors

import (
	"errors"
	"testing"
	"time"
)

func TestParseError(t *testing.T) {
	underlying := errors.New("truncated constant pool")
	err := NewParseError("jar:///rt.jar!/java/lang/String.class", 128, underlying)

	if err.Type != ErrorTypeParse {
		t.Errorf("expected ErrorTypeParse, got %v", err.Type)
	}
	if err.Offset != 128 {
		t.Errorf("expected offset 128, got %d", err.Offset)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("expected error to unwrap to underlying error")
	}
	expected := `parse error in jar:///rt.jar!/java/lang/String.class at offset 128: truncated constant pool`
	if err.Error() != expected {
		t.Errorf("expected message %q, got %q", expected, err.Error())
	}
}

func TestIoError(t *testing.T) {
	underlying := errors.New("permission denied")
	err := NewIoError("read", "/path/to/file.class", underlying)

	if err.Type != ErrorTypeIO {
		t.Errorf("expected ErrorTypeIO, got %v", err.Type)
	}
	if err.Path != "/path/to/file.class" {
		t.Errorf("expected path, got %s", err.Path)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("expected error to unwrap to underlying error")
	}
}

func TestDbConstraintError(t *testing.T) {
	underlying := errors.New("UNIQUE constraint failed")
	err := NewDbConstraintError("java.lang.String.length()I", underlying)

	if err.Type != ErrorTypeDbConstraint {
		t.Errorf("expected ErrorTypeDbConstraint, got %v", err.Type)
	}
	if err.Fqn != "java.lang.String.length()I" {
		t.Errorf("expected fqn, got %s", err.Fqn)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("expected error to unwrap to underlying error")
	}
}

func TestDbOperationalError(t *testing.T) {
	underlying := errors.New("database is locked")
	err := NewDbOperationalError("persist", underlying)

	if err.Type != ErrorTypeDbOperational {
		t.Errorf("expected ErrorTypeDbOperational, got %v", err.Type)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("expected error to unwrap to underlying error")
	}
}

func TestIndexError(t *testing.T) {
	underlying := errors.New("segment write failed")
	err := NewIndexError("commit", underlying)

	if err.Type != ErrorTypeIndex {
		t.Errorf("expected ErrorTypeIndex, got %v", err.Type)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("expected error to unwrap to underlying error")
	}
}

func TestResolveError(t *testing.T) {
	underlying := errors.New("no matching source artifact")
	err := NewResolveError("org/ensime/indexer", "SearchService.scala", underlying)

	if err.Type != ErrorTypeResolve {
		t.Errorf("expected ErrorTypeResolve, got %v", err.Type)
	}
	if err.Package != "org/ensime/indexer" {
		t.Errorf("expected package, got %s", err.Package)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("expected error to unwrap to underlying error")
	}
}

func TestConfigError(t *testing.T) {
	underlying := errors.New("invalid value")
	err := NewConfigError("cache_dir", "", underlying)

	if err.Field != "cache_dir" {
		t.Errorf("expected field cache_dir, got %s", err.Field)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("expected error to unwrap to underlying error")
	}
}

func TestMultiError(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")
	err3 := errors.New("error 3")

	multiErr := NewMultiError([]error{err1, err2, err3})
	if len(multiErr.Errors) != 3 {
		t.Errorf("expected 3 errors, got %d", len(multiErr.Errors))
	}

	errMsg := multiErr.Error()
	if len(errMsg) < 10 || errMsg[:10] != "3 errors: " {
		t.Errorf("expected message to start with '3 errors: ', got %q", errMsg)
	}

	singleErr := NewMultiError([]error{err1})
	if singleErr.Error() != "error 1" {
		t.Errorf("expected 'error 1', got %q", singleErr.Error())
	}

	emptyErr := NewMultiError([]error{})
	if emptyErr.Error() != "no errors" {
		t.Errorf("expected 'no errors', got %q", emptyErr.Error())
	}

	nilFiltered := NewMultiError([]error{err1, nil, err2, nil})
	if len(nilFiltered.Errors) != 2 {
		t.Errorf("expected 2 errors after filtering nil, got %d", len(nilFiltered.Errors))
	}

	unwrapped := multiErr.Unwrap()
	if len(unwrapped) != 3 {
		t.Errorf("expected 3 unwrapped errors, got %d", len(unwrapped))
	}
}

func TestErrorTimestamp(t *testing.T) {
	err := NewDbOperationalError("persist", errors.New("test"))
	if err.Timestamp.IsZero() {
		t.Errorf("expected non-zero timestamp")
	}
	now := time.Now()
	if err.Timestamp.After(now) || now.Sub(err.Timestamp) > time.Second {
		t.Errorf("timestamp seems incorrect: %v", err.Timestamp)
	}
}
