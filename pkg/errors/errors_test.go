package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCode(t *testing.T) {
	meta := MetadataFor(CodeEntitlement)
	if meta.HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for entitlement, got %d", meta.HTTPStatus)
	}
	if meta.Retryable {
		t.Fatal("entitlement errors must not be retryable")
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("BOGUS"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestConcurrencyCodeIsRetryable(t *testing.T) {
	if !MetadataFor(CodeConcurrency).Retryable {
		t.Fatal("concurrency conflicts must be retryable")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeDependency, cause, "save loan")
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be discoverable via errors.Is")
	}
	if As(err).Code() != CodeDependency {
		t.Fatalf("unexpected code %s", As(err).Code())
	}
}

func TestWrapNilCauseBehavesLikeNew(t *testing.T) {
	err := Wrap(CodeNotFound, nil, "loan not found")
	if err.Unwrap() != nil {
		t.Fatal("expected no cause")
	}
	if err.Error() != "NOT_FOUND: loan not found" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestAsReturnsNilForForeignErrors(t *testing.T) {
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("expected nil for non-typed error")
	}
	if As(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestHasCode(t *testing.T) {
	err := New(CodeStateConflict, "loan not renewable")
	if !HasCode(err, CodeStateConflict) {
		t.Fatal("expected HasCode to match")
	}
	if HasCode(err, CodeNotFound) {
		t.Fatal("expected HasCode mismatch")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(CodeValidation, "bad input").WithDetails(map[string]string{"days": "must be positive"})
	details, ok := err.Details().(map[string]string)
	if !ok || details["days"] != "must be positive" {
		t.Fatalf("unexpected details %v", err.Details())
	}
}
