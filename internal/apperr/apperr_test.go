package apperr_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/glyphoxa/internal/apperr"
)

func TestWrapPreservesCauseAndKind(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperr.Wrap(apperr.KindUpstreamError, cause, "calendar provider %q failed", "google")

	if got := apperr.KindOf(err); got != apperr.KindUpstreamError {
		t.Errorf("KindOf() = %q, want %q", got, apperr.KindUpstreamError)
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause) to be true")
	}
}

func TestKindOfUnclassifiedReturnsInternal(t *testing.T) {
	if got := apperr.KindOf(errors.New("boom")); got != apperr.KindInternal {
		t.Errorf("KindOf() = %q, want %q", got, apperr.KindInternal)
	}
}

func TestIs(t *testing.T) {
	err := apperr.New(apperr.KindUnknownTenant, "tenant %q not found", "acme")
	if !apperr.Is(err, apperr.KindUnknownTenant) {
		t.Error("expected Is() to match KindUnknownTenant")
	}
	if apperr.Is(err, apperr.KindTenantSuspended) {
		t.Error("expected Is() not to match KindTenantSuspended")
	}
}
