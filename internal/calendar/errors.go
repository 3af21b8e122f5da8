package calendar

import (
	"fmt"
	"net/http"

	"github.com/MrWong99/glyphoxa/internal/apperr"
)

// MapStatusError classifies an HTTP response from a calendar provider into
// the closed [apperr.Kind] set: 401 -> auth_expired, 403 ->
// permission_denied, 404 -> not_found is folded into upstream_error since
// apperr has no dedicated not-found kind, everything else -> upstream_error
// with the provider's message preserved.
func MapStatusError(provider string, statusCode int, body string) error {
	msg := fmt.Sprintf("calendar: %s returned status %d: %s", provider, statusCode, body)
	switch statusCode {
	case http.StatusUnauthorized:
		return apperr.New(apperr.KindAuthExpired, "%s", msg)
	case http.StatusForbidden:
		return apperr.New(apperr.KindPermissionDenied, "%s", msg)
	default:
		return apperr.New(apperr.KindUpstreamError, "%s", msg)
	}
}
