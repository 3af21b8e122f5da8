package calendar_test

import (
	"net/http"
	"testing"

	"github.com/MrWong99/glyphoxa/internal/apperr"
	"github.com/MrWong99/glyphoxa/internal/calendar"
)

func TestMapStatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   apperr.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, apperr.KindAuthExpired},
		{"forbidden", http.StatusForbidden, apperr.KindPermissionDenied},
		{"not found", http.StatusNotFound, apperr.KindUpstreamError},
		{"server error", http.StatusInternalServerError, apperr.KindUpstreamError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := calendar.MapStatusError("google", tc.status, "boom")
			if !apperr.Is(err, tc.want) {
				t.Errorf("MapStatusError(%d) kind = %v, want %v", tc.status, apperr.KindOf(err), tc.want)
			}
		})
	}
}
