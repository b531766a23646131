package approvals

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shiftline/shiftline/internal/timeclock"
)

// Missing manager notes map to notes_required; reason_required belongs to
// the worker-side manual entry taxonomy in timeclock.
func TestWriteServiceErrorCodes(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrNotFound, http.StatusNotFound, "not_found"},
		{ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
		{ErrNotesRequired, http.StatusUnprocessableEntity, "notes_required"},
		{ErrNotReviewable, http.StatusConflict, "not_reviewable"},
		{timeclock.ErrInvalidRange, http.StatusUnprocessableEntity, "invalid_range"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.writeServiceError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.code)
		require.Contains(t, rec.Body.String(), `"`+tc.code+`"`)
	}
}
