package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/motorlot/motorlot/internal/auctionerrors"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "validation",
			err:        auctionerrors.Validationf("bid amount must be positive"),
			wantStatus: http.StatusBadRequest,
			wantBody:   "bid amount must be positive",
		},
		{
			name:       "not found",
			err:        auctionerrors.NotFoundf("auction"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "state conflict",
			err:        auctionerrors.StateConflictf("auction is RUNNING"),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "domain sentinel keeps its category",
			err:        auctionerrors.ErrAuctionNotRunning,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "concurrency hides detail",
			err:        auctionerrors.ErrLeaseHeld,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "temporarily unavailable, retry",
		},
		{
			name:       "unknown hides detail",
			err:        errors.New("pq: connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			if tt.wantBody != "" {
				require.Contains(t, body.Error, tt.wantBody)
			}
		})
	}
}
