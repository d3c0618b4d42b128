package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code       string
		wantStatus int
	}{
		{ErrSyncInProgressCode, http.StatusLocked},
		{ErrBadRequestCode, http.StatusBadRequest},
		{ErrMalformedExportCode, http.StatusBadRequest},
		{ErrInvalidCIDCode, http.StatusBadRequest},
		{ErrNoResourceCode, http.StatusNotFound},
		{ErrRemoteUnavailableCode, http.StatusInternalServerError},
		{ErrReconciliationConflictCode, http.StatusInternalServerError},
		{ErrInternalCode, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			Respond(w, r, nil, NewError(tc.code, "boom"))
			require.Equal(t, tc.wantStatus, w.Code)
			require.Equal(t, tc.code, w.Header().Get(AppErrorHeader))
		})
	}
}

func TestRespondData(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	Respond(w, r, map[string]int{"clock": 7}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"clock": 7}`, w.Body.String())
}

func TestRespondNilDataIsNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	Respond(w, r, nil, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestToJSONResponse(t *testing.T) {
	handler := ToJSONResponse(func(ctx context.Context, r *http.Request) (interface{}, error) {
		return map[string]bool{"ok": true}, nil
	})
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ok": true}`, w.Body.String())
}

func TestErrCode(t *testing.T) {
	require.Equal(t, ErrInvalidCIDCode, ErrCode(NewError(ErrInvalidCIDCode, "bad cid")))
	require.Equal(t, ErrInternalCode, ErrCode(http.ErrServerClosed))
	require.True(t, IsCode(NewError(ErrSyncInProgressCode, "locked"), ErrSyncInProgressCode))
	require.False(t, IsCode(nil, ErrSyncInProgressCode))
}
