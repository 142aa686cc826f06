package cli

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type discardBuffer struct{}

func (discardBuffer) Write(p []byte) (int, error) { return len(p), nil }

func newRecordingServer(t *testing.T, rec *requestRecorder) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}
