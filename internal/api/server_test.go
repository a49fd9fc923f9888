package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jin09/BulkMail/internal/batch"
	"github.com/jin09/BulkMail/internal/dispatch"
	"github.com/jin09/BulkMail/internal/results"
)

type stubDispatcher struct {
	gotReq  batch.Request
	batchID string
	err     error
}

func (s *stubDispatcher) Submit(_ context.Context, req batch.Request) (string, error) {
	s.gotReq = req
	return s.batchID, s.err
}

type stubAggregator struct {
	status dispatch.BatchStatus
	err    error
}

func (s *stubAggregator) Status(context.Context, string) (dispatch.BatchStatus, error) {
	return s.status, s.err
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestSubmitAccepted(t *testing.T) {
	disp := &stubDispatcher{batchID: "b-123"}
	srv := NewServer(disp, &stubAggregator{}, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/v1/batches", `{
		"recipients": ["e1@x.com", "e2@x.com"],
		"subject": "Hi {name}",
		"body": "Hello {name}!",
		"defaults": {"name": "friend"},
		"personalization": {"e1@x.com": {"name": "Alice"}}
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "b-123", resp.BatchID)

	assert.Equal(t, []string{"e1@x.com", "e2@x.com"}, disp.gotReq.Recipients)
	assert.Equal(t, "Alice", disp.gotReq.Personalization["e1@x.com"]["name"])
	assert.Equal(t, "friend", disp.gotReq.Defaults["name"])
}

func TestSubmitRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{{`},
		{name: "no recipients", body: `{"subject":"s","body":"b"}`},
		{name: "empty recipients", body: `{"recipients":[],"subject":"s","body":"b"}`},
		{name: "malformed address", body: `{"recipients":["not-an-email"],"subject":"s","body":"b"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&stubDispatcher{}, &stubAggregator{}, nil, nil)
			rec := doRequest(t, srv, http.MethodPost, "/v1/batches", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestSubmitQueueDown(t *testing.T) {
	disp := &stubDispatcher{err: &dispatch.DispatchError{Err: errors.New("nsqd unreachable")}}
	srv := NewServer(disp, &stubAggregator{}, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/v1/batches",
		`{"recipients":["e1@x.com"],"subject":"s","body":"b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitValidationErrorFromDispatcher(t *testing.T) {
	disp := &stubDispatcher{err: &batch.ValidationError{Field: "recipients", Detail: "must be bare addresses"}}
	srv := NewServer(disp, &stubAggregator{}, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/v1/batches",
		`{"recipients":["e1@x.com"],"subject":"s","body":"b"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFound(t *testing.T) {
	agg := &stubAggregator{status: dispatch.BatchStatus{
		BatchID: "b-123",
		Recipients: []dispatch.RecipientStatus{
			{TaskID: "t1", Recipient: "e1@x.com", Status: results.StatusSuccess},
			{TaskID: "t2", Recipient: "e2@x.com", Status: results.StatusPending},
		},
		Pending:   1,
		Succeeded: 1,
	}}
	srv := NewServer(&stubDispatcher{}, agg, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/v1/batches/b-123", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st dispatch.BatchStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "b-123", st.BatchID)
	require.Len(t, st.Recipients, 2)
	assert.False(t, st.OverallComplete)
}

func TestStatusNotFound(t *testing.T) {
	srv := NewServer(&stubDispatcher{}, &stubAggregator{err: results.ErrBatchNotFound}, nil, nil)
	rec := doRequest(t, srv, http.MethodGet, "/v1/batches/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	srv := NewServer(&stubDispatcher{}, &stubAggregator{err: results.ErrBatchNotFound}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/x", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = doRequest(t, srv, http.MethodGet, "/v1/batches/x", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthz(t *testing.T) {
	srv := NewServer(&stubDispatcher{}, &stubAggregator{}, func(context.Context) error { return nil }, nil)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	srv = NewServer(&stubDispatcher{}, &stubAggregator{}, func(context.Context) error { return errors.New("down") }, nil)
	rec = doRequest(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
