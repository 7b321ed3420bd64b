package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithHTTP(server.URL+"/", server.Client())
}

func writeEnvelope(w http.ResponseWriter, status, code int, data any, message string) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Code: code, Data: raw, Message: message})
}

func TestStartSessionSendsFullMode(t *testing.T) {
	var got StartSessionRequest
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/session/start", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, http.StatusOK, CodeSuccess, StartSessionResponse{
			SessionID:          "s-1",
			LiveKitURL:         "wss://lk.example",
			LiveKitClientToken: "tok",
		}, "")
	})

	res, err := c.StartSession(context.Background(), "avatar-1", "ctx-1")
	assert.NoError(t, err)
	assert.Equal(t, "FULL", got.Mode)
	assert.Equal(t, "avatar-1", got.AvatarID)
	assert.Equal(t, "ctx-1", got.AvatarPersona)
	assert.Equal(t, "s-1", res.SessionID)
	assert.Equal(t, "tok", res.LiveKitClientToken)
}

func TestNonSuccessCodeBecomesAPIError(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, 4001, nil, "avatar busy")
	})

	err := c.KeepAlive(context.Background(), "s-1")
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 4001, apiErr.Code)
	assert.Equal(t, "avatar busy", apiErr.Error())
}

func TestNon2xxWithoutEnvelope(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	})

	_, err := c.GetAvatar(context.Background(), "a-1")
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "backend returned 502", apiErr.Error())
}

func TestStopSessionDefaultsReason(t *testing.T) {
	var got StopSessionRequest
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session/stop", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, http.StatusOK, CodeSuccess, nil, "")
	})

	assert.NoError(t, c.StopSession(context.Background(), "s-9", ""))
	assert.Equal(t, StopReasonUnknown, got.Reason)
	assert.Equal(t, "s-9", got.SessionID)
}

func TestContextRoundTrip(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/context":
			var req CreateContextRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.NotNil(t, req.Links)
			writeEnvelope(w, http.StatusOK, CodeSuccess, Context{ID: "c-1", Name: req.Name}, "")
		case r.Method == http.MethodGet && r.URL.Path == "/context/c-1":
			writeEnvelope(w, http.StatusOK, CodeSuccess, Context{ID: "c-1", Name: "tour", Prompt: "be nice"}, "")
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	created, err := c.CreateContext(context.Background(), CreateContextRequest{Name: "tour"})
	assert.NoError(t, err)
	assert.Equal(t, "c-1", created.ID)

	got, err := c.GetContext(context.Background(), created.ID)
	assert.NoError(t, err)
	assert.Equal(t, "be nice", got.Prompt)
}

func TestMissingBaseURL(t *testing.T) {
	err := NewClient("").KeepAlive(context.Background(), "s")
	assert.ErrorIs(t, err, ErrMissingBaseURL)
}
