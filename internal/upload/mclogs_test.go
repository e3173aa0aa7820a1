package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
)

func newClient() *httpclient.Client {
	return httpclient.New(5*time.Second, 0, time.Millisecond)
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/1/log", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hello log", r.PostForm.Get("content"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"id":"abc","url":"https://mclo.gs/abc","raw":"https://api.mclo.gs/1/raw/abc"}`))
	}))
	defer srv.Close()

	m := NewMclogs(newClient(), srv.URL+"/")
	res, err := m.Upload(context.Background(), "hello log")
	require.NoError(t, err)
	assert.Equal(t, Result{ID: "abc", URL: "https://mclo.gs/abc", Raw: "https://api.mclo.gs/1/raw/abc"}, res)
}

func TestUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"Required POST argument 'content' is empty."}`))
	}))
	defer srv.Close()

	_, err := NewMclogs(newClient(), srv.URL).Upload(context.Background(), "x")
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "content")
}

func TestUploadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewMclogs(newClient(), srv.URL).Upload(context.Background(), "x")
	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
}

func TestUploadEmpty(t *testing.T) {
	_, err := NewMclogs(newClient(), "").Upload(context.Background(), "  \n")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Equal(t, DefaultEndpoint, NewMclogs(nil, "").Endpoint)
}
