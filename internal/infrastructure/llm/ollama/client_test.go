package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
)

func newTestClient(url string) *Client {
	return New(config.OllamaConfig{BaseURL: url, Timeout: 5 * time.Second, ListTimeout: time.Second}, zap.NewNop())
}

func TestChat_SendsMessagesAndOptions(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi there"},"done":true}`))
	}))
	defer srv.Close()

	temp := 0.3
	reply, err := newTestClient(srv.URL).Chat(context.Background(), "llama3",
		[]service.ChatMessage{{Role: "system", Content: "be nice"}, {Role: "user", Content: "hello"}},
		valueobject.SamplingOptions{Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
	assert.Equal(t, "llama3", got.Model)
	assert.False(t, got.Stream)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, 0.3, got.Options["temperature"])
}

func TestChat_HTTPErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'nope' not found"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), "nope", nil, valueobject.SamplingOptions{})
	var pe *service.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, service.ProviderErrHTTP, pe.Kind)
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
}

func TestChat_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Chat(context.Background(), "llama3", nil, valueobject.SamplingOptions{})
	var pe *service.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, service.ProviderErrConnection, pe.Kind)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5:7b"},{"name":"llama3:latest"}]}`))
	}))
	defer srv.Close()

	models, err := newTestClient(srv.URL).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5:7b", "llama3:latest"}, models)
}

func TestChat_BreakerStopsCallingDeadEngine(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(config.OllamaConfig{BaseURL: url, Timeout: time.Second, FailureThreshold: 2, RecoveryTimeout: time.Hour}, zap.NewNop())
	for i := 0; i < 2; i++ {
		_, err := c.Chat(context.Background(), "llama3", nil, valueobject.SamplingOptions{})
		require.Error(t, err)
	}
	require.Equal(t, breakerOpen, c.breaker.current())

	_, err := c.ListModels(context.Background())
	var pe *service.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, service.ProviderErrConnection, pe.Kind)
	assert.ErrorIs(t, err, errEngineDown)
}

func TestListModels_TimeoutTripsBreaker(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(config.OllamaConfig{BaseURL: srv.URL, ListTimeout: 50 * time.Millisecond, FailureThreshold: 1, RecoveryTimeout: time.Hour}, zap.NewNop())
	_, err := c.ListModels(context.Background())
	require.Error(t, err)
	assert.Equal(t, breakerOpen, c.breaker.current())
}

func TestListModels_CallerCancelDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(config.OllamaConfig{BaseURL: srv.URL, ListTimeout: time.Minute, FailureThreshold: 1}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.ListModels(ctx)
	require.Error(t, err)
	assert.Equal(t, breakerClosed, c.breaker.current())
}

func TestChat_HTTPErrorDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(config.OllamaConfig{BaseURL: srv.URL, FailureThreshold: 1}, zap.NewNop())
	for i := 0; i < 3; i++ {
		_, err := c.Chat(context.Background(), "llama3", nil, valueobject.SamplingOptions{})
		require.Error(t, err)
	}
	assert.Equal(t, breakerClosed, c.breaker.current())
}
