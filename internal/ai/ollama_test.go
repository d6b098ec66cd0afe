package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ndjsonServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
			flusher.Flush()
		}
	}))
}

func TestOllamaGenerateStreamsRecordsInOrder(t *testing.T) {
	srv := ndjsonServer(t, []string{
		`{"response":"Hi"}`,
		`{"response":" there"}`,
		`{"done":true}`,
	})
	defer srv.Close()

	client := NewOllamaClient(srv.URL, time.Second)

	var got []GenerateChunk
	err := client.Generate(context.Background(), "gemma3:1b", "Hello", func(c GenerateChunk) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "Hi", got[0].Response)
	assert.Equal(t, " there", got[1].Response)
	assert.True(t, got[2].Done)
}

func TestOllamaGenerateUpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, time.Second)

	err := client.Generate(context.Background(), "gemma3:1b", "Hello", func(GenerateChunk) error {
		t.Fatal("no record should be emitted for a failed request")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestOllamaGenerateConnectionRefused(t *testing.T) {
	// A server that is started and immediately closed leaves a port nothing
	// listens on.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewOllamaClient(srv.URL, time.Second)

	err := client.Generate(context.Background(), "gemma3:1b", "Hello", func(GenerateChunk) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrUpstreamDown)
}

func TestOllamaGenerateStopStream(t *testing.T) {
	srv := ndjsonServer(t, []string{
		`{"response":"a"}`,
		`{"response":"b"}`,
		`{"response":"c"}`,
	})
	defer srv.Close()

	client := NewOllamaClient(srv.URL, time.Second)

	var count int
	err := client.Generate(context.Background(), "gemma3:1b", "Hello", func(c GenerateChunk) error {
		count++
		if count == 2 {
			return ErrStopStream
		}
		return nil
	})
	require.NoError(t, err, "ErrStopStream ends reading without error")
	assert.Equal(t, 2, count)
}

func TestOllamaGenerateCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(`{"response":"partial"}` + "\n"))
		flusher.Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	client := NewOllamaClient(srv.URL, time.Minute)

	err := client.Generate(ctx, "gemma3:1b", "Hello", func(GenerateChunk) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOllamaGenerateIdleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(`{"response":"then silence"}` + "\n"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, 50*time.Millisecond)

	err := client.Generate(context.Background(), "gemma3:1b", "Hello", func(GenerateChunk) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrIdleTimeout)
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/version", r.URL.Path)
		_, _ = w.Write([]byte(`{"version":"0.6.2"}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, time.Second)
	assert.NoError(t, client.Ping(context.Background()))

	srv.Close()
	assert.ErrorIs(t, client.Ping(context.Background()), ErrUpstreamUnavailable)
}

func TestOllamaGenerateFlushesResidualOnEOF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Final record arrives without a trailing newline.
		_, _ = w.Write([]byte(`{"response":"a"}` + "\n" + `{"response":"b"}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, time.Second)

	var got []string
	err := client.Generate(context.Background(), "gemma3:1b", "Hello", func(c GenerateChunk) error {
		got = append(got, c.Response)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}
