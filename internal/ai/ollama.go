package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

var (
	// ErrUpstreamUnavailable reports that the generate request could not be
	// established: transport failure or a non-success status before any
	// stream record was seen.
	ErrUpstreamUnavailable = errors.New("ollama unavailable")

	// ErrUpstreamDown reports the connection was refused outright, the
	// service is not running at all.
	ErrUpstreamDown = errors.New("ollama connection refused")

	// ErrIdleTimeout reports that the upstream connection went silent for
	// longer than the configured read idle timeout mid-stream.
	ErrIdleTimeout = errors.New("ollama read idle timeout")

	// ErrStopStream can be returned by onRecord to stop reading the stream
	// without surfacing an error.
	ErrStopStream = errors.New("stop stream")
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// OllamaClient streams completions from a local Ollama HTTP service.
type OllamaClient struct {
	baseURL     string
	idleTimeout time.Duration
	httpClient  *http.Client
}

func NewOllamaClient(baseURL string, idleTimeout time.Duration) *OllamaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	return &OllamaClient{
		baseURL:     baseURL,
		idleTimeout: idleTimeout,
		// No overall timeout: generations are open-ended, the idle
		// watchdog bounds a silent connection instead.
		httpClient: &http.Client{},
	}
}

// Ping reports whether the service answers at all. Generation failures are
// already surfaced in-band, so callers treat this as informational.
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("build version request failed: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	return nil
}

// Generate issues a streaming generate request and invokes onRecord for every
// decoded record in arrival order. It returns ErrUpstreamDown if the
// connection is refused, ErrUpstreamUnavailable if the request otherwise
// cannot be established, ctx.Err() if the caller cancels, and
// ErrIdleTimeout if the connection goes silent mid-stream. onRecord may
// return ErrStopStream to end reading early without error.
func (c *OllamaClient) Generate(ctx context.Context, model, prompt string, onRecord func(GenerateChunk) error) error {
	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return fmt.Errorf("marshal generate request failed: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build generate request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("%w: %v", ErrUpstreamDown, err)
		}
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var idleFired atomic.Bool
	var watchdog *time.Timer
	if c.idleTimeout > 0 {
		watchdog = time.AfterFunc(c.idleTimeout, func() {
			idleFired.Store(true)
			cancel()
		})
		defer watchdog.Stop()
	}

	decoder := &LineDecoder{}
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if watchdog != nil {
				watchdog.Reset(c.idleTimeout)
			}
			if err := decoder.Feed(buf[:n], onRecord); err != nil {
				if errors.Is(err, ErrStopStream) {
					return nil
				}
				return err
			}
		}
		if readErr == io.EOF {
			if err := decoder.Flush(onRecord); err != nil && !errors.Is(err, ErrStopStream) {
				return err
			}
			return nil
		}
		if readErr != nil {
			if idleFired.Load() {
				return ErrIdleTimeout
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read generate stream failed: %w", readErr)
		}
	}
}
