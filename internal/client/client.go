// Package client implements the analysis client SDK: base URL resolution,
// the unified-analysis upload, and the chunked streaming session protocol.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
	"github.com/respiralab/breathe-easy/internal/normalize"
)

// RetryPolicy controls the single optional retry on the unified path.
type RetryPolicy int

const (
	RetryNone RetryPolicy = iota
	RetryOnceOnTimeout
)

const (
	unifiedPath = "/api/v1/unified"
	healthPath  = "/api/v1/health"

	defaultAnalyzeTimeout = 45 * time.Second
	defaultHealthTimeout  = 5 * time.Second
)

// Displayable messages used when a failure is converted into an
// error-tagged result.
const (
	msgTimedOut    = "Request timed out. Please try again."
	msgUnreachable = "Could not reach the analysis service. Please check your connection."
	msgFailed      = "Analysis failed. Please try again."
)

// Client issues unified-analysis requests. Base URL, timeout policy and
// retry policy are explicit fields so call sites can inject fakes.
type Client struct {
	resolver *Resolver
	httpc    *http.Client

	timeout       time.Duration
	healthTimeout time.Duration
	retry         RetryPolicy
}

// Options tunes the client; zero values mean the defaults above.
type Options struct {
	Timeout       time.Duration
	HealthTimeout time.Duration
	Retry         RetryPolicy
}

func New(resolver *Resolver, opts Options) *Client {
	c := &Client{
		resolver:      resolver,
		httpc:         &http.Client{},
		timeout:       opts.Timeout,
		healthTimeout: opts.HealthTimeout,
		retry:         opts.Retry,
	}
	if c.timeout <= 0 {
		c.timeout = defaultAnalyzeTimeout
	}
	if c.healthTimeout <= 0 {
		c.healthTimeout = defaultHealthTimeout
	}
	return c
}

// Analyze uploads the audio file and returns the normalized result. The
// caller-facing contract is "always returns a result object": transport and
// protocol failures come back as error-tagged results, not errors. The one
// exception is a missing local file, which is a caller bug and fails fast
// before any network I/O.
func (c *Client) Analyze(ctx context.Context, audioPath string, task domain.TaskType) (domain.AnalysisResult, error) {
	if err := checkReadable(audioPath); err != nil {
		return domain.AnalysisResult{}, err
	}

	endpoint := c.resolver.BaseURL() + unifiedPath
	res, err := c.postAudio(ctx, endpoint, audioPath, task)
	if err != nil && c.retry == RetryOnceOnTimeout && isTimeout(err) {
		res, err = c.postAudio(ctx, endpoint, audioPath, task)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return res, nil
}

// AnalyzeFallback tries an ordered list of candidate endpoints, moving on
// after any transport-level failure. If all candidates fail the result is a
// single aggregated error naming the last failure.
func (c *Client) AnalyzeFallback(ctx context.Context, audioPath string, task domain.TaskType, endpoints []string) (domain.AnalysisResult, error) {
	if err := checkReadable(audioPath); err != nil {
		return domain.AnalysisResult{}, err
	}
	if len(endpoints) == 0 {
		endpoints = []string{c.resolver.BaseURL() + unifiedPath}
	}

	var lastErr error
	for _, endpoint := range endpoints {
		res, err := c.postAudio(ctx, endpoint, audioPath, task)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return domain.ErrorResult("error",
		fmt.Sprintf("All %d analysis endpoints failed. Last error: %v", len(endpoints), lastErr)), nil
}

// postAudio performs exactly one multipart POST. The per-call context
// deadline tears down the underlying connection when it fires, so a timed
// out request does not leak a transport-level connection.
func (c *Client) postAudio(ctx context.Context, endpoint, audioPath string, task domain.TaskType) (domain.AnalysisResult, error) {
	file, err := os.Open(filepath.Clean(audioPath))
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: %s", domain.ErrAudioFileMissing, audioPath)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("build form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("copy audio data: %w", err)
	}
	if task != "" {
		if err := writer.WriteField("task_type", string(task)); err != nil {
			return domain.AnalysisResult{}, fmt.Errorf("write task_type field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("close multipart writer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ErrorResult("API", extractErrorMessage(raw)), nil
	}

	return normalize.Result(normalize.UnwrapEnvelope(raw)), nil
}

// HealthStatus is the liveness payload carried by the backend health routes.
type HealthStatus struct {
	Status              string   `json:"status"`
	ModelVersion        string   `json:"model_version,omitempty"`
	Labels              []string `json:"labels,omitempty"`
	LocalModelAvailable bool     `json:"local_model_available"`
}

// Health probes the resolved backend with the short health timeout.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolver.BaseURL()+healthPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return nil, fmt.Errorf("decode health payload: %w", err)
	}
	return &hs, nil
}

// extractErrorMessage pulls a structured message out of a non-2xx body,
// falling back to a generic one when the body is unparseable.
func extractErrorMessage(raw []byte) string {
	body := gjson.ParseBytes(raw)
	for _, key := range []string{"detail", "error", "message"} {
		if v := body.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return msgFailed
}

func errorResult(err error) domain.AnalysisResult {
	if isTimeout(err) {
		return domain.ErrorResult("error", msgTimedOut)
	}
	return domain.ErrorResult("error", msgUnreachable)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", domain.ErrAudioFileMissing, path)
	}
	return nil
}
