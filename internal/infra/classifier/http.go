// Package classifier talks to the model sidecar that runs feature
// extraction and inference. The gateway never executes models in-process;
// it forwards audio and normalizes whatever shape the sidecar returns.
package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
	"github.com/respiralab/breathe-easy/internal/normalize"
)

const defaultServiceURL = "http://127.0.0.1:8001"

// Client communicates with the inference sidecar over HTTP.
type Client struct {
	serviceURL string
	httpc      *http.Client
}

func New(serviceURL string, timeout time.Duration) *Client {
	if serviceURL == "" {
		serviceURL = defaultServiceURL
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		serviceURL: serviceURL,
		httpc:      &http.Client{Timeout: timeout},
	}
}

// Healthy verifies the sidecar is reachable.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("inference service not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Classify uploads the audio file and returns the normalized prediction.
func (c *Client) Classify(ctx context.Context, audioPath string) (domain.AnalysisResult, error) {
	file, err := os.Open(filepath.Clean(audioPath))
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/predict", body)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.AnalysisResult{}, fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, raw)
	}

	res := normalize.Result(normalize.UnwrapEnvelope(raw))
	if res.HasError() {
		return domain.AnalysisResult{}, fmt.Errorf("inference service error: %s", res.Error)
	}
	return res, nil
}
