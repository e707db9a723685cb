package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/tidwall/gjson"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
	"github.com/respiralab/breathe-easy/internal/normalize"
)

const (
	streamStartPath    = "/api/v1/stream/start"
	streamChunkPath    = "/api/v1/stream/chunk"
	streamFinalizePath = "/api/v1/stream/finalize"
)

// StreamSession is the client side of the chunked-upload protocol: the
// server accumulates chunks keyed by the issued session id until finalize.
type StreamSession struct {
	ID string

	c    *Client
	base string
}

// StartStream opens a new server-side accumulation session.
func (c *Client) StartStream(ctx context.Context) (*StreamSession, error) {
	base := c.resolver.BaseURL()
	raw, err := c.postForm(ctx, base+streamStartPath, map[string]string{}, nil, "")
	if err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}

	id := gjson.GetBytes(normalize.UnwrapEnvelope(raw), "session_id").String()
	if id == "" {
		return nil, fmt.Errorf("start stream: no session_id in response")
	}
	return &StreamSession{ID: id, c: c, base: base}, nil
}

// SendChunk uploads one audio slice to the open session.
func (s *StreamSession) SendChunk(ctx context.Context, chunk []byte) error {
	_, err := s.c.postForm(ctx, s.base+streamChunkPath,
		map[string]string{"session_id": s.ID}, chunk, "chunk")
	if err != nil {
		return fmt.Errorf("send chunk: %w", err)
	}
	return nil
}

// Finalize closes the session and returns the analysis of the stitched
// audio. Unlike Analyze, a finalize failure is returned as an error: the
// caller holds session state and needs to know the session is gone.
func (s *StreamSession) Finalize(ctx context.Context) (domain.AnalysisResult, error) {
	raw, err := s.c.postForm(ctx, s.base+streamFinalizePath,
		map[string]string{"session_id": s.ID}, nil, "")
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("finalize stream: %w", err)
	}
	return normalize.Result(normalize.UnwrapEnvelope(raw)), nil
}

// postForm sends a multipart form with optional binary part and returns the
// raw 2xx body.
func (c *Client) postForm(ctx context.Context, endpoint string, fields map[string]string, blob []byte, blobField string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if blobField != "" {
		part, err := writer.CreateFormFile(blobField, "chunk.wav")
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(blob); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, extractErrorMessage(raw))
	}
	return raw, nil
}
