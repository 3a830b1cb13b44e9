package social

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
)

// apiClient is the shared HTTP plumbing for the REST-style publish backends.
// It decodes 2xx bodies into out and converts everything else into a
// classified dispatch error carrying the target name.
type apiClient struct {
	name string
	http *http.Client
}

func newAPIClient(name string) *apiClient {
	return &apiClient{name: name, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *apiClient) postJSON(ctx context.Context, rawURL string, headers map[string]string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return dispatch.WrapError(dispatch.KindClient, c.name, err)
	}
	return c.do(ctx, http.MethodPost, rawURL, headers, "application/json", bytes.NewReader(raw), out)
}

func (c *apiClient) postForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, rawURL, nil, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), out)
}

func (c *apiClient) do(ctx context.Context, method, rawURL string, headers map[string]string, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return dispatch.WrapError(dispatch.KindClient, c.name, err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return dispatch.Classify(c.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return dispatch.Classify(c.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return dispatch.FromStatus(c.name, resp.StatusCode, errorMessage(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return dispatch.WrapError(dispatch.KindServer, c.name, err)
		}
	}
	return nil
}

// errorMessage digs a human-readable message out of the common provider
// error envelopes; falls back to a truncated raw body.
func errorMessage(data []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		switch {
		case envelope.Error != nil && envelope.Error.Message != "":
			return envelope.Error.Message
		case envelope.Message != "":
			return envelope.Message
		case envelope.Detail != "":
			return envelope.Detail
		case envelope.Title != "":
			return envelope.Title
		}
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
