package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smilemakc/mbflow/pkg/task"
)

const httpGetResultCap = 500

// HTTPGetParams is the validated params shape for http_get.
type HTTPGetParams struct {
	URL     string            `json:"url" validate:"required,url"`
	Headers map[string]string `json:"headers"`
	Timeout float64           `json:"timeout"`
}

// HTTPGet implements the http_get task: fetches a URL and reports status,
// parsed-or-truncated body, and response headers.
type HTTPGet struct {
	client *http.Client
}

// NewHTTPGet returns a fresh http_get task instance.
func NewHTTPGet() task.Task {
	return &HTTPGet{client: &http.Client{Timeout: 30 * time.Second}}
}

func (h *HTTPGet) Metadata() task.Metadata {
	return task.Metadata{
		Type:        "http_get",
		DisplayName: "HTTPS GET Request",
		Description: "Fetches a resource over HTTP(S) and captures its response.",
		Category:    "Network",
		Icon:        "globe",
		ParamsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":     map[string]any{"type": "string", "format": "uri"},
				"headers": map[string]any{"type": "object"},
				"timeout": map[string]any{"type": "number"},
			},
			"required": []string{"url"},
		},
	}
}

func (h *HTTPGet) ValidateParams(params task.Params) error {
	var p HTTPGetParams
	return decodeParams(params, &p)
}

func (h *HTTPGet) Execute(ctx context.Context, _ task.Context, params task.Params) (task.Result, error) {
	var p HTTPGetParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	client := h.client
	if p.Timeout > 0 {
		clientCopy := *h.client
		clientCopy.Timeout = time.Duration(p.Timeout * float64(time.Second))
		client = &clientCopy
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, task.WrapExecutionError(fmt.Errorf("build request: %w", err))
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, task.WrapExecutionError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, task.WrapExecutionError(fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, task.WrapExecutionError(fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(body), httpGetResultCap)))
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		data = truncate(string(body), httpGetResultCap)
	}

	return task.Result{
		"success":     true,
		"status_code": resp.StatusCode,
		"data":        data,
		"body":        truncate(string(body), httpGetResultCap),
		"headers":     headers,
		"url":         p.URL,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
