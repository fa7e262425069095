package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge-ai/flowforge/types"
)

var httpRequestSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"method": {
			"type": "string",
			"enum": ["GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"],
			"default": "GET",
			"description": "HTTP method to use"
		},
		"url": {
			"type": "string",
			"maxLength": 2000,
			"pattern": "^https?://",
			"description": "URL to request"
		},
		"headers": {
			"type": "object",
			"additionalProperties": {"type": "string"},
			"description": "Request headers"
		},
		"body": {
			"description": "Request body, sent as JSON for POST, PUT and PATCH"
		},
		"timeout": {
			"type": "integer",
			"minimum": 1,
			"maximum": 300,
			"default": 30,
			"description": "Request timeout in seconds"
		}
	},
	"required": ["url"],
	"additionalProperties": false
}`)

// strippedHeaders are never forwarded from tool arguments; credentials
// belong to integration config, not model output.
var strippedHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

// HTTPRequestTool makes outbound HTTP calls. The sandbox's URL guard has
// already vetted the target by the time Execute runs.
type HTTPRequestTool struct {
	client *http.Client

	// maxBodyBytes caps how much of the response body is read.
	maxBodyBytes int64
}

// NewHTTPRequestTool creates the http_request built-in. A nil client gets a
// default with sane timeouts.
func NewHTTPRequestTool(client *http.Client) *HTTPRequestTool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRequestTool{client: client, maxBodyBytes: 1 << 20}
}

func (t *HTTPRequestTool) Name() string { return "http_request" }

func (t *HTTPRequestTool) Description() string {
	return "Makes an HTTP request to an allow-listed host and returns status, headers and body"
}

func (t *HTTPRequestTool) ParameterSchema() json.RawMessage { return httpRequestSchema }

// Execute performs the request.
func (t *HTTPRequestTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	rawURL, _ := args["url"].(string)
	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if payload, ok := args["body"]; ok && payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, types.NewError(types.ErrToolValidation, "request body is not serializable").WithCause(err)
		}
		body = bytes.NewReader(data)
	}

	if timeout, ok := toFloat(args["timeout"]); ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, types.Errorf(types.ErrToolValidation, "invalid request: %s %s", method, rawURL).WithCause(err)
	}

	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}
	for _, h := range strippedHeaders {
		req.Header.Del(h)
	}
	req.Header.Set("User-Agent", "flowforge-tool/1.0")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.Errorf(types.ErrToolTimeout, "request to %s timed out", rawURL).WithCause(err).WithRetryable(true)
		}
		return nil, types.Errorf(types.ErrUpstreamError, "request to %s failed", rawURL).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes))
	if err != nil {
		return nil, types.Errorf(types.ErrUpstreamError, "reading response from %s", rawURL).WithCause(err).WithRetryable(true)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
		"url":         resp.Request.URL.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var decoded any
		if err := json.Unmarshal(data, &decoded); err == nil {
			result["json"] = decoded
		} else {
			result["text"] = string(data)
		}
	} else {
		result["text"] = string(data)
	}
	return result, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
