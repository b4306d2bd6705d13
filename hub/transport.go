package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Hub endpoints, relative to the base URL.
const (
	endpointUpload       = "/api/upload"
	endpointUploadData   = "/api/uploadData"
	endpointConversation = "/api/conversation"
	endpointDownload     = "/api/download"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// UploadBinaryData uploads data as a multipart file named filename for owner.
// It bypasses the upload queue and returns the hub's JSON response verbatim.
func (c *Client) UploadBinaryData(ctx context.Context, owner, filename string, data []byte) (json.RawMessage, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, c.oneShotError("upload data", fmt.Errorf("hub: build multipart body: %w", err))
	}
	if _, err := part.Write(data); err != nil {
		return nil, c.oneShotError("upload data", fmt.Errorf("hub: build multipart body: %w", err))
	}
	if err := writer.WriteField("owner", owner); err != nil {
		return nil, c.oneShotError("upload data", fmt.Errorf("hub: build multipart body: %w", err))
	}
	if err := writer.Close(); err != nil {
		return nil, c.oneShotError("upload data", fmt.Errorf("hub: build multipart body: %w", err))
	}

	resp, err := c.expectJSON(c.do(ctx, endpointUploadData, writer.FormDataContentType(), &body))
	if err != nil {
		return nil, c.oneShotError("upload data", err)
	}

	c.logger.Debug("upload data done", "owner", owner, "filename", filename, "response", string(resp))
	return resp, nil
}

// ListConversations returns the hub's conversation listing for owner.
func (c *Client) ListConversations(ctx context.Context, owner string) (json.RawMessage, error) {
	form := url.Values{}
	form.Set("owner", owner)

	resp, err := c.postForm(ctx, endpointConversation, form)
	if err != nil {
		return nil, c.oneShotError("list conversations", err)
	}
	return resp, nil
}

// GetConversation returns one conversation of owner.
func (c *Client) GetConversation(ctx context.Context, owner, conversationID string) (json.RawMessage, error) {
	form := url.Values{}
	form.Set("owner", owner)
	form.Set("id", conversationID)

	resp, err := c.postForm(ctx, endpointConversation, form)
	if err != nil {
		return nil, c.oneShotError("get conversation", err)
	}
	return resp, nil
}

// DownloadFile fetches the raw bytes stored for owner under filename.
func (c *Client) DownloadFile(ctx context.Context, owner, filename string) ([]byte, error) {
	form := url.Values{}
	form.Set("id", filename)
	form.Set("owner", owner)

	c.logger.Debug("downloading from hub", "owner", owner, "filename", filename)

	data, err := c.do(ctx, endpointDownload, contentTypeForm, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, c.oneShotError("download", err)
	}
	return data, nil
}

func (c *Client) oneShotError(op string, err error) error {
	c.logger.Error("error during "+op, "error", err)
	return err
}

func (c *Client) postJSON(ctx context.Context, endpoint string, v any) (json.RawMessage, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("hub: marshal %s body: %w", endpoint, err)
	}
	return c.expectJSON(c.do(ctx, endpoint, contentTypeJSON, bytes.NewReader(payload)))
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (json.RawMessage, error) {
	return c.expectJSON(c.do(ctx, endpoint, contentTypeForm, bytes.NewBufferString(form.Encode())))
}

func (c *Client) expectJSON(data []byte, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(data), nil
}

// do issues one POST to endpoint under the request timeout and returns the
// response body of a 2xx answer.
func (c *Client) do(ctx context.Context, endpoint, contentType string, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "POST "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", http.MethodPost),
			attribute.String("url.path", endpoint),
		),
	)
	defer span.End()

	start := time.Now()
	data, status, err := c.send(ctx, endpoint, contentType, body)
	c.metrics.recordRequest(ctx, endpoint, status, time.Since(start))

	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return data, nil
}

func (c *Client) send(ctx context.Context, endpoint, contentType string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, 0, fmt.Errorf("hub: build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", contentType)
	if endpoint != endpointDownload {
		req.Header.Set("Accept", contentTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("hub: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("hub: %s: read response: %w", endpoint, err)
	}

	return data, resp.StatusCode, nil
}
