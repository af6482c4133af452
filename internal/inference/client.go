// Package inference is the HTTP client for the locally hosted model server.
// It supports a blocking request/response mode and a streaming mode that
// forwards text deltas to a caller-supplied sink as they arrive.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-resty/resty/v2"
)

const responsesEndpoint = "/v1/responses"

// Sink receives one streamed text fragment per call, in arrival order. A sink
// must not block longer than it wants the stream read to stall: the parser
// does not read ahead of fragments it has already delivered.
type Sink func(fragment string)

type Client struct {
	http  *resty.Client
	model string
}

// NewClient builds a client for the inference server at baseURL. No timeout
// is set on the underlying client; streaming calls can legitimately run for
// minutes, so deadlines are the caller's business via ctx.
func NewClient(baseURL, model string) *Client {
	return &Client{
		http:  resty.New().SetBaseURL(baseURL),
		model: model,
	}
}

func (c *Client) Model() string {
	return c.model
}

// Send submits prompt to the model. previousResponseID, if non-empty, resumes
// the server-side conversation context. A nil sink requests a single blocking
// completion; a non-nil sink switches to streaming and receives each delta
// before the next stream block is read.
func (c *Client) Send(ctx context.Context, prompt, previousResponseID string, sink Sink) (*Response, error) {
	req := Request{
		Model:              c.model,
		Input:              prompt,
		PreviousResponseID: previousResponseID,
		Stream:             sink != nil,
	}

	if sink == nil {
		return c.sendBlocking(ctx, req)
	}
	return c.sendStreaming(ctx, req, sink)
}

func (c *Client) sendBlocking(ctx context.Context, req Request) (*Response, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(responsesEndpoint)
	if err != nil {
		return nil, fmt.Errorf("calling inference server: %w", err)
	}

	if !res.IsSuccess() {
		return nil, &TransportError{StatusCode: res.StatusCode(), Body: string(res.Body())}
	}

	body := bytes.TrimSpace(res.Body())
	if len(body) == 0 {
		return nil, ErrNoContent
	}

	var completion Response
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("decoding inference response: %w", err)
	}
	return &completion, nil
}

func (c *Client) sendStreaming(ctx context.Context, req Request, sink Sink) (*Response, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetDoNotParseResponse(true).
		Post(responsesEndpoint)
	if err != nil {
		return nil, fmt.Errorf("calling inference server: %w", err)
	}

	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		raw, _ := io.ReadAll(io.LimitReader(body, 1<<20))
		return nil, &TransportError{StatusCode: res.StatusCode(), Body: string(raw)}
	}

	return parseStream(body, sink)
}
