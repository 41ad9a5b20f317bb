package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"libweave/runner"
)

// NetHTTPClient is the reference HttpClient, backed by net/http.Client.
// Each Do call runs the round trip on its own goroutine and posts the
// result onto the provided TaskRunner, never blocking it.
type NetHTTPClient struct {
	client *http.Client
	runner runner.TaskRunner
}

func NewNetHTTPClient(client *http.Client, r runner.TaskRunner) *NetHTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &NetHTTPClient{client: client, runner: r}
}

func (c *NetHTTPClient) Do(ctx context.Context, req HttpRequest, done func(HttpResponse, error)) {
	go func() {
		resp, err := c.roundTrip(ctx, req)
		c.runner.PostTask(func() { done(resp, err) })
	}()
}

func (c *NetHTTPClient) roundTrip(ctx context.Context, req HttpRequest) (HttpResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return HttpResponse{}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return HttpResponse{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return HttpResponse{}, err
	}
	return HttpResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}
