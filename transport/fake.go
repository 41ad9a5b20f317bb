package transport

import (
	"context"
	"sync"

	"libweave/runner"
)

// FakeHTTPClient is a scripted HttpClient for tests: Enqueue pushes the
// next response (or error) to return, in order, regardless of the
// request's content; every call is recorded for assertions. Completions
// are posted through r so tests drive them deterministically.
type FakeHTTPClient struct {
	r runner.TaskRunner

	mu        sync.Mutex
	responses []fakeResult
	Requests  []HttpRequest
}

type fakeResult struct {
	resp HttpResponse
	err  error
}

func NewFakeHTTPClient(r runner.TaskRunner) *FakeHTTPClient { return &FakeHTTPClient{r: r} }

func (f *FakeHTTPClient) Enqueue(resp HttpResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResult{resp, err})
}

func (f *FakeHTTPClient) Do(ctx context.Context, req HttpRequest, done func(HttpResponse, error)) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	var r fakeResult
	if len(f.responses) == 0 {
		r = fakeResult{resp: HttpResponse{StatusCode: 500}}
	} else {
		r = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()
	f.r.PostTask(func() { done(r.resp, r.err) })
}

// FakeNetwork is a manually-driven Network for tests.
type FakeNetwork struct {
	ch chan ConnectivityState
}

func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{ch: make(chan ConnectivityState, 16)}
}

func (f *FakeNetwork) ConnectionChanged() <-chan ConnectivityState { return f.ch }

func (f *FakeNetwork) OpenSslSocket(ctx context.Context, host string) (SslSocket, error) {
	return &fakeSocket{recv: make(chan []byte)}, nil
}

// SetConnectivity pushes a new connectivity state to any listener.
func (f *FakeNetwork) SetConnectivity(s ConnectivityState) { f.ch <- s }

type fakeSocket struct {
	recv chan []byte
}

func (s *fakeSocket) Send(data []byte) error { return nil }
func (s *fakeSocket) Receive() <-chan []byte { return s.recv }
func (s *fakeSocket) Close() error           { close(s.recv); return nil }
