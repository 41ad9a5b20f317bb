// Package transport defines the provider contracts the control layer is
// built against — HTTP client/server, network state, local service
// discovery, Wifi/Bluetooth pairing transports — plus reference and fake
// implementations used by cmd/devicesim and the test suite. The core
// never depends on a concrete transport; everything here is an interface
// the embedder supplies.
package transport

import (
	"context"
	"net/http"
	"time"
)

// HttpRequest is a provider-agnostic outbound HTTP request.
type HttpRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HttpResponse is a provider-agnostic HTTP response.
type HttpResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// HttpClient issues non-blocking HTTP calls: Do returns immediately and
// invokes done with the result once it is ready, posted onto the task
// runner rather than calling done from an arbitrary goroutine (§5).
type HttpClient interface {
	Do(ctx context.Context, req HttpRequest, done func(HttpResponse, error))
}

// HttpServer is the local (LAN/Privet-style) HTTP listener; it serves
// whatever handlers the embedder registers through Handle.
type HttpServer interface {
	Handle(pattern string, handler http.Handler)
	Start(addr string) error
	Stop(ctx context.Context) error
}

// ConnectivityState is the coarse connectivity signal Network reports.
type ConnectivityState int

const (
	Offline ConnectivityState = iota
	Online
)

// Network reports connectivity transitions and opens persistent sockets
// for the XMPP notification channel.
type Network interface {
	ConnectionChanged() <-chan ConnectivityState
	OpenSslSocket(ctx context.Context, host string) (SslSocket, error)
}

// SslSocket is a long-lived, provider-owned TLS socket.
type SslSocket interface {
	Send(data []byte) error
	Receive() <-chan []byte
	Close() error
}

// DnsServiceDiscovery advertises and browses the local mDNS/DNS-SD
// namespace for pairing and Privet discovery.
type DnsServiceDiscovery interface {
	Advertise(serviceType, name string, port int, txt map[string]string) error
	StopAdvertising(serviceType, name string) error
}

// WifiNetwork describes one access point Wifi.Scan observed.
type WifiNetwork struct {
	SSID     string
	Secure   bool
	SignalDB int
}

// Wifi is the local pairing transport's onboarding surface.
type Wifi interface {
	Scan(ctx context.Context) ([]WifiNetwork, error)
	Connect(ctx context.Context, ssid, passphrase string) error
}

// Bluetooth is the alternate local pairing transport.
type Bluetooth interface {
	StartAdvertising(ctx context.Context, localName string) error
	StopAdvertising() error
}

// Backoff returns the retry delay for attempt (0-based), exponential with
// base and capped at max, scaled by full jitter (4.H).
func Backoff(attempt int, base, max time.Duration, jitter func(n int64) int64) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}
	return time.Duration(jitter(int64(d)))
}
