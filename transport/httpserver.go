package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ChiHTTPServer is the reference HttpServer, backed by chi. It serves the
// handlers registered through Handle.
type ChiHTTPServer struct {
	router *chi.Mux
	server *http.Server
}

func NewChiHTTPServer() *ChiHTTPServer {
	r := chi.NewRouter()
	return &ChiHTTPServer{router: r}
}

func (s *ChiHTTPServer) Handle(pattern string, handler http.Handler) {
	s.router.Handle(pattern, handler)
}

func (s *ChiHTTPServer) Start(addr string) error {
	s.server = &http.Server{Addr: addr, Handler: s.router}
	go func() { _ = s.server.ListenAndServe() }()
	return nil
}

func (s *ChiHTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
