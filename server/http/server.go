package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/w-h-a/grounded/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type httpServer struct {
	options server.Options
	router  *mux.Router
	srv     *http.Server
	mtx     sync.Mutex
}

func (s *httpServer) Start() error {
	s.mtx.Lock()
	s.srv = &http.Server{
		Addr:              s.options.Location,
		Handler:           otelhttp.NewHandler(s.router, "grounded"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv := s.srv
	s.mtx.Unlock()

	slog.InfoContext(s.options.Context, "http server listening", "address", s.options.Location)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *httpServer) Stop(ctx context.Context) error {
	s.mtx.Lock()
	srv := s.srv
	s.mtx.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

func (s *httpServer) routes() {
	h := &handlers{service: s.options.Service}

	s.router.Use(logRequests, recoverPanics)

	if ms, ok := MiddlewareFrom(s.options.Context); ok {
		for _, m := range ms {
			s.router.Use(mux.MiddlewareFunc(m))
		}
	}

	s.router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/answer", h.answer).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/history", h.history).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", h.deleteSession).Methods(http.MethodDelete)
	v1.HandleFunc("/usage", h.usage).Methods(http.MethodGet)
}

func NewServer(opts ...server.Option) server.Server {
	options := server.NewOptions(opts...)

	if options.Service == nil {
		detail := "http server requires a service"
		slog.ErrorContext(context.Background(), detail)
		panic(detail)
	}

	s := &httpServer{
		options: options,
		router:  mux.NewRouter(),
		mtx:     sync.Mutex{},
	}

	s.routes()

	return s
}
