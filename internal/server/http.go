package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"csms/internal/log"
	"csms/internal/ocppj"
)

// HTTPServer serves the websocket endpoint and the operator API on one
// listener. On shutdown open charger connections are closed first so their
// disconnect bookkeeping runs before the process exits.
type HTTPServer struct {
	// Listener, when set, is used by Start instead of listening on the
	// configured address.
	Listener net.Listener

	srv             *http.Server
	ocpp            *ocppj.Server
	shutdownTimeout time.Duration
	log             log.Logger
}

func NewHTTPServer(addr string, handler http.Handler, ocpp *ocppj.Server, readHeaderTimeout, shutdownTimeout time.Duration, logger log.Logger) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		ocpp:            ocpp,
		shutdownTimeout: shutdownTimeout,
		log:             logger,
	}
}

// Start listens on the configured address. It returns nil after a clean
// shutdown triggered by ctx.
func (s *HTTPServer) Start(ctx context.Context) error {
	ln := s.Listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", s.srv.Addr); err != nil {
			return err
		}
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("csms listening", "addr", ln.Addr().String())
		errc <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if s.ocpp != nil {
		if err := s.ocpp.Shutdown(sctx); err != nil {
			s.log.Warn("charger connections did not close in time", "error", err)
		}
	}
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("csms shutdown complete")
	return nil
}
