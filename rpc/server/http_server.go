// Package server provides the HTTP transport for patchbay: the call
// endpoint, the static file handler, and the server plumbing shared by
// both.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/net/netutil"

	"github.com/patchbay-rpc/patchbay/libs/log"
)

// Config is an HTTP server configuration.
type Config struct {
	// The maximum number of simultaneously accepted connections. Zero means
	// unlimited.
	MaxOpenConnections int
	// Mirrors http.Server#ReadTimeout.
	ReadTimeout time.Duration
	// Mirrors http.Server#WriteTimeout.
	WriteTimeout time.Duration
	// The maximum number of bytes read while parsing a request body.
	MaxBodyBytes int64
	// Mirrors http.Server#MaxHeaderBytes.
	MaxHeaderBytes int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConnections: 0,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxBodyBytes:       1000000,
		MaxHeaderBytes:     1 << 20,
	}
}

// Listen opens a listener on addr, which must be fully formed and include
// the protocol prefix (tcp:// or unix://). If maxOpenConnections is
// positive, the listener caps the number of simultaneous connections.
func Listen(addr string, maxOpenConnections int) (net.Listener, error) {
	parts := strings.SplitN(addr, "://", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf(
			"invalid listening address %s (use fully formed addresses, including the tcp:// or unix:// prefix)",
			addr)
	}
	proto, addr := parts[0], parts[1]
	listener, err := net.Listen(proto, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %v: %w", addr, err)
	}
	if maxOpenConnections > 0 {
		listener = netutil.LimitListener(listener, maxOpenConnections)
	}
	return listener, nil
}

// Serve creates an http.Server and serves handler on the given listener,
// wrapped with panic recovery, request logging, and a body size limit. It
// blocks until the listener fails or ctx ends, shutting down gracefully in
// the latter case, and reports a nil error for every orderly stop.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger log.Logger, config *Config) error {
	logger.Info("starting HTTP server", "addr", listener.Addr().String())
	s := &http.Server{
		Handler:           RecoverAndLogHandler(maxBytesHandler(handler, config.MaxBodyBytes), logger),
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	err := s.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	logger.Info("HTTP server stopped", "err", err)

	// The watcher goroutine holds a reference to s; don't return until it
	// is gone.
	<-stopped
	return err
}

// RecoverAndLogHandler wraps an HTTP handler with panic recovery and
// request logging. A panicking handler gets a 500 if nothing was written
// yet; either way the panic stops here.
func RecoverAndLogHandler(handler http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var httpStatus int
		rww := newStatusWriter(w, &httpStatus)

		defer func() {
			if v := recover(); v != nil {
				var err error
				switch e := v.(type) {
				case error:
					err = e
				case string:
					err = errors.New(e)
				case fmt.Stringer:
					err = errors.New(e.String())
				default:
					err = fmt.Errorf("panic with value %v", v)
				}
				logger.Error("panic in HTTP handler",
					"err", err, "stack", string(debug.Stack()))
				rww.WriteHeader(http.StatusInternalServerError)
			}
		}()

		begin := time.Now()
		defer func() {
			elapsed := time.Since(begin)
			logger.Debug("served HTTP response",
				"method", r.Method,
				"url", r.URL.String(),
				"status", httpStatus,
				"duration", elapsed.String(),
				"remoteAddr", r.RemoteAddr,
			)
		}()

		handler.ServeHTTP(rww, r)
	})
}

// statusWriter records the first status code written to the response into a
// caller-owned variable.
type statusWriter struct {
	http.ResponseWriter
	status *int
}

func newStatusWriter(w http.ResponseWriter, status *int) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: status}
}

func (w *statusWriter) WriteHeader(status int) {
	if *w.status == 0 {
		*w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if *w.status == 0 {
		*w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// maxBytesHandler caps the size of the request body at maxBytes.
func maxBytesHandler(h http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		h.ServeHTTP(w, r)
	})
}
