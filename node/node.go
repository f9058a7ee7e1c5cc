// Package node assembles a runnable patchbay gateway: it resolves the
// default codec, builds the dispatcher around an object registry, and serves
// the call endpoint, the static files and, optionally, prometheus metrics.
package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/patchbay-rpc/patchbay/codec"
	"github.com/patchbay-rpc/patchbay/config"
	"github.com/patchbay-rpc/patchbay/libs/log"
	"github.com/patchbay-rpc/patchbay/libs/service"
	"github.com/patchbay-rpc/patchbay/registry"
	"github.com/patchbay-rpc/patchbay/rpc/dispatch"
	rpcserver "github.com/patchbay-rpc/patchbay/rpc/server"
)

// ErrNoRegistry is returned by New when no object registry is supplied. A
// gateway without objects cannot answer anything.
var ErrNoRegistry = errors.New("no object registry")

// Node is a patchbay gateway service.
type Node struct {
	*service.BaseService

	config *config.Config
	logger log.Logger

	registry     *registry.Registry
	dispatcher   *dispatch.Dispatcher
	defaultCodec codec.Codec
	handler      http.Handler

	// populated by OnStart
	cancel      context.CancelFunc
	tasks       *taskgroup.Group
	rpcListener net.Listener
}

// New returns an unstarted gateway node wired from cfg. The configured codec
// is resolved against the codec table (the error unwraps to
// codec.ErrUnknownCodec when the name is unknown) and reg becomes the
// dispatch target for every call the node receives.
func New(cfg *config.Config, logger log.Logger, reg *registry.Registry) (*Node, error) {
	if reg == nil {
		return nil, ErrNoRegistry
	}

	defaultCodec, err := codec.Resolve(cfg.RPC.Codec)
	if err != nil {
		return nil, err
	}

	metrics := dispatch.NopMetrics()
	if cfg.Instrumentation.Prometheus {
		metrics = dispatch.PrometheusMetrics(cfg.Instrumentation.Namespace,
			"moniker", cfg.Moniker)
	}

	disp := dispatch.New(reg,
		dispatch.WithLogger(logger.With("module", "dispatch")),
		dispatch.WithMetrics(metrics),
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.RPC.Endpoint,
		rpcserver.NewCallHandler(disp, defaultCodec, logger.With("module", "rpc-server")))

	if cfg.Static.Enabled {
		dir := cfg.Static.Dir()
		if _, err := os.Stat(dir); err != nil {
			logger.Error("static root is not readable", "dir", dir, "err", err)
		}
		mux.Handle("/",
			rpcserver.NewStaticHandler(os.DirFS(dir), cfg.Static.MaxAge, logger.With("module", "static")))
	}

	var handler http.Handler = mux
	if cfg.RPC.IsCorsEnabled() {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: cfg.RPC.CORSAllowedOrigins,
			AllowedMethods: cfg.RPC.CORSAllowedMethods,
			AllowedHeaders: cfg.RPC.CORSAllowedHeaders,
		})
		handler = corsMiddleware.Handler(mux)
	}

	n := &Node{
		config:       cfg,
		logger:       logger,
		registry:     reg,
		dispatcher:   disp,
		defaultCodec: defaultCodec,
		handler:      handler,
	}
	n.BaseService = service.NewBaseService(logger, "Node", n)
	return n, nil
}

// OnStart binds the RPC listener and launches the HTTP servers. They run
// until the Start context ends or Stop is called.
func (n *Node) OnStart(ctx context.Context) error {
	sctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	listener, err := rpcserver.Listen(n.config.RPC.ListenAddress, n.config.RPC.MaxOpenConnections)
	if err != nil {
		cancel()
		return err
	}
	n.rpcListener = listener

	n.logger.Info("serving RPC",
		"moniker", n.config.Moniker,
		"addr", listener.Addr().String(),
		"endpoint", n.config.RPC.Endpoint,
		"codec", n.defaultCodec.Name(),
		"objects", len(n.registry.Names()),
	)

	// A failing server tears down the rest through the shared context.
	n.tasks = taskgroup.New(taskgroup.Trigger(cancel))
	n.tasks.Go(func() error {
		return rpcserver.Serve(sctx, listener, n.handler,
			n.logger.With("module", "rpc-server"), n.serverConfig())
	})

	if n.config.Instrumentation.Prometheus {
		n.startPrometheus(sctx)
	}
	return nil
}

// OnStop shuts the servers down and waits for them to drain.
func (n *Node) OnStop() {
	n.cancel()
	if err := n.tasks.Wait(); err != nil {
		n.logger.Error("error stopping servers", "err", err)
	}
}

// Registry returns the object registry the node dispatches into.
func (n *Node) Registry() *registry.Registry { return n.registry }

// Dispatcher returns the node's dispatcher.
func (n *Node) Dispatcher() *dispatch.Dispatcher { return n.dispatcher }

// RPCListenAddr returns the bound address of the RPC listener, or nil before
// the node is started. Useful when the configured port is 0.
func (n *Node) RPCListenAddr() net.Addr {
	if n.rpcListener == nil {
		return nil
	}
	return n.rpcListener.Addr()
}

func (n *Node) serverConfig() *rpcserver.Config {
	cfg := rpcserver.DefaultConfig()
	cfg.MaxOpenConnections = n.config.RPC.MaxOpenConnections
	cfg.ReadTimeout = n.config.RPC.ReadTimeout
	cfg.WriteTimeout = n.config.RPC.WriteTimeout
	cfg.MaxBodyBytes = n.config.RPC.MaxBodyBytes
	cfg.MaxHeaderBytes = n.config.RPC.MaxHeaderBytes
	return cfg
}

func (n *Node) startPrometheus(ctx context.Context) {
	srv := &http.Server{
		Addr: n.config.Instrumentation.PrometheusListenAddr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: n.config.Instrumentation.MaxOpenConnections},
			),
		),
	}
	n.tasks.Go(func() error {
		n.logger.Info("serving prometheus metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	n.tasks.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}
