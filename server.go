//go:build linux

package ouroboros

import (
	"fmt"

	"github.com/arajko/ouroboros/internal/logging"
	"github.com/arajko/ouroboros/internal/sys"
)

// Server wires together a Config, an Engine, a Router, and a Listener into
// a runnable HTTP/1.1 service.
type Server struct {
	cfg    Config
	engine *Engine
	router *Router
	ln     *Listener
}

// NewServer validates cfg, creates the ring, and binds/listens on cfg.Addr.
// Routes must already be registered on router.
func NewServer(cfg Config, router *Router) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.Default()

	engine, err := New(cfg.RingEntries, WithSingleIssuer(), WithCoopTaskrun())
	if err != nil {
		return nil, err
	}
	log.Info("ring created", "entries", engine.SQEntries(), "features", fmt.Sprintf("0x%x", engine.Features()))

	if probe, perr := engine.Probe(); perr == nil {
		log.Debug("kernel op support",
			"accept", probe.SupportsOp(sys.IORING_OP_ACCEPT),
			"recv", probe.SupportsOp(sys.IORING_OP_RECV),
			"send", probe.SupportsOp(sys.IORING_OP_SEND),
			"close", probe.SupportsOp(sys.IORING_OP_CLOSE),
		)
	}

	ip, port, err := cfg.parseAddr()
	if err != nil {
		engine.Close()
		return nil, err
	}

	ln, err := NewListener(engine, router, ip, port, cfg.Backlog, cfg.BufferSize, WithOnAccept(func(s *Session) {
		log.Debug("accepted connection")
	}))
	if err != nil {
		engine.Close()
		return nil, err
	}

	return &Server{cfg: cfg, engine: engine, router: router, ln: ln}, nil
}

// Run starts accepting connections and blocks in the engine's event loop
// until a fatal kernel error occurs.
func (s *Server) Run() error {
	log := logging.Default()
	if err := s.ln.Start(); err != nil {
		return fmt.Errorf("ouroboros: start accept: %w", err)
	}
	log.Info("listening", "addr", s.cfg.Addr)

	err := s.engine.Run()
	log.Error("event loop exited", "error", err)
	return err
}

// Close shuts the server down: closes the listening socket and the ring.
func (s *Server) Close() error {
	logging.Default().Info("shutting down")
	s.ln.Close()
	return s.engine.Close()
}
