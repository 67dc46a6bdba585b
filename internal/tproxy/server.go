package tproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/die-net/socksify/internal/conn"
	"github.com/die-net/socksify/internal/dialer"
	"github.com/die-net/socksify/internal/redirect"
)

type Config struct {
	// Dialer redirects connections through the proxy.
	Dialer dialer.Dialer
	// Passthrough, if set, dials destinations the proxy path cannot carry
	// (IPv6). Nil refuses them.
	Passthrough dialer.Dialer
	// OriginalDst overrides the platform lookup; tests use it.
	OriginalDst func(net.Conn) (*net.TCPAddr, bool)
	Logger      *slog.Logger
}

type Server struct {
	ctx context.Context
	cfg Config
	log *slog.Logger
}

func NewServer(ctx context.Context, cfg Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.OriginalDst == nil {
		cfg.OriginalDst = OriginalDst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{ctx: ctx, cfg: cfg, log: log}
}

func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := s.handle(c); err != nil {
				s.log.Debug("tproxy connection error", "remote", c.RemoteAddr().String(), "err", err)
			}
		}()
	}
}

func (s *Server) handle(c net.Conn) error {
	defer c.Close()
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	dst, ok := s.cfg.OriginalDst(c)
	if !ok {
		return errors.New("original destination unavailable")
	}

	up, err := s.cfg.Dialer.DialAddr(ctx, dst)
	if err != nil && redirect.IsUnsupported(err) && s.cfg.Passthrough != nil {
		s.log.Debug("passing through", "dst", dst.String())
		up, err = s.cfg.Passthrough.DialAddr(ctx, dst)
	}
	if err != nil {
		s.refuse(c, dst, err)
		return err
	}
	defer up.Close()

	if err := conn.CopyBidirectional(ctx, c, up); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	return nil
}

// refuse ends c the way a failed connect would look to the application:
// a reset for a refusal, an ordinary close otherwise.
func (s *Server) refuse(c net.Conn, dst *net.TCPAddr, err error) {
	s.log.Info("redirect failed", "dst", dst.String(), "errno", redirect.Errno(err).Error(), "err", err)

	if redirect.Refused(err) {
		if tc, ok := c.(*net.TCPConn); ok {
			_ = tc.SetLinger(0)
		}
	}
}
