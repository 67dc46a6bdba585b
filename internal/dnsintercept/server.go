// Package dnsintercept is a small DNS forwarder that records which name
// every A answer came from. Applications pointed at it resolve normally,
// while the hostname cache learns address-to-name pairs that let their
// later connections be redirected by name instead of by address.
package dnsintercept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/die-net/socksify/internal/socks5"
)

// Recorder stores address-to-name pairs. *hostcache.Cache implements it.
type Recorder interface {
	Record(name string, addrs ...netip.Addr)
}

type Config struct {
	// Upstream is the resolver queries are forwarded to, as host:port.
	Upstream string
	// Timeout bounds each upstream exchange.
	Timeout time.Duration
	Cache   Recorder
	Logger  *slog.Logger
}

// Server implements dns.Handler.
type Server struct {
	cfg    Config
	log    *slog.Logger
	client *dns.Client
	// tcp re-asks truncated UDP answers.
	tcp *dns.Client
	sf  singleflight.Group
}

func New(cfg Config) (*Server, error) {
	if cfg.Upstream == "" {
		return nil, errors.New("dnsintercept: missing upstream resolver")
	}
	if cfg.Cache == nil {
		return nil, errors.New("dnsintercept: missing cache")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:    cfg,
		log:    log,
		client: &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		tcp:    &dns.Client{Net: "tcp", Timeout: cfg.Timeout},
	}, nil
}

// ListenAndServe answers queries on addr over both UDP and TCP until ctx
// is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, network := range []string{"udp", "tcp"} {
		srv := &dns.Server{Addr: addr, Net: network, Handler: s}
		// Shutdown fails on a server that has not started yet.
		srv.NotifyStartedFunc = func() {
			context.AfterFunc(gctx, func() {
				_ = srv.Shutdown()
			})
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && gctx.Err() == nil {
				return fmt.Errorf("dns listen %s/%s: %w", network, addr, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Server) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	resp, err := s.Exchange(ctx, req)
	if err != nil {
		s.log.Debug("dns forward failed", "err", err)
		resp = new(dns.Msg)
		resp.SetRcode(req, dns.RcodeServerFailure)
	}
	if err := w.WriteMsg(resp); err != nil {
		s.log.Debug("dns write failed", "err", err)
	}
}

// Exchange forwards req upstream, records any A answers, and returns the
// response with req's ID. Identical concurrent questions share one
// upstream exchange.
func (s *Server) Exchange(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	if len(req.Question) != 1 {
		return nil, fmt.Errorf("dnsintercept: %d questions", len(req.Question))
	}
	q := req.Question[0]
	key := fmt.Sprintf("%s/%d/%d", strings.ToLower(q.Name), q.Qtype, q.Qclass)

	ch := s.sf.DoChan(key, func() (any, error) {
		// Not tied to the first caller's ctx; other waiters may outlive it.
		fctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()

		resp, _, err := s.client.ExchangeContext(fctx, req.Copy(), s.cfg.Upstream)
		if err != nil {
			return nil, fmt.Errorf("dnsintercept: exchange %s: %w", q.Name, err)
		}
		if resp.Truncated {
			full, _, err := s.tcp.ExchangeContext(fctx, req.Copy(), s.cfg.Upstream)
			if err != nil {
				// The truncated answer still tells the client to retry over TCP.
				s.log.Debug("dns tcp retry failed", "name", q.Name, "err", err)
			} else {
				resp = full
			}
		}
		s.record(q.Name, resp)
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		resp := res.Val.(*dns.Msg).Copy()
		resp.Id = req.Id
		return resp, nil
	}
}

func (s *Server) record(qname string, resp *dns.Msg) {
	name := strings.TrimSuffix(qname, ".")
	if socks5.ValidateName(name) != nil {
		return
	}

	var addrs []netip.Addr
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if ip, ok := netip.AddrFromSlice(a.A); ok {
			addrs = append(addrs, ip.Unmap())
		}
	}
	if len(addrs) == 0 {
		return
	}
	s.cfg.Cache.Record(name, addrs...)
	s.log.Debug("recorded name", "name", name, "addrs", len(addrs))
}
