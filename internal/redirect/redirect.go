package redirect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/die-net/socksify/internal/socks5"
)

// State is the progress of one redirection attempt.
type State int

const (
	Idle State = iota
	Connected
	HandshakeSent
	HandshakeAccepted
	RequestSent
	Established
	Failed
)

var stateNames = [...]string{
	Idle:              "idle",
	Connected:         "connected",
	HandshakeSent:     "handshake-sent",
	HandshakeAccepted: "handshake-accepted",
	RequestSent:       "request-sent",
	Established:       "established",
	Failed:            "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Established || s == Failed
}

type Config struct {
	// Timeout bounds every send and receive with the proxy. Zero means no
	// per-step limit beyond the context deadline.
	Timeout time.Duration

	Logger *slog.Logger

	// OnStateChange, if set, is called synchronously on every transition.
	OnStateChange func(t socks5.Target, from, to State)
}

// Controller runs redirection attempts. It holds no per-attempt state and
// is safe for concurrent use.
type Controller struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Controller {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Controller{cfg: cfg, log: log}
}

// Error is returned by Redirect when an attempt fails.
type Error struct {
	Target socks5.Target
	// State is the state the attempt was in when the failing step ran.
	State State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("redirect %s: %s: %v", e.Target, e.State, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Redirect negotiates a CONNECT to t over conn, an established connection
// to the proxy. On success conn is returned with its deadlines cleared,
// ready to carry the redirected stream. On failure conn has been closed
// and the error is a *Error wrapping the classified cause.
//
// If ctx ends before the attempt finishes, conn is closed, which unblocks
// any pending I/O.
func (c *Controller) Redirect(ctx context.Context, conn net.Conn, t socks5.Target) (net.Conn, error) {
	a := &attempt{ctl: c, conn: conn, target: t}

	stop := context.AfterFunc(ctx, a.close)
	defer stop()

	a.transition(Connected)

	steps := []struct {
		next State
		run  func() error
	}{
		{HandshakeSent, func() error { return socks5.WriteNegotiation(conn) }},
		{HandshakeAccepted, func() error { return socks5.ReadNegotiationReply(conn) }},
		{RequestSent, func() error { return socks5.WriteRequest(conn, t) }},
		{Established, func() error {
			rep, err := socks5.ReadConnectReply(conn)
			if err == nil {
				c.log.Debug("proxy bound", "target", t.String(), "bound", rep.BoundAddress())
			}
			return err
		}},
	}

	for _, s := range steps {
		if ctx.Err() != nil {
			return nil, a.fail(context.Cause(ctx))
		}
		if err := a.setDeadline(ctx); err != nil {
			return nil, a.fail(fmt.Errorf("%w: set deadline: %w", socks5.ErrTransport, err))
		}
		if err := s.run(); err != nil {
			if ctx.Err() != nil {
				// The AfterFunc closed conn underneath us.
				err = fmt.Errorf("%w (%w)", context.Cause(ctx), err)
			}
			return nil, a.fail(err)
		}
		if s.next == Established && !stop() {
			// Cancellation won the race after the reply was read; conn is
			// already closed.
			return nil, a.fail(context.Cause(ctx))
		}
		a.transition(s.next)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, a.fail(fmt.Errorf("%w: clear deadline: %w", socks5.ErrTransport, err))
	}
	return conn, nil
}

type attempt struct {
	ctl       *Controller
	conn      net.Conn
	target    socks5.Target
	state     State
	closeOnce sync.Once
}

func (a *attempt) transition(to State) {
	from := a.state
	a.state = to
	a.ctl.log.Debug("redirect state", "target", a.target.String(), "from", from.String(), "to", to.String())
	if a.ctl.cfg.OnStateChange != nil {
		a.ctl.cfg.OnStateChange(a.target, from, to)
	}
}

func (a *attempt) fail(err error) error {
	failedIn := a.state
	a.close()
	a.transition(Failed)
	a.ctl.log.Debug("redirect failed", "target", a.target.String(), "state", failedIn.String(), "errno", Errno(err).Error(), "err", err)
	return &Error{Target: a.target, State: failedIn, Err: err}
}

func (a *attempt) close() {
	a.closeOnce.Do(func() {
		_ = a.conn.Close()
	})
}

func (a *attempt) setDeadline(ctx context.Context) error {
	var dl time.Time
	if a.ctl.cfg.Timeout > 0 {
		dl = time.Now().Add(a.ctl.cfg.Timeout)
	}
	if ctxDL, ok := ctx.Deadline(); ok && (dl.IsZero() || ctxDL.Before(dl)) {
		dl = ctxDL
	}
	if dl.IsZero() {
		return nil
	}
	return a.conn.SetDeadline(dl)
}

// IsUnsupported reports whether err means the destination should not be
// redirected at all, as opposed to a failed redirection.
func IsUnsupported(err error) bool {
	return errors.Is(err, socks5.ErrUnsupportedAddressFamily)
}

// Refused reports whether the proxy answered with "connection refused".
func Refused(err error) bool {
	var re *socks5.ReplyError
	return errors.As(err, &re) && re.Code == socks5.ReplyConnectionRefused
}
