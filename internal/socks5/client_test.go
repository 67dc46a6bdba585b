package socks5

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"
)

// rw scripts the proxy side: reads come from in, writes land in out.
type rw struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func newRW(in []byte) *rw { return &rw{in: bytes.NewReader(in)} }

func (s *rw) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *rw) Write(p []byte) (int, error) { return s.out.Write(p) }

type failWriter struct{}

func (failWriter) Read([]byte) (int, error)  { return 0, io.EOF }
func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// negotiate runs both halves of the method negotiation, as the redirect
// state machine does.
func negotiate(rw io.ReadWriter) error {
	if err := WriteNegotiation(rw); err != nil {
		return err
	}
	return ReadNegotiationReply(rw)
}

func TestNegotiate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		wantErr error
	}{
		{name: "accepted", reply: "05 00"},
		{name: "no acceptable method", reply: "05 ff", wantErr: ErrNoAcceptableMethod},
		{name: "wrong version", reply: "04 00", wantErr: ErrProtocol},
		{name: "wrong version with ff", reply: "04 ff", wantErr: ErrProtocol},
		{name: "user/pass selected", reply: "05 02", wantErr: ErrProtocol},
		{name: "one byte", reply: "05", wantErr: ErrProtocol},
		{name: "empty", reply: "", wantErr: ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newRW(mustHex(t, tt.reply))
			err := negotiate(s)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v want %v", err, tt.wantErr)
			}
			if got := hex.EncodeToString(s.out.Bytes()); got != "050100" {
				t.Fatalf("sent %s want 050100", got)
			}
		})
	}
}

func TestNegotiateWriteFailure(t *testing.T) {
	t.Parallel()

	if err := negotiate(failWriter{}); !errors.Is(err, ErrTransport) {
		t.Fatalf("err=%v want ErrTransport", err)
	}
}

func TestNegotiateTimeout(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		// Swallow the greeting and never answer.
		_, _ = io.Copy(io.Discard, server)
	}()

	_ = client.SetDeadline(time.Now().Add(50 * time.Millisecond))
	err := negotiate(client)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("err=%v want ErrTransport wrapping deadline", err)
	}
}

func TestWriteRequest(t *testing.T) {
	t.Parallel()

	name, err := NewNameTarget("example.com", 80)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{name: "ipv4", target: NewIPv4Target([4]byte{1, 2, 3, 4}, 443), want: "05 01 00 01 01020304 01bb"},
		{name: "domain", target: name, want: "05 01 00 03 0b 6578616d706c652e636f6d 0050"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteRequest(&buf, tt.target); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf.Bytes(), mustHex(t, tt.want)) {
				t.Fatalf("got % x want %s", buf.Bytes(), tt.want)
			}
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	t.Parallel()

	var targets []Target
	for _, ip := range [][4]byte{{0, 0, 0, 0}, {1, 2, 3, 4}, {255, 255, 255, 255}} {
		for _, port := range []uint16{0, 80, 65535} {
			targets = append(targets, NewIPv4Target(ip, port))
		}
	}
	for _, n := range []string{"a", "example.com", strings.Repeat("z", 255), "\xff\x00binary"} {
		tg, err := NewNameTarget(n, 8080)
		if err != nil {
			t.Fatal(err)
		}
		targets = append(targets, tg)
	}

	for _, want := range targets {
		var buf bytes.Buffer
		if err := WriteRequest(&buf, want); err != nil {
			t.Fatal(err)
		}
		got, err := ReadRequest(&buf)
		if err != nil {
			t.Fatalf("%s: %v", want, err)
		}
		if got != want {
			t.Fatalf("got %+v want %+v", got, want)
		}
		if buf.Len() != 0 {
			t.Fatalf("%s: %d trailing bytes", want, buf.Len())
		}
	}
}

func TestWriteRequestInvalid(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteRequest(&buf, Target{}); !errors.Is(err, ErrUnsupportedAddressFamily) {
		t.Fatalf("err=%v", err)
	}
	if err := WriteRequest(&buf, Target{form: FormName}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("err=%v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote %d bytes for invalid target", buf.Len())
	}
}

func TestReadReplyAddressTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		reply    string
		wantAddr string
	}{
		{name: "ipv4", reply: "05 00 00 01 7f000001 1f90", wantAddr: "127.0.0.1:8080"},
		{name: "ipv6", reply: "05 00 00 04 00000000000000000000000000000001 0050", wantAddr: "[::1]:80"},
		{name: "domain", reply: "05 00 00 03 09 6c6f63616c686f7374 0016", wantAddr: "localhost:22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Trailing data must not be consumed.
			r := bytes.NewReader(append(mustHex(t, tt.reply), 'x'))
			rep, err := ReadReply(r)
			if err != nil {
				t.Fatal(err)
			}
			if got := rep.BoundAddress(); got != tt.wantAddr {
				t.Fatalf("got %s want %s", got, tt.wantAddr)
			}
			if r.Len() != 1 {
				t.Fatalf("consumed %d trailing bytes", 1-r.Len())
			}
		})
	}
}

func TestReadReplyErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		wantErr error
	}{
		{name: "empty", reply: "", wantErr: ErrTransport},
		{name: "short header", reply: "05 00 00", wantErr: ErrTransport},
		{name: "short address", reply: "05 00 00 01 7f00", wantErr: ErrTransport},
		{name: "missing port", reply: "05 00 00 01 7f000001", wantErr: ErrTransport},
		{name: "bad version", reply: "04 00 00 01 7f000001 0000", wantErr: ErrProtocol},
		{name: "bad atyp", reply: "05 00 00 02 7f000001 0000", wantErr: ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadReply(bytes.NewReader(mustHex(t, tt.reply)))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadConnectReplyFailureHeaderOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
	}{
		{name: "truncated address", reply: "05 05 00 01"},
		{name: "truncated port", reply: "05 05 00 01 00000000 00"},
		{name: "unknown atyp", reply: "05 05 00 00 00000000 0000"},
		{name: "truncated name", reply: "05 05 00 03 0b 6578"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := ReadConnectReply(bytes.NewReader(mustHex(t, tt.reply)))
			var re *ReplyError
			if !errors.As(err, &re) || re.Code != ReplyConnectionRefused {
				t.Fatalf("err=%v want connection refused", err)
			}
			if !errors.Is(err, ErrRejected) || errors.Is(err, ErrTransport) || errors.Is(err, ErrProtocol) {
				t.Fatalf("err=%v misclassified", err)
			}
			if rep == nil || rep.Code != ReplyConnectionRefused {
				t.Fatalf("reply %+v", rep)
			}
		})
	}
}

func TestReplyCodes(t *testing.T) {
	t.Parallel()

	reasons := map[string]byte{}
	for code := 0; code <= 255; code++ {
		reply := []byte{0x05, byte(code), 0x00, 0x01, 0, 0, 0, 0, 0, 0}
		rep, err := ReadConnectReply(bytes.NewReader(reply))

		switch {
		case code == 0:
			if err != nil {
				t.Fatalf("code 0: %v", err)
			}
		case code <= 8:
			var re *ReplyError
			if !errors.As(err, &re) || !errors.Is(err, ErrRejected) || errors.Is(err, ErrUnknownReplyCode) {
				t.Fatalf("code %d: err=%v want ErrRejected", code, err)
			}
			reason := re.Code.String()
			if prev, dup := reasons[reason]; dup {
				t.Fatalf("codes %d and %d share reason %q", prev, code, reason)
			}
			reasons[reason] = byte(code)
		default:
			if !errors.Is(err, ErrUnknownReplyCode) || errors.Is(err, ErrRejected) {
				t.Fatalf("code %d: err=%v want ErrUnknownReplyCode", code, err)
			}
		}
		if rep == nil || byte(rep.Code) != byte(code) {
			t.Fatalf("code %d: reply %+v", code, rep)
		}
	}

	if got := ReplyConnectionRefused.String(); got != "connection refused" {
		t.Fatalf("got %q", got)
	}
}
