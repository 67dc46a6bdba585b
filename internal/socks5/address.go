package socks5

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

// MaxNameLen is the longest destination name a CONNECT request can carry.
const MaxNameLen = 255

// AddrForm selects how the destination address is encoded in a request.
type AddrForm byte

const (
	// FormIPv4 sends the 4 raw address bytes (ATYP 1).
	FormIPv4 AddrForm = AddrForm(txsocks5.ATYPIPv4)
	// FormName sends a length-prefixed name (ATYP 3) and leaves resolution
	// to the proxy.
	FormName AddrForm = AddrForm(txsocks5.ATYPDomain)
)

func (f AddrForm) String() string {
	switch f {
	case FormIPv4:
		return "ipv4"
	case FormName:
		return "name"
	default:
		return "AddrForm(" + strconv.Itoa(int(f)) + ")"
	}
}

// NameLookup maps an address the application already resolved back to the
// name it asked for. *hostcache.Cache implements it.
type NameLookup interface {
	Name(addr netip.Addr) (string, bool)
}

// Target is the destination of one redirection attempt.
type Target struct {
	form AddrForm
	ip   [4]byte
	name string
	port uint16
}

// NewIPv4Target returns a literal IPv4 destination.
func NewIPv4Target(ip [4]byte, port uint16) Target {
	return Target{form: FormIPv4, ip: ip, port: port}
}

// NewNameTarget returns a name destination. The name must be 1 to 255
// bytes long.
func NewNameTarget(name string, port uint16) (Target, error) {
	if err := ValidateName(name); err != nil {
		return Target{}, err
	}
	return Target{form: FormName, name: name, port: port}, nil
}

// ValidateName checks that name fits the one-byte length field.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return fmt.Errorf("%w: length %d", ErrInvalidName, len(name))
	}
	return nil
}

// ParseTarget turns a "host:port" string into a Target.
//
// IPv4 literals are sent as FormIPv4 unless names knows the name the
// address was resolved from, in which case that name is sent instead.
// IPv6 literals are rejected with ErrUnsupportedAddressFamily; anything
// else is treated as a name.
func ParseTarget(hostport string, names NameLookup) (Target, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Target{}, fmt.Errorf("parse target %q: %w", hostport, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Target{}, fmt.Errorf("parse target %q: invalid port: %w", hostport, err)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return fromAddr(ip, uint16(port), names)
	}
	return NewNameTarget(host, uint16(port))
}

// ResolveAddr turns a socket address into a Target. Only TCP addresses
// carrying IPv4 (or IPv4-mapped IPv6) are supported.
func ResolveAddr(addr net.Addr, names NameLookup) (Target, error) {
	ta, ok := addr.(*net.TCPAddr)
	if !ok || ta == nil {
		return Target{}, fmt.Errorf("%w: %T", ErrUnsupportedAddressFamily, addr)
	}
	ip, ok := netip.AddrFromSlice(ta.IP)
	if !ok {
		return Target{}, fmt.Errorf("%w: %v", ErrUnsupportedAddressFamily, ta.IP)
	}
	return fromAddr(ip, uint16(ta.Port), names)
}

func fromAddr(ip netip.Addr, port uint16, names NameLookup) (Target, error) {
	ip = ip.Unmap()
	if !ip.Is4() {
		return Target{}, fmt.Errorf("%w: %s", ErrUnsupportedAddressFamily, ip)
	}
	if names != nil {
		if name, ok := names.Name(ip); ok && ValidateName(name) == nil {
			return Target{form: FormName, name: name, port: port}, nil
		}
	}
	return NewIPv4Target(ip.As4(), port), nil
}

// Form reports how the destination will be encoded.
func (t Target) Form() AddrForm { return t.form }

// IP returns the literal address; it is only meaningful for FormIPv4.
func (t Target) IP() [4]byte { return t.ip }

// Name returns the destination name; it is only meaningful for FormName.
func (t Target) Name() string { return t.name }

func (t Target) Port() uint16 { return t.port }

// Host returns the address or name as text.
func (t Target) Host() string {
	if t.form == FormName {
		return t.name
	}
	return netip.AddrFrom4(t.ip).String()
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host(), strconv.Itoa(int(t.port)))
}
