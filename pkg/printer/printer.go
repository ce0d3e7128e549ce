// Package printer sends raw byte streams (ESC/POS) to receipt printers.
//
// A printer is addressed by a connection descriptor. Only network printers
// are supported:
//
//	tcp:192.168.1.50:9100
//	tcp:[fe80::1]:9100
//
// Descriptors for other transports (usb:, serial:, local:) are recognised
// and rejected without any I/O. A job is connect, write everything, flush,
// close. Nothing is read back from the printer, and success only means the
// bytes reached the OS socket buffer.
package printer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/metrics"
)

// DefaultConnectTimeout bounds the TCP connect. Write and flush have no
// deadline.
const DefaultConnectTimeout = 5 * time.Second

// The messages of these errors are what the UI shows the cashier.
var (
	ErrUnsupported    = errors.New("Unsupported connection type")
	ErrInvalidAddress = errors.New("Invalid address")
	ErrConnect        = errors.New("Failed to connect")
	ErrWrite          = errors.New("Failed to write")
	ErrFlush          = errors.New("Failed to flush")
)

// Error is a failed print job. errors.Is matches both the stage sentinel
// and the underlying cause.
type Error struct {
	Stage  error // one of the Err* sentinels
	Detail string
	Err    error
}

func (e *Error) Error() string { return e.Stage.Error() + ": " + e.Detail }

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Stage}
	}
	return []error{e.Stage, e.Err}
}

// StatusCode reports descriptor problems as the caller's fault and socket
// failures as a bad gateway.
func (e *Error) StatusCode() int {
	if e.Stage == ErrUnsupported || e.Stage == ErrInvalidAddress {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func fail(stage error, err error) *Error {
	return &Error{Stage: stage, Detail: err.Error(), Err: err}
}

// Kind is the transport named by a descriptor prefix.
type Kind string

const (
	KindTCP     Kind = "tcp"
	KindUSB     Kind = "usb"
	KindSerial  Kind = "serial"
	KindLocal   Kind = "local"
	KindUnknown Kind = "unknown"
)

// Connection is a parsed descriptor.
type Connection struct {
	Kind    Kind
	Address netip.AddrPort // set for KindTCP
	Raw     string
}

// ParseConnection parses descriptor. Anything but a tcp: descriptor fails
// with ErrUnsupported; the returned Connection still carries its Kind.
// The tcp address must be an IP literal with a port.
func ParseConnection(descriptor string) (Connection, error) {
	conn := Connection{Kind: KindUnknown, Raw: descriptor}

	prefix, rest, found := strings.Cut(descriptor, ":")
	if found {
		switch Kind(prefix) {
		case KindTCP:
			conn.Kind = KindTCP
		case KindUSB:
			conn.Kind = KindUSB
		case KindSerial:
			conn.Kind = KindSerial
		case KindLocal:
			conn.Kind = KindLocal
		}
	}

	if conn.Kind != KindTCP {
		return conn, &Error{Stage: ErrUnsupported, Detail: descriptor}
	}

	addr, err := netip.ParseAddrPort(rest)
	if err != nil {
		return conn, fail(ErrInvalidAddress, err)
	}
	conn.Address = addr
	return conn, nil
}

// Dialer opens the printer socket. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Printer sends raw jobs. The zero value is usable and uses
// DefaultConnectTimeout and a plain net.Dialer.
type Printer struct {
	ConnectTimeout time.Duration
	Dialer         Dialer
}

// New returns a Printer with the given connect timeout.
func New(connectTimeout time.Duration) *Printer {
	return &Printer{ConnectTimeout: connectTimeout}
}

var defaultPrinter = &Printer{ConnectTimeout: DefaultConnectTimeout}

// Default returns the package-level printer used by PrintRaw.
func Default() *Printer { return defaultPrinter }

// PrintRaw sends data with the default printer.
func PrintRaw(ctx context.Context, connection string, data []byte) error {
	return defaultPrinter.PrintRaw(ctx, connection, data)
}

// PrintRaw connects to the printer named by connection, writes all of data,
// flushes and closes. Calls share no state and may run concurrently.
func (p *Printer) PrintRaw(ctx context.Context, connection string, data []byte) (err error) {
	start := time.Now()
	log := logger.WithCtx(ctx).With(logger.TargetKey, "printer", "job", uuid.NewString(), "connection", connection)
	defer func() {
		metrics.RecordPrintJob(err, len(data), start)
		if err != nil {
			log.Warn("printer: job failed", "error", err, "elapsed", time.Since(start))
			return
		}
		log.Info("printer: job sent", "bytes", len(data), "elapsed", time.Since(start))
	}()

	target, err := ParseConnection(connection)
	if err != nil {
		return err
	}

	conn, err := p.dial(ctx, target.Address)
	if err != nil {
		return fail(ErrConnect, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Debug("printer: close", "error", cerr)
		}
	}()

	return send(conn, data)
}

func (p *Printer) dial(ctx context.Context, addr netip.AddrPort) (net.Conn, error) {
	timeout := p.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{Timeout: timeout}
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return dialer.DialContext(dctx, "tcp", addr.String())
}

// flusher is implemented by connections that buffer in user space, such as
// a TLS or bufio-backed wrapper returned by a custom Dialer. A plain TCP
// socket has nothing to flush.
type flusher interface {
	Flush() error
}

func send(conn net.Conn, data []byte) error {
	// net.Conn.Write writes everything or returns an error.
	if _, err := conn.Write(data); err != nil {
		return fail(ErrWrite, err)
	}
	if f, ok := conn.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fail(ErrFlush, err)
		}
	}
	return nil
}
