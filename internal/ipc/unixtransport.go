package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/ccp-core/ccp/internal/ccplog"
)

// frameBufSize is the maximum single-frame size this transport will read.
// It comfortably covers every message kind in §4.1 at realistic Pattern/
// InstallFold lengths; an oversized datagram is truncated by the kernel and
// will fail wire.Decode's framing check rather than corrupting later reads,
// since SOCK_SEQPACKET preserves datagram boundaries.
const frameBufSize = 1 << 16

// UnixConfig configures a UnixTransport.
type UnixConfig struct {
	// SocketPath is the filesystem path of the SOCK_SEQPACKET Unix domain
	// socket the datapath listens on (when dialing) or that this process
	// should listen on (when acting as the datapath side in tests/demos).
	SocketPath string

	// DialTimeout bounds each individual connect attempt. Defaults to 5s.
	DialTimeout time.Duration

	// MaxDialAttempts bounds the number of connect retries before Dial
	// gives up. Defaults to 10. Unlike the teacher's indefinitely-retrying
	// gRPC transport, the dispatch loop here is not itself reconnect-aware
	// (§5: no cancellation/timeout machinery beyond the three termination
	// conditions), so retrying is bounded and owned by the caller
	// constructing the transport, not by the loop.
	MaxDialAttempts uint64
}

// UnixTransport implements Transport over a SOCK_SEQPACKET ("unixpacket")
// Unix domain socket: one Write is one datagram is one frame, satisfying
// §6's datagram-transport framing rule with no length-prefix framer needed.
type UnixTransport struct {
	conn   *net.UnixConn
	logger *ccplog.Logger
	connID string
}

// Dial connects to a datapath already listening on cfg.SocketPath, retrying
// with exponential backoff (mirroring the reconnect convention in the
// teacher's internal/transport/grpc_client.go, bounded here by
// MaxDialAttempts since the dispatch loop has no reconnect logic of its
// own).
func Dial(ctx context.Context, cfg UnixConfig, logger *ccplog.Logger) (*UnixTransport, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.MaxDialAttempts == 0 {
		cfg.MaxDialAttempts = 10
	}

	addr := &net.UnixAddr{Name: cfg.SocketPath, Net: "unixpacket"}
	connID := uuid.NewString()

	var conn *net.UnixConn
	op := func() error {
		dialer := net.Dialer{Timeout: cfg.DialTimeout}
		c, err := dialer.DialContext(ctx, "unixpacket", addr.String())
		if err != nil {
			return err
		}
		conn = c.(*net.UnixConn)
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.MaxDialAttempts)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", cfg.SocketPath, err)
	}

	logger.Info("ipc: connected to datapath socket",
		"socket_path", cfg.SocketPath,
		"conn_id", connID,
	)

	return &UnixTransport{conn: conn, logger: logger, connID: connID}, nil
}

// Listener accepts datapath connections on a SOCK_SEQPACKET Unix socket.
// This is the server side used by tests and the demo binary standing in for
// the real in-kernel datapath.
type Listener struct {
	ln     *net.UnixListener
	logger *ccplog.Logger
}

// Listen creates (unlinking any stale socket file first) and listens on a
// SOCK_SEQPACKET Unix domain socket at socketPath.
func Listen(socketPath string, logger *ccplog.Logger) (*Listener, error) {
	if err := unix.Unlink(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) && !errors.Is(err, unix.ENOENT) {
		return nil, fmt.Errorf("ipc: unlink stale socket %s: %w", socketPath, err)
	}

	ln, err := net.ListenUnix("unixpacket", &net.UnixAddr{Name: socketPath, Net: "unixpacket"})
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", socketPath, err)
	}
	return &Listener{ln: ln, logger: logger}, nil
}

// Accept blocks for the next incoming connection and wraps it as a
// UnixTransport.
func (l *Listener) Accept() (*UnixTransport, error) {
	conn, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, fmt.Errorf("ipc: accept: %w", err)
	}
	return &UnixTransport{conn: conn, logger: l.logger, connID: uuid.NewString()}, nil
}

// Close stops accepting connections and removes the socket file.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Send implements Transport. One Write is one SOCK_SEQPACKET datagram is one
// frame.
func (t *UnixTransport) Send(ctx context.Context, buf []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(dl)
	}
	_, err := t.conn.Write(buf)
	if err != nil {
		return fmt.Errorf("ipc: send: %w", err)
	}
	return nil
}

// Listen implements Transport. It starts a background goroutine reading
// whole datagrams and forwarding them on the returned channel, which is
// closed when the connection's read side closes.
func (t *UnixTransport) Listen(mode ListenMode) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		buf := make([]byte, frameBufSize)
		for {
			if mode == NonBlocking {
				_ = t.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
			} else {
				_ = t.conn.SetReadDeadline(time.Time{})
			}

			n, err := t.conn.Read(buf)
			if err != nil {
				var ne net.Error
				if mode == NonBlocking && errors.As(err, &ne) && ne.Timeout() {
					continue
				}
				t.logger.Debug("ipc: receive side closed", "conn_id", t.connID, "error", err.Error())
				return
			}
			frame := make([]byte, n)
			copy(frame, buf[:n])
			out <- frame
		}
	}()
	return out
}

// Close implements Transport.
func (t *UnixTransport) Close() error {
	return t.conn.Close()
}
