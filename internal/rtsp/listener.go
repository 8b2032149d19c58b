package rtsp

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mcm001/v4l2-hevc-meme/internal/metrics"
	"github.com/mcm001/v4l2-hevc-meme/internal/registry"
)

// keepAlivePeriod enables TCP keepalives on accepted sockets so a client
// that goes dark without sending TEARDOWN is still reaped.
const keepAlivePeriod = 1 * time.Second

// Listener is the RTSP control-channel accept loop: one TCP listener,
// one goroutine per accepted connection, each registered with the shared
// Registry on accept and unregistered on close.
type Listener struct {
	reg      *registry.Registry
	serverIP net.IP
	ln       net.Listener
}

// NewListener constructs a Listener that registers accepted connections
// with reg, advertising serverIP in SDP responses.
func NewListener(reg *registry.Registry, serverIP net.IP) *Listener {
	return &Listener{reg: reg, serverIP: serverIP}
}

// Bind opens the TCP listening socket on addr. Callers that need to know
// whether the bind itself succeeded before anything else proceeds should
// call Bind and check its error before calling Serve.
func (l *Listener) Bind(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rtsp: failed to listen on %s: %w", addr, err)
	}
	l.ln = ln
	log.WithField("addr", addr).Info("rtsp listener bound")
	return nil
}

// Serve accepts connections on the socket opened by Bind, until ctx is
// done or a non-recoverable accept error occurs. Bind must be called
// first.
func (l *Listener) Serve(ctx context.Context) error {
	ln := l.ln
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("rtsp: accept failed: %w", err)
			}
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(keepAlivePeriod)
		}

		c := NewConnection(conn, l.reg, l.serverIP)
		l.reg.Register(c)
		metrics.ConnectionsAccepted.Inc()

		log.WithFields(log.Fields{
			"connection": c.ID(),
			"remote":     conn.RemoteAddr().String(),
		}).Info("rtsp connection accepted")

		go c.Serve()
	}
}
