// Package stream is the embedding application's entry point into the
// RTSP server: two functions, StartServer and PublishFrame, for a server
// meant to be linked into a larger process rather than run standalone.
//
// One process-wide facade guarding a single registry, in place of the
// module-level C++ globals this design is derived from.
package stream

import (
	"context"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/mcm001/v4l2-hevc-meme/internal/registry"
	"github.com/mcm001/v4l2-hevc-meme/internal/rtsp"
)

// Config configures the one server instance a process may run.
type Config struct {
	// ListenAddr is the RTSP control-channel address, e.g. ":8554".
	ListenAddr string

	// AdvertiseIP is advertised in SDP origin/connection lines; clients
	// connect their RTP sockets to it. Required for correct DESCRIBE
	// responses when the server is not reachable at 127.0.0.1.
	AdvertiseIP net.IP
}

var (
	reg     = registry.New()
	started bool
	mu      sync.Mutex
)

// StartServer binds the RTSP listener and returns once the socket is
// ready to accept connections, or once the bind itself fails. It may be
// called at most once per process; a second call returns an error
// without affecting the first server instance.
func StartServer(ctx context.Context, cfg Config) error {
	mu.Lock()
	if started {
		mu.Unlock()
		return fmt.Errorf("stream: StartServer already called for this process")
	}
	started = true
	mu.Unlock()

	addr := cfg.AdvertiseIP
	if addr == nil {
		addr = net.IPv4(127, 0, 0, 1)
	}

	listener := rtsp.NewListener(reg, addr)
	if err := listener.Bind(cfg.ListenAddr); err != nil {
		return err
	}

	go func() {
		if err := listener.Serve(ctx); err != nil {
			log.WithError(err).Error("rtsp listener stopped")
		}
	}()

	return nil
}

// PublishFrame makes one raw frame available to every session currently
// playing streamName. Safe to call from any goroutine — in particular,
// from a frame producer that has nothing to do with the goroutine running
// the RTSP listener. Returns true if at least one playing session
// accepted the frame.
func PublishFrame(streamName string, width, height, stride int, pix []byte) bool {
	return reg.Publish(streamName, registry.Image{
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    pix,
	})
}

// ConnectionCount reports the number of live RTSP control connections,
// for callers that want to expose their own liveness/readiness signal
// without scraping Prometheus.
func ConnectionCount() int {
	return reg.ConnectionCount()
}
