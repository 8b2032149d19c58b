// Package egress implements the per-client HEVC-to-RTP path: encode a raw
// frame, packetize the result, send it over UDP, and send an RTCP BYE on
// teardown.
//
// Grounded on FfmpegRtpPipe.cpp, whose init_muxer and write_packet define
// the pkt_size/payload_type/send_bye contract this package's muxer
// implements in pure Go.
package egress

import (
	"fmt"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// sdpArtifactPath is the debugging-aid file written on every Pipeline
// initialization: a plain-text copy of the SDP handed to the client via
// DESCRIBE, for out-of-band clients that don't speak RTSP. Not part of
// the wire protocol.
const sdpArtifactPath = "stream_sdp.txt"

// Defaults mirror FfmpegRtpPipe.cpp's hardcoded encoder/muxer options.
const (
	DefaultGOPSize     = 30
	DefaultBitrate     = 2_000_000
	DefaultFramerate   = 30
	DefaultPayloadType = 96

	// rtpClockRate is the fixed 90kHz clock RFC 7798 mandates for H.265.
	rtpClockRate = 90_000
)

// Config parameterizes one Pipeline instance, built once per SETUP.
type Config struct {
	Width, Height int
	GOPSize       int
	PayloadType   uint8
	DestAddr      net.IP
	RTPPort       int

	// StreamName and ServerAddr are used only to render the stream_sdp.txt
	// debugging artifact; they do not affect encoding or transport.
	StreamName string
	ServerAddr string

	// Encoder overrides the default SoftwareEncoder, for tests.
	Encoder Encoder

	// Now overrides time.Now, for deterministic PTS tests.
	Now func() time.Time
}

// Pipeline is the live Egress Pipeline for one RTSP session: one Encoder
// plus one muxer, guarded by the owning Connection's mutex — Pipeline
// itself is not safe for concurrent HandleFrame calls.
type Pipeline struct {
	enc     Encoder
	mux     *muxer
	now     func() time.Time
	start   time.Time
	lastPTS int64
	started bool
}

// New constructs a Pipeline bound to destAddr:rtpPort (RTCP follows on
// rtpPort+1, the standard even-port convention).
func New(cfg Config) (*Pipeline, error) {
	gop := cfg.GOPSize
	if gop <= 0 {
		gop = DefaultGOPSize
	}
	pt := cfg.PayloadType
	if pt == 0 {
		pt = DefaultPayloadType
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	enc := cfg.Encoder
	if enc == nil {
		enc = NewSoftwareEncoder(cfg.Width, cfg.Height, gop)
	}

	mux, err := newMuxer(cfg.DestAddr, cfg.RTPPort, pt)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("egress: failed to start pipeline: %w", err)
	}

	sdpBody, err := BuildSDP(cfg.StreamName, cfg.Width, cfg.Height, int(pt), cfg.ServerAddr)
	if err != nil {
		log.WithError(err).Error("failed to render SDP artifact")
	} else if err := os.WriteFile(sdpArtifactPath, sdpBody, 0644); err != nil {
		log.WithError(err).WithField("path", sdpArtifactPath).Error("failed to write SDP artifact")
	}

	return &Pipeline{
		enc: enc,
		mux: mux,
		now: now,
	}, nil
}

// LocalRTPPort reports the local UDP port the pipeline's muxer actually
// bound for RTP, for reporting in the SETUP response's Transport header.
// The RTCP socket's local port is chosen by the kernel independently and
// is not necessarily LocalRTPPort()+1.
func (p *Pipeline) LocalRTPPort() int {
	return p.mux.localRTPPort()
}

// HandleFrame derives a PTS from wall-clock elapsed time since the first
// frame handled, encodes frame, and writes every resulting packet to the
// client's RTP socket. PTS is clamped to be monotonically non-decreasing
// even if the wall clock is not strictly monotonic across calls.
func (p *Pipeline) HandleFrame(frame Frame) error {
	now := p.now()
	if !p.started {
		p.start = now
		p.started = true
	}

	elapsedUs := now.Sub(p.start).Microseconds()
	pts := elapsedUs * rtpClockRate / 1_000_000
	if pts < p.lastPTS {
		pts = p.lastPTS
	}
	p.lastPTS = pts

	packets, err := p.enc.Encode(pts, frame)
	if err != nil {
		return fmt.Errorf("egress: encode failed: %w", err)
	}
	return p.emit(packets)
}

func (p *Pipeline) emit(packets []Packet) error {
	for _, pkt := range packets {
		if err := p.mux.writePacket(pkt); err != nil {
			return fmt.Errorf("egress: failed to send packet: %w", err)
		}
	}
	return nil
}

// Close flushes the encoder and sends the session's RTCP BYE, issued on
// TEARDOWN or connection loss.
func (p *Pipeline) Close() error {
	packets, flushErr := p.enc.Flush()
	emitErr := p.emit(packets)
	closeEncErr := p.enc.Close()
	closeMuxErr := p.mux.close()

	for _, err := range []error{flushErr, emitErr, closeEncErr, closeMuxErr} {
		if err != nil {
			return err
		}
	}
	return nil
}
