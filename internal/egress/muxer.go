package egress

import (
	"crypto/rand"
	"fmt"
	"net"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	log "github.com/sirupsen/logrus"

	"github.com/mcm001/v4l2-hevc-meme/internal/hevc"
	"github.com/mcm001/v4l2-hevc-meme/internal/metrics"
)

const (
	rtpVersion = 2

	// pktSize mirrors FfmpegRtpPipe.cpp's pkt_size=1472 muxer option
	// (Ethernet MTU minus IP/UDP headers). payloadMaxSize further
	// subtracts the 12-byte fixed RTP header so the NAL payload itself
	// never pushes a packet over the wire budget.
	pktSize        = 1472
	payloadMaxSize = pktSize - 12
)

// muxer emits one client's RTP/H265 stream over UDP and, on close, an RTCP
// BYE. Grounded on FfmpegRtpPipe.cpp's init_muxer/write_packet
// (avio_open "udp://ip:port", pkt_size=1472, payload_type=96), translated
// from libavformat's rtp muxer to github.com/pion/rtp packetization —
// there is no pure-Go libavformat equivalent here. NAL batching (single-NAL,
// fragmentation-unit) follows RFC 7798's packetization rules, the same
// ones bluenviron-gortsplib's pkg/formats/rtph265 encoder implements.
type muxer struct {
	rtpConn, rtcpConn *net.UDPConn
	payloadType       uint8
	ssrc              uint32
	sequenceNumber    uint16
}

func randUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func newMuxer(destIP net.IP, rtpPort int, payloadType uint8) (*muxer, error) {
	ssrc, err := randUint32()
	if err != nil {
		return nil, fmt.Errorf("muxer: failed to generate SSRC: %w", err)
	}
	seq, err := randUint32()
	if err != nil {
		return nil, fmt.Errorf("muxer: failed to generate initial sequence number: %w", err)
	}

	rtpConn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: destIP, Port: rtpPort})
	if err != nil {
		return nil, fmt.Errorf("muxer: failed to open RTP socket to %s:%d: %w", destIP, rtpPort, err)
	}
	rtcpConn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: destIP, Port: rtpPort + 1})
	if err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("muxer: failed to open RTCP socket to %s:%d: %w", destIP, rtpPort+1, err)
	}

	return &muxer{
		rtpConn:        rtpConn,
		rtcpConn:       rtcpConn,
		payloadType:    payloadType,
		ssrc:           ssrc,
		sequenceNumber: uint16(seq),
	}, nil
}

// localRTPPort returns the local UDP port the kernel assigned the RTP
// socket when it was dialed, for reporting in the SETUP response's
// Transport header.
func (m *muxer) localRTPPort() int {
	return m.rtpConn.LocalAddr().(*net.UDPAddr).Port
}

// writePacket packetizes one Annex-B NAL unit into RTP and sends it.
func (m *muxer) writePacket(pkt Packet) error {
	nalType, _ := hevc.Type(pkt.Data)
	nal := hevc.TrimStartCode(pkt.Data)

	// Marker flags the last RTP packet of an access unit. Parameter sets
	// (VPS/SPS/PPS, non-VCL types 32-34) always precede a slice in the
	// same access unit, so only the VCL slice NAL (type < 32) closes it.
	marker := nalType < 32

	pkts, err := m.packetize(nal, uint32(pkt.PTS), marker)
	if err != nil {
		return err
	}

	for _, p := range pkts {
		b, err := p.Marshal()
		if err != nil {
			return fmt.Errorf("muxer: failed to marshal RTP packet: %w", err)
		}
		if _, err := m.rtpConn.Write(b); err != nil {
			return fmt.Errorf("muxer: failed to write RTP packet: %w", err)
		}
		metrics.RTPPacketsSent.Inc()
	}
	if pkt.KeyFrame {
		log.WithField("nal", nalType.String()).Debug("wrote keyframe packet")
	}
	return nil
}

// packetize implements RFC 7798 single-NAL and fragmentation-unit packing.
// Aggregation units are not needed here since the egress pipeline emits
// one NAL per Packet. marker is carried onto the last RTP packet produced
// for nal (the only packet, unless nal had to be fragmented).
func (m *muxer) packetize(nal []byte, timestamp uint32, marker bool) ([]*rtp.Packet, error) {
	if len(nal) <= payloadMaxSize {
		return []*rtp.Packet{m.newPacket(nal, timestamp, marker)}, nil
	}
	return m.fragment(nal, timestamp, marker)
}

func (m *muxer) newPacket(payload []byte, timestamp uint32, marker bool) *rtp.Packet {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			PayloadType:    m.payloadType,
			SequenceNumber: m.sequenceNumber,
			Timestamp:      timestamp,
			SSRC:           m.ssrc,
			Marker:         marker,
		},
		Payload: payload,
	}
	m.sequenceNumber++
	return pkt
}

// fragment splits nal into RFC 7798 fragmentation units (PayloadHdr type
// 49) when it does not fit in a single RTP payload. marker is only set on
// the last fragment, since that is the one that actually closes the NAL.
func (m *muxer) fragment(nal []byte, timestamp uint32, marker bool) ([]*rtp.Packet, error) {
	if len(nal) < 2 {
		return nil, fmt.Errorf("muxer: NAL unit too short to fragment (%d bytes)", len(nal))
	}
	head := nal[:2]
	body := nal[2:]

	avail := payloadMaxSize - 3
	if avail <= 0 {
		return nil, fmt.Errorf("muxer: payload budget too small to fragment")
	}
	n := (len(body) + avail - 1) / avail

	out := make([]*rtp.Packet, n)
	for i := 0; i < n; i++ {
		start := body[i*avail:]
		chunk := avail
		if chunk > len(start) {
			chunk = len(start)
		}
		chunk = minInt(chunk, avail)
		end := i == n-1

		data := make([]byte, 3+chunk)
		data[0] = head[0]&0b10000001 | 49<<1
		data[1] = head[1]
		var startBit, endBit uint8
		if i == 0 {
			startBit = 1
		}
		if end {
			endBit = 1
		}
		data[2] = (startBit << 7) | (endBit << 6) | (head[0]>>1)&0b111111
		copy(data[3:], start[:chunk])

		out[i] = m.newPacket(data, timestamp, end && marker)
	}
	return out, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// close sends an RTCP BYE and releases the sockets.
func (m *muxer) close() error {
	bye := &rtcp.Goodbye{Sources: []uint32{m.ssrc}}
	b, err := bye.Marshal()
	if err == nil {
		_, _ = m.rtcpConn.Write(b)
	}
	m.rtpConn.Close()
	m.rtcpConn.Close()
	return err
}
