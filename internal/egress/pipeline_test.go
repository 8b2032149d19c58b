package egress

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingEncoder lets tests observe the PTS values HandleFrame derives
// without depending on wall-clock timing.
type recordingEncoder struct {
	pts    []int64
	packet Packet
}

func (r *recordingEncoder) Encode(pts int64, frame Frame) ([]Packet, error) {
	r.pts = append(r.pts, pts)
	return []Packet{{PTS: pts, Data: []byte{0x00, 0x00, 0x00, 0x01, 0x26, 0x01, 0xAA}}}, nil
}
func (r *recordingEncoder) Flush() ([]Packet, error) { return nil, nil }
func (r *recordingEncoder) Close() error             { return nil }

func newLoopbackPipeline(t *testing.T, enc Encoder, now func() time.Time) (*Pipeline, *net.UDPConn) {
	t.Helper()
	rtpListener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { rtpListener.Close() })

	port := rtpListener.LocalAddr().(*net.UDPAddr).Port
	rtcpPort := port + 1
	rtcpListener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: rtcpPort})
	require.NoError(t, err)
	t.Cleanup(func() { rtcpListener.Close() })

	p, err := New(Config{
		Width:    64,
		Height:   48,
		DestAddr: net.IPv4(127, 0, 0, 1),
		RTPPort:  port,
		Encoder:  enc,
		Now:      now,
	})
	require.NoError(t, err)
	return p, rtpListener
}

func TestHandleFramePTSIsZeroOnFirstFrame(t *testing.T) {
	enc := &recordingEncoder{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newLoopbackPipeline(t, enc, func() time.Time { return base })
	defer p.Close()

	require.NoError(t, p.HandleFrame(Frame{Width: 64, Height: 48}))
	require.Equal(t, []int64{0}, enc.pts)
}

func TestHandleFramePTSAdvancesWithElapsedTime(t *testing.T) {
	enc := &recordingEncoder{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	p, _ := newLoopbackPipeline(t, enc, func() time.Time { return clock })
	defer p.Close()

	require.NoError(t, p.HandleFrame(Frame{Width: 64, Height: 48}))
	clock = base.Add(100 * time.Millisecond)
	require.NoError(t, p.HandleFrame(Frame{Width: 64, Height: 48}))

	require.Equal(t, int64(0), enc.pts[0])
	require.Equal(t, int64(9000), enc.pts[1]) // 100ms * 90kHz
}

func TestHandleFramePTSNeverDecreases(t *testing.T) {
	enc := &recordingEncoder{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	p, _ := newLoopbackPipeline(t, enc, func() time.Time { return clock })
	defer p.Close()

	require.NoError(t, p.HandleFrame(Frame{Width: 64, Height: 48}))
	clock = base.Add(-1 * time.Second) // clock jumps backwards
	require.NoError(t, p.HandleFrame(Frame{Width: 64, Height: 48}))

	require.GreaterOrEqual(t, enc.pts[1], enc.pts[0])
}

func TestHandleFrameSendsRTPPacket(t *testing.T) {
	enc := &recordingEncoder{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, rtpListener := newLoopbackPipeline(t, enc, func() time.Time { return base })
	defer p.Close()

	require.NoError(t, p.HandleFrame(Frame{Width: 64, Height: 48}))

	buf := make([]byte, 1500)
	require.NoError(t, rtpListener.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := rtpListener.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Greater(t, n, 12) // fixed RTP header size
	require.Equal(t, byte(2), buf[0]>>6)                // RTP version 2
	require.Equal(t, byte(DefaultPayloadType), buf[1]&0x7F)
}

func TestCloseSendsRTCPGoodbye(t *testing.T) {
	enc := &recordingEncoder{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rtpListener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer rtpListener.Close()
	port := rtpListener.LocalAddr().(*net.UDPAddr).Port

	rtcpListener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port + 1})
	require.NoError(t, err)
	defer rtcpListener.Close()

	p, err := New(Config{
		Width:    64,
		Height:   48,
		DestAddr: net.IPv4(127, 0, 0, 1),
		RTPPort:  port,
		Encoder:  enc,
		Now:      func() time.Time { return base },
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	buf := make([]byte, 1500)
	require.NoError(t, rtcpListener.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := rtcpListener.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)
}
