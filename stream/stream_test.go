package stream

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcm001/v4l2-hevc-meme/internal/rtsp"
)

// TestStreamLifecycle exercises StartServer's once-per-process contract:
// the first call binds, a second call fails. Kept as one test because
// StartServer may only succeed once per process — the package-level
// singleton would make a second independent test flaky depending on run
// order otherwise.
func TestStreamLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := StartServer(ctx, Config{
		ListenAddr:  "127.0.0.1:0",
		AdvertiseIP: net.IPv4(127, 0, 0, 1),
	})
	require.NoError(t, err)

	// StartServer binds an ephemeral port when given port 0, but this
	// facade does not expose the bound address, so exercise the
	// behaviors reachable without it: a second call must fail.
	err = StartServer(ctx, Config{ListenAddr: "127.0.0.1:0"})
	require.Error(t, err)
}

// TestPublishFrameWithNoSubscribersReturnsFalse exercises PublishFrame in
// isolation against the shared registry, independent of whether a
// listener has been started.
func TestPublishFrameWithNoSubscribersReturnsFalse(t *testing.T) {
	accepted := PublishFrame("nonexistent-stream", 64, 48, 64*3, make([]byte, 64*48*3))
	require.False(t, accepted)
}

// dialAndPlay is a minimal RTSP client used only to prove PublishFrame's
// effect reaches a live UDP socket. The test accepts the TCP connection
// itself and registers it with the shared registry the way rtsp.Listener
// does (bypassing the once-only StartServer facade so this test can run
// independently of TestStreamLifecycle's process-wide side effect).
func dialAndPlay(t *testing.T, addr, streamName string, clientPort int) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	br := bufio.NewReader(conn)
	reader := textproto.NewReader(br)
	seq := 0

	do := func(method string, headers map[string]string) (int, textproto.MIMEHeader) {
		seq++
		var b strings.Builder
		fmt.Fprintf(&b, "%s rtsp://%s/%s RTSP/1.0\r\n", method, addr, streamName)
		fmt.Fprintf(&b, "CSeq: %d\r\n", seq)
		for k, v := range headers {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
		b.WriteString("\r\n")
		_, err := conn.Write([]byte(b.String()))
		require.NoError(t, err)

		statusLine, err := reader.ReadLine()
		require.NoError(t, err)
		parts := strings.Fields(statusLine)
		code, err := strconv.Atoi(parts[1])
		require.NoError(t, err)
		h, err := reader.ReadMIMEHeader()
		require.NoError(t, err)
		if cl := h.Get("Content-Length"); cl != "" {
			n, err := strconv.Atoi(cl)
			require.NoError(t, err)
			_, err = br.Discard(n)
			require.NoError(t, err)
		}
		return code, h
	}

	code, _ := do("DESCRIBE", nil)
	require.Equal(t, 200, code)

	code, h := do("SETUP", map[string]string{
		"Transport": fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d", clientPort, clientPort+1),
	})
	require.Equal(t, 200, code)
	session := h.Get("Session")
	require.NotEmpty(t, session)

	code, _ = do("PLAY", map[string]string{"Session": session})
	require.Equal(t, 200, code)
}

func TestPublishFrameDeliversToPlayingSession(t *testing.T) {
	PublishFrame("bench", 32, 24, 32*3, make([]byte, 32*24*3))

	rtpListener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer rtpListener.Close()
	clientPort := rtpListener.LocalAddr().(*net.UDPAddr).Port

	rtcpListener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: clientPort + 1})
	require.NoError(t, err)
	defer rtcpListener.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			sc := rtsp.NewConnection(c, reg, net.IPv4(127, 0, 0, 1))
			reg.Register(sc)
			go sc.Serve()
		}
	}()

	dialAndPlay(t, ln.Addr().String(), "bench", clientPort)

	accepted := PublishFrame("bench", 32, 24, 32*3, make([]byte, 32*24*3))
	require.True(t, accepted)

	buf := make([]byte, 1500)
	require.NoError(t, rtpListener.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := rtpListener.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)
}
