package rtsp

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/mcm001/v4l2-hevc-meme/internal/egress"
	"github.com/mcm001/v4l2-hevc-meme/internal/metrics"
	"github.com/mcm001/v4l2-hevc-meme/internal/registry"
	"github.com/mcm001/v4l2-hevc-meme/internal/rtsp/transport"
)

// state is the per-connection session state machine. DESCRIBE, SETUP,
// PLAY and TEARDOWN set it as they succeed; PLAY is the only method gated
// on it (455 unless in stateSetUp), and a successful TEARDOWN ends Serve.
type state int

const (
	stateFresh state = iota
	stateDescribed
	stateSetUp
	statePlaying
	stateTornDown
)

const (
	protocolVersion = "1.0"
	maxRequestBytes = 64 * 1024
)

// Connection is one RTSP control session: one accepted TCP socket plus,
// once SETUP succeeds, one egress.Pipeline delivering that session's RTP
// stream over UDP. Grounded on camera.go's mutex-guarded struct shape,
// translated from a Nest-client role to the server role this spec
// describes. Implements registry.Subscriber so the registry can fan a
// published frame into this connection's pipeline without knowing
// anything about RTSP.
type Connection struct {
	mu sync.Mutex

	id       string
	conn     net.Conn
	reg      *registry.Registry
	serverIP net.IP

	state      state
	streamName string
	session    string

	clientAddr    net.IP
	clientRTPPort int

	pipeline *egress.Pipeline
}

// NewConnection wraps an accepted socket. serverIP is advertised in the
// SDP origin/connection lines DESCRIBE returns.
func NewConnection(conn net.Conn, reg *registry.Registry, serverIP net.IP) *Connection {
	return &Connection{
		id:       uuid.NewString(),
		conn:     conn,
		reg:      reg,
		serverIP: serverIP,
		state:    stateFresh,
	}
}

// ID implements registry.Subscriber.
func (c *Connection) ID() string { return c.id }

// Offer implements registry.Subscriber: it is invoked by Registry.Publish
// from whatever goroutine called PublishFrame, with the registry's own
// mutex already released. Offer must not block the caller on anything
// beyond this connection's own encode-and-send work.
func (c *Connection) Offer(img registry.Image) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != statePlaying || c.pipeline == nil {
		return false
	}

	err := c.pipeline.HandleFrame(egress.Frame{
		Width:  img.Width,
		Height: img.Height,
		Stride: img.Stride,
		Pix:    img.Pix,
	})
	if err != nil {
		log.WithError(err).WithField("session", c.session).Warn("failed to deliver frame to session")
		return false
	}
	return true
}

// Serve reads and dispatches requests from the socket until it closes or
// a fatal framing error occurs. Intended to run on its own goroutine, one
// per accepted connection.
func (c *Connection) Serve() {
	defer c.teardown()

	br := bufio.NewReaderSize(c.conn, maxRequestBytes)
	for {
		req, err := ParseRequest(br)
		if err != nil {
			log.WithError(err).WithField("connection", c.id).Debug("connection closed")
			return
		}

		resp := c.handle(req)
		if err := resp.Write(c.conn); err != nil {
			log.WithError(err).WithField("connection", c.id).Warn("failed to write response")
			return
		}
		if req.Method == MethodTeardown && resp.Code == 200 {
			return
		}
	}
}

func (c *Connection) handle(req *Request) *Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch req.Method {
	case MethodOptions:
		return c.handleOptions(req)
	case MethodDescribe:
		return c.handleDescribe(req)
	case MethodSetup:
		return c.handleSetup(req)
	case MethodPlay:
		return c.handlePlay(req)
	case MethodTeardown:
		return c.handleTeardown(req)
	case MethodGetParameter:
		return c.handleGetParameter(req)
	default:
		return statusResponse(req, 501, "Not Implemented")
	}
}

func (c *Connection) handleOptions(req *Request) *Response {
	resp := statusResponse(req, 200, "OK")
	resp.Header.Set("Public", "OPTIONS, DESCRIBE, SETUP, PLAY, TEARDOWN, GET_PARAMETER")
	return resp
}

func (c *Connection) handleDescribe(req *Request) *Response {
	name, err := streamNameFromURL(req.Url)
	if err != nil {
		return statusResponse(req, 400, "Bad Request")
	}

	desc, ok := c.reg.Lookup(name)
	if !ok {
		return statusResponse(req, 404, "Not Found")
	}

	body, err := egress.BuildSDP(name, desc.Width, desc.Height, egress.DefaultPayloadType, c.serverIP.String())
	if err != nil {
		log.WithError(err).Error("failed to build SDP")
		return statusResponse(req, 500, "Internal Server Error")
	}

	c.streamName = name
	c.state = stateDescribed

	resp := statusResponse(req, 200, "OK")
	resp.Header.Set("Content-Type", "application/sdp")
	resp.Body = bytes.NewBuffer(body)
	return resp
}

func (c *Connection) handleSetup(req *Request) *Response {
	name, err := streamNameFromURL(req.Url)
	if err != nil {
		return statusResponse(req, 400, "Bad Request")
	}

	desc, ok := c.reg.Lookup(name)
	if !ok {
		return statusResponse(req, 404, "Not Found")
	}

	transportHeader := req.Header.Get("Transport")
	if transportHeader == "" {
		return statusResponse(req, 400, "Bad Request")
	}
	parsed, err := transport.Parse(strings.Split(transportHeader, ","))
	if err != nil {
		return statusResponse(req, 461, transport.UnsupportedTransportMessage)
	}
	clientPort, err := transport.RequireUnicastClientPort(parsed)
	if err != nil {
		return statusResponse(req, 400, "Bad Request")
	}

	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return statusResponse(req, 500, "Internal Server Error")
	}
	clientIP := net.ParseIP(host)
	if clientIP == nil {
		return statusResponse(req, 500, "Internal Server Error")
	}

	pipeline, err := egress.New(egress.Config{
		Width:       desc.Width,
		Height:      desc.Height,
		PayloadType: egress.DefaultPayloadType,
		DestAddr:    clientIP,
		RTPPort:     clientPort,
		StreamName:  name,
		ServerAddr:  c.serverIP.String(),
	})
	if err != nil {
		log.WithError(err).Error("failed to start egress pipeline")
		return statusResponse(req, 500, "Internal Server Error")
	}

	c.streamName = name
	c.pipeline = pipeline
	c.clientAddr = clientIP
	c.clientRTPPort = clientPort
	c.session = uuid.NewString()[:8]
	c.state = stateSetUp
	c.reg.Subscribe(c, name)

	resp := statusResponse(req, 200, "OK")
	resp.Header.Set("Transport", fmt.Sprintf(
		"RTP/AVP;unicast;client_port=%d-%d;server_port=%d-%d",
		clientPort, clientPort+1, pipeline.LocalRTPPort(), pipeline.LocalRTPPort()+1))
	resp.Header.Set("Session", c.session)
	return resp
}

func (c *Connection) handlePlay(req *Request) *Response {
	if !c.sessionMatches(req) {
		return statusResponse(req, 454, "Session Not Found")
	}
	if c.state != stateSetUp {
		return statusResponse(req, 455, "Method Not Valid In This State")
	}

	c.state = statePlaying
	metrics.SessionsPlaying.Inc()

	resp := statusResponse(req, 200, "OK")
	resp.Header.Set("Session", c.session)
	resp.Header.Set("Range", "npt=0.000-")
	return resp
}

func (c *Connection) handleTeardown(req *Request) *Response {
	if !c.sessionMatches(req) {
		return statusResponse(req, 454, "Session Not Found")
	}

	c.closePipelineLocked()
	c.state = stateTornDown

	resp := statusResponse(req, 200, "OK")
	resp.Header.Set("Session", c.session)
	return resp
}

func (c *Connection) handleGetParameter(req *Request) *Response {
	if c.session != "" && !c.sessionMatches(req) {
		return statusResponse(req, 454, "Session Not Found")
	}
	return statusResponse(req, 200, "OK")
}

func (c *Connection) sessionMatches(req *Request) bool {
	if c.session == "" {
		return false
	}
	return req.Header.Get("Session") == c.session
}

func (c *Connection) closePipelineLocked() {
	if c.pipeline == nil {
		return
	}
	if c.state == statePlaying {
		metrics.SessionsPlaying.Dec()
	}
	if err := c.pipeline.Close(); err != nil {
		log.WithError(err).WithField("session", c.session).Warn("failed to close egress pipeline cleanly")
	}
	c.pipeline = nil
	if c.streamName != "" {
		c.reg.Unsubscribe(c, c.streamName)
	}
}

// teardown runs once Serve's read loop exits, regardless of cause.
func (c *Connection) teardown() {
	c.mu.Lock()
	c.closePipelineLocked()
	c.state = stateTornDown
	c.mu.Unlock()

	c.reg.Unregister(c.id)
	_ = c.conn.Close()
}

func statusResponse(req *Request, code int, message string) *Response {
	return &Response{
		Version:  protocolVersion,
		Code:     code,
		Message:  message,
		Sequence: req.Sequence,
		Header:   make(http.Header),
	}
}

// streamNameFromURL extracts the stream name from an rtsp://host/.../name
// request URL: the last non-empty segment of its path.
func streamNameFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed request URL %q: %w", raw, err)
	}
	_, name := path.Split(path.Clean("/" + u.Path))
	if name == "" {
		return "", fmt.Errorf("request URL %q has no stream name", raw)
	}
	return name, nil
}
