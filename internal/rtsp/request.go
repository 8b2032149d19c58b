package rtsp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

type Request struct {
	Version  string
	Url      string
	Sequence string
	Method   Method
	Header   http.Header
	Body     io.ReadWriter
}

// ParseRequest reads one request-line plus headers and (if Content-Length
// is present) body from br. Grounded on client.go's readLoop response
// parsing, adapted for the request line's METHOD URL RTSP/version shape
// instead of a status line.
func ParseRequest(br *bufio.Reader) (*Request, error) {
	reader := textproto.NewReader(br)

	requestLine, err := reader.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read RTSP request line: %w", err)
	}

	parts := strings.Fields(requestLine)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed RTSP request line %q", requestLine)
	}
	versionParts := strings.SplitN(parts[2], "/", 2)
	if len(versionParts) != 2 {
		return nil, fmt.Errorf("malformed RTSP version %q", parts[2])
	}

	headers, err := reader.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("failed to read RTSP headers: %w", err)
	}

	var body io.ReadWriter
	if lengthHeader := headers.Get("Content-Length"); lengthHeader != "" {
		length, err := strconv.Atoi(lengthHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to parse content-length: %w", err)
		}
		b := make([]byte, length)
		if _, err := io.ReadFull(br, b); err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		body = bytes.NewBuffer(b)
	}

	return &Request{
		Version:  versionParts[1],
		Url:      parts[1],
		Sequence: headers.Get("CSeq"),
		Method:   Method(parts[0]),
		Header:   http.Header(headers),
		Body:     body,
	}, nil
}
