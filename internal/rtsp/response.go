package rtsp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"sort"
)

type Response struct {
	Version  string
	Code     int
	Message  string
	Sequence string
	Header   http.Header
	Body     io.ReadWriter
}

// Write serializes the response in the order the wire format fixes: status
// line, CSeq, then the caller-supplied headers, then an always-present
// Content-Length, a blank line, then the body.
func (r *Response) Write(w io.Writer) error {
	writer := textproto.NewWriter(bufio.NewWriter(w))

	err := writer.PrintfLine("RTSP/%s %d %s", r.Version, r.Code, r.Message)
	if err != nil {
		return fmt.Errorf("failed to write response line: %w", err)
	}
	if r.Header == nil {
		r.Header = http.Header{}
	}

	if err := writer.PrintfLine("CSeq: %s", r.Sequence); err != nil {
		return err
	}

	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		ck := http.CanonicalHeaderKey(k)
		if ck == "Cseq" || ck == "Content-Length" {
			continue
		}
		keys = append(keys, ck)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range r.Header.Values(k) {
			if err := writer.PrintfLine("%s: %s", k, v); err != nil {
				return err
			}
		}
	}

	var body *bytes.Buffer
	if r.Body != nil {
		body = r.Body.(*bytes.Buffer)
	}

	contentLength := 0
	if body != nil {
		contentLength = body.Len()
	}
	if err := writer.PrintfLine("Content-Length: %d", contentLength); err != nil {
		return err
	}

	writer.PrintfLine("")

	if body != nil {
		if _, err := writer.W.Write(body.Bytes()); err != nil {
			return err
		}
	}
	return writer.W.Flush()
}
