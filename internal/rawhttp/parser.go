// Package rawhttp is a small HTTP/1.1 server written directly against TCP
// sockets. It parses requests itself, hands them to a Handler and writes the
// serialised response back, keeping connections alive where the protocol
// allows it.
package rawhttp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	ferrors "github.com/conneroisu/feasp/internal/errors"
)

// Limits bounds the size of one request.
type Limits struct {
	// MaxHeaderBytes bounds the request line plus the header section.
	MaxHeaderBytes int
	// MaxBodyBytes bounds the decoded body.
	MaxBodyBytes int64
}

// DefaultLimits are used for zero Limits fields.
var DefaultLimits = Limits{
	MaxHeaderBytes: 1 << 20,
	MaxBodyBytes:   10 << 20,
}

func (l Limits) withDefaults() Limits {
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = DefaultLimits.MaxHeaderBytes
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = DefaultLimits.MaxBodyBytes
	}
	return l
}

// Message is one parsed request.
type Message struct {
	Method     string
	Target     string
	Proto      string
	Header     http.Header
	Body       []byte
	RemoteAddr string
}

// KeepAlive reports whether the connection may carry another request after
// this one. HTTP/1.1 keeps the connection unless the client sent
// "Connection: close"; HTTP/1.0 only keeps it on "Connection: keep-alive".
func (m *Message) KeepAlive() bool {
	tokens := connectionTokens(m.Header)
	if tokens["close"] {
		return false
	}
	if m.Proto == "HTTP/1.0" {
		return tokens["keep-alive"]
	}
	return true
}

func connectionTokens(header http.Header) map[string]bool {
	tokens := map[string]bool{}
	for _, v := range header.Values("Connection") {
		for _, t := range strings.Split(v, ",") {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				tokens[t] = true
			}
		}
	}
	return tokens
}

// Write serialises the message as an HTTP/1.1 request. Content-Length is
// set from the body.
func (m *Message) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %s %s\r\n", m.Method, m.Target, m.Proto)
	header := m.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Del("Transfer-Encoding")
	if len(m.Body) > 0 || header.Get("Content-Length") != "" {
		header.Set("Content-Length", strconv.Itoa(len(m.Body)))
	}
	if err := header.Write(bw); err != nil {
		return err
	}
	bw.WriteString("\r\n")
	bw.Write(m.Body)
	return bw.Flush()
}

var (
	errHeaderTooLarge = &ferrors.FeaspError{
		Type:    ferrors.ErrorTypeBadRequest,
		Code:    "HEADER_TOO_LARGE",
		Message: "request header section too large",
		Status:  http.StatusRequestHeaderFieldsTooLarge,
	}
	errBodyTooLarge = &ferrors.FeaspError{
		Type:    ferrors.ErrorTypeBadRequest,
		Code:    "BODY_TOO_LARGE",
		Message: "request body too large",
		Status:  http.StatusRequestEntityTooLarge,
	}
)

// lineReader reads CRLF or LF terminated lines while charging their length
// against a byte budget.
type lineReader struct {
	r      *bufio.Reader
	budget int
	// exceeded is returned when the budget runs out.
	exceeded error
}

func (lr *lineReader) readLine() (string, error) {
	var line []byte
	for {
		l, more, err := lr.r.ReadLine()
		if err != nil {
			return "", err
		}
		lr.budget -= len(l) + 2
		if lr.budget < 0 {
			return "", lr.exceeded
		}
		if line == nil && !more {
			return string(l), nil
		}
		line = append(line, l...)
		if !more {
			return string(line), nil
		}
	}
}

// ParseRequest reads one request from r. It returns io.EOF when the peer
// closed the connection before sending anything. Protocol violations are
// returned as *errors.FeaspError carrying the status to answer with; other
// errors come from the underlying reader.
func ParseRequest(r *bufio.Reader, limits Limits) (*Message, error) {
	limits = limits.withDefaults()
	lr := &lineReader{r: r, budget: limits.MaxHeaderBytes, exceeded: errHeaderTooLarge}

	msg := &Message{}
	if err := readRequestLine(lr, msg); err != nil {
		return nil, err
	}

	header, err := readHeaders(lr)
	if err != nil {
		return nil, err
	}
	msg.Header = header

	body, err := readBody(r, header, limits)
	if err != nil {
		return nil, err
	}
	msg.Body = body
	return msg, nil
}

func readRequestLine(lr *lineReader, msg *Message) error {
	var line string
	for {
		l, err := lr.readLine()
		if err != nil {
			return err
		}
		// Empty lines before the request line are ignored.
		if l != "" {
			line = l
			break
		}
	}

	fields := strings.Split(line, " ")
	if len(fields) != 3 {
		return badRequest("MALFORMED_REQUEST_LINE", "malformed request line %q", line)
	}
	method, target, proto := fields[0], fields[1], fields[2]

	if !validMethod(method) {
		return badRequest("MALFORMED_REQUEST_LINE", "invalid method %q", method)
	}
	if target == "" {
		return badRequest("MALFORMED_REQUEST_LINE", "empty request target")
	}
	if _, _, ok := http.ParseHTTPVersion(proto); !ok {
		return badRequest("MALFORMED_REQUEST_LINE", "invalid protocol %q", proto)
	}

	msg.Method, msg.Target, msg.Proto = method, target, proto
	return nil
}

func validMethod(method string) bool {
	if method == "" {
		return false
	}
	for _, c := range method {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func readHeaders(lr *lineReader) (http.Header, error) {
	header := make(http.Header)
	for {
		line, err := lr.readLine()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if line == "" {
			return header, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, badRequest("MALFORMED_HEADER", "folded header line %q", line)
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, badRequest("MALFORMED_HEADER", "malformed header %q", line)
		}
		key := http.CanonicalHeaderKey(name)
		value = strings.TrimSpace(value)

		if prev, ok := header[key]; ok {
			header[key] = []string{prev[0] + ", " + value}
		} else {
			header[key] = []string{value}
		}
	}
}

func readBody(r *bufio.Reader, header http.Header, limits Limits) ([]byte, error) {
	if te := header.Get("Transfer-Encoding"); te != "" {
		if !strings.EqualFold(lastToken(te), "chunked") {
			return nil, &ferrors.FeaspError{
				Type:    ferrors.ErrorTypeBadRequest,
				Code:    "UNSUPPORTED_TRANSFER_ENCODING",
				Message: fmt.Sprintf("unsupported transfer encoding %q", te),
				Status:  http.StatusNotImplemented,
			}
		}
		return readChunkedBody(r, header, limits)
	}

	cl := header.Get("Content-Length")
	if cl == "" {
		return nil, nil
	}
	length, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || length < 0 {
		return nil, badRequest("INVALID_CONTENT_LENGTH", "invalid Content-Length %q", cl)
	}
	if length > limits.MaxBodyBytes {
		return nil, errBodyTooLarge
	}
	if length == 0 {
		return nil, nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, badRequest("INCOMPLETE_BODY", "body shorter than Content-Length %d", length)
		}
		return nil, err
	}
	return body, nil
}

func readChunkedBody(r *bufio.Reader, header http.Header, limits Limits) ([]byte, error) {
	cr := NewChunkedReader(r)
	cr.MaxTrailerBytes = limits.MaxHeaderBytes
	body, err := io.ReadAll(io.LimitReader(cr, limits.MaxBodyBytes+1))
	if err != nil {
		if errors.Is(err, ErrTrailerTooLarge) {
			return nil, errHeaderTooLarge
		}
		var fe *ferrors.FeaspError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, badRequest("MALFORMED_CHUNK", "malformed chunked body: %v", err)
	}
	if int64(len(body)) > limits.MaxBodyBytes {
		return nil, errBodyTooLarge
	}

	for k, values := range cr.Trailer() {
		for _, v := range values {
			header.Add(k, v)
		}
	}
	header.Del("Transfer-Encoding")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return body, nil
}

func lastToken(s string) string {
	parts := strings.Split(s, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}

func badRequest(code, format string, args ...any) *ferrors.FeaspError {
	return ferrors.NewBadRequest(code, fmt.Sprintf(format, args...), nil)
}
