//go:build property
// +build property

package rawhttp

import (
	"bufio"
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestParserProperties checks the request parser against generated messages.
func TestParserProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: a written message parses back to the same request
	properties.Property("write then parse round trip", prop.ForAll(
		func(method string, segments []string, value string, body []byte) bool {
			msg := &Message{
				Method: method,
				Target: "/" + strings.Join(segments, "/"),
				Proto:  "HTTP/1.1",
				Header: http.Header{"X-Value": {value}},
				Body:   body,
			}
			var buf bytes.Buffer
			if err := msg.Write(&buf); err != nil {
				return false
			}

			got, err := ParseRequest(bufio.NewReader(&buf), Limits{})
			if err != nil {
				return false
			}
			return got.Method == msg.Method &&
				got.Target == msg.Target &&
				got.Header.Get("X-Value") == value &&
				bytes.Equal(got.Body, body)
		},
		gen.OneConstOf("GET", "POST", "PUT", "DELETE", "PATCH"),
		gen.SliceOf(gen.Identifier()),
		gen.AlphaString(),
		gen.SliceOf(gen.UInt8()),
	))

	// Property: chunked encoding decodes to the original body
	properties.Property("chunked round trip", prop.ForAll(
		func(body []byte) bool {
			var buf bytes.Buffer
			if err := WriteChunked(&buf, body); err != nil {
				return false
			}
			got, err := readChunkedAsString(buf.String())
			return err == nil && got == string(body)
		},
		gen.SliceOf(gen.UInt8()),
	))

	// Property: arbitrary input never panics the parser
	properties.Property("parse never panics", prop.ForAll(
		func(input string) bool {
			ParseRequest(bufio.NewReader(strings.NewReader(input)), Limits{MaxHeaderBytes: 256, MaxBodyBytes: 256})
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
