package rawhttp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxChunkLineBytes = 4096

// ErrTrailerTooLarge is returned when the trailer section exceeds
// ChunkedReader.MaxTrailerBytes.
var ErrTrailerTooLarge = errors.New("chunked trailer too large")

// ChunkedReader decodes a "Transfer-Encoding: chunked" body. Read returns
// io.EOF after the last chunk and its trailer section have been consumed.
type ChunkedReader struct {
	// MaxTrailerBytes bounds the whole trailer section. Zero means
	// DefaultLimits.MaxHeaderBytes.
	MaxTrailerBytes int

	r        *bufio.Reader
	chunkLen int64 // -1 means the beginning of the next chunk
	trailer  http.Header
	done     bool
}

// NewChunkedReader returns a reader decoding the chunked stream in r.
func NewChunkedReader(r io.Reader) *ChunkedReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &ChunkedReader{r: br, chunkLen: -1}
}

// Trailer returns the trailer fields. It is only complete after Read has
// returned io.EOF.
func (r *ChunkedReader) Trailer() http.Header {
	return r.trailer
}

func (r *ChunkedReader) line() (string, error) {
	lr := &lineReader{r: r.r, budget: maxChunkLineBytes, exceeded: errors.New("chunk line too long")}
	l, err := lr.readLine()
	if err == io.EOF {
		return "", io.ErrUnexpectedEOF
	}
	return l, err
}

func (r *ChunkedReader) readChunkLength() error {
	l, err := r.line()
	if err != nil {
		return fmt.Errorf("failed to read chunk length: %w", err)
	}
	// Chunk extensions are ignored.
	if i := strings.IndexByte(l, ';'); i >= 0 {
		l = l[:i]
	}
	l = strings.TrimSpace(l)
	if l == "" {
		return fmt.Errorf("empty chunk length")
	}

	length := int64(0)
	for _, v := range []byte(l) {
		var d byte
		switch {
		case v >= '0' && v <= '9':
			d = v - '0'
		case v >= 'a' && v <= 'f':
			d = v - 'a' + 10
		case v >= 'A' && v <= 'F':
			d = v - 'A' + 10
		default:
			return fmt.Errorf("invalid chunk length: %q", l)
		}
		if length > (1<<62)/16 {
			return fmt.Errorf("chunk length overflows: %q", l)
		}
		length = length*16 + int64(d)
	}
	r.chunkLen = length
	return nil
}

func (r *ChunkedReader) readCRLF() error {
	l, err := r.line()
	if err != nil {
		return err
	}
	if l != "" {
		return fmt.Errorf("failed to read CRLF after chunk")
	}
	return nil
}

func (r *ChunkedReader) readTrailer() error {
	budget := r.MaxTrailerBytes
	if budget <= 0 {
		budget = DefaultLimits.MaxHeaderBytes
	}
	// One budget spans every trailer line, like the header section.
	lr := &lineReader{r: r.r, budget: budget, exceeded: ErrTrailerTooLarge}

	r.trailer = make(http.Header)
	for {
		l, err := lr.readLine()
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		if l == "" {
			return nil
		}
		name, value, ok := strings.Cut(l, ":")
		if !ok || name == "" {
			return fmt.Errorf("malformed trailer %q", l)
		}
		r.trailer.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
}

func (r *ChunkedReader) Read(b []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	if r.chunkLen < 0 {
		if err := r.readChunkLength(); err != nil {
			return 0, err
		}
	}
	if r.chunkLen == 0 {
		if err := r.readTrailer(); err != nil {
			return 0, err
		}
		r.done = true
		return 0, io.EOF
	}
	if len(b) == 0 {
		return 0, nil
	}

	n := int64(len(b))
	if r.chunkLen < n {
		n = r.chunkLen
	}
	m, err := r.r.Read(b[:n])
	r.chunkLen -= int64(m)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err == nil && r.chunkLen == 0 {
		r.chunkLen = -1
		err = r.readCRLF()
	}
	return m, err
}

// WriteChunked writes body as a single chunk followed by the last chunk.
func WriteChunked(w io.Writer, body []byte) error {
	bw := bufio.NewWriter(w)
	if len(body) > 0 {
		fmt.Fprintf(bw, "%x\r\n", len(body))
		bw.Write(body)
		bw.WriteString("\r\n")
	}
	bw.WriteString("0\r\n\r\n")
	return bw.Flush()
}
