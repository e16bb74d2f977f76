package echo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// ExitCommand ends a client session.
const ExitCommand = "exit"

const dialTimeout = 5 * time.Second

// Client sends lines to an echo server and prints the replies.
type Client struct {
	Addr   string
	Prompt string
}

// Run connects to the server and, for each line read from in, sends it and
// writes the reply to out. It stops on "exit", at the end of in, when the
// server closes the connection or when ctx is done.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	addr := c.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("echo: connect to %s: %w", addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(in)
	buf := make([]byte, BufferSize)
	for {
		if c.Prompt != "" {
			fmt.Fprint(out, c.Prompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == ExitCommand {
			return nil
		}
		if line == "" {
			continue
		}

		if _, err := io.WriteString(conn, line); err != nil {
			return c.connErr(ctx, err)
		}
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return c.connErr(ctx, err)
		}
		fmt.Fprintf(out, "Receive from server: %s\n", buf[:n])
	}
}

func (c *Client) connErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("echo: %w", err)
}
