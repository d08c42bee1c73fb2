package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultServer is the public SeedLink endpoint streamed from when no
// other address is configured.
const DefaultServer = "rtserve.iris.washington.edu:18000"

const dialTimeout = 15 * time.Second

// SeedLinkClient speaks the uni-station SeedLink protocol over TCP:
// handshake (HELLO / STATION / SELECT / DATA / END), then a stream of
// 8-byte "SL" headers each followed by one 512-byte miniSEED record.
type SeedLinkClient struct {
	Addr     string
	Selector Selector

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewSeedLinkClient returns a client for the given server address and
// stream selector.
func NewSeedLinkClient(addr string, sel Selector) *SeedLinkClient {
	if addr == "" {
		addr = DefaultServer
	}
	return &SeedLinkClient{Addr: addr, Selector: sel}
}

// Run dials the server, negotiates the subscription and then blocks,
// decoding records and handing each trace to onTrace. It returns when the
// stream ends, the context is cancelled, or Close is called. Records that
// fail to decode are logged and skipped, never fatal to the session.
func (c *SeedLinkClient) Run(ctx context.Context, onTrace TraceHandler) error {
	conn, err := net.DialTimeout("tcp", c.Addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.Addr, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("client already closed")
	}
	c.conn = conn
	c.mu.Unlock()

	// Close the socket when the context ends so the blocking reads below
	// unblock within a bounded time.
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	reader := bufio.NewReader(conn)
	if err := c.handshake(conn, reader); err != nil {
		c.Close()
		return err
	}

	frame := make([]byte, 8+mseedRecordSize)
	for {
		if _, err := io.ReadFull(reader, frame); err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return nil
			}
			return fmt.Errorf("stream read failed: %w", err)
		}
		if string(frame[:2]) != "SL" {
			return fmt.Errorf("bad frame header %q", frame[:2])
		}

		record := make([]byte, mseedRecordSize)
		copy(record, frame[8:])
		trace, err := decodeRecord(record)
		if err != nil {
			log.Printf("skipping undecodable record: %v", err)
			continue
		}
		onTrace(trace)
	}
}

func (c *SeedLinkClient) handshake(conn net.Conn, reader *bufio.Reader) error {
	// HELLO elicits two banner lines.
	if err := c.command(conn, reader, "HELLO", 2, false); err != nil {
		return err
	}
	sel := c.Selector
	if err := c.command(conn, reader, fmt.Sprintf("STATION %s %s", sel.Station, sel.Network), 1, true); err != nil {
		return err
	}
	if err := c.command(conn, reader, fmt.Sprintf("SELECT %s%s", sel.Location, sel.Channel), 1, true); err != nil {
		return err
	}
	if err := c.command(conn, reader, "DATA", 1, true); err != nil {
		return err
	}
	// END starts the stream; the server does not acknowledge it.
	_, err := fmt.Fprintf(conn, "END\r\n")
	return err
}

func (c *SeedLinkClient) command(conn net.Conn, reader *bufio.Reader, cmd string, replyLines int, expectOK bool) error {
	if _, err := fmt.Fprintf(conn, "%s\r\n", cmd); err != nil {
		return fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	for i := 0; i < replyLines; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("no reply to %q: %w", cmd, err)
		}
		if expectOK && !strings.HasPrefix(strings.TrimSpace(line), "OK") {
			return fmt.Errorf("server refused %q: %s", cmd, strings.TrimSpace(line))
		}
	}
	return nil
}

func (c *SeedLinkClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts the connection down, unblocking a Run in progress. Safe to
// call more than once.
func (c *SeedLinkClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
