package hanabi

import (
	"bufio"
	"log"
	"net"
	"sync"
)

// Sink is the unified delivery target for a User: a TCP connection, an
// in-process mailbox, or void. Push must emit whole IRC frames atomically —
// one call, one complete CRLF-terminated message — and must not block the
// caller on anything slower than a single write/enqueue (see §5's
// suspension-point note on virtual delivery).
type Sink interface {
	// Push delivers msg to the sink. For a TCP sink this serializes msg and
	// writes it, CRLF-terminated, to the connection. For a mailbox sink this
	// enqueues the message struct itself. For Void this is a no-op.
	Push(msg Message) error

	// Close releases any resource the sink owns (the TCP connection, if
	// any). It is safe to call more than once.
	Close() error
}

// TCPSink wraps a net.Conn. Writes are serialized with a mutex so that two
// goroutines calling Push concurrently (e.g. a broadcast racing a direct
// reply) never interleave their bytes — a message is never split by
// another sender's bytes, per §5.
type TCPSink struct {
	conn net.Conn
	mu   sync.Mutex
}

// NewTCPSink wraps conn as a Sink.
func NewTCPSink(conn net.Conn) *TCPSink {
	return &TCPSink{conn: conn}
}

func (s *TCPSink) Push(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := msg.Build() + "\r\n"
	if _, err := s.conn.Write([]byte(line)); err != nil {
		return wrapError(ReasonSinkClosed, err, "write to connection")
	}
	return nil
}

func (s *TCPSink) Close() error {
	return s.conn.Close()
}

// NewBufferedReader is a convenience for framing input lines off the same
// connection a TCPSink writes to. The listener builds its own reader with
// bufio.NewReaderSize instead.
func NewBufferedReader(conn net.Conn) *bufio.Reader {
	return bufio.NewReader(conn)
}

// MailboxSink delivers messages to an in-process consumer via a buffered
// Go channel, the natural analogue of the source system's process mailbox.
// Push never blocks past the channel's buffer: a full mailbox drops the
// oldest-delivery guarantee in favor of not stalling the sender, and logs
// the drop rather than propagating an error (mirroring §5's per-sink
// delivery-failure isolation).
type MailboxSink struct {
	ch chan Message
}

// NewMailboxSink creates a mailbox sink with the given buffer depth.
func NewMailboxSink(buffer int) *MailboxSink {
	return &MailboxSink{ch: make(chan Message, buffer)}
}

// Messages exposes the receive side for host code consuming a virtual
// user's inbound traffic.
func (s *MailboxSink) Messages() <-chan Message {
	return s.ch
}

func (s *MailboxSink) Push(msg Message) error {
	select {
	case s.ch <- msg:
		return nil
	default:
		log.Printf("mailbox sink full, dropping message: %s", msg.Build())
		return nil
	}
}

func (s *MailboxSink) Close() error {
	close(s.ch)
	return nil
}

// VoidSink silently discards everything pushed to it. Useful for
// observers that should appear in the registry without ever receiving
// traffic.
type VoidSink struct{}

func (VoidSink) Push(Message) error { return nil }
func (VoidSink) Close() error       { return nil }
