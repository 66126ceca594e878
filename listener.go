package hanabi

import (
	"bufio"
	"log"
	"net"
	"strings"
)

// Listener owns one TCP connection for its lifetime: framing input lines,
// eagerly creating the connection's user record, and feeding parsed
// messages to the handler until the connection ends. This mirrors the
// teacher's per-client readLoop, collapsed into a single goroutine since
// there is no write-channel indirection here — TCPSink serializes writes
// itself, so the handler can write synchronously from the same goroutine
// that read the triggering line.
type Listener struct {
	srv  *Server
	conn net.Conn
	key  string
}

// NewListener wraps conn for serving under srv, assigning it key as its
// registry identifier (the connection identifier from §3's lifecycle
// note).
func NewListener(srv *Server, conn net.Conn, key string) *Listener {
	return &Listener{srv: srv, conn: conn, key: key}
}

// Serve eagerly creates the connection's user record, then blocks reading
// lines until the connection ends, dispatching each parsed message to the
// server's handler. On return, the connection's cleanup has already run.
func (l *Listener) Serve() {
	sink := NewTCPSink(l.conn)
	u := NewUser(l.key, UserIRC, sink)

	hostname, _, err := net.SplitHostPort(l.conn.RemoteAddr().String())
	if err != nil {
		hostname = l.conn.RemoteAddr().String()
	}

	// The eagerly-created record only has conn/key populated; registration
	// fields are filled in by PASS/NICK/USER. We stash the resolved peer
	// hostname now so USER doesn't need to re-derive it later.
	u.Hostname = hostname

	if !l.srv.Users.reg.Set(l.key, u) {
		log.Printf("listener %s: key collision creating connection record", l.key)
		_ = l.conn.Close()
		return
	}

	defer func() {
		if l.srv.Users.Get(l.key) != nil {
			if err := l.srv.Users.Quit(l.key, "Connection closed"); err != nil {
				log.Printf("listener %s: cleanup: %v", l.key, err)
			}
		}
	}()

	reader := bufio.NewReaderSize(l.conn, MaxLineLength)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if line != "" {
				l.dispatch(line)
			}
			return
		}
		l.dispatch(line)
	}
}

func (l *Listener) dispatch(line string) {
	if u := l.srv.Users.Get(l.key); u != nil {
		u.touch()
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	msg := Parse(line)
	l.srv.HandleMessage(l.key, msg)
}
