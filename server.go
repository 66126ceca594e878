package hanabi

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// idleTimeBeforePing is how long a registered connection may go without
// sending a line before the server proactively PINGs it.
const idleTimeBeforePing = 2 * time.Minute

// idleTimeBeforeDead is how long a connection may go without activity
// (registered or not) before the server gives up on it and disconnects it,
// per the teacher's checkAndPingClients sweep.
const idleTimeBeforeDead = 4 * time.Minute

// idleCheckInterval is how often the sweep in checkAndPingUsers runs.
const idleCheckInterval = 30 * time.Second

// Server wires the registries and handler table together into the
// embeddable engine: the unit a host application constructs, configures,
// and serves connections through.
type Server struct {
	Config   *Config
	Users    *UserStore
	Channels *ChannelStore

	nextConnID uint64
}

// NewServer constructs a Server from cfg, with empty user and channel
// registries wired to each other.
func NewServer(cfg *Config) *Server {
	users := NewUserStore()
	channels := NewChannelStore()
	users.SetChannels(channels)
	channels.SetUsers(users)

	return &Server{
		Config:   cfg,
		Users:    users,
		Channels: channels,
	}
}

// Serve accepts connections from ln until it returns an error (typically
// because the listener was closed), spawning one Listener goroutine per
// accepted connection. This is the library's accept loop; constructing
// and closing ln is the host application's responsibility, per §1's
// "TCP accept loop is an external collaborator" note — Serve only owns
// what happens to a connection once accepted.
func (s *Server) Serve(ln net.Listener) error {
	go s.idleSweepLoop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}

		id := atomic.AddUint64(&s.nextConnID, 1)
		key := "conn-" + strconv.FormatUint(id, 10)

		go NewListener(s, conn, key).Serve()
	}
}

// idleSweepLoop periodically calls checkAndPingUsers for as long as the
// server runs. There is no deadline on an individual command (§5), but a
// connection that stops sending anything at all is still reaped, mirroring
// the teacher's alarm-driven checkAndPingClients.
func (s *Server) idleSweepLoop() {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.checkAndPingUsers()
	}
}

// checkAndPingUsers looks at every irc user. A registered one that has been
// idle past idleTimeBeforePing is sent a PING; one idle past
// idleTimeBeforeDead is disconnected outright, registered or not.
func (s *Server) checkAndPingUsers() {
	for _, u := range s.Users.Dump() {
		if u.Type != UserIRC {
			continue
		}

		idle := u.idleFor()
		if idle < idleTimeBeforePing {
			continue
		}

		if idle > idleTimeBeforeDead {
			reason := fmt.Sprintf("Ping timeout: %d seconds", int(idle.Seconds()))
			if err := s.Users.Quit(u.Key, reason); err != nil {
				log.Printf("idle sweep: quitting %s: %v", u.Key, err)
			}
			continue
		}

		if !u.IsRegistered(s.Config.Password != "") {
			continue
		}

		ping := Message{Prefix: s.Config.Hostname, Command: "PING", Trailing: s.Config.Hostname, HasTrailing: true}
		if err := s.Users.Send(u.Key, ping); err != nil {
			log.Printf("idle sweep: pinging %s: %v", u.Key, err)
		}
	}
}

// RegisterVirtualUser registers an in-process participant under key with
// the given identity and sink, per the virtual-user API in §6. Returns the
// same error reasons as the C4 add() contract:
// needmoreparams|alreadyregistered|erroneous_nick|nick_in_use|invalid_sink|key_in_use.
func (s *Server) RegisterVirtualUser(key, nick, username, realname, hostname string, sink Sink) error {
	u := NewUser(key, UserVirtual, sink)
	u.Nick = nick
	u.Username = username
	u.RealName = realname
	u.Hostname = hostname

	_, err := s.Users.Add(u)
	return err
}

// RegisterVoidUser registers a sink-less observer under key, per the
// void variant in §3's data model.
func (s *Server) RegisterVoidUser(key, nick, username, realname, hostname string) error {
	u := NewUser(key, UserVoid, nil)
	u.Nick = nick
	u.Username = username
	u.RealName = realname
	u.Hostname = hostname

	_, err := s.Users.Add(u)
	return err
}

// UnregisterVirtualUser performs the same cleanup as QUIT for a
// host-registered virtual or void user.
func (s *Server) UnregisterVirtualUser(key, reason string) error {
	return s.Users.Quit(key, reason)
}

// SendPrivmsg delivers a PRIVMSG as if fromKey had sent it to target (a
// nick or a channel name), for host code driving a virtual user's
// outbound traffic. It mirrors handlePrivmsg's own logic.
func (s *Server) SendPrivmsg(fromKey, target, text string) error {
	sender := s.Users.Get(fromKey)
	if sender == nil {
		return newError(ReasonNoSuchUser, "no such user: "+fromKey)
	}

	out := Message{Prefix: sender.Ident(), Command: "PRIVMSG", Middle: target, Trailing: text, HasTrailing: true}

	if len(target) > 0 && target[0] == '#' {
		if !s.Channels.Exists(target) {
			return newError(ReasonNoSuchChannel, "no such channel: "+target)
		}
		return s.Channels.BroadcastToChannelExcept(target, out, fromKey)
	}

	recipient := s.Users.ByNick(target)
	if recipient == nil {
		return newError(ReasonNoSuchUser, "no such nick: "+target)
	}
	return s.Users.Send(recipient.Key, out)
}
