package hanabi

import (
	"fmt"
	"sync"
	"time"
)

// UserType distinguishes the three participant variants described in the
// data model: a real TCP client, an in-process virtual participant, or a
// sink-less observer.
type UserType int

const (
	UserIRC UserType = iota
	UserVirtual
	UserVoid
)

func (t UserType) String() string {
	switch t {
	case UserIRC:
		return "irc"
	case UserVirtual:
		return "virtual"
	case UserVoid:
		return "void"
	default:
		return "unknown"
	}
}

// RecognizedUserModes is the set of user-mode letters this implementation
// understands. Only 'r' is recognized, per §9's note that channel modes
// are out of scope and no additional user modes should be invented.
var RecognizedUserModes = map[byte]struct{}{
	'r': {},
}

// User is one participant known to the server, of any of the three
// variants. Every mutable field is guarded by mu; Key and Type never
// change after construction and may be read without holding mu.
type User struct {
	mu sync.Mutex

	// Key is the opaque registry key: the connection identifier for irc
	// users, a host-assigned identifier for virtual/void users. Immutable.
	Key string

	// Type is fixed at construction time. Immutable.
	Type UserType

	Nick     string
	Username string
	RealName string
	Hostname string

	// Sink is how messages reach this user. Immutable after construction:
	// an irc user's sink is its TCPSink for the lifetime of the connection.
	Sink Sink

	// Channels is the set of channel names this user currently belongs to.
	// Maintained in lockstep with the corresponding Channel.Users set — see
	// ChannelStore.AddUser/RemoveUser.
	Channels map[string]struct{}

	// Modes is the set of user-mode letters currently applied.
	Modes map[byte]struct{}

	// PassOK records whether a configured server password has been
	// satisfied. Meaningless (and ignored) when no password is configured.
	PassOK bool

	// LastActivity is the time of the most recent line read from this
	// user's connection. Only meaningful for irc users; used by the
	// server's idle-ping/dead-connection sweep (see checkAndPingUsers in
	// server.go).
	LastActivity time.Time
}

// NewUser constructs a User of the given type and sink, with empty
// identity fields — the state the spec calls "eagerly created" for irc
// connections and the state host code starts from for virtual/void users.
func NewUser(key string, typ UserType, sink Sink) *User {
	return &User{
		Key:          key,
		Type:         typ,
		Sink:         sink,
		Channels:     make(map[string]struct{}),
		Modes:        make(map[byte]struct{}),
		LastActivity: time.Now(),
	}
}

// touch records that a line was just read from this user's connection,
// resetting the idle clock the server's idle-ping sweep checks.
func (u *User) touch() {
	u.mu.Lock()
	u.LastActivity = time.Now()
	u.mu.Unlock()
}

// idleFor reports how long it has been since the last line was read from
// this user's connection.
func (u *User) idleFor() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return time.Since(u.LastActivity)
}

// snapshot is an immutable copy of a User's mutable fields, used so that
// callers (handlers building reply messages, tests) can read a consistent
// view without holding the user's lock across further work.
type snapshot struct {
	Nick     string
	Username string
	RealName string
	Hostname string
	Type     UserType
	PassOK   bool
	Channels []string
	Modes    []byte
}

func (u *User) snapshot() snapshot {
	u.mu.Lock()
	defer u.mu.Unlock()

	s := snapshot{
		Nick:     u.Nick,
		Username: u.Username,
		RealName: u.RealName,
		Hostname: u.Hostname,
		Type:     u.Type,
		PassOK:   u.PassOK,
	}
	for c := range u.Channels {
		s.Channels = append(s.Channels, c)
	}
	for m := range u.Modes {
		s.Modes = append(s.Modes, m)
	}
	return s
}

// IsRegistered reports whether the user has completed the registration
// handshake: key/nick/username/realname/hostname all non-empty, and
// pass_ok satisfied when requirePass is set (the server password being
// configured). See I5 and §4.4's registration handshake note.
func (u *User) IsRegistered(requirePass bool) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.Key == "" || u.Nick == "" || u.Username == "" || u.RealName == "" || u.Hostname == "" {
		return false
	}
	if requirePass && !u.PassOK {
		return false
	}
	return true
}

// IsRegisterable reports whether key/nick/username/realname/hostname are
// all non-empty, independent of password state — the check C4's add()
// performs before inserting a user record, per §4.1.
func (u *User) IsRegisterable() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.Key != "" && u.Nick != "" && u.Username != "" && u.RealName != "" && u.Hostname != ""
}

// IdentFor returns the canonical "nick!~username@hostname" prefix used for
// messages attributed to this user, truncating username to its first 8
// characters per the glossary's ident-string definition.
func IdentFor(nick, username, hostname string) string {
	if len(username) > 8 {
		username = username[:8]
	}
	return fmt.Sprintf("%s!~%s@%s", nick, username, hostname)
}

// Ident is a convenience wrapping IdentFor with this user's current
// fields.
func (u *User) Ident() string {
	s := u.snapshot()
	return IdentFor(s.Nick, s.Username, s.Hostname)
}

func (u *User) inChannel(name string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.Channels[name]
	return ok
}

func (u *User) addChannel(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Channels[name] = struct{}{}
}

func (u *User) removeChannel(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.Channels, name)
}

func (u *User) channelNames() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, 0, len(u.Channels))
	for c := range u.Channels {
		out = append(out, c)
	}
	return out
}
