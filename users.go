package hanabi

import (
	"log"
)

// channelBroadcaster is the slice of ChannelStore that UserStore needs in
// order to fan a user's broadcast out to their channels. Expressed as an
// interface instead of an import of *ChannelStore to avoid a cyclic
// dependency between users.go and channels.go; Server wires the concrete
// *ChannelStore in at construction time via UserStore.SetChannels.
type channelBroadcaster interface {
	BroadcastToChannelExcept(name string, msg Message, exceptKey string) error
	RemoveUser(users *UserStore, userKey, channelName, reason string) error
}

// UserStore is the C4 user registry: a Registry[string, *User] plus the
// operations the specification describes on top of it (add, update,
// destroy, send, broadcast, nick change, quit).
type UserStore struct {
	reg      *Registry[string, *User]
	channels channelBroadcaster
}

// NewUserStore returns an empty user store. Call SetChannels before using
// Broadcast or Quit, since both need to notify the user's channels.
func NewUserStore() *UserStore {
	return &UserStore{reg: NewRegistry[string, *User]()}
}

// SetChannels wires the channel store this user store broadcasts through.
func (s *UserStore) SetChannels(c channelBroadcaster) {
	s.channels = c
}

// Add inserts user into the registry, per C4's add() contract: checks
// registerability, enforces username uniqueness, validates the nick, and
// enforces sink consistency for the variant, before attempting the
// registry insert itself.
func (s *UserStore) Add(u *User) (string, error) {
	if !u.IsRegisterable() {
		return "", newError(ReasonNeedMoreParams, "user missing required fields")
	}

	snap := u.snapshot()

	switch u.Type {
	case UserIRC, UserVirtual:
		if u.Sink == nil {
			return "", newError(ReasonInvalidSink, "sink required for irc/virtual user")
		}
	case UserVoid:
		// Void users may be constructed with a nil Sink; normalize to a
		// concrete VoidSink{} here so Send/Broadcast never have to treat a
		// nil Sink as a special case — every stored user always has a
		// non-nil Sink to call Push/Close on.
		if u.Sink == nil {
			u.Sink = VoidSink{}
		}
	}

	if _, exists := s.reg.Find(func(_ string, other *User) bool {
		if other.Key == u.Key {
			return false
		}
		return other.snapshot().Username == snap.Username
	}); exists {
		return "", newError(ReasonAlreadyRegistered, "username already registered")
	}

	status := ValidateNick(snap.Nick, func(nick string) bool {
		return s.nickTaken(nick, u.Key)
	})
	switch status {
	case NickErroneous:
		return "", newError(ReasonErroneousNick, "erroneous nickname")
	case NickInUse:
		return "", newError(ReasonNickInUse, "nickname in use")
	}

	if !s.reg.Set(u.Key, u) {
		return "", newError(ReasonKeyInUse, "key already registered")
	}
	return u.Key, nil
}

// Get returns the user for key, or nil if absent.
func (s *UserStore) Get(key string) *User {
	u, ok := s.reg.Get(key)
	if !ok {
		return nil
	}
	return u
}

// ByNick returns the user currently holding nick (case-sensitive, matching
// the grammar's stored form), or nil.
func (s *UserStore) ByNick(nick string) *User {
	u, ok := s.reg.Find(func(_ string, u *User) bool {
		return u.snapshot().Nick == nick
	})
	if !ok {
		return nil
	}
	return u
}

func (s *UserStore) nickTaken(nick, exceptKey string) bool {
	_, ok := s.reg.Find(func(k string, u *User) bool {
		return k != exceptKey && u.snapshot().Nick == nick
	})
	return ok
}

// Destroy removes key from the registry unconditionally. Callers are
// responsible for having already cleaned up channel membership (Quit does
// this); Destroy alone does not touch channels.
func (s *UserStore) Destroy(key string) {
	s.reg.Drop(key)
}

// Send delivers msg to the user at key via its sink. Returns
// no_such_user if key does not resolve.
func (s *UserStore) Send(key string, msg Message) error {
	u := s.Get(key)
	if u == nil {
		return newError(ReasonNoSuchUser, "no such user: "+key)
	}
	return u.Sink.Push(msg)
}

// Broadcast sends msg to the user itself and to every channel the user
// belongs to, which propagates it to the channel's *other* members — the
// user themselves is excluded from each channel fan-out since they
// already received msg directly, above. SetChannels must have been called
// first.
func (s *UserStore) Broadcast(key string, msg Message) error {
	u := s.Get(key)
	if u == nil {
		return newError(ReasonNoSuchUser, "no such user: "+key)
	}
	if err := u.Sink.Push(msg); err != nil {
		log.Printf("broadcast: delivery to %s failed: %v", key, err)
	}
	if s.channels == nil {
		return nil
	}
	for _, ch := range u.channelNames() {
		if err := s.channels.BroadcastToChannelExcept(ch, msg, key); err != nil {
			log.Printf("broadcast: channel %s failed: %v", ch, err)
		}
	}
	return nil
}

// ChangeNick validates newNick, and on success broadcasts a NICK
// notification (old nick as prefix, new nick as middle) to the user and
// every channel they belong to before atomically updating the record, per
// §4.4. On validation failure the record is untouched and the error is
// returned.
func (s *UserStore) ChangeNick(key, newNick string) error {
	u := s.Get(key)
	if u == nil {
		return newError(ReasonNoSuchUser, "no such user: "+key)
	}

	status := ValidateNick(newNick, func(nick string) bool {
		return s.nickTaken(nick, key)
	})
	switch status {
	case NickErroneous:
		return newError(ReasonErroneousNick, "erroneous nickname")
	case NickInUse:
		return newError(ReasonNickInUse, "nickname in use")
	}

	old := u.snapshot().Nick
	if old != "" {
		notice := Message{Prefix: IdentFor(old, u.snapshot().Username, u.snapshot().Hostname), Command: "NICK", Middle: newNick}
		if err := s.Broadcast(key, notice); err != nil {
			log.Printf("change_nick: broadcast failed: %v", err)
		}
	}

	u.mu.Lock()
	u.Nick = newNick
	u.mu.Unlock()

	return nil
}

// Update merges a changeset function into the stored record for key,
// returning the updated user or nil if no such user exists. The
// changeset runs with the user's lock held, so it may freely read and
// write fields.
func (s *UserStore) Update(key string, changeset func(u *User)) *User {
	u := s.Get(key)
	if u == nil {
		return nil
	}
	u.mu.Lock()
	changeset(u)
	u.mu.Unlock()
	return u
}

// Quit removes the user from every channel they belong to (each removal
// broadcasting a PART with reason to the channel's remaining members),
// destroys the user, and — for irc users — closes the connection. This is
// the unconditional cleanup path run on QUIT, read errors, and host-driven
// virtual-user unregistration alike.
func (s *UserStore) Quit(key, reason string) error {
	u := s.Get(key)
	if u == nil {
		return newError(ReasonNoSuchUser, "no such user: "+key)
	}

	if s.channels != nil {
		for _, ch := range u.channelNames() {
			if err := s.channels.RemoveUser(s, key, ch, reason); err != nil {
				log.Printf("quit: removing %s from %s: %v", key, ch, err)
			}
		}
	}

	s.Destroy(key)

	if u.Type == UserIRC {
		if err := u.Sink.Close(); err != nil {
			log.Printf("quit: closing sink for %s: %v", key, err)
		}
	}
	return nil
}

// Dump returns every registered user, for diagnostics and tests.
func (s *UserStore) Dump() []*User {
	entries := s.reg.Dump()
	out := make([]*User, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out
}
