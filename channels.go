package hanabi

import "log"

// userSender is the slice of UserStore that ChannelStore needs to fan a
// channel broadcast out to its members' sinks, expressed as an interface
// to avoid a cyclic dependency between channels.go and users.go. Server
// wires the concrete *UserStore in via ChannelStore.SetUsers.
type userSender interface {
	Get(key string) *User
	Send(key string, msg Message) error
}

// ChannelStore is the C5 channel registry: a Registry[string, *Channel]
// plus the join/part/broadcast/topic/names operations from §4.5.
type ChannelStore struct {
	reg   *Registry[string, *Channel]
	users userSender
}

// NewChannelStore returns an empty channel store. Call SetUsers before
// using any broadcast-dependent operation.
func NewChannelStore() *ChannelStore {
	return &ChannelStore{reg: NewRegistry[string, *Channel]()}
}

// SetUsers wires the user store this channel store delivers through.
func (cs *ChannelStore) SetUsers(u userSender) {
	cs.users = u
}

// Get returns the channel named name, or nil if it does not exist.
func (cs *ChannelStore) Get(name string) *Channel {
	ch, ok := cs.reg.Get(name)
	if !ok {
		return nil
	}
	return ch
}

// Exists reports whether a channel named name currently exists.
func (cs *ChannelStore) Exists(name string) bool {
	_, ok := cs.reg.Get(name)
	return ok
}

// Dump returns every existing channel, for LIST and diagnostics.
func (cs *ChannelStore) Dump() []*Channel {
	entries := cs.reg.Dump()
	out := make([]*Channel, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out
}

func (cs *ChannelStore) getOrCreate(name string) *Channel {
	if ch, ok := cs.reg.Get(name); ok {
		return ch
	}
	ch := NewChannel(name)
	if cs.reg.Set(name, ch) {
		return ch
	}
	// Lost the creation race to a concurrent joiner; use their channel.
	winner, _ := cs.reg.Get(name)
	return winner
}

// AddUser joins userKey to the channel named name, creating the channel
// (empty topic, default relay_to) if it does not already exist. The join
// is idempotent: a user already present is not duplicated, but the JOIN
// broadcast still fires. Returns the channel on success.
func (cs *ChannelStore) AddUser(users *UserStore, userKey, name string) (*Channel, error) {
	u := users.Get(userKey)
	if u == nil {
		return nil, newError(ReasonNoSuchUser, "no such user: "+userKey)
	}

	ch := cs.getOrCreate(name)

	ch.mu.Lock()
	ch.Users[userKey] = struct{}{}
	ch.mu.Unlock()

	u.addChannel(name)

	join := Message{Prefix: u.Ident(), Command: "JOIN", Middle: name}
	if err := cs.BroadcastToChannel(name, join); err != nil {
		log.Printf("add_user: broadcasting JOIN for %s to %s: %v", userKey, name, err)
	}

	return ch, nil
}

// RemoveUser removes userKey from the channel named name, broadcasting a
// PART (with the departing user still a recipient) before the membership
// change takes effect, per §4.5. When the channel's membership becomes
// empty as a result, the channel is destroyed.
func (cs *ChannelStore) RemoveUser(users *UserStore, userKey, name, reason string) error {
	ch, ok := cs.reg.Get(name)
	if !ok {
		return newError(ReasonNoSuchChannel, "no such channel: "+name)
	}

	u := users.Get(userKey)
	if u == nil {
		return newError(ReasonNoSuchUser, "no such user: "+userKey)
	}

	if !ch.hasUser(userKey) {
		return newError(ReasonNotOnChannel, "not on channel: "+name)
	}

	part := Message{Prefix: u.Ident(), Command: "PART", Middle: name, Trailing: reason, HasTrailing: true}
	if err := cs.BroadcastToChannel(name, part); err != nil {
		log.Printf("remove_user: broadcasting PART for %s from %s: %v", userKey, name, err)
	}

	ch.mu.Lock()
	delete(ch.Users, userKey)
	empty := len(ch.Users) == 0
	ch.mu.Unlock()

	u.removeChannel(name)

	if empty {
		cs.reg.Drop(name)
	}

	return nil
}

// BroadcastToChannel delivers msg to every member of the channel named
// name whose type is in the channel's relay_to set. Delivery to each sink
// is independent: one sink's failure is logged and does not prevent
// delivery to the others.
func (cs *ChannelStore) BroadcastToChannel(name string, msg Message) error {
	return cs.broadcast(name, msg, "")
}

// BroadcastToChannelExcept behaves like BroadcastToChannel but skips
// exceptKey, used for PRIVMSG's "sender excluded from recipients" rule.
func (cs *ChannelStore) BroadcastToChannelExcept(name string, msg Message, exceptKey string) error {
	return cs.broadcast(name, msg, exceptKey)
}

func (cs *ChannelStore) broadcast(name string, msg Message, exceptKey string) error {
	ch, ok := cs.reg.Get(name)
	if !ok {
		return newError(ReasonNoSuchChannel, "no such channel: "+name)
	}
	if cs.users == nil {
		return nil
	}

	for _, key := range ch.memberKeys() {
		if key == exceptKey {
			continue
		}
		member := cs.users.Get(key)
		if member == nil {
			continue
		}
		if !ch.relays(member.Type) {
			continue
		}
		if err := cs.users.Send(key, msg); err != nil {
			log.Printf("broadcast to channel %s: delivery to %s failed: %v", name, key, err)
		}
	}
	return nil
}

// SetTopic updates the channel's topic (empty allowed) and broadcasts a
// TOPIC reply (prefix=sourceName, middle=channel name, trailing=topic).
func (cs *ChannelStore) SetTopic(name, topic, sourceName string) error {
	ch, ok := cs.reg.Get(name)
	if !ok {
		return newError(ReasonNoSuchChannel, "no such channel: "+name)
	}

	ch.mu.Lock()
	ch.Topic = topic
	ch.mu.Unlock()

	msg := Message{Prefix: sourceName, Command: "TOPIC", Middle: name, Trailing: topic, HasTrailing: true}
	return cs.BroadcastToChannel(name, msg)
}

// NamesOf produces the list of current nicks for the channel's members,
// for RPL_NAMREPLY. Members whose user record has vanished (a race with a
// concurrent quit) are silently skipped.
func (cs *ChannelStore) NamesOf(name string) ([]string, error) {
	ch, ok := cs.reg.Get(name)
	if !ok {
		return nil, newError(ReasonNoSuchChannel, "no such channel: "+name)
	}
	if cs.users == nil {
		return nil, nil
	}

	keys := ch.memberKeys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		u := cs.users.Get(k)
		if u == nil {
			continue
		}
		names = append(names, u.snapshot().Nick)
	}
	return names, nil
}
