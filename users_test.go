package hanabi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestStores wires a fresh UserStore/ChannelStore pair the way
// NewServer does, without needing a full Server/Config.
func newTestStores() (*UserStore, *ChannelStore) {
	users := NewUserStore()
	channels := NewChannelStore()
	users.SetChannels(channels)
	channels.SetUsers(users)
	return users, channels
}

func registerVirtual(t *testing.T, users *UserStore, key, nick, username string) *User {
	t.Helper()
	u := NewUser(key, UserVirtual, NewMailboxSink(8))
	u.Nick = nick
	u.Username = username
	u.RealName = "Real Name"
	u.Hostname = "host.example"
	_, err := users.Add(u)
	require.NoError(t, err)
	return u
}

func TestUserStoreAddEnforcesNickUniqueness(t *testing.T) {
	users, _ := newTestStores()

	registerVirtual(t, users, "k1", "alpha", "alpha")

	dup := NewUser("k2", UserVirtual, NewMailboxSink(8))
	dup.Nick = "alpha"
	dup.Username = "somebodyelse"
	dup.RealName = "Real"
	dup.Hostname = "host.example"
	_, err := users.Add(dup)
	require.Error(t, err)
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	require.Equal(t, ReasonNickInUse, reason)

	// I2: no two users ever hold the same non-empty nick.
	require.Equal(t, "k1", users.ByNick("alpha").Key)
}

func TestUserStoreAddRejectsMissingFields(t *testing.T) {
	users, _ := newTestStores()

	u := NewUser("k1", UserVirtual, NewMailboxSink(8))
	u.Nick = "alpha"
	// Username/RealName/Hostname left blank.
	_, err := users.Add(u)
	require.Error(t, err)
	reason, _ := ReasonOf(err)
	require.Equal(t, ReasonNeedMoreParams, reason)
}

func TestUserStoreAddRejectsDuplicateUsername(t *testing.T) {
	users, _ := newTestStores()
	registerVirtual(t, users, "k1", "alpha", "shared")

	dup := NewUser("k2", UserVirtual, NewMailboxSink(8))
	dup.Nick = "beta"
	dup.Username = "shared"
	dup.RealName = "Real"
	dup.Hostname = "host.example"
	_, err := users.Add(dup)
	require.Error(t, err)
	reason, _ := ReasonOf(err)
	require.Equal(t, ReasonAlreadyRegistered, reason)
}

func TestUserStoreAddRejectsKeyCollision(t *testing.T) {
	users, _ := newTestStores()
	registerVirtual(t, users, "k1", "alpha", "alpha")

	dup := NewUser("k1", UserVirtual, NewMailboxSink(8))
	dup.Nick = "beta"
	dup.Username = "beta"
	dup.RealName = "Real"
	dup.Hostname = "host.example"
	_, err := users.Add(dup)
	require.Error(t, err)
	reason, _ := ReasonOf(err)
	require.Equal(t, ReasonKeyInUse, reason)
}

// Scenario 6: nick collision on change leaves the requester's nick
// untouched.
func TestChangeNickCollision(t *testing.T) {
	users, _ := newTestStores()
	registerVirtual(t, users, "alpha-key", "alpha", "alpha")
	registerVirtual(t, users, "beta-key", "beta", "beta")

	err := users.ChangeNick("alpha-key", "beta")
	require.Error(t, err)
	reason, _ := ReasonOf(err)
	require.Equal(t, ReasonNickInUse, reason)

	require.Equal(t, "alpha", users.Get("alpha-key").snapshot().Nick)
}

func TestChangeNickErroneous(t *testing.T) {
	users, _ := newTestStores()
	registerVirtual(t, users, "alpha-key", "alpha", "alpha")

	err := users.ChangeNick("alpha-key", "#bad")
	require.Error(t, err)
	reason, _ := ReasonOf(err)
	require.Equal(t, ReasonErroneousNick, reason)
}

func TestChangeNickBroadcastsOldNickPrefix(t *testing.T) {
	users, channels := newTestStores()
	alpha := registerVirtual(t, users, "alpha-key", "alpha", "alpha")
	sink := alpha.Sink.(*MailboxSink)

	_, err := channels.AddUser(users, "alpha-key", "#greek")
	require.NoError(t, err)
	<-sink.Messages() // JOIN

	require.NoError(t, users.ChangeNick("alpha-key", "newalpha"))

	nick := <-sink.Messages()
	require.Equal(t, "NICK", nick.Command)
	require.Equal(t, "newalpha", nick.Middle)
	require.Contains(t, nick.Prefix, "alpha!")
}

// After user.remove(u): u is gone from every channel and from the
// registry.
func TestQuitRemovesFromChannelsAndRegistry(t *testing.T) {
	users, channels := newTestStores()
	registerVirtual(t, users, "alpha-key", "alpha", "alpha")
	_, err := channels.AddUser(users, "alpha-key", "#greek")
	require.NoError(t, err)

	require.NoError(t, users.Quit("alpha-key", "bye"))

	require.Nil(t, users.Get("alpha-key"))
	require.False(t, channels.Exists("#greek")) // emptied channel is destroyed
}

func TestQuitOnMissingUser(t *testing.T) {
	users, _ := newTestStores()
	err := users.Quit("nope", "bye")
	require.Error(t, err)
	reason, _ := ReasonOf(err)
	require.Equal(t, ReasonNoSuchUser, reason)
}

func TestIdentFor(t *testing.T) {
	require.Equal(t, "nick!~averylon@host", IdentFor("nick", "averylongusername", "host"))
	require.Equal(t, "nick!~short@host", IdentFor("nick", "short", "host"))
}
