package hanabi

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		input       string
		prefix      string
		command     string
		middle      string
		trailing    string
		hasTrailing bool
	}{
		{
			":Angel PRIVMSG Wiz :Hello are you receiving this message ?",
			"Angel", "PRIVMSG", "Wiz", "Hello are you receiving this message ?", true,
		},
		{"PRIVMSG", "", "PRIVMSG", "", "", false},
		{"", "", "", "", "", false},
		{":irc 001 :Welcome", "irc", "001", "", "Welcome", true},
		{":irc 001", "irc", "001", "", "", false},
		{":irc 000 hi:hi :no no", "irc", "000", "hi:hi", "no no", true},
		{":nick!user@host PRIVMSG #a :", "nick!user@host", "PRIVMSG", "#a", "", true},
		{": PRIVMSG", "", "", "", "", false},
		{":irc", "", "", "", "", false},
	}

	for _, test := range tests {
		got := Parse(test.input)
		if got.Prefix != test.prefix || got.Command != test.command ||
			got.Middle != test.middle || got.Trailing != test.trailing ||
			got.HasTrailing != test.hasTrailing {
			t.Errorf("Parse(%q) = %+v, wanted {%q %q %q %q %v}",
				test.input, got, test.prefix, test.command, test.middle,
				test.trailing, test.hasTrailing)
		}
	}
}

func TestParseDeterministic(t *testing.T) {
	line := ":Angel PRIVMSG Wiz :Hello are you receiving this message ?"
	first := Parse(line)
	second := Parse(line)
	if first != second {
		t.Errorf("Parse is not deterministic: %+v != %+v", first, second)
	}
}

func TestBuild(t *testing.T) {
	m := NewMessage("", "USER", []string{"guest", "tolmoon", "tolsun"}, "Ronnie Reagan")
	got := m.Build()
	want := "USER guest tolmoon tolsun :Ronnie Reagan"
	if got != want {
		t.Errorf("Build() = %q, wanted %q", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []Message{
		{Prefix: "Angel", Command: "PRIVMSG", Middle: "Wiz", Trailing: "hi there", HasTrailing: true},
		{Command: "PING", Trailing: "token", HasTrailing: true},
		{Command: "NAMES", Middle: "#hanabi"},
	}

	for _, m := range tests {
		got := Parse(m.Build())
		if got != m {
			t.Errorf("round trip of %+v produced %+v", m, got)
		}
	}
}

func TestValidateNick(t *testing.T) {
	tests := []struct {
		nick string
		want NickStatus
	}{
		{"lambda", NickOK},
		{"#lambda", NickErroneous},
		{"la!+mbda", NickErroneous},
		{"ab", NickErroneous}, // too short: grammar requires length >= 3
	}

	for _, test := range tests {
		got := ValidateNick(test.nick, nil)
		if got != test.want {
			t.Errorf("ValidateNick(%q, nil) = %v, wanted %v", test.nick, got, test.want)
		}
	}
}

func TestValidateNickInUse(t *testing.T) {
	inUse := func(nick string) bool { return nick == "taken" }
	if got := ValidateNick("taken", inUse); got != NickInUse {
		t.Errorf("ValidateNick(taken, inUse) = %v, wanted NickInUse", got)
	}
	if got := ValidateNick("free", inUse); got != NickOK {
		t.Errorf("ValidateNick(free, inUse) = %v, wanted NickOK", got)
	}
}

func TestValidateChannelName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"#hanabi", true},
		{"hanabi", false},
		{"# ewer", false},
	}

	for _, test := range tests {
		if got := ValidateChannelName(test.name); got != test.want {
			t.Errorf("ValidateChannelName(%q) = %v, wanted %v", test.name, got, test.want)
		}
	}
}
