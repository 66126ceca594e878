package hanabi

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
)

// reply sends a numeric reply to key, prepending the recipient's current
// nick (or "*" before one is known) as the first middle token, per §4.7's
// "server hostname as prefix, user's nick as first middle token" rule.
func (s *Server) reply(key, numeric string, middle []string, trailing string) {
	nick := "*"
	if u := s.Users.Get(key); u != nil {
		if n := u.snapshot().Nick; n != "" {
			nick = n
		}
	}
	full := append([]string{nick}, middle...)
	msg := NewMessage(s.Config.Hostname, numeric, full, trailing)
	if err := s.Users.Send(key, msg); err != nil {
		log.Printf("reply %s to %s: %v", numeric, key, err)
	}
}

// HandleMessage is the C7 dispatch entry point: the listener calls this
// once per parsed line. Before full registration, only PASS/NICK/USER are
// processed; everything else is silently dropped, per §4.4's registration
// handshake and the C6 state diagram.
func (s *Server) HandleMessage(key string, msg Message) {
	if msg.Command == "" {
		return
	}

	u := s.Users.Get(key)
	if u == nil {
		return
	}

	requirePass := s.Config.Password != ""
	wasRegistered := u.IsRegistered(requirePass)

	if !wasRegistered {
		switch msg.Command {
		case "PASS":
			s.handlePass(key, msg)
		case "NICK":
			s.handleNick(key, msg)
		case "USER":
			s.handleUser(key, msg)
		default:
			// Everything else is ignored before registration completes.
		}

		if s.Users.Get(key) != nil && s.Users.Get(key).IsRegistered(requirePass) {
			s.greet(key)
		}
		return
	}

	switch msg.Command {
	case "PASS":
		// Already registered; ignore per §4.7.
	case "NICK":
		s.handleNick(key, msg)
	case "USER":
		s.reply(key, ErrAlreadyReg, nil, "Unauthorized command (already registered)")
	case "JOIN":
		s.handleJoin(key, msg)
	case "PART":
		s.handlePart(key, msg)
	case "PRIVMSG":
		s.handlePrivmsg(key, msg)
	case "TOPIC":
		s.handleTopic(key, msg)
	case "NAMES":
		s.handleNames(key, msg)
	case "LIST":
		s.handleList(key, msg)
	case "WHOIS":
		s.handleWhois(key, msg)
	case "MODE":
		s.handleMode(key, msg)
	case "PING":
		s.handlePing(key, msg)
	case "MOTD":
		s.handleMotd(key, msg)
	case "QUIT":
		s.handleQuit(key, msg)
	default:
		log.Printf("unhandled command from %s: %s", key, msg.Command)
		s.reply(key, ErrUnknownCmd, []string{msg.Command}, "Unknown command")
	}
}

func (s *Server) handlePass(key string, msg Message) {
	if s.Config.Password == "" {
		return
	}
	params := msg.Params()
	given := ""
	if len(params) > 0 {
		given = params[0]
	} else if msg.HasTrailing {
		given = msg.Trailing
	}
	s.Users.Update(key, func(u *User) {
		u.PassOK = given == s.Config.Password
	})
}

func (s *Server) handleNick(key string, msg Message) {
	params := msg.Params()
	if len(params) == 0 {
		s.reply(key, ErrNoNickGiven, nil, "No nickname given")
		return
	}

	err := s.Users.ChangeNick(key, params[0])
	if err == nil {
		return
	}

	reason, _ := ReasonOf(err)
	switch reason {
	case ReasonErroneousNick:
		s.reply(key, ErrErroneusNick, []string{params[0]}, "Erroneous nickname")
	case ReasonNickInUse:
		s.reply(key, ErrNickInUse, []string{params[0]}, "Nickname is already in use")
	default:
		log.Printf("nick change for %s failed: %v", key, err)
	}
}

func (s *Server) handleUser(key string, msg Message) {
	params := msg.Params()
	if len(params) < 3 || !msg.HasTrailing {
		s.reply(key, ErrNeedMoreParms, []string{"USER"}, "Not enough parameters")
		return
	}

	username := params[0]

	if _, exists := s.Users.reg.Find(func(k string, other *User) bool {
		if k == key {
			return false
		}
		return other.snapshot().Username == username
	}); exists {
		s.reply(key, ErrAlreadyReg, nil, "Unauthorized command (already registered)")
		return
	}

	hostname := s.Config.Hostname
	if u := s.Users.Get(key); u != nil {
		if h := u.snapshot().Hostname; h != "" {
			hostname = h
		}
	}

	s.Users.Update(key, func(u *User) {
		u.Username = username
		u.RealName = msg.Trailing
		if u.Hostname == "" {
			u.Hostname = hostname
		}
	})
}

// greet sends the post-registration welcome burst: RPL 001-004, then the
// MOTD. Per §4.7's exception, 001 carries the user's full ident rather
// than bare nick as its distinguished content.
func (s *Server) greet(key string) {
	u := s.Users.Get(key)
	if u == nil {
		return
	}
	snap := u.snapshot()
	ident := IdentFor(snap.Nick, snap.Username, snap.Hostname)

	network := s.Config.NetworkName
	if network == "" {
		network = "the Internet Relay Network"
	}

	s.reply(key, ReplyWelcome, nil, "Welcome to "+network+" "+ident)
	s.reply(key, ReplyYourHost, nil, "Your host is "+s.Config.Hostname+", running hanabi")
	created := s.Config.NetworkCreatedOn
	if created == "" {
		created = "at some point"
	}
	s.reply(key, ReplyCreated, nil, "This server was created "+created)
	s.reply(key, ReplyMyInfo, []string{s.Config.Hostname, "hanabi"}, "")

	s.handleMotd(key, Message{Command: "MOTD"})
}

func (s *Server) handleJoin(key string, msg Message) {
	params := msg.Params()
	if len(params) == 0 {
		s.reply(key, ErrNeedMoreParms, []string{"JOIN"}, "Not enough parameters")
		return
	}

	for _, name := range strings.Split(params[0], ",") {
		if !ValidateChannelName(name) {
			s.reply(key, ErrNoSuchChannel, []string{name}, "No such channel")
			continue
		}

		if _, err := s.Channels.AddUser(s.Users, key, name); err != nil {
			log.Printf("join %s to %s: %v", key, name, err)
			continue
		}

		topic := ""
		if ch := s.Channels.Get(name); ch != nil {
			topic = ch.currentTopic()
		}
		s.reply(key, ReplyTopic, []string{name}, topic)

		names, _ := s.Channels.NamesOf(name)
		s.reply(key, ReplyNamReply, []string{"=", name}, strings.Join(names, " "))
		s.reply(key, ReplyEndOfNames, []string{name}, "End of /NAMES list.")
	}
}

func (s *Server) handlePart(key string, msg Message) {
	params := msg.Params()
	if len(params) == 0 {
		s.reply(key, ErrNeedMoreParms, []string{"PART"}, "Not enough parameters")
		return
	}

	reason := ""
	if msg.HasTrailing {
		reason = msg.Trailing
	}

	for _, name := range strings.Split(params[0], ",") {
		err := s.Channels.RemoveUser(s.Users, key, name, reason)
		if err == nil {
			continue
		}
		switch errReason, _ := ReasonOf(err); errReason {
		case ReasonNoSuchChannel:
			s.reply(key, ErrNoSuchChannel, []string{name}, "No such channel")
		case ReasonNotOnChannel:
			s.reply(key, ErrNotOnChannel, []string{name}, "You're not on that channel")
		default:
			log.Printf("part %s from %s: %v", key, name, err)
		}
	}
}

func (s *Server) handlePrivmsg(key string, msg Message) {
	params := msg.Params()
	if len(params) == 0 {
		s.reply(key, ErrNoSuchChannel, nil, "No recipient given (PRIVMSG)")
		return
	}
	if !msg.HasTrailing {
		return
	}

	target := params[0]
	sender := s.Users.Get(key)
	if sender == nil {
		return
	}

	out := Message{Prefix: sender.Ident(), Command: "PRIVMSG", Middle: target, Trailing: msg.Trailing, HasTrailing: true}

	if strings.HasPrefix(target, "#") {
		if !s.Channels.Exists(target) {
			// Spec's PRIVMSG row specifies 401 for any unknown recipient,
			// channel or nick alike; 403 is reserved for channel-only commands
			// like JOIN/PART/TOPIC/NAMES.
			s.reply(key, ErrNoSuchNick, []string{target}, "No such nick/channel")
			return
		}
		if err := s.Channels.BroadcastToChannelExcept(target, out, key); err != nil {
			log.Printf("privmsg to %s: %v", target, err)
		}
		return
	}

	recipient := s.Users.ByNick(target)
	if recipient == nil {
		s.reply(key, ErrNoSuchNick, []string{target}, "No such nick/channel")
		return
	}
	if err := s.Users.Send(recipient.Key, out); err != nil {
		log.Printf("privmsg to %s: %v", target, err)
	}
}

func (s *Server) handleTopic(key string, msg Message) {
	params := msg.Params()
	if len(params) == 0 {
		s.reply(key, ErrNeedMoreParms, []string{"TOPIC"}, "Not enough parameters")
		return
	}
	name := params[0]

	ch := s.Channels.Get(name)
	if ch == nil {
		s.reply(key, ErrNoSuchChannel, []string{name}, "No such channel")
		return
	}
	if !ch.hasUser(key) {
		s.reply(key, ErrNotOnChannel, []string{name}, "You're not on that channel")
		return
	}

	if !msg.HasTrailing {
		s.reply(key, ReplyTopic, []string{name}, ch.currentTopic())
		return
	}

	sender := s.Users.Get(key)
	if sender == nil {
		return
	}
	if err := s.Channels.SetTopic(name, msg.Trailing, sender.Ident()); err != nil {
		log.Printf("set topic on %s: %v", name, err)
	}
}

func (s *Server) handleNames(key string, msg Message) {
	params := msg.Params()
	if len(params) == 0 {
		s.reply(key, ErrNeedMoreParms, []string{"NAMES"}, "Not enough parameters")
		return
	}
	name := params[0]

	names, err := s.Channels.NamesOf(name)
	if err != nil {
		s.reply(key, ErrNoSuchChannel, []string{name}, "No such channel")
		return
	}
	s.reply(key, ReplyNamReply, []string{"=", name}, strings.Join(names, " "))
	s.reply(key, ReplyEndOfNames, []string{name}, "End of /NAMES list.")
}

func (s *Server) handleList(key string, msg Message) {
	s.reply(key, ReplyListStart, nil, "Channel :Users  Name")

	params := msg.Params()
	if len(params) == 0 {
		for _, ch := range s.Channels.Dump() {
			s.reply(key, ReplyList, []string{ch.Name, strconv.Itoa(ch.memberCount())}, ch.currentTopic())
		}
		s.reply(key, ReplyListEnd, nil, "End of /LIST")
		return
	}

	for _, name := range strings.Split(params[0], ",") {
		if !ValidateChannelName(name) {
			continue
		}
		ch := s.Channels.Get(name)
		if ch == nil {
			// §9's LIST resolution: invalid-form names are silently skipped
			// above; valid-form but unknown names get 401, not 403.
			s.reply(key, ErrNoSuchNick, []string{name}, "No such nick/channel")
			continue
		}
		s.reply(key, ReplyList, []string{ch.Name, strconv.Itoa(ch.memberCount())}, ch.currentTopic())
	}
	s.reply(key, ReplyListEnd, nil, "End of /LIST")
}

func (s *Server) handleWhois(key string, msg Message) {
	params := msg.Params()
	if len(params) == 0 {
		s.reply(key, ErrNoNickGiven, nil, "No nickname given")
		return
	}

	nicks := strings.Split(params[0], ",")
	target := s.Users.ByNick(nicks[0])
	if target == nil {
		s.reply(key, ErrNoSuchNick, []string{nicks[0]}, "No such nick/channel")
		return
	}

	snap := target.snapshot()
	s.reply(key, ReplyWhoisUser, []string{snap.Nick, "~" + snap.Username, snap.Hostname, "*"}, snap.RealName)
	s.reply(key, ReplyEndOfWhois, []string{snap.Nick}, "End of /WHOIS list.")
}

func (s *Server) handleMode(key string, msg Message) {
	params := msg.Params()
	if len(params) == 0 {
		s.reply(key, ErrNeedMoreParms, []string{"MODE"}, "Not enough parameters")
		return
	}
	target := params[0]

	if strings.HasPrefix(target, "#") {
		// Channel modes are not implemented; ignore per §9's open question.
		return
	}

	self := s.Users.Get(key)
	if self == nil {
		return
	}
	if self.snapshot().Nick != target {
		s.reply(key, ErrUsersDontMatch, nil, "Cannot change mode for other users")
		return
	}

	if len(params) < 2 {
		modes := modesString(self)
		s.reply(key, ReplyUModeIs, nil, modes)
		return
	}

	change := params[1]
	if len(change) < 2 || (change[0] != '+' && change[0] != '-') {
		s.reply(key, ErrUModeUnknown, nil, "Unknown MODE flag")
		return
	}

	adding := change[0] == '+'
	for _, letter := range change[1:] {
		if _, ok := RecognizedUserModes[byte(letter)]; !ok {
			s.reply(key, ErrUModeUnknown, nil, "Unknown MODE flag")
			continue
		}
		s.Users.Update(key, func(u *User) {
			if adding {
				u.Modes[byte(letter)] = struct{}{}
			} else {
				delete(u.Modes, byte(letter))
			}
		})
	}
}

func modesString(u *User) string {
	snap := u.snapshot()
	if len(snap.Modes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('+')
	for _, m := range snap.Modes {
		b.WriteByte(m)
	}
	return b.String()
}

func (s *Server) handlePing(key string, msg Message) {
	params := msg.Params()
	token := ""
	if len(params) > 0 {
		token = params[0]
	} else if msg.HasTrailing {
		token = msg.Trailing
	}
	out := Message{Prefix: s.Config.Hostname, Command: "PONG", Middle: s.Config.Hostname, Trailing: token, HasTrailing: true}
	if err := s.Users.Send(key, out); err != nil {
		log.Printf("pong to %s: %v", key, err)
	}
}

func (s *Server) handleMotd(key string, msg Message) {
	if s.Config.MOTD == "" {
		s.reply(key, ErrNoMotd, nil, "MOTD File is missing")
		return
	}

	f, err := os.Open(s.Config.MOTD)
	if err != nil {
		s.reply(key, ErrNoMotd, nil, "MOTD File is missing")
		return
	}
	defer f.Close()

	s.reply(key, ReplyMotdStart, nil, "- "+s.Config.Hostname+" Message of the day -")

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		s.reply(key, ReplyMotd, nil, "- "+strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reading motd: %v", err)
	}

	s.reply(key, ReplyEndOfMotd, nil, "End of /MOTD command.")
}

func (s *Server) handleQuit(key string, msg Message) {
	reason := "Client Quit"
	if msg.HasTrailing {
		reason = msg.Trailing
	}
	if err := s.Users.Quit(key, reason); err != nil {
		log.Printf("quit %s: %v", key, err)
	}
}

