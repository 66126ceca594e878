// Command hanabid is a minimal host application demonstrating the hanabi
// engine: it loads a config file, listens on the configured port, serves
// TCP clients, and registers one virtual participant so a connecting IRC
// client has someone besides itself to talk to.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/colinmarc/hanabi"
)

// Args are command line arguments, in the same flag-then-validate shape
// the engine's reference daemon uses.
type Args struct {
	ConfigFile string
}

func getArgs() *Args {
	configFile := flag.String("conf", "", "Configuration file.")
	flag.Parse()

	if len(*configFile) == 0 {
		printUsage(fmt.Errorf("you must provide a configuration file"))
		return nil
	}

	configPath, err := filepath.Abs(*configFile)
	if err != nil {
		printUsage(fmt.Errorf("unable to determine path to the configuration file: %s", err))
		return nil
	}

	return &Args{ConfigFile: configPath}
}

func printUsage(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s <arguments>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)

	args := getArgs()
	if args == nil {
		os.Exit(1)
	}

	cfg, err := hanabi.LoadConfig(args.ConfigFile)
	if err != nil {
		log.Fatalf("unable to load configuration: %s", err)
	}

	srv := hanabi.NewServer(cfg)

	if err := registerGreeter(srv); err != nil {
		log.Fatalf("unable to register greeter: %s", err)
	}

	addr := net.JoinHostPort(cfg.Hostname, strconv.Itoa(int(cfg.Port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("unable to listen on %s: %s", addr, err)
	}
	log.Printf("listening on %s", addr)

	if err := srv.Serve(ln); err != nil {
		log.Fatalf("serve: %s", err)
	}
}

// registerGreeter registers a trivial virtual user that answers any
// direct PRIVMSG it receives with a canned reply, demonstrating the
// virtual-user API a host application uses to expose an internal service
// as an IRC participant.
func registerGreeter(srv *hanabi.Server) error {
	mbox := hanabi.NewMailboxSink(64)

	err := srv.RegisterVirtualUser("virtual-greeter", "greeter", "greeter", "Greeter Bot", "hanabi.local", mbox)
	if err != nil {
		return err
	}

	go func() {
		for msg := range mbox.Messages() {
			if msg.Command != "PRIVMSG" {
				continue
			}
			sender := senderNick(msg.Prefix)
			if sender == "" {
				continue
			}
			if err := srv.SendPrivmsg("virtual-greeter", sender, "hello from the greeter"); err != nil {
				log.Printf("greeter: reply to %s: %s", sender, err)
			}
		}
	}()

	return nil
}

func senderNick(prefix string) string {
	for i, r := range prefix {
		if r == '!' {
			return prefix[:i]
		}
	}
	return prefix
}
