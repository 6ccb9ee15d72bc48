// xshellctl is a command-line client for x-shell terminal servers: it
// inspects servers, runs one-shot commands in fresh or shared sessions,
// and keeps bookmarks of the sessions it has touched.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xshell "github.com/xshell-terminal/xshell-go"
	"github.com/xshell-terminal/xshell-go/internal/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "xshellctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("xshellctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML config file")
	endpoint := fs.String("endpoint", "", "server endpoint (overrides config)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: xshellctl [flags] <command> [args]\n\n")
		fmt.Fprintf(fs.Output(), "Commands:\n")
		fmt.Fprintf(fs.Output(), "  info                      show server capabilities\n")
		fmt.Fprintf(fs.Output(), "  containers                list containers available for exec sessions\n")
		fmt.Fprintf(fs.Output(), "  sessions                  list joinable sessions on the server\n")
		fmt.Fprintf(fs.Output(), "  exec [flags] <command>    run a command in a session and print its output\n")
		fmt.Fprintf(fs.Output(), "  recent                    list recently used session bookmarks\n")
		fmt.Fprintf(fs.Output(), "  forget <session-id>       drop a session bookmark\n\n")
		fmt.Fprintf(fs.Output(), "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := loadConfig(*configPath, *configPath != "")
	if err != nil {
		return err
	}
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}

	app := &app{cfg: cfg, log: newLogger(cfg.LogLevel)}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "info":
		return app.info()
	case "containers":
		return app.containers()
	case "sessions":
		return app.sessions(rest)
	case "exec":
		return app.exec(rest)
	case "recent":
		return app.recent()
	case "forget":
		return app.forget(rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

type app struct {
	cfg Config
	log zerolog.Logger
}

func (a *app) connect(ctx context.Context, opts ...xshell.Option) (*xshell.Client, error) {
	opts = append([]xshell.Option{
		xshell.WithLogger(a.log),
		xshell.WithRequestTimeout(a.cfg.RequestTimeout),
	}, opts...)
	if a.cfg.Reconnect {
		opts = append(opts, xshell.WithReconnect(a.cfg.ReconnectMax, a.cfg.ReconnectDelay))
	}

	c := xshell.New(a.cfg.Endpoint, opts...)
	if _, err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (a *app) info() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
	defer cancel()

	c, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	info := c.ServerInfo()
	fmt.Printf("endpoint:        %s\n", a.cfg.Endpoint)
	fmt.Printf("default shell:   %s\n", info.DefaultShell)
	fmt.Printf("allowed shells:  %s\n", strings.Join(info.AllowedShells, ", "))
	fmt.Printf("docker:          %v\n", info.DockerEnabled)
	if info.DockerEnabled && info.DefaultContainerShell != "" {
		fmt.Printf("container shell: %s\n", info.DefaultContainerShell)
	}
	return nil
}

func (a *app) containers() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
	defer cancel()

	c, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	containers, err := c.ListContainers(ctx)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		fmt.Println("no containers")
		return nil
	}
	for _, ct := range containers {
		fmt.Printf("%-16s %-24s %-24s %s\n", shortID(ct.ID), ct.Name, ct.Image, ct.State)
	}
	return nil
}

func (a *app) sessions(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	acceptingOnly := fs.Bool("accepting", false, "only sessions accepting new clients")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
	defer cancel()

	c, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	var filter *xshell.SessionFilter
	if *acceptingOnly {
		t := true
		filter = &xshell.SessionFilter{Accepting: &t}
	}

	sessions, err := c.ListSessions(ctx, filter)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, s := range sessions {
		label := s.Label
		if label == "" {
			label = "-"
		}
		fmt.Printf("%-36s %-14s %-10s clients=%-3d %s\n", s.SessionID, s.Type, s.Shell, s.ClientCount, label)
	}
	return nil
}

func (a *app) exec(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	sessionID := fs.String("session", "", "join this shared session instead of spawning")
	container := fs.String("container", "", "spawn inside this container")
	timeout := fs.Duration("timeout", 30*time.Second, "how long to wait for the prompt")
	record := fs.String("record", "", "write an asciinema cast of the session to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("exec: missing command")
	}
	command := strings.Join(fs.Args(), " ")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+a.cfg.RequestTimeout)
	defer cancel()

	var opts []xshell.Option
	if a.cfg.Scrollback > 0 {
		opts = append(opts, xshell.WithScrollback(a.cfg.Scrollback))
	}
	if *record != "" {
		opts = append(opts, xshell.WithRecordingFile(*record))
	}

	c, err := a.connect(ctx, opts...)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	var sess *xshell.Session
	if *sessionID != "" {
		sess, err = c.Join(ctx, xshell.JoinOptions{SessionID: *sessionID, RequestHistory: false})
	} else {
		sess, err = c.Spawn(ctx, xshell.SpawnOptions{Shell: a.cfg.Shell, Container: *container})
	}
	if err != nil {
		return err
	}
	a.bookmark(ctx, sess)

	// Let the shell settle and swallow its banner before the command.
	if _, err := c.ReadAll(ctx, 300*time.Millisecond); err != nil {
		return err
	}

	out, err := c.Execute(ctx, command, *timeout, a.cfg.Prompt)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Println(out)
	}
	return c.Kill()
}

// bookmark records the session in the local store; failures are logged,
// never fatal.
func (a *app) bookmark(ctx context.Context, sess *xshell.Session) {
	if a.cfg.BookmarkDB == "" {
		return
	}
	st, err := store.Open(a.cfg.BookmarkDB)
	if err != nil {
		a.log.Warn().Err(err).Msg("bookmark store unavailable")
		return
	}
	defer st.Close()

	err = st.Record(ctx, store.Bookmark{
		Endpoint:  a.cfg.Endpoint,
		SessionID: sess.ID,
		Kind:      string(sess.Type),
		Shell:     sess.Shell,
		Label:     sess.Label,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("bookmark not recorded")
	}
}

func (a *app) recent() error {
	if a.cfg.BookmarkDB == "" {
		return fmt.Errorf("recent: no bookmark_db configured")
	}
	st, err := store.Open(a.cfg.BookmarkDB)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	bookmarks, err := st.Recent(ctx, 20)
	if err != nil {
		return err
	}
	if len(bookmarks) == 0 {
		fmt.Println("no bookmarks")
		return nil
	}
	for _, b := range bookmarks {
		fmt.Printf("%-36s %-14s %-10s %s  %s\n",
			b.SessionID, b.Kind, b.Shell, b.LastSeen.Format(time.RFC3339), b.Endpoint)
	}
	return nil
}

func (a *app) forget(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("forget: expected exactly one session id")
	}
	if a.cfg.BookmarkDB == "" {
		return fmt.Errorf("forget: no bookmark_db configured")
	}
	st, err := store.Open(a.cfg.BookmarkDB)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return st.Forget(ctx, a.cfg.Endpoint, args[0])
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
