// Command frostsnapd hosts a Coordinator against whatever serial ports
// it is told to open, persisting every mutation to an on-disk
// mutationdb.Store and replaying it back on startup so a restart picks
// up exactly where the last run left off.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"

	"github.com/frostsnap/frostsnap/coordinator"
	"github.com/frostsnap/frostsnap/mutationdb"
	"github.com/frostsnap/frostsnap/transport"
)

// Config holds frostsnapd's complete runtime configuration, parsed from
// command-line flags.
type Config struct {
	DataDir string   `short:"d" long:"datadir" description:"directory holding the mutation database" default:"~/.frostsnapd"`
	Network string   `short:"n" long:"network" description:"bitcoin network (bitcoin, testnet, testnet4, signet, regtest)" default:"bitcoin"`
	Ports   []string `short:"p" long:"port" description:"device path to open as a daisy-chain port, may be given more than once"`
	Debug   string   `long:"debug" description:"log level (trace, debug, info, warn, error, critical, off)" default:"info"`
}

// Server wires a Coordinator to a transport.Manager and a durable
// mutationdb.Store, and polls the manager on a ticker until told to
// stop.
type Server struct {
	cfg *Config

	store   *mutationdb.Store
	coord   *coordinator.Coordinator
	manager *transport.Manager

	quit chan struct{}
}

// New opens cfg.DataDir's mutation database, replays its contents into
// a fresh Coordinator, and opens every configured port on a
// transport.Manager ready to poll.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("frostsnapd: config required")
	}

	dataDir, err := expandHome(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("frostsnapd: resolving data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("frostsnapd: creating data dir: %w", err)
	}

	store, err := mutationdb.Open(filepath.Join(dataDir, "mutations.db"))
	if err != nil {
		return nil, fmt.Errorf("frostsnapd: opening mutation database: %w", err)
	}

	coord := coordinator.New(store)
	mutations, err := store.ReadAll()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("frostsnapd: reading mutation database: %w", err)
	}
	coord.Replay(mutations)

	manager := transport.NewManager(transport.GobCodec{})

	s := &Server{
		cfg:     cfg,
		store:   store,
		coord:   coord,
		manager: manager,
		quit:    make(chan struct{}),
	}

	for _, path := range cfg.Ports {
		if err := s.openPort(path); err != nil {
			log.Warnf("%s: %v", path, err)
		}
	}

	return s, nil
}

// openPort opens path as a raw file handle and registers it with the
// transport manager. On a real device this is a USB CDC serial port;
// the only requirement transport.Port places on it is io.ReadWriteCloser
// plus a stable ID, which an opened device node already satisfies.
func (s *Server) openPort(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return s.manager.AddPort(filePort{File: f, id: path})
}

type filePort struct {
	*os.File
	id string
}

func (p filePort) ID() string { return p.id }

var _ transport.Port = filePort{}
var _ io.ReadWriteCloser = filePort{}

// Start begins polling the transport manager on a fixed interval until
// Stop is called. It blocks, so callers typically run it in its own
// goroutine.
func (s *Server) Start() error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return nil
		case <-ticker.C:
			if _, err := coordinator.Poll(s.coord, s.manager); err != nil {
				log.Errorf("poll: %v", err)
			}
		}
	}
}

// Stop signals Start to return and closes the mutation database.
func (s *Server) Stop() error {
	close(s.quit)
	return s.store.Close()
}

func expandHome(dir string) (string, error) {
	if dir == "~" || len(dir) > 1 && dir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if dir == "~" {
			return home, nil
		}
		return filepath.Join(home, dir[2:]), nil
	}
	return dir, nil
}

var log = btclog.Disabled

func setupLogging(levelName string) error {
	backend := btclog.NewBackend(os.Stdout)
	level, ok := btclog.LevelFromString(levelName)
	if !ok {
		return fmt.Errorf("frostsnapd: unrecognized log level %q", levelName)
	}

	mkLogger := func(subsystem string) btclog.Logger {
		l := backend.Logger(subsystem)
		l.SetLevel(level)
		return l
	}

	log = mkLogger("FSND")
	coordinator.UseLogger(mkLogger("CORD"))
	transport.UseLogger(mkLogger("XPRT"))
	return nil
}

func main() {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := setupLogging(cfg.Debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	srv, err := New(&cfg)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Infof("shutting down")
		if err := srv.Stop(); err != nil {
			log.Errorf("stop: %v", err)
		}
	}()

	log.Infof("frostsnapd starting on %s, %d port(s) configured", cfg.Network, len(cfg.Ports))
	if err := srv.Start(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
