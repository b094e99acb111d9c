package cmd

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/shelfdb/shelf/internal/config"
	"github.com/shelfdb/shelf/internal/engine"
	"github.com/shelfdb/shelf/internal/node"
	"github.com/shelfdb/shelf/internal/server"
)

var (
	stateless    bool
	internalPort int
	seedsPath    string
)

func init() {
	serveCmd.Flags().BoolVar(&stateless, "stateless", false, "Disable the background persister entirely")

	nodeCmd.Flags().BoolVar(&stateless, "stateless", false, "Disable the background persister entirely")
	nodeCmd.Flags().IntVar(&internalPort, "internal-port", 0, "Loopback port for the node's internal server (default $AP_LORT or 9998)")
	nodeCmd.Flags().StringVar(&seedsPath, "seeds", "", "Optional HCL file naming bootstrap peers")
}

// openEngine resolves the database path and builds an Engine over the
// real filesystem.
func openEngine(cfg config.Server) (*engine.Engine, error) {
	abs, err := filepath.Abs(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}

	var fs billy.Filesystem = osfs.New(filepath.Dir(abs))
	return engine.New(engine.Options{
		Filesystem: fs,
		Path:       filepath.Base(abs),
		Stateless:  cfg.Stateless,
	})
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a standalone shelf server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Resolve(flagHost, flagPort, 0, flagConfig)
		cfg.Stateless = stateless

		eng, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer eng.Close()

		logger := log.New(os.Stderr, "", log.LstdFlags)
		srv := server.New(eng, logger, quiet)

		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}

		if !quiet {
			logger.Printf("shelf serving on %s (db %s)", ln.Addr(), cfg.ConfigPath)
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Serve(ln) }()

		done := make(chan struct{})
		go func() {
			waitForSignal()
			close(done)
		}()

		select {
		case err := <-errCh:
			return err
		case <-done:
			srv.Teardown()
			return nil
		}
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a clustering shelf node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Resolve(flagHost, flagPort, internalPort, flagConfig)
		cfg.Stateless = stateless

		eng, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer eng.Close()

		seeds, err := node.LoadSeeds(seedsPath)
		if err != nil {
			return err
		}

		logger := log.New(os.Stderr, "", log.LstdFlags)
		n, err := node.New(node.Options{
			Engine:       eng,
			Host:         cfg.Host,
			Port:         cfg.Port,
			InternalPort: cfg.InternalPort,
			Logger:       logger,
			Quiet:        quiet,
			Seeds:        seeds,
		})
		if err != nil {
			return err
		}

		if err := n.Start(); err != nil {
			return err
		}
		if !quiet {
			logger.Printf("shelf node %s serving on %s:%d (internal %s, db %s)",
				n.Identity(), cfg.Host, cfg.Port, n.InternalAddr(), cfg.ConfigPath)
		}

		waitForSignal()
		return n.Close()
	},
}
