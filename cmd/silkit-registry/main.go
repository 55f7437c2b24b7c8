// Command silkit-registry runs the standalone L2 rendezvous process
// described in spec.md §4.3: participants dial it first, announce
// themselves, and receive back the list of peers already connected.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/silkit-go/silkit/pkg/silkit/config"
	"github.com/silkit-go/silkit/pkg/silkit/core"
	"github.com/silkit-go/silkit/pkg/silkit/definition"
)

var (
	listenURI  string
	required   []string
	logLevel   string
	exitOnDown bool
)

var rootCmd = &cobra.Command{
	Use:   "silkit-registry",
	Short: "rendezvous process for a silkit simulation",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&listenURI, "listen-uri", "silkit://0.0.0.0:8500", "registry URI to bind (silkit://, tcp:// or local://)")
	rootCmd.Flags().StringSliceVar(&required, "required-participant", nil, "participant name expected to join; repeat for multiple. With --exit-on-all-down, the process exits once all of them have disconnected")
	rootCmd.Flags().StringVar(&logLevel, "loglevel", "info", "log level: debug, info, warning, error")
	rootCmd.Flags().BoolVar(&exitOnDown, "exit-on-all-down", false, "exit once every required participant has disconnected")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func run(_ *cobra.Command, _ []string) error {
	logger := definition.NewDefaultLogger()
	switch strings.ToLower(logLevel) {
	case "debug":
		logger.ToggleDebug(true)
	case "info", "":
	case "warning", "warn", "error":
		// the default logger only distinguishes debug from non-debug;
		// warning/error are accepted for compatibility with the
		// participant-side --loglevel values but map to the same level.
	default:
		return fmt.Errorf("unrecognized log level: %s", logLevel)
	}

	addr, err := config.ParseRegistryURI(listenURI)
	if err != nil {
		return err
	}

	allDown := make(chan struct{})
	var closeOnce sync.Once
	registry := core.NewRegistry(logger, required, func() {
		closeOnce.Do(func() { close(allDown) })
	})

	if err := registry.ProvideDomain(addr.Network, addr.Address); err != nil {
		return err
	}
	logger.Infof("registry: listening on %s (%s) for simulation %q", registry.Addr(), addr.Network, addr.SimulationName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var eg errgroup.Group
	eg.Go(func() error {
		for {
			select {
			case sig := <-sigCh:
				logger.Infof("registry: received %s, shutting down", sig)
			case <-allDown:
				if !exitOnDown {
					allDown = nil
					continue
				}
				logger.Info("registry: all required participants disconnected, shutting down")
			}
			registry.Close()
			return nil
		}
	})

	return eg.Wait()
}
