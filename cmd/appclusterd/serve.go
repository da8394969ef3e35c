package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/appcluster/pkg/cluster"
	"github.com/cuemby/appcluster/pkg/config"
	"github.com/cuemby/appcluster/pkg/execsync"
	"github.com/cuemby/appcluster/pkg/listener"
	"github.com/cuemby/appcluster/pkg/log"
	"github.com/cuemby/appcluster/pkg/metrics"
	"github.com/cuemby/appcluster/pkg/model"
	"github.com/cuemby/appcluster/pkg/scheduler"
)

var (
	metricsAddr        string
	synchronizeCommand string
	testCommand        string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cluster coordinator and block until signaled",
	RunE: func(cmd *cobra.Command, args []string) error {
		source := config.NewFileSource(configPath)
		c := cluster.New(source, synchronizerFactory(synchronizeCommand, testCommand))
		c.AddDnsListener(listener.NewLogger())
		c.AddSynchronizationListener(listener.NewLogger())

		if err := c.Start(); err != nil {
			return fmt.Errorf("start cluster: %w", err)
		}
		log.Info(fmt.Sprintf("serving metrics on %s", metricsAddr))

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/status", statusHandler(c))
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		serverErr := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("received shutdown signal")
		case err := <-serverErr:
			log.Errorf("metrics server error", err)
		}

		c.Stop()
		_ = server.Close()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics and /status on")
	serveCmd.Flags().StringVar(&synchronizeCommand, "synchronize-command", "", "shell command run for each resource's synchronize pass (space separated)")
	serveCmd.Flags().StringVar(&testCommand, "test-command", "", "shell command run for each resource's test pass (defaults to the synchronize command)")
}

func synchronizerFactory(synchronizeCommand, testCommand string) cluster.SynchronizerFactory {
	syncCmd := splitCommand(synchronizeCommand)
	testCmd := splitCommand(testCommand)
	if len(syncCmd) == 0 {
		return nil
	}
	return func(resource model.Resource, local, remote model.ResourceNode) scheduler.Synchronizer {
		return execsync.New(syncCmd, testCmd)
	}
}

func splitCommand(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
