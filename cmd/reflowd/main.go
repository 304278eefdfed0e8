// reflowd — bandwidth-aware SDN controller for programmable L2 networks.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/digitalocean/go-openvswitch/ovs"
	"golang.org/x/sync/errgroup"

	"github.com/reflowd/reflowd/internal/api"
	"github.com/reflowd/reflowd/internal/config"
	"github.com/reflowd/reflowd/internal/controller"
	"github.com/reflowd/reflowd/internal/events"
	"github.com/reflowd/reflowd/internal/logging"
	"github.com/reflowd/reflowd/internal/southbound/ovsdriver"
)

func main() {
	configPath := flag.String("config", "/etc/reflowd/config.toml", "path to configuration file")
	debugPort := flag.String("debug-port", "", "enable pprof debug server on this port (e.g. 6060)")
	flag.Parse()

	// Start pprof debug server if requested
	if *debugPort != "" {
		runtime.SetMutexProfileFraction(5)
		runtime.SetBlockProfileRate(1)
		go func() {
			addr := "0.0.0.0:" + *debugPort
			fmt.Fprintf(os.Stderr, "pprof debug server on http://%s/debug/pprof/\n", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server failed: %v\n", err)
			}
		}()
	}

	// SIGUSR1 dumps all goroutine stacks to /tmp/reflowd-goroutines.txt
	go func() {
		sigUsr1 := make(chan os.Signal, 1)
		signal.Notify(sigUsr1, syscall.SIGUSR1)
		for range sigUsr1 {
			buf := make([]byte, 16*1024*1024)
			n := runtime.Stack(buf, true)
			path := "/tmp/reflowd-goroutines.txt"
			if err := os.WriteFile(path, buf[:n], 0644); err != nil {
				fmt.Fprintf(os.Stderr, "failed to write goroutine dump: %v\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "goroutine dump written to %s (%d bytes)\n", path, n)
			}
		}
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stdout)
	logger.Info("reflowd starting",
		"config", *configPath,
		"southbound", cfg.Southbound.Driver,
		"oracle", cfg.Oracle.Path)

	if cfg.Server.PIDFile != "" {
		pid := fmt.Sprintf("%d\n", os.Getpid())
		if err := os.WriteFile(cfg.Server.PIDFile, []byte(pid), 0644); err != nil {
			logger.Warn("failed to write pid file", "path", cfg.Server.PIDFile, "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inbox := events.NewInbox(cfg.Server.EventBufferSize, logger)
	ctrl := controller.New(cfg, inbox, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(ctx)
	})

	// The ovs driver runs one local bridge as switch 1 in poll mode. The
	// external driver expects the OpenFlow channel owner to publish events
	// into the inbox instead.
	if cfg.Southbound.Driver == "ovs" {
		opts := []ovs.OptionFunc{ovs.Timeout(2)}
		if cfg.Southbound.Sudo {
			opts = append(opts, ovs.Sudo())
		}
		client := ovs.New(opts...)
		drv := ovsdriver.New(1, cfg.Southbound.Bridge, client.OpenFlow, inbox, logger)
		inbox.Publish(events.SwitchUp{ID: drv.ID(), Datapath: drv})
		logger.Info("ovs southbound driver attached", "bridge", cfg.Southbound.Bridge)
	}

	if cfg.API.Enabled {
		srv := api.NewServer(cfg, ctrl.Registry(), ctrl.Topology(), ctrl.Hosts(), ctrl.Flows(), ctrl.Links(), logger)
		ln, err := srv.Listen()
		if err != nil {
			logger.Error("failed to start API server", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			return srv.Serve(ln)
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("reflowd exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("reflowd stopped")
}
