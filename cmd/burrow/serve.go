package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/datastore"
	"github.com/cuemby/burrow/pkg/echo"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/framework"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/loopback"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/routing"
	"github.com/cuemby/burrow/pkg/scheduler"
	sessionpkg "github.com/cuemby/burrow/pkg/session"
	"github.com/cuemby/burrow/pkg/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Burrow server",
	Long: `Start the Burrow server with the IPC and stream endpoints, the core
services, and the task scheduler. The server runs until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		logLevel, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		env := framework.NewEnvironment(cfg)
		sv := framework.NewServer(env)

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		bridge := sessionpkg.NewBridge()
		schedComponent := scheduler.NewComponent(scheduler.DefaultConfig(), broker)
		if err := addCoreComponents(sv, bridge, schedComponent, broker); err != nil {
			return err
		}

		if err := sv.Setup(); err != nil {
			return fmt.Errorf("server setup: %w", err)
		}
		if err := sv.Start(); err != nil {
			_ = sv.Shutdown()
			return fmt.Errorf("server start: %w", err)
		}
		broker.Publish(events.NewEvent(events.EventServerStarting, "server started"))

		collector := metrics.NewCollector(schedComponent.Scheduler(), bridge.Registry())
		collector.Start()
		defer collector.Stop()

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					log.WithComponent("metrics").Error().Err(err).Msg("metrics listener failed")
				}
			}()
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.WithComponent("framework").Info().Str("signal", sig.String()).Msg("shutting down")
		broker.Publish(events.NewEvent(events.EventServerStopping, "server stopping"))

		return sv.Shutdown()
	},
}

// addCoreComponents registers the standard resource, service, and endpoint
// set.
func addCoreComponents(sv *framework.Server, bridge *sessionpkg.Bridge, sched *scheduler.Component, broker *events.Broker) error {
	if err := sv.AddResource(bridge); err != nil {
		return err
	}
	if err := sv.AddResource(sched); err != nil {
		return err
	}
	if err := sv.AddResource(datastore.NewResource()); err != nil {
		return err
	}
	if err := sv.AddService(routing.New()); err != nil {
		return err
	}
	if err := sv.AddService(sessionpkg.NewService()); err != nil {
		return err
	}
	if err := sv.AddService(datastore.NewService()); err != nil {
		return err
	}
	if err := sv.AddService(echo.NewService()); err != nil {
		return err
	}
	if err := sv.AddEndpoint(ipc.NewEndpoint(sv.DatabaseInfo(), broker)); err != nil {
		return err
	}
	if err := sv.AddEndpoint(stream.NewEndpoint(sv.DatabaseInfo(), broker)); err != nil {
		return err
	}
	if err := sv.AddEndpoint(loopback.NewEndpoint(sv.DatabaseInfo())); err != nil {
		return err
	}
	return nil
}

func init() {
	serveCmd.Flags().String("config", "", "Path to the INI configuration file")
	serveCmd.Flags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	serveCmd.Flags().Bool("log-json", false, "Emit JSON log output")
	serveCmd.Flags().String("metrics-addr", "", "Prometheus metrics listen address (empty disables)")
}
