// mechros: vehicle control runtime
// Runs the control loops, the operator API and the optional flight recorder.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/logger"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-mechros/internal/config"
	"github.com/teslashibe/go-mechros/internal/log"
	"github.com/teslashibe/go-mechros/pkg/actuators"
	"github.com/teslashibe/go-mechros/pkg/mech"
	"github.com/teslashibe/go-mechros/pkg/recorder"
	"github.com/teslashibe/go-mechros/pkg/remote"
	"github.com/teslashibe/go-mechros/pkg/simulator"
	"github.com/teslashibe/go-mechros/pkg/web"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", config.ConfigPath(), "Config file (JSON or YAML)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	addr := flag.String("addr", "", "Operator API address (overrides web.addr)")
	hardware := flag.Bool("hardware", false, "Drive real hardware instead of the simulator")
	record := flag.Bool("record", false, "Enable the flight recorder")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *addr != "" {
		cfg.Web.Addr = *addr
	}
	if *hardware {
		cfg.Simulate = false
	}
	if *record {
		cfg.Recorder.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogFormat)

	fmt.Println()
	fmt.Println("🤖 mechros v" + version)
	if cfg.Simulate {
		fmt.Println("   Mode: simulator")
	} else {
		fmt.Printf("   Mode: hardware (%s @ %d baud)\n", cfg.Actuators.Serial.Port, cfg.Actuators.Serial.BaudRate)
	}
	fmt.Println()

	if err := run(cfg, *debug); err != nil {
		log.Error("mechros stopped", "error", err)
		os.Exit(1)
	}
	fmt.Println("👋 Goodbye")
}

func run(cfg config.Config, debug bool) error {
	collab, closeHW, err := collaborators(cfg)
	if err != nil {
		return err
	}
	defer closeHW()

	m, err := mech.New(cfg, collab, log.L())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A failed vehicle still serves the API so an operator can send "recover".
	if err := m.Initialize(ctx); err != nil {
		log.Error("❌ initialization failed", "error", err)
	} else {
		log.Info("✅ vehicle ready")
	}

	server, err := web.NewServer(cfg.Web, m.Bus(), web.Sources{
		State:     m.State(),
		Actuators: m.Dispatcher(),
		Loops:     m.Scheduler(),
	}, log.Component("web"))
	if err != nil {
		return err
	}
	if debug {
		server.App().Use(logger.New())
	}

	operators := remote.NewHub(m.Bus(), log.Component("remote"))
	operators.RegisterRoutes(server.App())
	operators.RegisterAPIRoutes(server.App().Group("/api"))
	operators.Attach()
	defer operators.Detach()

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		if rec, err = recorder.Open(cfg.Recorder, log.Component("recorder")); err != nil {
			return err
		}
		rec.Attach(m.Bus())
		defer func() {
			if err := rec.Close(); err != nil {
				log.Warn("recorder close failed", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("🚀 operator API", "addr", cfg.Web.Addr,
			"stream", "/ws/stream/:topic", "operator", "/ws/operator")
		return server.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Shutdown()
	})
	if rec != nil {
		g.Go(func() error { return rec.Run(gctx) })
	}
	g.Go(func() error {
		err := m.Run(gctx)
		cancel()
		return err
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// collaborators picks the simulator or the serial hardware link.
func collaborators(cfg config.Config) (mech.Collaborators, func(), error) {
	if cfg.Simulate {
		sim := simulator.New(time.Now)
		return mech.Collaborators{
			Sensors: sim.Sensors(),
			Drivers: sim.Drivers(),
			Vision:  sim,
		}, func() {}, nil
	}

	motors, err := actuators.OpenSerialMotors(cfg.Actuators.Serial)
	if err != nil {
		return mech.Collaborators{}, nil, err
	}
	log.Info("🔌 serial motor link open", "port", cfg.Actuators.Serial.Port)

	closeMotors := func() {
		if err := motors.Close(); err != nil {
			log.Warn("serial close failed", "error", err)
		}
	}
	return mech.Collaborators{Drivers: actuators.Drivers{Motors: motors}}, closeMotors, nil
}
