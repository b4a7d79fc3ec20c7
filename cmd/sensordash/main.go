package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"golang.org/x/sync/errgroup"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/logger"
	"github.com/shaunagostinho/sensordash/internal/output"
	"github.com/shaunagostinho/sensordash/internal/output/console"
	"github.com/shaunagostinho/sensordash/internal/output/mqtt"
	"github.com/shaunagostinho/sensordash/internal/sensor"
	"github.com/shaunagostinho/sensordash/internal/server"
	"github.com/shaunagostinho/sensordash/web"
)

func main() {
	configPath := flag.String("config", "/etc/sensordash/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run against a simulated sensor")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	listPorts := flag.Bool("list-ports", false, "List serial ports and exit")
	prompt := flag.Bool("prompt", false, "Read operator commands from the terminal")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if *listPorts {
		os.Exit(printPorts())
	}

	log.Println("[main] sensordash starting")

	cfg := server.LoadConfig(*configPath)
	if *demo {
		cfg.Sensor.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[main] %v", err)
	}

	os.Exit(run(cfg, *prompt))
}

func printPorts() int {
	ports, err := sensor.ListPorts()
	if err != nil {
		log.Printf("[main] %v", err)
		return 1
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return 0
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return 0
}

// run wires the transport, the loop and its sinks, and blocks until the
// loop stops. It returns the process exit code.
func run(cfg *server.Config, prompt bool) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("[main] received %v, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	tr, err := sensor.Open(cfg.TransportConfig())
	if err != nil {
		log.Printf("[main] %v", err)
		return 1
	}
	log.Printf("[main] sensor: %s", tr.Name())

	// The server is created after the loop it controls; the sink closure
	// only runs once the loop does.
	var srv *server.Server
	sinks := acquire.Sinks{acquire.SinkFunc(func(s *acquire.Snapshot) { srv.Publish(s) })}

	async, closers := buildOutputs(cfg)
	for _, a := range async {
		sinks = append(sinks, a)
	}
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	loop, err := acquire.New(tr, sinks, cfg.LoopOptions())
	if err != nil {
		tr.Close()
		log.Printf("[main] %v", err)
		return 1
	}
	srv = server.New(cfg, loop, web.FS)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A stopped loop ends the process, fault or not.
		defer cancel()
		return loop.Run(gctx)
	})
	g.Go(func() error { return srv.Run(gctx) })
	for _, a := range async {
		g.Go(func() error { return a.Run(gctx) })
	}
	if prompt {
		term := liner.NewLiner()
		defer term.Close()
		go runPrompt(gctx, cancel, term, newCommander(loop, cfg, srv.Latest, os.Stdout))
	}

	if err := g.Wait(); err != nil {
		log.Printf("[main] %v", err)
		return 1
	}
	log.Println("[main] stopped")
	return 0
}

// buildOutputs creates the enabled downstream sinks, each behind its own
// mailbox so that none can stall the loop.
func buildOutputs(cfg *server.Config) ([]*acquire.AsyncSink, []func()) {
	var (
		async   []*acquire.AsyncSink
		closers []func()
	)

	if cfg.Logging.Enabled {
		lg := logger.New(logger.Config{
			Enabled:    true,
			Path:       cfg.Logging.Path,
			IntervalMs: cfg.Logging.Interval,
		})
		async = append(async, acquire.Async("logger", lg))
		closers = append(closers, lg.Close)
	}

	if cfg.Console.Enabled {
		th := output.NewThrottle("console", console.New(os.Stdout), time.Duration(cfg.Console.IntervalMs)*time.Millisecond)
		async = append(async, acquire.Async("console", th))
	}

	if cfg.MQTT.Enabled {
		m, err := mqtt.NewMQTT(mqtt.Config{
			Server:   cfg.MQTT.Server,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			log.Printf("[mqtt] disabled: %v", err)
		} else {
			th := output.NewThrottle("mqtt", m, time.Duration(cfg.MQTT.IntervalMs)*time.Millisecond)
			async = append(async, acquire.Async("mqtt", th))
			closers = append(closers, func() { th.Close() })
		}
	}

	return async, closers
}
