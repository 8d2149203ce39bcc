package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/barnettlynn/mfctools/internal/cli"
	"github.com/barnettlynn/mfctools/internal/config"
	"github.com/barnettlynn/mfctools/internal/reader"
	"github.com/barnettlynn/mfctools/pkg/remote"
)

func main() {
	configPath := flag.String("config", "", "config file (default: config.yaml next to the executable)")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	listen := flag.String("listen", "127.0.0.1:4477", "QUIC listen address")
	sim := flag.Bool("sim", false, "serve a simulated card instead of the configured reader")
	cardType := flag.String("card-type", "1k", "simulated card type: mini, 1k or 4k")
	flag.Parse()

	cli.SetupLogging(*verbose, *logFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := openLink(ctx, *configPath, *sim, *cardType)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	srv := remote.NewServer(r.Link)
	if err := srv.Listen(*listen, nil); err != nil {
		log.Fatalf("listen failed: %v", err)
	}
	defer srv.Close()

	d := r.Link.Data()
	fmt.Printf("Serving %s (UID %X) on %s\n", r.Name, d.UID, srv.Addr())
	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("serve failed: %v", err)
	}
	slog.Info("bridge stopped")
}

func openLink(ctx context.Context, configPath string, sim bool, cardType string) (*reader.Reader, error) {
	if sim {
		cfg := &config.Config{
			Reader:  config.ReaderConfig{Driver: config.DriverSim},
			Runtime: config.RuntimeConfig{CardType: cardType},
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return reader.OpenSim(cfg), nil
	}

	cfg, err := cli.LoadConfig(configPath, config.ValidationReader)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if cfg.Reader.Driver == config.DriverRemote {
		return nil, fmt.Errorf("config.reader.driver %q cannot be bridged", cfg.Reader.Driver)
	}
	r, err := reader.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open reader failed: %w", err)
	}
	return r, nil
}
