// Package reader opens the link backend selected in the config.
package reader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/barnettlynn/mfctools/internal/config"
	"github.com/barnettlynn/mfctools/pkg/iso14443a"
	"github.com/barnettlynn/mfctools/pkg/pcsc"
	"github.com/barnettlynn/mfctools/pkg/remote"
	"github.com/barnettlynn/mfctools/pkg/tagsim"
)

// SimUID is the UID of the simulated card.
var SimUID = []byte{0xDE, 0xAD, 0xBE, 0xEF}

// Reader is an open link with a selected card.
type Reader struct {
	Link iso14443a.Poller
	Name string

	// Tag is the simulated card for the sim driver.
	Tag *tagsim.Tag

	close func() error
}

// Close releases the backend.
func (r *Reader) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

// Open opens the backend configured in cfg.Reader.
func Open(ctx context.Context, cfg *config.Config) (*Reader, error) {
	switch cfg.Reader.Driver {
	case config.DriverPCSC:
		return openPCSC(ctx, *cfg.Reader.Index)
	case config.DriverLibNFC:
		return openLibNFC(cfg.Reader.Connstring)
	case config.DriverRemote:
		c, err := remote.Dial(ctx, cfg.Reader.RemoteAddr, nil)
		if err != nil {
			return nil, err
		}
		return &Reader{Link: c, Name: "remote " + cfg.Reader.RemoteAddr, close: c.Close}, nil
	case config.DriverSim:
		return OpenSim(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported reader driver %q", cfg.Reader.Driver)
	}
}

// OpenSim returns a simulated card with factory keys.
func OpenSim(cfg *config.Config) *Reader {
	tag := tagsim.New(cfg.CardType(), SimUID)
	tag.Backdoor = cfg.Backdoor()
	return &Reader{Link: tagsim.NewPoller(tag), Name: "simulator", Tag: tag}
}

func openPCSC(ctx context.Context, index int) (*Reader, error) {
	conn, err := pcsc.Connect(ctx, index)
	if err != nil {
		return nil, err
	}
	slog.Info("reader connected", "reader", conn.Reader, "index", index)
	p, err := pcsc.NewPoller(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Reader{Link: p, Name: conn.Reader, close: conn.Close}, nil
}
