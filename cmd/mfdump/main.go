package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/barnettlynn/mfctools/internal/cli"
	"github.com/barnettlynn/mfctools/internal/config"
	"github.com/barnettlynn/mfctools/internal/keystore"
	"github.com/barnettlynn/mfctools/internal/reader"
	"github.com/barnettlynn/mfctools/pkg/iso14443a"
	"github.com/barnettlynn/mfctools/pkg/mfclassic"
)

func main() {
	configPath := flag.String("config", "", "config file (default: config.yaml next to the executable)")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	keyTypeFlag := flag.String("key", "A", "key type to authenticate with: A or B")
	flag.Parse()

	cli.SetupLogging(*verbose, *logFormat)

	keyType, err := mfclassic.ParseKeyType(*keyTypeFlag)
	if err != nil {
		log.Fatalf("invalid -key: %v", err)
	}
	cfg, err := cli.LoadConfig(*configPath, config.ValidationFull)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	keys, err := cfg.Dictionary()
	if err != nil {
		log.Fatalf("key dictionary invalid: %v", err)
	}

	var store *keystore.Store
	if cfg.Keys.StoreFile != "" {
		store, err = keystore.Open(cfg.Keys.StoreFile)
		if err != nil {
			log.Fatalf("key store: %v", err)
		}
		defer store.Close()
	}

	r, err := reader.Open(context.Background(), cfg)
	if err != nil {
		log.Fatalf("open reader failed: %v", err)
	}
	defer r.Close()
	fmt.Printf("Using reader: %s\n", r.Name)

	data := r.Link.Data()
	cardType := cfg.CardType()
	if cfg.Runtime.CardType == "" {
		cardType = mfclassic.CardTypeFromSAK(data.SAK)
	}
	fmt.Printf("UID: %X  ATQA: %02X%02X  SAK: %02X  (%s)\n", data.UID, data.ATQA[0], data.ATQA[1], data.SAK, cardType)
	fmt.Println()

	mfc := mfclassic.NewPoller(r.Link, cfg.PollerConfig())
	d := &dumper{
		mfc:      mfc,
		link:     r.Link,
		keyType:  keyType,
		keys:     keys,
		cardType: cardType,
	}
	if store != nil {
		d.store = store
	}
	sectors, err := d.dump()
	for _, s := range sectors {
		mfclassic.PrintSector(os.Stdout, s)
	}
	if err != nil {
		log.Fatalf("dump aborted: %v", err)
	}

	found := 0
	for _, s := range sectors {
		if s.Key != nil {
			found++
		}
	}
	fmt.Println()
	fmt.Printf("Keys found for %d/%d sectors\n", found, len(sectors))
}

// keyStore is the part of keystore.Store the dumper needs.
type keyStore interface {
	Lookup(uid []byte, sector int, keyType mfclassic.KeyType) (mfclassic.Key, error)
	Save(uid []byte, sector int, keyType mfclassic.KeyType, key mfclassic.Key) error
}

type dumper struct {
	mfc      *mfclassic.Poller
	link     iso14443a.Poller
	keyType  mfclassic.KeyType
	keys     []mfclassic.Key
	store    keyStore
	cardType mfclassic.CardType
}

// dump reads every sector it finds a key for. It stops early only when
// the card leaves the field.
func (d *dumper) dump() ([]mfclassic.SectorDump, error) {
	uid := append([]byte(nil), d.link.Data().UID...)
	var sectors []mfclassic.SectorDump
	for sector := 0; sector < d.cardType.Sectors(); sector++ {
		s, err := d.dumpSector(uid, sector)
		sectors = append(sectors, s)
		if err != nil {
			return sectors, err
		}
	}
	if d.mfc.AuthState() == mfclassic.AuthStatePassed {
		if err := d.mfc.Halt(); err != nil {
			slog.Debug("halt after dump", "err", err)
		}
	}
	return sectors, nil
}

func (d *dumper) dumpSector(uid []byte, sector int) (mfclassic.SectorDump, error) {
	first := mfclassic.FirstBlockOfSector(sector)
	n := mfclassic.BlocksInSector(sector)
	s := mfclassic.SectorDump{
		Sector:  sector,
		KeyType: d.keyType,
		Blocks:  make([]mfclassic.Block, n),
		Read:    make([]bool, n),
	}

	candidates := d.keys
	stored := false
	if d.store != nil {
		if k, err := d.store.Lookup(uid, sector, d.keyType); err == nil {
			candidates = append([]mfclassic.Key{k}, d.keys...)
			stored = true
		} else if !errors.Is(err, keystore.ErrNotFound) {
			slog.Warn("key store lookup failed", "sector", sector, "err", err)
		}
	}

	if err := d.reselect(); err != nil {
		return s, err
	}
	results := d.mfc.ProbeKeys(byte(first), d.keyType, candidates)
	key, ok := mfclassic.FoundKey(results)
	if !ok {
		if len(results) > 0 {
			if last := results[len(results)-1]; mfclassic.IsNotPresent(last.Err) {
				return s, last.Err
			}
		}
		slog.Info("no key for sector", "sector", sector, "tried", len(results))
		return s, nil
	}
	s.Key = &key
	slog.Debug("sector key found", "sector", sector, "key", key.String(), "attempts", len(results))
	if d.store != nil && !(stored && key == candidates[0]) {
		if err := d.store.Save(uid, sector, d.keyType, key); err != nil {
			slog.Warn("key store save failed", "sector", sector, "err", err)
		}
	}

	for i := 0; i < n; i++ {
		b, err := d.mfc.ReadBlock(byte(first + i))
		if err != nil {
			slog.Warn("read block failed", "block", first+i, "err", err)
			if mfclassic.IsNotPresent(err) {
				return s, err
			}
			// The session is gone after a failed read.
			break
		}
		if mfclassic.IsSectorTrailer(first+i) && d.keyType == mfclassic.KeyTypeA {
			copy(b[:6], key[:])
		}
		s.Blocks[i] = b
		s.Read[i] = true
	}
	return s, nil
}

// reselect ends the current session so the next sector can start with a
// plain authentication.
func (d *dumper) reselect() error {
	if d.mfc.AuthState() == mfclassic.AuthStatePassed {
		if err := d.mfc.Halt(); err != nil {
			slog.Debug("halt before reselect", "err", err)
		}
	}
	a, ok := d.link.(iso14443a.Activator)
	if !ok {
		return nil
	}
	if err := a.Activate(); err != nil {
		return fmt.Errorf("reactivate card: %w: %w", mfclassic.MapError(err), err)
	}
	return nil
}
