package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/barnettlynn/mfctools/internal/cli"
	"github.com/barnettlynn/mfctools/internal/config"
	"github.com/barnettlynn/mfctools/internal/reader"
	"github.com/barnettlynn/mfctools/pkg/crypto1"
	"github.com/barnettlynn/mfctools/pkg/iso14443a"
	"github.com/barnettlynn/mfctools/pkg/mfclassic"
)

func main() {
	configPath := flag.String("config", "", "config file (default: config.yaml next to the executable)")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	block := flag.Int("block", 0, "block to authenticate with the known key")
	keyHex := flag.String("key", "FFFFFFFFFFFF", "known key (12 hex chars)")
	keyTypeFlag := flag.String("key-type", "A", "known key type: A or B")
	target := flag.Int("target", 4, "block to collect nested nonces for")
	targetTypeFlag := flag.String("target-key-type", "A", "target key type: A or B")
	count := flag.Int("n", 10, "number of nested nonces to collect")
	flag.Parse()

	cli.SetupLogging(*verbose, *logFormat)

	key, err := mfclassic.ParseKey(*keyHex)
	if err != nil {
		log.Fatalf("invalid -key: %v", err)
	}
	keyType, err := mfclassic.ParseKeyType(*keyTypeFlag)
	if err != nil {
		log.Fatalf("invalid -key-type: %v", err)
	}
	targetType, err := mfclassic.ParseKeyType(*targetTypeFlag)
	if err != nil {
		log.Fatalf("invalid -target-key-type: %v", err)
	}
	if *block < 0 || *block > 255 || *target < 0 || *target > 255 {
		log.Fatalf("blocks must be 0..255")
	}

	cfg, err := cli.LoadConfig(*configPath, config.ValidationFull)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	r, err := reader.Open(context.Background(), cfg)
	if err != nil {
		log.Fatalf("open reader failed: %v", err)
	}
	defer r.Close()
	fmt.Printf("Using reader: %s\n", r.Name)
	fmt.Printf("UID: %X\n\n", r.Link.Data().UID)

	c := &collector{
		mfc:        mfclassic.NewPoller(r.Link, cfg.PollerConfig()),
		link:       r.Link,
		block:      byte(*block),
		key:        key,
		keyType:    keyType,
		target:     byte(*target),
		targetType: targetType,
		backdoor:   cfg.Backdoor(),
	}
	samples, err := c.collect(*count)
	printSamples(os.Stdout, samples)
	if err != nil {
		log.Fatalf("collection stopped: %v", err)
	}
}

// sample is one nested authentication attempt.
type sample struct {
	Auth     *mfclassic.AuthContext
	NestedNt mfclassic.Nonce // still encrypted
}

type collector struct {
	mfc        *mfclassic.Poller
	link       iso14443a.Poller
	block      byte
	key        mfclassic.Key
	keyType    mfclassic.KeyType
	target     byte
	targetType mfclassic.KeyType
	backdoor   bool
}

// collect authenticates with the known key, then requests a nested nonce
// for the target and abandons the handshake. The card is reselected
// before every round.
func (c *collector) collect(n int) ([]sample, error) {
	activator, _ := c.link.(iso14443a.Activator)
	var samples []sample
	for i := 0; i < n; i++ {
		if i > 0 {
			if activator == nil {
				return samples, errors.New("link cannot reselect the card")
			}
			if err := activator.Activate(); err != nil {
				return samples, fmt.Errorf("reactivate card: %w", err)
			}
		}
		ctx, err := c.mfc.Auth(c.block, c.key, c.keyType, c.backdoor)
		if err != nil {
			return samples, fmt.Errorf("authenticate block %d: %w", c.block, err)
		}
		nested, err := c.mfc.AuthNested(c.target, c.key, c.targetType, c.backdoor, true)
		if err != nil {
			return samples, fmt.Errorf("nested nonce for block %d: %w", c.target, err)
		}
		samples = append(samples, sample{Auth: ctx, NestedNt: nested.Nt})
	}
	return samples, nil
}

func printSamples(w io.Writer, samples []sample) {
	var prev uint32
	for i, s := range samples {
		nt := binary.BigEndian.Uint32(s.Auth.Nt[:])
		dist := "-"
		if i > 0 {
			if d, ok := crypto1.PRNGDistance(prev, nt); ok {
				dist = fmt.Sprintf("%d", d)
			} else {
				dist = "?"
			}
		}
		prev = nt
		fmt.Fprintf(w, "%3d  %s  {nt'}=%s  dist=%s\n", i, mfclassic.FormatAuthContext(s.Auth), s.NestedNt, dist)
	}
}
