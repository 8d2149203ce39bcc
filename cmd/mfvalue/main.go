package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/barnettlynn/mfctools/internal/cli"
	"github.com/barnettlynn/mfctools/internal/config"
	"github.com/barnettlynn/mfctools/internal/reader"
	"github.com/barnettlynn/mfctools/pkg/mfclassic"
)

// Operations, in menu order.
const (
	opRead      = "read"
	opInit      = "init"
	opIncrement = "increment"
	opDecrement = "decrement"
	opRestore   = "restore"
)

var operations = []string{opRead, opInit, opIncrement, opDecrement, opRestore}

func main() {
	configPath := flag.String("config", "", "config file (default: config.yaml next to the executable)")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	block := flag.Int("block", 4, "value block")
	dest := flag.Int("dest", -1, "transfer destination block (default: -block)")
	keyHex := flag.String("key", "FFFFFFFFFFFF", "sector key (12 hex chars)")
	keyTypeFlag := flag.String("key-type", "A", "key type: A or B")
	op := flag.String("op", "", "operation: read, init, increment, decrement or restore (default: menu)")
	amount := flag.Int("amount", 1, "operand for increment/decrement, initial value for init")
	yes := flag.Bool("y", false, "do not ask before modifying the card")
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
	if *dest < 0 {
		*dest = *block
	}
	if err := checkBlocks(*block, *dest); err != nil {
		log.Fatal(err)
	}

	if *op == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			log.Fatalf("-op is required when stdin is not a terminal")
		}
		i := cli.SelectMenu("Select operation:", operations)
		if i < 0 {
			fmt.Println("Invalid selection.")
			os.Exit(1)
		}
		*op = operations[i]
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

	if *op != opRead && !*yes {
		if !cli.Confirm(fmt.Sprintf("%s block %d (amount %d, transfer to %d)?", *op, *block, *amount, *dest)) {
			fmt.Println("Cancelled.")
			return
		}
	}

	job := valueJob{
		block:   byte(*block),
		dest:    byte(*dest),
		key:     key,
		keyType: keyType,
		op:      *op,
		amount:  int32(*amount),
	}
	mfc := mfclassic.NewPoller(r.Link, cfg.PollerConfig())
	if err := job.run(mfc, os.Stdout); err != nil {
		log.Fatalf("%s failed: %v", *op, err)
	}
}

func checkBlocks(block, dest int) error {
	for _, b := range []int{block, dest} {
		if b <= 0 || b > 255 {
			return fmt.Errorf("block %d out of range 1..255", b)
		}
		if mfclassic.IsSectorTrailer(b) {
			return fmt.Errorf("block %d is a sector trailer", b)
		}
	}
	if mfclassic.SectorOfBlock(block) != mfclassic.SectorOfBlock(dest) {
		return fmt.Errorf("blocks %d and %d are in different sectors", block, dest)
	}
	return nil
}

type valueJob struct {
	block   byte
	dest    byte
	key     mfclassic.Key
	keyType mfclassic.KeyType
	op      string
	amount  int32
}

func (j valueJob) run(mfc *mfclassic.Poller, w io.Writer) error {
	if _, err := mfc.Auth(j.block, j.key, j.keyType, false); err != nil {
		return err
	}
	defer mfc.Halt()

	var cmd mfclassic.ValueCommand
	switch j.op {
	case opRead:
		return j.print(mfc, w, j.block)
	case opInit:
		if err := mfc.WriteBlock(j.block, mfclassic.EncodeValueBlock(j.amount, j.block)); err != nil {
			return err
		}
		return j.print(mfc, w, j.block)
	case opIncrement:
		cmd = mfclassic.Increment
	case opDecrement:
		cmd = mfclassic.Decrement
	case opRestore:
		cmd = mfclassic.Restore
	default:
		return fmt.Errorf("unknown operation %q", j.op)
	}

	if err := j.print(mfc, w, j.block); err != nil {
		return err
	}
	operand := j.amount
	if cmd == mfclassic.Restore {
		operand = 0
	}
	if err := mfc.ValueCmd(j.block, cmd, operand); err != nil {
		return err
	}
	if err := mfc.ValueTransfer(j.dest); err != nil {
		return err
	}
	return j.print(mfc, w, j.dest)
}

func (j valueJob) print(mfc *mfclassic.Poller, w io.Writer, block byte) error {
	b, err := mfc.ReadBlock(block)
	if err != nil {
		return err
	}
	v, addr, err := mfclassic.DecodeValueBlock(b)
	if errors.Is(err, mfclassic.ErrNotValueBlock) {
		fmt.Fprintf(w, "[%3d] %s  not a value block\n", block, mfclassic.FormatBlock(b))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "[%3d] %s  value %d addr %d\n", block, mfclassic.FormatBlock(b), v, addr)
	return nil
}
