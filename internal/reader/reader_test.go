package reader

import (
	"context"
	"testing"

	"github.com/barnettlynn/mfctools/internal/config"
	"github.com/barnettlynn/mfctools/pkg/mfclassic"
)

func TestOpenSim(t *testing.T) {
	t.Setenv(mfclassic.ReaderNonceEnv, "")
	backdoor := true
	cfg := &config.Config{
		Reader:  config.ReaderConfig{Driver: config.DriverSim},
		Runtime: config.RuntimeConfig{CardType: "mini", Backdoor: &backdoor},
	}
	r, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Tag == nil || r.Tag.CardType() != mfclassic.CardTypeMini || !r.Tag.Backdoor {
		t.Fatalf("sim tag = %+v", r.Tag)
	}
	if got := r.Link.Data().CUID(); got != 0xDEADBEEF {
		t.Fatalf("CUID = %08X", got)
	}
	mfc := mfclassic.NewPoller(r.Link, cfg.PollerConfig())
	if _, err := mfc.Auth(0, mfclassic.DefaultKey, mfclassic.KeyTypeA, false); err != nil {
		t.Fatalf("Auth: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := &config.Config{Reader: config.ReaderConfig{Driver: "serial"}}
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
