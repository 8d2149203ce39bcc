package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
	"github.com/barnettlynn/mfctools/pkg/mfclassic"
	"github.com/barnettlynn/mfctools/pkg/remote"
	"github.com/barnettlynn/mfctools/pkg/tagsim"
)

type bridge struct {
	tag    *tagsim.Tag
	link   *tagsim.Poller
	client *remote.Client
	addr   string
}

func startBridge(t *testing.T) *bridge {
	t.Helper()
	t.Setenv(mfclassic.ReaderNonceEnv, "")

	tag := tagsim.New(mfclassic.CardType1K, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	link := tagsim.NewPoller(tag)
	if err := link.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	srv := remote.NewServer(link)
	if err := srv.Listen("127.0.0.1:0", nil); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	client, err := remote.Dial(dialCtx, srv.Addr(), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return &bridge{tag: tag, link: link, client: client, addr: srv.Addr()}
}

func TestClientSeesCardIdentity(t *testing.T) {
	b := startBridge(t)
	d := b.client.Data()
	if d.SAK != 0x08 || len(d.UID) != 4 || d.CUID() != 0xDEADBEEF {
		t.Fatalf("data = %+v", d)
	}
}

func TestAuthReadWriteOverBridge(t *testing.T) {
	b := startBridge(t)
	mfc := mfclassic.NewPoller(b.client, mfclassic.Config{})

	if _, err := mfc.Auth(4, mfclassic.DefaultKey, mfclassic.KeyTypeA, false); err != nil {
		t.Fatalf("Auth: %v", err)
	}
	want := mfclassic.Block{0xCA, 0xFE, 0xBA, 0xBE}
	if err := mfc.WriteBlock(6, want); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	got, err := mfc.ReadBlock(6)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if got != want || b.tag.Block(6) != want {
		t.Fatalf("block 6 = %X (tag %X), want %X", got, b.tag.Block(6), want)
	}
	if err := mfc.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	if b.link.IdleCount != 1 {
		t.Fatalf("remote SetIdle calls = %d, want 1", b.link.IdleCount)
	}
}

func TestWrongKeyOverBridgeHaltsOnce(t *testing.T) {
	b := startBridge(t)
	b.tag.SetSectorKeys(1, mfclassic.Key{1, 2, 3, 4, 5, 6}, mfclassic.Key{1, 2, 3, 4, 5, 6})
	mfc := mfclassic.NewPoller(b.client, mfclassic.Config{})

	if _, err := mfc.Auth(4, mfclassic.DefaultKey, mfclassic.KeyTypeA, false); !mfclassic.IsTimeout(err) {
		t.Fatalf("Auth err = %v, want timeout", err)
	}
	if got := b.link.Count(tagsim.IsPlainHalt); got != 1 {
		t.Fatalf("plain halts = %d, want 1", got)
	}
}

func TestActivateOverBridge(t *testing.T) {
	b := startBridge(t)
	b.tag.Remove()
	if err := b.client.Activate(); !errors.Is(err, iso14443a.ErrNotPresent) {
		t.Fatalf("Activate err = %v, want ErrNotPresent", err)
	}
	b.tag.Insert()
	if err := b.client.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	mfc := mfclassic.NewPoller(b.client, mfclassic.Config{})
	if _, err := mfc.GetNT(0, mfclassic.KeyTypeA, false); err != nil {
		t.Fatalf("GetNT after activation: %v", err)
	}
}

func TestSecondSessionWaitsForFirst(t *testing.T) {
	b := startBridge(t)
	mfc := mfclassic.NewPoller(b.client, mfclassic.Config{})
	if _, err := mfc.Auth(4, mfclassic.DefaultKey, mfclassic.KeyTypeA, false); err != nil {
		t.Fatalf("Auth: %v", err)
	}

	type dialResult struct {
		c   *remote.Client
		err error
	}
	second := make(chan dialResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := remote.Dial(ctx, b.addr, nil)
		second <- dialResult{c, err}
	}()

	select {
	case r := <-second:
		if r.c != nil {
			r.c.Close()
		}
		t.Fatalf("second session got the link while the first was open (err %v)", r.err)
	case <-time.After(300 * time.Millisecond):
	}

	// The first session's keystream must still be intact.
	if _, err := mfc.ReadBlock(5); err != nil {
		t.Fatalf("ReadBlock in first session: %v", err)
	}
	b.client.Close()

	r := <-second
	if r.err != nil {
		t.Fatalf("second Dial: %v", r.err)
	}
	defer r.c.Close()
	// The first session never halted, so the card needs selecting again.
	if err := r.c.Activate(); err != nil {
		t.Fatalf("Activate in second session: %v", err)
	}
	other := mfclassic.NewPoller(r.c, mfclassic.Config{})
	if _, err := other.Auth(4, mfclassic.DefaultKey, mfclassic.KeyTypeA, false); err != nil {
		t.Fatalf("Auth in second session: %v", err)
	}
}
