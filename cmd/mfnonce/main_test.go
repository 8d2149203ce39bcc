package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/barnettlynn/mfctools/pkg/mfclassic"
	"github.com/barnettlynn/mfctools/pkg/tagsim"
)

func newCollector(t *testing.T) (*tagsim.Tag, *collector) {
	t.Helper()
	t.Setenv(mfclassic.ReaderNonceEnv, "")
	tag := tagsim.New(mfclassic.CardType1K, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	link := tagsim.NewPoller(tag)
	return tag, &collector{
		mfc:        mfclassic.NewPoller(link, mfclassic.Config{}),
		link:       link,
		block:      0,
		key:        mfclassic.DefaultKey,
		keyType:    mfclassic.KeyTypeA,
		target:     4,
		targetType: mfclassic.KeyTypeA,
	}
}

func TestCollectNestedNonces(t *testing.T) {
	_, c := newCollector(t)
	samples, err := c.collect(3)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	for i, s := range samples {
		if s.Auth == nil || s.Auth.Block != 0 {
			t.Fatalf("sample %d transcript = %+v", i, s.Auth)
		}
	}
	if samples[0].NestedNt == samples[1].NestedNt && samples[1].NestedNt == samples[2].NestedNt {
		t.Fatal("nested nonces do not change")
	}

	var out bytes.Buffer
	printSamples(&out, samples)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("printed %d lines, want 3", len(lines))
	}
	if !strings.HasSuffix(lines[0], "dist=-") {
		t.Fatalf("first line = %q", lines[0])
	}
	if strings.HasSuffix(lines[1], "dist=?") {
		t.Fatalf("simulator nonces not on the PRNG sequence: %q", lines[1])
	}
}

func TestCollectStopsOnWrongKey(t *testing.T) {
	tag, c := newCollector(t)
	tag.SetSectorKeys(0, mfclassic.Key{1, 2, 3, 4, 5, 6}, mfclassic.Key{1, 2, 3, 4, 5, 6})
	samples, err := c.collect(2)
	if err == nil || len(samples) != 0 {
		t.Fatalf("collect = %d samples, %v; want an error and no samples", len(samples), err)
	}
}
