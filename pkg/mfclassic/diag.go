package mfclassic

import (
	"fmt"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// KeyProbeResult holds the result of one authentication attempt.
type KeyProbeResult struct {
	Key     Key
	Success bool
	Context *AuthContext // set on success
	Err     error
}

// ProbeKeys tries each key against block until one authenticates. A
// failed attempt halts the card, so when the link can reselect the card
// it is reactivated before the next key. The returned results end with the
// successful attempt, if any; the session is then Passed for that sector.
func (p *Poller) ProbeKeys(block byte, keyType KeyType, keys []Key) []KeyProbeResult {
	activator, _ := p.link.(iso14443a.Activator)

	results := make([]KeyProbeResult, 0, len(keys))
	for i, key := range keys {
		if i > 0 && activator != nil {
			if err := activator.Activate(); err != nil {
				err = fmt.Errorf("reactivate: %w: %w", MapError(err), err)
				results = append(results, KeyProbeResult{Key: key, Err: err})
				break
			}
		}
		ctx, err := p.Auth(block, key, keyType, false)
		results = append(results, KeyProbeResult{Key: key, Success: err == nil, Context: ctx, Err: err})
		if err == nil {
			break
		}
		if IsNotPresent(err) {
			break
		}
	}
	return results
}

// FoundKey returns the key of the successful probe.
func FoundKey(results []KeyProbeResult) (Key, bool) {
	for _, r := range results {
		if r.Success {
			return r.Key, true
		}
	}
	return Key{}, false
}
