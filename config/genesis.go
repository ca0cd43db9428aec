package config

import (
	"github.com/tolelom/tolchain/clock"
)

// Genesis returns the canonical, identical-on-every-node genesis entry a
// new ChainStore seeds itself with (spec.md §6). It is a thin wrapper over
// clock.GenesisEntry so callers that only import config (e.g. RPC status
// handlers reporting the expected genesis reference) don't need to reach
// into clock directly.
func Genesis() clock.ChainEntry {
	return clock.GenesisEntry()
}
