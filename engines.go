package kv

import (
	"slices"

	"github.com/ostafen/kv/engine"
	"github.com/ostafen/kv/engine/badger"
	"github.com/ostafen/kv/engine/bbolt"
	"github.com/ostafen/kv/engine/lmdb"
	"github.com/ostafen/kv/engine/mdbx"
)

var engines = map[string]func(engine.Options) (engine.Env, error){
	"mdbx":   mdbx.Open,
	"lmdb":   lmdb.Open,
	"bbolt":  bbolt.Open,
	"badger": badger.Open,
}

// Engines lists the names accepted by WithEngine.
func Engines() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
