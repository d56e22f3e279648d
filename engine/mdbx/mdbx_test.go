package mdbx

import (
	"testing"

	"github.com/ostafen/kv/engine"
	"github.com/ostafen/kv/engine/enginetest"
)

func TestConformance(t *testing.T) {
	enginetest.Run(t, Open, engine.IntegerKey | engine.DupSort | engine.ReverseKey)
}
