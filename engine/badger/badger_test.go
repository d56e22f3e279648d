package badger

import (
	"testing"

	"github.com/ostafen/kv/engine"
	"github.com/ostafen/kv/engine/enginetest"
	"github.com/stretchr/testify/require"
)

func TestConformance(t *testing.T) {
	enginetest.Run(t, Open, engine.IntegerKey)
}

func TestBucketEnd(t *testing.T) {
	env := &badgerEnv{}

	b, err := env.OpenBucket("ab", 0)
	require.NoError(t, err)
	bb := b.(*badgerBucket)
	require.Equal(t, []byte{2, 'a', 'b'}, bb.prefix)
	require.Equal(t, []byte{2, 'a', 'c'}, bb.end())

	b, err = env.OpenBucket("a\xff", 0)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 'b'}, b.(*badgerBucket).end())

	b, err = env.OpenBucket("", 0)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, b.(*badgerBucket).end())
}
