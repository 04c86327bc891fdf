package slot

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysAreDeterministicAndDistinct(t *testing.T) {
	require.Equal(t, ListKey(0, 5), ListKey(0, 5))
	assert.NotEqual(t, ListKey(0, 5), ListKey(1, 5), "side must separate namespaces")
	assert.NotEqual(t, ListKey(0, 5), ListKey(0, 6), "index must separate namespaces")
	assert.NotEqual(t, BitmapGroupKey(5), ListKey(0, 5), "different kinds never collide")

	trader := common.HexToAddress("0x1111111111111111111111111111111111111111"[:42])
	token := common.HexToAddress("0x2222222222222222222222222222222222222222"[:42])
	assert.NotEqual(t, TraderKey(trader, token), TraderKey(token, trader))
}

func TestWriteIfChangedSkipsUnchangedValues(t *testing.T) {
	s := NewMemoryStorage()
	key := MarketKey()

	var v Value
	v[0] = 1

	wrote := WriteIfChanged(s, key, v)
	require.True(t, wrote)
	require.Equal(t, 1, s.Writes)

	wrote = WriteIfChanged(s, key, v)
	assert.False(t, wrote, "identical value must not be re-stored")
	assert.Equal(t, 1, s.Writes)

	v[1] = 2
	wrote = WriteIfChanged(s, key, v)
	assert.True(t, wrote)
	assert.Equal(t, 2, s.Writes)
}
