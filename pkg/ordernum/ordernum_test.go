package ordernum

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Format(t *testing.T) {
	number, err := New()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(number, Prefix))
	assert.Len(t, number, len(Prefix)+Length)
}

func TestNew_OnlyUnambiguousCharacters(t *testing.T) {
	for i := 0; i < 100; i++ {
		number, err := New()
		require.NoError(t, err)
		for _, c := range number[len(Prefix):] {
			assert.Contains(t, alphabet, string(c))
		}
	}
}

func TestNew_NoImmediateCollision(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		number, err := New()
		require.NoError(t, err)
		assert.False(t, seen[number], "generated a duplicate within 1000 draws: %s", number)
		seen[number] = true
	}
}
