package random_test

import (
	"testing"

	"chaos-stories/pkg/random"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r, err := random.New()
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		v := r.IntN(11)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 11)
	}
}

func TestSeededIsReproducible(t *testing.T) {
	a, b := random.Seeded(42), random.Seeded(42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
	}
}
