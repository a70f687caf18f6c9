package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"orders", "created"}, Split("orders/created"))
	assert.Equal(t, []string{"orders"}, Split("orders"))
	assert.Nil(t, Split(""))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "orders/created", Join("orders", "created"))
	assert.Equal(t, "orders", Join("orders"))
}

func TestHasWildcard(t *testing.T) {
	assert.True(t, HasWildcard("orders/*"))
	assert.True(t, HasWildcard("orders/**"))
	assert.False(t, HasWildcard("orders/created"))
}
