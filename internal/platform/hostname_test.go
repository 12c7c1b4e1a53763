package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWWWAlias(t *testing.T) {
	assert.Equal(t, "www.shop.test", WWWAlias("shop.test"))
}

func TestWWWAlias_AlreadyWWW(t *testing.T) {
	assert.Equal(t, "", WWWAlias("www.shop.test"))
}
