//go:build !linux

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLandlockUnsupportedOffLinux(t *testing.T) {
	l := NewLandlock(Options{})
	assert.ErrorIs(t, l.Available(), ErrUnsupportedPlatform)
	assert.ErrorIs(t, l.Exec([]string{"ls"}, "", Select(false, nil)), ErrUnsupportedPlatform)
}
