package oauth2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/utils"
)

func TestReauthFuse(t *testing.T) {
	t.Run("refuses within window of a success", func(t *testing.T) {
		clock := utils.NewFixedClock(testNow)
		fuse := NewReauthFuse(10*time.Second, clock)

		assert.NoError(t, fuse.Check("billing"))
		fuse.Record("billing")

		clock.Advance(5 * time.Second)
		err := fuse.Check("billing")
		assert.True(t, errors.IsType(err, errors.ErrTypeReauthTooFrequent))

		clock.Advance(5 * time.Second)
		assert.NoError(t, fuse.Check("billing"))
	})

	t.Run("checks without a success do not trip", func(t *testing.T) {
		fuse := NewReauthFuse(10*time.Second, utils.NewFixedClock(testNow))

		for i := 0; i < 5; i++ {
			assert.NoError(t, fuse.Check("billing"))
		}
	})

	t.Run("window restarts at the latest success", func(t *testing.T) {
		clock := utils.NewFixedClock(testNow)
		fuse := NewReauthFuse(10*time.Second, clock)

		fuse.Record("billing")
		clock.Advance(12 * time.Second)
		fuse.Record("billing")

		clock.Advance(8 * time.Second)
		assert.Error(t, fuse.Check("billing"))
		clock.Advance(2 * time.Second)
		assert.NoError(t, fuse.Check("billing"))
	})

	t.Run("applications are independent", func(t *testing.T) {
		fuse := NewReauthFuse(10*time.Second, utils.NewFixedClock(testNow))

		fuse.Record("billing")
		assert.NoError(t, fuse.Check("shipping"))
		assert.Error(t, fuse.Check("billing"))
	})

	t.Run("reset", func(t *testing.T) {
		fuse := NewReauthFuse(10*time.Second, utils.NewFixedClock(testNow))

		fuse.Record("billing")
		fuse.Reset()
		assert.NoError(t, fuse.Check("billing"))
	})

	t.Run("zero window disables", func(t *testing.T) {
		fuse := NewReauthFuse(0, utils.NewFixedClock(testNow))
		for i := 0; i < 5; i++ {
			fuse.Record("billing")
			assert.NoError(t, fuse.Check("billing"))
		}
	})
}
