package ierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	cause := errors.New("token expired")

	t.Run("message and unwrap", func(t *testing.T) {
		err := New(ErrorCodeUnauthenticated, cause)

		assert.Equal(t, "Unauthenticated: token expired", err.Error())
		assert.Equal(t, "token expired", err.Message)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("code of wrapped error", func(t *testing.T) {
		err := fmt.Errorf("resolve: %w", New(ErrorCodeUnavailable, cause))

		assert.Equal(t, ErrorCodeUnavailable, CodeOf(err))
	})

	t.Run("code of plain error", func(t *testing.T) {
		assert.Equal(t, ErrorCodeInternal, CodeOf(cause))
	})
}
