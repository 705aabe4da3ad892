package sql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"mailme/backend/internal/config"
	"mailme/backend/internal/domain"
)

func TestChunk(t *testing.T) {
	t.Run("空列表", func(t *testing.T) {
		assert.Empty(t, chunk(nil, 3))
	})

	t.Run("按批次切分", func(t *testing.T) {
		ids := make([]string, 7)
		for i := range ids {
			ids[i] = fmt.Sprintf("m-%d", i)
		}
		batches := chunk(ids, 3)
		assert.Len(t, batches, 3)
		assert.Len(t, batches[0], 3)
		assert.Len(t, batches[2], 1)
		assert.Equal(t, "m-6", batches[2][0])
	})
}

func TestUnavailable(t *testing.T) {
	err := unavailable(errors.New("connection refused"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	_, err := NewStore(t.Context(), config.DatabaseConfig{Type: "sqlite"})
	assert.Error(t, err)
}
