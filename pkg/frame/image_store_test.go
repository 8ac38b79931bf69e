package frame

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageStore_Create_thenRevoke(t *testing.T) {
	s := NewImageStore()
	data := pngBytes(t, 8, 6)

	ref, err := s.Create(data, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, ref.ID)
	assert.Equal(t, len(data), ref.Size)

	got, gotRef, ok := s.Get(ref.ID)
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.Same(t, ref, gotRef)

	assert.True(t, s.Revoke(ref.ID))
	assert.False(t, s.Revoke(ref.ID))
	_, _, ok = s.Get(ref.ID)
	assert.False(t, ok)
}

func TestImageStore_Create_rejectsGarbage(t *testing.T) {
	s := NewImageStore()
	_, err := s.Create([]byte{0x00, 0x01, 0x02}, time.Now())
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}
