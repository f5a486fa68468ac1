package bitfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndHas(t *testing.T) {
	bf := New(10)
	assert.False(t, bf.Has(0))
	bf.Set(0)
	bf.Set(9)
	assert.True(t, bf.Has(0))
	assert.True(t, bf.Has(9))
	assert.False(t, bf.Has(1))
}

func TestMSBFirstConvention(t *testing.T) {
	bf := New(8)
	bf.Set(0)
	assert.Equal(t, byte(0b10000000), bf[0])
	bf2 := New(8)
	bf2.Set(7)
	assert.Equal(t, byte(0b00000001), bf2[0])
}

func TestPopCount(t *testing.T) {
	bf := New(16)
	bf.Set(0)
	bf.Set(3)
	bf.Set(15)
	assert.Equal(t, 3, bf.PopCount())
}

func TestHasAnyNotIn(t *testing.T) {
	peer := New(8)
	peer.Set(0)
	have := New(8)
	assert.True(t, HasAnyNotIn(peer, have))
	have.Set(0)
	assert.False(t, HasAnyNotIn(peer, have))
}

func TestByteLen(t *testing.T) {
	assert.Equal(t, 0, ByteLen(0))
	assert.Equal(t, 1, ByteLen(1))
	assert.Equal(t, 1, ByteLen(8))
	assert.Equal(t, 2, ByteLen(9))
}
