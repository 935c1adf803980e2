package statemachine

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vrlabs/vrd/internal/op"
)

func TestCounterAppliesAdd(t *testing.T) {
	c := NewCounter()

	reply := c.Apply(op.Add{Value: 7})
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(reply))

	reply = c.Apply(op.Add{Value: 3})
	assert.Equal(t, uint64(10), binary.LittleEndian.Uint64(reply))
	assert.Equal(t, uint64(10), c.Total())
}

func TestCounterNopIsNoop(t *testing.T) {
	c := NewCounter()
	c.Apply(op.Add{Value: 5})

	reply := c.Apply(op.Nop{})
	assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(reply))
}
