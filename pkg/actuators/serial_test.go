package actuators

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort is an in-memory serial port.
type fakePort struct {
	bytes.Buffer
	closed bool
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestSerialMotorDriver_WritesChangedSpeeds(t *testing.T) {
	port := &fakePort{}
	drv := NewSerialMotorDriver(port)
	ctx := context.Background()

	require.NoError(t, drv.SetSpeeds(ctx, []float64{100, 100.4, -50, 0}))
	assert.Equal(t, "1 0 100\n1 1 100\n1 2 -50\n1 3 0\n", port.String())

	port.Reset()
	require.NoError(t, drv.SetSpeeds(ctx, []float64{100, 120, -50, 0}))
	assert.Equal(t, "1 1 120\n", port.String())

	port.Reset()
	require.NoError(t, drv.Initialize(ctx))
	require.NoError(t, drv.SetSpeeds(ctx, []float64{100, 120, -50, 0}))
	assert.Equal(t, "1 0 100\n1 1 120\n1 2 -50\n1 3 0\n", port.String())
}

func TestSerialMotorDriver_Close(t *testing.T) {
	port := &fakePort{}
	drv := NewSerialMotorDriver(port)

	require.NoError(t, drv.Close())
	require.NoError(t, drv.Close())
	assert.True(t, port.closed)

	err := drv.SetSpeeds(context.Background(), []float64{1})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSerialMotorDriver_BehindController(t *testing.T) {
	port := &fakePort{}
	m := NewMotorController(NewSerialMotorDriver(port), 4, 3000)

	require.NoError(t, m.SetSpeeds(context.Background(), []float64{3500, 0, 0, 0}))
	assert.Contains(t, port.String(), "1 0 3000\n")
}
