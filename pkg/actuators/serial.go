package actuators

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"go.bug.st/serial"
)

// SerialMotorDriver drives motors through a microcontroller speaking a
// line protocol: "1 <motor> <rpm>\n" sets one motor. Only speeds that
// changed since the last write are sent.
type SerialMotorDriver struct {
	port io.ReadWriteCloser

	mu    sync.Mutex
	out   *bufio.Writer
	cache map[int]int
}

// OpenSerialMotors opens the configured serial port.
func OpenSerialMotors(cfg SerialConfig) (*SerialMotorDriver, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	return NewSerialMotorDriver(port), nil
}

// NewSerialMotorDriver wraps an already open port.
func NewSerialMotorDriver(port io.ReadWriteCloser) *SerialMotorDriver {
	return &SerialMotorDriver{
		port:  port,
		out:   bufio.NewWriter(port),
		cache: make(map[int]int),
	}
}

// Initialize forgets cached speeds so the next SetSpeeds writes every motor.
func (s *SerialMotorDriver) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cache)
	return nil
}

// SetSpeeds writes the changed speeds and flushes.
func (s *SerialMotorDriver) SetSpeeds(ctx context.Context, rpm []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrNotConnected
	}

	for i, v := range rpm {
		val := int(math.Round(v))
		if old, ok := s.cache[i]; ok && old == val {
			continue
		}
		if _, err := fmt.Fprintf(s.out, "1 %d %d\n", i, val); err != nil {
			return fmt.Errorf("motor %d: %w", i, err)
		}
		s.cache[i] = val
	}

	if err := s.out.Flush(); err != nil {
		clear(s.cache)
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Close closes the port.
func (s *SerialMotorDriver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
