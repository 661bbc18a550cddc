package actuators

import (
	"context"
	"errors"
	"sync"
	"time"
)

// mockHardware implements every driver interface and records calls.
type mockHardware struct {
	mu sync.Mutex

	motorCalls   [][]float64
	servoCalls   [][]float64
	gripperCalls []float64
	ledCalls     []LEDCommand
	tones        []SpeakerCommand
	inits        int

	motorErr error
	servoErr error
	initErr  error
	ledPanic bool

	// stallGripper and stallMotors block those calls until released.
	stallGripper chan struct{}
	stallMotors  chan struct{}
}

func (m *mockHardware) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inits++
	return m.initErr
}

func (m *mockHardware) SetSpeeds(ctx context.Context, rpm []float64) error {
	if m.stallMotors != nil {
		<-m.stallMotors
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.motorCalls = append(m.motorCalls, append([]float64(nil), rpm...))
	return m.motorErr
}

func (m *mockHardware) SetAngles(ctx context.Context, degrees []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servoCalls = append(m.servoCalls, append([]float64(nil), degrees...))
	return m.servoErr
}

func (m *mockHardware) SetPosition(ctx context.Context, position, force float64) error {
	if m.stallGripper != nil {
		<-m.stallGripper
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gripperCalls = append(m.gripperCalls, position)
	return nil
}

func (m *mockHardware) SetLED(ctx context.Context, id int, r, g, b, brightness uint8) error {
	if m.ledPanic {
		panic("led strip fault")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledCalls = append(m.ledCalls, LEDCommand{ID: id, R: r, G: g, B: b, Brightness: brightness})
	return nil
}

func (m *mockHardware) PlayTone(ctx context.Context, frequency float64, duration time.Duration, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tones = append(m.tones, SpeakerCommand{Frequency: frequency, Duration: duration, Volume: volume})
	return nil
}

func (m *mockHardware) motors() [][]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]float64(nil), m.motorCalls...)
}

func (m *mockHardware) leds() []LEDCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LEDCommand(nil), m.ledCalls...)
}

func (m *mockHardware) speaker() []SpeakerCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SpeakerCommand(nil), m.tones...)
}

func (m *mockHardware) drivers() Drivers {
	return Drivers{Motors: m, Servos: m, Gripper: m, LEDs: m, Speaker: m}
}

// sleepRecorder is a Sleeper that returns immediately.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *sleepRecorder) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, w := range s.waits {
		sum += w
	}
	return sum
}

// recordingPublisher captures published payloads.
type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []string
}

func (p *recordingPublisher) Publish(topic string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, string(data))
	return nil
}

func (p *recordingPublisher) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.payloads) == 0 {
		return ""
	}
	return p.payloads[len(p.payloads)-1]
}

var errBus = errors.New("bus fault")
