// Package perception converts detections into obstacles for navigation.
package perception

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-mechros/pkg/navigation"
)

// DefaultObstacleSize is the footprint given to detected obstacles.
var DefaultObstacleSize = r3.Vec{X: 0.5, Y: 0.5, Z: 1.0}

// Detection is one object reported by a vision source. Position is
// relative to the vehicle; detections without a position are ignored.
type Detection struct {
	Class      string  `json:"class"`
	Position   *r3.Vec `json:"position,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Source produces detections.
type Source interface {
	Detect(ctx context.Context) ([]Detection, error)
}

// Sink accepts obstacle batches. navigation.Inbox satisfies it.
type Sink interface {
	Offer(batch []navigation.Obstacle) bool
}

// Classify maps a detector label to an obstacle class.
func Classify(label string) navigation.ObstacleClass {
	switch strings.ToLower(label) {
	case "person":
		return navigation.Person
	case "car", "vehicle":
		return navigation.Vehicle
	case "wall":
		return navigation.Wall
	}
	return navigation.Unknown
}

// ToObstacles converts detections with a position into obstacles.
func ToObstacles(detections []Detection) []navigation.Obstacle {
	var out []navigation.Obstacle
	for _, d := range detections {
		if d.Position == nil {
			continue
		}
		out = append(out, navigation.Obstacle{
			Position:   *d.Position,
			Size:       DefaultObstacleSize,
			Class:      Classify(d.Class),
			Confidence: d.Confidence,
		})
	}
	return out
}

// Ingest polls a source and hands obstacles to navigation.
type Ingest struct {
	source Source
	sink   Sink
	logger *slog.Logger

	batches atomic.Int64
	dropped atomic.Int64
}

// NewIngest wires source to sink. A nil logger uses slog.Default().
func NewIngest(source Source, sink Sink, logger *slog.Logger) *Ingest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingest{source: source, sink: sink, logger: logger}
}

// Poll reads the source once. A read error is logged and the cycle
// skipped.
func (in *Ingest) Poll(ctx context.Context) error {
	if in.source == nil {
		return nil
	}

	detections, err := in.source.Detect(ctx)
	if err != nil {
		in.logger.Warn("detection failed", "error", err)
		return nil
	}

	obstacles := ToObstacles(detections)
	if len(obstacles) == 0 {
		return nil
	}

	in.batches.Add(1)
	if !in.sink.Offer(obstacles) {
		in.dropped.Add(1)
		in.logger.Debug("navigation inbox full, dropped oldest batch")
	}
	return nil
}

// Stats returns how many batches were handed over and how many older
// batches were dropped to make room.
func (in *Ingest) Stats() (batches, dropped int64) {
	return in.batches.Load(), in.dropped.Load()
}
