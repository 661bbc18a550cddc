package safety

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/teslashibe/go-mechros/pkg/safety"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
