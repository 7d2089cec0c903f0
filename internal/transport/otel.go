package transport

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/owl/internal/transport"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
