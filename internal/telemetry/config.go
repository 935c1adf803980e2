package telemetry

// Config controls whether and how replica handler invocations are
// traced. Grounded on the teacher's internal/telemetry.Config, minus
// the OTLP endpoint fields: this engine has no outbound network
// exporter (see DESIGN.md), so spans are recorded in-process via a
// logging exporter instead of shipped to a collector.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	SampleRate     float64
}

func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "vrd",
		ServiceVersion: "dev",
		SampleRate:     1.0,
	}
}
