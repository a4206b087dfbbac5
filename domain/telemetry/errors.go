package telemetry

import "errors"

// ErrUnknownExporter indicates an exporter name that is not supported.
var ErrUnknownExporter = errors.New("unknown exporter")
