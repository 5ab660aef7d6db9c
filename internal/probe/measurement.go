// Package probe wraps the external measurement tools a benchmark run
// depends on: ICMP sampling, iperf3, speedtest servers and host inventory.
package probe

import "fmt"

// Measurement stages reported by MeasurementError.
const (
	StageICMP       = "icmp"
	StageThroughput = "throughput"
	StageJitter     = "jitter"
	StageSystemInfo = "system-info"
)

// MeasurementError represents an error at a specific stage
type MeasurementError struct {
	Stage   string
	Message string
	Err     error
}

func (e *MeasurementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Stage, e.Message)
}

func (e *MeasurementError) Unwrap() error {
	return e.Err
}

func stageError(stage, message string, err error) *MeasurementError {
	return &MeasurementError{Stage: stage, Message: message, Err: err}
}
