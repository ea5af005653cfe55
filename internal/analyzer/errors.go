// Package analyzer holds the failure taxonomy shared by every external analyzer backend.
package analyzer

import "errors"

var (
	ErrProviderUnavailable = errors.New("analyzer unavailable")
	ErrInferenceTimeout    = errors.New("analyzer timeout")
	ErrInvalidResponse     = errors.New("analyzer returned invalid response")
)

// Failure codes recorded on failed jobs.
const (
	CodeUnavailable     = "ANALYZER_UNAVAILABLE"
	CodeTimeout         = "ANALYZER_TIMEOUT"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeAnalysisFailed  = "ANALYSIS_FAILED"
)

// ErrorCode maps an analyzer failure onto the code stored with a failed job.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInferenceTimeout):
		return CodeTimeout
	case errors.Is(err, ErrProviderUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrInvalidResponse):
		return CodeInvalidResponse
	default:
		return CodeAnalysisFailed
	}
}
