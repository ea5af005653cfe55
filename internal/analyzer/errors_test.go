package analyzer_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kiranshivaraju/analyzr/internal/analyzer"
	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", analyzer.ErrInferenceTimeout, analyzer.CodeTimeout},
		{"wrapped timeout", fmt.Errorf("%w: deadline", analyzer.ErrInferenceTimeout), analyzer.CodeTimeout},
		{"unavailable", fmt.Errorf("%w: status 503", analyzer.ErrProviderUnavailable), analyzer.CodeUnavailable},
		{"invalid", analyzer.ErrInvalidResponse, analyzer.CodeInvalidResponse},
		{"anything else", errors.New("boom"), analyzer.CodeAnalysisFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, analyzer.ErrorCode(tt.err))
		})
	}
}
