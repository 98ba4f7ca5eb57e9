package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tianzhicdev/dogetionary-sub008/pkg/download"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeKind
	}{
		{"nil", nil, OutcomeSuccess},
		{"skip", Skip("no audio"), OutcomeSkip},
		{"expired download", fmt.Errorf("fetch: %w", download.ErrExpiredReference), OutcomeSkip},
		{"expired code", apperrors.ExpiredReference("c1", errors.New("gone")), OutcomeSkip},
		{"config", apperrors.ConfigRequired("scoring.api_key"), OutcomeFatal},
		{"throttled", apperrors.Throttled("catalog", errors.New("429")), OutcomeRetryable},
		{"transient", apperrors.TransientIO("download", errors.New("reset")), OutcomeRetryable},
		{"deadline", context.DeadlineExceeded, OutcomeRetryable},
		{"unknown", errors.New("weird"), OutcomeRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err).Kind)
		})
	}
}

func TestSkipReason(t *testing.T) {
	outcome := Classify(fmt.Errorf("verify: %w", Skip("no speech")))
	assert.Equal(t, "no speech", outcome.Reason)
	assert.Equal(t, "skip", outcome.Kind.String())
}
