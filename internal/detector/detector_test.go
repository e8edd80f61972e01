package detector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"finassist/internal/core"
)

func TestRegistry_Chain(t *testing.T) {
	r := NewRegistry(NewWindowDetector(), NewOutlierDetector(nil))

	chain := r.Chain(core.MethodIsolationForest, "unknown", core.MethodStatisticalWindow)
	if assert.Len(t, chain, 2) {
		assert.Equal(t, core.MethodIsolationForest, chain[0].Method())
		assert.Equal(t, core.MethodStatisticalWindow, chain[1].Method())
	}

	_, ok := r.Get("unknown")
	assert.False(t, ok)
	d, ok := r.Get(core.MethodStatisticalWindow)
	assert.True(t, ok)
	assert.IsType(t, &WindowDetector{}, d)
}

type stubDetector struct{ method core.Method }

func (s stubDetector) Method() core.Method { return s.method }
func (stubDetector) Detect(context.Context, string, []core.Transaction) ([]core.Anomaly, error) {
	return nil, nil
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry(NewWindowDetector())
	r.Register(stubDetector{method: core.MethodStatisticalWindow})
	d, _ := r.Get(core.MethodStatisticalWindow)
	assert.IsType(t, stubDetector{}, d)
}

func TestIsModelFailure(t *testing.T) {
	assert.True(t, IsModelFailure(fmt.Errorf("wrap: %w", ErrInsufficientSignal)))
	assert.True(t, IsModelFailure(ErrDegenerateScores))
	assert.False(t, IsModelFailure(errors.New("disk full")))
	assert.False(t, IsModelFailure(nil))
}
