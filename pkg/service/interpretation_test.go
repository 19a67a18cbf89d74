package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/interpret"
)

func TestInterpretationService(t *testing.T) {
	svc := NewInterpretationService(newManager(t), interpret.DefaultConfig(), 0)
	ctx := context.Background()

	run, err := svc.Interpret(ctx, "sum", InterpretRequest{Solve: true, Graph: true})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, int64(3), run.Seed, "project seed applies")
	assert.Empty(t, run.Error)
	require.NotNil(t, run.Calculation)
	assert.Equal(t, 1, run.Calculation.Solved())
	assert.Len(t, run.Phases, 4)
	require.NotNil(t, run.Population)

	var missed []string
	for _, d := range run.Diagnostics {
		if d.Kind == errors.KindLookupMiss {
			assert.False(t, d.Fatal)
			missed = append(missed, d.Unit)
		}
	}
	assert.Contains(t, missed, "MultiplicityRange", "projection warnings reach the run")

	holders := run.Dict().Holders("total")
	require.Len(t, holders, 1)
	assert.Equal(t, 5.0, holders[0].Get())

	other, err := svc.Interpret(ctx, "sum", InterpretRequest{Seed: 3})
	require.NoError(t, err)
	assert.NotEqual(t, run.ID, other.ID)
	assert.Equal(t, run.Instances, other.Instances, "same seed, same population")
}

func TestInterpretationService_PartitionAndFilter(t *testing.T) {
	svc := NewInterpretationService(newManager(t), interpret.DefaultConfig(), 9)

	run, err := svc.Interpret(context.Background(), "engines", InterpretRequest{Features: []string{"engines"}})
	require.NoError(t, err)
	assert.Equal(t, int64(9), run.Seed)
	assert.Len(t, run.Instances, 1)
	assert.Len(t, run.Instances["engines"], 10)
	require.Len(t, run.Partitions, 1)
	assert.Equal(t, 10, run.Partitions[0].Total)

	_, err = svc.Interpret(context.Background(), "", InterpretRequest{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestInterpretationService_Cancelled(t *testing.T) {
	svc := NewInterpretationService(newManager(t), interpret.DefaultConfig(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Interpret(ctx, "rocket", InterpretRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
