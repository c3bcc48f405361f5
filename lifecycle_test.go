package tradebook

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_Grid(t *testing.T) {
	legal := map[Event]Status{
		EventAmend:     Amended,
		EventSupersede: Superseded,
		EventCancel:    Cancelled,
		EventNet:       Netted,
		EventNovate:    Novated,
	}
	for _, from := range []Status{New, Amended, Superseded, Cancelled, Netted, Novated} {
		for _, ev := range Events {
			t.Run(string(from)+"/"+string(ev), func(t *testing.T) {
				to, err := Transition(from, ev)
				if from == New || from == Amended {
					require.NoError(t, err)
					assert.Equal(t, legal[ev], to)
					return
				}
				var invalid *InvalidTransitionError
				require.True(t, errors.As(err, &invalid))
				assert.Equal(t, from, invalid.From)
				assert.Equal(t, ev, invalid.Event)
				assert.Equal(t, from, to)
			})
		}
	}
}

func TestTransaction_Apply(t *testing.T) {
	tx := trade("t1", "B1", Buy, "100", "10")
	require.NoError(t, tx.Apply(EventCancel))
	assert.Equal(t, Cancelled, tx.Status)

	err := tx.Apply(EventAmend)
	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "t1", invalid.TransactionID)
	assert.Equal(t, tenant, invalid.AssetManagerID)
	assert.Equal(t, Cancelled, tx.Status, "status must not change on a rejected event")
}

func TestSupersede(t *testing.T) {
	prev := trade("t1", "B1", Buy, "100", "10")

	amended := prev.Clone()
	amended.Status = Amended
	old := Supersede(prev, amended)
	assert.Equal(t, Superseded, old.Status)
	assert.Equal(t, New, prev.Status, "prev is not modified")

	cancelled := prev.Clone()
	cancelled.Status = Cancelled
	assert.Same(t, prev, Supersede(prev, cancelled))
}
