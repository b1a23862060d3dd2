package editor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

func TestFanout_KeepsSubmissionOrder(t *testing.T) {
	f := newFanout(0)
	for i := int64(1); i <= 5; i++ {
		f.Go(StepDelete, topology.CategoryStreams, i, func() (*entitystore.Entity, error) {
			// later requests finish first
			time.Sleep(time.Duration(6-i) * time.Millisecond)
			return &entitystore.Entity{ID: i}, nil
		})
	}
	res := f.Wait()

	require.Equal(t, 5, res.Len())
	for i, o := range res.Outcomes {
		assert.Equal(t, int64(i+1), o.ID)
		assert.Equal(t, int64(i+1), o.Entity.ID)
	}
	assert.True(t, res.OK())
	assert.NoError(t, res.Err())
}

func TestFanout_FailuresDoNotCancelSiblings(t *testing.T) {
	var ran atomic.Int32
	rejected := &errors.RemoteError{Code: 1000, Message: "stream in use"}

	f := newFanout(0)
	f.Go(StepDeleteStream, topology.CategoryStreams, 1, func() (*entitystore.Entity, error) {
		ran.Add(1)
		return nil, rejected
	})
	for i := int64(2); i <= 4; i++ {
		f.Go(StepDeleteEdge, topology.CategoryEdges, i, func() (*entitystore.Entity, error) {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
			return &entitystore.Entity{ID: i}, nil
		})
	}
	res := f.Wait()

	assert.Equal(t, int32(4), ran.Load())
	assert.False(t, res.OK())
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, StepDeleteStream, failed[0].Step)
	assert.ErrorIs(t, res.Err(), rejected)
}

func TestFanout_Limit(t *testing.T) {
	var inFlight, peak atomic.Int32
	f := newFanout(2)
	for i := int64(1); i <= 6; i++ {
		f.Go(StepFetch, topology.CategoryRules, i, func() (*entitystore.Entity, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		})
	}
	res := f.Wait()

	assert.Equal(t, 6, res.Len())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFanout_Run(t *testing.T) {
	f := newFanout(0)
	f.Run(func(record func(Outcome)) {
		record(Outcome{Step: StepList, Category: topology.CategoryRules})
		record(Outcome{Step: StepStripAction, Category: topology.CategoryRules, ID: 7})
	})
	res := f.Wait()

	require.Equal(t, 2, res.Len())
	o, ok := res.Find(StepStripAction, 7)
	require.True(t, ok)
	assert.Equal(t, topology.CategoryRules, o.Category)
}

func TestBatchResult_Merge(t *testing.T) {
	var a, b BatchResult
	a.add(Outcome{Step: StepFetch, ID: 1})
	b.add(Outcome{Step: StepDelete, ID: 1, Err: errors.ErrNodeNotFound})
	a.merge(b)

	assert.Equal(t, 2, a.Len())
	assert.Len(t, a.Failed(), 1)
	_, ok := a.Find(StepUpdate, 1)
	assert.False(t, ok)
	assert.Contains(t, a.Failed()[0].String(), "node not found")
}
