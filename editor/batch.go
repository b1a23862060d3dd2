package editor

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

// Step names one remote request within a batch
type Step string

// Batch steps
const (
	StepCreate       Step = "create"
	StepCreateEdge   Step = "create-edge"
	StepFetch        Step = "fetch"
	StepList         Step = "list"
	StepUpdate       Step = "update"
	StepStripAction  Step = "strip-action"
	StepClearJoin    Step = "clear-join"
	StepDelete       Step = "delete"
	StepPutMetaInfo  Step = "put-metainfo"
	StepLookup       Step = "lookup"
	StepDeleteStream Step = "delete-stream"
	StepDeleteRule   Step = "delete-rule"
	StepDeleteEdge   Step = "delete-edge"
)

// Outcome is the result of one request within a batch
type Outcome struct {
	Step     Step                `json:"step"`
	Category topology.Category   `json:"category,omitempty"`
	ID       int64               `json:"id,omitempty"`
	Entity   *entitystore.Entity `json:"-"`
	Err      error               `json:"-"`
}

// Failed reports whether the request failed
func (o Outcome) Failed() bool {
	return o.Err != nil
}

func (o Outcome) String() string {
	status := "ok"
	if o.Err != nil {
		status = o.Err.Error()
	}
	return fmt.Sprintf("%s %s#%d: %s", o.Step, o.Category, o.ID, status)
}

// BatchResult aggregates the outcomes of a fan-out of remote requests.
// Failures are reported, never retried and never rolled back.
type BatchResult struct {
	Outcomes []Outcome `json:"outcomes"`
}

// Len returns the number of requests in the batch
func (b BatchResult) Len() int {
	return len(b.Outcomes)
}

// Failed returns the outcomes that carry an error
func (b BatchResult) Failed() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// OK reports whether every request succeeded
func (b BatchResult) OK() bool {
	return len(b.Failed()) == 0
}

// Err joins the errors of every failed request, or returns nil
func (b BatchResult) Err() error {
	var errs []error
	for _, o := range b.Failed() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}

// Find returns the first outcome for step and id
func (b BatchResult) Find(step Step, id int64) (Outcome, bool) {
	for _, o := range b.Outcomes {
		if o.Step == step && o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

func (b *BatchResult) add(o Outcome) {
	b.Outcomes = append(b.Outcomes, o)
}

func (b *BatchResult) merge(other BatchResult) {
	b.Outcomes = append(b.Outcomes, other.Outcomes...)
}

// fanout issues requests concurrently and joins them. Siblings are never
// cancelled: every request runs to completion and lands in the result.
type fanout struct {
	g   errgroup.Group
	mu  sync.Mutex
	res BatchResult
}

func newFanout(limit int) *fanout {
	f := &fanout{}
	if limit > 0 {
		f.g.SetLimit(limit)
	}
	return f
}

// Go runs one request. The outcome keeps its submission slot so results
// read in the order requests were issued.
func (f *fanout) Go(step Step, category topology.Category, id int64, call func() (*entitystore.Entity, error)) {
	f.mu.Lock()
	slot := len(f.res.Outcomes)
	f.res.add(Outcome{Step: step, Category: category, ID: id})
	f.mu.Unlock()

	f.g.Go(func() error {
		e, err := call()
		f.mu.Lock()
		defer f.mu.Unlock()
		o := &f.res.Outcomes[slot]
		o.Entity, o.Err = e, err
		if o.ID == 0 && e != nil {
			o.ID = e.ID
		}
		return nil
	})
}

// Run runs a multi-request task that records its own outcomes
func (f *fanout) Run(task func(record func(Outcome))) {
	f.g.Go(func() error {
		task(func(o Outcome) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.res.add(o)
		})
		return nil
	})
}

// Wait blocks until every request has settled
func (f *fanout) Wait() BatchResult {
	_ = f.g.Wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.res
}
