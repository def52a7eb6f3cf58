package runner

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

var (
	// ErrRunFinalized is returned when appending to a run that was already finalized
	ErrRunFinalized = errors.New("run already finalized")
)

// Run captures one reporting cycle. Results are appended in completion order
// until the run is finalized, after which it is read-only.
type Run struct {
	ID             string
	StartTime      time.Time
	EndTime        time.Time
	ProjectAPIID   string
	ProjectVersion string
	Group          string
	Category       string // effective listener category, used to derive UID
	UID            string

	mu         sync.Mutex
	results    []types.TestDescriptor
	finalized  bool
	dispatched bool
}

// NewRun creates an empty run started at the given time
func NewRun(start time.Time) *Run {
	return &Run{
		ID:        uuid.New().String(),
		StartTime: start,
	}
}

// Append adds a descriptor to the run
func (r *Run) Append(d types.TestDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return ErrRunFinalized
	}
	r.results = append(r.results, d)
	return nil
}

// Results returns a copy of the descriptors in completion order
func (r *Run) Results() []types.TestDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.results)
}

// Len returns the number of descriptors in the run
func (r *Run) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// Stats counts passed and failed descriptors
func (r *Run) Stats() (passed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.results {
		if d.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Status returns the overall outcome of the run
func (r *Run) Status() types.TestStatus {
	passed, failed := r.Stats()
	switch {
	case failed > 0:
		return types.TestStatusFail
	case passed == 0:
		return types.TestStatusSkip
	default:
		return types.TestStatusPass
	}
}

// Duration returns the wall clock time of the run
func (r *Run) Duration() time.Duration {
	if r.EndTime.IsZero() || r.EndTime.Before(r.StartTime) {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Finalized reports whether the run stopped accepting results
func (r *Run) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

func (r *Run) finalize(end time.Time, uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndTime = end
	r.UID = uid
	r.finalized = true
}

// claim marks the run as handed to the dispatcher. It returns false when the
// run was already claimed.
func (r *Run) claim() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dispatched {
		return false
	}
	r.dispatched = true
	return true
}
