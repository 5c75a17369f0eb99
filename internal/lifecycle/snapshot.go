package lifecycle

import (
	"sync"
	"time"

	"waterflow.dev/waterflow/internal/queue"
)

// Snapshot is the owned, inspectable state of the worker: the job in flight,
// recent outcomes, and the last observed queue content. It is passed by
// reference into jobs and exposed read-only through View; nothing here is
// process-global.
type Snapshot struct {
	mu sync.RWMutex

	currentPR    int
	currentState string
	pending      int
	outcomes     []OutcomeRecord
	lanes        []LaneView
}

// OutcomeRecord is one finished job's result.
type OutcomeRecord struct {
	PRID     int
	Kind     OutcomeKind
	Code     int
	Message  string
	Finished time.Time
}

// LaneView is one queue lane as last observed.
type LaneView struct {
	Version string
	Master  string
	Entries []string
}

// View is a point-in-time copy of the snapshot.
type View struct {
	CurrentPR    int
	CurrentState string
	Pending      int
	Outcomes     []OutcomeRecord
	Lanes        []LaneView
}

const outcomeHistory = 50

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

func (s *Snapshot) setJobState(prID int, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPR = prID
	s.currentState = state
}

func (s *Snapshot) setPending(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = n
}

func (s *Snapshot) recordOutcome(prID int, out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPR = 0
	s.currentState = ""
	s.outcomes = append(s.outcomes, OutcomeRecord{
		PRID:     prID,
		Kind:     out.Kind,
		Code:     out.Code,
		Message:  out.Message,
		Finished: time.Now(),
	})
	if len(s.outcomes) > outcomeHistory {
		s.outcomes = s.outcomes[len(s.outcomes)-outcomeHistory:]
	}
}

func (s *Snapshot) setQueue(lanes []*queue.Lane) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lanes = s.lanes[:0]
	for _, l := range lanes {
		view := LaneView{Version: l.Version.String()}
		if l.Master != nil {
			view.Master = l.Master.Name()
		}
		for _, e := range l.Entries {
			view.Entries = append(view.Entries, e.Name())
		}
		s.lanes = append(s.lanes, view)
	}
}

// View returns a copy safe to read without further locking.
func (s *Snapshot) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := View{
		CurrentPR:    s.currentPR,
		CurrentState: s.currentState,
		Pending:      s.pending,
		Outcomes:     append([]OutcomeRecord(nil), s.outcomes...),
	}
	for _, l := range s.lanes {
		v.Lanes = append(v.Lanes, LaneView{
			Version: l.Version,
			Master:  l.Master,
			Entries: append([]string(nil), l.Entries...),
		})
	}
	return v
}
