package sync

import (
	"sync"
	"time"
)

// State is the coordinator pass state exposed to observers.
type State string

const (
	StateIdle                    State = "idle"
	StateFetchingFolders         State = "fetching_folders"
	StateFetchingFeeds           State = "fetching_feeds"
	StateSendingStatuses         State = "sending_statuses"
	StateFetchingStatusSets      State = "fetching_status_sets"
	StateFetchingArticles        State = "fetching_articles"
	StateFetchingMissingArticles State = "fetching_missing_articles"
	StateSuspended               State = "suspended"
	StateFailed                  State = "failed"
)

// Progress is one account's pass snapshot. TasksCompleted never exceeds
// TasksTotal; both reset when a new pass starts.
type Progress struct {
	AccountID      string    `json:"account_id"`
	State          State     `json:"state"`
	TasksCompleted int       `json:"tasks_completed"`
	TasksTotal     int       `json:"tasks_total"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Tracker aggregates pass progress across accounts and fans updates out to
// observers. Observers are called synchronously; they must not block.
type Tracker struct {
	mu        sync.Mutex
	progress  map[string]Progress
	observers []func(Progress)
}

func NewTracker() *Tracker {
	return &Tracker{
		progress: make(map[string]Progress),
	}
}

func (t *Tracker) AddObserver(obs func(Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, obs)
}

func (t *Tracker) update(accountID string, mutate func(*Progress)) {
	t.mu.Lock()
	p := t.progress[accountID]
	p.AccountID = accountID
	mutate(&p)
	p.UpdatedAt = time.Now().UTC()
	t.progress[accountID] = p
	observers := make([]func(Progress), len(t.observers))
	copy(observers, t.observers)
	t.mu.Unlock()

	for _, obs := range observers {
		obs(p)
	}
}

// Begin resets the account's counters for a new pass with the given number
// of planned tasks.
func (t *Tracker) Begin(accountID string, totalTasks int) {
	t.update(accountID, func(p *Progress) {
		p.State = StateIdle
		p.TasksCompleted = 0
		p.TasksTotal = totalTasks
		p.Error = ""
	})
}

func (t *Tracker) SetState(accountID string, state State) {
	t.update(accountID, func(p *Progress) {
		p.State = state
	})
}

// CompleteTask advances the completed counter by one.
func (t *Tracker) CompleteTask(accountID string) {
	t.update(accountID, func(p *Progress) {
		if p.TasksCompleted < p.TasksTotal {
			p.TasksCompleted++
		}
	})
}

// AddTasks grows the planned total mid-pass, for steps whose size is only
// known once pagination starts.
func (t *Tracker) AddTasks(accountID string, n int) {
	t.update(accountID, func(p *Progress) {
		p.TasksTotal += n
	})
}

// Finish returns the account to idle with all tasks completed.
func (t *Tracker) Finish(accountID string) {
	t.update(accountID, func(p *Progress) {
		p.State = StateIdle
		p.TasksCompleted = p.TasksTotal
	})
}

func (t *Tracker) Fail(accountID string, err error) {
	t.update(accountID, func(p *Progress) {
		p.State = StateFailed
		if err != nil {
			p.Error = err.Error()
		}
	})
}

func (t *Tracker) Suspend(accountID string) {
	t.update(accountID, func(p *Progress) {
		p.State = StateSuspended
	})
}

// Snapshot returns the current progress of one account.
func (t *Tracker) Snapshot(accountID string) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.progress[accountID]
	if !ok {
		return Progress{AccountID: accountID, State: StateIdle}
	}
	return p
}

// Snapshots returns the progress of every tracked account.
func (t *Tracker) Snapshots() []Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Progress, 0, len(t.progress))
	for _, p := range t.progress {
		out = append(out, p)
	}
	return out
}
