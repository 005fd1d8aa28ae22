// Package state persists grumpy's incremental cache and pass history in
// SQLite, so a new process can reuse findings for unchanged files.
package state

import (
	"time"

	"github.com/leapstack-labs/grumpy/internal/engine"
)

// PassStatus is the lifecycle state of a recorded pass.
type PassStatus string

// Pass statuses.
const (
	PassStatusRunning   PassStatus = "running"
	PassStatusCompleted PassStatus = "completed"
	PassStatusFailed    PassStatus = "failed"
	PassStatusCancelled PassStatus = "cancelled"
)

// Pass is one recorded evaluation.
type Pass struct {
	ID          string     `json:"id"`
	Mode        string     `json:"mode"`
	Fingerprint string     `json:"fingerprint"`
	Status      PassStatus `json:"status"`
	Files       int        `json:"files"`
	Findings    int        `json:"findings"`
	Errors      int        `json:"errors"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// PassOutcome carries the counters recorded when a pass finishes.
type PassOutcome struct {
	Status   PassStatus
	Files    int
	Findings int
	Errors   int
	Err      error
}

// Store is the persistence surface used by the CLI.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	LoadCache(fingerprint string) (*engine.Cache, error)
	SaveCache(cache *engine.Cache) error

	StartPass(mode, fingerprint string) (*Pass, error)
	CompletePass(id string, outcome PassOutcome) error
	GetPass(id string) (*Pass, error)
	RecentPasses(limit int) ([]*Pass, error)
}

var _ Store = (*SQLiteStore)(nil)
