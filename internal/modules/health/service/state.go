package service

import (
	"sync"
	"sync/atomic"
	"time"

	"trade_executor/internal/models"
)

const recentLimit = 20

type Mode string

const (
	ModeRunning Mode = "running"
	ModePaused  Mode = "paused"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  atomic.Bool
	lastTickUnix atomic.Int64 // unix seconds

	paused     atomic.Bool
	executions atomic.Int64
	failures   atomic.Int64
	lastExec   atomic.Int64

	mu     sync.Mutex
	recent []models.ExecutionResult // новые в начале
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time   { return unixOrZero(s.lastTickUnix.Load()) }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

func (s *State) SetPaused(v bool) { s.paused.Store(v) }
func (s *State) Accepting() bool  { return !s.paused.Load() }

func (s *State) Mode() Mode {
	if s.paused.Load() {
		return ModePaused
	}
	return ModeRunning
}

// Record учитывает результат исполнения; в памяти держим только последние recentLimit.
func (s *State) Record(res models.ExecutionResult) {
	s.executions.Add(1)
	if !res.Success {
		s.failures.Add(1)
	}
	s.lastExec.Store(res.Timestamp.Unix())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append([]models.ExecutionResult{res}, s.recent...)
	if len(s.recent) > recentLimit {
		s.recent = s.recent[:recentLimit]
	}
}

func (s *State) Executions() int64        { return s.executions.Load() }
func (s *State) Failures() int64          { return s.failures.Load() }
func (s *State) LastExecution() time.Time { return unixOrZero(s.lastExec.Load()) }

func (s *State) Recent() []models.ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ExecutionResult(nil), s.recent...)
}

func unixOrZero(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}
