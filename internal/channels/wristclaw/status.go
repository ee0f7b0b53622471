package wristclaw

import (
	"sync"
	"time"
)

// StatusSnapshot is the monitor's externally visible health state.
type StatusSnapshot struct {
	AccountID      string    `json:"account_id"`
	Running        bool      `json:"running"`
	LastError      string    `json:"last_error,omitempty"`
	LastStartAt    time.Time `json:"last_start_at,omitempty"`
	LastStopAt     time.Time `json:"last_stop_at,omitempty"`
	LastInboundAt  time.Time `json:"last_inbound_at,omitempty"`
	LastOutboundAt time.Time `json:"last_outbound_at,omitempty"`
}

// statusSink accumulates liveness signals from one monitor. Safe for
// concurrent use.
type statusSink struct {
	mu   sync.Mutex
	snap StatusSnapshot
}

func newStatusSink(accountID string) *statusSink {
	return &statusSink{snap: StatusSnapshot{AccountID: accountID}}
}

func (s *statusSink) MarkStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Running = true
	s.snap.LastError = ""
	s.snap.LastStartAt = time.Now()
}

func (s *statusSink) MarkStop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Running = false
	s.snap.LastStopAt = time.Now()
	if err != nil {
		s.snap.LastError = err.Error()
	}
}

func (s *statusSink) MarkError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = err.Error()
}

func (s *statusSink) Inbound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastInboundAt = time.Now()
}

func (s *statusSink) Outbound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastOutboundAt = time.Now()
}

func (s *statusSink) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
