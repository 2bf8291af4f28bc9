package linker

import "sync"

// LinkResult is what a start-linking request ultimately receives: whichever
// of pairing code, QR payload, or already-established connection arrived
// first.
type LinkResult struct {
	Identity    string
	SessionID   string
	LinkingCode string
	QRPayload   string
	Connected   bool
	Message     string
}

type outcome struct {
	result *LinkResult
	err    error
}

// settleOnce is the one-shot response slot for a pending linking request.
// The first Resolve wins; every later call is a silent no-op, so event
// handlers never need to know whether the request was already answered.
type settleOnce struct {
	once sync.Once
	ch   chan outcome
}

func newSettleOnce() *settleOnce {
	return &settleOnce{ch: make(chan outcome, 1)}
}

// Resolve settles the slot. Returns true if this call won, false if the
// slot was already settled. Never blocks.
func (s *settleOnce) Resolve(result *LinkResult, err error) bool {
	won := false
	s.once.Do(func() {
		s.ch <- outcome{result: result, err: err}
		won = true
	})
	return won
}

// Wait returns the channel the winning outcome is delivered on.
func (s *settleOnce) Wait() <-chan outcome {
	return s.ch
}
