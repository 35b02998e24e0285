// Package ratelimit bounds how often a player may tap or answer.
//
// Taps need a minimum interval between accepted taps and a cap on the delta
// units accepted in a rolling window. Answers need a minimum interval per
// player and quiz. Only accepted submissions are recorded.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited matches every *Error via errors.Is.
var ErrRateLimited = errors.New("rate limited")

// Error carries how long the caller should wait before retrying.
type Error struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Reason, e.RetryAfter)
}

func (e *Error) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterMs rounds RetryAfter up to whole milliseconds.
func (e *Error) RetryAfterMs() int64 {
	ms := e.RetryAfter.Milliseconds()
	if e.RetryAfter%time.Millisecond != 0 {
		ms++
	}
	return ms
}

type Policy struct {
	TapMinInterval    time.Duration
	TapWindow         time.Duration
	TapWindowBudget   int
	AnswerMinInterval time.Duration
	IdleTTL           time.Duration
}

// DefaultPolicy: 150ms between taps, 150 units per second, 2s between answers, 5 minute idle TTL.
func DefaultPolicy() Policy {
	return Policy{
		TapMinInterval:    150 * time.Millisecond,
		TapWindow:         time.Second,
		TapWindowBudget:   150,
		AnswerMinInterval: 2 * time.Second,
		IdleTTL:           5 * time.Minute,
	}
}

type tapEvent struct {
	at    time.Time
	units int
}

type tapBucket struct {
	last   time.Time
	events []tapEvent
}

type answerKey struct {
	playerID string
	quizID   string
}

// Limiter is safe for concurrent use by every room.
type Limiter struct {
	policy  Policy
	mutex   sync.Mutex
	taps    map[string]*tapBucket
	answers map[answerKey]time.Time
}

func New(policy Policy) *Limiter {
	return &Limiter{
		policy:  policy,
		taps:    make(map[string]*tapBucket),
		answers: make(map[answerKey]time.Time),
	}
}

// AllowTap records the tap and returns nil, or returns an *Error without recording it.
func (l *Limiter) AllowTap(playerID string, delta int, now time.Time) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	units := delta
	if units < 0 {
		units = -units
	}

	b, ok := l.taps[playerID]
	if !ok {
		b = &tapBucket{}
		l.taps[playerID] = b
	}

	if !b.last.IsZero() {
		if elapsed := now.Sub(b.last); elapsed < l.policy.TapMinInterval {
			return &Error{Reason: "tap interval", RetryAfter: l.policy.TapMinInterval - elapsed}
		}
	}

	cutoff := now.Add(-l.policy.TapWindow)
	kept := b.events[:0]
	used := 0
	for _, ev := range b.events {
		if ev.at.After(cutoff) {
			kept = append(kept, ev)
			used += ev.units
		}
	}
	b.events = kept

	if used+units > l.policy.TapWindowBudget {
		// wait until enough of the window has drained to fit this tap
		need := used + units - l.policy.TapWindowBudget
		retry := l.policy.TapWindow
		for _, ev := range b.events {
			need -= ev.units
			if need <= 0 {
				retry = ev.at.Add(l.policy.TapWindow).Sub(now)
				break
			}
		}
		return &Error{Reason: "tap budget", RetryAfter: retry}
	}

	b.events = append(b.events, tapEvent{at: now, units: units})
	b.last = now
	return nil
}

// AllowAnswer records the answer and returns nil, or returns an *Error without recording it.
func (l *Limiter) AllowAnswer(playerID, quizID string, now time.Time) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	key := answerKey{playerID: playerID, quizID: quizID}
	if last, ok := l.answers[key]; ok {
		if elapsed := now.Sub(last); elapsed < l.policy.AnswerMinInterval {
			return &Error{Reason: "answer interval", RetryAfter: l.policy.AnswerMinInterval - elapsed}
		}
	}
	l.answers[key] = now
	return nil
}

// Sweep drops entries idle for longer than the policy's IdleTTL and returns how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := now.Add(-l.policy.IdleTTL)
	removed := 0
	for id, b := range l.taps {
		if !b.last.After(cutoff) {
			delete(l.taps, id)
			removed++
		}
	}
	for key, last := range l.answers {
		if !last.After(cutoff) {
			delete(l.answers, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked entries.
func (l *Limiter) Len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.taps) + len(l.answers)
}
