package core

import (
	"errors"
	"time"
)

var (
	ErrRosterFull      = errors.New("speaker roster full")
	ErrNotOnRoster     = errors.New("participant not on roster")
	ErrRequestExists   = errors.New("mic request already open")
	ErrNoSuchRequest   = errors.New("no such mic request")
	ErrPeerClosed      = errors.New("peer connection closed")
	ErrWatchClosed     = errors.New("store watch closed")
	ErrSessionMismatch = errors.New("event for a different session generation")
)

// ErrorKind classifies failures for the retry policy. Everything here
// is handled inside the subsystem and surfaces only as a status string;
// callers never branch on error text.
type ErrorKind int

const (
	KindMedia ErrorKind = iota
	KindNegotiation
	KindAdmission
	KindStoreRead
	KindStoreWrite
)

type RetryPolicy struct {
	Retryable   bool
	MaxAttempts int
	Backoff     time.Duration
}

// retryPolicies is the single table deciding what gets retried. Media
// failures are terminal for the attempt (listen-only fallback), store
// reads are swallowed (treated as "no data yet"), negotiation gets the
// ICE-restart ceiling.
var retryPolicies = map[ErrorKind]RetryPolicy{
	KindMedia:       {Retryable: false},
	KindNegotiation: {Retryable: true, MaxAttempts: 3, Backoff: 2 * time.Second},
	KindAdmission:   {Retryable: false},
	KindStoreRead:   {Retryable: false},
	KindStoreWrite:  {Retryable: true, MaxAttempts: 2, Backoff: 500 * time.Millisecond},
}

func PolicyFor(kind ErrorKind) RetryPolicy {
	return retryPolicies[kind]
}
