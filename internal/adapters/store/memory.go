// Package store provides the in-memory implementation of the shared
// session documents. It mirrors the semantics any backing store for
// this subsystem must offer: field-level merge with no read-modify-write
// race across different fields, append-only candidate keys, and full
// snapshot delivery to watchers on every mutation.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/usdfg/arenavoice/internal/core"
	"github.com/usdfg/arenavoice/internal/domain"
)

// Memory holds every session document behind one mutex. The typed
// store interfaces are exposed as facets sharing this state.
// Notifications run under the mutex: push never blocks, and closing a
// watch channel is serialized with sends.
type Memory struct {
	mu       sync.Mutex
	signals  map[domain.SessionID]*domain.SignalRecord
	rosters  map[domain.SessionID][]domain.ParticipantID
	requests map[domain.SessionID]map[domain.ParticipantID]domain.MicRequest
	mutes    map[domain.SessionID]map[domain.ParticipantID]domain.MuteControl

	signalSubs  map[domain.SessionID][]chan domain.SignalRecord
	rosterSubs  map[domain.SessionID][]chan []domain.ParticipantID
	requestSubs map[domain.SessionID][]chan []domain.MicRequest
	muteSubs    map[domain.SessionID][]chan map[domain.ParticipantID]domain.MuteControl
}

func NewMemory() *Memory {
	return &Memory{
		signals:     make(map[domain.SessionID]*domain.SignalRecord),
		rosters:     make(map[domain.SessionID][]domain.ParticipantID),
		requests:    make(map[domain.SessionID]map[domain.ParticipantID]domain.MicRequest),
		mutes:       make(map[domain.SessionID]map[domain.ParticipantID]domain.MuteControl),
		signalSubs:  make(map[domain.SessionID][]chan domain.SignalRecord),
		rosterSubs:  make(map[domain.SessionID][]chan []domain.ParticipantID),
		requestSubs: make(map[domain.SessionID][]chan []domain.MicRequest),
		muteSubs:    make(map[domain.SessionID][]chan map[domain.ParticipantID]domain.MuteControl),
	}
}

func (m *Memory) Signals() core.SignalStore      { return signalFacet{m} }
func (m *Memory) Roster() core.RosterStore       { return rosterFacet{m} }
func (m *Memory) Requests() core.MicRequestStore { return requestFacet{m} }
func (m *Memory) Mutes() core.MuteStore          { return muteFacet{m} }

var (
	_ core.SignalStore     = signalFacet{}
	_ core.RosterStore     = rosterFacet{}
	_ core.MicRequestStore = requestFacet{}
	_ core.MuteStore       = muteFacet{}
)

// push delivers without blocking: a lagging subscriber loses stale
// snapshots, never fresh ones.
func push[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func fanout[T any](subs []chan T, v T) {
	for _, ch := range subs {
		push(ch, v)
	}
}

func unsubscribe[T any](subs []chan T, ch chan T) []chan T {
	out := subs[:0]
	for _, s := range subs {
		if s != ch {
			out = append(out, s)
		}
	}
	return out
}

// --- signal record ---

type signalFacet struct{ m *Memory }

func (f signalFacet) Read(_ context.Context, session domain.SessionID) (*domain.SignalRecord, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	rec, ok := f.m.signals[session]
	if !ok {
		return nil, nil
	}
	cp := copyRecord(rec)
	return &cp, nil
}

func (f signalFacet) Merge(_ context.Context, session domain.SessionID, patch domain.SignalPatch) error {
	m := f.m
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.signals[session]
	if !ok {
		rec = &domain.SignalRecord{Candidates: make(map[string]domain.Candidate)}
		m.signals[session] = rec
	}
	if patch.Offer != nil {
		o := *patch.Offer
		rec.Offer = &o
	}
	if patch.Answer != nil {
		a := *patch.Answer
		rec.Answer = &a
	}
	for key, cand := range patch.Candidates {
		if _, exists := rec.Candidates[key]; exists {
			continue
		}
		rec.Candidates[key] = cand
	}
	if patch.Timestamp != 0 {
		rec.Timestamp = patch.Timestamp
	} else {
		rec.Timestamp = time.Now().UnixMilli()
	}
	fanout(m.signalSubs[session], copyRecord(rec))
	return nil
}

func (f signalFacet) Delete(_ context.Context, session domain.SessionID) error {
	m := f.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.signals[session]; !ok {
		return nil
	}
	delete(m.signals, session)
	fanout(m.signalSubs[session], domain.SignalRecord{})
	return nil
}

func (f signalFacet) Watch(ctx context.Context, session domain.SessionID) (<-chan domain.SignalRecord, error) {
	m := f.m
	ch := make(chan domain.SignalRecord, 8)
	m.mu.Lock()
	m.signalSubs[session] = append(m.signalSubs[session], ch)
	if rec, ok := m.signals[session]; ok {
		push(ch, copyRecord(rec))
	}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.signalSubs[session] = unsubscribe(m.signalSubs[session], ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// --- speaker roster ---

type rosterFacet struct{ m *Memory }

func (f rosterFacet) Speakers(_ context.Context, session domain.SessionID) ([]domain.ParticipantID, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	return copyRoster(f.m.rosters[session]), nil
}

// Update runs mutate under the store lock, so a capacity check inside
// mutate is a commit-time check against the committed value.
func (f rosterFacet) Update(_ context.Context, session domain.SessionID, mutate func([]domain.ParticipantID) ([]domain.ParticipantID, error)) ([]domain.ParticipantID, error) {
	m := f.m
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := mutate(copyRoster(m.rosters[session]))
	if err != nil {
		return nil, err
	}
	m.rosters[session] = copyRoster(next)
	fanout(m.rosterSubs[session], copyRoster(next))
	return copyRoster(next), nil
}

func (f rosterFacet) Delete(_ context.Context, session domain.SessionID) error {
	m := f.m
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rosters, session)
	fanout(m.rosterSubs[session], []domain.ParticipantID(nil))
	return nil
}

func (f rosterFacet) Watch(ctx context.Context, session domain.SessionID) (<-chan []domain.ParticipantID, error) {
	m := f.m
	ch := make(chan []domain.ParticipantID, 8)
	m.mu.Lock()
	m.rosterSubs[session] = append(m.rosterSubs[session], ch)
	push(ch, copyRoster(m.rosters[session]))
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.rosterSubs[session] = unsubscribe(m.rosterSubs[session], ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// --- mic requests ---

type requestFacet struct{ m *Memory }

func (f requestFacet) Get(_ context.Context, session domain.SessionID, requester domain.ParticipantID) (*domain.MicRequest, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	req, ok := f.m.requests[session][requester.Normalize()]
	if !ok {
		return nil, nil
	}
	cp := req
	return &cp, nil
}

func (f requestFacet) Put(_ context.Context, session domain.SessionID, req domain.MicRequest) error {
	m := f.m
	req.Requester = req.Requester.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	byReq, ok := m.requests[session]
	if !ok {
		byReq = make(map[domain.ParticipantID]domain.MicRequest)
		m.requests[session] = byReq
	}
	byReq[req.Requester] = req
	fanout(m.requestSubs[session], requestList(byReq))
	return nil
}

func (f requestFacet) Delete(_ context.Context, session domain.SessionID, requester domain.ParticipantID) error {
	m := f.m
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests[session], requester.Normalize())
	fanout(m.requestSubs[session], requestList(m.requests[session]))
	return nil
}

func (f requestFacet) List(_ context.Context, session domain.SessionID) ([]domain.MicRequest, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	return requestList(f.m.requests[session]), nil
}

func (f requestFacet) Watch(ctx context.Context, session domain.SessionID) (<-chan []domain.MicRequest, error) {
	m := f.m
	ch := make(chan []domain.MicRequest, 8)
	m.mu.Lock()
	m.requestSubs[session] = append(m.requestSubs[session], ch)
	push(ch, requestList(m.requests[session]))
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.requestSubs[session] = unsubscribe(m.requestSubs[session], ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// --- mute overrides ---

type muteFacet struct{ m *Memory }

func (f muteFacet) Get(_ context.Context, session domain.SessionID, participant domain.ParticipantID) (*domain.MuteControl, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	ctl, ok := f.m.mutes[session][participant.Normalize()]
	if !ok {
		return nil, nil
	}
	cp := ctl
	return &cp, nil
}

func (f muteFacet) Set(_ context.Context, session domain.SessionID, participant domain.ParticipantID, ctl domain.MuteControl) error {
	m := f.m
	m.mu.Lock()
	defer m.mu.Unlock()
	byPart, ok := m.mutes[session]
	if !ok {
		byPart = make(map[domain.ParticipantID]domain.MuteControl)
		m.mutes[session] = byPart
	}
	byPart[participant.Normalize()] = ctl
	fanout(m.muteSubs[session], copyMutes(byPart))
	return nil
}

func (f muteFacet) Clear(_ context.Context, session domain.SessionID, participant domain.ParticipantID) error {
	m := f.m
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mutes[session], participant.Normalize())
	fanout(m.muteSubs[session], copyMutes(m.mutes[session]))
	return nil
}

func (f muteFacet) DeleteSession(_ context.Context, session domain.SessionID) error {
	m := f.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mutes[session]; !ok {
		return nil
	}
	delete(m.mutes, session)
	fanout(m.muteSubs[session], map[domain.ParticipantID]domain.MuteControl{})
	return nil
}

func (f muteFacet) Watch(ctx context.Context, session domain.SessionID) (<-chan map[domain.ParticipantID]domain.MuteControl, error) {
	m := f.m
	ch := make(chan map[domain.ParticipantID]domain.MuteControl, 8)
	m.mu.Lock()
	m.muteSubs[session] = append(m.muteSubs[session], ch)
	push(ch, copyMutes(m.mutes[session]))
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.muteSubs[session] = unsubscribe(m.muteSubs[session], ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// --- copies ---

func copyRecord(rec *domain.SignalRecord) domain.SignalRecord {
	cp := domain.SignalRecord{Timestamp: rec.Timestamp}
	if rec.Offer != nil {
		o := *rec.Offer
		cp.Offer = &o
	}
	if rec.Answer != nil {
		a := *rec.Answer
		cp.Answer = &a
	}
	if len(rec.Candidates) > 0 {
		cp.Candidates = make(map[string]domain.Candidate, len(rec.Candidates))
		for k, v := range rec.Candidates {
			cp.Candidates[k] = v
		}
	}
	return cp
}

func copyRoster(roster []domain.ParticipantID) []domain.ParticipantID {
	out := make([]domain.ParticipantID, len(roster))
	copy(out, roster)
	return out
}

func requestList(byReq map[domain.ParticipantID]domain.MicRequest) []domain.MicRequest {
	out := make([]domain.MicRequest, 0, len(byReq))
	for _, r := range byReq {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].Requester < out[j].Requester
	})
	return out
}

func copyMutes(byPart map[domain.ParticipantID]domain.MuteControl) map[domain.ParticipantID]domain.MuteControl {
	out := make(map[domain.ParticipantID]domain.MuteControl, len(byPart))
	for k, v := range byPart {
		out[k] = v
	}
	return out
}
