package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/psemmelhack/fm-agent/internal/domain"
	"github.com/psemmelhack/fm-agent/internal/llm"
)

var errBoom = errors.New("boom")

// memStore is an in-memory Store. fail maps a method name to the number of
// consecutive calls that should fail.
type memStore struct {
	mu          sync.Mutex
	state       domain.ConversationState
	commitments []domain.Commitment
	memories    []domain.Memory
	checkpoints map[string]int64
	claims      map[string]bool
	fail        map[string]int
	seq         int
}

func newMemStore() *memStore {
	return &memStore{
		state:       domain.ConversationState{ID: domain.StateID, Phase: domain.PhaseIdle},
		checkpoints: map[string]int64{},
		claims:      map[string]bool{},
		fail:        map[string]int{},
	}
}

func (s *memStore) failing(op string) error {
	if s.fail[op] > 0 {
		s.fail[op]--
		return fmt.Errorf("%s: %w", op, errBoom)
	}
	if s.fail[op] < 0 {
		return fmt.Errorf("%s: %w", op, errBoom)
	}
	return nil
}

func (s *memStore) EnsureState(ctx context.Context) error { return nil }

func (s *memStore) GetState(ctx context.Context) (*domain.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("GetState"); err != nil {
		return nil, err
	}
	st := s.state
	st.Context.Candidates = append([]domain.Candidate(nil), s.state.Context.Candidates...)
	return &st, nil
}

func (s *memStore) SetState(ctx context.Context, p domain.Phase, c domain.ConversationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("SetState"); err != nil {
		return err
	}
	s.state.Phase = p
	s.state.Context = c
	return nil
}

func (s *memStore) SaveCommitment(ctx context.Context, title string, start time.Time, details, location string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("SaveCommitment"); err != nil {
		return "", err
	}
	s.seq++
	id := fmt.Sprintf("c-%d", s.seq)
	s.commitments = append(s.commitments, domain.Commitment{ID: id, Title: title, StartTime: start, Details: details, Location: location})
	return id, nil
}

func (s *memStore) DueUnremindedCommitments(ctx context.Context, now time.Time, lookahead time.Duration) ([]domain.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("Due"); err != nil {
		return nil, err
	}
	var out []domain.Commitment
	for _, c := range s.commitments {
		if !c.ReminderSent && c.StartTime.After(now) && !c.StartTime.After(now.Add(lookahead)) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *memStore) MarkReminded(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("MarkReminded"); err != nil {
		return false, err
	}
	for i := range s.commitments {
		if s.commitments[i].ID == id {
			if s.commitments[i].ReminderSent {
				return false, nil
			}
			s.commitments[i].ReminderSent = true
			s.commitments[i].RemindedAt = &at
			return true, nil
		}
	}
	return false, errors.New("not found")
}

func (s *memStore) ListCommitments(ctx context.Context, offset, limit int) ([]domain.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset >= len(s.commitments) {
		return []domain.Commitment{}, nil
	}
	end := offset + limit
	if end > len(s.commitments) {
		end = len(s.commitments)
	}
	return append([]domain.Commitment(nil), s.commitments[offset:end]...), nil
}

func (s *memStore) CountCommitments(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.commitments)), nil
}

func (s *memStore) WriteMemory(ctx context.Context, kind, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("WriteMemory"); err != nil {
		return err
	}
	s.memories = append(s.memories, domain.Memory{Kind: kind, Summary: summary, CreatedAt: time.Now()})
	return nil
}

func (s *memStore) RecentMemories(ctx context.Context, limit int) ([]domain.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("RecentMemories"); err != nil {
		return nil, err
	}
	out := s.memories
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]domain.Memory(nil), out...), nil
}

func (s *memStore) GetCheckpoint(ctx context.Context, channel string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[channel], nil
}

func (s *memStore) SaveCheckpoint(ctx context.Context, channel string, marker int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if marker > s.checkpoints[channel] {
		s.checkpoints[channel] = marker
	}
	return nil
}

func (s *memStore) ClaimTriggerRun(ctx context.Context, trigger, periodKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := trigger + "/" + periodKey
	if s.claims[k] {
		return errors.New("already claimed")
	}
	s.claims[k] = true
	return nil
}

func (s *memStore) phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Phase
}

// fakeGen echoes the task so tests can tell prompts apart. failN fails the
// next N calls; err fails every call.
type fakeGen struct {
	mu      sync.Mutex
	prompts []llm.Prompt
	failN   int
	err     error
}

func (g *fakeGen) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	if g.failN > 0 {
		g.failN--
		return "", errors.New("503 upstream")
	}
	if g.err != nil {
		return "", g.err
	}
	return "GEN: " + p.Task, nil
}

type fakeSearcher struct {
	results []domain.Candidate
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, q string) ([]domain.Candidate, error) {
	f.queries = append(f.queries, q)
	return f.results, f.err
}

// fakeOut records sends. failN fails the next N sends; failAll fails every
// send whose text contains failMatch (or every send if failMatch is empty).
type fakeOut struct {
	mu        sync.Mutex
	sent      []string
	failN     int
	failAll   bool
	failMatch string
}

func (o *fakeOut) Send(ctx context.Context, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failN > 0 {
		o.failN--
		return errBoom
	}
	if o.failAll && (o.failMatch == "" || strings.Contains(text, o.failMatch)) {
		return errBoom
	}
	o.sent = append(o.sent, text)
	return nil
}

func (o *fakeOut) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		return ""
	}
	return o.sent[len(o.sent)-1]
}

func (o *fakeOut) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}
