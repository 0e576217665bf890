package evidence

import (
	"sync"
	"time"

	"github.com/blockberries/chainberry/types"
)

// Kind identifies the form of Byzantine behavior.
type Kind uint8

const (
	KindConflictingVotes     Kind = 1
	KindConflictingProposals Kind = 2
)

// Evidence is one retained proof of equivocation. Exactly the pair
// of fields matching Kind is populated.
type Evidence struct {
	Kind     Kind            `cramberry:"1"`
	ChainID  types.ChainID   `cramberry:"2"`
	Height   uint64          `cramberry:"3"`
	Offender types.Owner     `cramberry:"4"`
	Time     types.Timestamp `cramberry:"5"`

	FirstVote  *types.LiteVote `cramberry:"6"`
	SecondVote *types.LiteVote `cramberry:"7"`

	FirstProposal  *types.BlockProposal `cramberry:"8"`
	SecondProposal *types.BlockProposal `cramberry:"9"`
}

// evidenceIdentity is the hashed subset of Evidence: the offense
// itself, without the record timestamp, so re-observing the same
// conflicting pair dedupes.
type evidenceIdentity struct {
	Kind     Kind          `cramberry:"1"`
	ChainID  types.ChainID `cramberry:"2"`
	Height   uint64        `cramberry:"3"`
	Offender types.Owner   `cramberry:"4"`

	FirstVote  *types.LiteVote `cramberry:"5"`
	SecondVote *types.LiteVote `cramberry:"6"`

	FirstProposal  *types.BlockProposal `cramberry:"7"`
	SecondProposal *types.BlockProposal `cramberry:"8"`
}

// Hash returns the evidence's identity hash, used for deduplication.
func (e *Evidence) Hash() types.Hash {
	return types.HashOf(&evidenceIdentity{
		Kind:           e.Kind,
		ChainID:        e.ChainID,
		Height:         e.Height,
		Offender:       e.Offender,
		FirstVote:      e.FirstVote,
		SecondVote:     e.SecondVote,
		FirstProposal:  e.FirstProposal,
		SecondProposal: e.SecondProposal,
	})
}

// Config bounds the pool's retention.
type Config struct {
	// MaxAge is how long evidence stays pending before expiring.
	MaxAge time.Duration
	// MaxPending caps the number of retained pending items.
	MaxPending int
}

// DefaultConfig returns the default retention policy.
func DefaultConfig() Config {
	return Config{
		MaxAge:     48 * time.Hour,
		MaxPending: 10000,
	}
}

// Pool retains pending equivocation evidence across all chains of
// a node. Safe for concurrent use.
type Pool struct {
	mu     sync.RWMutex
	config Config

	pending   []*Evidence
	seen      map[types.Hash]struct{}
	committed map[types.Hash]struct{}

	now func() time.Time
}

// NewPool creates an evidence pool.
func NewPool(config Config) *Pool {
	return &Pool{
		config:    config,
		seen:      make(map[types.Hash]struct{}),
		committed: make(map[types.Hash]struct{}),
		now:       time.Now,
	}
}

// RecordConflictingVotes retains two conflicting votes from one
// signer. Returns the recorded evidence, or nil if the pair does
// not constitute equivocation or was already recorded.
func (p *Pool) RecordConflictingVotes(height uint64, first, second *types.LiteVote) *Evidence {
	if first == nil || second == nil || first.Signer != second.Signer {
		return nil
	}
	if first.Round != second.Round || first.Value.Kind != second.Value.Kind {
		return nil
	}
	if first.Value.ValueHash == second.Value.ValueHash {
		return nil
	}
	a, b := *first, *second
	ev := &Evidence{
		Kind:       KindConflictingVotes,
		ChainID:    first.Value.ChainID,
		Height:     height,
		Offender:   first.Signer,
		Time:       types.TimeToTimestamp(p.now()),
		FirstVote:  &a,
		SecondVote: &b,
	}
	if p.add(ev) {
		return ev
	}
	return nil
}

// RecordConflictingProposals retains two conflicting proposals from
// one proposer at the same height and round.
func (p *Pool) RecordConflictingProposals(first, second *types.BlockProposal) *Evidence {
	if first == nil || second == nil || first.Owner != second.Owner {
		return nil
	}
	if first.Round != second.Round || first.Content.Height != second.Content.Height {
		return nil
	}
	if first.BlockHash() == second.BlockHash() {
		return nil
	}
	a, b := *first, *second
	ev := &Evidence{
		Kind:           KindConflictingProposals,
		ChainID:        first.Content.ChainID,
		Height:         first.Content.Height,
		Offender:       first.Owner,
		Time:           types.TimeToTimestamp(p.now()),
		FirstProposal:  &a,
		SecondProposal: &b,
	}
	if p.add(ev) {
		return ev
	}
	return nil
}

// add inserts evidence unless it is a duplicate or the pool is full.
func (p *Pool) add(ev *Evidence) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := ev.Hash()
	if _, dup := p.seen[h]; dup {
		return false
	}
	if _, done := p.committed[h]; done {
		return false
	}
	if p.config.MaxPending > 0 && len(p.pending) >= p.config.MaxPending {
		return false
	}
	p.seen[h] = struct{}{}
	p.pending = append(p.pending, ev)
	return true
}

// Pending returns a copy of all pending evidence, oldest first.
func (p *Pool) Pending() []*Evidence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Evidence, len(p.pending))
	copy(out, p.pending)
	return out
}

// MarkCommitted drops evidence that has been included in a block.
func (p *Pool) MarkCommitted(hashes ...types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, h := range hashes {
		p.committed[h] = struct{}{}
	}
	kept := p.pending[:0]
	for _, ev := range p.pending {
		if _, done := p.committed[ev.Hash()]; !done {
			kept = append(kept, ev)
		}
	}
	p.pending = kept
}

// PruneExpired drops pending evidence older than MaxAge.
func (p *Pool) PruneExpired() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.MaxAge <= 0 {
		return
	}
	cutoff := types.TimeToTimestamp(p.now().Add(-p.config.MaxAge))
	kept := p.pending[:0]
	for _, ev := range p.pending {
		if cutoff.Before(ev.Time) {
			kept = append(kept, ev)
		} else {
			delete(p.seen, ev.Hash())
		}
	}
	p.pending = kept
}

// Size returns the number of pending items.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pending)
}
