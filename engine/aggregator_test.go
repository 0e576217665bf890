package engine

import (
	"crypto/ed25519"
	"errors"
	"sort"
	"testing"

	"github.com/blockberries/chainberry/evidence"
	"github.com/blockberries/chainberry/types"
)

// testKey is a raw signing identity for tests. Unlike the privval
// signers it will happily sign conflicting artifacts, which is
// exactly what equivocation tests need.
type testKey struct {
	priv  ed25519.PrivateKey
	pub   types.PublicKey
	owner types.Owner
}

// newTestKeys generates n keys sorted by owner address, so key index
// maps directly onto ownership position.
func newTestKeys(t *testing.T, n int) []testKey {
	t.Helper()
	keys := make([]testKey, n)
	for i := range keys {
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("GenerateKey failed: %v", err)
		}
		keys[i].priv = priv
		copy(keys[i].pub[:], priv.Public().(ed25519.PublicKey))
		keys[i].owner = types.OwnerFromPublicKey(keys[i].pub)
	}
	sort.Slice(keys, func(i, j int) bool {
		return types.CompareOwners(keys[i].owner, keys[j].owner) < 0
	})
	return keys
}

func (k testKey) vote(value types.CertificateValue, round types.Round) *types.LiteVote {
	v := &types.LiteVote{
		Value:     value.Lite(),
		Round:     round,
		Signer:    k.owner,
		PublicKey: k.pub,
	}
	sig := ed25519.Sign(k.priv, types.VoteSignBytes(v.Value, v.Round))
	copy(v.Signature[:], sig)
	return v
}

func (k testKey) proposal(content types.Block, round types.Round, justification *types.Certificate) *types.BlockProposal {
	p := &types.BlockProposal{
		Content:       content,
		Round:         round,
		Owner:         k.owner,
		PublicKey:     k.pub,
		Justification: justification,
	}
	sig := ed25519.Sign(k.priv, types.ProposalSignBytes(p))
	copy(p.Signature[:], sig)
	return p
}

// aggFixture builds an aggregator over three owners with weights
// 2, 1, 1 (owner quorum 3) that double as a committee of weight one
// each (committee quorum 3).
func aggFixture(t *testing.T) (*VoteAggregator, *RoundScheduler, []testKey, *evidence.Pool, types.ChainID) {
	t.Helper()
	chainID := types.ChainIDFromSeed([]byte("aggregator-test"))
	keys := newTestKeys(t, 3)

	weights := []uint64{2, 1, 1}
	owners := make([]types.OwnerWeight, len(keys))
	members := make([]types.CommitteeMember, len(keys))
	for i, k := range keys {
		owners[i] = types.OwnerWeight{Owner: k.owner, Weight: weights[i]}
		members[i] = types.CommitteeMember{PublicKey: k.pub, Weight: 1}
	}
	committee, err := types.NewCommittee(1, members)
	if err != nil {
		t.Fatalf("NewCommittee failed: %v", err)
	}
	scheduler, err := NewRoundScheduler(chainID, types.ChainOwnership{
		Owners:   owners,
		Timeouts: types.DefaultTimeoutConfig(),
	}, committee)
	if err != nil {
		t.Fatalf("NewRoundScheduler failed: %v", err)
	}
	pool := evidence.NewPool(evidence.DefaultConfig())
	return NewVoteAggregator(chainID, scheduler, pool), scheduler, keys, pool, chainID
}

func TestAddVoteFormsCertificate(t *testing.T) {
	va, scheduler, keys, _, chainID := aggFixture(t)
	round := types.SingleLeaderRound(0)
	block := &types.Block{ChainID: chainID, Height: 0}
	value := types.NewValidatedValue(block)

	if _, err := va.RegisterValue(round, value); err != nil {
		t.Fatalf("RegisterValue failed: %v", err)
	}

	// Weight 2 of quorum 3.
	cert, err := va.AddVote(keys[0].vote(value, round), 0)
	if err != nil {
		t.Fatalf("AddVote failed: %v", err)
	}
	if cert != nil {
		t.Fatal("certificate below quorum")
	}
	// Weight 3: quorum.
	cert, err = va.AddVote(keys[1].vote(value, round), 0)
	if err != nil {
		t.Fatalf("AddVote failed: %v", err)
	}
	if cert == nil {
		t.Fatal("expected a certificate at quorum weight")
	}
	if cert.Value.Kind != types.CertValidated || !cert.Round.Equal(round) {
		t.Fatalf("certificate kind=%s round=%s", cert.Value.Kind, cert.Round)
	}
	if len(cert.Signatures) != 2 {
		t.Fatalf("signature count = %d, want 2", len(cert.Signatures))
	}

	weightOf := func(o types.Owner) (uint64, bool) {
		return scheduler.VoterWeight(o, round, types.CertValidated)
	}
	if err := cert.Verify(weightOf, scheduler.QuorumWeight(round, types.CertValidated)); err != nil {
		t.Fatalf("certificate does not verify: %v", err)
	}
}

func TestCertificateOrderIndependent(t *testing.T) {
	va1, _, keys, _, chainID := aggFixture(t)
	round := types.SingleLeaderRound(0)
	block := &types.Block{ChainID: chainID, Height: 0}
	value := types.NewValidatedValue(block)

	votes := []*types.LiteVote{
		keys[0].vote(value, round),
		keys[1].vote(value, round),
		keys[2].vote(value, round),
	}

	va1.RegisterValue(round, value)
	var cert1 *types.Certificate
	for _, v := range votes {
		c, err := va1.AddVote(v, 0)
		if err != nil {
			t.Fatalf("AddVote failed: %v", err)
		}
		if c != nil {
			cert1 = c
		}
	}

	// Same votes, reverse order.
	va2 := NewVoteAggregator(chainID, mustScheduler(t, keys, chainID), nil)
	va2.RegisterValue(round, value)
	var cert2 *types.Certificate
	for i := len(votes) - 1; i >= 0; i-- {
		c, err := va2.AddVote(votes[i], 0)
		if err != nil {
			t.Fatalf("AddVote failed: %v", err)
		}
		if c != nil {
			cert2 = c
		}
	}

	if cert1 == nil || cert2 == nil {
		t.Fatal("both aggregators should emit a certificate")
	}
	if types.HashOf(cert1) != types.HashOf(cert2) {
		t.Fatal("certificates differ with vote arrival order")
	}
}

// mustScheduler rebuilds the fixture scheduler for a given key set,
// weights 2, 1, 1.
func mustScheduler(t *testing.T, keys []testKey, chainID types.ChainID) *RoundScheduler {
	t.Helper()
	weights := []uint64{2, 1, 1}
	owners := make([]types.OwnerWeight, len(keys))
	members := make([]types.CommitteeMember, len(keys))
	for i, k := range keys {
		owners[i] = types.OwnerWeight{Owner: k.owner, Weight: weights[i]}
		members[i] = types.CommitteeMember{PublicKey: k.pub, Weight: 1}
	}
	committee, err := types.NewCommittee(1, members)
	if err != nil {
		t.Fatalf("NewCommittee failed: %v", err)
	}
	scheduler, err := NewRoundScheduler(chainID, types.ChainOwnership{
		Owners:   owners,
		Timeouts: types.DefaultTimeoutConfig(),
	}, committee)
	if err != nil {
		t.Fatalf("NewRoundScheduler failed: %v", err)
	}
	return scheduler
}

func TestVotesBeforeValueRegistration(t *testing.T) {
	va, _, keys, _, chainID := aggFixture(t)
	round := types.SingleLeaderRound(0)
	block := &types.Block{ChainID: chainID, Height: 0}
	value := types.NewValidatedValue(block)

	// Quorum of votes, but the full value is unknown: no certificate
	// can be emitted from hashes alone.
	for i := 0; i < 3; i++ {
		cert, err := va.AddVote(keys[i].vote(value, round), 0)
		if err != nil {
			t.Fatalf("AddVote failed: %v", err)
		}
		if cert != nil {
			t.Fatal("certificate emitted without a registered value")
		}
	}

	cert, err := va.RegisterValue(round, value)
	if err != nil {
		t.Fatalf("RegisterValue failed: %v", err)
	}
	if cert == nil {
		t.Fatal("expected a certificate once the value is registered")
	}
}

func TestDuplicateVoteIsNoOp(t *testing.T) {
	va, _, keys, _, chainID := aggFixture(t)
	round := types.SingleLeaderRound(0)
	value := types.NewValidatedValue(&types.Block{ChainID: chainID, Height: 0})

	v := keys[0].vote(value, round)
	if _, err := va.AddVote(v, 0); err != nil {
		t.Fatalf("AddVote failed: %v", err)
	}
	if _, err := va.AddVote(v, 0); err != nil {
		t.Fatalf("duplicate AddVote should be a no-op, got %v", err)
	}
	if got := va.VoteWeight(round, types.CertValidated); got != 2 {
		t.Fatalf("weight after duplicate = %d, want 2", got)
	}
}

func TestConflictingVoteRecordsEvidence(t *testing.T) {
	va, _, keys, pool, chainID := aggFixture(t)
	round := types.SingleLeaderRound(0)
	valueA := types.NewValidatedValue(&types.Block{ChainID: chainID, Height: 0})
	valueB := types.NewValidatedValue(&types.Block{ChainID: chainID, Height: 0, Epoch: 1})

	if _, err := va.AddVote(keys[0].vote(valueA, round), 0); err != nil {
		t.Fatalf("AddVote failed: %v", err)
	}
	_, err := va.AddVote(keys[0].vote(valueB, round), 0)
	if !errors.Is(err, ErrConflictingVote) {
		t.Fatalf("err = %v, want ErrConflictingVote", err)
	}
	if pool.Size() != 1 {
		t.Fatalf("evidence pool size = %d, want 1", pool.Size())
	}

	// A different signer voting for a different value is rejected
	// but is not equivocation.
	_, err = va.AddVote(keys[1].vote(valueB, round), 0)
	if !errors.Is(err, ErrConflictingVote) {
		t.Fatalf("err = %v, want ErrConflictingVote", err)
	}
	if pool.Size() != 1 {
		t.Fatalf("evidence pool size = %d, want 1", pool.Size())
	}
}

func TestUnauthorizedVoterRejected(t *testing.T) {
	va, _, _, _, chainID := aggFixture(t)
	stranger := newTestKeys(t, 1)[0]
	round := types.SingleLeaderRound(0)
	value := types.NewValidatedValue(&types.Block{ChainID: chainID, Height: 0})

	_, err := va.AddVote(stranger.vote(value, round), 0)
	if !errors.Is(err, ErrUnauthorizedVoter) {
		t.Fatalf("err = %v, want ErrUnauthorizedVoter", err)
	}
}

func TestStaleRoundVoteRejected(t *testing.T) {
	va, _, keys, _, chainID := aggFixture(t)
	value := types.NewValidatedValue(&types.Block{ChainID: chainID, Height: 0})

	va.RetireBelow(types.SingleLeaderRound(2))
	_, err := va.AddVote(keys[0].vote(value, types.SingleLeaderRound(1)), 0)
	if !errors.Is(err, ErrStaleRound) {
		t.Fatalf("err = %v, want ErrStaleRound", err)
	}
	// The retirement round itself is still live.
	if _, err := va.AddVote(keys[0].vote(value, types.SingleLeaderRound(2)), 0); err != nil {
		t.Fatalf("vote at the retirement round failed: %v", err)
	}
}

func TestWrongChainVoteRejected(t *testing.T) {
	va, _, keys, _, _ := aggFixture(t)
	other := types.ChainIDFromSeed([]byte("other-chain"))
	value := types.NewValidatedValue(&types.Block{ChainID: other, Height: 0})

	_, err := va.AddVote(keys[0].vote(value, types.SingleLeaderRound(0)), 0)
	if !errors.Is(err, ErrWrongChain) {
		t.Fatalf("err = %v, want ErrWrongChain", err)
	}
}

func TestFastRoundHasNoValidatedPhase(t *testing.T) {
	chainID := types.ChainIDFromSeed([]byte("fast-agg-test"))
	keys := newTestKeys(t, 2)
	members := []types.CommitteeMember{
		{PublicKey: keys[0].pub, Weight: 1},
		{PublicKey: keys[1].pub, Weight: 1},
	}
	committee, err := types.NewCommittee(1, members)
	if err != nil {
		t.Fatalf("NewCommittee failed: %v", err)
	}
	scheduler, err := NewRoundScheduler(chainID, types.ChainOwnership{
		SuperOwners: []types.Owner{keys[0].owner, keys[1].owner},
		Timeouts:    types.DefaultTimeoutConfig(),
	}, committee)
	if err != nil {
		t.Fatalf("NewRoundScheduler failed: %v", err)
	}
	va := NewVoteAggregator(chainID, scheduler, nil)

	block := &types.Block{ChainID: chainID, Height: 0}
	_, err = va.AddVote(keys[0].vote(types.NewValidatedValue(block), types.FastRound()), 0)
	if !errors.Is(err, ErrInvalidVote) {
		t.Fatalf("err = %v, want ErrInvalidVote", err)
	}

	// Confirmed votes are the fast round's native kind.
	value := types.NewConfirmedValue(block)
	va.RegisterValue(types.FastRound(), value)
	if _, err := va.AddVote(keys[0].vote(value, types.FastRound()), 0); err != nil {
		t.Fatalf("confirmed fast vote failed: %v", err)
	}
	cert, err := va.AddVote(keys[1].vote(value, types.FastRound()), 0)
	if err != nil {
		t.Fatalf("AddVote failed: %v", err)
	}
	if cert == nil || cert.Value.Kind != types.CertConfirmed {
		t.Fatal("expected a confirmed certificate at super-owner unanimity")
	}
}

func TestTimeoutVotesUseCommitteeWeights(t *testing.T) {
	va, _, keys, _, chainID := aggFixture(t)
	round := types.SingleLeaderRound(0)
	value := types.NewTimeoutValue(chainID, 0, round)

	if _, err := va.RegisterValue(round, value); err != nil {
		t.Fatalf("RegisterValue failed: %v", err)
	}
	// Owner weights are 2, 1, 1, but timeout votes count committee
	// weight: one each, quorum 3.
	if cert, _ := va.AddVote(keys[0].vote(value, round), 0); cert != nil {
		t.Fatal("certificate below committee quorum")
	}
	if cert, _ := va.AddVote(keys[1].vote(value, round), 0); cert != nil {
		t.Fatal("certificate below committee quorum")
	}
	cert, err := va.AddVote(keys[2].vote(value, round), 0)
	if err != nil {
		t.Fatalf("AddVote failed: %v", err)
	}
	if cert == nil || cert.Value.Kind != types.CertTimeout {
		t.Fatal("expected a timeout certificate at committee quorum")
	}
	if len(cert.Signatures) != 3 {
		t.Fatalf("signature count = %d, want 3", len(cert.Signatures))
	}
}

func TestResetClearsForNextHeight(t *testing.T) {
	va, _, keys, _, chainID := aggFixture(t)
	round := types.SingleLeaderRound(3)
	value := types.NewValidatedValue(&types.Block{ChainID: chainID, Height: 0})

	va.RetireBelow(round)
	if _, err := va.AddVote(keys[0].vote(value, round), 0); err != nil {
		t.Fatalf("AddVote failed: %v", err)
	}

	va.Reset()
	if got := va.CurrentRound(); got != types.SingleLeaderRound(0) {
		t.Fatalf("round after reset = %s, want single-leader(0)", got)
	}
	if got := va.VoteWeight(round, types.CertValidated); got != 0 {
		t.Fatalf("weight after reset = %d, want 0", got)
	}
}

func TestStaleHeightVoteRejected(t *testing.T) {
	va, _, keys, pool, chainID := aggFixture(t)
	round := types.SingleLeaderRound(0)

	oldBlock := &types.Block{ChainID: chainID, Height: 0}
	newBlock := &types.Block{ChainID: chainID, Height: 1}
	oldValue := types.NewConfirmedValue(oldBlock)
	newValue := types.NewConfirmedValue(newBlock)

	// A straggler confirmation vote from the finalized height must
	// not seed the new height's slot or read as equivocation.
	va.Reset()
	if _, err := va.AddVote(keys[0].vote(oldValue, round), 1); !errors.Is(err, ErrStaleHeight) {
		t.Fatalf("stale height vote: err = %v, want ErrStaleHeight", err)
	}
	if pool.Size() != 0 {
		t.Fatalf("evidence recorded for a stale vote: %d items", pool.Size())
	}

	// The current height's votes still aggregate normally, from the
	// same signer included.
	if _, err := va.RegisterValue(round, newValue); err != nil {
		t.Fatalf("RegisterValue failed: %v", err)
	}
	if _, err := va.AddVote(keys[0].vote(newValue, round), 1); err != nil {
		t.Fatalf("current height vote rejected: %v", err)
	}
	cert, err := va.AddVote(keys[1].vote(newValue, round), 1)
	if err != nil {
		t.Fatalf("AddVote failed: %v", err)
	}
	if cert == nil {
		t.Fatal("expected a certificate at quorum weight")
	}

	// Votes ahead of the current height are not applied either.
	future := types.NewConfirmedValue(&types.Block{ChainID: chainID, Height: 2})
	if _, err := va.AddVote(keys[2].vote(future, round), 1); !errors.Is(err, ErrFutureHeight) {
		t.Fatalf("future height vote: err = %v, want ErrFutureHeight", err)
	}
}
