package engine

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/blockberries/chainberry/evidence"
	"github.com/blockberries/chainberry/privval"
	"github.com/blockberries/chainberry/router"
	"github.com/blockberries/chainberry/store"
	"github.com/blockberries/chainberry/types"
)

// CrossChainSender delivers a request to a remote chain's host.
// Retries are its concern; the node re-issues requests idempotently.
type CrossChainSender func(*types.CrossChainRequest)

// chainState bundles everything the node holds for one chain.
type chainState struct {
	manager *ChainManager
	outbox  *router.Outbox
	inbox   *router.Inbox
}

// Node hosts the consensus cores of many chains: one manager,
// outbox and inbox per chain, a shared evidence pool, a shared
// deadline ticker, and the store everything checkpoints into.
// Chains hosted on the same node deliver to each other directly;
// everything else goes through the cross-chain sender.
type Node struct {
	mu sync.RWMutex

	config Config
	store  store.Store
	signer privval.Signer
	pool   *evidence.Pool
	ticker *DeadlineTicker
	send   CrossChainSender

	chains map[types.ChainID]*chainState

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewNode creates a node over a store. The signer may be nil for an
// observer node; the sender may be nil when every chain of interest
// is hosted locally.
func NewNode(config Config, st store.Store, signer privval.Signer, send CrossChainSender) (*Node, error) {
	if err := config.ValidateBasic(); err != nil {
		return nil, err
	}
	return &Node{
		config: config,
		store:  st,
		signer: signer,
		pool:   evidence.NewPool(config.Evidence),
		ticker: NewDeadlineTicker(),
		send:   send,
		chains: make(map[types.ChainID]*chainState),
	}, nil
}

// RegisterChain brings one chain under this node's management,
// restoring its consensus checkpoint and delivery state from the
// store if it was hosted before.
func (n *Node) RegisterChain(chainID types.ChainID, ownership types.ChainOwnership, committee *types.Committee) error {
	scheduler, err := NewRoundScheduler(chainID, ownership, committee)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.chains[chainID]; exists {
		return ErrChainExists
	}

	var manager *ChainManager
	info, err := n.store.ChainInfo(chainID)
	switch err {
	case nil:
		manager, err = RestoreChainManager(info, scheduler, n.signer, n.pool)
		if err != nil {
			return fmt.Errorf("failed to restore chain %s: %w", chainID, err)
		}
	case store.ErrNotFound:
		manager = NewChainManager(chainID, scheduler, n.signer, n.pool)
	default:
		return err
	}

	outbox := router.NewOutbox(chainID)
	outbox.SetEpoch(committee.Epoch)
	if err := n.restoreOutbox(chainID, outbox); err != nil {
		return err
	}

	inbox := router.NewInbox(chainID)

	n.chains[chainID] = &chainState{
		manager: manager,
		outbox:  outbox,
		inbox:   inbox,
	}
	n.scheduleDeadline(chainID, manager)
	return n.store.PutChainInfo(manager.Info())
}

// restoreOutbox requeues unacknowledged bundles from the store and
// recovers each recipient's previous-block pointer from the highest
// confirmed block that messaged it.
func (n *Node) restoreOutbox(chainID types.ChainID, outbox *router.Outbox) error {
	recipients, err := n.store.BundleRecipients(chainID)
	if err != nil {
		return err
	}
	for _, recipient := range recipients {
		bundles, err := n.store.Bundles(chainID, recipient)
		if err != nil {
			return err
		}
		var last uint64
		for _, b := range bundles {
			outbox.RestoreBundle(b)
			last = b.Height
		}
		if len(bundles) == 0 {
			continue
		}
		cert, err := n.store.CertificateByHeight(chainID, last)
		if err != nil {
			return err
		}
		outbox.SetPrevious(recipient, &types.PreviousMessageBlock{
			Recipient: recipient,
			Hash:      cert.Value.Hash(),
			Height:    last,
		})
	}
	return nil
}

// RestoreInboxCursor seeds a hosted chain's inbox cursor for one
// sender from the store. Called during startup for every sender the
// chain has history with.
func (n *Node) RestoreInboxCursor(recipient, sender types.ChainID) error {
	state, err := n.chain(recipient)
	if err != nil {
		return err
	}
	height, ok, err := n.store.InboxCursor(recipient, sender)
	if err != nil {
		return err
	}
	if ok {
		state.inbox.RestoreCursor(sender, height)
	}
	return nil
}

// Start arms the deadline ticker and begins driving timeout checks.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.started = true
	n.stopCh = make(chan struct{})
	n.mu.Unlock()

	n.ticker.Start()
	n.wg.Add(1)
	go n.run()
	return nil
}

// Stop halts timeout processing. Safe to call twice.
func (n *Node) Stop() {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return
	}
	n.started = false
	close(n.stopCh)
	n.mu.Unlock()

	n.ticker.Stop()
	n.wg.Wait()
}

func (n *Node) run() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		case d := <-n.ticker.Chan():
			if _, err := n.Tick(d.ChainID, time.Now()); err != nil {
				log.Printf("[ERROR] engine: deadline check for chain %s: %v", d.ChainID, err)
			}
		}
	}
}

func (n *Node) chain(chainID types.ChainID) (*chainState, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	state, ok := n.chains[chainID]
	if !ok {
		return nil, ErrUnknownChain
	}
	return state, nil
}

// ProposeBlock signs and applies a proposal for a hosted chain's
// next block. The outbox's previous-message pointers are filled in
// for every recipient the block messages before signing; without
// them, recipients past their first bundle would hold every later
// bundle as out of order.
func (n *Node) ProposeBlock(chainID types.ChainID, content types.Block) (*types.BlockProposal, *Outcome, error) {
	state, err := n.chain(chainID)
	if err != nil {
		return nil, nil, err
	}
	content.PreviousMessageBlocks = previousPointers(state.outbox, content.Messages)
	proposal, outcome, err := state.manager.MakeProposal(content)
	if err != nil {
		return nil, nil, err
	}
	if err := n.afterOutcome(chainID, state, outcome); err != nil {
		return nil, nil, err
	}
	return proposal, outcome, nil
}

// previousPointers collects the outbox's previous-block pointer for
// each distinct recipient of the given messages, sorted by recipient
// as the block wire format requires. Recipients never messaged
// before contribute nothing.
func previousPointers(outbox *router.Outbox, messages []types.OutgoingMessage) []types.PreviousMessageBlock {
	var out []types.PreviousMessageBlock
	seen := make(map[types.ChainID]bool)
	for _, m := range messages {
		if seen[m.Recipient] {
			continue
		}
		seen[m.Recipient] = true
		if p := outbox.PreviousFor(m.Recipient); p != nil {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return types.CompareChainIDs(out[i].Recipient, out[j].Recipient) < 0
	})
	return out
}

// SubmitProposal routes an inbound proposal to its chain.
func (n *Node) SubmitProposal(p *types.BlockProposal) (*Outcome, error) {
	state, err := n.chain(p.Content.ChainID)
	if err != nil {
		return nil, err
	}
	outcome, err := state.manager.HandleProposal(p)
	if err != nil {
		return nil, err
	}
	return outcome, n.afterOutcome(p.Content.ChainID, state, outcome)
}

// SubmitVote routes an inbound vote to its chain.
func (n *Node) SubmitVote(v *types.LiteVote) (*Outcome, error) {
	state, err := n.chain(v.Value.ChainID)
	if err != nil {
		return nil, err
	}
	var outcome *Outcome
	if v.Value.Kind == types.CertTimeout {
		outcome, err = state.manager.HandleTimeoutVote(v)
	} else {
		outcome, err = state.manager.HandleVote(v)
	}
	if err != nil {
		return nil, err
	}
	return outcome, n.afterOutcome(v.Value.ChainID, state, outcome)
}

// SubmitTimeoutVote routes an inbound timeout vote to its chain.
func (n *Node) SubmitTimeoutVote(v *types.LiteVote) (*Outcome, error) {
	state, err := n.chain(v.Value.ChainID)
	if err != nil {
		return nil, err
	}
	outcome, err := state.manager.HandleTimeoutVote(v)
	if err != nil {
		return nil, err
	}
	return outcome, n.afterOutcome(v.Value.ChainID, state, outcome)
}

// SubmitCertificate routes an externally formed certificate to its
// chain.
func (n *Node) SubmitCertificate(c *types.Certificate) (*Outcome, error) {
	state, err := n.chain(c.Value.ChainIDOf())
	if err != nil {
		return nil, err
	}
	outcome, err := state.manager.HandleCertificate(c)
	if err != nil {
		return nil, err
	}
	return outcome, n.afterOutcome(c.Value.ChainIDOf(), state, outcome)
}

// Tick drives one chain's deadline check.
func (n *Node) Tick(chainID types.ChainID, now time.Time) (*Outcome, error) {
	state, err := n.chain(chainID)
	if err != nil {
		return nil, err
	}
	outcome, err := state.manager.Tick(now)
	if err != nil {
		return nil, err
	}
	return outcome, n.afterOutcome(chainID, state, outcome)
}

// ChainInfo returns a hosted chain's consensus snapshot.
func (n *Node) ChainInfo(chainID types.ChainID) (*types.ChainManagerInfo, error) {
	state, err := n.chain(chainID)
	if err != nil {
		return nil, err
	}
	return state.manager.Info(), nil
}

// NextBundles exposes a hosted chain's in-order inbox for block
// building.
func (n *Node) NextBundles(chainID types.ChainID) ([]*types.IncomingBundle, error) {
	state, err := n.chain(chainID)
	if err != nil {
		return nil, err
	}
	return state.inbox.NextBundles(), nil
}

// Evidence exposes the node's pending equivocation evidence.
func (n *Node) Evidence() []*evidence.Evidence {
	return n.pool.Pending()
}

// ReceiveCrossChain handles a request from a remote chain's host:
// an UpdateRecipient push returns the acknowledgement to send back,
// a ConfirmUpdatedRecipient ack prunes the local outbox and returns
// nil.
func (n *Node) ReceiveCrossChain(req *types.CrossChainRequest) (*types.CrossChainRequest, error) {
	if err := req.ValidateBasic(); err != nil {
		return nil, err
	}
	switch req.Kind {
	case types.CrossChainUpdateRecipient:
		update := req.Update
		state, err := n.chain(update.Recipient)
		if err != nil {
			return nil, err
		}
		ack, err := state.inbox.Receive(update)
		if err != nil {
			return nil, err
		}
		if ack == nil {
			return nil, nil
		}
		if err := n.store.PutInboxCursor(ack.Recipient, ack.Sender, ack.Height); err != nil {
			return nil, err
		}
		return types.NewConfirmRequest(ack), nil

	case types.CrossChainConfirmUpdatedRecipient:
		ack := req.Confirm
		state, err := n.chain(ack.Sender)
		if err != nil {
			return nil, err
		}
		if err := state.outbox.HandleAck(ack); err != nil {
			return nil, err
		}
		return nil, n.store.PruneBundles(ack.Sender, ack.Recipient, ack.Height)

	default:
		return nil, types.ErrUnknownRequestKind
	}
}

// afterOutcome persists and propagates what an operation produced:
// confirmed blocks go to the store and the router, the chain's
// checkpoint is rewritten, and the round deadline is rescheduled.
func (n *Node) afterOutcome(chainID types.ChainID, state *chainState, outcome *Outcome) error {
	if outcome != nil && outcome.Confirmed != nil {
		if err := n.onConfirmed(chainID, state, outcome.Confirmed); err != nil {
			return err
		}
	}
	if err := n.store.PutChainInfo(state.manager.Info()); err != nil {
		return err
	}
	n.scheduleDeadline(chainID, state.manager)
	return nil
}

// onConfirmed persists the certificate, bundles the block's
// outgoing messages, and delivers them: directly into locally
// hosted recipients' inboxes, through the cross-chain sender
// otherwise. The block is durably confirmed before any bundle
// exists.
func (n *Node) onConfirmed(chainID types.ChainID, state *chainState, cert *types.Certificate) error {
	if err := n.store.PutCertificate(cert); err != nil {
		return err
	}
	block := cert.Value.Block
	if len(block.Messages) == 0 {
		return nil
	}

	bundlesByRecipient, err := state.outbox.OnBlockConfirmed(block, cert)
	if err != nil {
		return err
	}
	for recipient, bundles := range bundlesByRecipient {
		for _, b := range bundles {
			if err := n.store.PutBundle(b); err != nil {
				return err
			}
		}
		if err := n.deliver(chainID, state, recipient); err != nil {
			return err
		}
	}
	return nil
}

// deliver pushes a recipient's pending bundles: loopback for chains
// hosted on this node, the cross-chain sender for everything else.
func (n *Node) deliver(sender types.ChainID, state *chainState, recipient types.ChainID) error {
	update := state.outbox.MakeUpdateRecipient(recipient)
	if update == nil {
		return nil
	}

	if local, err := n.chain(recipient); err == nil {
		ack, err := local.inbox.Receive(update)
		if err != nil {
			return err
		}
		if ack == nil {
			return nil
		}
		if err := n.store.PutInboxCursor(recipient, sender, ack.Height); err != nil {
			return err
		}
		if err := state.outbox.HandleAck(ack); err != nil {
			return err
		}
		return n.store.PruneBundles(sender, recipient, ack.Height)
	}

	if n.send != nil {
		n.send(types.NewUpdateRequest(update))
	}
	return nil
}

// scheduleDeadline (re)arms the ticker from the chain's current
// round deadline; a round with no deadline cancels any pending one.
func (n *Node) scheduleDeadline(chainID types.ChainID, manager *ChainManager) {
	info := manager.Info()
	if info.RoundDeadline == (types.Timestamp{}) {
		n.ticker.Cancel(chainID)
		return
	}
	n.ticker.Schedule(Deadline{
		ChainID: chainID,
		Height:  info.Height,
		Round:   info.Round,
		At:      info.RoundDeadline.ToTime(),
	})
}
