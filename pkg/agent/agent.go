// Copyright 2025 Certen Protocol
//
// Agent is the per-identifier façade a controller runs: it builds events
// via its Key Manager, submits them (and collects witness receipts) over
// Transport, and polls its mailbox for forwarded multisig/delegation
// exchanges on a fixed interval. Grounded on pkg/anchor/scheduler.go's
// AnchorSchedulerService in the teacher repository: a context-driven
// ticker loop (batchCheckLoop) plus a channel surface for completed work,
// generalized here from anchor-batch scheduling to mailbox polling.

package agent

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/codec/keymanager"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/mailbox"
	"github.com/certen/independant-validator/pkg/metrics"
	"github.com/certen/independant-validator/pkg/notify"
	"github.com/certen/independant-validator/pkg/storage"
	"github.com/certen/independant-validator/pkg/transport"
	"github.com/certen/independant-validator/pkg/validator"
)

// Config controls the agent's background polling cadence.
type Config struct {
	MailboxPollInterval time.Duration
	HashCode            codec.DigestCode
}

// DefaultConfig polls every five seconds and self-addresses with Blake3-256,
// the same digest code pkg/config uses when KERI_HASH_CODE is unset.
func DefaultConfig() Config {
	return Config{MailboxPollInterval: 5 * time.Second, HashCode: codec.DigestBlake3_256}
}

// Agent is one controller's local runtime.
type Agent struct {
	cfg       Config
	prefix    codec.Prefix
	keys      *keymanager.KeyManager
	storage   *storage.Storage
	validator *validator.Validator
	mailboxes *mailbox.Mailbox
	bus       *notify.Bus
	peers     map[string]transport.Transport // witness/watcher prefix text -> transport
	logger    *log.Logger

	mailboxCursors map[mailbox.Topic]int
	nextWitness    int // round-robin index into the witness list for mailbox polling

	metrics *metrics.Registry
}

// WithMetrics wires a to reg so every mailbox poll reports its result to
// the engine's Prometheus registry.
func (a *Agent) WithMetrics(reg *metrics.Registry) *Agent {
	a.metrics = reg
	return a
}

// New builds an Agent for the identifier whose inception event established
// prefix. peers maps each witness/watcher's prefix text to the Transport
// used to reach it.
func New(cfg Config, prefix codec.Prefix, keys *keymanager.KeyManager, store *storage.Storage, v *validator.Validator, mb *mailbox.Mailbox, bus *notify.Bus, peers map[string]transport.Transport, logger *log.Logger) *Agent {
	if logger == nil {
		logger = log.New(log.Writer(), "[agent] ", log.LstdFlags)
	}
	return &Agent{
		cfg: cfg, prefix: prefix, keys: keys, storage: store, validator: v,
		mailboxes: mb, bus: bus, peers: peers, logger: logger,
		mailboxCursors: make(map[mailbox.Topic]int),
	}
}

// Run blocks, polling the mailbox every cfg.MailboxPollInterval, until ctx
// is cancelled.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.MailboxPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollMailboxOnce(ctx)
		}
	}
}

// pollMailboxOnce polls one witness per cycle, round-robin, across every
// topic this agent cares about -- spreading read load across the witness
// pool rather than hammering one (SPEC_FULL.md's resolution of spec.md's
// open question on witness selection policy, drawn from
// original_source/'s round-robin mailbox client).
func (a *Agent) pollMailboxOnce(ctx context.Context) {
	peer := a.nextPeer()
	if peer == nil {
		return
	}
	for _, topic := range []mailbox.Topic{mailbox.TopicMultisig, mailbox.TopicDelegate, mailbox.TopicReceipt, mailbox.TopicCredential, mailbox.TopicReplay, mailbox.TopicReply} {
		cursor := a.mailboxCursors[topic]
		msgs, err := peer.PollMailbox(ctx, a.prefix, string(topic), cursor)
		if err != nil {
			a.logger.Printf("mailbox poll %s failed: %v", topic, err)
			a.metrics.ObserveMailboxPoll(string(topic), "error")
			continue
		}
		a.metrics.ObserveMailboxPoll(string(topic), "ok")
		for _, m := range msgs {
			a.handleExchange(m)
		}
		a.mailboxCursors[topic] = cursor + len(msgs)
	}
}

func (a *Agent) nextPeer() transport.Transport {
	if len(a.peers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(a.peers))
	for k := range a.peers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	idx := a.nextWitness % len(keys)
	a.nextWitness++
	return a.peers[keys[idx]]
}

// handleExchange re-runs a forwarded multisig/delegate/credential/replay
// exn message through local validation: exn wraps the same (KeyEvent, sigs)
// pair a direct submission would carry, so accepting it is just another
// ValidateEvent call. The validator itself publishes KeyEventAdded (and
// whichever escrow notification fits) once it decides the outcome; this
// method does not publish anything directly.
func (a *Agent) handleExchange(m event.Exchange) {
	if _, err := a.validator.ValidateEvent(&m.Payload, m.Sigs); err != nil {
		a.logger.Printf("mailbox exchange %s from %s: %v", m.Route, m.Sender, err)
	}
}

// BuildInception constructs, serializes, signs, and locally validates a new
// inception event, returning the resulting event and its indexed signatures.
func (a *Agent) BuildInception(params event.InceptionParams) (*event.KeyEvent, []codec.IndexedSignature, error) {
	ev, err := event.BuildInception(params)
	if err != nil {
		return nil, nil, err
	}
	return a.finishAndValidate(ev)
}

// BuildRotation constructs, serializes, signs, and locally validates a
// rotation event against the identifier's current state. It rotates the key
// manager before building the event rather than after: a rotation event
// must be signed by the newly-revealed current key (spec.md §4.4 step 5),
// and that key does not exist until the key manager turns over, so
// params.CurrentKeys/NextKeys are overwritten with the key manager's own
// post-rotation keys. This agent always manages a single-signer identifier
// (group identifiers compose at the process level, per DESIGN.md's open
// question on nested groups), so there is never a caller-supplied key set
// to reconcile against.
func (a *Agent) BuildRotation(params event.RotationParams) (*event.KeyEvent, []codec.IndexedSignature, error) {
	newCurrent, newNext, err := a.keys.Rotate()
	if err != nil {
		return nil, nil, fmt.Errorf("agent: rotate key manager: %w", err)
	}
	params.CurrentKeys = []codec.Prefix{newCurrent}
	params.NextKeys = []codec.Prefix{newNext}
	params.NextKeyHashes = nil

	ev, err := event.BuildRotation(params)
	if err != nil {
		return nil, nil, err
	}
	return a.finishAndValidate(ev)
}

// BuildInteraction constructs, serializes, signs, and locally validates an
// interaction event.
func (a *Agent) BuildInteraction(params event.InteractionParams) (*event.KeyEvent, []codec.IndexedSignature, error) {
	ev, err := event.BuildInteraction(params)
	if err != nil {
		return nil, nil, err
	}
	return a.finishAndValidate(ev)
}

// finishAndValidate serializes ev (filling in Digest/Version/Prefix), signs
// the resulting canonical bytes with the agent's current key, and runs the
// signed event through local validation before returning it.
func (a *Agent) finishAndValidate(ev *event.KeyEvent) (*event.KeyEvent, []codec.IndexedSignature, error) {
	raw, _, err := event.Serialize(ev, a.cfg.HashCode)
	if err != nil {
		return nil, nil, fmt.Errorf("agent: serialize event: %w", err)
	}
	sig, err := a.keys.Sign(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("agent: sign event: %w", err)
	}
	// A rotation redeems the prior next-keys-data commitment: this agent's
	// single-signer key manager always holds its sole key at position 0 of
	// both the current and (when it was committed) the prior next-keys
	// list, so the same index pairs both slots (the "both-same" case §9
	// describes). Inception/interaction carry no such commitment to redeem.
	idx := codec.Index{Current: 0}
	if ev.Kind == event.Rot || ev.Kind == event.Drt {
		idx.PreviousNext = 0
		idx.HasPreviousNext = true
	}
	sigs := []codec.IndexedSignature{{Index: idx, Sig: sig}}
	if _, err := a.validator.ValidateEvent(ev, sigs); err != nil {
		return nil, nil, err
	}
	return ev, sigs, nil
}

// BroadcastToWitnesses submits ev and its signatures to every witness peer,
// collecting and deduplicating the receipts that come back.
func (a *Agent) BroadcastToWitnesses(ctx context.Context, ev *event.KeyEvent, sigs []codec.IndexedSignature) ([]event.Receipt, error) {
	seen := make(map[string]bool)
	var receipts []event.Receipt
	for name, peer := range a.peers {
		if err := peer.SubmitEvent(ctx, ev, sigs); err != nil {
			a.logger.Printf("submit to %s failed: %v", name, err)
			continue
		}
	}
	stored, err := a.storage.GetReceipts(ev.Digest)
	if err != nil && err != storage.ErrNotFound {
		return nil, err
	}
	for _, r := range stored {
		key := receiptDedupKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		receipts = append(receipts, r)
	}
	return receipts, nil
}

func receiptDedupKey(r event.Receipt) string {
	prefixText, _ := r.Prefix.Text()
	digestText, _ := r.Digest.Text()
	key := fmt.Sprintf("%s/%d/%s", prefixText, r.Sn, digestText)
	for _, c := range r.Couplets {
		witnessText, _ := c.Witness.Text()
		key += "/" + witnessText
	}
	for _, is := range r.IndexedWitnessSigs {
		key += fmt.Sprintf("/#%d", is.Index.Current)
	}
	return key
}

// Signer couples a group participant's identifier prefix to the indexed
// signature it attached to the current partially-signed event.
type Signer struct {
	Prefix codec.Prefix
	Sig    codec.IndexedSignature
}

// ElectLeader picks, among the participants whose indexed signatures are
// attached to the current partially signed event, the one whose Current
// key index is smallest -- spec.md §4.7's leader election rule. Indices
// are unique per signer within one event, so ties are impossible
// (spec.md §8's leader-election testable property).
func ElectLeader(participants []Signer) (codec.Prefix, error) {
	if len(participants) == 0 {
		return codec.Prefix{}, fmt.Errorf("agent: cannot elect a leader from an empty participant set")
	}
	leader := participants[0]
	for _, p := range participants[1:] {
		if p.Sig.Index.Current < leader.Sig.Index.Current {
			leader = p
		}
	}
	return leader.Prefix, nil
}
