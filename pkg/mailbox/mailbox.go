// Copyright 2025 Certen Protocol
//
// Mailbox is the per-recipient, per-topic message queue witnesses and
// agents use to forward multisig/delegation exchange (exn) messages and
// receipts to identifiers that are not always online (spec.md §4.7).
// Grounded on pkg/batch.Collector's mutex-guarded in-memory accumulation
// pattern in the teacher repository, generalized from "one open batch per
// type" to "one queue per (recipient, topic)" with an at-least-once
// cursor instead of a close/anchor lifecycle.

package mailbox

import (
	"sync"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
)

// Topic names a mailbox queue kind.
type Topic string

const (
	TopicMultisig   Topic = "multisig"
	TopicReceipt    Topic = "receipt"
	TopicDelegate   Topic = "delegate"
	TopicCredential Topic = "credential"
	TopicReplay     Topic = "replay"
	TopicReply      Topic = "reply"
)

// Message is one queued mailbox entry. Exactly one of Exchange/Receipt/Reply
// is set, matching Topic. Credential and replay entries reuse Exchange's
// signed-wrapper shape (spec.md §6's mailbox response shape names four
// message-shaped topics and two reply-shaped ones).
type Message struct {
	Exchange *event.Exchange
	Receipt  *event.Receipt
	Reply    *event.Reply
}

type queue struct {
	mu   sync.Mutex
	msgs []Message
}

// Mailbox holds every recipient's per-topic queues in memory. It does not
// itself persist across restarts: a witness's mailbox is a forwarding
// relay, not the durable KEL/TEL record (that is storage.Storage's job).
type Mailbox struct {
	mu     sync.RWMutex
	queues map[string]*queue // key: recipient text + "/" + topic
}

// New returns an empty Mailbox.
func New() *Mailbox {
	return &Mailbox{queues: make(map[string]*queue)}
}

func key(recipient codec.Prefix, topic Topic) (string, error) {
	text, err := recipient.Text()
	if err != nil {
		return "", err
	}
	return text + "/" + string(topic), nil
}

// Enqueue appends msg to recipient's topic queue.
func (m *Mailbox) Enqueue(recipient codec.Prefix, topic Topic, msg Message) error {
	k, err := key(recipient, topic)
	if err != nil {
		return err
	}
	q := m.queueFor(k)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

func (m *Mailbox) queueFor(k string) *queue {
	m.mu.RLock()
	q, ok := m.queues[k]
	m.mu.RUnlock()
	if ok {
		return q
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[k]; ok {
		return q
	}
	q = &queue{}
	m.queues[k] = q
	return q
}

// Poll returns every message enqueued after cursor (an index into the
// queue's arrival order), along with the new cursor value. At-least-once
// delivery: messages are never removed by Poll, only by Prune once a peer
// confirms consumption past a given cursor.
func (m *Mailbox) Poll(recipient codec.Prefix, topic Topic, cursor int) ([]Message, int, error) {
	k, err := key(recipient, topic)
	if err != nil {
		return nil, cursor, err
	}
	q := m.queueFor(k)
	q.mu.Lock()
	defer q.mu.Unlock()
	if cursor < 0 || cursor >= len(q.msgs) {
		return nil, len(q.msgs), nil
	}
	out := append([]Message(nil), q.msgs[cursor:]...)
	return out, len(q.msgs), nil
}

// Prune discards every message before upToCursor (the first upToCursor
// messages in arrival order), since a cursor
// acknowledgement means the peer has durably consumed them.
func (m *Mailbox) Prune(recipient codec.Prefix, topic Topic, upToCursor int) error {
	k, err := key(recipient, topic)
	if err != nil {
		return err
	}
	q := m.queueFor(k)
	q.mu.Lock()
	defer q.mu.Unlock()
	if upToCursor <= 0 || upToCursor > len(q.msgs) {
		return nil
	}
	q.msgs = append([]Message(nil), q.msgs[upToCursor:]...)
	return nil
}
