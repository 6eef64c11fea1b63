// Package hub delivers comments to every connection watching an activity in real time.
//
// A single goroutine owns the groups. Joining, leaving, disconnecting and broadcasting are messages
// to that goroutine so the groups are never shared. Delivery to a sink never blocks: a sink which
// cannot take a frame is closed and removed from all its groups.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by operations on a hub which is no longer running.
var ErrStopped = errors.New("hub stopped")

// Sink is one receiving end of the hub, like a WebSocket connection or an SSE stream.
type Sink interface {
	ID() string
	// Send enqueues the frame and returns false if the sink is closed or cannot take more frames.
	// It must never block.
	Send(frame Frame) bool
	Close()
}

// Frame is a message marshaled once and shared by every sink it is delivered to.
type Frame struct {
	Type    string
	Payload []byte
}

// Backplane shares broadcasts between hubs of several replicas.
type Backplane interface {
	Publish(activityID string, frame Frame) error
	// Subscribe calls ready once the subscription is active and deliver for every frame published
	// from then on. It blocks until ctx is cancelled or the subscription fails.
	Subscribe(ctx context.Context, ready func(), deliver func(activityID string, frame Frame)) error
}

const (
	minResubscribeDelay = 500 * time.Millisecond
	maxResubscribeDelay = 30 * time.Second
)

type membership struct {
	activityID string
	sink       Sink
	// added is set before done is closed. It reports whether a join made the sink a member.
	added *bool
	done  chan struct{}
}

type delivery struct {
	activityID string
	frame      Frame
}

type query struct {
	activityID string
	reply      chan int
}

func New(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		joins:      make(chan membership),
		leaves:     make(chan membership),
		disconnect: make(chan membership),
		deliveries: make(chan delivery, 256),
		queries:    make(chan query),
		stopped:    make(chan struct{}),
	}
}

type Hub struct {
	logger     *slog.Logger
	backplane  Backplane
	subscribed atomic.Bool
	joins      chan membership
	leaves     chan membership
	disconnect chan membership
	deliveries chan delivery
	queries    chan query
	stopped    chan struct{}
}

// WithBackplane routes broadcasts through backplane. Run subscribes to it and delivers whatever it
// receives locally.
func (h *Hub) WithBackplane(backplane Backplane) *Hub {
	h.backplane = backplane
	return h
}

// Run processes messages until ctx is cancelled. All sinks are closed once it returns.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)

	if h.backplane != nil {
		go h.subscribe(ctx)
	}

	groups := make(map[string]map[Sink]struct{})
	memberships := make(map[Sink]map[string]struct{})

	remove := func(sink Sink) {
		for activityID := range memberships[sink] {
			delete(groups[activityID], sink)
			if len(groups[activityID]) == 0 {
				delete(groups, activityID)
			}
		}
		delete(memberships, sink)
	}

	for {
		select {
		case <-ctx.Done():
			for sink := range memberships {
				sink.Close()
			}
			return nil
		case m := <-h.joins:
			if groups[m.activityID] == nil {
				groups[m.activityID] = make(map[Sink]struct{})
			}
			_, member := groups[m.activityID][m.sink]
			*m.added = !member
			groups[m.activityID][m.sink] = struct{}{}
			if memberships[m.sink] == nil {
				memberships[m.sink] = make(map[string]struct{})
			}
			memberships[m.sink][m.activityID] = struct{}{}
			close(m.done)
		case m := <-h.leaves:
			delete(groups[m.activityID], m.sink)
			if len(groups[m.activityID]) == 0 {
				delete(groups, m.activityID)
			}
			delete(memberships[m.sink], m.activityID)
			if len(memberships[m.sink]) == 0 {
				delete(memberships, m.sink)
			}
			close(m.done)
		case m := <-h.disconnect:
			remove(m.sink)
			close(m.done)
		case d := <-h.deliveries:
			for sink := range groups[d.activityID] {
				if sink.Send(d.frame) {
					continue
				}
				h.logger.WarnContext(ctx, "Dropping sink which can't take more frames", "sink", sink.ID(), "activityId", d.activityID, "type", d.frame.Type)
				remove(sink)
				sink.Close()
			}
		case q := <-h.queries:
			q.reply <- len(groups[q.activityID])
		}
	}
}

// Join adds sink to the group of the activity and reports whether it was not a member before.
// Joining a group twice has no effect. Join returns once the sink is a member, so it receives every
// broadcast from then on.
func (h *Hub) Join(ctx context.Context, activityID string, sink Sink) (bool, error) {
	var added bool
	err := h.send(ctx, h.joins, membership{activityID: activityID, sink: sink, added: &added, done: make(chan struct{})})
	if err != nil {
		return false, err
	}
	return added, nil
}

// Leave removes sink from the group of the activity. Leaving a group the sink is not a member of
// has no effect.
func (h *Hub) Leave(ctx context.Context, activityID string, sink Sink) error {
	return h.send(ctx, h.leaves, membership{activityID: activityID, sink: sink, done: make(chan struct{})})
}

// Disconnect removes sink from all its groups.
func (h *Hub) Disconnect(ctx context.Context, sink Sink) error {
	return h.send(ctx, h.disconnect, membership{sink: sink, done: make(chan struct{})})
}

func (h *Hub) send(ctx context.Context, ch chan membership, m membership) error {
	select {
	case ch <- m:
	case <-h.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-m.done:
		return nil
	case <-h.stopped:
		return ErrStopped
	}
}

// Members returns the number of sinks in the group of the activity.
func (h *Hub) Members(ctx context.Context, activityID string) (int, error) {
	q := query{activityID: activityID, reply: make(chan int, 1)}
	select {
	case h.queries <- q:
	case <-h.stopped:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return <-q.reply, nil
}

// Broadcast sends message to every sink in the group of the activity. The message is marshaled once.
// Broadcasting is best effort: failing to reach the backplane falls back to local delivery and
// failing sinks are dropped. While the hub isn't subscribed to its backplane messages are delivered
// locally only.
func (h *Hub) Broadcast(ctx context.Context, activityID string, message Message) error {
	frame, err := newFrame(message)
	if err != nil {
		return err
	}

	if h.backplane != nil && h.subscribed.Load() {
		err := h.backplane.Publish(activityID, frame)
		if err == nil {
			return nil
		}
		h.logger.ErrorContext(ctx, "Failed to publish to backplane, delivering locally", "activityId", activityID, "error", err)
	}

	h.deliverLocally(activityID, frame)
	return nil
}

// subscribe keeps the hub subscribed to its backplane until ctx is cancelled.
func (h *Hub) subscribe(ctx context.Context) {
	delay := minResubscribeDelay
	for {
		err := h.backplane.Subscribe(ctx, func() {
			h.subscribed.Store(true)
			delay = minResubscribeDelay
		}, h.deliverLocally)
		h.subscribed.Store(false)
		if ctx.Err() != nil {
			return
		}
		h.logger.ErrorContext(ctx, "Backplane subscription ended, resubscribing", "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(2*delay, maxResubscribeDelay)
	}
}

func (h *Hub) deliverLocally(activityID string, frame Frame) {
	select {
	case h.deliveries <- delivery{activityID: activityID, frame: frame}:
	case <-h.stopped:
	}
}

func newFrame(message Message) (Frame, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal %q message: %v", message.Type, err)
	}
	return Frame{Type: message.Type, Payload: payload}, nil
}
