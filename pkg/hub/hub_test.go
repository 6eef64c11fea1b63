package hub_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dhis2-sre/im-activities/pkg/hub"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	activityID      = "6f1c2d3e-4b5a-4c6d-8e9f-0a1b2c3d4e5f"
	otherActivityID = "0b7f9c1e-2a3d-4e5f-8a9b-c0d1e2f3a4b5"
)

func TestHub_Broadcast(t *testing.T) {
	h := startHub(t)
	sender, watcher, bystander := newSink("sender", 8), newSink("watcher", 8), newSink("bystander", 8)
	join(t, h, activityID, sender, watcher)
	join(t, h, otherActivityID, bystander)

	err := h.BroadcastComment(context.Background(), model.CommentDTO{ID: "comment-1", Body: "hello"}, activityID)
	require.NoError(t, err)

	for _, s := range []*sink{sender, watcher} {
		frame := s.next(t)
		assert.Equal(t, hub.TypeCommentCreated, frame.Type)
		var message struct {
			Type       string           `json:"type"`
			ActivityID string           `json:"activityId"`
			Data       model.CommentDTO `json:"data"`
		}
		require.NoError(t, json.Unmarshal(frame.Payload, &message))
		assert.Equal(t, hub.TypeCommentCreated, message.Type)
		assert.Equal(t, activityID, message.ActivityID)
		assert.Equal(t, "comment-1", message.Data.ID)
	}
	bystander.none(t)
}

func TestHub_Broadcast_SharesPayload(t *testing.T) {
	h := startHub(t)
	first, second := newSink("first", 1), newSink("second", 1)
	join(t, h, activityID, first, second)

	require.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated, Data: "x"}))

	a, b := first.next(t), second.next(t)
	assert.Same(t, &a.Payload[0], &b.Payload[0])
}

func TestHub_Join_Idempotent(t *testing.T) {
	h := startHub(t)
	s := newSink("sink", 8)

	added, err := h.Join(context.Background(), activityID, s)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = h.Join(context.Background(), activityID, s)
	require.NoError(t, err)
	assert.False(t, added, "joining twice must not report a new membership")
	added, err = h.Join(context.Background(), otherActivityID, s)
	require.NoError(t, err)
	assert.True(t, added)

	members, err := h.Members(context.Background(), activityID)
	require.NoError(t, err)
	assert.Equal(t, 1, members)

	require.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated}))
	s.next(t)
	s.none(t)
}

func TestHub_Join_SeveralGroups(t *testing.T) {
	h := startHub(t)
	s := newSink("sink", 8)
	join(t, h, activityID, s)
	join(t, h, otherActivityID, s)

	require.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated}))
	require.NoError(t, h.Broadcast(context.Background(), otherActivityID, hub.Message{Type: hub.TypeCommentCreated}))

	s.next(t)
	s.next(t)
}

func TestHub_Leave(t *testing.T) {
	h := startHub(t)
	leaving, staying := newSink("leaving", 8), newSink("staying", 8)
	join(t, h, activityID, leaving, staying)

	require.NoError(t, h.Leave(context.Background(), activityID, leaving))
	require.NoError(t, h.Leave(context.Background(), otherActivityID, leaving), "leaving a group never joined has no effect")

	require.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated}))
	staying.next(t)
	leaving.none(t)
	assert.False(t, leaving.isClosed(), "leaving a group must not close the sink")
}

func TestHub_Disconnect(t *testing.T) {
	h := startHub(t)
	s := newSink("sink", 8)
	join(t, h, activityID, s)
	join(t, h, otherActivityID, s)

	require.NoError(t, h.Disconnect(context.Background(), s))

	assertMembers(t, h, activityID, 0)
	assertMembers(t, h, otherActivityID, 0)
}

func TestHub_Broadcast_DropsFailingSink(t *testing.T) {
	h := startHub(t)
	healthy, closed, full := newSink("healthy", 8), newSink("closed", 8), newSink("full", 0)
	join(t, h, activityID, healthy, closed, full)
	join(t, h, otherActivityID, closed)
	closed.Close()

	require.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated}))

	healthy.next(t)
	assert.Eventually(t, func() bool {
		members, err := h.Members(context.Background(), activityID)
		return err == nil && members == 1
	}, time.Second, 10*time.Millisecond)
	assertMembers(t, h, otherActivityID, 0)
	assert.True(t, full.isClosed())

	require.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated}))
	healthy.next(t)
}

func TestHub_Broadcast_BackplaneDown(t *testing.T) {
	backplane := &unreachable{subscribed: make(chan struct{})}
	h := startHubWith(t, hub.New(discard()).WithBackplane(backplane))
	s := newSink("sink", 8)
	join(t, h, activityID, s)
	awaitSubscribed(t, backplane.subscribed)

	require.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated}))

	assert.Equal(t, hub.TypeCommentCreated, s.next(t).Type)
}

func TestHub_Broadcast_Resubscribes(t *testing.T) {
	backplane := newLoopback(1)
	h := startHubWith(t, hub.New(discard()).WithBackplane(backplane))
	s := newSink("sink", 8)
	join(t, h, activityID, s)

	require.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated}))

	assert.Equal(t, hub.TypeCommentCreated, s.next(t).Type, "frames are delivered locally while the hub isn't subscribed")
	assert.Equal(t, 0, backplane.publishedCount())

	awaitSubscribed(t, backplane.subscribed)
	require.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated}))

	assert.Equal(t, hub.TypeCommentCreated, s.next(t).Type)
	s.none(t)
	assert.Equal(t, 1, backplane.publishedCount())
	assert.Equal(t, 2, backplane.subscriptionCount())
}

func TestHub_Stopped(t *testing.T) {
	h := hub.New(discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- h.Run(ctx) }()

	s := newSink("sink", 8)
	join(t, h, activityID, s)

	cancel()
	require.NoError(t, <-done)

	assert.True(t, s.isClosed(), "sinks are closed once the hub stops")
	_, err := h.Join(context.Background(), activityID, s)
	assert.ErrorIs(t, err, hub.ErrStopped)
	_, err = h.Members(context.Background(), activityID)
	assert.ErrorIs(t, err, hub.ErrStopped)
	assert.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated}))
}

func TestHub_Concurrent(t *testing.T) {
	h := startHub(t)
	watcher := newSink("watcher", 1024)
	join(t, h, activityID, watcher)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := newSink("", 64)
			_, err := h.Join(context.Background(), activityID, s)
			assert.NoError(t, err)
			assert.NoError(t, h.Broadcast(context.Background(), activityID, hub.Message{Type: hub.TypeCommentCreated}))
			assert.NoError(t, h.Disconnect(context.Background(), s))
		}()
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		watcher.next(t)
	}
	assertMembers(t, h, activityID, 1)
}

func startHub(t *testing.T) *hub.Hub {
	t.Helper()
	return startHubWith(t, hub.New(discard()))
}

func startHubWith(t *testing.T, h *hub.Hub) *hub.Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func join(t *testing.T, h *hub.Hub, activityID string, sinks ...hub.Sink) {
	t.Helper()
	for _, s := range sinks {
		_, err := h.Join(context.Background(), activityID, s)
		require.NoError(t, err)
	}
}

func assertMembers(t *testing.T, h *hub.Hub, activityID string, expected int) {
	t.Helper()
	members, err := h.Members(context.Background(), activityID)
	require.NoError(t, err)
	assert.Equal(t, expected, members)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func awaitSubscribed(t *testing.T, subscribed <-chan struct{}) {
	t.Helper()
	select {
	case <-subscribed:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for the backplane subscription")
	}
}

// unreachable accepts the subscription but fails every publish.
type unreachable struct {
	subscribed chan struct{}
}

func (u *unreachable) Publish(string, hub.Frame) error {
	return errors.New("connection refused")
}

func (u *unreachable) Subscribe(ctx context.Context, ready func(), _ func(string, hub.Frame)) error {
	ready()
	close(u.subscribed)
	<-ctx.Done()
	return nil
}

// loopback delivers published frames to the hub subscribed to it. The first failures subscriptions
// fail right away.
type loopback struct {
	mu            sync.Mutex
	failures      int
	subscriptions int
	published     int
	deliver       func(string, hub.Frame)
	subscribed    chan struct{}
}

func newLoopback(failures int) *loopback {
	return &loopback{failures: failures, subscribed: make(chan struct{})}
}

func (l *loopback) Publish(activityID string, frame hub.Frame) error {
	l.mu.Lock()
	deliver := l.deliver
	l.published++
	l.mu.Unlock()

	if deliver == nil {
		return errors.New("no subscriber")
	}
	deliver(activityID, frame)
	return nil
}

func (l *loopback) Subscribe(ctx context.Context, ready func(), deliver func(string, hub.Frame)) error {
	l.mu.Lock()
	l.subscriptions++
	if l.subscriptions <= l.failures {
		l.mu.Unlock()
		return errors.New("connection reset by peer")
	}
	l.deliver = deliver
	l.mu.Unlock()

	ready()
	close(l.subscribed)
	<-ctx.Done()
	return nil
}

func (l *loopback) publishedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.published
}

func (l *loopback) subscriptionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subscriptions
}

// sink buffers up to size frames. It refuses frames once full or closed.
type sink struct {
	id     string
	frames chan hub.Frame
	mu     sync.Mutex
	closed bool
}

func newSink(id string, size int) *sink {
	return &sink{id: id, frames: make(chan hub.Frame, size)}
}

func (s *sink) ID() string {
	return s.id
}

func (s *sink) Send(frame hub.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

func (s *sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *sink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *sink) next(t *testing.T) hub.Frame {
	t.Helper()
	select {
	case frame := <-s.frames:
		return frame
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for frame", "sink %q", s.id)
		return hub.Frame{}
	}
}

func (s *sink) none(t *testing.T) {
	t.Helper()
	select {
	case frame := <-s.frames:
		assert.Failf(t, "unexpected frame", "sink %q received %q", s.id, frame.Type)
	case <-time.After(100 * time.Millisecond):
	}
}
