package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for message")
		return ""
	}
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ch := b.Subscribe()
	require.Equal(t, 1, b.ClientCount())
	b.Unsubscribe(ch)
	require.Equal(t, 0, b.ClientCount())

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestPublishAssignsIDs(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "file.created", Data: map[string]string{"path": "Card.astro"}})
	b.Publish(Event{Type: "file.updated", Data: map[string]string{"path": "Card.astro"}})

	assert.Equal(t, "id: 1\nevent: file.created\ndata: {\"path\":\"Card.astro\"}\n\n", receive(t, ch))
	assert.True(t, strings.HasPrefix(receive(t, ch), "id: 2\nevent: file.updated\n"))
}

func TestSubscribeFromReplaysMissed(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	for _, p := range []string{"a.md", "b.md", "c.md"} {
		b.Publish(Event{Type: "file.updated", Data: map[string]string{"path": p}})
	}
	ch := b.SubscribeFrom(1)
	defer b.Unsubscribe(ch)
	_ = b.ClientCount()

	got := drain(ch)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "b.md")
	assert.Contains(t, got[1], "c.md")
}

func TestHistoryIsBounded(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	for i := 0; i < historySize+10; i++ {
		b.Publish(Event{Type: "tick", Data: i})
	}

	ch := b.SubscribeFrom(1)
	defer b.Unsubscribe(ch)
	_ = b.ClientCount()

	got := drain(ch)
	require.Len(t, got, clientBuf, "replay is capped by the client buffer")
	assert.True(t, strings.HasPrefix(got[0], "id: 11\n"), "oldest retained = %q", got[0])
}

func TestPublishFileEvent_IndexThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishFileEvent("created", "a.astro")
	b.PublishFileEvent("markerized", "b.astro")
	b.PublishFileEvent("bogus", "c.astro")
	_ = b.ClientCount()

	var files, index int
	for _, s := range drain(ch) {
		switch {
		case strings.Contains(s, "event: index.updated"):
			index++
		case strings.Contains(s, "event: file."):
			files++
		default:
			assert.Fail(t, "unexpected message", s)
		}
	}
	assert.Equal(t, 2, files)
	assert.Equal(t, 1, index, "index.updated is throttled")
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	b.PublishFileEvent("updated", "x.md")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "retry: 3000\n\n"), "missing retry hint: %q", body)
	assert.Contains(t, body, "event: file.updated")
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond,
		"client not cleaned up after disconnect")
}

func TestSSEHandler_LastEventID(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	b.Publish(Event{Type: "file.deleted", Data: map[string]string{"path": "old.md"}})
	b.Publish(Event{Type: "file.created", Data: map[string]string{"path": "new.md"}})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	body := w.Body.String()
	assert.NotContains(t, body, "old.md")
	assert.Contains(t, body, "new.md")
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBuf+10; i++ {
			b.Publish(Event{Type: "test", Data: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "publish blocked on a full client buffer")
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected subscriber channel to be closed")
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for channel close")
	}

	assert.Equal(t, 0, b.ClientCount())
	b.Publish(Event{Type: "file.updated", Data: map[string]string{"path": "x.md"}})
	b.PublishFileEvent("updated", "x.md")
	_, ok := <-b.Subscribe()
	assert.False(t, ok, "subscribe after close should return a closed channel")
}
