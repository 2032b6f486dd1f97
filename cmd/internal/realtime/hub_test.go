package realtime

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	v1 "predixa/shared/contracts/realtime/v1"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestClient(id, org string, queue int) *Client {
	return NewClient(id, "user-"+id, org, "operator", queue)
}

func drainOne(t *testing.T, c *Client) (v1.Message, bool) {
	t.Helper()
	select {
	case m := <-c.Send:
		return m, true
	default:
		return v1.Message{}, false
	}
}

func TestHub_JoinLeaveDeletesEmptyRoom(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := NewHub(discardLogger(), m)

	a := newTestClient("a", "org-a", 8)
	b := newTestClient("b", "org-a", 8)
	h.Join("org-a", a)
	h.Join("org-a", b)

	if got := h.RoomCount(); got != 1 {
		t.Fatalf("expected 1 room, got %d", got)
	}
	if got := h.MemberCount("org-a"); got != 2 {
		t.Fatalf("expected 2 members, got %d", got)
	}
	if got := testutil.ToFloat64(m.rooms); got != 1 {
		t.Fatalf("rooms gauge=%v, want 1", got)
	}

	h.Leave("org-a", "a")
	select {
	case <-a.Done():
	default:
		t.Fatalf("Leave should close the removed client")
	}
	if got := h.MemberCount("org-a"); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}

	h.Leave("org-a", "b")
	if got := h.RoomCount(); got != 0 {
		t.Fatalf("empty room must be deleted, rooms=%d", got)
	}
	if got := testutil.ToFloat64(m.rooms); got != 0 {
		t.Fatalf("rooms gauge=%v, want 0", got)
	}

	// Leaving twice or leaving an unknown room is a no-op.
	h.Leave("org-a", "b")
	h.Leave("org-x", "zzz")
}

func TestHub_JoinWithoutOrgIsTrackedWithoutRoom(t *testing.T) {
	h := NewHub(discardLogger(), nil)
	a := newTestClient("a", "", 8)
	b := newTestClient("b", "", 8)
	if !h.Join("", a) || !h.Join("   ", b) {
		t.Fatalf("join without org should register the client")
	}
	if got := h.RoomCount(); got != 0 {
		t.Fatalf("expected no rooms, got %d", got)
	}
	if got := h.ClientCount(); got != 2 {
		t.Fatalf("clients=%d, want 2", got)
	}

	h.Leave("", "a")
	if got := h.ClientCount(); got != 1 {
		t.Fatalf("clients=%d after leave, want 1", got)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("left client not closed")
	}
}

func TestHub_BroadcastReachesWholeRoomOnly(t *testing.T) {
	h := NewHub(discardLogger(), nil)

	sender := newTestClient("s", "org-a", 8)
	peer := newTestClient("p", "org-a", 8)
	other := newTestClient("o", "org-b", 8)
	h.Join("org-a", sender)
	h.Join("org-a", peer)
	h.Join("org-b", other)

	msg := v1.Broadcast(sender.UserID, []byte(`{"machine":"press-4","status":"down"}`))
	if n := h.Broadcast("org-a", msg); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}

	for _, c := range []*Client{sender, peer} {
		got, ok := drainOne(t, c)
		if !ok {
			t.Fatalf("client %s did not receive broadcast", c.ID)
		}
		if got.Type != v1.TypeBroadcast || got.From != sender.UserID {
			t.Fatalf("unexpected message: %+v", got)
		}
	}
	if _, ok := drainOne(t, other); ok {
		t.Fatalf("broadcast leaked into another organization")
	}

	if n := h.Broadcast("org-missing", msg); n != 0 {
		t.Fatalf("broadcast to absent room should deliver 0, got %d", n)
	}
}

func TestRoom_BroadcastDropsOnFullQueueAndSkipsClosed(t *testing.T) {
	h := NewHub(discardLogger(), nil)

	slow := newTestClient("slow", "org-a", 1)
	closing := newTestClient("closing", "org-a", 8)
	fast := newTestClient("fast", "org-a", 8)
	h.Join("org-a", slow)
	h.Join("org-a", closing)
	h.Join("org-a", fast)
	closing.Close()

	if n := h.Broadcast("org-a", v1.Pong()); n != 2 {
		t.Fatalf("first broadcast: want 2 deliveries, got %d", n)
	}
	// slow's single slot is occupied now; the next broadcast must not block.
	if n := h.Broadcast("org-a", v1.Pong()); n != 1 {
		t.Fatalf("second broadcast: want 1 delivery, got %d", n)
	}
	if len(closing.Send) != 0 {
		t.Fatalf("closing client must be skipped")
	}
}

func TestHub_CloseClosesEveryClient(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := NewHub(discardLogger(), m)

	clients := []*Client{
		newTestClient("a", "org-a", 8),
		newTestClient("b", "org-a", 8),
		newTestClient("c", "org-b", 8),
		newTestClient("d", "", 8),
	}
	for _, c := range clients {
		h.Join(c.OrgID, c)
	}

	h.Close()

	for _, c := range clients {
		select {
		case <-c.Done():
		default:
			t.Fatalf("client %s not closed", c.ID)
		}
	}
	if got := h.RoomCount(); got != 0 {
		t.Fatalf("rooms=%d after Close", got)
	}
	if got := testutil.ToFloat64(m.rooms); got != 0 {
		t.Fatalf("rooms gauge=%v after Close", got)
	}

	late := newTestClient("e", "org-a", 8)
	if h.Join("org-a", late) {
		t.Fatalf("join after Close must be refused")
	}
	select {
	case <-late.Done():
	default:
		t.Fatalf("refused client not closed")
	}
	if got := h.RoomCount(); got != 0 || h.ClientCount() != 0 {
		t.Fatalf("Close must be terminal: rooms=%d clients=%d", got, h.ClientCount())
	}
}

func TestHub_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	h := NewHub(discardLogger(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('A' + i))
			c := newTestClient(id, "org-a", 4)
			h.Join("org-a", c)
			for j := 0; j < 20; j++ {
				h.Broadcast("org-a", v1.Pong())
			}
			h.Leave("org-a", id)
		}(i)
	}
	wg.Wait()

	if got := h.RoomCount(); got != 0 {
		t.Fatalf("expected all rooms deleted, got %d", got)
	}
}
