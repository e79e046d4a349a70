package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func TestPublishFiltersByOwner(t *testing.T) {
	h := NewHub(4, time.Second, nil)
	all, cancelAll := h.Subscribe("")
	defer cancelAll()
	bob, cancelBob := h.Subscribe("bob")
	defer cancelBob()

	h.Publish(Event{Kind: KindStrategyUpdated, Owner: "alice", Strategy: "momentum"})

	select {
	case ev := <-all:
		if ev.Owner != "alice" || ev.Timestamp.IsZero() {
			t.Fatalf("event=%+v", ev)
		}
	default:
		t.Fatalf("unfiltered subscriber got nothing")
	}
	select {
	case ev := <-bob:
		t.Fatalf("bob received %+v", ev)
	default:
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	h := NewHub(1, time.Second, nil)
	ch, cancel := h.Subscribe("")
	defer cancel()
	h.Publish(Event{Kind: "a"})
	h.Publish(Event{Kind: "b"})
	if ev := <-ch; ev.Kind != "a" {
		t.Fatalf("kind=%s", ev.Kind)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected %+v", ev)
	default:
	}
}

func TestCancelUnsubscribes(t *testing.T) {
	h := NewHub(1, time.Second, nil)
	_, cancel := h.Subscribe("")
	if h.Subscribers() != 1 {
		t.Fatalf("subs=%d", h.Subscribers())
	}
	cancel()
	cancel()
	if h.Subscribers() != 0 {
		t.Fatalf("subs=%d", h.Subscribers())
	}
}

func TestServeWSStreamsEvents(t *testing.T) {
	h := NewHub(4, time.Second, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(r.Context(), w, r, "")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	h.Publish(Event{Kind: KindExecutionFinished, Owner: "alice", Strategy: "momentum"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != KindExecutionFinished || ev.Strategy != "momentum" {
		t.Fatalf("event=%+v", ev)
	}
}

func TestServeWSChecksOrigin(t *testing.T) {
	h := NewHub(4, time.Second, nil)
	h.OriginPatterns = ParseOrigins(" http://app.example , ")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(r.Context(), w, r, "")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial := func(origin string) error {
		conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{origin}},
		})
		if err == nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}
		return err
	}

	if err := dial("http://evil.example"); err == nil {
		t.Fatalf("foreign origin accepted")
	}
	if err := dial("http://app.example"); err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
}

func TestParseOrigins(t *testing.T) {
	got := ParseOrigins("https://app.example.com/, *.internal ,,*")
	want := []string{"app.example.com", "*.internal", "*"}
	if len(got) != len(want) {
		t.Fatalf("got=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got=%v want %v", got, want)
		}
	}
}
