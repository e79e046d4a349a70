package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	KindExecutionStarted  = "execution.started"
	KindExecutionFinished = "execution.finished"
	KindLeg               = "execution.leg"
	KindStrategyUpdated   = "strategy.updated"
	KindStrategyDeleted   = "strategy.deleted"
)

// Event is one message on the stream.
type Event struct {
	Kind      string         `json:"kind"`
	Owner     string         `json:"owner,omitempty"`
	Strategy  string         `json:"strategy,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Hub fans events out to websocket subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	Buffer       int
	WriteTimeout time.Duration
	Logger       *zap.Logger
	// OriginPatterns lists the cross-origin hosts allowed to open a stream.
	// Same-origin requests are always accepted.
	OriginPatterns []string

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	owner string
	ch    chan Event
}

func NewHub(buffer int, writeTimeout time.Duration, logger *zap.Logger) *Hub {
	return &Hub{Buffer: buffer, WriteTimeout: writeTimeout, Logger: logger}
}

// ParseOrigins turns a comma-separated origin list such as
// "https://app.example.com,*.internal" into host patterns.
func ParseOrigins(csv string) []string {
	var out []string
	for _, o := range strings.Split(csv, ",") {
		o = strings.TrimSpace(o)
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		if o = strings.TrimSuffix(o, "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.owner != "" && sub.owner != ev.Owner {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			if h.Logger != nil {
				h.Logger.Debug("event dropped for slow subscriber", zap.String("kind", ev.Kind))
			}
		}
	}
}

// Subscribe registers a listener; owner filters events when non-empty. The
// returned cancel func must be called to release it.
func (h *Hub) Subscribe(owner string) (<-chan Event, func()) {
	buf := h.Buffer
	if buf <= 0 {
		buf = 64
	}
	sub := &subscriber{owner: owner, ch: make(chan Event, buf)}
	h.mu.Lock()
	if h.subs == nil {
		h.subs = map[*subscriber]struct{}{}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeWS upgrades the request and streams events until the client leaves or
// ctx ends.
func (h *Hub) ServeWS(ctx context.Context, w http.ResponseWriter, r *http.Request, owner string) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(websocket.StatusInternalError, "stream closed") }()

	// Clients never send; CloseRead handles control frames and cancels on close.
	ctx = conn.CloseRead(ctx)

	ch, cancel := h.Subscribe(owner)
	defer cancel()

	timeout := h.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		case ev := <-ch:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, timeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				return err
			}
		}
	}
}
