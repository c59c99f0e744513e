package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"pickdesk/internal/authz"
	"pickdesk/internal/models"
)

const (
	writeTimeout = 5 * time.Second
	// subscriberBuffer bounds how far a slow consumer may fall behind before
	// messages are dropped for it.
	subscriberBuffer = 64
)

type subscriber struct {
	identity authz.Identity
	ch       chan models.Decision
}

// Hub fans out freshly created decisions to websocket subscribers. Each
// subscriber sees only what its role allows: regular users get their own
// decisions, observers get anonymized ones, support and above get everything.
type Hub struct {
	Logger *zap.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// BroadcastDecision delivers one decision to all eligible subscribers.
// Delivery is best effort: a subscriber whose buffer is full loses the
// message rather than stalling the evaluator.
func (h *Hub) BroadcastDecision(decision models.Decision) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		item, ok := scopeDecision(decision, sub.identity)
		if !ok {
			continue
		}
		select {
		case sub.ch <- item:
		default:
			if h.Logger != nil {
				h.Logger.Warn("stream subscriber lagging, decision dropped",
					zap.String("user_id", sub.identity.UserID),
					zap.String("decision_id", decision.ID),
				)
			}
		}
	}
}

// scopeDecision applies the same visibility rules as the list endpoint.
func scopeDecision(decision models.Decision, id authz.Identity) (models.Decision, bool) {
	switch {
	case id.Role >= authz.RoleSupport:
		return decision, true
	case id.Role == authz.RoleObserver:
		return authz.Anonymize(decision), true
	default:
		return decision, decision.OwnerUserID == id.UserID
	}
}

// Serve upgrades the request and streams decisions until the client goes
// away or ctx is done. The caller authorizes before handing off.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id authz.Identity) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	sub := &subscriber{
		identity: id,
		ch:       make(chan models.Decision, subscriberBuffer),
	}
	h.register(sub)
	defer h.unregister(sub)

	if h.Logger != nil {
		h.Logger.Info("stream subscriber connected",
			zap.String("user_id", id.UserID),
			zap.String("role", id.Role.String()),
		)
	}

	// Clients never send application data; CloseRead surfaces disconnects.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return conn.Close(websocket.StatusNormalClosure, "bye")
		case decision := <-sub.ch:
			payload, err := json.Marshal(decision)
			if err != nil {
				continue
			}
			if err := writeWithTimeout(ctx, conn, payload); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[*subscriber]struct{})
	}
	h.subs[sub] = struct{}{}
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

// SubscriberCount reports how many live connections the hub serves.
func (h *Hub) SubscriberCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func writeWithTimeout(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}
