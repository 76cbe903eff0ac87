package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// ActionFunc applies one review action requested over the channel. The
// returned status, when non-empty, is the claim's new status.
type ActionFunc func(ctx context.Context, claimID string, reviewer Identity, action, comment string) (string, error)

// Handler upgrades reviewer connections and runs their read loop.
type Handler struct {
	hub      *Hub
	log      *slog.Logger
	onAction ActionFunc
}

// NewHandler creates a reviewer channel handler. onAction may be nil,
// in which case inbound actions are rejected.
func NewHandler(hub *Hub, log *slog.Logger, onAction ActionFunc) *Handler {
	return &Handler{hub: hub, log: log, onAction: onAction}
}

// wsConn adapts a websocket connection to the hub's Conn interface.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// inboundMessage is what reviewers send: chat, action or ping.
type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Action  string `json:"action,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// ServeHTTP upgrades the connection and joins the reviewer to the
// claim's room until disconnect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")
	identity := Identity{
		ReviewerID:   r.URL.Query().Get("reviewer_id"),
		ReviewerName: r.URL.Query().Get("reviewer_name"),
	}
	if claimID == "" || identity.ReviewerID == "" {
		http.Error(w, "claim id and reviewer_id are required", http.StatusBadRequest)
		return
	}
	if identity.ReviewerName == "" {
		identity.ReviewerName = identity.ReviewerID
	}

	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		h.log.Error("websocket accept failed", "claim_id", claimID, "error", err)
		return
	}

	c := &wsConn{ws: sock}
	h.hub.Join(claimID, c, identity)
	h.hub.BroadcastEvent(r.Context(), claimID, EventReviewerJoined, ReviewerEvent{
		ClaimID:  claimID,
		Reviewer: identity,
		Count:    len(h.hub.Subscribers(claimID)),
	})

	ctx := r.Context()
	defer func() {
		if id, claim, ok := h.hub.Leave(c); ok {
			h.hub.BroadcastEvent(context.WithoutCancel(ctx), claim, EventReviewerLeft, ReviewerEvent{
				ClaimID:  claim,
				Reviewer: id,
				Count:    len(h.hub.Subscribers(claim)),
			})
		}
		_ = sock.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			return
		}
		h.handleInbound(ctx, c, claimID, identity, data)
	}
}

// handleInbound routes one reviewer message. Malformed input answers
// with an error event rather than closing the connection.
func (h *Handler) handleInbound(ctx context.Context, c Conn, claimID string, identity Identity, data []byte) {
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(ctx, c, "malformed message")
		return
	}

	switch in.Type {
	case InboundChat:
		h.hub.BroadcastEvent(ctx, claimID, EventChatMessage, ChatEvent{
			ClaimID:  claimID,
			Reviewer: identity,
			Message:  in.Message,
		})

	case InboundAction:
		if h.onAction == nil {
			h.sendError(ctx, c, "actions are not enabled")
			return
		}
		newStatus, err := h.onAction(ctx, claimID, identity, in.Action, in.Comment)
		if err != nil {
			h.sendError(ctx, c, err.Error())
			return
		}
		ack, _ := NewMessage(EventActionAcknowledged, ActionEvent{
			ClaimID:   claimID,
			Reviewer:  identity,
			Action:    in.Action,
			NewStatus: newStatus,
		})
		if err := h.hub.Unicast(ctx, c, ack); err != nil {
			h.log.Debug("ack send failed", "claim_id", claimID, "error", err)
		}
		h.hub.BroadcastEvent(ctx, claimID, EventActionTaken, ActionEvent{
			ClaimID:   claimID,
			Reviewer:  identity,
			Action:    in.Action,
			Comment:   in.Comment,
			NewStatus: newStatus,
		})

	case InboundPing:
		pong, _ := NewMessage(EventPong, nil)
		if err := h.hub.Unicast(ctx, c, pong); err != nil {
			h.log.Debug("pong send failed", "claim_id", claimID, "error", err)
		}

	default:
		h.sendError(ctx, c, "unknown message type: "+in.Type)
	}
}

func (h *Handler) sendError(ctx context.Context, c Conn, detail string) {
	msg, _ := NewMessage(EventError, ErrorEvent{Detail: detail})
	if err := h.hub.Unicast(ctx, c, msg); err != nil {
		h.log.Debug("error send failed", "error", err)
	}
}
