package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"tenantdesk/config"
	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/incidents"
	"tenantdesk/core/realtime"
	"tenantdesk/core/utils"
)

const (
	EventJoined = "joined"
	EventLeft   = "left"
	EventError  = "error"

	wsWriteTimeout = 5 * time.Second
	wsReadLimit    = 16 * 1024
)

type clientMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type realtimeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Room    string `json:"room,omitempty"`
}

// RealtimeHandler upgrades to a websocket and lets the connection join tenant and incident
// rooms. One goroutine per connection drains the outbox; the request goroutine reads.
type RealtimeHandler struct {
	svc    *incidents.Service
	router *realtime.Router
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewRealtimeHandler(cfg *config.AppConfig, svc *incidents.Service, router *realtime.Router, logger *utils.Logger) *RealtimeHandler {
	return &RealtimeHandler{svc: svc, router: router, cfg: cfg, logger: logger}
}

func (h *RealtimeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	opts := &websocket.AcceptOptions{}
	if h.cfg != nil && len(h.cfg.Realtime.AllowOrigins) > 0 {
		opts.OriginPatterns = h.cfg.Realtime.AllowOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.logger.Warnf("realtime accept for %s: %v", actor.ID, err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	size := 0
	if h.cfg != nil {
		size = h.cfg.Realtime.SendBuffer
	}
	out := realtime.NewOutbox(actor, size)
	defer out.Close()
	defer h.router.Disconnect(out)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, cancel, conn, out)
	}()

	h.logger.Printf("realtime connect sub=%s user=%s", out.ID(), actor.ID)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageText {
			h.reject(out, "realtime.invalid_message", "text frames only", "")
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reject(out, "realtime.invalid_message", "message is not valid JSON", "")
			continue
		}
		h.handle(ctx, actor, out, msg)
	}
	cancel()
	<-done
	_ = conn.Close(websocket.StatusNormalClosure, "closed")
	h.logger.Printf("realtime disconnect sub=%s user=%s", out.ID(), actor.ID)
}

func (h *RealtimeHandler) handle(ctx context.Context, actor auth.Actor, out *realtime.Outbox, msg clientMessage) {
	id := strings.TrimSpace(msg.ID)
	var room string
	join := false
	switch msg.Type {
	case "join-client":
		room, join = realtime.TenantRoom(id), true
	case "join-incident":
		room, join = realtime.IncidentRoom(id), true
	case "leave-client":
		room = realtime.TenantRoom(id)
	case "leave-incident":
		room = realtime.IncidentRoom(id)
	default:
		h.reject(out, "realtime.unknown_type", "unknown message type "+msg.Type, "")
		return
	}
	if id == "" {
		h.reject(out, "realtime.invalid_room", "room id is required", "")
		return
	}
	if !join {
		h.router.Leave(out, room)
		out.Deliver(realtime.Message{Event: EventLeft, Room: room})
		return
	}
	if err := h.svc.AuthorizeRoom(ctx, actor, room); err != nil {
		code, message := "realtime.join_failed", "cannot join room"
		if e, ok := apperr.As(err); ok && e.Kind != apperr.KindUnavailable {
			code, message = e.Code, e.Message
		} else {
			h.logger.Errorf("realtime authorize %s for %s: %v", room, actor.ID, err)
		}
		h.reject(out, code, message, room)
		return
	}
	h.router.Join(out, room)
	out.Deliver(realtime.Message{Event: EventJoined, Room: room})
}

func (h *RealtimeHandler) reject(out *realtime.Outbox, code, message, room string) {
	payload, err := json.Marshal(realtimeError{Code: code, Message: message, Room: room})
	if err != nil {
		return
	}
	out.Deliver(realtime.Message{Event: EventError, Room: room, Payload: payload})
}

func (h *RealtimeHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out *realtime.Outbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-out.C():
			if !ok {
				cancel()
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, msg)
			cancelWrite()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Warnf("realtime write sub=%s: %v", out.ID(), err)
				}
				cancel()
				return
			}
		}
	}
}
