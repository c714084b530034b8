package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-realtime-chat/internal/config"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

// eventTimeout bounds the work done for a single inbound frame.
const eventTimeout = 15 * time.Second

// Handler upgrades authenticated requests to WebSocket connections and
// dispatches their events to the chat gateway.
type Handler struct {
	Registry *Registry
	Gateway  *services.ChatGateway
	Config   config.WSConfig

	upgrader websocket.Upgrader
}

// NewHandler builds a Handler. An empty allowedOrigins accepts any origin.
func NewHandler(reg *Registry, gw *services.ChatGateway, cfg config.WSConfig, allowedOrigins []string) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return &Handler{
		Registry: reg,
		Gateway:  gw,
		Config:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				_, ok := allowed[strings.ToLower(origin)]
				return ok
			},
		},
	}
}

// Serve upgrades the request for userID, who must already be authenticated.
// The connection joins its personal room before any event is read.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	lg := zerolog.Ctx(r.Context()).With().
		Str("conn_id", id).
		Str("user_id", userID).
		Logger()
	c := newClient(id, userID, conn, h.Config, lg)

	h.Registry.Register(c)
	h.Registry.Join(c, userID)
	lg.Info().Msg("websocket connected")

	go c.writePump()
	go func() {
		c.readPump(h.Registry, h.handle)
		lg.Info().Msg("websocket disconnected")
	}()
}

func (h *Handler) handle(c *Client, frame []byte) {
	if !c.allow() {
		h.Registry.SendTo(c, failure(CodeRateLimited, "too many events"))
		return
	}

	var in inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		h.Registry.SendTo(c, failure(CodeBadRequest, "invalid frame"))
		return
	}

	ctx, cancel := context.WithTimeout(c.log.WithContext(context.Background()), eventTimeout)
	defer cancel()

	var err error
	switch in.Type {
	case domain.EventJoinRoom:
		var req roomRequest
		if err = in.decode(&req); err == nil {
			err = h.join(ctx, c, req.ConversationID)
		}

	case domain.EventLeaveRoom:
		var req roomRequest
		if err = in.decode(&req); err == nil {
			h.Registry.Leave(c, req.ConversationID)
		}

	case domain.EventSendMessage:
		var req sendMessageRequest
		if err = in.decode(&req); err == nil {
			_, err = h.Gateway.SendMessage(ctx, c.UserID, req.ConversationID, req.Message, services.TransportWS)
		}

	case domain.EventUpdateProfile:
		var req updateProfileRequest
		if err = in.decode(&req); err == nil {
			_, err = h.Gateway.UpdateProfile(ctx, c.UserID, req.Profile)
		}

	case domain.EventDeleteConversation:
		var req roomRequest
		if err = in.decode(&req); err == nil {
			err = h.Gateway.DeleteConversation(ctx, c.UserID, req.ConversationID)
		}

	default:
		h.Registry.SendTo(c, failure(CodeBadRequest, "unknown event "+string(in.Type)))
		return
	}

	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			h.Registry.SendTo(c, failure(CodeBadRequest, "invalid "+string(in.Type)+" payload"))
			return
		}
		ev := failureFor(err)
		if ev.Data.(domain.EventFailure).Code == CodeInternal {
			c.log.Error().Err(err).Str("event", string(in.Type)).Msg("websocket event failed")
		}
		h.Registry.SendTo(c, ev)
	}
}

func (h *Handler) join(ctx context.Context, c *Client, room string) error {
	if err := h.Gateway.AuthorizeJoin(ctx, c.UserID, room); err != nil {
		return err
	}
	room = strings.TrimSpace(room)
	if h.Registry.Join(c, room) {
		h.Registry.SendTo(c, domain.Event{Type: domain.EventRoomJoined, Data: domain.RoomJoined{Room: room}})
	}
	return nil
}
