package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-core/internal/hub"
	"chat-core/internal/middleware"
	"chat-core/internal/observability"
)

// Options tune the socket endpoint.
type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	PongWait       time.Duration
}

// Handler upgrades HTTP requests to sockets and runs one dispatcher loop per connection.
type Handler struct {
	hub        *hub.Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	opts       Options
}

func NewHandler(h *hub.Hub, dispatcher *Dispatcher, opts Options) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	return &Handler{
		hub:        h,
		dispatcher: dispatcher,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(opts.AllowedOrigins, origin)
			},
		},
	}
}

// Handle serves GET /socket. Authentication, when present, comes from
// middleware.AuthMiddleware; the connection still has to register.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-core/ws").Start(c.Request.Context(), "ws.handshake")
	authUserID, _ := middleware.UserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	ci := connInfo(c.Request, authUserID, span.SpanContext().TraceID().String())
	span.End()
	cl := newClient(conn, ci, h.opts.SendBuffer, h.opts.PongWait)

	// the socket outlives the request context
	connCtx := observability.WithRequestID(context.WithoutCancel(ctx), ci.RequestID)

	observability.IncWSActive()
	h.publish(connCtx, "ws_connect", ci, 0, "")
	go cl.writePump()

	reason := ""
	if err := cl.readPump(func(raw []byte) {
		h.dispatcher.Handle(connCtx, cl, authUserID, raw)
	}); err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		reason = err.Error()
		observability.IncWSEvent("socket", "ws_error")
	}

	userID, _ := h.hub.UserOf(cl)
	h.hub.Unregister(cl)
	cl.Close()
	observability.DecWSActive()
	h.publish(connCtx, "ws_disconnect", ci, userID, reason)
}

func connInfo(r *http.Request, authUserID int, traceID string) ConnInfo {
	client := observability.ClientInfoFromRequest(r)
	if id := observability.RequestIDFromContext(r.Context()); id != "" {
		client.RequestID = id
	}
	return ConnInfo{
		ConnID:      newConnID(),
		AuthUserID:  authUserID,
		DeviceID:    client.DeviceID,
		IP:          client.IP,
		RequestID:   client.RequestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

func (h *Handler) publish(ctx context.Context, event string, ci ConnInfo, userID int, reason string) {
	if userID == 0 {
		userID = ci.AuthUserID
	}
	observability.IncWSEvent("socket", event)
	envelope := observability.NewEvent("ws_events", event, map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     ci.ConnID,
			"duration_ms": time.Since(ci.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": ci.identity(userID),
	})
	if err := observability.PublishEvent(ctx, observability.RouteWSEvents+".socket", envelope); err != nil {
		log.Printf("ws: publish %s failed conn=%s: %v", event, ci.ConnID, err)
	}
}
