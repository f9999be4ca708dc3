package ws

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chat-core/internal/hub"
	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
)

var (
	ErrNotRegistered = errors.New("connection is not registered")
	ErrForbidden     = errors.New("identity mismatch")
	ErrUserInactive  = errors.New("user account is not active")
	errInternal      = errors.New("internal error")
)

type MessageRouter interface {
	Route(ctx context.Context, env protocol.Envelope) (models.Message, error)
}

type ReadTracker interface {
	MarkRead(ctx context.Context, userID int, req protocol.MarkRead, origin hub.Conn) (protocol.MarkRead, error)
}

type GroupCreator interface {
	CreateGroup(ctx context.Context, creatorID int, name string, members []int) (models.Group, error)
}

type RequestMachine interface {
	Apply(ctx context.Context, actorID int, update protocol.ConnectionUpdate) (models.ConnectionRequest, error)
}

type StatusSetter interface {
	SetStatus(ctx context.Context, userID int, p models.Presence) error
}

type UserLookup interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
}

// Services are the core components the dispatcher drives.
type Services struct {
	Messages MessageRouter
	Reads    ReadTracker
	Groups   GroupCreator
	Requests RequestMachine
	Presence StatusSetter
	Users    UserLookup
}

// Dispatcher decodes inbound frames and runs the matching operation for one connection.
// A connection is anonymous until register succeeds; every other event is refused until
// then and nothing is queued.
type Dispatcher struct {
	hub *hub.Hub
	svc Services
}

func NewDispatcher(h *hub.Hub, svc Services) *Dispatcher {
	return &Dispatcher{hub: h, svc: svc}
}

// Handle processes one raw frame from conn. authUserID is the user proven by the upgrade
// token, or 0 for an unauthenticated socket. Failures are reported to conn only.
func (d *Dispatcher) Handle(ctx context.Context, conn hub.Conn, authUserID int, raw []byte) {
	in, event, err := protocol.Decode(raw)
	if event == "" {
		event = "unknown"
	}

	ctx, span := otel.Tracer("chat-core/ws").Start(ctx, "ws."+event)
	span.SetAttributes(attribute.String("ws.conn_id", conn.ID()))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ws: panic handling %s conn=%s: %v", event, conn.ID(), r)
			d.fail(conn, event, errInternal)
			span.SetStatus(codes.Error, "panic")
		}
	}()

	if err == nil {
		err = d.dispatch(ctx, conn, authUserID, in)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.fail(conn, event, err)
		return
	}
	observability.IncWSEvent(event, "ok")
}

func (d *Dispatcher) fail(conn hub.Conn, event string, err error) {
	observability.IncWSEvent(event, "error")
	d.hub.SendToConn(conn, protocol.EventError, protocol.ErrorPayload{Event: event, Error: err.Error()})
}

func (d *Dispatcher) dispatch(ctx context.Context, conn hub.Conn, authUserID int, in protocol.Inbound) error {
	if reg, ok := in.(protocol.Register); ok {
		return d.register(ctx, conn, authUserID, reg.UserID)
	}

	userID, ok := d.hub.UserOf(conn)
	if !ok {
		return ErrNotRegistered
	}

	switch ev := in.(type) {
	case protocol.SendMessage:
		env := ev.Envelope
		if env.FromUser == 0 {
			env.FromUser = userID
		}
		if env.FromUser != userID {
			return fmt.Errorf("%w: from_user %d on a connection of user %d", ErrForbidden, env.FromUser, userID)
		}
		_, err := d.svc.Messages.Route(ctx, env)
		return err
	case protocol.CreateGroup:
		_, err := d.svc.Groups.CreateGroup(ctx, userID, ev.Name, ev.Members)
		return err
	case protocol.ConnectionUpdate:
		_, err := d.svc.Requests.Apply(ctx, userID, ev)
		return err
	case protocol.PresenceUpdate:
		return d.svc.Presence.SetStatus(ctx, userID, ev.Presence)
	case protocol.MarkRead:
		_, err := d.svc.Reads.MarkRead(ctx, userID, ev, conn)
		return err
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnknownEvent, in.EventName())
	}
}

func (d *Dispatcher) register(ctx context.Context, conn hub.Conn, authUserID, userID int) error {
	if authUserID > 0 && authUserID != userID {
		return fmt.Errorf("%w: token is for user %d", ErrForbidden, authUserID)
	}

	user, err := d.svc.Users.GetUser(ctx, userID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		// the mirror lags the user store; unknown users may still connect
		log.Printf("ws: register of user_id=%d not in mirror", userID)
	case err != nil:
		return err
	case !user.Active():
		return ErrUserInactive
	}

	d.hub.Register(conn, userID)
	d.hub.SendToConn(conn, protocol.EventRegistered, protocol.Registered{UserID: userID})
	return nil
}
