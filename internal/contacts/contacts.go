// Package contacts implements the connection request state machine and the contact roster
// derived from it.
//
// A pair of users is in the implicit state "none" until a request is sent. A sent request
// ends in exactly one of accepted, rejected or deleted, after which the pair is back to
// "none" (or connected, for accepted). Both parties receive the same
// users_connections:update event for every committed transition; a refused transition
// changes nothing and notifies nobody.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"log"

	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
	"chat-core/internal/telemetry"
)

var (
	ErrInvalidRequest    = errors.New("invalid connection request")
	ErrInvalidTransition = errors.New("transition not allowed from current state")
	ErrForbidden         = errors.New("actor may not perform this action")
	ErrNotFound          = errors.New("connection request not found")
)

// Notifier delivers a named event to every connection of the given users.
type Notifier interface {
	SendToUsers(userIDs []int, event string, payload any) int
}

// UserLookup resolves user records for notifications and contact discovery.
type UserLookup interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetUsers(ctx context.Context, userIDs []int) ([]models.User, error)
	IDsAtLocation(ctx context.Context, ipAddress string) ([]int, error)
}

type Service struct {
	repo            repositories.ConnectionRequestRepository
	users           UserLookup
	notifier        Notifier
	auditor         telemetry.Auditor
	requireApproval bool
	locks           *pairLocks
}

// NewService builds the state machine. When requireApproval is set, new requests stay
// hidden from the recipient until an administrator approves them.
func NewService(repo repositories.ConnectionRequestRepository, users UserLookup, notifier Notifier, auditor telemetry.Auditor, requireApproval bool) *Service {
	return &Service{
		repo:            repo,
		users:           users,
		notifier:        notifier,
		auditor:         auditor,
		requireApproval: requireApproval,
		locks:           newPairLocks(),
	}
}

// Apply performs one transition on behalf of actorID.
func (s *Service) Apply(ctx context.Context, actorID int, update protocol.ConnectionUpdate) (models.ConnectionRequest, error) {
	if err := update.Validate(); err != nil {
		return models.ConnectionRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := authorize(actorID, update); err != nil {
		return models.ConnectionRequest{}, err
	}

	unlock := s.locks.lock(update.FromUserID, update.ToUserID)
	defer unlock()

	var (
		req        models.ConnectionRequest
		recipients []int
		err        error
	)
	switch update.Action {
	case models.ActionSend:
		req, err = s.send(ctx, update.FromUserID, update.ToUserID)
	case models.ActionAccept:
		req, err = s.accept(ctx, update)
	case models.ActionReject:
		req, err = s.close(ctx, update, models.RequestRejected)
	case models.ActionDelete:
		req, err = s.close(ctx, update, models.RequestDeleted)
	}
	if err != nil {
		return models.ConnectionRequest{}, err
	}

	recipients = []int{req.FromUserID}
	if req.VisibleToRecipient() {
		recipients = append(recipients, req.ToUserID)
	}
	s.commit(ctx, update.Action, req, recipients)
	return req, nil
}

func authorize(actorID int, update protocol.ConnectionUpdate) error {
	switch update.Action {
	case models.ActionSend, models.ActionDelete:
		if actorID != update.FromUserID {
			return fmt.Errorf("%w: only the sender may %s", ErrForbidden, update.Action)
		}
	case models.ActionAccept, models.ActionReject:
		if actorID != update.ToUserID {
			return fmt.Errorf("%w: only the recipient may %s", ErrForbidden, update.Action)
		}
	}
	return nil
}

func (s *Service) send(ctx context.Context, from, to int) (models.ConnectionRequest, error) {
	connected, err := s.repo.AreContacts(ctx, from, to)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if connected {
		return models.ConnectionRequest{}, fmt.Errorf("%w: users are already connected", ErrInvalidTransition)
	}
	if _, err := s.repo.ActiveForPair(ctx, from, to); err == nil {
		return models.ConnectionRequest{}, fmt.Errorf("%w: a request is already pending", ErrInvalidTransition)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.ConnectionRequest{}, err
	}

	approval := models.ApprovalApproved
	if s.requireApproval {
		approval = models.ApprovalPending
	}
	req, err := s.repo.CreateRequest(ctx, from, to, approval, nil)
	if errors.Is(err, repositories.ErrConflict) {
		return models.ConnectionRequest{}, fmt.Errorf("%w: a request is already pending", ErrInvalidTransition)
	}
	return req, err
}

// pending loads the sent request matching the directed pair of update.
func (s *Service) pending(ctx context.Context, update protocol.ConnectionUpdate) (models.ConnectionRequest, error) {
	req, err := s.repo.ActiveForPair(ctx, update.FromUserID, update.ToUserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.ConnectionRequest{}, fmt.Errorf("%w: no pending request", ErrInvalidTransition)
	}
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if req.FromUserID != update.FromUserID {
		return models.ConnectionRequest{}, fmt.Errorf("%w: pending request runs the other way", ErrInvalidTransition)
	}
	return req, nil
}

func (s *Service) accept(ctx context.Context, update protocol.ConnectionUpdate) (models.ConnectionRequest, error) {
	req, err := s.pending(ctx, update)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if !req.VisibleToRecipient() {
		return models.ConnectionRequest{}, fmt.Errorf("%w: request awaits approval", ErrInvalidTransition)
	}
	req, err = s.repo.AcceptRequest(ctx, req.ID)
	if errors.Is(err, repositories.ErrStale) {
		return models.ConnectionRequest{}, fmt.Errorf("%w: request already closed", ErrInvalidTransition)
	}
	return req, err
}

func (s *Service) close(ctx context.Context, update protocol.ConnectionUpdate, status models.RequestStatus) (models.ConnectionRequest, error) {
	req, err := s.pending(ctx, update)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if status == models.RequestRejected && !req.VisibleToRecipient() {
		return models.ConnectionRequest{}, fmt.Errorf("%w: request awaits approval", ErrInvalidTransition)
	}
	req, err = s.repo.CloseRequest(ctx, req.ID, status)
	if errors.Is(err, repositories.ErrStale) {
		return models.ConnectionRequest{}, fmt.Errorf("%w: request already closed", ErrInvalidTransition)
	}
	return req, err
}

func (s *Service) commit(ctx context.Context, action models.RequestAction, req models.ConnectionRequest, recipients []int) {
	s.notifier.SendToUsers(recipients, protocol.EventConnectionsUpdate, protocol.ConnectionUpdate{
		Action:     action,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
	})
	observability.IncRequestTransition(string(action))
	log.Printf("connection request id=%d action=%s from=%d to=%d status=%s", req.ID, action, req.FromUserID, req.ToUserID, req.Status)

	if err := observability.PublishEvent(ctx, observability.RouteConnectionRequest(string(action)),
		observability.NewEvent("domain", "connection_request_"+string(action), req)); err != nil {
		log.Printf("publish connection request failed id=%d: %v", req.ID, err)
	}
}

// Roster lists the connected contacts of userID.
func (s *Service) Roster(ctx context.Context, userID int) ([]models.User, error) {
	return s.repo.Contacts(ctx, userID)
}

// ContactIDs lists the ids of the connected contacts of userID.
func (s *Service) ContactIDs(ctx context.Context, userID int) ([]int, error) {
	return s.repo.ContactIDs(ctx, userID)
}

// RequestsSent lists users userID has an open request to.
func (s *Service) RequestsSent(ctx context.Context, userID int) ([]models.User, error) {
	return s.repo.SentPending(ctx, userID)
}

// RequestsReceived lists users with an open, approved request to userID.
func (s *Service) RequestsReceived(ctx context.Context, userID int) ([]models.User, error) {
	return s.repo.ReceivedPending(ctx, userID)
}

// Discoverable lists the active users at the same network location as userID that userID
// could still send a request to: self, contacts and anyone sharing an open request with
// userID are left out. A non-empty location overrides the caller's own tag.
func (s *Service) Discoverable(ctx context.Context, userID int, location string) ([]models.User, error) {
	if location == "" {
		me, err := s.users.GetUser(ctx, userID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
		if me.IPAddress != nil {
			location = *me.IPAddress
		}
	}
	if location == "" {
		return []models.User{}, nil
	}

	candidates, err := s.users.IDsAtLocation(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("users at location: %w", err)
	}
	contacts, err := s.repo.ContactIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.PendingPeerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	excluded := map[int]struct{}{userID: {}}
	for _, id := range append(contacts, pending...) {
		excluded[id] = struct{}{}
	}
	ids := make([]int, 0, len(candidates))
	for _, id := range candidates {
		if _, skip := excluded[id]; !skip {
			ids = append(ids, id)
		}
	}

	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.Active() {
			out = append(out, u)
		}
	}
	return out, nil
}
