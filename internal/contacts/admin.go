package contacts

import (
	"context"
	"errors"
	"fmt"
	"log"

	"chat-core/internal/models"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
	"chat-core/internal/telemetry"
)

// Approve releases a pending request to its recipient, who is told through
// connection_request_received.
func (s *Service) Approve(ctx context.Context, requestID, adminID int) (models.ConnectionRequest, error) {
	req, err := s.decide(ctx, requestID, adminID, models.ApprovalApproved)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	s.announce(ctx, req)
	s.audit(ctx, adminID, "approved connection request %d from %d to %d", req.ID, req.FromUserID, req.ToUserID)
	return req, nil
}

// AdminReject closes a pending request before the recipient sees it. Only the sender is
// notified.
func (s *Service) AdminReject(ctx context.Context, requestID, adminID int) (models.ConnectionRequest, error) {
	req, err := s.decide(ctx, requestID, adminID, models.ApprovalRejected)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	s.commit(ctx, models.ActionReject, req, []int{req.FromUserID})
	s.audit(ctx, adminID, "rejected connection request %d from %d to %d", req.ID, req.FromUserID, req.ToUserID)
	return req, nil
}

func (s *Service) decide(ctx context.Context, requestID, adminID int, approval models.ApprovalStatus) (models.ConnectionRequest, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.ConnectionRequest{}, ErrNotFound
	}
	if err != nil {
		return models.ConnectionRequest{}, err
	}

	unlock := s.locks.lock(req.FromUserID, req.ToUserID)
	defer unlock()

	req, err = s.repo.SetApproval(ctx, requestID, approval, adminID)
	if errors.Is(err, repositories.ErrStale) {
		return models.ConnectionRequest{}, fmt.Errorf("%w: request is not awaiting approval", ErrInvalidTransition)
	}
	return req, err
}

// Inject creates an already approved request from -> to on an administrator's behalf. It
// enters the sent state without the sender emitting send.
func (s *Service) Inject(ctx context.Context, from, to, adminID int) (models.ConnectionRequest, error) {
	update := protocol.ConnectionUpdate{Action: models.ActionSend, FromUserID: from, ToUserID: to}
	if err := update.Validate(); err != nil {
		return models.ConnectionRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	unlock := s.locks.lock(from, to)
	defer unlock()

	connected, err := s.repo.AreContacts(ctx, from, to)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if connected {
		return models.ConnectionRequest{}, fmt.Errorf("%w: users are already connected", ErrInvalidTransition)
	}
	admin := adminID
	req, err := s.repo.CreateRequest(ctx, from, to, models.ApprovalApproved, &admin)
	if errors.Is(err, repositories.ErrConflict) {
		return models.ConnectionRequest{}, fmt.Errorf("%w: a request is already pending", ErrInvalidTransition)
	}
	if err != nil {
		return models.ConnectionRequest{}, err
	}

	s.commit(ctx, models.ActionSend, req, []int{req.FromUserID})
	s.announce(ctx, req)
	s.audit(ctx, adminID, "injected connection request %d from %d to %d", req.ID, from, to)
	return req, nil
}

// announce pushes a request into the recipient's received view.
func (s *Service) announce(ctx context.Context, req models.ConnectionRequest) {
	sender, err := s.users.GetUser(ctx, req.FromUserID)
	if err != nil {
		log.Printf("connection request id=%d: load sender %d failed: %v", req.ID, req.FromUserID, err)
		sender = models.User{ID: req.FromUserID}
	}
	s.notifier.SendToUsers([]int{req.ToUserID}, protocol.EventRequestReceived, protocol.RequestReceived{FromUser: sender})
}

func (s *Service) audit(ctx context.Context, adminID int, format string, args ...any) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, telemetry.LevelInfo, fmt.Sprintf(format, args...), adminID)
}

// Stats summarises requests for the admin dashboard.
func (s *Service) Stats(ctx context.Context) (models.RequestStats, error) {
	return s.repo.Stats(ctx)
}
