package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

const requestColumns = `id, from_user_id, to_user_id, status, admin_approval_status, admin_approved_by,
        admin_approved_at, created_at, updated_at`

// ConnectionRequestRepository persists connection requests and the contact roster they produce.
type ConnectionRequestRepository interface {
	GetRequest(ctx context.Context, requestID int) (models.ConnectionRequest, error)
	ActiveForPair(ctx context.Context, userA, userB int) (models.ConnectionRequest, error)
	CreateRequest(ctx context.Context, fromUserID, toUserID int, approval models.ApprovalStatus, approvedBy *int) (models.ConnectionRequest, error)
	CloseRequest(ctx context.Context, requestID int, status models.RequestStatus) (models.ConnectionRequest, error)
	AcceptRequest(ctx context.Context, requestID int) (models.ConnectionRequest, error)
	SetApproval(ctx context.Context, requestID int, approval models.ApprovalStatus, adminID int) (models.ConnectionRequest, error)
	AreContacts(ctx context.Context, userA, userB int) (bool, error)
	ContactIDs(ctx context.Context, userID int) ([]int, error)
	Contacts(ctx context.Context, userID int) ([]models.User, error)
	SentPending(ctx context.Context, userID int) ([]models.User, error)
	ReceivedPending(ctx context.Context, userID int) ([]models.User, error)
	PendingPeerIDs(ctx context.Context, userID int) ([]int, error)
	Stats(ctx context.Context) (models.RequestStats, error)
}

// ConnectionRequestRepo is a sqlx implementation of ConnectionRequestRepository.
type ConnectionRequestRepo struct {
	db *sqlx.DB
}

func NewConnectionRequestRepo(db *sqlx.DB) *ConnectionRequestRepo {
	return &ConnectionRequestRepo{db: db}
}

func pair(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

func (r *ConnectionRequestRepo) GetRequest(ctx context.Context, requestID int) (models.ConnectionRequest, error) {
	return getRequest(ctx, r.db, requestID)
}

type rebindQueryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func getRequest(ctx context.Context, q rebindQueryer, requestID int) (models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	err := sqlx.GetContext(ctx, q, &req, q.Rebind(`SELECT `+requestColumns+` FROM connection_requests WHERE id = ?`), requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConnectionRequest{}, ErrNotFound
	}
	return req, err
}

// ActiveForPair returns the sent request between the two users in either direction.
func (r *ConnectionRequestRepo) ActiveForPair(ctx context.Context, userA, userB int) (models.ConnectionRequest, error) {
	low, high := pair(userA, userB)
	var req models.ConnectionRequest
	err := r.db.GetContext(ctx, &req, r.db.Rebind(`SELECT `+requestColumns+` FROM connection_requests
        WHERE user_low = ? AND user_high = ? AND status = 'sent'`), low, high)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConnectionRequest{}, ErrNotFound
	}
	return req, err
}

// CreateRequest inserts a sent request. A concurrent active request for the pair yields ErrConflict.
func (r *ConnectionRequestRepo) CreateRequest(ctx context.Context, fromUserID, toUserID int, approval models.ApprovalStatus, approvedBy *int) (models.ConnectionRequest, error) {
	low, high := pair(fromUserID, toUserID)
	ts := now()
	var approvedAt *time.Time
	if approval == models.ApprovalApproved {
		approvedAt = &ts
	}

	var id int
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO connection_requests
        (from_user_id, to_user_id, user_low, user_high, status, admin_approval_status, admin_approved_by, admin_approved_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		fromUserID, toUserID, low, high, models.RequestSent, approval, approvedBy, approvedAt, ts, ts).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ConnectionRequest{}, ErrConflict
		}
		return models.ConnectionRequest{}, err
	}
	return r.GetRequest(ctx, id)
}

// CloseRequest moves a sent request to a terminal non-accepted status.
// ErrStale means another transition won.
func (r *ConnectionRequestRepo) CloseRequest(ctx context.Context, requestID int, status models.RequestStatus) (models.ConnectionRequest, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE connection_requests SET status = ?, updated_at = ? WHERE id = ? AND status = 'sent'`),
		status, now(), requestID)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ConnectionRequest{}, ErrStale
	}
	return r.GetRequest(ctx, requestID)
}

// AcceptRequest moves an approved sent request to accepted and writes both roster rows
// in the same transaction.
func (r *ConnectionRequestRepo) AcceptRequest(ctx context.Context, requestID int) (req models.ConnectionRequest, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	ts := now()
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE connection_requests SET status = 'accepted', updated_at = ?
        WHERE id = ? AND status = 'sent' AND admin_approval_status = 'approved'`), ts, requestID)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrStale
		return models.ConnectionRequest{}, err
	}

	req, err = getRequest(ctx, tx, requestID)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	insert := tx.Rebind(`INSERT INTO contacts (user_id, contact_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`)
	if _, err = tx.ExecContext(ctx, insert, req.FromUserID, req.ToUserID, ts); err != nil {
		return models.ConnectionRequest{}, err
	}
	if _, err = tx.ExecContext(ctx, insert, req.ToUserID, req.FromUserID, ts); err != nil {
		return models.ConnectionRequest{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.ConnectionRequest{}, err
	}
	return req, nil
}

// SetApproval records an admin decision on a pending request. A rejection also closes the
// request. ErrStale means the request is no longer pending.
func (r *ConnectionRequestRepo) SetApproval(ctx context.Context, requestID int, approval models.ApprovalStatus, adminID int) (models.ConnectionRequest, error) {
	query := `UPDATE connection_requests SET admin_approval_status = ?, admin_approved_by = ?, admin_approved_at = ?, updated_at = ?
        WHERE id = ? AND status = 'sent' AND admin_approval_status = 'pending'`
	if approval == models.ApprovalRejected {
		query = `UPDATE connection_requests SET admin_approval_status = ?, admin_approved_by = ?, admin_approved_at = ?, updated_at = ?, status = 'rejected'
        WHERE id = ? AND status = 'sent' AND admin_approval_status = 'pending'`
	}
	ts := now()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), approval, adminID, ts, ts, requestID)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ConnectionRequest{}, ErrStale
	}
	return r.GetRequest(ctx, requestID)
}

func (r *ConnectionRequestRepo) AreContacts(ctx context.Context, userA, userB int) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM contacts WHERE user_id = ? AND contact_id = ?`), userA, userB)
	return n > 0, err
}

// ContactIDs lists the roster of userID.
func (r *ConnectionRequestRepo) ContactIDs(ctx context.Context, userID int) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`SELECT contact_id FROM contacts WHERE user_id = ? ORDER BY contact_id`), userID)
	return ids, err
}

func (r *ConnectionRequestRepo) Contacts(ctx context.Context, userID int) ([]models.User, error) {
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(userSelect+`
        INNER JOIN contacts c ON c.contact_id = u.id
        WHERE c.user_id = ? ORDER BY u.id`), userID)
	return users, err
}

// SentPending lists the recipients of userID's open requests, approved or not.
func (r *ConnectionRequestRepo) SentPending(ctx context.Context, userID int) ([]models.User, error) {
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(userSelect+`
        INNER JOIN connection_requests cr ON cr.to_user_id = u.id
        WHERE cr.from_user_id = ? AND cr.status = 'sent' ORDER BY cr.id`), userID)
	return users, err
}

// ReceivedPending lists the senders of open requests to userID that an admin has approved.
func (r *ConnectionRequestRepo) ReceivedPending(ctx context.Context, userID int) ([]models.User, error) {
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(userSelect+`
        INNER JOIN connection_requests cr ON cr.from_user_id = u.id
        WHERE cr.to_user_id = ? AND cr.status = 'sent' AND cr.admin_approval_status = 'approved' ORDER BY cr.id`), userID)
	return users, err
}

// PendingPeerIDs lists everyone userID shares a sent request with, in either direction and
// whatever its approval.
func (r *ConnectionRequestRepo) PendingPeerIDs(ctx context.Context, userID int) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`SELECT CASE WHEN from_user_id = ? THEN to_user_id ELSE from_user_id END
        FROM connection_requests
        WHERE status = 'sent' AND (from_user_id = ? OR to_user_id = ?)`), userID, userID, userID)
	return ids, err
}

func (r *ConnectionRequestRepo) Stats(ctx context.Context) (models.RequestStats, error) {
	var stats models.RequestStats
	err := r.db.GetContext(ctx, &stats, `SELECT
        COALESCE(SUM(CASE WHEN status = 'sent' AND admin_approval_status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
        COALESCE(SUM(CASE WHEN status = 'sent' AND admin_approval_status = 'approved' THEN 1 ELSE 0 END), 0) AS approved,
        COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0) AS rejected,
        COALESCE(SUM(CASE WHEN status = 'accepted' THEN 1 ELSE 0 END), 0) AS fully_accepted
        FROM connection_requests`)
	return stats, err
}
