package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

const userSelect = `SELECT u.id, u.name, u.username, u.email, u.role_id, u.presence, u.account_status,
        u.ip_address, u.office_location, u.last_seen, u.created_at, u.updated_at FROM users u`

// UserRepository reads the user mirror and writes presence.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetUsers(ctx context.Context, userIDs []int) ([]models.User, error)
	IDsAtLocation(ctx context.Context, ipAddress string) ([]int, error)
	UpdatePresence(ctx context.Context, userID int, presence models.Presence, lastSeen *time.Time) error
	UpsertUser(ctx context.Context, user models.User) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(userSelect+` WHERE u.id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return user, err
}

// GetUsers returns the known users among userIDs ordered by id. Unknown ids are skipped.
func (r *UserRepo) GetUsers(ctx context.Context, userIDs []int) ([]models.User, error) {
	if len(userIDs) == 0 {
		return []models.User{}, nil
	}
	query, args, err := sqlx.In(userSelect+` WHERE u.id IN (?) ORDER BY u.id`, userIDs)
	if err != nil {
		return nil, err
	}
	users := []models.User{}
	err = r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...)
	return users, err
}

// IDsAtLocation lists the users tagged with the network location ipAddress.
func (r *UserRepo) IDsAtLocation(ctx context.Context, ipAddress string) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`SELECT id FROM users WHERE ip_address = ? ORDER BY id`), ipAddress)
	return ids, err
}

// UpdatePresence stores presence; lastSeen is only written when non-nil.
func (r *UserRepo) UpdatePresence(ctx context.Context, userID int, presence models.Presence, lastSeen *time.Time) error {
	var (
		res sql.Result
		err error
	)
	if lastSeen != nil {
		res, err = r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET presence = ?, last_seen = ?, updated_at = ? WHERE id = ?`),
			presence, lastSeen.UTC(), now(), userID)
	} else {
		res, err = r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET presence = ?, updated_at = ? WHERE id = ?`),
			presence, now(), userID)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertUser mirrors a user record from the external user store. Presence is owned
// locally and is never overwritten by the mirror.
func (r *UserRepo) UpsertUser(ctx context.Context, user models.User) error {
	status := user.AccountStatus
	if status == "" {
		status = models.AccountActive
	}
	created := user.CreatedAt
	if created.IsZero() {
		created = now()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO users
        (id, name, username, email, role_id, account_status, ip_address, office_location, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            name = excluded.name,
            username = excluded.username,
            email = excluded.email,
            role_id = excluded.role_id,
            account_status = excluded.account_status,
            ip_address = excluded.ip_address,
            office_location = excluded.office_location,
            updated_at = excluded.updated_at`),
		user.ID, user.Name, user.Username, user.Email, user.RoleID, status,
		user.IPAddress, user.OfficeLocation, created.UTC(), now())
	return err
}
