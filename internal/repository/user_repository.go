package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/model"
)

// UserRepo persists accounts in the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = fmt.Errorf("email already exists: %w", apperr.ErrConflict)

const userColumns = "id,email,password_hash,name,role,vehicle_id,tokens_valid_after,is_active,created_at,updated_at"

// unlinkedColumn is the users.vehicle_id value meaning "no vehicle".
const unlinkedColumn = ""

func refFromColumn(v string) model.VehicleRef {
	if v == unlinkedColumn {
		return model.NoVehicle
	}
	return model.LinkVehicle(v)
}

func refToColumn(ref model.VehicleRef) string {
	if id, ok := ref.ID(); ok {
		return id
	}
	return unlinkedColumn
}

type rowScanner interface{ Scan(dest ...any) error }

func scanUser(row rowScanner) (model.User, error) {
	var (
		u         model.User
		vehicleID string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &vehicleID,
		&u.TokensValidAfter, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	u.Vehicle = refFromColumn(vehicleID)
	return u, err
}

// Create inserts an active user with no linked vehicle and returns it.
// passwordHash must already be a bcrypt hash.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash, role string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	id := uuid.NewString()
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, role, vehicle_id) VALUES (?,?,?,?,?)",
		id, email, passwordHash, role, unlinkedColumn)
	if err != nil {
		if isDuplicate(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	return r.GetByID(ctx, id)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
	return u, notFound(err, "user")
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	return u, notFound(err, "user")
}

// SetName stores the profile display name.
func (r *UserRepo) SetName(ctx context.Context, id, name string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET name=? WHERE id=?", strings.TrimSpace(name), id)
	if err != nil {
		return err
	}
	return requireRow(res, "user")
}

// SetVehicle links (or unlinks, with model.NoVehicle) the user's vehicle.
func (r *UserRepo) SetVehicle(ctx context.Context, id string, ref model.VehicleRef) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET vehicle_id=? WHERE id=?", refToColumn(ref), id)
	if err != nil {
		return err
	}
	return requireRow(res, "user")
}

// ResolveVehicle returns the vehicle linked to the user.  An unlinked user
// yields apperr.ErrNotFound.  A link to a vehicle row that no longer exists
// yields an error matching both apperr.ErrNotFound and apperr.ErrDataIntegrity.
func (r *UserRepo) ResolveVehicle(ctx context.Context, userID string) (model.Vehicle, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return model.Vehicle{}, err
	}
	vehicleID, ok := u.Vehicle.ID()
	if !ok {
		return model.Vehicle{}, fmt.Errorf("vehicle for user %s: %w", userID, apperr.ErrNotFound)
	}
	v, err := scanVehicle(r.DB.QueryRowContext(ctx,
		"SELECT "+vehicleColumns+" FROM vehicles WHERE id=? LIMIT 1", vehicleID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vehicle{}, fmt.Errorf("%w: %w", apperr.ErrNotFound,
			apperr.Integrity("user %s links missing vehicle %s", userID, vehicleID))
	}
	return v, err
}

// RevokeSessions moves tokens_valid_after to at, truncated to the
// millisecond precision of the column, and revokes every active refresh
// token of the user in one transaction.
func (r *UserRepo) RevokeSessions(ctx context.Context, id string, at time.Time) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE users SET tokens_valid_after=? WHERE id=?", at.UTC().Truncate(time.Millisecond), id)
		if err != nil {
			return err
		}
		if err := requireRow(res, "user"); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL", id)
		return err
	})
}

// DeleteAccount removes the user and the vehicle it owns.  Parts, recalls,
// bookings and refresh tokens go with them through ON DELETE CASCADE.
func (r *UserRepo) DeleteAccount(ctx context.Context, id string) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		var vehicleID string
		err := tx.QueryRowContext(ctx, "SELECT vehicle_id FROM users WHERE id=? FOR UPDATE", id).Scan(&vehicleID)
		if err != nil {
			return notFound(err, "user")
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id); err != nil {
			return err
		}
		if ref := refFromColumn(vehicleID); ref.Linked() {
			if _, err := tx.ExecContext(ctx, "DELETE FROM vehicles WHERE id=?", vehicleID); err != nil {
				return err
			}
		}
		return nil
	})
}

// requireRow turns a zero-row update into apperr.ErrNotFound.
func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return nil
}
