package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/autoseers/carseer/internal/model"
)

// VehicleRepo persists vehicles and their inspected parts.
type VehicleRepo struct {
	db *sql.DB
}

// NewVehicleRepo returns a new VehicleRepo bound to the given database.
func NewVehicleRepo(db *sql.DB) *VehicleRepo { return &VehicleRepo{db: db} }

const vehicleColumns = "id,make,model,year,mileage,health_score,recall_count,estimated_price,created_at,updated_at"

func scanVehicle(row rowScanner) (model.Vehicle, error) {
	var v model.Vehicle
	err := row.Scan(&v.ID, &v.Make, &v.Model, &v.Year, &v.Mileage, &v.HealthScore,
		&v.RecallCount, &v.EstimatedPrice, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// Create inserts v with a fresh id and returns the stored row.
func (r *VehicleRepo) Create(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	v.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, make, model, year, mileage, health_score, recall_count, estimated_price)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, strings.TrimSpace(v.Make), strings.TrimSpace(v.Model), v.Year, v.Mileage,
		v.HealthScore, v.RecallCount, v.EstimatedPrice)
	if err != nil {
		return model.Vehicle{}, err
	}
	return r.Get(ctx, v.ID)
}

// Get loads a vehicle by id.
func (r *VehicleRepo) Get(ctx context.Context, id string) (model.Vehicle, error) {
	v, err := scanVehicle(r.db.QueryRowContext(ctx,
		"SELECT "+vehicleColumns+" FROM vehicles WHERE id = ? LIMIT 1", id))
	return v, notFound(err, "vehicle")
}

// UpdateDetails overwrites the descriptive fields written by report uploads
// and manual entry.  Health score and recall count are left alone.
func (r *VehicleRepo) UpdateDetails(ctx context.Context, v model.Vehicle) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE vehicles SET make = ?, model = ?, year = ?, mileage = ?, estimated_price = ? WHERE id = ?`,
		strings.TrimSpace(v.Make), strings.TrimSpace(v.Model), v.Year, v.Mileage, v.EstimatedPrice, v.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "vehicle")
}

// UpdateSummary writes the derived health score and recall count together.
func (r *VehicleRepo) UpdateSummary(ctx context.Context, id string, healthScore, recallCount int) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var locked string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM vehicles WHERE id = ? FOR UPDATE`, id).Scan(&locked); err != nil {
			return notFound(err, "vehicle")
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE vehicles SET health_score = ?, recall_count = ? WHERE id = ?`, healthScore, recallCount, id)
		return err
	})
}

// SetHealthScore stores a recomputed health score.
func (r *VehicleRepo) SetHealthScore(ctx context.Context, id string, score int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE vehicles SET health_score = ? WHERE id = ?`, score, id)
	return err
}

const partColumns = "id, vehicle_id, name, category, status, description, updated_at"

func scanPart(row rowScanner) (model.PartStatus, error) {
	var (
		p      model.PartStatus
		status string
		desc   sql.NullString
	)
	if err := row.Scan(&p.ID, &p.VehicleID, &p.Name, &p.Category, &status, &desc, &p.UpdatedAt); err != nil {
		return p, err
	}
	p.Status = model.PartCondition(status)
	p.Description = desc.String
	return p, nil
}

// ReplaceParts makes parts the vehicle's part list in one transaction.  It
// is used when a new inspection report supersedes the previous one.  Parts
// are matched by name: a matched part keeps its id, so bookings stay
// attached, and keeps its description unless its status changed.  Parts
// absent from the report are deleted.
func (r *VehicleRepo) ReplaceParts(ctx context.Context, vehicleID string, parts []model.PartStatus) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := lockParts(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		existing := make(map[string]model.PartStatus, len(current))
		for _, p := range current {
			existing[model.PartKey(p.Name)] = p
		}
		parts = model.DistinctParts(parts)
		keep := make(map[string]bool, len(parts))
		for _, p := range parts {
			keep[model.PartKey(p.Name)] = true
		}
		for _, old := range current {
			if keep[model.PartKey(old.Name)] {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM parts WHERE id = ?`, old.ID); err != nil {
				return err
			}
		}
		for _, p := range parts {
			old, ok := existing[model.PartKey(p.Name)]
			switch {
			case !ok:
				_, err = tx.ExecContext(ctx,
					`INSERT INTO parts (id, vehicle_id, name, category, status) VALUES (?, ?, ?, ?, ?)
					 ON DUPLICATE KEY UPDATE category = VALUES(category), status = VALUES(status), description = NULL`,
					uuid.NewString(), vehicleID, strings.TrimSpace(p.Name), p.Category, string(p.Status))
			case old.Status == p.Status:
				_, err = tx.ExecContext(ctx,
					`UPDATE parts SET category = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
					p.Category, old.ID)
			default:
				_, err = tx.ExecContext(ctx,
					`UPDATE parts SET category = ?, status = ?, description = NULL, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
					p.Category, string(p.Status), old.ID)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// lockParts reads the vehicle's parts, locking the rows for the rest of
// the transaction.
func lockParts(ctx context.Context, tx *sql.Tx, vehicleID string) ([]model.PartStatus, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, status FROM parts WHERE vehicle_id = ? ORDER BY name, id FOR UPDATE`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PartStatus
	for rows.Next() {
		var (
			p      model.PartStatus
			status string
		)
		if err := rows.Scan(&p.ID, &p.Name, &status); err != nil {
			return nil, err
		}
		p.Status = model.PartCondition(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListParts returns the vehicle's parts ordered by name.
func (r *VehicleRepo) ListParts(ctx context.Context, vehicleID string) ([]model.PartStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+partColumns+" FROM parts WHERE vehicle_id = ? ORDER BY name, id", vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PartStatus
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPart loads one part, scoped to its vehicle.
func (r *VehicleRepo) GetPart(ctx context.Context, vehicleID, partID string) (model.PartStatus, error) {
	p, err := scanPart(r.db.QueryRowContext(ctx,
		"SELECT "+partColumns+" FROM parts WHERE id = ? AND vehicle_id = ? LIMIT 1", partID, vehicleID))
	return p, notFound(err, "part")
}

// MarkPartRepaired resets a part to Good and clears its alert description.
func (r *VehicleRepo) MarkPartRepaired(ctx context.Context, vehicleID, partID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE parts SET status = ?, description = NULL WHERE id = ? AND vehicle_id = ?`,
		string(model.ConditionGood), partID, vehicleID)
	if err != nil {
		return err
	}
	return requireRow(res, "part")
}

// SetPartDescription stores a generated alert description unless one is
// already present.  It reports whether the row was written.
func (r *VehicleRepo) SetPartDescription(ctx context.Context, partID, description string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE parts SET description = ? WHERE id = ? AND (description IS NULL OR description = '')`,
		description, partID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
