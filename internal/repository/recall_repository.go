package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/autoseers/carseer/internal/model"
)

// RecallRepo stores the per-vehicle recall set.  (vehicle_id,
// campaign_number) is unique, so concurrent reconciliations of the same
// vehicle cannot create duplicate rows.
type RecallRepo struct {
	db *sql.DB
}

// NewRecallRepo returns a new RecallRepo bound to the given database.
func NewRecallRepo(db *sql.DB) *RecallRepo { return &RecallRepo{db: db} }

const recallColumns = `id, vehicle_id, campaign_number, manufacturer, received_date, component,
	summary, consequence, remedy, notes, status, short_summary, created_at`

func scanRecall(row rowScanner) (model.RecallRecord, error) {
	var (
		rec                                         model.RecallRecord
		status                                      string
		component, summary, consequence, remedy, nt sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.VehicleID, &rec.CampaignNumber, &rec.Manufacturer, &rec.ReceivedDate,
		&component, &summary, &consequence, &remedy, &nt, &status, &rec.ShortSummary, &rec.CreatedAt)
	if err != nil {
		return rec, err
	}
	rec.Component = component.String
	rec.Summary = summary.String
	rec.Consequence = consequence.String
	rec.Remedy = remedy.String
	rec.Notes = nt.String
	rec.Status = model.RecallStatus(status)
	return rec, nil
}

func (r *RecallRepo) query(ctx context.Context, q string, args ...any) ([]model.RecallRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RecallRecord
	for rows.Next() {
		rec, err := scanRecall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListRecalls returns every stored recall for the vehicle, oldest first.
func (r *RecallRepo) ListRecalls(ctx context.Context, vehicleID string) ([]model.RecallRecord, error) {
	return r.query(ctx, "SELECT "+recallColumns+" FROM recalls WHERE vehicle_id = ? ORDER BY created_at, campaign_number", vehicleID)
}

// FindRecalls returns the records of the vehicle with the given campaign
// number.  The unique key keeps this to at most one row, but callers still
// handle several.
func (r *RecallRepo) FindRecalls(ctx context.Context, vehicleID, campaign string) ([]model.RecallRecord, error) {
	return r.query(ctx, "SELECT "+recallColumns+" FROM recalls WHERE vehicle_id = ? AND campaign_number = ? ORDER BY created_at", vehicleID, campaign)
}

// InsertRecallIfAbsent inserts rec unless the vehicle already has a record
// with the same campaign number.  It reports whether a row was inserted.
func (r *RecallRepo) InsertRecallIfAbsent(ctx context.Context, vehicleID string, rec model.RecallRecord) (bool, error) {
	if rec.Status == "" {
		rec.Status = model.RecallIncomplete
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO recalls (id, vehicle_id, campaign_number, manufacturer, received_date, component,
		 summary, consequence, remedy, notes, status, short_summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), vehicleID, rec.CampaignNumber, rec.Manufacturer, rec.ReceivedDate, rec.Component,
		rec.Summary, rec.Consequence, rec.Remedy, rec.Notes, string(rec.Status), rec.ShortSummary)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkRecallComplete sets a record to COMPLETE.  Completing a completed
// record is a no-op.
func (r *RecallRepo) MarkRecallComplete(ctx context.Context, id string) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM recalls WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return notFound(err, "recall")
	}
	if model.RecallStatus(status) == model.RecallComplete {
		return nil
	}
	_, err = r.db.ExecContext(ctx, `UPDATE recalls SET status = ? WHERE id = ?`, string(model.RecallComplete), id)
	return err
}

// SetShortSummary fills in a generated title for a record that has none.
func (r *RecallRepo) SetShortSummary(ctx context.Context, vehicleID, campaign, text string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recalls SET short_summary = ? WHERE vehicle_id = ? AND campaign_number = ? AND short_summary = ''`,
		text, vehicleID, campaign)
	return err
}

// SetRecallCount mirrors the size of the recall set onto the vehicle row.
func (r *RecallRepo) SetRecallCount(ctx context.Context, vehicleID string, n int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE vehicles SET recall_count = ? WHERE id = ?`, n, vehicleID)
	return err
}
