package record

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const recordCols = `id, record, source_count, created_at, updated_at`

func scanRecord(row pgx.Row) (*ArchivedRecord, error) {
	var r ArchivedRecord
	err := row.Scan(&r.ID, &r.Record, &r.SourceCount, &r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (p *repoPG) CreateRecord(ctx context.Context, r *ArchivedRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return p.pool.QueryRow(ctx, `
		INSERT INTO patient_record (id, record, source_count)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		r.ID, r.Record, r.SourceCount).Scan(&r.CreatedAt, &r.UpdatedAt)
}

func (p *repoPG) GetRecord(ctx context.Context, id uuid.UUID) (*ArchivedRecord, error) {
	return scanRecord(p.pool.QueryRow(ctx,
		`SELECT `+recordCols+` FROM patient_record WHERE id = $1`, id))
}

func (p *repoPG) ListRecords(ctx context.Context, limit, offset int) ([]*ArchivedRecord, int, error) {
	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient_record`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+recordCols+` FROM patient_record ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ArchivedRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}

func (p *repoPG) CreateReport(ctx context.Context, rep *ArchivedReport) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	return p.pool.QueryRow(ctx, `
		INSERT INTO assessment_report (id, record_id, model_series, report, missing_fields, warnings)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		rep.ID, rep.RecordID, rep.ModelSeries, rep.Report, rep.MissingFields, rep.Warnings).
		Scan(&rep.CreatedAt)
}

func (p *repoPG) ListReports(ctx context.Context, recordID uuid.UUID) ([]*ArchivedReport, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, record_id, model_series, report, missing_fields, warnings, created_at
		FROM assessment_report WHERE record_id = $1 ORDER BY created_at DESC`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ArchivedReport
	for rows.Next() {
		var rep ArchivedReport
		if err := rows.Scan(&rep.ID, &rep.RecordID, &rep.ModelSeries, &rep.Report,
			&rep.MissingFields, &rep.Warnings, &rep.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &rep)
	}
	return items, rows.Err()
}
