package record

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateRecord(ctx context.Context, r *ArchivedRecord) error
	GetRecord(ctx context.Context, id uuid.UUID) (*ArchivedRecord, error)
	ListRecords(ctx context.Context, limit, offset int) ([]*ArchivedRecord, int, error)
	CreateReport(ctx context.Context, rep *ArchivedReport) error
	ListReports(ctx context.Context, recordID uuid.UUID) ([]*ArchivedReport, error)
}
