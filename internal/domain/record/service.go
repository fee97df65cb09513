package record

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Archive integrates a batch of recognition results into a canonical record
// and persists it.
func (s *Service) Archive(ctx context.Context, results []RecognitionResult) (*ArchivedRecord, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no recognition results to archive")
	}
	ar := &ArchivedRecord{
		Record:      Integrate(results),
		SourceCount: len(results),
	}
	if err := s.repo.CreateRecord(ctx, ar); err != nil {
		return nil, fmt.Errorf("archive record: %w", err)
	}
	return ar, nil
}

// ArchiveRecord persists an already-integrated record.
func (s *Service) ArchiveRecord(ctx context.Context, rec *Record, sourceCount int) (*ArchivedRecord, error) {
	ar := &ArchivedRecord{Record: rec, SourceCount: sourceCount}
	if err := s.repo.CreateRecord(ctx, ar); err != nil {
		return nil, fmt.Errorf("archive record: %w", err)
	}
	return ar, nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*ArchivedRecord, error) {
	return s.repo.GetRecord(ctx, id)
}

func (s *Service) ListRecords(ctx context.Context, limit, offset int) ([]*ArchivedRecord, int, error) {
	return s.repo.ListRecords(ctx, limit, offset)
}

func (s *Service) AttachReport(ctx context.Context, rep *ArchivedReport) error {
	if rep.Report == "" {
		return fmt.Errorf("report text is required")
	}
	return s.repo.CreateReport(ctx, rep)
}

func (s *Service) ListReports(ctx context.Context, recordID uuid.UUID) ([]*ArchivedReport, error) {
	return s.repo.ListReports(ctx, recordID)
}
