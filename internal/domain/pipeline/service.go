// Package pipeline composes document recognition, record integration, and
// assessment into the combined single-request flow.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cna/cna/internal/domain/assessment"
	"github.com/cna/cna/internal/domain/recognition"
	"github.com/cna/cna/internal/domain/record"
)

// ErrMissingPatientData marks a combined request without a structured
// patient record.
var ErrMissingPatientData = errors.New("patient data is required")

// Outcome is the result of one combined run: the generated assessment plus
// the canonical record it was generated from.
type Outcome struct {
	Assessment  *assessment.Result   `json:"assessment"`
	Record      *record.Record       `json:"record,omitempty"`
	RecordID    *uuid.UUID           `json:"record_id,omitempty"`
	SourceCount int                  `json:"source_count"`
	Jobs        []*recognition.Job   `json:"jobs,omitempty"`
	Snapshot    recognition.Snapshot `json:"snapshot"`
}

// Service orchestrates the combined flow. The archive is optional; when
// configured, finalized records and their reports are persisted.
type Service struct {
	recognizer *recognition.Service
	assessor   *assessment.Service
	archive    *record.Service
	logger     zerolog.Logger
}

func NewService(recognizer *recognition.Service, assessor *assessment.Service, archive *record.Service, logger zerolog.Logger) *Service {
	return &Service{recognizer: recognizer, assessor: assessor, archive: archive, logger: logger}
}

// AssessDocuments recognizes every uploaded document, folds the results and
// the provided structured record into one canonical record, and generates
// an assessment from it. The provided record is treated as the first
// pre-integrated source, so recognized documents augment and overwrite it.
// The recognition session is cleared before returning; job failures are
// reported in the outcome, not raised.
func (s *Service) AssessDocuments(ctx context.Context, patientData map[string]any, docs []recognition.Document, modelSeries string) (*Outcome, error) {
	if len(patientData) == 0 {
		return nil, ErrMissingPatientData
	}

	// Without documents the provided record goes straight to assessment.
	if len(docs) == 0 {
		result, err := s.assessor.Assess(ctx, patientData, modelSeries)
		if err != nil {
			return nil, err
		}
		return &Outcome{Assessment: result}, nil
	}

	session, err := s.recognizer.Submit(ctx, docs)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.recognizer.Clear(session.ID); err != nil {
			s.logger.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to clear recognition session")
		}
	}()

	recognized, err := s.recognizer.Tracker().SuccessfulResults(session.ID)
	if err != nil {
		return nil, err
	}
	snap, err := s.recognizer.Tracker().Snapshot(session.ID)
	if err != nil {
		return nil, err
	}

	sources := make([]record.RecognitionResult, 0, len(recognized)+1)
	sources = append(sources, record.RecognitionResult{
		DocumentType: "结构化病历",
		Data:         map[string]any{"integrated_data": patientData},
	})
	sources = append(sources, recognized...)
	rec := record.Integrate(sources)

	recordData, err := recordAsMap(rec)
	if err != nil {
		return nil, err
	}
	result, err := s.assessor.Assess(ctx, recordData, modelSeries)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Assessment:  result,
		Record:      rec,
		SourceCount: len(sources),
		Jobs:        session.Jobs,
		Snapshot:    snap,
	}
	s.persist(ctx, outcome)
	return outcome, nil
}

// persist archives the record and its report when an archive is configured.
// Archive failures are logged, never surfaced; the assessment already
// succeeded.
func (s *Service) persist(ctx context.Context, outcome *Outcome) {
	if s.archive == nil {
		return
	}
	ar, err := s.archive.ArchiveRecord(ctx, outcome.Record, outcome.SourceCount)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to archive integrated record")
		return
	}
	outcome.RecordID = &ar.ID
	err = s.archive.AttachReport(ctx, &record.ArchivedReport{
		RecordID:      ar.ID,
		ModelSeries:   outcome.Assessment.ModelSeries,
		Report:        outcome.Assessment.Report,
		MissingFields: outcome.Assessment.ValidationResults.MissingFields,
		Warnings:      outcome.Assessment.ValidationResults.Warnings,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("record_id", ar.ID.String()).Msg("failed to archive assessment report")
	}
}

func recordAsMap(rec *record.Record) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode canonical record: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode canonical record: %w", err)
	}
	return m, nil
}
