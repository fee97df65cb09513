package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cna/cna/internal/domain/record"
	"github.com/cna/cna/internal/platform/artifact"
	"github.com/cna/cna/internal/platform/worker"
)

var (
	ErrNoDocuments = fmt.Errorf("no documents submitted")
	ErrEmptyText   = fmt.Errorf("no text content submitted")
)

// Invoker runs one external worker process. Satisfied by *worker.Invoker.
type Invoker interface {
	Invoke(ctx context.Context, cmd worker.Command, payload any) ([]byte, error)
}

type workerInput struct {
	FilePaths []string `json:"file_paths"`
}

type textInput struct {
	Text string `json:"text"`
}

type workerOutput struct {
	Documents []record.RecognitionResult `json:"documents"`
	Error     string                     `json:"error"`
	Details   string                     `json:"details"`
}

// Service stages uploaded documents and drives each recognition job through
// the external worker. Jobs of one batch run on a bounded pool; the default
// bound of 1 keeps invocations strictly sequential in submission order.
type Service struct {
	tracker *Tracker
	store   artifact.Store
	invoker Invoker
	cmd     worker.Command
	bound   int
	logger  zerolog.Logger
}

func NewService(tracker *Tracker, store artifact.Store, invoker Invoker, cmd worker.Command, concurrency int, logger zerolog.Logger) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		tracker: tracker,
		store:   store,
		invoker: invoker,
		cmd:     cmd,
		bound:   concurrency,
		logger:  logger,
	}
}

func (s *Service) Tracker() *Tracker { return s.tracker }

// Submit registers one job per document and drives all jobs to a terminal
// state before returning. Job failures are isolated; the returned session
// always carries a per-job outcome.
func (s *Service) Submit(ctx context.Context, docs []Document) (*Session, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	session := s.tracker.NewSession(docs)

	queue := make(chan *Job)
	var wg sync.WaitGroup
	for i := 0; i < s.bound; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				s.runJob(ctx, session.ID, job)
			}
		}()
	}
	for _, job := range session.Jobs {
		queue <- job
	}
	close(queue)
	wg.Wait()

	return session, nil
}

// Retry re-stages a failed job's document and runs it again. Only jobs in
// the error state can be retried.
func (s *Service) Retry(ctx context.Context, sessionID, jobID uuid.UUID) (*Job, error) {
	job, err := s.tracker.Job(sessionID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusError {
		return nil, fmt.Errorf("job %s: only failed jobs can be retried (status %q)", jobID, job.Status)
	}
	s.runJob(ctx, sessionID, job)
	return s.tracker.Job(sessionID, jobID)
}

// RecognizeText sends free text through the recognition worker and returns
// the worker's JSON output verbatim.
func (s *Service) RecognizeText(ctx context.Context, text string) (json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return s.invoker.Invoke(ctx, s.cmd, textInput{Text: text})
}

// Integrate folds the session's successful results into a canonical record.
// Partial and even zero success still yields a valid record tree.
func (s *Service) Integrate(sessionID uuid.UUID) (*record.Record, int, error) {
	results, err := s.tracker.SuccessfulResults(sessionID)
	if err != nil {
		return nil, 0, err
	}
	return record.Integrate(results), len(results), nil
}

func (s *Service) Session(sessionID uuid.UUID) (*Session, Snapshot, error) {
	session, err := s.tracker.Session(sessionID)
	if err != nil {
		return nil, Snapshot{}, err
	}
	snap, err := s.tracker.Snapshot(sessionID)
	if err != nil {
		return nil, Snapshot{}, err
	}
	return session, snap, nil
}

func (s *Service) Clear(sessionID uuid.UUID) error {
	return s.tracker.Clear(sessionID)
}

// runJob drives one job: stage, invoke, record the outcome, release the
// staged artifact. The artifact is released exactly once on every path.
func (s *Service) runJob(ctx context.Context, sessionID uuid.UUID, job *Job) {
	if err := s.tracker.MarkProcessing(sessionID, job.ID); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("recognition job transition rejected")
		return
	}

	handle, err := s.store.Stage(job.Content, job.FileName)
	if err != nil {
		s.failJob(sessionID, job.ID, fmt.Sprintf("stage document: %v", err))
		return
	}
	defer s.release(handle)

	out, err := s.invoker.Invoke(ctx, s.cmd, workerInput{FilePaths: []string{handle.Path}})
	if err != nil {
		s.failJob(sessionID, job.ID, workerMessage(err))
		return
	}

	docs, err := parseWorkerOutput(out)
	if err != nil {
		s.failJob(sessionID, job.ID, err.Error())
		return
	}
	if len(docs) > 1 {
		s.logger.Warn().
			Str("job_id", job.ID.String()).
			Str("file_name", job.FileName).
			Int("discarded", len(docs)-1).
			Strs("discarded_types", documentTypes(docs[1:])).
			Msg("recognition returned multiple documents for one file, keeping the first")
	}
	if err := s.tracker.MarkSuccess(sessionID, job.ID, &docs[0]); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("recognition job transition rejected")
	}
}

func (s *Service) failJob(sessionID, jobID uuid.UUID, message string) {
	if err := s.tracker.MarkError(sessionID, jobID, message); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("recognition job transition rejected")
	}
}

// release logs cleanup failures without surfacing them; a failed delete must
// not mask the job's outcome.
func (s *Service) release(h *artifact.Handle) {
	if err := s.store.Release(h); err != nil {
		s.logger.Error().Err(err).Str("path", h.Path).Msg("failed to release staged artifact")
	}
}

func parseWorkerOutput(out []byte) ([]record.RecognitionResult, error) {
	var parsed workerOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("decode recognition output: %w", err)
	}
	if parsed.Error != "" {
		if parsed.Details != "" {
			return nil, fmt.Errorf("%s: %s", parsed.Error, parsed.Details)
		}
		return nil, fmt.Errorf("%s", parsed.Error)
	}
	if len(parsed.Documents) == 0 {
		return nil, fmt.Errorf("recognition produced no documents")
	}
	return parsed.Documents, nil
}

func documentTypes(docs []record.RecognitionResult) []string {
	types := make([]string, len(docs))
	for i, d := range docs {
		types[i] = d.DocumentType
	}
	return types
}

// workerMessage flattens an invoker error into a job error message with
// enough diagnostic text to reproduce.
func workerMessage(err error) string {
	we, ok := worker.AsError(err)
	if !ok {
		return err.Error()
	}
	switch we.Kind {
	case worker.KindFailed:
		return fmt.Sprintf("recognition worker failed (exit %d): %s", we.ExitCode, we.Stderr)
	case worker.KindMalformedOutput:
		return fmt.Sprintf("recognition output is not valid JSON: %s", we.RawOutput)
	default:
		return fmt.Sprintf("recognition worker unavailable: %v", we)
	}
}
