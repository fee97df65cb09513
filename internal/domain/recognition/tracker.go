package recognition

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cna/cna/internal/domain/record"
)

// ErrSessionNotFound is returned for lookups of unknown or cleared sessions.
var ErrSessionNotFound = fmt.Errorf("recognition session not found")

// ErrJobNotFound is returned for lookups of unknown job ids.
var ErrJobNotFound = fmt.Errorf("recognition job not found")

// Tracker holds recognition sessions in memory and enforces the job state
// machine: pending -> processing -> {success, error}, with error ->
// processing permitted for retry. Jobs live until their session is cleared.
type Tracker struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[uuid.UUID]*Session)}
}

// NewSession registers one pending job per document and returns the session.
func (t *Tracker) NewSession(docs []Document) *Session {
	s := &Session{ID: uuid.New(), CreatedAt: time.Now()}
	for _, d := range docs {
		s.Jobs = append(s.Jobs, &Job{
			ID:       uuid.New(),
			FileName: d.Name,
			Status:   StatusPending,
			Content:  d.Content,
		})
	}
	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()
	return s
}

func (t *Tracker) Session(id uuid.UUID) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (t *Tracker) Job(sessionID, jobID uuid.UUID) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job(sessionID, jobID)
}

// job requires t.mu held.
func (t *Tracker) job(sessionID, jobID uuid.UUID) (*Job, error) {
	s, ok := t.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	for _, j := range s.Jobs {
		if j.ID == jobID {
			return j, nil
		}
	}
	return nil, ErrJobNotFound
}

func (t *Tracker) MarkProcessing(sessionID, jobID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, err := t.job(sessionID, jobID)
	if err != nil {
		return err
	}
	if j.Status != StatusPending && j.Status != StatusError {
		return fmt.Errorf("job %s: cannot start processing from %q", jobID, j.Status)
	}
	j.Status = StatusProcessing
	j.Error = ""
	return nil
}

func (t *Tracker) MarkSuccess(sessionID, jobID uuid.UUID, result *record.RecognitionResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, err := t.job(sessionID, jobID)
	if err != nil {
		return err
	}
	if j.Status != StatusProcessing {
		return fmt.Errorf("job %s: cannot succeed from %q", jobID, j.Status)
	}
	j.Status = StatusSuccess
	j.Result = result
	j.Error = ""
	return nil
}

func (t *Tracker) MarkError(sessionID, jobID uuid.UUID, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, err := t.job(sessionID, jobID)
	if err != nil {
		return err
	}
	if j.Status != StatusProcessing {
		return fmt.Errorf("job %s: cannot fail from %q", jobID, j.Status)
	}
	j.Status = StatusError
	j.Error = message
	return nil
}

// Snapshot summarizes progress over the session's jobs. Completed counts
// both terminal outcomes.
func (t *Tracker) Snapshot(sessionID uuid.UUID) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	snap := Snapshot{Total: len(s.Jobs)}
	for _, j := range s.Jobs {
		switch j.Status {
		case StatusSuccess:
			snap.Successful++
			snap.Completed++
		case StatusError:
			snap.Failed++
			snap.Completed++
		}
	}
	return snap, nil
}

// SuccessfulResults returns the results of succeeded jobs in submission
// order.
func (t *Tracker) SuccessfulResults(sessionID uuid.UUID) ([]record.RecognitionResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	var results []record.RecognitionResult
	for _, j := range s.Jobs {
		if j.Status == StatusSuccess && j.Result != nil {
			results = append(results, *j.Result)
		}
	}
	return results, nil
}

// Clear drops the session and all its jobs.
func (t *Tracker) Clear(sessionID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(t.sessions, sessionID)
	return nil
}
