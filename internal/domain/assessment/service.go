package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cna/cna/internal/platform/worker"
)

// ErrInvalidInput marks a request rejected before any worker was spawned.
var ErrInvalidInput = errors.New("patient data is required")

// Invoker runs one external worker process. Satisfied by *worker.Invoker.
type Invoker interface {
	Invoke(ctx context.Context, cmd worker.Command, payload any) ([]byte, error)
}

type workerInput struct {
	PatientData any    `json:"patient_data"`
	ModelSeries string `json:"model_series"`
}

type workerOutput struct {
	Report            string             `json:"report"`
	ValidationResults *ValidationResults `json:"validation_results"`
	Error             string             `json:"error"`
	Details           string             `json:"details"`
}

// Service invokes the report worker. The worker command and the default
// model series are fixed at construction; nothing is read from ambient
// process state during assessment.
type Service struct {
	invoker       Invoker
	cmd           worker.Command
	defaultSeries string
}

func NewService(invoker Invoker, cmd worker.Command, defaultSeries string) *Service {
	return &Service{invoker: invoker, cmd: cmd, defaultSeries: defaultSeries}
}

func (s *Service) DefaultSeries() string { return s.defaultSeries }

// Assess generates a report from patientData. An empty record fails fast
// with ErrInvalidInput; no worker is spawned.
func (s *Service) Assess(ctx context.Context, patientData map[string]any, modelSeries string) (*Result, error) {
	if len(patientData) == 0 {
		return nil, ErrInvalidInput
	}
	if modelSeries == "" {
		modelSeries = s.defaultSeries
	}

	out, err := s.invoker.Invoke(ctx, s.cmd, workerInput{
		PatientData: patientData,
		ModelSeries: modelSeries,
	})
	if err != nil {
		return nil, err
	}

	var parsed workerOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("decode assessment output: %w", err)
	}
	if parsed.Error != "" {
		if parsed.Details != "" {
			return nil, fmt.Errorf("%s: %s", parsed.Error, parsed.Details)
		}
		return nil, fmt.Errorf("%s", parsed.Error)
	}
	if parsed.Report == "" {
		return nil, fmt.Errorf("assessment produced no report")
	}

	result := &Result{Report: parsed.Report, ModelSeries: modelSeries}
	if parsed.ValidationResults != nil {
		result.ValidationResults = *parsed.ValidationResults
	}
	if result.ValidationResults.MissingFields == nil {
		result.ValidationResults.MissingFields = []string{}
	}
	if result.ValidationResults.Warnings == nil {
		result.ValidationResults.Warnings = []string{}
	}
	return result, nil
}
