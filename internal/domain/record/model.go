package record

import (
	"time"

	"github.com/google/uuid"
)

// RecognitionResult is one recognizer output: a free-form document-type label
// and a loosely-typed field mapping. Values may be numbers, strings with
// embedded units and arrows, or nested objects.
type RecognitionResult struct {
	DocumentType string         `json:"document_type"`
	Data         map[string]any `json:"data"`
}

// LabResult is one structured laboratory indicator. Value keeps the exact
// numeric substring from the source document; no float round-trip.
type LabResult struct {
	Name           string `json:"name"`
	Value          string `json:"value"`
	Unit           string `json:"unit"`
	Interpretation string `json:"interpretation"`
}

// PatientInfo holds anthropometric measurements. Each field is optional and
// last-writer-wins across merged sources. Weight-change text is kept verbatim
// because its format is inconsistent across sources.
type PatientInfo struct {
	HeightCM             *float64 `json:"height_cm,omitempty"`
	WeightKG             *float64 `json:"weight_kg,omitempty"`
	BMI                  *float64 `json:"bmi,omitempty"`
	WeightLossPercentage string   `json:"weight_loss_percentage,omitempty"`
}

// LabResults holds the two structured lab buckets. Both are append-only and
// never deduplicated.
type LabResults struct {
	Biochemistry       []LabResult `json:"biochemistry"`
	CompleteBloodCount []LabResult `json:"complete_blood_count"`
}

// RawDocument is one audit-trail entry: the recognizer output appended
// verbatim, whether or not structured routing classified it.
type RawDocument struct {
	DocumentType string         `json:"document_type"`
	Data         map[string]any `json:"data"`
}

// Record is the canonical patient record consumed by the report generator.
// It is always a valid serializable tree, even when zero or partial
// recognitions succeeded.
type Record struct {
	PatientInfo        PatientInfo    `json:"patient_info"`
	Diagnoses          []any          `json:"diagnoses"`
	LabResults         LabResults     `json:"lab_results"`
	ConsultationRecord map[string]any `json:"consultation_record"`
	RawRecognizedData  []RawDocument  `json:"raw_recognized_data"`
}

// NewRecord returns an empty record whose buckets marshal as [] and {}
// rather than null.
func NewRecord() *Record {
	return &Record{
		Diagnoses: []any{},
		LabResults: LabResults{
			Biochemistry:       []LabResult{},
			CompleteBloodCount: []LabResult{},
		},
		ConsultationRecord: map[string]any{},
		RawRecognizedData:  []RawDocument{},
	}
}

// ArchivedRecord is a finalized canonical record persisted to the archive.
type ArchivedRecord struct {
	ID          uuid.UUID `json:"id"`
	Record      *Record   `json:"record"`
	SourceCount int       `json:"source_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ArchivedReport is a generated assessment report persisted alongside its
// record.
type ArchivedReport struct {
	ID            uuid.UUID `json:"id"`
	RecordID      uuid.UUID `json:"record_id"`
	ModelSeries   string    `json:"model_series"`
	Report        string    `json:"report"`
	MissingFields []string  `json:"missing_fields"`
	Warnings      []string  `json:"warnings"`
	CreatedAt     time.Time `json:"created_at"`
}
