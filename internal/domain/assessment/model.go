// Package assessment drives the external report-generation worker against a
// canonical patient record.
package assessment

// ValidationResults lists what the report generator found missing or
// questionable in its input record.
type ValidationResults struct {
	MissingFields []string `json:"missing_fields"`
	Warnings      []string `json:"warnings"`
}

// Result is one generated assessment. Immutable once returned.
type Result struct {
	Report            string            `json:"report"`
	ModelSeries       string            `json:"model_series"`
	ValidationResults ValidationResults `json:"validation_results"`
}
