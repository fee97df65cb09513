package record

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Integrate folds an ordered sequence of recognition results into one
// canonical record. It is a pure function of its input: the same ordered
// sequence always produces a byte-identical record. A result that cannot be
// classified still lands in the audit trail, and a field that cannot be
// parsed is skipped for structured routing without failing the record.
func Integrate(results []RecognitionResult) *Record {
	rec := NewRecord()

	for _, res := range results {
		// Audit trail first, unconditionally.
		rec.RawRecognizedData = append(rec.RawRecognizedData, RawDocument{
			DocumentType: res.DocumentType,
			Data:         res.Data,
		})

		// First matching rule wins. The rule order is load-bearing: the
		// keyword sets are not mutually exclusive (e.g. "营养检查" hits the
		// biochemistry rule before the nutrition rule ever fires), and
		// changing it would reroute ambiguous labels.
		for _, rule := range routingRules {
			if containsAny(res.DocumentType, rule.keywords) {
				rule.apply(rec, res.Data)
				break
			}
		}

		if sub, ok := res.Data["integrated_data"].(map[string]any); ok {
			mergeIntegrated(rec, sub)
		}
	}

	return rec
}

type routingRule struct {
	keywords []string
	apply    func(rec *Record, data map[string]any)
}

// Classification is case-sensitive substring containment against a free-form
// document-type label; the label set is open-ended, not an enum.
var routingRules = []routingRule{
	{keywords: []string{"生化", "检查"}, apply: applyBiochemistry},
	{keywords: []string{"营养", "NRS2002"}, apply: applyNutrition},
	{keywords: []string{"人体测量", "体重"}, apply: applyAnthropometry},
	{keywords: []string{"血常规"}, apply: applyCompleteBloodCount},
}

func containsAny(label string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(label, kw) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Lab bucket extraction (biochemistry, complete blood count)
// ---------------------------------------------------------------------------

func applyBiochemistry(rec *Record, data map[string]any) {
	extractLabBucket(data, &rec.LabResults.Biochemistry)
}

func applyCompleteBloodCount(rec *Record, data map[string]any) {
	extractLabBucket(data, &rec.LabResults.CompleteBloodCount)
}

// metadataKeyMarkers identifies field keys that describe the document rather
// than a measured indicator: dates, conclusions, and type labels.
var metadataKeyMarkers = []string{"日期", "时间", "结论", "类型", "document_type"}

func isMetadataKey(key string) bool {
	for _, marker := range metadataKeyMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

// extractLabBucket converts every non-metadata field with a parseable value
// into a structured lab result. Field keys are visited in sorted order so
// integration stays deterministic regardless of map iteration.
func extractLabBucket(data map[string]any, bucket *[]LabResult) {
	for _, key := range sortedKeys(data) {
		if isMetadataKey(key) {
			continue
		}
		switch v := data[key].(type) {
		case string:
			value, unit, interp, ok := parseLabValue(v)
			if !ok {
				continue // stays in the audit trail only
			}
			*bucket = append(*bucket, LabResult{Name: key, Value: value, Unit: unit, Interpretation: interp})
		case float64:
			*bucket = append(*bucket, LabResult{Name: key, Value: formatFloat(v)})
		}
	}
}

// labValuePattern captures a leading numeric substring; everything after it
// is the unit token (arrows stripped separately).
var labValuePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)(.*)$`)

// parseLabValue splits "9.5×10^9/L ↑" into ("9.5", "×10^9/L", "↑"). The
// value keeps its source substring verbatim. Interpretation is detected by
// the literal presence of an arrow glyph anywhere in the original string.
func parseLabValue(s string) (value, unit, interpretation string, ok bool) {
	switch {
	case strings.Contains(s, "↑"):
		interpretation = "↑"
	case strings.Contains(s, "↓"):
		interpretation = "↓"
	}

	m := labValuePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", "", "", false
	}

	unit = m[2]
	unit = strings.ReplaceAll(unit, "↑", "")
	unit = strings.ReplaceAll(unit, "↓", "")
	unit = strings.TrimSpace(unit)

	return m[1], unit, interpretation, true
}

// ---------------------------------------------------------------------------
// Nutrition assessment extraction
// ---------------------------------------------------------------------------

var (
	nrsScoreAliases   = []string{"NRS2002评分", "NRS2002", "nrs2002", "营养风险筛查评分", "评分"}
	conclusionAliases = []string{"营养评估结论", "评估结论", "结论", "营养评估"}
)

func applyNutrition(rec *Record, data map[string]any) {
	if v, ok := firstPresent(data, nrsScoreAliases); ok {
		if score, ok := asFloat(v); ok {
			rec.ConsultationRecord["NRS2002_score"] = score
		}
	}
	if v, ok := firstPresent(data, conclusionAliases); ok {
		rec.ConsultationRecord["nutritional_assessment"] = asString(v)
	}
}

// ---------------------------------------------------------------------------
// Anthropometry extraction
// ---------------------------------------------------------------------------

var (
	heightAliases     = []string{"身高", "height_cm", "height"}
	weightAliases     = []string{"体重", "weight_kg", "weight"}
	bmiAliases        = []string{"BMI", "bmi"}
	weightLossAliases = []string{"体重变化", "体重下降", "近期体重变化", "weight_loss_percentage", "weight_change"}
)

func applyAnthropometry(rec *Record, data map[string]any) {
	if v, ok := firstPresent(data, heightAliases); ok {
		if f, ok := asFloat(v); ok {
			rec.PatientInfo.HeightCM = &f
		}
	}
	if v, ok := firstPresent(data, weightAliases); ok {
		if f, ok := asFloat(v); ok {
			rec.PatientInfo.WeightKG = &f
		}
	}
	if v, ok := firstPresent(data, bmiAliases); ok {
		if f, ok := asFloat(v); ok {
			rec.PatientInfo.BMI = &f
		}
	}
	// Passed through verbatim: weight-change wording varies too much across
	// sources to coerce ("下降5%", "一月内减轻3kg", ...).
	if v, ok := firstPresent(data, weightLossAliases); ok {
		rec.PatientInfo.WeightLossPercentage = asString(v)
	}
}

// ---------------------------------------------------------------------------
// Pre-integrated substructure merge
// ---------------------------------------------------------------------------

// mergeIntegrated folds a result's pre-integrated substructure into the
// record: patient_info overwrites by key (later result wins), diagnoses and
// lab buckets are concatenated (never deduplicated), NRS2002_score
// overwrites.
func mergeIntegrated(rec *Record, sub map[string]any) {
	if pi, ok := sub["patient_info"].(map[string]any); ok {
		if v, ok := pi["height_cm"]; ok {
			if f, ok := asFloat(v); ok {
				rec.PatientInfo.HeightCM = &f
			}
		}
		if v, ok := pi["weight_kg"]; ok {
			if f, ok := asFloat(v); ok {
				rec.PatientInfo.WeightKG = &f
			}
		}
		if v, ok := pi["bmi"]; ok {
			if f, ok := asFloat(v); ok {
				rec.PatientInfo.BMI = &f
			}
		}
		if v, ok := pi["weight_loss_percentage"]; ok {
			rec.PatientInfo.WeightLossPercentage = asString(v)
		}
	}

	if ds, ok := sub["diagnoses"].([]any); ok {
		rec.Diagnoses = append(rec.Diagnoses, ds...)
	}

	if lr, ok := sub["lab_results"].(map[string]any); ok {
		appendLooseLabs(lr["biochemistry"], &rec.LabResults.Biochemistry)
		appendLooseLabs(lr["complete_blood_count"], &rec.LabResults.CompleteBloodCount)
	}

	if v, ok := sub["NRS2002_score"]; ok {
		if f, ok := asFloat(v); ok {
			rec.ConsultationRecord["NRS2002_score"] = f
		} else {
			rec.ConsultationRecord["NRS2002_score"] = v
		}
	}
}

// appendLooseLabs converts loosely-typed lab entries ([]any of objects) into
// structured results and concatenates them onto the bucket.
func appendLooseLabs(v any, bucket *[]LabResult) {
	entries, ok := v.([]any)
	if !ok {
		return
	}
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		*bucket = append(*bucket, LabResult{
			Name:           asString(m["name"]),
			Value:          asString(m["value"]),
			Unit:           asString(m["unit"]),
			Interpretation: asString(m["interpretation"]),
		})
	}
}

// ---------------------------------------------------------------------------
// Loose-value coercion helpers
// ---------------------------------------------------------------------------

// firstPresent checks alias keys in fixed priority order; the first key
// present in the data wins even when its value later fails to parse.
func firstPresent(data map[string]any, aliases []string) (any, bool) {
	for _, key := range aliases {
		if v, ok := data[key]; ok {
			return v, true
		}
	}
	return nil, false
}

var leadingFloatPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)`)

// asFloat coerces a JSON number or a string with a leading numeric substring
// ("170cm", "65.5 kg") into a float.
func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		m := leadingFloatPattern.FindString(strings.TrimSpace(val))
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return formatFloat(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
