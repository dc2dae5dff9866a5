package server

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Domain shapes the dashboard renders. Field names mirror what the model
// is instructed to emit so the payload passes through unchanged.

type CategoryAmount struct {
	Category string    `json:"category"`
	Amount   flexFloat `json:"amount"`
}

type MonthAmount struct {
	Month  string    `json:"month"`
	Amount flexFloat `json:"amount"`
}

type WeekAmount struct {
	Week   string    `json:"week"`
	Amount flexFloat `json:"amount"`
}

type MerchantSpend struct {
	Merchant  string    `json:"merchant"`
	Amount    flexFloat `json:"amount"`
	Frequency flexFloat `json:"frequency"`
}

type RecurringPayment struct {
	Merchant  string    `json:"merchant"`
	Amount    flexFloat `json:"amount"`
	Frequency string    `json:"frequency"`
}

type IncomeVsExpenses struct {
	TotalIncome   flexFloat `json:"totalIncome"`
	TotalExpenses flexFloat `json:"totalExpenses"`
	Savings       flexFloat `json:"savings"`
}

type TransactionPattern struct {
	Pattern   string    `json:"pattern"`
	Frequency flexFloat `json:"frequency"`
}

type StatementAnalysis struct {
	SpendingByCategory  []CategoryAmount     `json:"spendingByCategory"`
	MonthlySpending     []MonthAmount        `json:"monthlySpending"`
	WeeklyAverages      []WeekAmount         `json:"weeklyAverages"`
	TopMerchants        []MerchantSpend      `json:"topMerchants"`
	RecurringPayments   []RecurringPayment   `json:"recurringPayments"`
	IncomeVsExpenses    IncomeVsExpenses     `json:"incomeVsExpenses"`
	TransactionPatterns []TransactionPattern `json:"transactionPatterns"`
	Insights            []string             `json:"insights"`
	SavingsSuggestions  []string             `json:"savingsSuggestions"`
}

type URLRiskAssessment struct {
	Score     int      `json:"score"`
	RiskLevel string   `json:"risk_level"`
	Reasons   []string `json:"reasons"`
}

type statementGate struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason"`
}

// flexFloat accepts a JSON number or a numeric string. Anything else is a
// schema violation caught before unmarshalling, so Unmarshal failures here
// only happen on values the schema already admitted.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "" || text == "null" {
		return fmt.Errorf("numeric field is null")
	}
	if text[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("numeric field %q is not a number", raw)
		}
		*f = flexFloat(parsed)
		return nil
	}
	var parsed float64
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return fmt.Errorf("numeric field is not finite")
	}
	*f = flexFloat(parsed)
	return nil
}

func (f flexFloat) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(f))
}

// Numeric model fields arrive as numbers or numeric strings; a string that
// does not look like a number is rejected here rather than silently read
// as zero downstream.
const amountDef = `"$defs":{"amount":{"type":["number","string"],"pattern":"^\\s*-?\\d+(\\.\\d+)?\\s*$"}}`

var (
	statementGateSchema = jsonschema.MustCompileString("gate.json", `{
		"type": "object",
		"required": ["isValid"],
		"properties": {
			"isValid": {"type": "boolean"},
			"reason": {"type": "string"}
		}
	}`)

	statementAnalysisSchema = jsonschema.MustCompileString("analysis.json", `{
		"type": "object",
		"required": ["spendingByCategory", "monthlySpending", "topMerchants", "incomeVsExpenses", "insights"],
		"properties": {
			"spendingByCategory": {"type": "array", "items": {
				"type": "object",
				"required": ["category", "amount"],
				"properties": {"category": {"type": "string"}, "amount": {"$ref": "#/$defs/amount"}}
			}},
			"monthlySpending": {"type": "array", "items": {
				"type": "object",
				"required": ["month", "amount"],
				"properties": {"month": {"type": "string"}, "amount": {"$ref": "#/$defs/amount"}}
			}},
			"weeklyAverages": {"type": "array", "items": {
				"type": "object",
				"required": ["week", "amount"],
				"properties": {"week": {"type": "string"}, "amount": {"$ref": "#/$defs/amount"}}
			}},
			"topMerchants": {"type": "array", "items": {
				"type": "object",
				"required": ["merchant", "amount"],
				"properties": {
					"merchant": {"type": "string"},
					"amount": {"$ref": "#/$defs/amount"},
					"frequency": {"$ref": "#/$defs/amount"}
				}
			}},
			"recurringPayments": {"type": "array", "items": {
				"type": "object",
				"required": ["merchant", "amount"],
				"properties": {
					"merchant": {"type": "string"},
					"amount": {"$ref": "#/$defs/amount"},
					"frequency": {"type": "string"}
				}
			}},
			"incomeVsExpenses": {
				"type": "object",
				"required": ["totalIncome", "totalExpenses", "savings"],
				"properties": {
					"totalIncome": {"$ref": "#/$defs/amount"},
					"totalExpenses": {"$ref": "#/$defs/amount"},
					"savings": {"$ref": "#/$defs/amount"}
				}
			},
			"transactionPatterns": {"type": "array", "items": {
				"type": "object",
				"required": ["pattern"],
				"properties": {"pattern": {"type": "string"}, "frequency": {"$ref": "#/$defs/amount"}}
			}},
			"insights": {"type": "array", "items": {"type": "string"}},
			"savingsSuggestions": {"type": "array", "items": {"type": "string"}}
		},
		`+amountDef+`
	}`)

	merchantListSchema = jsonschema.MustCompileString("merchants.json", `{
		"anyOf": [
			{"type": "array", "items": {"type": "string"}},
			{"type": "object", "properties": {"companies": {"type": "array", "items": {"type": "string"}}}}
		]
	}`)

	urlRiskSchema = jsonschema.MustCompileString("urlrisk.json", `{
		"type": "object",
		"required": ["score", "reasons"],
		"properties": {
			"score": {"$ref": "#/$defs/amount"},
			"reasons": {"type": "array", "items": {"type": "string"}},
			"riskLevel": {"type": "string"}
		},
		`+amountDef+`
	}`)
)

// validateShape runs a compiled schema over the extracted JSON and converts
// the first violation into a schema-mismatch error naming the offending
// field.
func validateShape(schema *jsonschema.Schema, raw json.RawMessage) error {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return wrapModelError(KindUnparsableContent, "extracted JSON would not decode", err)
	}
	if err := schema.Validate(value); err != nil {
		detail := "model reply has unexpected structure"
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			leaf := ve
			for len(leaf.Causes) > 0 {
				leaf = leaf.Causes[0]
			}
			// Required-property failures report at the object root with
			// the property names only in the message, so keep both.
			if field := strings.TrimPrefix(leaf.InstanceLocation, "/"); field != "" {
				detail = fmt.Sprintf("model reply field %q invalid: %s", strings.ReplaceAll(field, "/", "."), leaf.Message)
			} else {
				detail = "model reply invalid: " + leaf.Message
			}
		}
		return newModelError(KindSchemaMismatch, detail)
	}
	return nil
}

// coerceStatementGate interprets the validity-check reply. A negative
// verdict becomes the distinguished rejected-input error carrying the
// model's reason verbatim.
func coerceStatementGate(raw json.RawMessage) error {
	if err := validateShape(statementGateSchema, raw); err != nil {
		return err
	}
	var gate statementGate
	if err := json.Unmarshal(raw, &gate); err != nil {
		return wrapModelError(KindSchemaMismatch, "validity check reply would not decode", err)
	}
	if !gate.IsValid {
		return rejectedInput(gate.Reason)
	}
	return nil
}

func coerceStatementAnalysis(raw json.RawMessage) (StatementAnalysis, error) {
	if err := validateShape(statementAnalysisSchema, raw); err != nil {
		return StatementAnalysis{}, err
	}
	var analysis StatementAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return StatementAnalysis{}, wrapModelError(KindSchemaMismatch, "analysis reply would not decode", err)
	}

	// Optional lists default to empty so the dashboard's render loops
	// never see null.
	if analysis.SpendingByCategory == nil {
		analysis.SpendingByCategory = []CategoryAmount{}
	}
	if analysis.MonthlySpending == nil {
		analysis.MonthlySpending = []MonthAmount{}
	}
	if analysis.WeeklyAverages == nil {
		analysis.WeeklyAverages = []WeekAmount{}
	}
	if analysis.TopMerchants == nil {
		analysis.TopMerchants = []MerchantSpend{}
	}
	if analysis.RecurringPayments == nil {
		analysis.RecurringPayments = []RecurringPayment{}
	}
	if analysis.TransactionPatterns == nil {
		analysis.TransactionPatterns = []TransactionPattern{}
	}
	if analysis.Insights == nil {
		analysis.Insights = []string{}
	}
	if analysis.SavingsSuggestions == nil {
		analysis.SavingsSuggestions = []string{}
	}
	return analysis, nil
}

// coerceMerchantList accepts either {"companies": [...]} or a bare array,
// both of which the model emits in practice. A missing list is an empty
// list, not an error.
func coerceMerchantList(raw json.RawMessage) ([]string, error) {
	if err := validateShape(merchantListSchema, raw); err != nil {
		return nil, err
	}

	var bare []string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return compactStrings(bare), nil
	}

	var wrapped struct {
		Companies []string `json:"companies"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, wrapModelError(KindSchemaMismatch, "merchant reply would not decode", err)
	}
	return compactStrings(wrapped.Companies), nil
}

func coerceURLRisk(raw json.RawMessage) (URLRiskAssessment, error) {
	if err := validateShape(urlRiskSchema, raw); err != nil {
		return URLRiskAssessment{}, err
	}
	var decoded struct {
		Score     flexFloat `json:"score"`
		Reasons   []string  `json:"reasons"`
		RiskLevel string    `json:"riskLevel"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return URLRiskAssessment{}, wrapModelError(KindSchemaMismatch, "risk reply would not decode", err)
	}

	score := int(float64(decoded.Score))
	if score < 1 {
		score = 1
	}
	if score > 100 {
		score = 100
	}

	assessment := URLRiskAssessment{
		Score:     score,
		RiskLevel: normalizeRiskLevel(decoded.RiskLevel, score),
		Reasons:   compactStrings(decoded.Reasons),
	}
	return assessment, nil
}

// normalizeRiskLevel keeps a model-supplied level when it is one of the
// known categories; otherwise the safety score decides.
func normalizeRiskLevel(supplied string, score int) string {
	switch strings.ToLower(strings.TrimSpace(supplied)) {
	case "low":
		return "low"
	case "medium":
		return "medium"
	case "high":
		return "high"
	}
	switch {
	case score >= 70:
		return "low"
	case score >= 40:
		return "medium"
	default:
		return "high"
	}
}

func compactStrings(values []string) []string {
	result := make([]string, 0, len(values))
	for _, item := range values {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
