package server

import (
	"encoding/json"
	"strings"
	"testing"
)

const minimalAnalysisJSON = `{
	"spendingByCategory": [{"category": "Groceries", "amount": 412.55}],
	"monthlySpending": [{"month": "2025-06", "amount": 1890.10}],
	"topMerchants": [{"merchant": "Kroger", "amount": 210.00, "frequency": 6}],
	"incomeVsExpenses": {"totalIncome": 4200, "totalExpenses": 3100, "savings": 1100},
	"insights": ["Grocery spending is stable."]
}`

func TestCoerceStatementAnalysisDefaultsOptionalLists(t *testing.T) {
	t.Parallel()

	analysis, err := coerceStatementAnalysis(json.RawMessage(minimalAnalysisJSON))
	if err != nil {
		t.Fatalf("coerce failed: %v", err)
	}

	if analysis.SavingsSuggestions == nil || len(analysis.SavingsSuggestions) != 0 {
		t.Fatalf("savingsSuggestions should default to empty slice, got %#v", analysis.SavingsSuggestions)
	}
	if analysis.WeeklyAverages == nil {
		t.Fatal("weeklyAverages should default to empty slice")
	}
	if analysis.RecurringPayments == nil {
		t.Fatal("recurringPayments should default to empty slice")
	}
	if analysis.TransactionPatterns == nil {
		t.Fatal("transactionPatterns should default to empty slice")
	}

	// Defaults must survive serialization as [] rather than null.
	encoded, err := json.Marshal(analysis)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(encoded), "null") {
		t.Fatalf("coerced analysis serialized a null: %s", encoded)
	}

	if float64(analysis.IncomeVsExpenses.Savings) != 1100 {
		t.Fatalf("savings = %v, want 1100", analysis.IncomeVsExpenses.Savings)
	}
}

func TestCoerceStatementAnalysisNamesMissingRequiredField(t *testing.T) {
	t.Parallel()

	missing := `{
		"monthlySpending": [],
		"topMerchants": [],
		"incomeVsExpenses": {"totalIncome": 1, "totalExpenses": 1, "savings": 0},
		"insights": []
	}`
	_, err := coerceStatementAnalysis(json.RawMessage(missing))
	kind, ok := errorKind(err)
	if !ok || kind != KindSchemaMismatch {
		t.Fatalf("expected schema-mismatch, got %v (err=%v)", kind, err)
	}
	if !strings.Contains(err.Error(), "spendingByCategory") {
		t.Fatalf("error should name the missing field, got %v", err)
	}
}

func TestCoerceStatementAnalysisNumericStrings(t *testing.T) {
	t.Parallel()

	t.Run("numeric string converts", func(t *testing.T) {
		t.Parallel()
		input := strings.Replace(minimalAnalysisJSON, `"amount": 412.55`, `"amount": "412.55"`, 1)
		analysis, err := coerceStatementAnalysis(json.RawMessage(input))
		if err != nil {
			t.Fatalf("coerce failed: %v", err)
		}
		if float64(analysis.SpendingByCategory[0].Amount) != 412.55 {
			t.Fatalf("amount = %v, want 412.55", analysis.SpendingByCategory[0].Amount)
		}
	})

	t.Run("non-numeric string is a mismatch not zero", func(t *testing.T) {
		t.Parallel()
		input := strings.Replace(minimalAnalysisJSON, `"amount": 412.55`, `"amount": "a lot"`, 1)
		_, err := coerceStatementAnalysis(json.RawMessage(input))
		kind, ok := errorKind(err)
		if !ok || kind != KindSchemaMismatch {
			t.Fatalf("expected schema-mismatch, got %v (err=%v)", kind, err)
		}
		if !strings.Contains(err.Error(), "amount") {
			t.Fatalf("error should name the invalid field, got %v", err)
		}
	})
}

func TestCoerceStatementGate(t *testing.T) {
	t.Parallel()

	t.Run("valid passes", func(t *testing.T) {
		t.Parallel()
		if err := coerceStatementGate(json.RawMessage(`{"isValid": true, "reason": "looks fine"}`)); err != nil {
			t.Fatalf("expected pass, got %v", err)
		}
	})

	t.Run("invalid carries reason verbatim", func(t *testing.T) {
		t.Parallel()
		err := coerceStatementGate(json.RawMessage(`{"isValid": false, "reason": "no transaction data found"}`))
		if err == nil {
			t.Fatal("expected rejection")
		}
		if got := rejectionReason(err); got != "no transaction data found" {
			t.Fatalf("reason = %q, want the model text verbatim", got)
		}
		kind, _ := errorKind(err)
		if kind != KindSchemaMismatch {
			t.Fatalf("rejection should be schema-mismatch adjacent, got %v", kind)
		}
	})

	t.Run("missing isValid is a mismatch", func(t *testing.T) {
		t.Parallel()
		err := coerceStatementGate(json.RawMessage(`{"reason": "whatever"}`))
		kind, ok := errorKind(err)
		if !ok || kind != KindSchemaMismatch {
			t.Fatalf("expected schema-mismatch, got %v (err=%v)", kind, err)
		}
		if !strings.Contains(err.Error(), "isValid") {
			t.Fatalf("error should name isValid, got %v", err)
		}
	})
}

func TestCoerceMerchantList(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{"wrapped object", `{"companies": ["Apple", "Kroger"]}`, []string{"Apple", "Kroger"}},
		{"bare array", `["Apple", "Kroger"]`, []string{"Apple", "Kroger"}},
		{"missing list defaults empty", `{}`, []string{}},
		{"blank entries dropped", `{"companies": ["Apple", "  ", ""]}`, []string{"Apple"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := coerceMerchantList(json.RawMessage(tc.input))
			if err != nil {
				t.Fatalf("coerce failed: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("merchants = %#v, want %#v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("merchants = %#v, want %#v", got, tc.want)
				}
			}
		})
	}

	t.Run("non-string entries are a mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := coerceMerchantList(json.RawMessage(`{"companies": [42]}`))
		kind, ok := errorKind(err)
		if !ok || kind != KindSchemaMismatch {
			t.Fatalf("expected schema-mismatch, got %v (err=%v)", kind, err)
		}
	})
}

func TestCoerceURLRisk(t *testing.T) {
	t.Parallel()

	t.Run("model risk level wins", func(t *testing.T) {
		t.Parallel()
		got, err := coerceURLRisk(json.RawMessage(`{"score": 25, "riskLevel": "medium", "reasons": ["new domain"]}`))
		if err != nil {
			t.Fatalf("coerce failed: %v", err)
		}
		if got.RiskLevel != "medium" || got.Score != 25 {
			t.Fatalf("assessment = %+v", got)
		}
	})

	t.Run("level derived from score when absent", func(t *testing.T) {
		t.Parallel()
		cases := map[int]string{95: "low", 55: "medium", 10: "high"}
		for score, want := range cases {
			raw := json.RawMessage(`{"score": ` + jsonInt(score) + `, "reasons": []}`)
			got, err := coerceURLRisk(raw)
			if err != nil {
				t.Fatalf("coerce failed: %v", err)
			}
			if got.RiskLevel != want {
				t.Fatalf("score %d: riskLevel = %q, want %q", score, got.RiskLevel, want)
			}
			if got.Reasons == nil {
				t.Fatal("reasons should never be nil")
			}
		}
	})

	t.Run("score clamps into 1-100", func(t *testing.T) {
		t.Parallel()
		got, err := coerceURLRisk(json.RawMessage(`{"score": 250, "reasons": ["x"]}`))
		if err != nil {
			t.Fatalf("coerce failed: %v", err)
		}
		if got.Score != 100 {
			t.Fatalf("score = %d, want 100", got.Score)
		}
	})

	t.Run("missing score is a mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := coerceURLRisk(json.RawMessage(`{"reasons": []}`))
		kind, ok := errorKind(err)
		if !ok || kind != KindSchemaMismatch {
			t.Fatalf("expected schema-mismatch, got %v (err=%v)", kind, err)
		}
		if !strings.Contains(err.Error(), "score") {
			t.Fatalf("error should name score, got %v", err)
		}
	})
}

func jsonInt(v int) string {
	encoded, _ := json.Marshal(v)
	return string(encoded)
}
