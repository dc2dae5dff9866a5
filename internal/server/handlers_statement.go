package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const statementGatePrompt = `You are a financial data analyst. First, determine if the provided text appears to be a valid bank statement. Return ONLY a JSON object with this exact format, nothing else: { "isValid": boolean, "reason": string }`

const statementAnalysisPrompt = `You are a financial analyst. Analyze the bank statement and provide a detailed analysis. Return ONLY a JSON object with this exact format, nothing else:
{
  "spendingByCategory": [{ "category": string, "amount": number }],
  "monthlySpending": [{ "month": string, "amount": number }],
  "weeklyAverages": [{ "week": string, "amount": number }],
  "topMerchants": [{ "merchant": string, "amount": number, "frequency": number }],
  "recurringPayments": [{ "merchant": string, "amount": number, "frequency": string }],
  "incomeVsExpenses": { "totalIncome": number, "totalExpenses": number, "savings": number },
  "transactionPatterns": [{ "pattern": string, "frequency": number }],
  "insights": string[],
  "savingsSuggestions": string[]
}`

const merchantExtractionPrompt = `Extract a list of merchants from the bank statement that are likely to be publicly traded companies. Return ONLY a JSON object with this exact format, nothing else: { "companies": string[] }`

type analyzeStatementRequest struct {
	Text string `json:"text"`
}

type analyzeStatementResponse struct {
	Analysis  StatementAnalysis `json:"analysis"`
	Merchants []string          `json:"merchants"`
	Degraded  []string          `json:"degraded,omitempty"`
}

// analyzeStatement runs the three-call statement pipeline. The calls are
// sequential and short-circuiting: the validity gate must pass before the
// expensive analysis call, and the analysis must succeed before merchant
// extraction. A merchant-extraction failure after a successful analysis
// degrades the response instead of discarding the analysis.
func (a *App) analyzeStatement(c *gin.Context) {
	var payload analyzeStatementRequest
	if !mustJSON(c, &payload) {
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		writeModelError(c, newModelError(KindInvalidUserInput, "No valid text provided"))
		return
	}

	ctx := c.Request.Context()

	if err := a.runStatementGate(ctx, text); err != nil {
		log.Printf("statement gate failed request_id=%s err=%v", requestIDFromContext(c), err)
		writeModelError(c, err)
		return
	}

	analysis, err := a.runStatementAnalysis(ctx, text)
	if err != nil {
		log.Printf("statement analysis failed request_id=%s err=%v", requestIDFromContext(c), err)
		writeModelError(c, err)
		return
	}

	response := analyzeStatementResponse{
		Analysis:  analysis,
		Merchants: []string{},
	}
	merchants, err := a.runMerchantExtraction(ctx, text)
	if err != nil {
		// The analysis already succeeded; report merchant extraction as
		// degraded rather than failing the whole pipeline.
		log.Printf("merchant extraction degraded request_id=%s err=%v", requestIDFromContext(c), err)
		response.Degraded = []string{"merchants"}
	} else {
		response.Merchants = merchants
	}

	c.JSON(http.StatusOK, response)
}

func (a *App) runStatementGate(ctx context.Context, text string) error {
	content, err := a.ai.complete(ctx, modelRequest{
		System:      statementGatePrompt,
		User:        text,
		Temperature: 0.3,
		MaxTokens:   500,
		ForceJSON:   true,
	})
	if err != nil {
		return err
	}
	raw, err := extractJSON(cleanModelText(content))
	if err != nil {
		return err
	}
	return coerceStatementGate(raw)
}

func (a *App) runStatementAnalysis(ctx context.Context, text string) (StatementAnalysis, error) {
	content, err := a.ai.complete(ctx, modelRequest{
		System:      statementAnalysisPrompt,
		User:        text,
		Temperature: 0.7,
		MaxTokens:   1500,
		ForceJSON:   true,
	})
	if err != nil {
		return StatementAnalysis{}, err
	}
	raw, err := extractJSON(cleanModelText(content))
	if err != nil {
		return StatementAnalysis{}, err
	}
	return coerceStatementAnalysis(raw)
}

func (a *App) runMerchantExtraction(ctx context.Context, text string) ([]string, error) {
	content, err := a.ai.complete(ctx, modelRequest{
		System:      merchantExtractionPrompt,
		User:        text,
		Temperature: 0.3,
		MaxTokens:   500,
		ForceJSON:   true,
	})
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(cleanModelText(content))
	if err != nil {
		return nil, err
	}
	return coerceMerchantList(raw)
}
