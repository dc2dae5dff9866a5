package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const urlRiskPrompt = `You are a URL security analyzer. Analyze the given URL for potential security risks.
Consider:
- Domain reputation and age
- Presence of suspicious patterns (e.g., typosquatting)
- SSL/HTTPS usage
- Similarity to known legitimate domains
- Presence of suspicious URL patterns

Provide:
1. A safety score (1-100, higher is safer)
2. A risk level ("low", "medium" or "high")
3. Three specific reasons for the score
Return ONLY a JSON object with this exact format, nothing else: { "score": number, "riskLevel": string, "reasons": string[] }`

type urlRequest struct {
	URL string `json:"url"`
}

type urlCheckResponse struct {
	OriginalURL   string   `json:"original_url"`
	ResolvedURL   string   `json:"resolved_url"`
	RedirectCount int      `json:"redirect_count"`
	Score         int      `json:"score"`
	RiskLevel     string   `json:"risk_level"`
	Reasons       []string `json:"reasons"`
}

// checkURL unshortens the submitted URL and asks the model to assess the
// final destination. The assessment always runs against the resolved URL;
// the response carries both so the dashboard can show the expansion.
func (a *App) checkURL(c *gin.Context) {
	original, ok := a.bindURL(c)
	if !ok {
		return
	}

	resolved := a.resolver.resolve(c.Request.Context(), original)

	content, err := a.ai.complete(c.Request.Context(), modelRequest{
		System:      urlRiskPrompt,
		User:        "Analyze this URL for security: " + resolved.URL,
		Temperature: 0.3,
		MaxTokens:   250,
		ForceJSON:   true,
	})
	if err != nil {
		writeModelError(c, err)
		return
	}
	raw, err := extractJSON(cleanModelText(content))
	if err != nil {
		log.Printf("url risk reply unparsable request_id=%s err=%v", requestIDFromContext(c), err)
		writeModelError(c, err)
		return
	}
	assessment, err := coerceURLRisk(raw)
	if err != nil {
		writeModelError(c, err)
		return
	}

	c.JSON(http.StatusOK, urlCheckResponse{
		OriginalURL:   original,
		ResolvedURL:   resolved.URL,
		RedirectCount: resolved.RedirectCount,
		Score:         assessment.Score,
		RiskLevel:     assessment.RiskLevel,
		Reasons:       assessment.Reasons,
	})
}

// resolveURL expands a shortened URL without running the risk assessment.
func (a *App) resolveURL(c *gin.Context) {
	original, ok := a.bindURL(c)
	if !ok {
		return
	}

	resolved := a.resolver.resolve(c.Request.Context(), original)

	c.JSON(http.StatusOK, gin.H{
		"original_url":   original,
		"resolved_url":   resolved.URL,
		"redirect_count": resolved.RedirectCount,
	})
}

func (a *App) bindURL(c *gin.Context) (string, bool) {
	var payload urlRequest
	if !mustJSON(c, &payload) {
		return "", false
	}
	target := strings.TrimSpace(payload.URL)
	if target == "" {
		writeModelError(c, newModelError(KindInvalidUserInput, "No URL provided"))
		return "", false
	}
	if !validHTTPURL(target) {
		writeModelError(c, newModelError(KindInvalidUserInput, "Invalid URL format. Please provide a valid HTTP or HTTPS URL."))
		return "", false
	}
	return target, true
}
