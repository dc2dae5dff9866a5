package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const investmentPrompt = `You are a financial advisor. Analyze these companies and provide very brief investment insights with a buy, hold or sell leaning for each. You are not giving personalized advice.`

// recommendationMerchantLimit keeps the prompt small; the dashboard only
// shows the top few holdings anyway.
const recommendationMerchantLimit = 3

type investmentRequest struct {
	Merchants []string `json:"merchants"`
}

func (a *App) investmentRecommendations(c *gin.Context) {
	var payload investmentRequest
	if !mustJSON(c, &payload) {
		return
	}
	merchants := compactStrings(payload.Merchants)
	if len(merchants) == 0 {
		writeModelError(c, newModelError(KindInvalidUserInput, "No valid merchants provided"))
		return
	}
	if len(merchants) > recommendationMerchantLimit {
		merchants = merchants[:recommendationMerchantLimit]
	}

	content, err := a.ai.complete(c.Request.Context(), modelRequest{
		System:      investmentPrompt,
		User:        "Provide a quick analysis for these companies: " + strings.Join(merchants, ", "),
		Temperature: 0.3,
		MaxTokens:   250,
	})
	if err != nil {
		writeModelError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recommendations": cleanModelText(content),
		"merchants":       merchants,
	})
}
