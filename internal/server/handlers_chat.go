package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const chatSystemPrompt = `You are a helpful financial assistant for the Ramblin' Returns dashboard. Answer questions about budgeting, spending habits, and investing in plain language. Keep answers short and practical. You are not a licensed financial advisor and should say so when asked for personalized investment advice.`

type chatRequest struct {
	Messages []chatTurn `json:"messages"`
}

func (a *App) chatTurnHandler(c *gin.Context) {
	var payload chatRequest
	if !mustJSON(c, &payload) {
		return
	}
	if len(payload.Messages) == 0 {
		writeModelError(c, newModelError(KindInvalidUserInput, "Invalid messages format"))
		return
	}
	hasContent := false
	for _, turn := range payload.Messages {
		if strings.TrimSpace(turn.Content) != "" {
			hasContent = true
			break
		}
	}
	if !hasContent {
		writeModelError(c, newModelError(KindInvalidUserInput, "Invalid messages format"))
		return
	}

	content, err := a.ai.complete(c.Request.Context(), modelRequest{
		System:      chatSystemPrompt,
		Turns:       payload.Messages,
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		writeModelError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": cleanModelText(content),
	})
}
