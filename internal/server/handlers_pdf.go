package server

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// extractPDF accepts a multipart upload and returns the concatenated page
// text. Nothing is stored; the bytes live only for this request.
func (a *App) extractPDF(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "No file provided")
		return
	}
	if a.cfg.MaxUploadBytes > 0 && fileHeader.Size > a.cfg.MaxUploadBytes {
		writeError(c, http.StatusBadRequest, "File is too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}

	text, err := extractPDFText(data)
	if err != nil {
		log.Printf("pdf extraction failed request_id=%s name=%s err=%v", requestIDFromContext(c), fileHeader.Filename, err)
		writeError(c, http.StatusBadRequest, "Failed to extract text from PDF")
		return
	}

	c.JSON(http.StatusOK, gin.H{"text": text})
}
