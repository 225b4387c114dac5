package extractor

import (
	"path/filepath"
	"strings"
)

const (
	systemPrompt         = "Return strict JSON only. No markdown or prose."
	userExtractionPrompt = "Extract invoice/receipt fields into one JSON object. Use null for unknown values."
	correctivePromptText = "Your previous output was invalid. Return only one valid JSON object with no extra text."
)

// mimeForPath maps a file extension to the mime type vision providers
// expect. Anything else is unsupported.
func mimeForPath(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".png":
		return "image/png", nil
	case ".pdf":
		return "application/pdf", nil
	default:
		return "", newError(CodeUnsupportedType, "unsupported file extension: "+ext, nil)
	}
}
