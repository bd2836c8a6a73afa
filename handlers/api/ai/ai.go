package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

var (
	geminiAPIKey  string
	geminiBaseURL string
	geminiModel   string

	httpClient = &http.Client{Timeout: 60 * time.Second}
)

func Init() {
	geminiAPIKey = os.Getenv("GEMINI_API_KEY")
	geminiBaseURL = os.Getenv("GEMINI_BASE_URL")
	if geminiBaseURL == "" {
		geminiBaseURL = "https://generativelanguage.googleapis.com" // Default value
	}
	geminiModel = os.Getenv("GEMINI_MODEL")
	if geminiModel == "" {
		geminiModel = "gemini-1.5-pro"
	}
	if geminiAPIKey == "" {
		logrus.Warn("GEMINI_API_KEY environment variable not set. AI endpoints will not work.")
	}
}

// Gemini generateContent wire structures, trimmed to the fields we use.

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type analyzeRequest struct {
	CodeSnippet string `json:"codeSnippet"`
	Language    string `json:"language"`
	Context     string `json:"context"`
}

// DebugFeedback is the structured answer the debug prompt asks the model
// for. When the model replies with anything but JSON, the raw text lands in
// Explanation.
type DebugFeedback struct {
	Issue        string `json:"issue"`
	Explanation  string `json:"explanation"`
	SuggestedFix string `json:"suggestedFix"`
	Severity     string `json:"severity"`
}

// generateContent sends one prompt to the Gemini REST endpoint and returns
// the first candidate's text.
func generateContent(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", geminiBaseURL, geminiModel, geminiAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func renderUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if isTimeout(err) {
		render.Status(r, http.StatusRequestTimeout)
		render.JSON(w, r, map[string]any{
			"success": false,
			"error":   "AI request timed out. Please try again.",
		})
		return
	}
	render.Status(r, http.StatusServiceUnavailable)
	render.JSON(w, r, map[string]any{
		"success": false,
		"error":   "AI service temporarily unavailable. Please try again.",
	})
}

func decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (analyzeRequest, bool) {
	var req analyzeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]any{"success": false, "error": "Invalid JSON in request body"})
		return req, false
	}
	if req.CodeSnippet == "" || req.Language == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]any{"success": false, "error": "Code snippet and language are required"})
		return req, false
	}
	return req, true
}

// HandleDebug asks the model for a bug analysis of the submitted snippet.
func HandleDebug() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeAnalyzeRequest(w, r)
		if !ok {
			return
		}

		promptContext := req.Context
		if promptContext == "" {
			promptContext = "General code analysis"
		}
		prompt := fmt.Sprintf(`
Analyze this %s code for bugs and issues:

`+"```%s\n%s\n```"+`

Context: %s

Please provide:
1. Any syntax errors or runtime errors
2. Logic issues or potential bugs
3. A suggested fix if there are issues
4. Severity level (error, warning, info)

Format your response as JSON:
{
  "issue": "Brief description of the issue",
  "explanation": "Detailed explanation of what's wrong",
  "suggestedFix": "Corrected code",
  "severity": "error|warning|info"
}
`, req.Language, req.Language, req.CodeSnippet, promptContext)

		text, err := generateContent(r.Context(), prompt)
		if err != nil {
			logrus.WithError(err).Error("AI debug request failed")
			renderUpstreamError(w, r, err)
			return
		}

		feedback := parseDebugFeedback(text, req.CodeSnippet)
		render.JSON(w, r, map[string]any{"success": true, "feedback": feedback})
	}
}

// parseDebugFeedback tries the model's JSON format first and falls back to
// wrapping the raw text.
func parseDebugFeedback(text, codeSnippet string) DebugFeedback {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var feedback DebugFeedback
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &feedback); err == nil && feedback.Explanation != "" {
		return feedback
	}
	return DebugFeedback{
		Issue:        "Code analysis completed",
		Explanation:  text,
		SuggestedFix: codeSnippet,
		Severity:     "info",
	}
}

// HandleExplain asks the model for a plain-English explanation of the
// submitted snippet.
func HandleExplain() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeAnalyzeRequest(w, r)
		if !ok {
			return
		}

		prompt := fmt.Sprintf(`
Explain this %s code in plain English:

`+"```%s\n%s\n```"+`

Please provide a clear, step-by-step explanation that breaks down:
1. What the code does overall
2. How each part works
3. Key concepts or patterns used
4. Any important details about the implementation

Format your response as a clear, structured explanation with bullet points where appropriate.
`, req.Language, req.Language, req.CodeSnippet)

		explanation, err := generateContent(r.Context(), prompt)
		if err != nil {
			logrus.WithError(err).Error("AI explain request failed")
			renderUpstreamError(w, r, err)
			return
		}

		render.JSON(w, r, map[string]any{"success": true, "explanation": explanation})
	}
}
