package ai

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeGemini stands in for the generateContent endpoint and replies with a
// single candidate holding the given text.
func fakeGemini(t *testing.T, replyText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": replyText}}}},
			},
		}
		json.NewEncoder(w).Encode(reply)
	}))
}

func pointAt(t *testing.T, server *httptest.Server) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_BASE_URL", server.URL)
	Init()
}

func postAnalyze(t *testing.T, handler http.HandlerFunc, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)

	var decoded map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return rr, decoded
}

func TestHandleDebug_StructuredReply(t *testing.T) {
	server := fakeGemini(t, `{"issue":"off by one","explanation":"loop runs once too often","suggestedFix":"i < n","severity":"error"}`)
	defer server.Close()
	pointAt(t, server)

	rr, body := postAnalyze(t, HandleDebug(), map[string]string{
		"codeSnippet": "for (i = 0; i <= n; i++) {}",
		"language":    "javascript",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	feedback, _ := body["feedback"].(map[string]any)
	if feedback["issue"] != "off by one" || feedback["severity"] != "error" {
		t.Errorf("feedback: got %+v", feedback)
	}
}

func TestHandleDebug_FencedJSONReply(t *testing.T) {
	server := fakeGemini(t, "```json\n{\"issue\":\"x\",\"explanation\":\"y\",\"suggestedFix\":\"z\",\"severity\":\"warning\"}\n```")
	defer server.Close()
	pointAt(t, server)

	_, body := postAnalyze(t, HandleDebug(), map[string]string{
		"codeSnippet": "x", "language": "go",
	})

	feedback, _ := body["feedback"].(map[string]any)
	if feedback["severity"] != "warning" {
		t.Errorf("fenced JSON not parsed: got %+v", feedback)
	}
}

func TestHandleDebug_ProseFallback(t *testing.T) {
	server := fakeGemini(t, "Looks fine to me, no issues spotted.")
	defer server.Close()
	pointAt(t, server)

	_, body := postAnalyze(t, HandleDebug(), map[string]string{
		"codeSnippet": "print(1)", "language": "python",
	})

	feedback, _ := body["feedback"].(map[string]any)
	if feedback["severity"] != "info" {
		t.Errorf("prose reply should fall back to info severity: got %+v", feedback)
	}
	if feedback["suggestedFix"] != "print(1)" {
		t.Errorf("fallback should echo the snippet: got %v", feedback["suggestedFix"])
	}
}

func TestHandleExplain(t *testing.T) {
	server := fakeGemini(t, "This prints the number one.")
	defer server.Close()
	pointAt(t, server)

	rr, body := postAnalyze(t, HandleExplain(), map[string]string{
		"codeSnippet": "print(1)", "language": "python",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if body["explanation"] != "This prints the number one." {
		t.Errorf("explanation: got %v", body["explanation"])
	}
}

func TestAnalyze_MissingFieldsRejected(t *testing.T) {
	rr, body := postAnalyze(t, HandleDebug(), map[string]string{"language": "go"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if body["success"] != false {
		t.Error("success flag should be false")
	}
}

func TestAnalyze_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	pointAt(t, server)

	rr, _ := postAnalyze(t, HandleExplain(), map[string]string{
		"codeSnippet": "x", "language": "go",
	})

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestParseDebugFeedback(t *testing.T) {
	cases := []struct {
		name         string
		text         string
		wantSeverity string
	}{
		{"bare json", `{"issue":"a","explanation":"b","suggestedFix":"c","severity":"error"}`, "error"},
		{"fenced", "```json\n{\"issue\":\"a\",\"explanation\":\"b\",\"severity\":\"warning\"}\n```", "warning"},
		{"prose", "all good", "info"},
		{"json without explanation", `{"issue":"a"}`, "info"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseDebugFeedback(tc.text, "snippet")
			if got.Severity != tc.wantSeverity {
				t.Errorf("severity: got %s, want %s", got.Severity, tc.wantSeverity)
			}
		})
	}
}
