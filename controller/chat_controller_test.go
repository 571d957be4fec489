package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sjcsvns/school-chatbot/models"
	"github.com/sjcsvns/school-chatbot/services"
)

type stubScraper struct {
	text string
}

func (s *stubScraper) ScrapeAll(ctx context.Context) string { return s.text }
func (s *stubScraper) ScrapePage(ctx context.Context, url string) (string, error) {
	return s.text, nil
}

type fixedProfile string

func (p fixedProfile) Profile() string           { return string(p) }
func (p fixedProfile) Watch(ctx context.Context) {}

type stubCompletion struct {
	calls  int
	prompt []models.ChatMessage
	reply  string
	err    error
}

func (s *stubCompletion) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	s.calls++
	s.prompt = messages
	return s.reply, s.err
}

type stubNotify struct {
	configured bool
	asyncText  string
	sayErr     error
	audio      []byte
	audioErr   error
}

func (s *stubNotify) NotifyDevice(ctx context.Context, text string) error { return s.sayErr }
func (s *stubNotify) NotifyDeviceAsync(text string) bool {
	s.asyncText = text
	return s.configured
}
func (s *stubNotify) DeviceConfigured() bool { return s.configured }
func (s *stubNotify) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return s.audio, s.audioErr
}

func newTestRouter(c *ChatController) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/chat", c.Chat)
	router.GET("/esp32", c.ESP32)
	router.GET("/tts", c.TTS)
	router.POST("/say", c.Say)
	return router
}

func newTestController(scraped, reply string, completionErr error) (*ChatController, *stubCompletion, *stubNotify) {
	completion := &stubCompletion{reply: reply, err: completionErr}
	notify := &stubNotify{configured: true}
	contexts := services.NewContextService(fixedProfile("School profile."), 0)
	controller := NewChatController(&stubScraper{text: scraped}, contexts, completion, notify)
	return controller, completion, notify
}

func TestChatSuccess(t *testing.T) {
	controller, completion, notify := newTestController("scraped text", "The principal is Sister Arul", nil)
	router := newTestRouter(controller)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"Who is the principal?"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "The principal is Sister Arul" {
		t.Errorf("wrong reply: %q", resp.Reply)
	}

	if len(completion.prompt) != 3 {
		t.Fatalf("expected 3 prompt parts, got %d", len(completion.prompt))
	}
	if !strings.Contains(completion.prompt[1].Content, "School profile.") {
		t.Errorf("context part missing profile: %q", completion.prompt[1].Content)
	}
	if !strings.Contains(completion.prompt[1].Content, "scraped text") {
		t.Errorf("context part missing scraped text: %q", completion.prompt[1].Content)
	}
	if completion.prompt[2].Content != "Who is the principal?" {
		t.Errorf("user message not verbatim: %q", completion.prompt[2].Content)
	}

	if notify.asyncText != resp.Reply {
		t.Errorf("speaker notify did not receive the reply, got %q", notify.asyncText)
	}
}

func TestChatEmptyMessageSkipsCompletion(t *testing.T) {
	for _, body := range []string{`{"message":""}`, `{"message":"   "}`, `{}`} {
		controller, completion, _ := newTestController("", "unused", nil)
		router := newTestRouter(controller)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
		if completion.calls != 0 {
			t.Errorf("body %s: completion client must not be invoked", body)
		}
	}
}

func TestChatUpstreamShapeError(t *testing.T) {
	shapeErr := &services.UpstreamShapeError{Payload: []byte(`{"unexpected":"shape"}`)}
	controller, _, _ := newTestController("", "", shapeErr)
	router := newTestRouter(controller)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid response from completion API") {
		t.Errorf("missing error message: %s", rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "unexpected") {
		t.Errorf("diagnostic payload missing from details: %s", rec.Body)
	}
}

func TestChatUpstreamNetworkError(t *testing.T) {
	controller, _, _ := newTestController("", "", context.DeadlineExceeded)
	router := newTestRouter(controller)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Error connecting to completion API") {
		t.Errorf("missing generic error message: %s", rec.Body)
	}
}

func TestESP32NoQuestion(t *testing.T) {
	controller, completion, _ := newTestController("", "unused", nil)
	router := newTestRouter(controller)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/esp32", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No question received") {
		t.Errorf("missing fallback reply: %s", rec.Body)
	}
	if completion.calls != 0 {
		t.Error("completion client must not be invoked without a question")
	}
}

func TestESP32Question(t *testing.T) {
	controller, completion, _ := newTestController("scraped", "Classes start at eight", nil)
	router := newTestRouter(controller)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/esp32?q=when+do+classes+start", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Classes start at eight") {
		t.Errorf("missing reply: %s", rec.Body)
	}
	if completion.calls != 1 {
		t.Errorf("expected one completion call, got %d", completion.calls)
	}
}

func TestTTS(t *testing.T) {
	controller, _, notify := newTestController("", "", nil)
	notify.audio = []byte("RIFFwav")
	router := newTestRouter(controller)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tts?text=hello", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/wav" {
		t.Errorf("expected audio/wav, got %q", got)
	}
	if rec.Body.String() != "RIFFwav" {
		t.Errorf("audio bytes mangled: %q", rec.Body)
	}
}

func TestTTSMissingText(t *testing.T) {
	controller, _, _ := newTestController("", "", nil)
	router := newTestRouter(controller)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tts", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSay(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		configured bool
		wantCode   int
	}{
		{"missing text", `{}`, true, http.StatusBadRequest},
		{"no device", `{"text":"hi"}`, false, http.StatusBadRequest},
		{"relayed", `{"text":"hi"}`, true, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			controller, _, notify := newTestController("", "", nil)
			notify.configured = tc.configured
			router := newTestRouter(controller)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/say", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body)
			}
			if tc.wantCode == http.StatusOK && !strings.Contains(rec.Body.String(), "sent-to-esp32") {
				t.Errorf("missing relay confirmation: %s", rec.Body)
			}
		})
	}
}

// TestChatAllPagesUnreachable runs the real pipeline with every scrape target
// dead: the chat must still reach the completion API with a profile-only
// context and return its reply.
func TestChatAllPagesUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	var received models.CompletionRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"Sister Arul"}}]}`))
	}))
	defer upstream.Close()

	pages := []string{dead.URL + "/a", dead.URL + "/b", dead.URL + "/c"}
	scraper := services.NewScraperService(http.DefaultClient, pages)
	contexts := services.NewContextService(fixedProfile("Principal: Sister Arul."), 0)
	completion := services.NewCompletionService(http.DefaultClient, upstream.URL, "k", "m", 0)
	notify := &stubNotify{}

	router := newTestRouter(NewChatController(scraper, contexts, completion, notify))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"Who is the principal?"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("scrape outage must not fail the chat, got %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Sister Arul") {
		t.Errorf("missing upstream reply: %s", rec.Body)
	}

	if len(received.Messages) != 3 {
		t.Fatalf("expected a full prompt, got %d parts", len(received.Messages))
	}
	contextPart := received.Messages[1].Content
	if !strings.Contains(contextPart, "Principal: Sister Arul.") {
		t.Errorf("profile missing from context: %q", contextPart)
	}
	for _, page := range pages {
		if !strings.Contains(contextPart, "--- Page: "+page+" ---") {
			t.Errorf("marker for %s missing even though its fetch failed: %q", page, contextPart)
		}
	}
}
