package sns

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/wavalabs/builder/internal/services/sns/storage"
)

func TestAIReplyGeneratesAndPosts(t *testing.T) {
	var postedMessage string
	mux := http.NewServeMux()
	mux.HandleFunc("/c-1/comments", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		postedMessage = r.PostForm.Get("message")
		writeJSON(t, w, map[string]string{"id": "reply-1"})
	})
	fb := newTestFacebook(t, mux)

	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{
		ID: "conn", Platform: storage.PlatformFacebook, PageID: "page-1", AccessToken: "tok",
	})
	gen := &fakeGenerator{text: "  좋은 의견 감사합니다! 🙌  "}
	service := NewService(store, fb, nil, nil, gen)

	replyText, replyID, err := service.AIReply(t.Context(), AIReplyRequest{
		ConnectionID: "conn",
		CommentID:    "c-1",
		CommentText:  "배송 언제 되나요?",
		PostMessage:  "신제품 출시!",
	})
	if err != nil {
		t.Fatalf("AIReply: %v", err)
	}
	if replyText != "좋은 의견 감사합니다! 🙌" || replyID != "reply-1" {
		t.Errorf("reply = %q id = %q", replyText, replyID)
	}
	if postedMessage != replyText {
		t.Errorf("posted %q, want generated text", postedMessage)
	}
	if gen.lastTemperature != 0.7 || gen.lastMaxTokens != 256 {
		t.Errorf("generation config = %v/%v", gen.lastTemperature, gen.lastMaxTokens)
	}
	if !strings.Contains(gen.lastPrompt, "배송 언제 되나요?") || !strings.Contains(gen.lastPrompt, "신제품 출시!") {
		t.Errorf("prompt missing comment context: %q", gen.lastPrompt)
	}
}

func TestAIReplyEmptyGeneration(t *testing.T) {
	store := newMemStore()
	service := NewService(store, nil, nil, nil, &fakeGenerator{text: "   "})

	_, _, err := service.AIReply(t.Context(), AIReplyRequest{
		ConnectionID: "conn", CommentID: "c-1", CommentText: "질문",
	})
	if err == nil || !strings.Contains(err.Error(), "비어") {
		t.Fatalf("err = %v, want empty generation error", err)
	}
}

func TestAIReplyRequiresGenerator(t *testing.T) {
	service := NewService(newMemStore(), nil, nil, nil, nil)
	_, _, err := service.AIReply(t.Context(), AIReplyRequest{
		ConnectionID: "conn", CommentID: "c-1", CommentText: "질문",
	})
	if err == nil || !strings.Contains(err.Error(), "Gemini API Key") {
		t.Fatalf("err = %v, want missing key error", err)
	}
}

func TestAIReplyPerRequestKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/c-1/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"id": "reply-1"})
	})
	fb := newTestFacebook(t, mux)

	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{
		ID: "conn", Platform: storage.PlatformFacebook, PageID: "page-1", AccessToken: "tok",
	})

	// No process-level generator; the request key builds one.
	service := NewService(store, fb, nil, nil, nil)
	var factoryKey string
	service.SetGeneratorFactory(func(_ context.Context, apiKey string) (TextGenerator, error) {
		factoryKey = apiKey
		return &fakeGenerator{text: "감사합니다! 😊"}, nil
	})

	req := AIReplyRequest{
		ConnectionID: "conn",
		CommentID:    "c-1",
		CommentText:  "배송 언제 되나요?",
		GeminiAPIKey: "request-scoped-key",
	}
	replyText, _, err := service.AIReply(t.Context(), req)
	if err != nil {
		t.Fatalf("AIReply: %v", err)
	}
	if factoryKey != "request-scoped-key" {
		t.Errorf("factory key = %q, want request-scoped-key", factoryKey)
	}
	if replyText != "감사합니다! 😊" {
		t.Errorf("reply = %q", replyText)
	}

	// Without the key it still fails.
	req.GeminiAPIKey = ""
	if _, _, err := service.AIReply(t.Context(), req); err == nil || !strings.Contains(err.Error(), "Gemini API Key") {
		t.Fatalf("err = %v, want missing key error", err)
	}
}

func TestReportPerRequestKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page-1/insights", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"data": []map[string]any{
			{"name": "page_fans", "values": []map[string]any{{"value": 7}}},
		}})
	})
	fb := newTestFacebook(t, mux)

	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{
		ID: "conn", Platform: storage.PlatformFacebook, PageID: "page-1", AccessToken: "tok", Name: "Wava Page",
	})

	service := NewService(store, fb, nil, nil, nil)
	service.SetGeneratorFactory(func(_ context.Context, apiKey string) (TextGenerator, error) {
		return &fakeGenerator{text: "요약입니다."}, nil
	})

	if _, err := service.Report(t.Context(), "", ""); err == nil || !strings.Contains(err.Error(), "Gemini API Key") {
		t.Fatalf("err = %v, want missing key error", err)
	}
	reports, err := service.Report(t.Context(), "", "request-key")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
}

func TestAIPrivateReplySendsDM(t *testing.T) {
	var edge string
	mux := http.NewServeMux()
	mux.HandleFunc("/c-1/private_replies", func(w http.ResponseWriter, r *http.Request) {
		edge = "private_replies"
		writeJSON(t, w, map[string]string{"id": "dm-1"})
	})
	fb := newTestFacebook(t, mux)

	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{
		ID: "conn", Platform: storage.PlatformFacebook, PageID: "page-1", AccessToken: "tok",
	})
	service := NewService(store, fb, nil, nil, &fakeGenerator{text: "DM 메시지"})

	message, replyID, err := service.AIPrivateReply(t.Context(), AIReplyRequest{
		ConnectionID: "conn", CommentID: "c-1", CommentText: "불만이 있어요",
	})
	if err != nil {
		t.Fatalf("AIPrivateReply: %v", err)
	}
	if message != "DM 메시지" || replyID != "dm-1" || edge != "private_replies" {
		t.Errorf("message %q id %q edge %q", message, replyID, edge)
	}
}

func TestReportSummarizesMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page-1/insights", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"data": []map[string]any{
			{"name": "page_fans", "values": []map[string]any{{"value": 120}}},
		}})
	})
	fb := newTestFacebook(t, mux)

	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{
		ID: "conn", Platform: storage.PlatformFacebook, PageID: "page-1", AccessToken: "tok", Name: "Wava Page",
	})
	gen := &fakeGenerator{text: "팬 수가 안정적입니다. 게시 빈도를 높여보세요."}
	service := NewService(store, fb, nil, nil, gen)

	reports, err := service.Report(t.Context(), "", "")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports", len(reports))
	}
	if reports[0].Name != "Wava Page" || reports[0].Report == "" {
		t.Errorf("report = %+v", reports[0])
	}
	if gen.lastTemperature != 0.5 || gen.lastMaxTokens != 512 {
		t.Errorf("generation config = %v/%v", gen.lastTemperature, gen.lastMaxTokens)
	}
	if !strings.Contains(gen.lastPrompt, "page_fans=120") {
		t.Errorf("prompt missing metrics: %q", gen.lastPrompt)
	}
}

func TestReportMarksFailedInsights(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(t, w, map[string]any{"error": map[string]string{"message": "no access"}})
	})
	fb := newTestFacebook(t, mux)

	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{
		ID: "conn", Platform: storage.PlatformFacebook, PageID: "page-1", AccessToken: "tok", Name: "Broken",
	})
	service := NewService(store, fb, nil, nil, &fakeGenerator{text: "unused"})

	reports, err := service.Report(t.Context(), "", "")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(reports) != 1 || reports[0].Report != "지표를 불러올 수 없습니다." {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestReportNoConnections(t *testing.T) {
	service := NewService(newMemStore(), NewFacebook("", ""), nil, nil, &fakeGenerator{text: "x"})
	if _, err := service.Report(t.Context(), "", ""); err == nil {
		t.Fatal("expected error without connections")
	}
}

func TestFormatMetricsSorted(t *testing.T) {
	got := formatMetrics(map[string]int64{"reach": 2, "impressions": 9})
	want := fmt.Sprintf("impressions=%d, reach=%d", 9, 2)
	if got != want {
		t.Errorf("formatMetrics = %q, want %q", got, want)
	}
}
