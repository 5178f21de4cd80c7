package sns

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/wavalabs/builder/internal/platform/timeouts"
	"github.com/wavalabs/builder/internal/services/sns/storage"
)

func newTestFacebook(t *testing.T, handler http.Handler) *Facebook {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	fb := NewFacebook("app-id", "app-secret")
	fb.graphURL = server.URL
	fb.oauthURL = server.URL + "/dialog/oauth"
	return fb
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestGraphClientsUseSharedTimeout(t *testing.T) {
	if got := NewFacebook("app-id", "app-secret").client.Timeout; got != timeouts.OutboundAPI {
		t.Fatalf("facebook client timeout: got %v, want %v", got, timeouts.OutboundAPI)
	}
	if got := NewThreads("app-id", "app-secret").client.Timeout; got != timeouts.OutboundAPI {
		t.Fatalf("threads client timeout: got %v, want %v", got, timeouts.OutboundAPI)
	}
}

func TestFacebookBuildAuthURL(t *testing.T) {
	fb := NewFacebook("app-id", "app-secret")
	raw := fb.BuildAuthURL("http://localhost:8000/cb", "state-token")

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := parsed.Query()
	if got := q.Get("client_id"); got != "app-id" {
		t.Errorf("client_id = %q", got)
	}
	if got := q.Get("state"); got != "state-token" {
		t.Errorf("state = %q", got)
	}
	for _, scope := range []string{"pages_manage_posts", "instagram_content_publish", "read_insights"} {
		if !strings.Contains(q.Get("scope"), scope) {
			t.Errorf("scope missing %q: %q", scope, q.Get("scope"))
		}
	}

	if got := (&Facebook{}).BuildAuthURL("http://x", ""); got != "" {
		t.Errorf("unconfigured BuildAuthURL = %q, want empty", got)
	}
}

func TestFacebookExchangeCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		token := "short-token"
		if r.URL.Query().Get("grant_type") == "fb_exchange_token" {
			token = "long-token"
		}
		writeJSON(t, w, map[string]string{"access_token": token})
	})
	mux.HandleFunc("/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("access_token"); got != "long-token" {
			t.Errorf("pages listed with token %q, want long-token", got)
		}
		writeJSON(t, w, map[string]any{"data": []map[string]string{
			{"id": "page-1", "name": "Wava Page", "access_token": "page-token"},
		}})
	})
	mux.HandleFunc("/page-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"instagram_business_account": map[string]string{"id": "ig-9"},
		})
	})
	mux.HandleFunc("/ig-9", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"username": "wava_official"})
	})

	fb := newTestFacebook(t, mux)
	connections, err := fb.ExchangeCode(t.Context(), "auth-code", "http://localhost/cb")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if len(connections) != 2 {
		t.Fatalf("got %d connections, want 2", len(connections))
	}

	page := connections[0]
	if page.Platform != storage.PlatformFacebook || page.PageID != "page-1" || page.AccessToken != "page-token" {
		t.Errorf("page connection = %+v", page)
	}
	ig := connections[1]
	if ig.Platform != storage.PlatformInstagram || ig.IGUserID != "ig-9" || ig.Name != "wava_official" {
		t.Errorf("instagram connection = %+v", ig)
	}
	if ig.PageID != "page-1" {
		t.Errorf("instagram connection keeps page id, got %q", ig.PageID)
	}
}

func TestFacebookExchangeCodeNoPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"data": []any{}})
	})

	fb := newTestFacebook(t, mux)
	if _, err := fb.ExchangeCode(t.Context(), "code", "http://localhost/cb"); err == nil {
		t.Fatal("expected error when no pages are manageable")
	}
}

func TestFacebookPostToInstagram(t *testing.T) {
	var captionSeen string
	mux := http.NewServeMux()
	mux.HandleFunc("/ig-1/media", func(w http.ResponseWriter, r *http.Request) {
		captionSeen = r.URL.Query().Get("caption")
		writeJSON(t, w, map[string]string{"id": "container-1"})
	})
	mux.HandleFunc("/ig-1/media_publish", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("creation_id"); got != "container-1" {
			t.Errorf("creation_id = %q", got)
		}
		writeJSON(t, w, map[string]string{"id": "media-1"})
	})

	fb := newTestFacebook(t, mux)
	longCaption := strings.Repeat("글", igCaptionLimit+50)
	postID, err := fb.PostToInstagram(t.Context(), "tok", "ig-1", longCaption, "https://cdn.example.com/a.png")
	if err != nil {
		t.Fatalf("PostToInstagram: %v", err)
	}
	if postID != "media-1" {
		t.Errorf("post id = %q", postID)
	}
	if got := len([]rune(captionSeen)); got != igCaptionLimit {
		t.Errorf("caption length = %d, want %d", got, igCaptionLimit)
	}

	if _, err := fb.PostToInstagram(t.Context(), "tok", "ig-1", "hi", "data:image/png;base64,x"); err == nil {
		t.Fatal("expected error for non-http image url")
	}
}

func TestFacebookPostToPageLinksHTTPImage(t *testing.T) {
	var linkSeen string
	mux := http.NewServeMux()
	mux.HandleFunc("/page-1/feed", func(w http.ResponseWriter, r *http.Request) {
		linkSeen = r.URL.Query().Get("link")
		writeJSON(t, w, map[string]string{"id": "post-7"})
	})

	fb := newTestFacebook(t, mux)
	postID, err := fb.PostToPage(t.Context(), "tok", "page-1", "hello", "https://cdn.example.com/a.png")
	if err != nil {
		t.Fatalf("PostToPage: %v", err)
	}
	if postID != "post-7" || linkSeen != "https://cdn.example.com/a.png" {
		t.Errorf("post id %q, link %q", postID, linkSeen)
	}
}

func TestFacebookInsightsTakesLastValue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page-1/insights", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("period"); got != "day" {
			t.Errorf("period = %q", got)
		}
		writeJSON(t, w, map[string]any{"data": []map[string]any{
			{"name": "page_fans", "values": []map[string]any{{"value": 10}, {"value": 12}}},
			{"name": "page_impressions", "values": []map[string]any{}},
		}})
	})

	fb := newTestFacebook(t, mux)
	metrics, err := fb.Insights(t.Context(), storage.Connection{
		Platform:    storage.PlatformFacebook,
		PageID:      "page-1",
		AccessToken: "tok",
	})
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if metrics["page_fans"] != 12 {
		t.Errorf("page_fans = %d, want 12", metrics["page_fans"])
	}
	if _, ok := metrics["page_impressions"]; ok {
		t.Error("empty metric should be omitted")
	}
}

func TestFacebookListCommentsAndReply(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/post-1/comments", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("order") != "chronological" || q.Get("filter") != "stream" {
			t.Errorf("unexpected query %v", q)
		}
		writeJSON(t, w, map[string]any{"data": []map[string]any{
			{"id": "c-1", "message": "좋아요", "created_time": "2026-08-01T00:00:00+0000"},
		}})
	})
	mux.HandleFunc("/c-1/comments", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("message") == "" {
			t.Error("reply message missing")
		}
		writeJSON(t, w, map[string]string{"id": "reply-1"})
	})

	fb := newTestFacebook(t, mux)
	comments, err := fb.ListComments(t.Context(), "tok", "post-1")
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 1 || comments[0].Message != "좋아요" {
		t.Errorf("comments = %+v", comments)
	}

	replyID, err := fb.ReplyToComment(t.Context(), "tok", "c-1", "감사합니다!")
	if err != nil {
		t.Fatalf("ReplyToComment: %v", err)
	}
	if replyID != "reply-1" {
		t.Errorf("reply id = %q", replyID)
	}
}

func TestGraphErrorMessage(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		status int
		want   string
	}{
		{"envelope", `{"error":{"message":"Invalid OAuth access token"}}`, 400, "Invalid OAuth access token"},
		{"plain body", "gateway timeout", 504, "gateway timeout"},
		{"empty body", "", 500, "HTTP 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := graphErrorMessage([]byte(tt.raw), tt.status); got != tt.want {
				t.Errorf("graphErrorMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFacebookErrorSurfacesGraphMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(t, w, map[string]any{"error": map[string]string{"message": "(#200) permission denied"}})
	})

	fb := newTestFacebook(t, mux)
	_, err := fb.PostToPage(t.Context(), "tok", "page-1", "hello", "")
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("err = %v, want graph message", err)
	}
}
