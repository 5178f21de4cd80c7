package sns

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wavalabs/builder/internal/services/sns/storage"
)

func newTestThreads(t *testing.T, handler http.Handler) *Threads {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	th := NewThreads("th-app", "th-secret")
	th.graphURL = server.URL
	th.authURL = server.URL + "/oauth/authorize"
	return th
}

func TestThreadsExchangeCodeStripsFragmentSuffix(t *testing.T) {
	var codeSeen string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		codeSeen = r.PostForm.Get("code")
		writeJSON(t, w, map[string]any{"access_token": "th-token", "user_id": 123456})
	})
	mux.HandleFunc("/v1.0/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"username": "wava_threads"})
	})

	th := newTestThreads(t, mux)
	conn, err := th.ExchangeCode(t.Context(), "raw-code#_", "http://localhost/cb")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if codeSeen != "raw-code" {
		t.Errorf("code sent = %q, want fragment stripped", codeSeen)
	}
	if conn.Platform != storage.PlatformThreads || conn.ThreadsUserID != "123456" || conn.Name != "wava_threads" {
		t.Errorf("connection = %+v", conn)
	}
}

func TestThreadsPost(t *testing.T) {
	var mediaType, textSeen string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/user-1/threads", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mediaType = q.Get("media_type")
		textSeen = q.Get("text")
		writeJSON(t, w, map[string]string{"id": "container-9"})
	})
	mux.HandleFunc("/v1.0/user-1/threads_publish", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("creation_id"); got != "container-9" {
			t.Errorf("creation_id = %q", got)
		}
		writeJSON(t, w, map[string]string{"id": "thread-1"})
	})

	th := newTestThreads(t, mux)

	postID, err := th.Post(t.Context(), "tok", "user-1", "hello", "https://cdn.example.com/a.png")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if postID != "thread-1" || mediaType != "IMAGE" {
		t.Errorf("post id %q, media type %q", postID, mediaType)
	}

	long := strings.Repeat("가", threadsTextLimit+100)
	if _, err := th.Post(t.Context(), "tok", "user-1", long, ""); err != nil {
		t.Fatalf("Post text: %v", err)
	}
	if mediaType != "TEXT" {
		t.Errorf("media type = %q, want TEXT without image", mediaType)
	}
	if got := len([]rune(textSeen)); got != threadsTextLimit {
		t.Errorf("text length = %d, want %d", got, threadsTextLimit)
	}
}

func TestThreadsUnconfigured(t *testing.T) {
	th := NewThreads("", "")
	if th.Configured() {
		t.Error("empty credentials reported configured")
	}
	if _, err := th.ExchangeCode(t.Context(), "code", "http://localhost/cb"); err == nil {
		t.Fatal("expected error without credentials")
	}
}
