package sns

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/wavalabs/builder/internal/services/sns/storage"
)

func TestParseScheduledAt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"rfc3339 zulu", "2026-02-02T14:00:00Z", true},
		{"rfc3339 offset", "2026-02-02T14:00:00+09:00", true},
		{"iso no zone", "2026-02-02T14:00:00", true},
		{"iso minutes", "2026-02-02T14:00", true},
		{"iso millis zulu", "2026-02-02T14:00:00.000Z", true},
		{"space separated", "2026-02-02 14:00:00", true},
		{"empty", "", false},
		{"garbage", "next tuesday", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScheduledAt(tt.value)
			if tt.ok && err != nil {
				t.Fatalf("ParseScheduledAt(%q): %v", tt.value, err)
			}
			if !tt.ok && err == nil {
				t.Fatalf("ParseScheduledAt(%q) = %v, want error", tt.value, got)
			}
		})
	}
}

func TestParseScheduledAtZuluMatchesOffset(t *testing.T) {
	zulu, err := ParseScheduledAt("2026-02-02T05:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	offset, err := ParseScheduledAt("2026-02-02T14:00:00+09:00")
	if err != nil {
		t.Fatal(err)
	}
	if !zulu.Equal(offset) {
		t.Errorf("%v != %v", zulu, offset)
	}
}

func TestAddScheduleValidation(t *testing.T) {
	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{ID: "conn", Platform: storage.PlatformFacebook})
	service := NewService(store, nil, nil, nil, nil)

	tests := []struct {
		name string
		req  ScheduleRequest
	}{
		{"missing connection", ScheduleRequest{Caption: "c", ScheduledAt: "2026-02-02T14:00:00Z"}},
		{"missing caption", ScheduleRequest{ConnectionID: "conn", ScheduledAt: "2026-02-02T14:00:00Z"}},
		{"bad time", ScheduleRequest{ConnectionID: "conn", Caption: "c", ScheduledAt: "soon"}},
		{"unknown connection", ScheduleRequest{ConnectionID: "nope", Caption: "c", ScheduledAt: "2026-02-02T14:00:00Z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.AddSchedule(t.Context(), tt.req); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAddScheduleStoresPendingItem(t *testing.T) {
	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{ID: "conn", Platform: storage.PlatformFacebook})
	service := NewService(store, nil, nil, nil, nil)

	item, err := service.AddSchedule(t.Context(), ScheduleRequest{
		ConnectionID: "conn",
		Caption:      "예약 게시물",
		ScheduledAt:  "2026-02-02T14:00:00Z",
	})
	if err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if item.Status != storage.SchedulePending || item.ID == "" {
		t.Errorf("item = %+v", item)
	}
	want := time.Date(2026, 2, 2, 14, 0, 0, 0, time.UTC).UnixMilli()
	if item.ScheduledAt != want {
		t.Errorf("scheduled at %d, want %d", item.ScheduledAt, want)
	}
}

func TestSchedulerPublishesDueItems(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page-1/feed", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"id": "fb-post"})
	})
	fb := newTestFacebook(t, mux)

	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{
		ID: "conn", Platform: storage.PlatformFacebook, PageID: "page-1", AccessToken: "tok",
	})
	store.AddScheduleItem(t.Context(), storage.ScheduleItem{
		ID: "due", ConnectionID: "conn", Caption: "늦지 않게", ScheduledAt: 1000, Status: storage.SchedulePending,
	})
	store.AddScheduleItem(t.Context(), storage.ScheduleItem{
		ID: "future", ConnectionID: "conn", Caption: "나중에", ScheduledAt: 99_000, Status: storage.SchedulePending,
	})

	service := NewService(store, fb, nil, nil, nil)
	scheduler := NewScheduler(service, store)
	scheduler.now = func() time.Time { return time.UnixMilli(50_000) }
	scheduler.logf = t.Logf

	if err := scheduler.RunOnce(t.Context()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	posted, _ := store.scheduleItem("due")
	if posted.Status != storage.SchedulePosted || posted.PostID != "fb-post" {
		t.Errorf("due item = %+v", posted)
	}
	future, _ := store.scheduleItem("future")
	if future.Status != storage.SchedulePending {
		t.Errorf("future item resolved early: %+v", future)
	}
}

func TestSchedulerFailsItemsMissingFields(t *testing.T) {
	store := newMemStore()
	store.AddScheduleItem(t.Context(), storage.ScheduleItem{
		ID: "broken", Caption: "캡션만 있음", ScheduledAt: 1, Status: storage.SchedulePending,
	})

	service := NewService(store, nil, nil, nil, nil)
	scheduler := NewScheduler(service, store)
	scheduler.logf = t.Logf

	if err := scheduler.RunOnce(t.Context()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	item, _ := store.scheduleItem("broken")
	if item.Status != storage.ScheduleFailed || !strings.Contains(item.Error, "missing") {
		t.Errorf("item = %+v", item)
	}
}

func TestSchedulerMarksPublishFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(t, w, map[string]any{"error": map[string]string{"message": "token expired"}})
	})
	fb := newTestFacebook(t, mux)

	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{
		ID: "conn", Platform: storage.PlatformFacebook, PageID: "page-1", AccessToken: "tok",
	})
	store.AddScheduleItem(t.Context(), storage.ScheduleItem{
		ID: "fails", ConnectionID: "conn", Caption: "실패 예정", ScheduledAt: 1, Status: storage.SchedulePending,
	})

	service := NewService(store, fb, nil, nil, nil)
	scheduler := NewScheduler(service, store)
	scheduler.logf = t.Logf

	if err := scheduler.RunOnce(t.Context()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	item, _ := store.scheduleItem("fails")
	if item.Status != storage.ScheduleFailed || !strings.Contains(item.Error, "token expired") {
		t.Errorf("item = %+v", item)
	}
}

func TestSuggestedTimes(t *testing.T) {
	store := newMemStore()
	store.SaveConnection(t.Context(), storage.Connection{ID: "conn", Name: "Wava Page", Platform: storage.PlatformFacebook})
	service := NewService(store, nil, nil, nil, nil)

	slots, reason := service.SuggestedTimes(t.Context(), "")
	if len(slots) != 3 {
		t.Fatalf("got %d slots", len(slots))
	}
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	if !strings.HasPrefix(slots[0].Datetime, tomorrow) {
		t.Errorf("slot datetime = %q", slots[0].Datetime)
	}
	if reason == "" {
		t.Error("reason empty")
	}

	_, reason = service.SuggestedTimes(t.Context(), "conn")
	if !strings.Contains(reason, "Wava Page") {
		t.Errorf("reason = %q", reason)
	}
	_, reason = service.SuggestedTimes(t.Context(), "ghost")
	if !strings.Contains(reason, "찾을 수 없어") {
		t.Errorf("reason = %q", reason)
	}
}

func TestDeleteScheduleUnknown(t *testing.T) {
	service := NewService(newMemStore(), nil, nil, nil, nil)
	if err := service.DeleteSchedule(t.Context(), "ghost"); err == nil {
		t.Fatal("expected error for unknown item")
	}
}
