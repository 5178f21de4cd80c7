package sns

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wavalabs/builder/internal/platform/id"
	"github.com/wavalabs/builder/internal/services/sns/storage"
)

const (
	scheduleInterval = time.Minute
	publishFanOut    = 4
)

// ScheduleRequest plans a future post on a connected account.
type ScheduleRequest struct {
	ConnectionID string `json:"connection_id"`
	Caption      string `json:"caption"`
	ImageURL     string `json:"image_url"`
	VideoURL     string `json:"video_url"`
	Idea         string `json:"idea"`
	ScheduledAt  string `json:"scheduled_at"`
}

// ParseScheduledAt accepts ISO datetimes with or without zone ("Z" included)
// plus the space-separated "2006-01-02 15:04:05" form. Zoneless values read
// as local time.
func ParseScheduledAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("scheduled_at은 필수입니다")
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999Z07:00",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	zoneless := []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
	}
	for _, layout := range zoneless {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("scheduled_at 형식이 올바르지 않습니다: %q", value)
}

// AddSchedule stores a pending schedule item.
func (s *Service) AddSchedule(ctx context.Context, req ScheduleRequest) (storage.ScheduleItem, error) {
	if req.ConnectionID == "" {
		return storage.ScheduleItem{}, fmt.Errorf("connection_id는 필수입니다")
	}
	if strings.TrimSpace(req.Caption) == "" {
		return storage.ScheduleItem{}, fmt.Errorf("caption은 필수입니다")
	}
	at, err := ParseScheduledAt(req.ScheduledAt)
	if err != nil {
		return storage.ScheduleItem{}, err
	}
	if _, err := s.store.GetConnection(ctx, req.ConnectionID); err != nil {
		return storage.ScheduleItem{}, err
	}

	item := storage.ScheduleItem{
		ID:           id.New(),
		ConnectionID: req.ConnectionID,
		Caption:      req.Caption,
		ImageURL:     req.ImageURL,
		VideoURL:     req.VideoURL,
		Idea:         req.Idea,
		ScheduledAt:  at.UTC().UnixMilli(),
		Status:       storage.SchedulePending,
		CreatedAt:    time.Now().UTC().UnixMilli(),
	}
	if err := s.store.AddScheduleItem(ctx, item); err != nil {
		return storage.ScheduleItem{}, err
	}
	return item, nil
}

// ListSchedule returns schedule items, pending only unless includeResolved.
func (s *Service) ListSchedule(ctx context.Context, includeResolved bool) ([]storage.ScheduleItem, error) {
	return s.store.ListSchedule(ctx, includeResolved)
}

// DeleteSchedule removes a schedule item.
func (s *Service) DeleteSchedule(ctx context.Context, itemID string) error {
	removed, err := s.store.DeleteScheduleItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !removed {
		return storage.ErrNotFound{Kind: "schedule item", ID: itemID}
	}
	return nil
}

// SuggestedTime is a recommended publishing slot.
type SuggestedTime struct {
	Datetime string `json:"datetime"`
	Label    string `json:"label"`
}

// SuggestedTimes recommends tomorrow's high-engagement slots. The hours are
// a Korea-oriented heuristic until per-account data can drive them.
func (s *Service) SuggestedTimes(ctx context.Context, connectionID string) ([]SuggestedTime, string) {
	slots := []SuggestedTime{
		{Datetime: "07:00", Label: "아침 출근 시간대"},
		{Datetime: "12:00", Label: "점심 시간"},
		{Datetime: "19:00", Label: "저녁 퇴근 후"},
	}
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	for i := range slots {
		slots[i].Datetime = tomorrow + "T" + slots[i].Datetime + ":00"
	}

	reason := "일반적으로 참여가 높은 시간대입니다. 연동 계정 성과 데이터가 쌓이면 맞춤 추천을 제공할 예정입니다."
	if connectionID != "" {
		conn, err := s.store.GetConnection(ctx, connectionID)
		switch {
		case err != nil:
			reason = "선택한 계정을 찾을 수 없어 기본 추천을 표시합니다."
		case conn.Name != "":
			reason = fmt.Sprintf("'%s' 기준으로 추천합니다. (현재는 기본 휴리스틱이며, 데이터가 쌓이면 더 정확해집니다.)", conn.Name)
		}
	}
	return slots, reason
}

// Scheduler publishes schedule items once their time arrives.
type Scheduler struct {
	service  *Service
	store    storage.Store
	interval time.Duration
	now      func() time.Time
	logf     func(format string, args ...any)
}

func NewScheduler(service *Service, store storage.Store) *Scheduler {
	return &Scheduler{
		service:  service,
		store:    store,
		interval: scheduleInterval,
		now:      time.Now,
		logf:     log.Printf,
	}
}

// Run loops until ctx is cancelled, publishing due items every interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logf("sns scheduler: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce publishes every due item, resolving each to posted or failed.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	due, err := s.store.DueScheduleItems(ctx, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("load due items: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(publishFanOut)
	for _, item := range due {
		group.Go(func() error {
			s.publishItem(ctx, item)
			return nil
		})
	}
	return group.Wait()
}

func (s *Scheduler) publishItem(ctx context.Context, item storage.ScheduleItem) {
	now := s.now().UTC().UnixMilli()
	if item.ConnectionID == "" || strings.TrimSpace(item.Caption) == "" {
		if err := s.store.MarkScheduleFailed(ctx, item.ID, "connection_id or caption missing", now); err != nil {
			s.logf("sns scheduler: mark failed %s: %v", item.ID, err)
		}
		return
	}

	postID, err := s.service.Publish(ctx, PostRequest{
		ConnectionID: item.ConnectionID,
		Caption:      item.Caption,
		ImageURL:     item.ImageURL,
		VideoURL:     item.VideoURL,
	})
	if err != nil {
		if markErr := s.store.MarkScheduleFailed(ctx, item.ID, err.Error(), now); markErr != nil {
			s.logf("sns scheduler: mark failed %s: %v", item.ID, markErr)
		}
		return
	}
	if err := s.store.MarkSchedulePosted(ctx, item.ID, postID, now); err != nil {
		s.logf("sns scheduler: mark posted %s: %v", item.ID, err)
	}
}
