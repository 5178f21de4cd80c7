// Package storage defines persistence for SNS account connections and
// scheduled posts.
package storage

import "context"

// Platform identifies a connected social network.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformThreads   Platform = "threads"
	PlatformYouTube   Platform = "youtube"
)

// Connection is a linked SNS account with its credentials.
type Connection struct {
	ID               string
	Platform         Platform
	Name             string
	PageID           string
	IGUserID         string
	ThreadsUserID    string
	YouTubeChannelID string
	AccessToken      string
	RefreshToken     string
	CreatedAt        int64
}

// ScheduleStatus is the lifecycle state of a scheduled post.
type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "pending"
	SchedulePosted  ScheduleStatus = "posted"
	ScheduleFailed  ScheduleStatus = "failed"
)

// ScheduleItem is a post queued for future publication. ScheduledAt,
// CreatedAt and PostedAt are Unix milliseconds; PostedAt is zero until the
// item resolves.
type ScheduleItem struct {
	ID           string
	ConnectionID string
	Caption      string
	ImageURL     string
	VideoURL     string
	Idea         string
	ScheduledAt  int64
	Status       ScheduleStatus
	CreatedAt    int64
	PostedAt     int64
	PostID       string
	Error        string
}

// Store persists connections and the publishing schedule.
type Store interface {
	SaveConnection(ctx context.Context, conn Connection) error
	ListConnections(ctx context.Context) ([]Connection, error)
	GetConnection(ctx context.Context, id string) (Connection, error)
	DeleteConnection(ctx context.Context, id string) (bool, error)
	// UpdateConnectionTokens replaces stored credentials; an empty value
	// keeps the current one.
	UpdateConnectionTokens(ctx context.Context, id, accessToken, refreshToken string) error

	AddScheduleItem(ctx context.Context, item ScheduleItem) error
	ListSchedule(ctx context.Context, includeResolved bool) ([]ScheduleItem, error)
	DueScheduleItems(ctx context.Context, nowMillis int64) ([]ScheduleItem, error)
	MarkSchedulePosted(ctx context.Context, id, postID string, postedAtMillis int64) error
	MarkScheduleFailed(ctx context.Context, id, errMsg string, postedAtMillis int64) error
	DeleteScheduleItem(ctx context.Context, id string) (bool, error)

	Close() error
}

// ErrNotFound reports a missing connection or schedule item.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e ErrNotFound) Error() string {
	return e.Kind + " " + e.ID + " not found"
}
