package sns

import (
	"context"
	"fmt"
	"strings"

	"github.com/wavalabs/builder/internal/services/sns/storage"
)

// TextGenerator produces short Korean copy for comment replies and reports.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, temperature float32, maxTokens int32) (string, error)
}

// GeneratorFactory builds a text generator for a caller-supplied API key.
type GeneratorFactory func(ctx context.Context, apiKey string) (TextGenerator, error)

// Service coordinates the platform clients, the connection store and the AI
// text generator behind the SNS endpoints.
type Service struct {
	store          storage.Store
	facebook       *Facebook
	threads        *Threads
	youtube        *YouTube
	ai             TextGenerator
	buildGenerator GeneratorFactory
}

func NewService(store storage.Store, facebook *Facebook, threads *Threads, youtube *YouTube, ai TextGenerator) *Service {
	return &Service{store: store, facebook: facebook, threads: threads, youtube: youtube, ai: ai}
}

// SetGeneratorFactory enables per-request API keys for AI endpoints. Requests
// carrying a key get their own generator instead of the process default.
func (s *Service) SetGeneratorFactory(f GeneratorFactory) {
	s.buildGenerator = f
}

// generator resolves the text generator for one request. A caller-supplied
// key wins over the process default.
func (s *Service) generator(ctx context.Context, apiKey string) (TextGenerator, error) {
	if apiKey != "" && s.buildGenerator != nil {
		return s.buildGenerator(ctx, apiKey)
	}
	if s.ai == nil {
		return nil, fmt.Errorf("Gemini API Key가 필요합니다")
	}
	return s.ai, nil
}

// PublicConnection is a connection stripped of its tokens, safe to send to
// the browser.
type PublicConnection struct {
	ID               string `json:"id"`
	Platform         string `json:"platform"`
	Name             string `json:"name"`
	PageID           string `json:"page_id,omitempty"`
	IGUserID         string `json:"ig_user_id,omitempty"`
	ThreadsUserID    string `json:"threads_user_id,omitempty"`
	YouTubeChannelID string `json:"youtube_channel_id,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

// ListConnections returns all connections without their tokens.
func (s *Service) ListConnections(ctx context.Context) ([]PublicConnection, error) {
	connections, err := s.store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	public := make([]PublicConnection, 0, len(connections))
	for _, conn := range connections {
		public = append(public, PublicConnection{
			ID:               conn.ID,
			Platform:         string(conn.Platform),
			Name:             conn.Name,
			PageID:           conn.PageID,
			IGUserID:         conn.IGUserID,
			ThreadsUserID:    conn.ThreadsUserID,
			YouTubeChannelID: conn.YouTubeChannelID,
			CreatedAt:        conn.CreatedAt,
		})
	}
	return public, nil
}

// Disconnect removes a connection.
func (s *Service) Disconnect(ctx context.Context, connectionID string) error {
	removed, err := s.store.DeleteConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if !removed {
		return storage.ErrNotFound{Kind: "connection", ID: connectionID}
	}
	return nil
}

// AuthURL returns the OAuth consent URL for a platform, or an error naming
// the missing credential.
func (s *Service) AuthURL(platform, redirectURI, state string) (string, error) {
	switch platform {
	case string(storage.PlatformFacebook):
		if !s.facebook.Configured() {
			return "", fmt.Errorf("FACEBOOK_APP_ID를 설정해주세요. (설정 → SNS 연동 안내 참고)")
		}
		return s.facebook.BuildAuthURL(redirectURI, state), nil
	case string(storage.PlatformThreads):
		if !s.threads.Configured() {
			return "", fmt.Errorf("THREADS_APP_ID를 설정해주세요. (Meta 앱 대시보드에서 Threads API 사용 설정)")
		}
		return s.threads.BuildAuthURL(redirectURI, state), nil
	case string(storage.PlatformYouTube):
		if !s.youtube.Configured() {
			return "", fmt.Errorf("GOOGLE_CLIENT_ID를 설정해주세요. (Google Cloud Console에서 YouTube API 사용 설정)")
		}
		return s.youtube.BuildAuthURL(redirectURI, state), nil
	default:
		return "", fmt.Errorf("지원하지 않는 플랫폼: %s", platform)
	}
}

// CompleteFacebook finishes the Facebook OAuth flow and saves every new page
// and Instagram account, skipping ones already connected.
func (s *Service) CompleteFacebook(ctx context.Context, code, redirectURI string) ([]string, error) {
	candidates, err := s.facebook.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}

	pageIDs := make(map[string]bool)
	igUserIDs := make(map[string]bool)
	for _, conn := range existing {
		switch conn.Platform {
		case storage.PlatformFacebook:
			pageIDs[conn.PageID] = true
		case storage.PlatformInstagram:
			igUserIDs[conn.IGUserID] = true
		}
	}

	var added []string
	for _, conn := range candidates {
		switch conn.Platform {
		case storage.PlatformFacebook:
			if pageIDs[conn.PageID] {
				continue
			}
		case storage.PlatformInstagram:
			if igUserIDs[conn.IGUserID] {
				continue
			}
		}
		if err := s.store.SaveConnection(ctx, conn); err != nil {
			return added, err
		}
		added = append(added, conn.Name)
	}
	return added, nil
}

// CompleteThreads finishes the Threads OAuth flow.
func (s *Service) CompleteThreads(ctx context.Context, code, redirectURI string) (string, error) {
	conn, err := s.threads.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return "", err
	}
	existing, err := s.store.ListConnections(ctx)
	if err != nil {
		return "", err
	}
	for _, other := range existing {
		if other.Platform == storage.PlatformThreads && other.ThreadsUserID == conn.ThreadsUserID {
			return "", fmt.Errorf("이미 연동된 Threads 계정입니다")
		}
	}
	if err := s.store.SaveConnection(ctx, conn); err != nil {
		return "", err
	}
	return conn.Name, nil
}

// CompleteYouTube finishes the Google OAuth flow. Reconnecting the same
// channel replaces its stored tokens.
func (s *Service) CompleteYouTube(ctx context.Context, code, redirectURI string) (string, error) {
	conn, err := s.youtube.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return "", err
	}
	existing, err := s.store.ListConnections(ctx)
	if err != nil {
		return "", err
	}
	for _, other := range existing {
		if other.Platform == storage.PlatformYouTube && other.YouTubeChannelID == conn.YouTubeChannelID && conn.YouTubeChannelID != "unknown" {
			if err := s.store.UpdateConnectionTokens(ctx, other.ID, conn.AccessToken, conn.RefreshToken); err != nil {
				return "", err
			}
			return other.Name, nil
		}
	}
	if err := s.store.SaveConnection(ctx, conn); err != nil {
		return "", err
	}
	return conn.Name, nil
}

// PostRequest is one publish request for a connected account.
type PostRequest struct {
	ConnectionID string `json:"connection_id"`
	Caption      string `json:"caption"`
	ImageURL     string `json:"image_url"`
	VideoURL     string `json:"video_url"`
}

// Publish sends a post to the platform behind the connection and returns the
// platform post ID.
func (s *Service) Publish(ctx context.Context, req PostRequest) (string, error) {
	if req.ConnectionID == "" {
		return "", fmt.Errorf("connection_id는 필수입니다")
	}
	if strings.TrimSpace(req.Caption) == "" {
		return "", fmt.Errorf("caption은 필수입니다")
	}
	conn, err := s.store.GetConnection(ctx, req.ConnectionID)
	if err != nil {
		return "", err
	}

	switch conn.Platform {
	case storage.PlatformFacebook:
		return s.facebook.PostToPage(ctx, conn.AccessToken, conn.PageID, req.Caption, req.ImageURL)
	case storage.PlatformInstagram:
		return s.facebook.PostToInstagram(ctx, conn.AccessToken, conn.IGUserID, req.Caption, req.ImageURL)
	case storage.PlatformThreads:
		return s.threads.Post(ctx, conn.AccessToken, conn.ThreadsUserID, req.Caption, req.ImageURL)
	case storage.PlatformYouTube:
		return s.publishYouTube(ctx, conn, req)
	default:
		return "", fmt.Errorf("지원하지 않는 플랫폼: %s", conn.Platform)
	}
}

func (s *Service) publishYouTube(ctx context.Context, conn storage.Connection, req PostRequest) (string, error) {
	if !strings.HasPrefix(req.VideoURL, "http") {
		return "", fmt.Errorf("유튜브 게시에는 video_url이 필요합니다")
	}
	title := youtubeTitle(req.Caption)
	result, err := s.youtube.Upload(ctx, conn, title, req.Caption, req.VideoURL)
	if err != nil {
		return "", err
	}
	if result.AccessToken != "" && result.AccessToken != conn.AccessToken {
		if err := s.store.UpdateConnectionTokens(ctx, conn.ID, result.AccessToken, ""); err != nil {
			return result.VideoID, fmt.Errorf("save refreshed token: %w", err)
		}
	}
	return result.VideoID, nil
}

// youtubeTitle takes the first caption line, capped at 90 characters.
func youtubeTitle(caption string) string {
	line := caption
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if runes := []rune(line); len(runes) > 90 {
		line = string(runes[:90])
	}
	return line
}

// ConnectionInsights pairs a connection with its metrics, or the error that
// kept them from loading.
type ConnectionInsights struct {
	ConnectionID string           `json:"connection_id"`
	Platform     string           `json:"platform"`
	Name         string           `json:"name"`
	Metrics      map[string]int64 `json:"metrics,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Insights returns metrics for one connection.
func (s *Service) Insights(ctx context.Context, connectionID string) (ConnectionInsights, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return ConnectionInsights{}, err
	}
	return s.connectionInsights(ctx, conn), nil
}

// AllInsights returns metrics for every connection that supports them.
// Per-connection failures are reported inline rather than failing the batch.
func (s *Service) AllInsights(ctx context.Context) ([]ConnectionInsights, error) {
	connections, err := s.store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]ConnectionInsights, 0, len(connections))
	for _, conn := range connections {
		if conn.Platform != storage.PlatformFacebook && conn.Platform != storage.PlatformInstagram {
			continue
		}
		results = append(results, s.connectionInsights(ctx, conn))
	}
	return results, nil
}

func (s *Service) connectionInsights(ctx context.Context, conn storage.Connection) ConnectionInsights {
	result := ConnectionInsights{ConnectionID: conn.ID, Platform: string(conn.Platform), Name: conn.Name}
	metrics, err := s.facebook.Insights(ctx, conn)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Metrics = metrics
	return result
}

// ListPosts returns recent posts for a Facebook page connection.
func (s *Service) ListPosts(ctx context.Context, connectionID string, limit int) ([]Post, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Platform != storage.PlatformFacebook || conn.PageID == "" {
		return nil, fmt.Errorf("게시물 조회는 Facebook 페이지 연동에서만 지원합니다")
	}
	return s.facebook.ListPosts(ctx, conn.AccessToken, conn.PageID, limit)
}

// ListComments returns a post's comments through the given connection.
func (s *Service) ListComments(ctx context.Context, connectionID, postID string) ([]Comment, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.facebook.ListComments(ctx, conn.AccessToken, postID)
}

// ReplyToComment posts a public reply under a comment.
func (s *Service) ReplyToComment(ctx context.Context, connectionID, commentID, message string) (string, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return "", err
	}
	return s.facebook.ReplyToComment(ctx, conn.AccessToken, commentID, message)
}

// PrivateReply sends the comment author a direct message.
func (s *Service) PrivateReply(ctx context.Context, connectionID, commentID, message string) (string, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return "", err
	}
	return s.facebook.PrivateReplyToComment(ctx, conn.AccessToken, commentID, message)
}
