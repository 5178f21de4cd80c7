package sns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/wavalabs/builder/internal/platform/id"
	"github.com/wavalabs/builder/internal/services/sns/storage"
)

const (
	googleAuthURL    = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL   = "https://oauth2.googleapis.com/token"
	youtubeAPIURL    = "https://www.googleapis.com/youtube/v3"
	youtubeUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"

	youtubeScopes = "https://www.googleapis.com/auth/youtube.upload https://www.googleapis.com/auth/youtube.readonly"

	youtubeTitleLimit       = 100
	youtubeDescriptionLimit = 4900
)

// YouTube uploads videos through the YouTube Data API using Google OAuth.
type YouTube struct {
	clientID     string
	clientSecret string
	authURL      string
	tokenURL     string
	apiURL       string
	uploadURL    string
	client       *http.Client
	now          func() time.Time
}

func NewYouTube(clientID, clientSecret string) *YouTube {
	return &YouTube{
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      googleAuthURL,
		tokenURL:     googleTokenURL,
		apiURL:       youtubeAPIURL,
		uploadURL:    youtubeUploadURL,
		client:       &http.Client{Timeout: 5 * time.Minute},
		now:          time.Now,
	}
}

func (y *YouTube) Configured() bool {
	return y != nil && y.clientID != "" && y.clientSecret != ""
}

// BuildAuthURL returns the Google consent URL. access_type=offline with
// prompt=consent forces a refresh token on every grant.
func (y *YouTube) BuildAuthURL(redirectURI, state string) string {
	if y == nil || y.clientID == "" {
		return ""
	}
	q := url.Values{}
	q.Set("client_id", y.clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", youtubeScopes)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	if state != "" {
		q.Set("state", state)
	}
	return y.authURL + "?" + q.Encode()
}

// ExchangeCode turns an OAuth code into a YouTube connection.
func (y *YouTube) ExchangeCode(ctx context.Context, code, redirectURI string) (storage.Connection, error) {
	if !y.Configured() {
		return storage.Connection{}, fmt.Errorf("GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}

	token, err := y.requestToken(ctx, url.Values{
		"client_id":     {y.clientID},
		"client_secret": {y.clientSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
		"code":          {code},
	})
	if err != nil {
		return storage.Connection{}, fmt.Errorf("token exchange failed: %w", err)
	}

	name, channelID := y.channelInfo(ctx, token.AccessToken)

	return storage.Connection{
		ID:               id.New(),
		Platform:         storage.PlatformYouTube,
		YouTubeChannelID: channelID,
		Name:             name,
		AccessToken:      token.AccessToken,
		RefreshToken:     token.RefreshToken,
		CreatedAt:        y.now().UTC().UnixMilli(),
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (y *YouTube) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", fmt.Errorf("refresh token 없음. 다시 연동해 주세요")
	}
	token, err := y.requestToken(ctx, url.Values{
		"client_id":     {y.clientID},
		"client_secret": {y.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	return token.AccessToken, nil
}

type googleToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (y *YouTube) requestToken(ctx context.Context, form url.Values) (googleToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return googleToken{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := y.client.Do(req)
	if err != nil {
		return googleToken{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return googleToken{}, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return googleToken{}, fmt.Errorf("%s", graphErrorMessage(raw, resp.StatusCode))
	}
	var token googleToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return googleToken{}, fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return googleToken{}, fmt.Errorf("no access_token in response")
	}
	return token, nil
}

func (y *YouTube) channelInfo(ctx context.Context, accessToken string) (name, channelID string) {
	name, channelID = "YouTube 채널", "unknown"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.apiURL+"/channels?part=snippet&mine=true", nil)
	if err != nil {
		return name, channelID
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := y.client.Do(req)
	if err != nil {
		return name, channelID
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return name, channelID
	}

	var payload struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return name, channelID
	}
	if len(payload.Items) > 0 {
		if payload.Items[0].Snippet.Title != "" {
			name = payload.Items[0].Snippet.Title
		}
		if payload.Items[0].ID != "" {
			channelID = payload.Items[0].ID
		}
	}
	return name, channelID
}

// UploadResult reports the uploaded video plus the access token in effect
// after any mid-upload refresh, so the caller can persist a rotated token.
type UploadResult struct {
	VideoID     string
	AccessToken string
}

// Upload downloads the source video and pushes it through the resumable
// upload flow. A 401 at either step triggers one token refresh and retry.
func (y *YouTube) Upload(ctx context.Context, conn storage.Connection, title, description, videoURL string) (UploadResult, error) {
	if !strings.HasPrefix(videoURL, "http") {
		return UploadResult{}, fmt.Errorf("유튜브 업로드에는 접근 가능한 video_url이 필요합니다")
	}

	path, size, err := y.downloadVideo(ctx, videoURL)
	if err != nil {
		return UploadResult{}, err
	}
	defer os.Remove(path)

	accessToken := conn.AccessToken

	sessionURL, err := y.startResumable(ctx, accessToken, title, description, size)
	if isUnauthorized(err) {
		accessToken, err = y.Refresh(ctx, conn.RefreshToken)
		if err != nil {
			return UploadResult{}, err
		}
		sessionURL, err = y.startResumable(ctx, accessToken, title, description, size)
	}
	if err != nil {
		return UploadResult{}, err
	}

	videoID, err := y.putVideo(ctx, accessToken, sessionURL, path, size)
	if isUnauthorized(err) {
		accessToken, err = y.Refresh(ctx, conn.RefreshToken)
		if err != nil {
			return UploadResult{}, err
		}
		// The old session was opened with the revoked token; start a new one.
		sessionURL, err = y.startResumable(ctx, accessToken, title, description, size)
		if err != nil {
			return UploadResult{}, err
		}
		videoID, err = y.putVideo(ctx, accessToken, sessionURL, path, size)
	}
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{VideoID: videoID, AccessToken: accessToken}, nil
}

type unauthorizedError struct{ msg string }

func (e *unauthorizedError) Error() string { return e.msg }

func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	var unauthorized *unauthorizedError
	return errors.As(err, &unauthorized)
}

func (y *YouTube) downloadVideo(ctx context.Context, videoURL string) (path string, size int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build video request: %w", err)
	}
	resp, err := y.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("영상 다운로드 실패: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("영상 다운로드 실패: HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "wava-upload-*.mp4")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	size, err = io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("write temp file: %w", err)
	}
	if size == 0 {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("다운로드한 영상이 비어 있습니다")
	}
	return tmp.Name(), size, nil
}

func (y *YouTube) startResumable(ctx context.Context, accessToken, title, description string, size int64) (string, error) {
	if title == "" {
		title = "WavaA 업로드"
	}
	if runes := []rune(title); len(runes) > youtubeTitleLimit {
		title = string(runes[:youtubeTitleLimit])
	}
	if runes := []rune(description); len(runes) > youtubeDescriptionLimit {
		description = string(runes[:youtubeDescriptionLimit])
	}

	body, err := json.Marshal(map[string]any{
		"snippet": map[string]any{
			"title":       title,
			"description": description,
			"categoryId":  "22",
		},
		"status": map[string]any{
			"privacyStatus": "unlisted",
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode upload metadata: %w", err)
	}

	target := y.uploadURL + "?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", "video/mp4")
	req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", size))

	resp, err := y.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("start upload: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusUnauthorized {
		return "", &unauthorizedError{msg: graphErrorMessage(raw, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("업로드 세션 생성 실패: %s", graphErrorMessage(raw, resp.StatusCode))
	}
	sessionURL := resp.Header.Get("Location")
	if sessionURL == "" {
		return "", fmt.Errorf("업로드 세션 URL을 받지 못했습니다")
	}
	return sessionURL, nil
}

func (y *YouTube) putVideo(ctx context.Context, accessToken, sessionURL, path string, size int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, file)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "video/mp4")

	resp, err := y.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusUnauthorized {
		return "", &unauthorizedError{msg: graphErrorMessage(raw, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("영상 업로드 실패: %s", graphErrorMessage(raw, resp.StatusCode))
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ID == "" {
		return "", fmt.Errorf("업로드 응답에서 영상 ID를 찾지 못했습니다")
	}
	return payload.ID, nil
}
