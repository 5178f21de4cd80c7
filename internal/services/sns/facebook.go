// Package sns links social accounts and publishes content to them. Facebook
// and Instagram share the Meta Graph API; Threads and YouTube have their own
// clients. Connections and the posting schedule persist through the storage
// package.
package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wavalabs/builder/internal/platform/id"
	"github.com/wavalabs/builder/internal/platform/timeouts"
	"github.com/wavalabs/builder/internal/services/sns/storage"
)

const (
	fbGraphURL = "https://graph.facebook.com/v21.0"
	fbOAuthURL = "https://www.facebook.com/v21.0/dialog/oauth"

	// Everything the page + Instagram features need, requested up front so
	// one consent covers posting, comments, DMs and insights.
	fbScopes = "pages_show_list,pages_read_engagement,pages_manage_posts,pages_messaging,read_insights,instagram_basic,instagram_content_publish,instagram_manage_insights"

	igCaptionLimit     = 2200
	fbCommentLimit     = 8000
	insightsLookback   = 2 * 24 * time.Hour
	fbPageMetrics      = "page_fans,page_impressions,page_engaged_users"
	igAccountMetrics   = "impressions,reach,profile_views"
	fbPostFields       = "id,message,created_time,permalink_url"
	fbCommentFields    = "id,message,from,created_time"
	fbPageTokenFields  = "id,name,access_token"
)

// Facebook talks to the Meta Graph API for pages and Instagram business
// accounts.
type Facebook struct {
	appID     string
	appSecret string
	graphURL  string
	oauthURL  string
	client    *http.Client
	now       func() time.Time
}

// NewFacebook builds the Graph client. Zero credentials disable OAuth but
// still allow calls with stored tokens.
func NewFacebook(appID, appSecret string) *Facebook {
	return &Facebook{
		appID:     appID,
		appSecret: appSecret,
		graphURL:  fbGraphURL,
		oauthURL:  fbOAuthURL,
		client:    &http.Client{Timeout: timeouts.OutboundAPI},
		now:       time.Now,
	}
}

// Configured reports whether OAuth credentials are present.
func (f *Facebook) Configured() bool {
	return f != nil && f.appID != "" && f.appSecret != ""
}

// BuildAuthURL returns the consent dialog URL, or "" when unconfigured.
func (f *Facebook) BuildAuthURL(redirectURI, state string) string {
	if f == nil || f.appID == "" {
		return ""
	}
	q := url.Values{}
	q.Set("client_id", f.appID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", fbScopes)
	q.Set("response_type", "code")
	if state != "" {
		q.Set("state", state)
	}
	return f.oauthURL + "?" + q.Encode()
}

// ExchangeCode turns an OAuth code into connections: one per managed page,
// plus one per Instagram business account linked to those pages.
func (f *Facebook) ExchangeCode(ctx context.Context, code, redirectURI string) ([]storage.Connection, error) {
	if !f.Configured() {
		return nil, fmt.Errorf("FACEBOOK_APP_ID or FACEBOOK_APP_SECRET not set")
	}

	shortToken, err := f.requestToken(ctx, url.Values{
		"client_id":     {f.appID},
		"client_secret": {f.appSecret},
		"redirect_uri":  {redirectURI},
		"code":          {code},
	})
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	// A long-lived token keeps page tokens valid past the one-hour default.
	// Failure here is not fatal; the short token still works.
	longToken, err := f.requestToken(ctx, url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {f.appID},
		"client_secret":     {f.appSecret},
		"fb_exchange_token": {shortToken},
	})
	if err != nil || longToken == "" {
		longToken = shortToken
	}

	pages, err := f.listManagedPages(ctx, longToken)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("연동 가능한 Facebook 페이지가 없습니다. 페이지 관리자여야 합니다")
	}

	now := f.now().UTC().UnixMilli()
	var connections []storage.Connection
	for _, page := range pages {
		connections = append(connections, storage.Connection{
			ID:          id.New(),
			Platform:    storage.PlatformFacebook,
			PageID:      page.ID,
			Name:        page.Name,
			AccessToken: page.AccessToken,
			CreatedAt:   now,
		})

		igID, igName, err := f.linkedInstagramAccount(ctx, page)
		if err != nil || igID == "" {
			continue
		}
		connections = append(connections, storage.Connection{
			ID:          id.New(),
			Platform:    storage.PlatformInstagram,
			IGUserID:    igID,
			PageID:      page.ID,
			Name:        igName,
			AccessToken: page.AccessToken,
			CreatedAt:   now,
		})
	}
	return connections, nil
}

type fbPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

func (f *Facebook) requestToken(ctx context.Context, params url.Values) (string, error) {
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := f.getJSON(ctx, f.graphURL+"/oauth/access_token", params, &payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("no access_token in response")
	}
	return payload.AccessToken, nil
}

func (f *Facebook) listManagedPages(ctx context.Context, token string) ([]fbPage, error) {
	var payload struct {
		Data []fbPage `json:"data"`
	}
	params := url.Values{"access_token": {token}, "fields": {fbPageTokenFields}}
	if err := f.getJSON(ctx, f.graphURL+"/me/accounts", params, &payload); err != nil {
		return nil, fmt.Errorf("pages list failed: %w", err)
	}
	return payload.Data, nil
}

func (f *Facebook) linkedInstagramAccount(ctx context.Context, page fbPage) (igID, igName string, err error) {
	var detail struct {
		InstagramBusinessAccount *struct {
			ID string `json:"id"`
		} `json:"instagram_business_account"`
	}
	params := url.Values{"access_token": {page.AccessToken}, "fields": {"instagram_business_account"}}
	if err := f.getJSON(ctx, f.graphURL+"/"+page.ID, params, &detail); err != nil {
		return "", "", err
	}
	if detail.InstagramBusinessAccount == nil || detail.InstagramBusinessAccount.ID == "" {
		return "", "", nil
	}
	igID = detail.InstagramBusinessAccount.ID

	igName = page.Name + " (IG)"
	var profile struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	}
	params = url.Values{"access_token": {page.AccessToken}, "fields": {"username,name"}}
	if err := f.getJSON(ctx, f.graphURL+"/"+igID, params, &profile); err == nil {
		if profile.Username != "" {
			igName = profile.Username
		} else if profile.Name != "" {
			igName = profile.Name
		}
	}
	return igID, igName, nil
}

// PostToPage publishes a feed post; imageURL becomes the post link when set.
func (f *Facebook) PostToPage(ctx context.Context, token, pageID, message, imageURL string) (string, error) {
	params := url.Values{"access_token": {token}, "message": {message}}
	if strings.HasPrefix(imageURL, "http") {
		params.Set("link", imageURL)
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := f.postJSON(ctx, f.graphURL+"/"+pageID+"/feed", params, nil, &payload); err != nil {
		return "", err
	}
	return payload.ID, nil
}

// PostToInstagram runs the two-step container publish flow. Instagram feed
// posts require a publicly reachable image URL.
func (f *Facebook) PostToInstagram(ctx context.Context, token, igUserID, message, imageURL string) (string, error) {
	if !strings.HasPrefix(imageURL, "http") {
		return "", fmt.Errorf("인스타그램 피드 게시에는 공개 접근 가능한 이미지 URL이 필요합니다")
	}
	caption := message
	if runes := []rune(caption); len(runes) > igCaptionLimit {
		caption = string(runes[:igCaptionLimit])
	}

	var created struct {
		ID string `json:"id"`
	}
	params := url.Values{"access_token": {token}, "image_url": {imageURL}, "caption": {caption}}
	if err := f.postJSON(ctx, f.graphURL+"/"+igUserID+"/media", params, nil, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("미디어 생성 ID를 받지 못했습니다")
	}

	var published struct {
		ID string `json:"id"`
	}
	params = url.Values{"access_token": {token}, "creation_id": {created.ID}}
	if err := f.postJSON(ctx, f.graphURL+"/"+igUserID+"/media_publish", params, nil, &published); err != nil {
		return "", err
	}
	return published.ID, nil
}

// Insights fetches daily metrics for a page or Instagram account. The page
// query looks back two days because the latest day is often still empty.
func (f *Facebook) Insights(ctx context.Context, conn storage.Connection) (map[string]int64, error) {
	params := url.Values{"access_token": {conn.AccessToken}, "period": {"day"}}
	var target string
	switch conn.Platform {
	case storage.PlatformFacebook:
		if conn.PageID == "" {
			return nil, fmt.Errorf("페이지 정보 없음")
		}
		params.Set("metric", fbPageMetrics)
		params.Set("since", fmt.Sprintf("%d", f.now().Add(-insightsLookback).Unix()))
		target = f.graphURL + "/" + conn.PageID + "/insights"
	case storage.PlatformInstagram:
		if conn.IGUserID == "" {
			return nil, fmt.Errorf("인스타그램 계정 정보 없음")
		}
		params.Set("metric", igAccountMetrics)
		target = f.graphURL + "/" + conn.IGUserID + "/insights"
	default:
		return nil, fmt.Errorf("성과 조회 미지원 플랫폼")
	}

	var payload struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value json.Number `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	if err := f.getJSON(ctx, target, params, &payload); err != nil {
		return nil, err
	}

	metrics := make(map[string]int64)
	for _, item := range payload.Data {
		if len(item.Values) == 0 {
			continue
		}
		value, err := item.Values[len(item.Values)-1].Value.Int64()
		if err != nil {
			continue
		}
		metrics[item.Name] = value
	}
	return metrics, nil
}

// Post is a page feed entry, for the comment management UI.
type Post struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	CreatedTime  string `json:"created_time"`
	PermalinkURL string `json:"permalink_url"`
}

// ListPosts returns the page's most recent feed posts.
func (f *Facebook) ListPosts(ctx context.Context, token, pageID string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 10
	}
	var payload struct {
		Data []Post `json:"data"`
	}
	params := url.Values{
		"access_token": {token},
		"fields":       {fbPostFields},
		"limit":        {fmt.Sprintf("%d", limit)},
	}
	if err := f.getJSON(ctx, f.graphURL+"/"+pageID+"/feed", params, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// Comment is a comment on a page post.
type Comment struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	From    *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
	CreatedTime string `json:"created_time"`
}

// ListComments returns a post's comments oldest first, including those
// hidden by ranking.
func (f *Facebook) ListComments(ctx context.Context, token, postID string) ([]Comment, error) {
	var payload struct {
		Data []Comment `json:"data"`
	}
	params := url.Values{
		"access_token": {token},
		"fields":       {fbCommentFields},
		"order":        {"chronological"},
		"filter":       {"stream"},
	}
	if err := f.getJSON(ctx, f.graphURL+"/"+postID+"/comments", params, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// ReplyToComment posts a public reply under a comment.
func (f *Facebook) ReplyToComment(ctx context.Context, token, commentID, message string) (string, error) {
	return f.commentAction(ctx, token, commentID, "comments", message)
}

// PrivateReplyToComment sends the comment author a direct message.
func (f *Facebook) PrivateReplyToComment(ctx context.Context, token, commentID, message string) (string, error) {
	return f.commentAction(ctx, token, commentID, "private_replies", message)
}

func (f *Facebook) commentAction(ctx context.Context, token, commentID, edge, message string) (string, error) {
	if runes := []rune(message); len(runes) > fbCommentLimit {
		message = string(runes[:fbCommentLimit])
	}
	var payload struct {
		ID string `json:"id"`
	}
	params := url.Values{"access_token": {token}}
	form := url.Values{"message": {message}}
	if err := f.postJSON(ctx, f.graphURL+"/"+commentID+"/"+edge, params, form, &payload); err != nil {
		return "", err
	}
	return payload.ID, nil
}

func (f *Facebook) getJSON(ctx context.Context, target string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	return f.do(req, out)
}

func (f *Facebook) postJSON(ctx context.Context, target string, params, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target+"?"+params.Encode(), body)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return f.do(req, out)
}

func (f *Facebook) do(req *http.Request, out any) error {
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", graphErrorMessage(raw, resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

// graphErrorMessage extracts the message from a Graph API error envelope.
func graphErrorMessage(raw []byte, status int) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if len(raw) > 0 {
		if len(raw) > 300 {
			raw = raw[:300]
		}
		return string(raw)
	}
	return fmt.Sprintf("HTTP %d", status)
}
