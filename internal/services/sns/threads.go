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
	threadsAuthURL  = "https://threads.net/oauth/authorize"
	threadsGraphURL = "https://graph.threads.net"
	threadsScopes   = "threads_basic,threads_content_publish"

	threadsTextLimit = 500
)

// Threads talks to the Threads Graph API. App credentials are separate from
// the Facebook app even though both live under Meta.
type Threads struct {
	appID     string
	appSecret string
	authURL   string
	graphURL  string
	client    *http.Client
	now       func() time.Time
}

func NewThreads(appID, appSecret string) *Threads {
	return &Threads{
		appID:     appID,
		appSecret: appSecret,
		authURL:   threadsAuthURL,
		graphURL:  threadsGraphURL,
		client:    &http.Client{Timeout: timeouts.OutboundAPI},
		now:       time.Now,
	}
}

func (t *Threads) Configured() bool {
	return t != nil && t.appID != "" && t.appSecret != ""
}

// BuildAuthURL returns the Threads consent URL, or "" when unconfigured.
func (t *Threads) BuildAuthURL(redirectURI, state string) string {
	if t == nil || t.appID == "" {
		return ""
	}
	q := url.Values{}
	q.Set("client_id", t.appID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", threadsScopes)
	q.Set("response_type", "code")
	if state != "" {
		q.Set("state", state)
	}
	return t.authURL + "?" + q.Encode()
}

// ExchangeCode turns an OAuth code into a Threads connection.
func (t *Threads) ExchangeCode(ctx context.Context, code, redirectURI string) (storage.Connection, error) {
	if !t.Configured() {
		return storage.Connection{}, fmt.Errorf("THREADS_APP_ID or THREADS_APP_SECRET not set")
	}
	// Threads appends "#_" to the code on redirect.
	if i := strings.Index(code, "#"); i >= 0 {
		code = code[:i]
	}

	form := url.Values{
		"client_id":     {t.appID},
		"client_secret": {t.appSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
		"code":          {code},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.graphURL+"/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return storage.Connection{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token struct {
		AccessToken string      `json:"access_token"`
		UserID      json.Number `json:"user_id"`
	}
	if err := t.doJSON(req, &token); err != nil {
		return storage.Connection{}, fmt.Errorf("token exchange failed: %w", err)
	}
	if token.AccessToken == "" || token.UserID.String() == "" {
		return storage.Connection{}, fmt.Errorf("토큰 응답이 비어 있습니다")
	}

	name := "Threads 계정"
	var profile struct {
		Username string `json:"username"`
	}
	params := url.Values{"access_token": {token.AccessToken}, "fields": {"username"}}
	if err := t.getJSON(ctx, t.graphURL+"/v1.0/me", params, &profile); err == nil && profile.Username != "" {
		name = profile.Username
	}

	return storage.Connection{
		ID:            id.New(),
		Platform:      storage.PlatformThreads,
		ThreadsUserID: token.UserID.String(),
		Name:          name,
		AccessToken:   token.AccessToken,
		CreatedAt:     t.now().UTC().UnixMilli(),
	}, nil
}

// Post publishes a thread, with an image when imageURL is publicly
// reachable, as text otherwise.
func (t *Threads) Post(ctx context.Context, token, userID, text, imageURL string) (string, error) {
	if runes := []rune(text); len(runes) > threadsTextLimit {
		text = string(runes[:threadsTextLimit])
	}

	params := url.Values{"access_token": {token}, "text": {text}}
	if strings.HasPrefix(imageURL, "http") {
		params.Set("media_type", "IMAGE")
		params.Set("image_url", imageURL)
	} else {
		params.Set("media_type", "TEXT")
	}

	var container struct {
		ID string `json:"id"`
	}
	if err := t.postJSON(ctx, t.graphURL+"/v1.0/"+userID+"/threads", params, &container); err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", fmt.Errorf("미디어 컨테이너 ID를 받지 못했습니다")
	}

	var published struct {
		ID string `json:"id"`
	}
	params = url.Values{"access_token": {token}, "creation_id": {container.ID}}
	if err := t.postJSON(ctx, t.graphURL+"/v1.0/"+userID+"/threads_publish", params, &published); err != nil {
		return "", err
	}
	return published.ID, nil
}

func (t *Threads) getJSON(ctx context.Context, target string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build threads request: %w", err)
	}
	return t.doJSON(req, out)
}

func (t *Threads) postJSON(ctx context.Context, target string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build threads request: %w", err)
	}
	return t.doJSON(req, out)
}

func (t *Threads) doJSON(req *http.Request, out any) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("threads request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read threads response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", graphErrorMessage(raw, resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode threads response: %w", err)
	}
	return nil
}
