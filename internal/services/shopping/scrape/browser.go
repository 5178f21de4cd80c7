package scrape

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Extraction order mirrors the storefront DOM: the representative image
// first, then og:image, then any Naver CDN image that is not chrome.
const extractJS = `() => {
	const junk = /logo|icon|banner|ad|spinner|1x1|pixel/i;
	const tryImg = (s) => (s && s.startsWith('http') && !junk.test(s)) ? s : null;
	let img = null, title = null;
	const rep = document.querySelector('img[alt="대표이미지"]');
	if (rep) img = tryImg(rep.src || rep.getAttribute('data-src') || rep.getAttribute('data-original'));
	if (!img) {
		const og = document.querySelector('meta[property="og:image"]');
		if (og && og.content) img = og.content;
	}
	const ogTitle = document.querySelector('meta[property="og:title"]');
	if (ogTitle && ogTitle.content) title = ogTitle.content;
	if (!img) {
		const selectors = [
			'img[src*="shop-phinf.pstatic.net"]', 'img[src*="shop-phinf"]', 'img[src*="phinf.pstatic"]',
			'img[data-src*="shop-phinf"]', 'img[data-src*="phinf"]',
			'[class*="product"] img', '[class*="Product"] img', '[class*="thumb"] img',
			'main img', '[role="main"] img'
		];
		for (const sel of selectors) {
			const el = document.querySelector(sel);
			if (el) {
				img = tryImg((el.src || el.getAttribute('data-src') || '').trim());
				if (img) break;
			}
		}
	}
	if (!img) {
		for (const el of document.querySelectorAll('img[src]')) {
			const s = (el.src || '').trim();
			if (s && /phinf|pstatic|shop-phinf/i.test(s) && !junk.test(s)) { img = s; break; }
		}
	}
	return [img || null, title || null];
}`

// Browser drives a headless Chromium for pages whose image only appears
// after script execution.
type Browser struct {
	timeout time.Duration
}

// NewBrowser builds the rod-backed rung.
func NewBrowser() *Browser {
	return &Browser{timeout: 40 * time.Second}
}

// Scrape loads pageURL in a fresh headless browser and extracts the product
// image from the live DOM. The page is visited directly first; Naver
// storefronts that come up empty are retried via naver.com to pick up the
// session cookies the storefront expects. JSON API responses captured while
// the page loads serve as the last extraction source.
func (b *Browser) Scrape(ctx context.Context, pageURL string) (Result, error) {
	if b == nil {
		return Result{}, fmt.Errorf("browser is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	l := launcher.New().Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("lang", "ko-KR")
	controlURL, err := l.Launch()
	if err != nil {
		return Result{}, fmt.Errorf("launch browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return Result{}, fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return Result{}, fmt.Errorf("open page: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      desktopUserAgent,
		AcceptLanguage: "ko-KR,ko;q=0.9,en-US;q=0.8",
	}); err != nil {
		return Result{}, fmt.Errorf("set user agent: %w", err)
	}

	captured := newResponseCapture(page)

	if err := page.Navigate(pageURL); err != nil {
		return Result{}, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return Result{}, fmt.Errorf("wait load: %w", err)
	}
	time.Sleep(2 * time.Second)

	if result, ok := evaluateExtraction(page); ok {
		return result, nil
	}

	// Some Naver storefronts only render for sessions that arrived through
	// naver.com.
	if isNaverStore(pageURL) {
		if err := page.Navigate("https://www.naver.com"); err == nil {
			page.WaitLoad()
			time.Sleep(time.Second)
		}
		if err := page.Navigate(pageURL); err != nil {
			return Result{}, fmt.Errorf("navigate %s: %w", pageURL, err)
		}
		if err := page.WaitLoad(); err != nil {
			return Result{}, fmt.Errorf("wait load: %w", err)
		}
		time.Sleep(2 * time.Second)

		if result, ok := evaluateExtraction(page); ok {
			return result, nil
		}
	}

	if result, ok := captured.mine(); ok {
		return result, nil
	}
	return Result{}, fmt.Errorf("no product image in rendered page")
}

func evaluateExtraction(page *rod.Page) (Result, bool) {
	res, err := page.Evaluate(&rod.EvalOptions{JS: extractJS, ByValue: true})
	if err != nil || res == nil {
		return Result{}, false
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return Result{}, false
	}
	var pair [2]*string
	if err := json.Unmarshal(raw, &pair); err != nil {
		return Result{}, false
	}

	result := Result{}
	if pair[0] != nil {
		result.ImageURL = strings.TrimSpace(*pair[0])
	}
	if pair[1] != nil {
		result.Title = strings.TrimSpace(*pair[1])
	}
	if !strings.HasPrefix(result.ImageURL, "http") {
		return Result{}, false
	}
	return result, true
}

// responseCapture collects JSON API response bodies that look like they
// carry product image data. Some storefronts never put the image in the DOM
// and only ship it through their product/graphql APIs.
type responseCapture struct {
	mu     sync.Mutex
	bodies []string
}

func newResponseCapture(page *rod.Page) *responseCapture {
	c := &responseCapture{}
	go page.EachEvent(func(e *proto.NetworkResponseReceived) {
		r := e.Response
		if r == nil || r.Status != 200 {
			return
		}
		lowered := strings.ToLower(r.URL)
		if !strings.Contains(lowered, "product") && !strings.Contains(r.URL, "api") && !strings.Contains(r.URL, "graphql") {
			return
		}
		if !strings.Contains(strings.ToLower(r.MIMEType), "json") {
			return
		}
		body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(page)
		if err != nil || body == nil || body.Body == "" {
			return
		}
		text := body.Body
		if body.Base64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(text)
			if err != nil {
				return
			}
			text = string(decoded)
		}
		loweredBody := strings.ToLower(text)
		if !strings.Contains(loweredBody, "image") && !strings.Contains(text, "shop-phinf") && !strings.Contains(text, "phinf") {
			return
		}
		c.mu.Lock()
		c.bodies = append(c.bodies, text)
		c.mu.Unlock()
	})()
	return c
}

// mine scans the captured bodies with the same extractor used for HTML.
func (c *responseCapture) mine() (Result, bool) {
	c.mu.Lock()
	bodies := append([]string(nil), c.bodies...)
	c.mu.Unlock()
	for _, body := range bodies {
		if image, title := extractFromHTML(body); image != "" {
			return Result{ImageURL: image, Title: title}, true
		}
	}
	return Result{}, false
}

func isNaverStore(pageURL string) bool {
	return strings.Contains(pageURL, "smartstore.naver.com") ||
		strings.Contains(pageURL, "brand.naver.com") ||
		strings.Contains(pageURL, "shopping.naver.com")
}
