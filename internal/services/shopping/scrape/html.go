package scrape

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Naver serves an error or bot-check page with a 200 status. These markers
// identify it so the ladder moves on instead of parsing garbage.
var naverErrorMarkers = []string{
	"현재 서비스 접속이 불가합니다",
	"module_error",
	"동시에 접속하는 이용자 수가 많거나",
	"시스템오류",
	"접속이 불가합니다",
}

func isNaverErrorPage(page string) bool {
	if len(page) < 500 {
		return true
	}
	for _, marker := range naverErrorMarkers {
		if strings.Contains(page, marker) {
			return true
		}
	}
	return false
}

var junkImagePattern = regexp.MustCompile(`(?i)logo|icon|banner|ad|spinner|1x1|pixel`)

var (
	repImagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`<img[^>]+alt=["']대표이미지["'][^>]+src=["']([^"']+)["']`),
		regexp.MustCompile(`<img[^>]+src=["']([^"']+)["'][^>]+alt=["']대표이미지["']`),
	}
	phinfAttrPattern = regexp.MustCompile(`(?i)(https?://[^"'<>\s]*(?:shop-phinf|phinf\.pstatic)[^"'<>\s]*\.(?:jpg|jpeg|png|webp)[^"'<>\s]*)`)
	scriptJSONPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)["'](https?://[^"']*shop-phinf[^"']*\.(?:jpg|jpeg|png|webp)[^"']*)["']`),
		regexp.MustCompile(`(?i)"(https?://[^"]*phinf\.pstatic[^"]*\.(?:jpg|jpeg|png|webp)[^"]*)"`),
		regexp.MustCompile(`(?i)"imageUrl"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"representativeImage"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"image"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"thumbUrl"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"productImage"\s*:\s*"([^"]+)"`),
	}
	pstaticWidePattern = regexp.MustCompile(`(?i)(https?://[a-zA-Z0-9.-]*pstatic\.net/[^"'<>\s]+\.(?:jpg|jpeg|png|webp)[^"'<>\s]*)`)
	genericPatterns    = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"image"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"productImage"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"mainImage"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"thumbnail"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)data-src=["']([^"']+\.(?:jpg|jpeg|png|webp)[^"']*)["']`),
	}
)

// extractFromHTML pulls a product image URL and title out of raw page HTML.
// It walks the parsed document for og tags first, then falls back to the
// regex ladder covering Naver's script-embedded JSON and CDN URLs.
func extractFromHTML(page string) (imageURL, title string) {
	if isNaverErrorPage(page) {
		return "", ""
	}

	ogImage, ogTitle := extractOpenGraph(page)
	title = ogTitle
	if strings.HasPrefix(ogImage, "http") {
		return ogImage, title
	}

	if strings.Contains(page, "대표이미지") {
		for _, pattern := range repImagePatterns {
			if m := pattern.FindStringSubmatch(page); m != nil && strings.HasPrefix(m[1], "http") {
				return strings.TrimSpace(m[1]), title
			}
		}
	}

	if m := phinfAttrPattern.FindStringSubmatch(page); m != nil && strings.HasPrefix(m[1], "http") {
		return strings.TrimSpace(m[1]), title
	}

	for _, pattern := range scriptJSONPatterns {
		m := pattern.FindStringSubmatch(page)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(strings.ReplaceAll(m[1], `\/`, "/"))
		if !strings.HasPrefix(candidate, "http") {
			continue
		}
		if !strings.Contains(candidate, "shop-phinf") && !strings.Contains(candidate, "phinf") && !strings.Contains(candidate, "pstatic") {
			continue
		}
		if !junkImagePattern.MatchString(candidate) {
			return candidate, title
		}
	}

	if m := pstaticWidePattern.FindStringSubmatch(page); m != nil {
		candidate := strings.TrimSpace(m[1])
		if strings.HasPrefix(candidate, "http") && !junkImagePattern.MatchString(candidate) {
			return candidate, title
		}
	}

	for _, pattern := range genericPatterns {
		m := pattern.FindStringSubmatch(page)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(strings.ReplaceAll(m[1], `\/`, "/"))
		if strings.HasPrefix(candidate, "http") && !junkImagePattern.MatchString(candidate) {
			return candidate, title
		}
	}

	return "", title
}

// extractOpenGraph parses the document and returns og:image and og:title
// content values.
func extractOpenGraph(page string) (image, title string) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", ""
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var property, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "property":
					property = attr.Val
				case "content":
					content = attr.Val
				}
			}
			switch property {
			case "og:image":
				if image == "" {
					image = strings.TrimSpace(content)
				}
			case "og:title":
				if title == "" {
					title = strings.TrimSpace(content)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return image, title
}
