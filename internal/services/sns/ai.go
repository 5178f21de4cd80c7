package sns

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// AIReplyRequest asks for an AI-written response to a page comment. A
// GeminiAPIKey sent with the request overrides the process default.
type AIReplyRequest struct {
	ConnectionID string `json:"connection_id"`
	CommentID    string `json:"comment_id"`
	CommentText  string `json:"comment_text"`
	PostMessage  string `json:"post_message"`
	GeminiAPIKey string `json:"gemini_api_key"`
}

func (r AIReplyRequest) validate() error {
	if r.ConnectionID == "" || r.CommentID == "" || strings.TrimSpace(r.CommentText) == "" {
		return fmt.Errorf("connection_id, comment_id, comment_text는 필수입니다")
	}
	return nil
}

// AIReply generates a short reply to a comment and posts it publicly.
func (s *Service) AIReply(ctx context.Context, req AIReplyRequest) (replyText, replyID string, err error) {
	if err := req.validate(); err != nil {
		return "", "", err
	}
	gen, err := s.generator(ctx, req.GeminiAPIKey)
	if err != nil {
		return "", "", err
	}

	prompt := fmt.Sprintf(`다음은 우리 페이지 게시물에 달린 댓글입니다. 브랜드에 친화적이고 간결하게 답글 한 문장을 작성해주세요. 이모지 1~2개 사용 가능. 답글만 출력하고 다른 설명은 하지 마세요.

게시물 내용: %s

댓글: %s

답글:`, truncateRunes(req.PostMessage, 500), truncateRunes(req.CommentText, 1000))

	text, err := gen.GenerateText(ctx, prompt, 0.7, 256)
	if err != nil {
		return "", "", fmt.Errorf("AI 생성 실패: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", fmt.Errorf("AI 답글 생성 결과가 비어 있습니다")
	}

	replyID, err = s.ReplyToComment(ctx, req.ConnectionID, req.CommentID, text)
	if err != nil {
		return "", "", err
	}
	return text, replyID, nil
}

// AIPrivateReply generates a short DM and sends it to the comment author.
func (s *Service) AIPrivateReply(ctx context.Context, req AIReplyRequest) (message, replyID string, err error) {
	if err := req.validate(); err != nil {
		return "", "", err
	}
	gen, err := s.generator(ctx, req.GeminiAPIKey)
	if err != nil {
		return "", "", err
	}

	prompt := fmt.Sprintf(`다음은 우리 페이지 게시물에 달린 댓글입니다. 댓글 작성자에게 보낼 친근하고 간결한 비공개 메시지(DM) 한 문장을 작성해주세요. 이모지 1~2개 사용 가능. 메시지만 출력하세요.

게시물: %s
댓글: %s

비공개 메시지:`, truncateRunes(req.PostMessage, 300), truncateRunes(req.CommentText, 800))

	text, err := gen.GenerateText(ctx, prompt, 0.7, 256)
	if err != nil {
		return "", "", fmt.Errorf("AI 생성 실패: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", fmt.Errorf("AI 메시지 생성 결과가 비어 있습니다")
	}

	replyID, err = s.PrivateReply(ctx, req.ConnectionID, req.CommentID, text)
	if err != nil {
		return "", "", err
	}
	return text, replyID, nil
}

// InsightsReport is one account's AI-summarized performance.
type InsightsReport struct {
	Name     string           `json:"name"`
	Platform string           `json:"platform,omitempty"`
	Metrics  map[string]int64 `json:"metrics,omitempty"`
	Report   string           `json:"report"`
}

// Report summarizes account metrics in Korean, one report per connection.
// connectionID narrows the report to a single account when set; apiKey
// overrides the process default generator.
func (s *Service) Report(ctx context.Context, connectionID, apiKey string) ([]InsightsReport, error) {
	gen, err := s.generator(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	var insights []ConnectionInsights
	if connectionID != "" {
		one, err := s.Insights(ctx, connectionID)
		if err != nil {
			return nil, err
		}
		insights = []ConnectionInsights{one}
	} else {
		all, err := s.AllInsights(ctx)
		if err != nil {
			return nil, err
		}
		insights = all
	}
	if len(insights) == 0 {
		return nil, fmt.Errorf("연동 계정이 없습니다")
	}

	reports := make([]InsightsReport, 0, len(insights))
	for _, data := range insights {
		if data.Error != "" || len(data.Metrics) == 0 {
			reports = append(reports, InsightsReport{Name: data.Name, Report: "지표를 불러올 수 없습니다."})
			continue
		}

		prompt := fmt.Sprintf(`다음은 SNS 연동 계정 '%s' (%s)의 최근 지표입니다.
2~3문장으로 요약하고, 개선을 위한 추천 한두 가지를 간단히 작성해주세요. 한국어로 답하세요.

지표: %s

요약 및 추천:`, data.Name, data.Platform, formatMetrics(data.Metrics))

		text, err := gen.GenerateText(ctx, prompt, 0.5, 512)
		if err != nil {
			reports = append(reports, InsightsReport{Name: data.Name, Report: "AI 생성 실패"})
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			text = "(생성 실패)"
		}
		reports = append(reports, InsightsReport{
			Name:     data.Name,
			Platform: data.Platform,
			Metrics:  data.Metrics,
			Report:   text,
		})
	}
	return reports, nil
}

func formatMetrics(metrics map[string]int64) string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, metrics[name]))
	}
	return strings.Join(parts, ", ")
}

func truncateRunes(s string, limit int) string {
	if runes := []rune(s); len(runes) > limit {
		return string(runes[:limit])
	}
	return s
}
