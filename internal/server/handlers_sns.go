package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wavalabs/builder/internal/services/sns"
	"github.com/wavalabs/builder/internal/services/sns/storage"
)

func (s *Server) handleSNSConnections(w http.ResponseWriter, r *http.Request) {
	if s.cfg.SNS == nil {
		respondJSON(w, http.StatusOK, map[string]any{"connections": []any{}})
		return
	}
	connections, err := s.cfg.SNS.ListConnections(r.Context())
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"connections": []any{}, "error": err.Error()})
		return
	}
	if connections == nil {
		connections = []sns.PublicConnection{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"connections": connections})
}

func (s *Server) handleSNSAuth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.SNS == nil {
		respondDetail(w, http.StatusServiceUnavailable, "SNS 연동이 설정되지 않았습니다")
		return
	}
	platform := r.PathValue("platform")
	redirectURI := baseURL(r) + "/api/sns/callback/" + platform

	state := ""
	if s.cfg.StateSigner != nil {
		signed, err := s.cfg.StateSigner.Sign(platform)
		if err == nil {
			state = signed
		}
	}

	authURL, err := s.cfg.SNS.AuthURL(platform, redirectURI, state)
	if err != nil {
		respondDetail(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// handleSNSCallback finishes an OAuth round trip and sends the browser back
// to the settings view with the result in the query string.
func (s *Server) handleSNSCallback(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")
	front := baseURL(r)
	q := r.URL.Query()

	redirectError := func(msg string) {
		http.Redirect(w, r, front+"/?sns_error="+url.QueryEscape(msg)+"#settings", http.StatusTemporaryRedirect)
	}

	if s.cfg.SNS == nil {
		redirectError("SNS 연동이 설정되지 않았습니다")
		return
	}
	if errMsg := q.Get("error"); errMsg != "" {
		redirectError(errMsg)
		return
	}
	code := q.Get("code")
	if code == "" {
		redirectError("code missing")
		return
	}
	if state := q.Get("state"); state != "" && s.cfg.StateSigner != nil {
		stated, err := s.cfg.StateSigner.Verify(state)
		if err != nil || stated != platform {
			redirectError("잘못된 state 값입니다")
			return
		}
	}

	redirectURI := front + "/api/sns/callback/" + platform
	var name string
	var err error
	switch platform {
	case string(storage.PlatformFacebook):
		var added []string
		added, err = s.cfg.SNS.CompleteFacebook(r.Context(), code, redirectURI)
		name = strings.Join(added, ", ")
		if err == nil && name == "" {
			name = "Facebook"
		}
	case string(storage.PlatformThreads):
		name, err = s.cfg.SNS.CompleteThreads(r.Context(), code, redirectURI)
	case string(storage.PlatformYouTube):
		name, err = s.cfg.SNS.CompleteYouTube(r.Context(), code, redirectURI)
	default:
		err = errors.New("지원하지 않는 플랫폼: " + platform)
	}
	if err != nil {
		redirectError(err.Error())
		return
	}
	http.Redirect(w, r,
		front+"/?sns_connected="+url.QueryEscape(platform)+"&name="+url.QueryEscape(name)+"#settings",
		http.StatusTemporaryRedirect)
}

func (s *Server) handleSNSDisconnect(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.SNS.Disconnect(r.Context(), r.PathValue("connectionID"))
	var notFound storage.ErrNotFound
	switch {
	case errors.As(err, &notFound):
		respondDetail(w, http.StatusNotFound, "connection_not_found")
	case err != nil:
		respondDetail(w, http.StatusInternalServerError, err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (s *Server) handleSNSPost(w http.ResponseWriter, r *http.Request) {
	var req sns.PostRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	postID, err := s.cfg.SNS.Publish(r.Context(), req)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "post_id": postID})
}

func (s *Server) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	includePosted, _ := strconv.ParseBool(r.URL.Query().Get("include_posted"))
	items, err := s.cfg.SNS.ListSchedule(r.Context(), includePosted)
	if err != nil {
		respondDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": scheduleItemsJSON(items)})
}

func (s *Server) handleScheduleAdd(w http.ResponseWriter, r *http.Request) {
	var req sns.ScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := s.cfg.SNS.AddSchedule(r.Context(), req)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "item": scheduleItemJSON(item)})
}

func (s *Server) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.SNS.DeleteSchedule(r.Context(), r.PathValue("itemID"))
	var notFound storage.ErrNotFound
	switch {
	case errors.As(err, &notFound):
		respondDetail(w, http.StatusNotFound, "schedule_not_found")
	case err != nil:
		respondDetail(w, http.StatusInternalServerError, err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (s *Server) handleSuggestedTimes(w http.ResponseWriter, r *http.Request) {
	slots, reason := s.cfg.SNS.SuggestedTimes(r.Context(), r.URL.Query().Get("connection_id"))
	respondJSON(w, http.StatusOK, map[string]any{"suggested": slots, "reason": reason})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	result, err := s.cfg.SNS.Insights(r.Context(), r.PathValue("connectionID"))
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleInsightsAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.cfg.SNS.AllInsights(r.Context())
	if err != nil {
		respondDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []sns.ConnectionInsights{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"connections": results})
}

func (s *Server) handleInsightsReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectionID string `json:"connection_id"`
		GeminiAPIKey string `json:"gemini_api_key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reports, err := s.cfg.SNS.Report(r.Context(), req.ConnectionID, req.GeminiAPIKey)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleSNSPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	posts, err := s.cfg.SNS.ListPosts(r.Context(), q.Get("connection_id"), limit)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if posts == nil {
		posts = []sns.Post{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) handleSNSComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	comments, err := s.cfg.SNS.ListComments(r.Context(), q.Get("connection_id"), q.Get("post_id"))
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if comments == nil {
		comments = []sns.Comment{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *Server) handleCommentReply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectionID string `json:"connection_id"`
		CommentID    string `json:"comment_id"`
		Message      string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConnectionID == "" || req.CommentID == "" || strings.TrimSpace(req.Message) == "" {
		respondDetail(w, http.StatusBadRequest, "connection_id, comment_id, message는 필수입니다")
		return
	}
	replyID, err := s.cfg.SNS.ReplyToComment(r.Context(), req.ConnectionID, req.CommentID, req.Message)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "id": replyID})
}

func (s *Server) handleCommentAIReply(w http.ResponseWriter, r *http.Request) {
	var req sns.AIReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text, replyID, err := s.cfg.SNS.AIReply(r.Context(), req)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "reply_text": text, "id": replyID})
}

func (s *Server) handleCommentAIPrivateReply(w http.ResponseWriter, r *http.Request) {
	var req sns.AIReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	message, replyID, err := s.cfg.SNS.AIPrivateReply(r.Context(), req)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "message": message, "id": replyID})
}

// scheduleItemView is the wire shape of one schedule entry.
type scheduleItemView struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
	Caption      string `json:"caption"`
	ImageURL     string `json:"image_url,omitempty"`
	VideoURL     string `json:"video_url,omitempty"`
	Idea         string `json:"idea,omitempty"`
	ScheduledAt  int64  `json:"scheduled_at"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
	PostedAt     int64  `json:"posted_at,omitempty"`
	PostID       string `json:"post_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

func scheduleItemJSON(item storage.ScheduleItem) scheduleItemView {
	return scheduleItemView{
		ID:           item.ID,
		ConnectionID: item.ConnectionID,
		Caption:      item.Caption,
		ImageURL:     item.ImageURL,
		VideoURL:     item.VideoURL,
		Idea:         item.Idea,
		ScheduledAt:  item.ScheduledAt,
		Status:       string(item.Status),
		CreatedAt:    item.CreatedAt,
		PostedAt:     item.PostedAt,
		PostID:       item.PostID,
		Error:        item.Error,
	}
}

func scheduleItemsJSON(items []storage.ScheduleItem) []scheduleItemView {
	views := make([]scheduleItemView, 0, len(items))
	for _, item := range items {
		views = append(views, scheduleItemJSON(item))
	}
	return views
}
