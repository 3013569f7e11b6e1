package handlers

import (
	"net/http"
	"strings"

	"github.com/example/movie-platform/internal/platform/analytics"
	"github.com/example/movie-platform/internal/platform/api"
	"github.com/example/movie-platform/internal/platform/httpserver"
	"github.com/example/movie-platform/services/viewer/internal/moviehub"
)

type chatbotReq struct {
	Message string `json:"message"`
}

type chatbotResp struct {
	Intent string `json:"intent"`
	Reply  any    `json:"reply"`
}

const (
	intentMovieInfo   = "movie_info"
	intentMovieSearch = "movie_search"
	intentFallback    = "fallback"
)

// classifyIntent picks the upstream tool for a chat message with plain
// keyword rules. Quoted titles route to movie info; everything else that
// mentions movies becomes a search.
func classifyIntent(message string) (intent, argument string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return intentFallback, ""
	}

	if start := strings.IndexAny(msg, `"'`); start >= 0 {
		quote := msg[start]
		if end := strings.IndexByte(msg[start+1:], quote); end > 0 {
			title := strings.TrimSpace(msg[start+1 : start+1+end])
			if title != "" {
				return intentMovieInfo, title
			}
		}
	}

	lower := strings.ToLower(msg)
	for _, kw := range []string{"추천", "검색", "찾아", "recommend", "search", "find", "movie", "영화"} {
		if strings.Contains(lower, kw) {
			return intentMovieSearch, msg
		}
	}
	return intentFallback, ""
}

// PostChatbotMessage handles POST /v1/chatbot/messages. The edge routes the
// message to an upstream tool endpoint and returns the tool payload as the
// reply; conversation memory stays in the SPA.
func PostChatbotMessage(hub moviehub.Provider, events *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req chatbotReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}

		intent, arg := classifyIntent(req.Message)
		events.Publish(analytics.SubjectChatbotAsked, "chatbot_asked", viewerIDString(r), map[string]any{
			"intent": intent,
		})

		switch intent {
		case intentMovieInfo:
			payload, err := hub.GetMovieInfoTool(r.Context(), arg)
			if err != nil {
				writeUpstreamError(w, rid, err)
				return
			}
			api.WriteJSON(w, http.StatusOK, chatbotResp{Intent: intent, Reply: payload})
		case intentMovieSearch:
			payload, err := hub.SearchMoviesTool(r.Context(), arg)
			if err != nil {
				writeUpstreamError(w, rid, err)
				return
			}
			api.WriteJSON(w, http.StatusOK, chatbotResp{Intent: intent, Reply: payload})
		default:
			api.WriteJSON(w, http.StatusOK, chatbotResp{
				Intent: intentFallback,
				Reply:  "Ask me about a movie, for example: find me a thriller, or tell me about \"Oldboy\".",
			})
		}
	}
}
