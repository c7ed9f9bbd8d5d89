package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Gskdl78/Labor-saver/internal/engine"
	"github.com/Gskdl78/Labor-saver/internal/logging"
	"github.com/Gskdl78/Labor-saver/internal/store"
)

const (
	// maxMessageRunes bounds the accepted question length.
	maxMessageRunes = 500
	// maxSessionIDRunes bounds the accepted session ID length.
	maxSessionIDRunes = 100
)

// handleChat handles POST /api/chat. The engine guarantees a usable answer
// for every accepted request, so the only non-200 outcomes are input
// validation failures and rate limiting.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if utf8.RuneCountInString(req.Message) > maxMessageRunes {
		writeError(w, http.StatusBadRequest, "message too long")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}
	if utf8.RuneCountInString(req.SessionID) > maxSessionIDRunes {
		writeError(w, http.StatusBadRequest, "session_id too long")
		return
	}

	clientID := clientIP(r)
	start := time.Now()

	resp, err := s.deps.Engine.Answer(r.Context(), clientID, req.Message)
	if err != nil {
		var rle *engine.RateLimitError
		if errors.As(err, &rle) {
			retryAfter := int(math.Ceil(rle.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			s.metrics.chatRequestsTotal.WithLabelValues("rate_limited").Inc()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:      "請求過於頻繁，請稍後再試",
				RetryAfter: retryAfter,
			})
			return
		}
		log.Error("chat: answer failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	elapsed := time.Since(start)
	s.metrics.chatRequestsTotal.WithLabelValues(string(resp.Tier)).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(string(resp.Tier)).Observe(elapsed.Seconds())

	s.appendAnswerLog(r, &req, resp, clientID, elapsed)

	writeJSON(w, http.StatusOK, resp)
}

// appendAnswerLog records the answered question. Failures are logged and
// swallowed so persistence trouble never breaks the chat path.
func (s *Server) appendAnswerLog(r *http.Request, req *chatRequest, resp *engine.Response, clientID string, elapsed time.Duration) {
	if s.deps.AnswerLog == nil {
		return
	}
	rec := store.Record{
		SessionID: req.SessionID,
		ClientID:  clientID,
		Question:  req.Message,
		Tier:      string(resp.Tier),
		Success:   resp.Success,
		Sources:   resp.SourceNames(),
		Latency:   elapsed,
	}
	if err := s.deps.AnswerLog.Append(r.Context(), rec); err != nil {
		logging.FromContext(r.Context()).Error("chat: answer log append failed",
			slog.Any("error", err))
	}
}

// handlePresetQuestions handles GET /api/chat/preset-questions.
func (s *Server) handlePresetQuestions(w http.ResponseWriter, r *http.Request) {
	var questions []string
	if s.deps.Presets != nil {
		questions = s.deps.Presets.Questions()
	}
	writeJSON(w, http.StatusOK, presetQuestionsResponse{
		Questions: questions,
		Total:     len(questions),
	})
}

// handleRAGStatus handles GET /api/rag/status. It reports the knowledge base
// size plus cache and tier counters when those components are wired.
func (s *Server) handleRAGStatus(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.deps.VectorStore == nil {
		writeJSON(w, http.StatusOK, ragStatusResponse{
			Status:  "error",
			Message: "向量資料庫未初始化",
		})
		return
	}

	count, err := s.deps.VectorStore.Count(r.Context())
	if err != nil {
		log.Warn("rag status: count failed", slog.Any("error", err))
		writeJSON(w, http.StatusOK, ragStatusResponse{
			Status:  "error",
			Message: "RAG系統狀態檢查失敗: " + err.Error(),
		})
		return
	}

	resp := ragStatusResponse{
		Status:         "healthy",
		Message:        "RAG系統運行正常",
		VectorDBCount:  count,
		EmbeddingModel: s.cfg.EmbeddingModel,
	}
	if s.cfg.Collection != "" {
		resp.Collections = []string{s.cfg.Collection}
	}
	if s.deps.CacheStats != nil {
		stats := s.deps.CacheStats()
		resp.Cache = &stats
	}
	if s.deps.AnswerLog != nil {
		tiers, err := s.deps.AnswerLog.TierCounts(r.Context())
		if err != nil {
			log.Warn("rag status: tier counts failed", slog.Any("error", err))
		} else {
			resp.Tiers = tiers
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRAGReload handles POST /api/rag/reload by re-running ingestion over
// the configured dataset directory.
func (s *Server) handleRAGReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reloader == nil {
		writeJSON(w, http.StatusServiceUnavailable, reloadResponse{
			Message: "重新載入功能未啟用",
		})
		return
	}

	stats, err := s.deps.Reloader.Run(r.Context(), s.cfg.DatasetDir, true)
	if err != nil {
		logging.FromContext(r.Context()).Error("rag reload failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, reloadResponse{
			Message: "重新載入失敗: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, reloadResponse{
		Success:     true,
		Message:     "成功重新載入 " + strconv.Itoa(stats.Documents) + " 條記錄",
		RecordCount: stats.Documents,
	})
}
