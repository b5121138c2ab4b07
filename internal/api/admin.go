package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lendfront/supportline/internal/models"
)

// chatRequest is the web-chat payload used by the dashboard test console.
type chatRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// chatHandler processes a web-chat turn. The dashboard console drives the
// same engine path as the Twilio webhooks, on the sms channel.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON payload"))
		return
	}
	if req.Phone == "" || req.Message == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("phone and message are required"))
		return
	}

	result, err := s.engine.HandleInbound(r.Context(), models.InboundEvent{
		CustomerPhone: req.Phone,
		Channel:       models.ChannelSMS,
		Text:          req.Message,
	})
	if err != nil {
		slog.Error("Server.chatHandler: inbound turn failed", "error", err, "phone", req.Phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// handoffHandler escalates a conversation to a human agent on demand, outside
// the normal per-turn policy (agent dashboards, supervisor intervention).
func (s *Server) handoffHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req models.HandoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON payload"))
		return
	}
	if req.ConversationID == "" || req.CustomerPhone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("conversation_id and customer_phone are required"))
		return
	}
	if req.Reason == "" {
		req.Reason = "Manual handoff requested"
	}

	if s.notifier != nil {
		if err := s.notifier.CreateHandoffTask(r.Context(), req); err != nil {
			slog.Error("Server.handoffHandler: handoff task creation failed", "error", err, "conversation_id", req.ConversationID)
			writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to create handoff task"))
			return
		}
	} else {
		slog.Warn("Server.handoffHandler: no handoff notifier configured, marking handed off only",
			"conversation_id", req.ConversationID)
	}

	if err := s.engine.MarkHandedOff(req.ConversationID); err != nil {
		slog.Error("Server.handoffHandler: failed to mark conversation handed off", "error", err, "conversation_id", req.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update conversation status"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation handed off", nil))
}

// dashboardResponse is the payload of the dashboard conversations feed.
type dashboardResponse struct {
	Stats         models.DashboardStats        `json:"stats"`
	Conversations []models.ConversationSummary `json:"conversations"`
}

// dashboardConversationsHandler returns recent conversations with aggregate
// outcome stats. The limit query parameter caps the feed.
func (s *Server) dashboardConversationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	limit := DefaultDashboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	conversations, err := s.st.ListRecentConversations(limit)
	if err != nil {
		slog.Error("Server.dashboardConversationsHandler: failed to list conversations", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list conversations"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(dashboardResponse{
		Stats:         computeDashboardStats(conversations, time.Now()),
		Conversations: conversations,
	}))
}

// computeDashboardStats aggregates conversation outcomes over the feed window.
func computeDashboardStats(conversations []models.ConversationSummary, now time.Time) models.DashboardStats {
	var stats models.DashboardStats
	var completed, handedOff int
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, c := range conversations {
		switch c.Status {
		case models.ConversationStatusActive:
			stats.Active++
		case models.ConversationStatusHandedOff:
			handedOff++
			if !c.UpdatedAt.Before(startOfDay) {
				stats.HandedOffToday++
			}
		case models.ConversationStatusCompleted:
			completed++
		}
	}
	if terminal := completed + handedOff; terminal > 0 {
		stats.AIResolutionRate = completed * 100 / terminal
	}
	return stats
}

// sweepResult is the payload of the manual sweep endpoint.
type sweepResult struct {
	Completed int64 `json:"completed"`
}

// sweepHandler completes stale voice conversations on demand. The scheduler
// runs the same sweep on a cron cadence; this endpoint exists for operators.
func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	n, err := s.engine.SweepStaleVoice(time.Now(), s.staleThreshold)
	if err != nil {
		slog.Error("Server.sweepHandler: sweep failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to sweep stale conversations"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(sweepResult{Completed: n}))
}
