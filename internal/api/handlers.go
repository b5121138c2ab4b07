package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lendfront/supportline/internal/models"
	"github.com/twilio/twilio-go/twiml"
)

// smsWebhookHandler receives Twilio SMS and WhatsApp webhooks. The reply is
// delivered over the REST API, so Twilio only gets an empty TwiML document back.
func (s *Server) smsWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form payload"))
		return
	}
	if !s.validateTwilioRequest(r) {
		writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid Twilio signature"))
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")

	// Twilio addresses WhatsApp traffic as "whatsapp:+1234567890" on the same
	// messaging webhook; the prefix carries the channel, the rest is the phone.
	channel := models.ChannelSMS
	if strings.HasPrefix(from, "whatsapp:") {
		channel = models.ChannelWhatsApp
		from = strings.TrimPrefix(from, "whatsapp:")
	}

	result, err := s.engine.HandleInbound(r.Context(), models.InboundEvent{
		CustomerPhone: from,
		Channel:       channel,
		Text:          body,
	})
	if err != nil {
		slog.Error("Server.smsWebhookHandler: inbound turn failed", "error", err, "from", from, "channel", channel)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	if err := s.msgService.SendText(r.Context(), channel, from, result.ReplyText); err != nil {
		slog.Error("Server.smsWebhookHandler: reply delivery failed", "error", err, "conversation_id", result.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to deliver reply"))
		return
	}

	doc, err := twiml.Messages(nil)
	if err != nil {
		slog.Error("Server.smsWebhookHandler: failed to render TwiML", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to render response"))
		return
	}
	writeTwiML(w, http.StatusOK, doc)
}

// voiceWebhookHandler receives Twilio voice webhooks. The first contact has no
// SpeechResult and gets the greeting gather; subsequent gathers carry the
// transcribed speech and get a spoken reply, with a dial to the human-agent
// queue when the turn escalates.
func (s *Server) voiceWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form payload"))
		return
	}
	if !s.validateTwilioRequest(r) {
		writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid Twilio signature"))
		return
	}

	from := r.PostFormValue("From")
	speech := r.PostFormValue("SpeechResult")
	actionURL := s.baseURL + "/webhooks/voice"

	result, err := s.engine.HandleInbound(r.Context(), models.InboundEvent{
		CustomerPhone: from,
		Channel:       models.ChannelVoice,
		Text:          speech,
	})
	if err != nil {
		slog.Error("Server.voiceWebhookHandler: inbound turn failed", "error", err, "from", from)
		doc, buildErr := buildErrorTwiML()
		if buildErr != nil {
			slog.Error("Server.voiceWebhookHandler: failed to render error TwiML", "error", buildErr)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process call"))
			return
		}
		// The caller hears the error; the webhook itself succeeded.
		writeTwiML(w, http.StatusOK, doc)
		return
	}

	var doc string
	if result.InitialGreeting {
		doc, err = buildGreetingTwiML(actionURL)
	} else {
		doc, err = buildReplyTwiML(result.ReplyText, result.ShouldHandoff, actionURL)
	}
	if err != nil {
		slog.Error("Server.voiceWebhookHandler: failed to render TwiML", "error", err, "conversation_id", result.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to render response"))
		return
	}
	writeTwiML(w, http.StatusOK, doc)
}

// statusWebhookHandler receives Twilio message status callbacks and records
// them as delivery receipts.
func (s *Server) statusWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form payload"))
		return
	}
	if !s.validateTwilioRequest(r) {
		writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid Twilio signature"))
		return
	}

	receipt := models.DeliveryReceipt{
		MessageSID:   r.PostFormValue("MessageSid"),
		Status:       r.PostFormValue("MessageStatus"),
		ErrorCode:    r.PostFormValue("ErrorCode"),
		ErrorMessage: r.PostFormValue("ErrorMessage"),
		ReceivedAt:   time.Now().UTC(),
	}
	if receipt.MessageSID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("MessageSid is required"))
		return
	}

	if err := s.st.AddDeliveryReceipt(receipt); err != nil {
		slog.Error("Server.statusWebhookHandler: failed to record delivery receipt", "error", err, "message_sid", receipt.MessageSID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record delivery status"))
		return
	}

	slog.Debug("Server.statusWebhookHandler: delivery receipt recorded",
		"message_sid", receipt.MessageSID, "status", receipt.Status)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}
