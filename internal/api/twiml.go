package api

import (
	"log/slog"
	"net/http"

	"github.com/lendfront/supportline/internal/engine"
	"github.com/twilio/twilio-go/twiml"
)

// Voice call rendering constants
const (
	// pollyVoice is the Amazon Polly voice used for all spoken responses.
	pollyVoice = "Polly.Joanna"
	// humanAgentQueue is the call queue handoffs are dialed into.
	humanAgentQueue = "human_agents"
	// gatherTimeout is how long (seconds) to wait for the caller to start speaking.
	gatherTimeout = "5"
)

// buildGreetingTwiML renders the first-contact response: speak the greeting
// and gather the caller's speech, hanging up if nothing is heard.
func buildGreetingTwiML(actionURL string) (string, error) {
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        actionURL,
		Timeout:       gatherTimeout,
		SpeechTimeout: "auto",
		InnerElements: []twiml.Element{
			&twiml.VoiceSay{Message: engine.VoiceGreeting, Voice: pollyVoice},
		},
	}
	return twiml.Voice([]twiml.Element{
		gather,
		&twiml.VoiceSay{Message: "I didn't hear anything. Goodbye!", Voice: pollyVoice},
		&twiml.VoiceHangup{},
	})
}

// buildReplyTwiML renders a mid-conversation response: speak the reply, then
// either dial the human-agent queue (handoff) or gather the next utterance.
func buildReplyTwiML(reply string, handoff bool, actionURL string) (string, error) {
	verbs := []twiml.Element{
		&twiml.VoiceSay{Message: reply, Voice: pollyVoice},
	}
	if handoff {
		verbs = append(verbs, dialHumanAgents())
	} else {
		verbs = append(verbs,
			&twiml.VoiceGather{
				Input:         "speech",
				Action:        actionURL,
				Timeout:       gatherTimeout,
				SpeechTimeout: "auto",
				InnerElements: []twiml.Element{
					&twiml.VoiceSay{Message: "How else can I help you?", Voice: pollyVoice},
				},
			},
			&twiml.VoiceSay{Message: "I didn't hear anything. Let me connect you with a human agent.", Voice: pollyVoice},
			dialHumanAgents(),
		)
	}
	return twiml.Voice(verbs)
}

// buildErrorTwiML renders the generic spoken error response.
func buildErrorTwiML() (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: "I apologize, but I encountered an error. Please try again later.", Voice: pollyVoice},
	})
}

func dialHumanAgents() twiml.Element {
	return &twiml.VoiceDial{
		InnerElements: []twiml.Element{
			&twiml.VoiceQueue{Name: humanAgentQueue},
		},
	}
}

// writeTwiML writes a TwiML document response.
func writeTwiML(w http.ResponseWriter, statusCode int, doc string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Error("Server.writeTwiML: failed to write TwiML response", "error", err)
	}
}
