package handler

import (
	"fmt"
	"net/http"

	"outreach-server/internal/calls/processor"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"
)

const voiceWebhookPath = "/api/calls/webhook/voice"

// HandleVoiceWebhook is Twilio's entry point for an answered call and for
// every speech gather that follows. It resolves the callback to a session,
// advances the dialogue, and responds with TwiML. It always answers 200 with
// speakable TwiML; a caller mid-call never sees an HTTP error.
func (h *Handler) HandleVoiceWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	reply := h.callProcessor.HandleCallback(ctx, processor.Callback{
		ExternalCallID:    c.PostForm("CallSid"),
		DestinationNumber: c.PostForm("To"),
		CallerUtterance:   c.PostForm("SpeechResult"),
	})

	say := &twiml.VoiceSay{Message: reply.Utterance}

	var elements []twiml.Element
	if reply.Hangup {
		elements = []twiml.Element{say, &twiml.VoiceHangup{}}
	} else {
		gather := &twiml.VoiceGather{
			Input:         "speech",
			Action:        voiceWebhookPath,
			Method:        "POST",
			SpeechTimeout: "auto",
			InnerElements: []twiml.Element{say},
		}
		// If the gather times out without speech, come back around for a
		// reprompt instead of dropping the call.
		elements = []twiml.Element{gather, &twiml.VoiceRedirect{Url: voiceWebhookPath, Method: "POST"}}
	}

	twimlResult, err := twiml.Voice(elements)
	if err != nil {
		h.logger.Error(ctx, "Failed to render TwiML", err)
		twimlResult = fmt.Sprintf("<Response><Say>%s</Say><Hangup/></Response>", "Sorry, something went wrong. Goodbye.")
	}

	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, twimlResult)
}

// HandleStatusWebhook receives Twilio call lifecycle events and finalizes
// sessions whose call ended outside the dialogue.
func (h *Handler) HandleStatusWebhook(c *gin.Context) {
	h.callProcessor.HandleStatusCallback(c.Request.Context(), processor.StatusCallback{
		ExternalCallID: c.PostForm("CallSid"),
		CallStatus:     c.PostForm("CallStatus"),
	})
	c.Status(http.StatusNoContent)
}
