package http

import (
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/aretw0/intake/pkg/domain"
)

// Voice provider defaults for speech gathering.
const (
	VoiceAction   = "/voice"
	VoiceLanguage = "en-US"
	VoiceTimeout  = 5
)

const (
	voicePrompt  = "Please continue with your animal control request."
	voiceExpired = "I'm sorry, but your session has expired. Please call back."
)

// twiml is the voice response document.
type twiml struct {
	XMLName  xml.Name  `xml:"Response"`
	Gather   *gather   `xml:"Gather,omitempty"`
	Say      string    `xml:"Say,omitempty"`
	Redirect string    `xml:"Redirect,omitempty"`
	Hangup   *struct{} `xml:"Hangup,omitempty"`
}

type gather struct {
	Input         string `xml:"input,attr"`
	Action        string `xml:"action,attr"`
	Timeout       int    `xml:"timeout,attr"`
	SpeechTimeout string `xml:"speechTimeout,attr"`
	Language      string `xml:"language,attr"`
	Say           string `xml:"Say"`
}

func listen(msg string) twiml {
	return twiml{
		Gather: &gather{
			Input:         "speech",
			Action:        VoiceAction,
			Timeout:       VoiceTimeout,
			SpeechTimeout: "auto",
			Language:      VoiceLanguage,
			Say:           msg,
		},
		Redirect: VoiceAction,
	}
}

func hangup(msg string) twiml {
	return twiml{Say: msg, Hangup: &struct{}{}}
}

// Voice handles the POST /voice webhook. The CallSid form value names the
// session; a caller without a session is greeted, otherwise SpeechResult is
// processed as one turn.
func (s *Server) Voice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	callSid := r.PostForm.Get("CallSid")
	if callSid == "" {
		http.Error(w, "CallSid is required", http.StatusBadRequest)
		return
	}
	speech := r.PostForm.Get("SpeechResult")
	ctx := r.Context()
	log := s.logger.With("call_sid", callSid)

	snap, err := s.Engine.Inspect(ctx, callSid)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		greeting, err := s.Engine.Start(ctx, callSid)
		if err != nil {
			log.Error("Voice: start failed", "error", err)
			s.writeTwiML(w, hangup(voiceExpired))
			return
		}
		log.Info("Voice: call started")
		s.writeTwiML(w, listen(greeting))
		return
	case err != nil:
		log.Error("Voice: inspect failed", "error", err)
		s.writeTwiML(w, hangup(voiceExpired))
		return
	case snap.Ended:
		s.writeTwiML(w, hangup(voiceExpired))
		return
	}

	if speech == "" {
		s.writeTwiML(w, listen(voicePrompt))
		return
	}

	reply, err := s.Engine.Turn(ctx, callSid, speech)
	if err != nil {
		log.Error("Voice: turn failed", "error", err)
		s.writeTwiML(w, hangup(voiceExpired))
		return
	}
	if after, err := s.Engine.Inspect(ctx, callSid); err == nil && after.Ended {
		s.writeTwiML(w, hangup(reply))
		return
	}
	s.writeTwiML(w, listen(reply))
}

// terminalCallStatuses are the provider statuses after which a call cannot resume.
var terminalCallStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// VoiceStatus handles the POST /voice/status callback. When a call is over its
// session is handed to the call status hook and forgotten.
func (s *Server) VoiceStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	callSid := r.PostForm.Get("CallSid")
	status := r.PostForm.Get("CallStatus")
	if callSid == "" || !terminalCallStatuses[status] {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx := r.Context()
	snap, err := s.Engine.Inspect(ctx, callSid)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Error("Voice: inspect failed", "error", err, "call_sid", callSid)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.onCallEnd != nil {
		s.onCallEnd(ctx, snap, status)
	}
	if err := s.Engine.Delete(ctx, callSid); err != nil {
		s.logger.Error("Voice: delete failed", "error", err, "call_sid", callSid)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeTwiML(w http.ResponseWriter, doc twiml) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(doc); err != nil {
		s.logger.Error("TwiML encode failed", "error", err)
	}
}
