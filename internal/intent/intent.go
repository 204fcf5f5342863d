// Package intent classifies a transcript into one of a fixed set of
// categories and dispatches it to the matching domain handler. The
// router itself is a pure dispatch table; any model-assisted step is an
// injected Classifier.
package intent

import (
	"context"
	log "log/slog"

	"github.com/hotaka0908/raspi-voice/internal/convo"
)

type Category string

const (
	Chat           Category = "chat"
	MailQuery      Category = "mail_query"
	MailSend       Category = "mail_send"
	MailReply      Category = "mail_reply"
	AlarmSet       Category = "alarm_set"
	AlarmList      Category = "alarm_list"
	AlarmDelete    Category = "alarm_delete"
	CameraCapture  Category = "camera_capture"
	CameraQuery    Category = "camera_query"
	MessagingSend  Category = "messaging_send"
	MessagingQuery Category = "messaging_query"
	Unknown        Category = "unknown"
)

// Result is a classified transcript with normalized arguments.
type Result struct {
	Category Category          `json:"category"`
	Args     map[string]string `json:"args"`
	Query    string            `json:"query"`
}

// Reply is what a handler speaks back, plus optional prerendered audio.
type Reply struct {
	Text  string
	Audio []byte
}

// Handler implements one or more intent categories.
type Handler interface {
	Handle(ctx context.Context, res Result, cx *convo.Context) (Reply, error)
}

// Classifier turns a transcript into a Result. Must be deterministic
// for identical transcript and context.
type Classifier interface {
	Classify(ctx context.Context, transcript string, cx *convo.Context) (Result, error)
}

// Router holds the dispatch table. An Unknown category, an unregistered
// category or a classifier failure all fall back to the chat handler so
// every transcript yields some spoken response.
type Router struct {
	primary  Classifier
	fallback Classifier
	handlers map[Category]Handler
	chat     Handler
	cx       *convo.Context
}

func NewRouter(primary, fallback Classifier, chat Handler, cx *convo.Context) *Router {
	return &Router{
		primary:  primary,
		fallback: fallback,
		handlers: make(map[Category]Handler),
		chat:     chat,
		cx:       cx,
	}
}

func (r *Router) Register(h Handler, cats ...Category) {
	for _, c := range cats {
		r.handlers[c] = h
	}
}

// Route classifies the transcript and selects a handler.
func (r *Router) Route(ctx context.Context, transcript string) (Handler, Result) {
	res, err := r.primary.Classify(ctx, transcript, r.cx)
	if err != nil && r.fallback != nil {
		log.Warn("intent: classifier failed, using fallback", "err", err)
		res, err = r.fallback.Classify(ctx, transcript, r.cx)
	}
	if err != nil {
		res = Result{Category: Unknown, Query: transcript}
	}
	if res.Query == "" {
		res.Query = transcript
	}

	h, ok := r.handlers[res.Category]
	if !ok || res.Category == Unknown {
		return r.chat, res
	}
	return h, res
}

// Dispatch routes and invokes in one step.
func (r *Router) Dispatch(ctx context.Context, transcript string) (Result, Reply, error) {
	h, res := r.Route(ctx, transcript)
	log.Info("intent: routed", "category", res.Category, "args", res.Args)
	reply, err := h.Handle(ctx, res, r.cx)
	return res, reply, err
}
