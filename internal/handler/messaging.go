package handler

import (
	"context"
	"fmt"

	"github.com/hotaka0908/raspi-voice/internal/convo"
	"github.com/hotaka0908/raspi-voice/internal/fault"
	"github.com/hotaka0908/raspi-voice/internal/intent"
	"github.com/hotaka0908/raspi-voice/internal/relay"
)

// Sender is the outbound slice of the relay client.
type Sender interface {
	Send(ctx context.Context, to string, audio []byte) error
}

// Synthesizer renders the message text as speech before it is pushed.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Messaging pushes voice messages to other devices and answers unread
// queries from the counter the poller maintains.
type Messaging struct {
	sender Sender // nil when no relay is configured
	synth  Synthesizer
	unread *relay.Unread
}

func NewMessaging(sender Sender, synth Synthesizer, unread *relay.Unread) *Messaging {
	return &Messaging{sender: sender, synth: synth, unread: unread}
}

func (h *Messaging) Handle(ctx context.Context, res intent.Result, _ *convo.Context) (intent.Reply, error) {
	if res.Category == intent.MessagingQuery {
		return h.query()
	}
	return h.send(ctx, res)
}

// query reports how many messages arrived since the user last asked,
// then clears the counter.
func (h *Messaging) query() (intent.Reply, error) {
	n := h.unread.Load()
	if n == 0 {
		return intent.Reply{Text: "未読のメッセージはありません。"}, nil
	}
	h.unread.Reset()
	return intent.Reply{Text: fmt.Sprintf("未読のメッセージが%d件あります。", n)}, nil
}

func (h *Messaging) send(ctx context.Context, res intent.Result) (intent.Reply, error) {
	if h.sender == nil {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"メッセージ機能が設定されていません。", fmt.Errorf("relay disabled"))
	}

	to := res.Args["to"]
	if to == "" {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"誰に送るかわかりませんでした。", fmt.Errorf("messaging send without recipient"))
	}
	text := res.Args["message"]
	if text == "" {
		text = res.Query
	}

	audio, err := h.synth.Synthesize(ctx, text)
	if err != nil {
		return intent.Reply{}, fault.Spoken(fault.Transient,
			"メッセージを作成できませんでした。", err)
	}

	if err := h.sender.Send(ctx, to, audio); err != nil {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"メッセージを送信できませんでした。", err)
	}

	return intent.Reply{Text: fmt.Sprintf("%sにボイスメッセージを送りました。", to)}, nil
}
