package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hotaka0908/raspi-voice/internal/convo"
	"github.com/hotaka0908/raspi-voice/internal/fault"
	"github.com/hotaka0908/raspi-voice/internal/intent"
	"github.com/hotaka0908/raspi-voice/internal/mail"
)

// Mailer is the slice of the Gmail client the handler needs.
type Mailer interface {
	List(ctx context.Context, query string, max int) ([]mail.Email, error)
	Read(ctx context.Context, id string) (mail.Email, error)
	Send(ctx context.Context, to, subject, body, attachmentPath string) error
	Reply(ctx context.Context, id, body, toOverride string) (string, error)
}

// Mail handles listing, reading, sending and replying by voice.
// Ordinals ("1番目のメール") resolve against the listing this handler
// last stored in the conversation context.
type Mail struct {
	client Mailer // nil when Gmail is not configured
}

func NewMail(client Mailer) *Mail {
	return &Mail{client: client}
}

func (h *Mail) Handle(ctx context.Context, res intent.Result, cx *convo.Context) (intent.Reply, error) {
	if h.client == nil {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"メール機能が設定されていません。", fmt.Errorf("gmail disabled"))
	}

	switch res.Category {
	case intent.MailQuery:
		if ord := res.Args["ordinal"]; ord != "" {
			return h.read(ctx, ord, cx)
		}
		return h.list(ctx, res.Args["query"], cx)
	case intent.MailSend:
		return h.send(ctx, res, cx)
	case intent.MailReply:
		return h.reply(ctx, res, cx)
	}
	return intent.Reply{}, fault.New(fault.SideEffect, fmt.Errorf("mail: unexpected category %s", res.Category))
}

func (h *Mail) list(ctx context.Context, query string, cx *convo.Context) (intent.Reply, error) {
	emails, err := h.client.List(ctx, query, 5)
	if err != nil {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"メールに接続できませんでした。", err)
	}
	if len(emails) == 0 {
		cx.SetEmails(nil)
		return intent.Reply{Text: "該当するメールはありません。"}, nil
	}

	refs := make([]convo.EmailRef, len(emails))
	lines := make([]string, 0, len(emails)+1)
	lines = append(lines, fmt.Sprintf("メールが%d件あります。", len(emails)))
	for i, e := range emails {
		refs[i] = convo.EmailRef{
			ID:       e.ID,
			FromName: e.FromName,
			FromAddr: e.FromAddr,
			Subject:  e.Subject,
			Date:     e.Date,
		}
		lines = append(lines, fmt.Sprintf("%d番、%sさんから、%s。", i+1, e.FromName, e.Subject))
	}
	cx.SetEmails(refs)

	return intent.Reply{Text: strings.Join(lines, " ")}, nil
}

func (h *Mail) read(ctx context.Context, ordinal string, cx *convo.Context) (intent.Reply, error) {
	ref, err := resolveOrdinal(ordinal, cx)
	if err != nil {
		return intent.Reply{}, err
	}

	e, rerr := h.client.Read(ctx, ref.ID)
	if rerr != nil {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"メールを読み取れませんでした。", rerr)
	}

	text := fmt.Sprintf("%sさんからのメール、件名、%s。本文。%s", e.FromName, e.Subject, e.Body)
	return intent.Reply{Text: text}, nil
}

func (h *Mail) send(ctx context.Context, res intent.Result, cx *convo.Context) (intent.Reply, error) {
	to := res.Args["to"]
	if to == "" {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"宛先がわかりませんでした。宛先を言ってからもう一度お試しください。", fmt.Errorf("mail send without recipient"))
	}

	subject := res.Args["subject"]
	if subject == "" {
		subject = "音声メッセージ"
	}
	body := res.Args["body"]
	if body == "" {
		body = res.Query
	}

	attachment := ""
	if res.Args["attach_photo"] == "true" {
		attachment = cx.LastPhoto()
		if attachment == "" {
			return intent.Reply{}, fault.Spoken(fault.SideEffect,
				"送る写真がありません。先に写真を撮ってください。", fmt.Errorf("attach requested with no photo"))
		}
	}

	if err := h.client.Send(ctx, to, subject, body, attachment); err != nil {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"メールを送信できませんでした。", err)
	}

	if attachment != "" {
		return intent.Reply{Text: fmt.Sprintf("%sに写真付きのメールを送信しました。", to)}, nil
	}
	return intent.Reply{Text: fmt.Sprintf("%sにメールを送信しました。", to)}, nil
}

func (h *Mail) reply(ctx context.Context, res intent.Result, cx *convo.Context) (intent.Reply, error) {
	ord := res.Args["ordinal"]
	if ord == "" {
		ord = "1"
	}
	ref, err := resolveOrdinal(ord, cx)
	if err != nil {
		return intent.Reply{}, err
	}

	body := res.Args["body"]
	if body == "" {
		body = res.Query
	}

	name, rerr := h.client.Reply(ctx, ref.ID, body, ref.FromAddr)
	if rerr != nil {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"返信を送信できませんでした。", rerr)
	}
	return intent.Reply{Text: fmt.Sprintf("%sさんに返信を送信しました。", name)}, nil
}

func resolveOrdinal(ordinal string, cx *convo.Context) (convo.EmailRef, error) {
	n, err := strconv.Atoi(ordinal)
	if err != nil || n < 1 {
		return convo.EmailRef{}, fault.Spoken(fault.SideEffect,
			"何番目のメールかわかりませんでした。", fmt.Errorf("bad ordinal %q", ordinal))
	}
	ref, ok := cx.EmailByOrdinal(n)
	if !ok {
		return convo.EmailRef{}, fault.Spoken(fault.SideEffect,
			"指定されたメールが見つかりません。先にメールを確認してと言ってください。", fmt.Errorf("ordinal %d out of range", n))
	}
	return ref, nil
}
