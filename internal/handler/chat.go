// Package handler implements the domain handlers behind the intent
// router: chat, mail, alarm, camera and messaging. Each one owns its
// slice of the conversation context and surfaces failures as typed
// faults so the controller can speak the right apology.
package handler

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"

	"github.com/hotaka0908/raspi-voice/internal/convo"
	"github.com/hotaka0908/raspi-voice/internal/fault"
	"github.com/hotaka0908/raspi-voice/internal/intent"
)

const chatPrompt = `あなたは親切なAIアシスタントです。
ユーザーの質問に簡潔に答えてください。
音声で読み上げられるため、1-2文程度の短い応答を心がけてください。
日本語で回答してください。`

// Chat answers general utterances and is the fallback for everything
// the router could not place.
type Chat struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func NewChat(client openai.Client, model string) *Chat {
	return &Chat{client: client, model: model, maxTokens: 500}
}

func (h *Chat) Handle(ctx context.Context, res intent.Result, cx *convo.Context) (intent.Reply, error) {
	cx.AppendTurn("user", res.Query)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(chatPrompt),
	}
	for _, t := range cx.Turns() {
		if t.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(t.Content))
		} else {
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}

	resp, err := h.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:  messages,
		Model:     openai.ChatModel(h.model),
		MaxTokens: openai.Int(h.maxTokens),
	})
	if err != nil {
		return intent.Reply{}, fault.Spoken(fault.Transient,
			"すみません、うまく応答できませんでした。", fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return intent.Reply{}, fault.Spoken(fault.Transient,
			"すみません、うまく応答できませんでした。", fmt.Errorf("empty chat response"))
	}

	text := resp.Choices[0].Message.Content
	cx.AppendTurn("assistant", text)
	return intent.Reply{Text: text}, nil
}
