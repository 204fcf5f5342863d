package handler

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	openai "github.com/openai/openai-go/v3"

	"github.com/hotaka0908/raspi-voice/internal/camera"
	"github.com/hotaka0908/raspi-voice/internal/convo"
	"github.com/hotaka0908/raspi-voice/internal/fault"
	"github.com/hotaka0908/raspi-voice/internal/intent"
)

// Camera captures photos and answers questions about what the camera
// sees. The last shot is remembered in the conversation context so the
// mail handler can attach it.
type Camera struct {
	cam    camera.Camera
	client openai.Client
	model  string
}

func NewCamera(cam camera.Camera, client openai.Client, model string) *Camera {
	return &Camera{cam: cam, client: client, model: model}
}

func (h *Camera) Handle(ctx context.Context, res intent.Result, cx *convo.Context) (intent.Reply, error) {
	path, err := h.cam.Capture(ctx)
	if err != nil {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"写真を撮れませんでした。", err)
	}
	cx.SetLastPhoto(path)

	if res.Category == intent.CameraCapture {
		return intent.Reply{Text: "写真を撮りました。"}, nil
	}
	return h.describe(ctx, path, res)
}

func (h *Camera) describe(ctx context.Context, path string, res intent.Result) (intent.Reply, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"写真を読み込めませんでした。", err)
	}

	question := res.Args["question"]
	if question == "" {
		question = "この写真に何が写っていますか？音声で読み上げるので1-2文の日本語で簡潔に答えてください。"
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := h.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(question),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Model: openai.ChatModel(h.model),
	})
	if err != nil {
		return intent.Reply{}, fault.Spoken(fault.Transient,
			"写真を確認できませんでした。", fmt.Errorf("vision completion: %w", err))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return intent.Reply{}, fault.Spoken(fault.Transient,
			"写真を確認できませんでした。", fmt.Errorf("empty vision response"))
	}
	return intent.Reply{Text: resp.Choices[0].Message.Content}, nil
}
