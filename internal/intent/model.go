package intent

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"github.com/hotaka0908/raspi-voice/internal/convo"
)

const classifierPrompt = `あなたは音声アシスタントの意図分類器です。
ユーザーの発話を最小限の構造化JSONに変換することだけが仕事です。

ルール:
1. 会話しない。質問に答えない。説明しない。
2. JSON以外を出力しない。マークダウン禁止。
3. 不明なパラメータを捏造しない。

出力形式:
{"category": "<カテゴリ>", "args": { ... }, "query": "<元の発話>"}

カテゴリ (固定):
- "chat"            雑談・一般の質問
- "mail_query"      メール確認・読み上げ
- "mail_send"       新規メール送信
- "mail_reply"      メール返信
- "alarm_set"       アラーム設定
- "alarm_list"      アラーム一覧
- "alarm_delete"    アラーム削除
- "camera_capture"  写真撮影
- "camera_query"    カメラで見えるものの質問
- "messaging_send"  ボイスメッセージ送信
- "messaging_query" 未読ボイスメッセージの確認
- "unknown"         分類不能

args (存在するものだけ):
- "time":    "HH:MM" 形式に正規化した時刻
- "ordinal": "N" (「N番目」の数字)
- "to":      宛先 (メールアドレスまたは名前)
- "subject": 件名
- "body":    本文
- "message": 伝言の内容
- "question": カメラへの質問文
- "attach_photo": "true" (直前の写真を添付する指示がある場合)
- "label":   アラームのラベル

意味が不明瞭なら category は "unknown"。
JSON以外のテキストを一切生成しないこと。`

// Model is the model-assisted classifier: a single chat completion at
// temperature 0 returning strict JSON, parsed and nothing more.
type Model struct {
	client openai.Client
	model  string
}

func NewModel(client openai.Client, model string) *Model {
	return &Model{client: client, model: model}
}

func (m *Model) Classify(ctx context.Context, transcript string, _ *convo.Context) (Result, error) {
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifierPrompt),
			openai.UserMessage(transcript),
		},
		Model:       openai.ChatModel(m.model),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return Result{}, fmt.Errorf("empty message content")
	}

	log.Debug("intent: classifier raw", "data", content)

	var out Result
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Result{}, fmt.Errorf("unmarshal classifier result: %w (raw: %s)", err, content)
	}
	if out.Args == nil {
		out.Args = map[string]string{}
	}
	return out, nil
}
