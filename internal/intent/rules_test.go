package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesClassify(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		category   Category
		args       map[string]string
	}{
		{
			name:       "alarm set with time",
			transcript: "7時にアラームをセットして",
			category:   AlarmSet,
			args:       map[string]string{"time": "07:00"},
		},
		{
			name:       "alarm set half past",
			transcript: "7時半に目覚ましをかけて",
			category:   AlarmSet,
			args:       map[string]string{"time": "07:30"},
		},
		{
			name:       "alarm set with minutes",
			transcript: "19時30分にアラームを設定して",
			category:   AlarmSet,
			args:       map[string]string{"time": "19:30"},
		},
		{
			name:       "alarm set colon clock",
			transcript: "アラームを6:45にセット",
			category:   AlarmSet,
			args:       map[string]string{"time": "06:45"},
		},
		{
			name:       "alarm list",
			transcript: "アラームを教えて",
			category:   AlarmList,
		},
		{
			name:       "alarm delete with ordinal",
			transcript: "2番目のアラームを消して",
			category:   AlarmDelete,
			args:       map[string]string{"ordinal": "2"},
		},
		{
			name:       "alarm delete all",
			transcript: "アラームを全部削除して",
			category:   AlarmDelete,
		},
		{
			name:       "mail query",
			transcript: "メールを確認して",
			category:   MailQuery,
		},
		{
			name:       "mail read kanji ordinal",
			transcript: "三番目のメールを読んで",
			category:   MailQuery,
			args:       map[string]string{"ordinal": "3"},
		},
		{
			name:       "mail reply",
			transcript: "1番目のメールに返信して、ありがとう",
			category:   MailReply,
			args:       map[string]string{"ordinal": "1"},
		},
		{
			name:       "mail send",
			transcript: "田中さんにメールを送って",
			category:   MailSend,
		},
		{
			name:       "mail send with photo",
			transcript: "写真をメールで送って",
			category:   MailSend,
			args:       map[string]string{"attach_photo": "true"},
		},
		{
			name:       "messaging send",
			transcript: "お母さんにメッセージを送って",
			category:   MessagingSend,
		},
		{
			name:       "messaging query",
			transcript: "メッセージが来てる",
			category:   MessagingQuery,
		},
		{
			name:       "camera capture",
			transcript: "写真を撮って",
			category:   CameraCapture,
		},
		{
			name:       "camera query",
			transcript: "カメラに何が写ってる",
			category:   CameraQuery,
		},
		{
			name:       "chat falls through",
			transcript: "今日の調子はどう",
			category:   Unknown,
		},
	}

	r := NewRules()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Classify(context.Background(), tt.transcript, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.category, res.Category)
			assert.Equal(t, tt.transcript, res.Query)
			for k, v := range tt.args {
				assert.Equal(t, v, res.Args[k], "arg %s", k)
			}
		})
	}
}

func TestRulesDeterministic(t *testing.T) {
	r := NewRules()
	first, err := r.Classify(context.Background(), "十一番目のメールを読んで", nil)
	require.NoError(t, err)
	assert.Equal(t, "11", first.Args["ordinal"])

	for i := 0; i < 50; i++ {
		res, err := r.Classify(context.Background(), "十一番目のメールを読んで", nil)
		require.NoError(t, err)
		assert.Equal(t, first, res)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"7時", "07:00", true},
		{"7時半", "07:30", true},
		{"19時30分", "19:30", true},
		{"0時5分", "00:05", true},
		{"6:45", "06:45", true},
		{"25時", "", false},
		{"30:00", "", false},
		{"時間がない", "", false},
	}
	for _, tt := range tests {
		got, ok := parseTime(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseOrdinal(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1番目", 1, true},
		{"12番目", 12, true},
		{"三番目", 3, true},
		{"十番目", 10, true},
		{"十一番目", 11, true},
		{"二つ目", 2, true},
		{"番目なし", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseOrdinal(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
