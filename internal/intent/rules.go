package intent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hotaka0908/raspi-voice/internal/convo"
)

// Rules is the deterministic keyword classifier. It covers the fixed
// command vocabulary of the device and doubles as the offline fallback
// when the model classifier is unreachable.
type Rules struct{}

func NewRules() *Rules { return &Rules{} }

var (
	reClock   = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	reJpTime  = regexp.MustCompile(`(\d{1,2})時(半|(\d{1,2})分)?`)
	reOrdinal = regexp.MustCompile(`(\d+)番目`)

	// longest match first so 十 never shadows it inside 十一
	kanjiDigits = []struct {
		kanji string
		n     int
	}{
		{"十一", 11}, {"十二", 12}, {"十", 10},
		{"一", 1}, {"二", 2}, {"三", 3}, {"四", 4}, {"五", 5},
		{"六", 6}, {"七", 7}, {"八", 8}, {"九", 9},
	}
)

func (r *Rules) Classify(_ context.Context, transcript string, _ *convo.Context) (Result, error) {
	t := strings.TrimSpace(transcript)
	lower := strings.ToLower(t)
	args := map[string]string{}

	if hhmm, ok := parseTime(t); ok {
		args["time"] = hhmm
	}
	if n, ok := parseOrdinal(t); ok {
		args["ordinal"] = strconv.Itoa(n)
	}

	out := func(c Category) (Result, error) {
		return Result{Category: c, Args: args, Query: t}, nil
	}

	switch {
	case containsAny(lower, "アラーム", "alarm", "目覚まし"):
		switch {
		case containsAny(lower, "消して", "削除", "キャンセル", "解除", "delete", "cancel"):
			return out(AlarmDelete)
		case containsAny(lower, "教えて", "一覧", "リスト", "何時", "list"):
			return out(AlarmList)
		case args["time"] != "" || containsAny(lower, "セット", "かけて", "設定", "set"):
			return out(AlarmSet)
		default:
			return out(AlarmList)
		}

	case containsAny(lower, "メール", "mail"):
		switch {
		case containsAny(lower, "返信", "reply"):
			return out(MailReply)
		case containsAny(lower, "送って", "送信", "send"):
			if containsAny(lower, "写真", "photo", "picture") {
				args["attach_photo"] = "true"
			}
			return out(MailSend)
		default:
			return out(MailQuery)
		}

	case containsAny(lower, "メッセージ", "伝言", "voice message"):
		if containsAny(lower, "送って", "送信", "伝えて", "send") {
			return out(MessagingSend)
		}
		return out(MessagingQuery)

	case containsAny(lower, "写真", "カメラ", "photo", "picture", "camera"):
		if containsAny(lower, "撮って", "撮影", "take") {
			return out(CameraCapture)
		}
		return out(CameraQuery)

	case containsAny(lower, "見えて", "何が見える", "what do you see"):
		return out(CameraQuery)
	}

	return out(Unknown)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// parseTime normalizes "7時", "7時半", "19時30分" and "7:30" to HH:MM.
func parseTime(s string) (string, bool) {
	if m := reClock.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h < 24 && min < 60 {
			return fmt.Sprintf("%02d:%02d", h, min), true
		}
	}
	if m := reJpTime.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 24 {
			return "", false
		}
		min := 0
		if m[2] == "半" {
			min = 30
		} else if m[3] != "" {
			min, _ = strconv.Atoi(m[3])
		}
		if min < 60 {
			return fmt.Sprintf("%02d:%02d", h, min), true
		}
	}
	return "", false
}

func parseOrdinal(s string) (int, bool) {
	if m := reOrdinal.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return n, true
		}
	}
	for _, d := range kanjiDigits {
		if strings.Contains(s, d.kanji+"番目") || strings.Contains(s, d.kanji+"つ目") {
			return d.n, true
		}
	}
	return 0, false
}
