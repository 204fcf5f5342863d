package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hotaka0908/raspi-voice/internal/convo"
	"github.com/hotaka0908/raspi-voice/internal/fault"
	"github.com/hotaka0908/raspi-voice/internal/intent"
	"github.com/hotaka0908/raspi-voice/internal/store"
)

// Alarm sets, lists and deletes persisted alarms by voice. The
// background scheduler is the only thing that ever marks them fired.
type Alarm struct {
	store *store.Store
	now   func() time.Time
}

func NewAlarm(st *store.Store) *Alarm {
	return &Alarm{store: st, now: time.Now}
}

func (h *Alarm) Handle(ctx context.Context, res intent.Result, _ *convo.Context) (intent.Reply, error) {
	switch res.Category {
	case intent.AlarmSet:
		return h.set(res)
	case intent.AlarmList:
		return h.list()
	case intent.AlarmDelete:
		return h.delete(res)
	}
	return intent.Reply{}, fault.New(fault.SideEffect, fmt.Errorf("alarm: unexpected category %s", res.Category))
}

func (h *Alarm) set(res intent.Result) (intent.Reply, error) {
	hhmm := res.Args["time"]
	if hhmm == "" {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"アラームの時刻がわかりませんでした。", fmt.Errorf("alarm set without time"))
	}

	fireAt, err := NextOccurrence(hhmm, h.now())
	if err != nil {
		return intent.Reply{}, fault.Spoken(fault.SideEffect,
			"アラームの時刻がわかりませんでした。", err)
	}

	a, err := h.store.AddAlarm(fireAt, res.Args["label"])
	if err != nil {
		return intent.Reply{}, fault.Spoken(fault.Persistence,
			"アラームを保存できませんでした。", err)
	}

	return intent.Reply{Text: fmt.Sprintf("%sにアラームをセットしました。", spokenClock(a.FireAt))}, nil
}

func (h *Alarm) list() (intent.Reply, error) {
	alarms, err := h.store.ListAlarms()
	if err != nil {
		return intent.Reply{}, fault.Spoken(fault.Persistence,
			"アラームを確認できませんでした。", err)
	}

	pending := pendingOnly(alarms)
	if len(pending) == 0 {
		return intent.Reply{Text: "アラームはセットされていません。"}, nil
	}

	lines := make([]string, 0, len(pending)+1)
	lines = append(lines, fmt.Sprintf("アラームが%d件あります。", len(pending)))
	for i, a := range pending {
		line := fmt.Sprintf("%d番、%s", i+1, spokenClock(a.FireAt))
		if a.Label != "" {
			line += "、" + a.Label
		}
		lines = append(lines, line+"。")
	}
	return intent.Reply{Text: strings.Join(lines, " ")}, nil
}

func (h *Alarm) delete(res intent.Result) (intent.Reply, error) {
	if ord := res.Args["ordinal"]; ord != "" {
		n, err := strconv.Atoi(ord)
		if err != nil || n < 1 {
			return intent.Reply{}, fault.Spoken(fault.SideEffect,
				"何番目のアラームかわかりませんでした。", fmt.Errorf("bad ordinal %q", ord))
		}

		alarms, err := h.store.ListAlarms()
		if err != nil {
			return intent.Reply{}, fault.Spoken(fault.Persistence,
				"アラームを確認できませんでした。", err)
		}
		pending := pendingOnly(alarms)
		if n > len(pending) {
			return intent.Reply{}, fault.Spoken(fault.SideEffect,
				"指定されたアラームが見つかりません。", fmt.Errorf("ordinal %d of %d alarms", n, len(pending)))
		}

		target := pending[n-1]
		if err := h.store.DeleteAlarm(target.ID); err != nil {
			return intent.Reply{}, fault.Spoken(fault.Persistence,
				"アラームを削除できませんでした。", err)
		}
		return intent.Reply{Text: fmt.Sprintf("%sのアラームを削除しました。", spokenClock(target.FireAt))}, nil
	}

	n, err := h.store.DeleteAllAlarms()
	if err != nil {
		return intent.Reply{}, fault.Spoken(fault.Persistence,
			"アラームを削除できませんでした。", err)
	}
	if n == 0 {
		return intent.Reply{Text: "削除するアラームはありません。"}, nil
	}
	return intent.Reply{Text: fmt.Sprintf("アラームを%d件削除しました。", n)}, nil
}

func pendingOnly(alarms []store.Alarm) []store.Alarm {
	var out []store.Alarm
	for _, a := range alarms {
		if !a.Fired {
			out = append(out, a)
		}
	}
	return out
}

// NextOccurrence resolves "HH:MM" to the next wall-clock time it
// happens: today if still ahead, otherwise tomorrow.
func NextOccurrence(hhmm string, now time.Time) (time.Time, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("bad time %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("bad hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("bad minute in %q", hhmm)
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

func spokenClock(t time.Time) string {
	if t.Minute() == 0 {
		return fmt.Sprintf("%d時", t.Hour())
	}
	return fmt.Sprintf("%d時%d分", t.Hour(), t.Minute())
}
