package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotaka0908/raspi-voice/internal/convo"
)

type fixedClassifier struct {
	res Result
	err error
}

func (f *fixedClassifier) Classify(context.Context, string, *convo.Context) (Result, error) {
	return f.res, f.err
}

type recordingHandler struct {
	got   Result
	reply Reply
}

func (h *recordingHandler) Handle(_ context.Context, res Result, _ *convo.Context) (Reply, error) {
	h.got = res
	return h.reply, nil
}

func TestRouterDispatchesRegisteredCategory(t *testing.T) {
	alarm := &recordingHandler{reply: Reply{Text: "set"}}
	chat := &recordingHandler{reply: Reply{Text: "chat"}}
	primary := &fixedClassifier{res: Result{Category: AlarmSet, Args: map[string]string{"time": "07:00"}}}

	r := NewRouter(primary, nil, chat, convo.New())
	r.Register(alarm, AlarmSet, AlarmList, AlarmDelete)

	res, reply, err := r.Dispatch(context.Background(), "7時にアラーム")
	require.NoError(t, err)
	assert.Equal(t, AlarmSet, res.Category)
	assert.Equal(t, "set", reply.Text)
	assert.Equal(t, "07:00", alarm.got.Args["time"])
	assert.Equal(t, "7時にアラーム", alarm.got.Query)
}

func TestRouterFallsBackOnClassifierError(t *testing.T) {
	chat := &recordingHandler{reply: Reply{Text: "chat"}}
	primary := &fixedClassifier{err: errors.New("model unreachable")}
	fallback := &fixedClassifier{res: Result{Category: MailQuery}}
	mailH := &recordingHandler{reply: Reply{Text: "mail"}}

	r := NewRouter(primary, fallback, chat, convo.New())
	r.Register(mailH, MailQuery)

	_, reply, err := r.Dispatch(context.Background(), "メール確認")
	require.NoError(t, err)
	assert.Equal(t, "mail", reply.Text)
}

func TestRouterUnknownGoesToChat(t *testing.T) {
	chat := &recordingHandler{reply: Reply{Text: "chat"}}
	primary := &fixedClassifier{res: Result{Category: Unknown}}

	r := NewRouter(primary, nil, chat, convo.New())

	res, reply, err := r.Dispatch(context.Background(), "こんにちは")
	require.NoError(t, err)
	assert.Equal(t, Unknown, res.Category)
	assert.Equal(t, "chat", reply.Text)
	assert.Equal(t, "こんにちは", chat.got.Query)
}

func TestRouterUnregisteredGoesToChat(t *testing.T) {
	chat := &recordingHandler{reply: Reply{Text: "chat"}}
	primary := &fixedClassifier{res: Result{Category: CameraCapture}}

	r := NewRouter(primary, nil, chat, convo.New())

	_, reply, err := r.Dispatch(context.Background(), "写真撮って")
	require.NoError(t, err)
	assert.Equal(t, "chat", reply.Text)
}

func TestRouterBothClassifiersFail(t *testing.T) {
	chat := &recordingHandler{reply: Reply{Text: "chat"}}
	primary := &fixedClassifier{err: errors.New("down")}
	fallback := &fixedClassifier{err: errors.New("also down")}

	r := NewRouter(primary, fallback, chat, convo.New())

	res, reply, err := r.Dispatch(context.Background(), "なにか")
	require.NoError(t, err)
	assert.Equal(t, Unknown, res.Category)
	assert.Equal(t, "chat", reply.Text)
}
