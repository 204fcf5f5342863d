package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Transient, KindOf(Transientf("rate limited")))
	assert.Equal(t, Persistence, KindOf(New(Persistence, errors.New("db locked"))))

	// untyped errors default to SideEffect
	assert.Equal(t, SideEffect, KindOf(errors.New("plain")))
}

func TestKindOfSurvivesWrapping(t *testing.T) {
	inner := New(Transient, errors.New("timeout"))
	wrapped := fmt.Errorf("transcribe: %w", inner)

	assert.Equal(t, Transient, KindOf(wrapped))
	assert.True(t, Is(wrapped, Transient))
	assert.False(t, Is(wrapped, SideEffect))
}

func TestSayOf(t *testing.T) {
	err := Spoken(SideEffect, "送信できませんでした。", errors.New("boom"))
	assert.Equal(t, "送信できませんでした。", SayOf(err))

	wrapped := fmt.Errorf("mail: %w", err)
	assert.Equal(t, "送信できませんでした。", SayOf(wrapped))

	assert.Empty(t, SayOf(errors.New("plain")))
	assert.Empty(t, SayOf(New(Transient, errors.New("x"))))
}

func TestErrorString(t *testing.T) {
	err := New(Transient, errors.New("timeout"))
	assert.Equal(t, "transient: timeout", err.Error())

	bare := &Fault{Kind: Startup}
	assert.Equal(t, "startup", bare.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := New(SideEffect, cause)
	assert.True(t, errors.Is(err, cause))
}
