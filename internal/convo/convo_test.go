package convo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnsKeepTrailingWindow(t *testing.T) {
	cx := New()
	for i := 0; i < 15; i++ {
		cx.AppendTurn("user", fmt.Sprintf("turn %d", i))
	}

	turns := cx.Turns()
	require.Len(t, turns, 10)
	assert.Equal(t, "turn 5", turns[0].Content)
	assert.Equal(t, "turn 14", turns[9].Content)
}

func TestTurnsReturnsCopy(t *testing.T) {
	cx := New()
	cx.AppendTurn("user", "original")

	turns := cx.Turns()
	turns[0].Content = "mutated"

	assert.Equal(t, "original", cx.Turns()[0].Content)
}

func TestEmailByOrdinal(t *testing.T) {
	cx := New()
	cx.SetEmails([]EmailRef{
		{ID: "a", Subject: "first"},
		{ID: "b", Subject: "second"},
	})

	ref, ok := cx.EmailByOrdinal(1)
	require.True(t, ok)
	assert.Equal(t, "a", ref.ID)

	ref, ok = cx.EmailByOrdinal(2)
	require.True(t, ok)
	assert.Equal(t, "b", ref.ID)

	_, ok = cx.EmailByOrdinal(0)
	assert.False(t, ok)
	_, ok = cx.EmailByOrdinal(3)
	assert.False(t, ok)
}

func TestSetEmailsReplacesListing(t *testing.T) {
	cx := New()
	cx.SetEmails([]EmailRef{{ID: "a"}})
	cx.SetEmails(nil)

	assert.Zero(t, cx.EmailCount())
	_, ok := cx.EmailByOrdinal(1)
	assert.False(t, ok)
}

func TestLastPhoto(t *testing.T) {
	cx := New()
	assert.Empty(t, cx.LastPhoto())

	cx.SetLastPhoto("/tmp/a.jpg")
	assert.Equal(t, "/tmp/a.jpg", cx.LastPhoto())
}
