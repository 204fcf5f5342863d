package mail

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"田中 太郎" <tanaka@example.com>`, "tanaka@example.com"},
		{`Taro <taro@example.co.jp>`, "taro@example.co.jp"},
		{`bare@example.com`, "bare@example.com"},
		{` spaced@example.com `, "spaced@example.com"},
		{`no address here`, ""},
		{``, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractAddress(tt.in), tt.in)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"田中 太郎" <tanaka@example.com>`, "田中 太郎"},
		{`Taro <taro@example.com>`, "Taro"},
		{`bare@example.com`, "bare"},
		{``, "不明"},
		{`nameonly`, "nameonly"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DisplayName(tt.in), tt.in)
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 500))

	long := strings.Repeat("あ", 600)
	got := truncateRunes(long, 500)
	assert.Equal(t, strings.Repeat("あ", 500)+"...(以下省略)", got)
}

func TestPlainBodyPrefersTextPlain(t *testing.T) {
	enc := func(s string) string {
		return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(s))
	}
	p := payload{
		MimeType: "multipart/alternative",
		Parts: []payload{
			{MimeType: "text/html", Body: &partBody{Data: enc("<p>html</p>")}},
			{MimeType: "text/plain", Body: &partBody{Data: enc("plain text")}},
		},
	}
	assert.Equal(t, "plain text", plainBody(p))
}

func TestPlainBodyNested(t *testing.T) {
	enc := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte("deep"))
	p := payload{
		MimeType: "multipart/mixed",
		Parts: []payload{
			{
				MimeType: "multipart/alternative",
				Parts: []payload{
					{MimeType: "text/plain", Body: &partBody{Data: enc}},
				},
			},
		},
	}
	assert.Equal(t, "deep", plainBody(p))
}

func TestBuildMIMEPlain(t *testing.T) {
	raw, err := buildMIME("to@example.com", "件名", "本文です", nil, "")
	require.NoError(t, err)
	s := string(raw)

	assert.Contains(t, s, "To: to@example.com\r\n")
	assert.Contains(t, s, "Subject: =?utf-8?q?")
	assert.Contains(t, s, `Content-Type: text/plain; charset="UTF-8"`)
	assert.True(t, strings.HasSuffix(s, "本文です"))
}

func TestBuildMIMEThreadingHeaders(t *testing.T) {
	raw, err := buildMIME("to@example.com", "Re: 件名", "body", map[string]string{
		"In-Reply-To": "<abc@mail>",
		"References":  "<abc@mail>",
	}, "")
	require.NoError(t, err)
	s := string(raw)

	assert.Contains(t, s, "In-Reply-To: <abc@mail>\r\n")
	assert.Contains(t, s, "References: <abc@mail>\r\n")
}

func TestBuildMIMEAttachment(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "shot.jpg")
	require.NoError(t, os.WriteFile(photo, []byte{0xff, 0xd8, 0xff, 0xe0}, 0o644))

	raw, err := buildMIME("to@example.com", "写真", "添付します", nil, photo)
	require.NoError(t, err)
	s := string(raw)

	assert.Contains(t, s, `multipart/mixed; boundary="necklace-boundary-1"`)
	assert.Contains(t, s, `Content-Type: image/jpeg; name="shot.jpg"`)
	assert.Contains(t, s, `Content-Disposition: attachment; filename="shot.jpg"`)
	assert.Contains(t, s, "Content-Transfer-Encoding: base64")
	assert.Contains(t, s, base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff, 0xe0}))
	assert.Contains(t, s, "--necklace-boundary-1--\r\n")
}

func TestBuildMIMEAttachmentMissingFile(t *testing.T) {
	_, err := buildMIME("to@example.com", "写真", "body", nil, "/nonexistent.jpg")
	assert.Error(t, err)
}

func TestEmailFromHeadersDefaults(t *testing.T) {
	e := emailFromHeaders(message{
		ID: "m1",
		Payload: payload{Headers: []header{
			{Name: "From", Value: "sato@example.com"},
		}},
	})
	assert.Equal(t, "m1", e.ID)
	assert.Equal(t, "sato", e.FromName)
	assert.Equal(t, "(件名なし)", e.Subject)
}
