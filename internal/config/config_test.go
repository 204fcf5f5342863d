package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotaka0908/raspi-voice/internal/wifi"
)

func TestParseWifiPrefsDefaults(t *testing.T) {
	prefs, err := parseWifiPrefs("")
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, wifi.Preference{SSID: "preconfigured", Priority: 100, Kind: wifi.KindHome}, prefs[0])
	assert.Equal(t, wifi.Preference{SSID: "Tethering_hotaka", Priority: 10, Kind: wifi.KindFallback}, prefs[1])
}

func TestParseWifiPrefsCustom(t *testing.T) {
	prefs, err := parseWifiPrefs("office:50:home, phone:5:fallback")
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, "office", prefs[0].SSID)
	assert.Equal(t, 50, prefs[0].Priority)
	assert.Equal(t, wifi.KindHome, prefs[0].Kind)
	assert.Equal(t, "phone", prefs[1].SSID)
}

func TestParseWifiPrefsMalformed(t *testing.T) {
	_, err := parseWifiPrefs("missing-fields")
	assert.Error(t, err)

	_, err = parseWifiPrefs("ssid:notanumber:home")
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "whisper-1", cfg.WhisperModel)
	assert.Equal(t, "gpt-4o-mini", cfg.ChatModel)
	assert.Equal(t, "nova", cfg.Voice)
	assert.InDelta(t, 1.2, cfg.Speed, 1e-9)
	assert.Equal(t, "ja", cfg.Language)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, 5, cfg.ButtonPin)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TTS_VOICE", "alloy")
	t.Setenv("MIN_HOLD", "500ms")
	t.Setenv("BUTTON_PIN", "17")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "alloy", cfg.Voice)
	assert.Equal(t, "500ms", cfg.MinHold.String())
	assert.Equal(t, 17, cfg.ButtonPin)
}
