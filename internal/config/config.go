// Package config collects every tunable into one immutable struct,
// built once at startup and passed into constructors. Values come from
// the environment (the daemon loads .env first); nothing here mutates
// at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hotaka0908/raspi-voice/internal/wifi"
)

type Config struct {
	// providers
	APIKey       string
	WhisperModel string
	ChatModel    string
	TTSModel     string
	Voice        string
	Speed        float64
	Language     string

	// audio
	SampleRate int // capture
	OutRate    int // speaker mixer
	CuePath    string

	// session timing
	MinHold         time.Duration
	MaxHold         time.Duration
	ProviderTimeout time.Duration
	IdleTick        time.Duration
	AnnounceMaxAge  time.Duration

	// button
	ButtonPin  int
	SocketPath string

	// persistence
	DBPath string

	// gmail
	GmailCredentials string
	GmailToken       string

	// relay
	RelayURL   string
	DeviceName string
	PollTick   time.Duration

	// background loops
	AlarmTick time.Duration
	WifiTick  time.Duration
	WifiPrefs []wifi.Preference

	// camera
	CameraCommand string
}

// Load builds the configuration from the environment. The API key is
// the one hard requirement; everything else has a device default.
func Load() (Config, error) {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".ai-necklace")

	cfg := Config{
		APIKey:       os.Getenv("OPENAI_API_KEY"),
		WhisperModel: envStr("WHISPER_MODEL", "whisper-1"),
		ChatModel:    envStr("CHAT_MODEL", "gpt-4o-mini"),
		TTSModel:     envStr("TTS_MODEL", "tts-1"),
		Voice:        envStr("TTS_VOICE", "nova"),
		Speed:        envFloat("TTS_SPEED", 1.2),
		Language:     envStr("LANGUAGE", "ja"),

		SampleRate: envInt("SAMPLE_RATE", 44100),
		OutRate:    envInt("OUT_RATE", 24000),
		CuePath:    os.Getenv("CUE_PATH"),

		MinHold:         envDur("MIN_HOLD", 300*time.Millisecond),
		MaxHold:         envDur("MAX_HOLD", 30*time.Second),
		ProviderTimeout: envDur("PROVIDER_TIMEOUT", 60*time.Second),
		IdleTick:        envDur("IDLE_TICK", 500*time.Millisecond),
		AnnounceMaxAge:  envDur("ANNOUNCE_MAX_AGE", 5*time.Minute),

		ButtonPin:  envInt("BUTTON_PIN", 5),
		SocketPath: envStr("SOCKET_PATH", "/tmp/necklace.sock"),

		DBPath: envStr("DB_PATH", filepath.Join(base, "necklace.sqlite")),

		GmailCredentials: envStr("GMAIL_CREDENTIALS", filepath.Join(base, "credentials.json")),
		GmailToken:       envStr("GMAIL_TOKEN", filepath.Join(base, "token.json")),

		RelayURL:   os.Getenv("RELAY_URL"),
		DeviceName: envStr("DEVICE_NAME", "necklace"),
		PollTick:   envDur("POLL_TICK", 20*time.Second),

		AlarmTick: envDur("ALARM_TICK", 2*time.Second),
		WifiTick:  envDur("WIFI_TICK", 30*time.Second),

		CameraCommand: envStr("CAMERA_COMMAND", "rpicam-still"),
	}

	prefs, err := parseWifiPrefs(os.Getenv("WIFI_NETWORKS"))
	if err != nil {
		return Config{}, err
	}
	cfg.WifiPrefs = prefs

	return cfg, nil
}

// parseWifiPrefs reads "ssid:priority:kind,..." with the device's two
// known networks as the default.
func parseWifiPrefs(raw string) ([]wifi.Preference, error) {
	if raw == "" {
		return []wifi.Preference{
			{SSID: "preconfigured", Priority: 100, Kind: wifi.KindHome},
			{SSID: "Tethering_hotaka", Priority: 10, Kind: wifi.KindFallback},
		}, nil
	}

	var prefs []wifi.Preference
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("bad WIFI_NETWORKS entry %q (want ssid:priority:kind)", entry)
		}
		prio, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("bad priority in WIFI_NETWORKS entry %q", entry)
		}
		prefs = append(prefs, wifi.Preference{
			SSID:     parts[0],
			Priority: prio,
			Kind:     wifi.NetKind(parts[2]),
		})
	}
	return prefs, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
