package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/hotaka0908/raspi-voice/internal/alarm"
	"github.com/hotaka0908/raspi-voice/internal/announce"
	"github.com/hotaka0908/raspi-voice/internal/audio"
	"github.com/hotaka0908/raspi-voice/internal/button"
	"github.com/hotaka0908/raspi-voice/internal/camera"
	"github.com/hotaka0908/raspi-voice/internal/config"
	"github.com/hotaka0908/raspi-voice/internal/convo"
	"github.com/hotaka0908/raspi-voice/internal/handler"
	"github.com/hotaka0908/raspi-voice/internal/intent"
	"github.com/hotaka0908/raspi-voice/internal/ipc"
	"github.com/hotaka0908/raspi-voice/internal/mail"
	"github.com/hotaka0908/raspi-voice/internal/notify"
	"github.com/hotaka0908/raspi-voice/internal/proxy"
	"github.com/hotaka0908/raspi-voice/internal/relay"
	"github.com/hotaka0908/raspi-voice/internal/session"
	"github.com/hotaka0908/raspi-voice/internal/speech"
	"github.com/hotaka0908/raspi-voice/internal/store"
	"github.com/hotaka0908/raspi-voice/internal/wifi"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address (empty = direct)")
	noButton := cli.Bool("no-button", false, "Skip GPIO, drive via necklace-ctl only")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	cfg, err := config.Load()
	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(1)
	}
	if cfg.APIKey == "" {
		log.Error("OPENAI_API_KEY not set")
		os.Exit(1)
	}

	var httpClient *http.Client
	if *proxyAddr != "" {
		httpClient, err = proxy.NewSocksClient(*proxyAddr, cfg.ProviderTimeout)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", *proxyAddr, "err", err)
			os.Exit(1)
		}
		log.Debug("Loaded proxy")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := openai.NewClient(opts...)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("Failed to open store", "path", cfg.DBPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	gw := audio.NewGateway(cfg.SampleRate, cfg.OutRate)
	if err := gw.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer gw.Close()

	log.Debug("Loaded audio gateway")

	sp := speech.New(client, speech.Config{
		WhisperModel: cfg.WhisperModel,
		TTSModel:     cfg.TTSModel,
		Voice:        cfg.Voice,
		Speed:        cfg.Speed,
		Language:     cfg.Language,
	})
	cues := notify.NewPlayer(cfg.OutRate, cfg.CuePath)
	cx := convo.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Gmail is optional: missing credentials disable mail, not the daemon.
	var mailer handler.Mailer
	if _, err := os.Stat(cfg.GmailCredentials); err == nil {
		gmailHTTP, err := mail.Authenticate(ctx, cfg.GmailCredentials, cfg.GmailToken)
		if err != nil {
			log.Warn("Gmail auth failed, mail disabled", "err", err)
		} else {
			mailer = mail.NewClient(gmailHTTP)
			log.Debug("Loaded gmail")
		}
	} else {
		log.Warn("Gmail credentials not found, mail disabled", "path", cfg.GmailCredentials)
	}

	queue := announce.NewQueue(cfg.AnnounceMaxAge)
	unread := &relay.Unread{}

	// The relay is optional too.
	var sender handler.Sender
	if cfg.RelayURL != "" {
		rc, err := relay.Dial(cfg.RelayURL, cfg.DeviceName)
		if err != nil {
			log.Warn("Relay unreachable, messaging disabled", "url", cfg.RelayURL, "err", err)
		} else {
			defer rc.Close()
			sender = rc
			poller := relay.NewPoller(rc, st, sp, queue, unread, cfg.PollTick)
			go poller.Run(ctx)
			log.Debug("Loaded relay")
		}
	}

	cam := &camera.Still{Command: cfg.CameraCommand}

	router := intent.NewRouter(intent.NewRules(), intent.NewModel(client, cfg.ChatModel),
		handler.NewChat(client, cfg.ChatModel), cx)
	router.Register(handler.NewMail(mailer),
		intent.MailQuery, intent.MailSend, intent.MailReply)
	router.Register(handler.NewAlarm(st),
		intent.AlarmSet, intent.AlarmList, intent.AlarmDelete)
	router.Register(handler.NewCamera(cam, client, cfg.ChatModel),
		intent.CameraCapture, intent.CameraQuery)
	router.Register(handler.NewMessaging(sender, sp, unread),
		intent.MessagingSend, intent.MessagingQuery)

	go alarm.NewScheduler(st, queue, cfg.AlarmTick).Run(ctx)
	go wifi.NewMonitor(cfg.WifiPrefs, &wifi.NMCLI{}, cfg.WifiTick).Run(ctx)

	edges := make(chan button.Edge, 8)

	if !*noButton {
		gpio := button.NewGPIO(cfg.ButtonPin, 10*time.Millisecond, 100*time.Millisecond, edges)
		if err := gpio.Export(); err != nil {
			log.Error("Failed to export button gpio", "pin", cfg.ButtonPin, "err", err)
			os.Exit(1)
		}
		go gpio.Run(ctx)
		log.Debug("Loaded button", "pin", cfg.ButtonPin)
	}

	if err := ipc.StartServer(cfg.SocketPath, func(msg ipc.ControlMessage) {
		switch msg.Cmd {
		case "press":
			button.Emit(edges, button.Edge{Kind: button.Press, At: time.Now()})
		case "release":
			button.Emit(edges, button.Edge{Kind: button.Release, At: time.Now()})
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
		}
	}); err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}

	log.Info("Boot up - successful")

	ctrl := session.NewController(gw, sp, router, cues, queue, session.Config{
		MinHold:         cfg.MinHold,
		MaxHold:         cfg.MaxHold,
		ProviderTimeout: cfg.ProviderTimeout,
		IdleTick:        cfg.IdleTick,
	})
	ctrl.Run(ctx, edges)

	log.Info("Shutting down")
}
