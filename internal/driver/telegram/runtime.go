package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"errand-bot/pkg/errand"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/mitchellh/go-homedir"
)

// EnvBotToken supplies the bot token when the driver config leaves it empty.
const EnvBotToken = "ERRAND_TELEGRAM_BOT_TOKEN"

const (
	defaultRuntimeSessionFile  = "~/.errand-bot/telegram/session.json"
	defaultRuntimePublishDelay = 2 * time.Second
	defaultRuntimeAuthTimeout  = 30 * time.Second
	defaultRuntimeUpdateBuffer = 256
)

// runtimeConfig is the "config" object of a telegram entry in the drivers list.
type runtimeConfig struct {
	AppID          int    `json:"app_id"`
	AppHash        string `json:"app_hash"`
	BotToken       string `json:"bot_token"`
	PublishTimeout string `json:"publish_timeout"`
	AuthTimeout    string `json:"auth_timeout"`
	UpdateBuffer   int    `json:"update_buffer"`
	SessionFile    string `json:"session_file"`
}

type parsedRuntimeConfig struct {
	appID          int
	appHash        string
	botToken       string
	publishTimeout time.Duration
	authTimeout    time.Duration
	updateBuffer   int
	sessionFile    string
}

// BuildRuntimeFromConfig assembles one bot account: the gotd client, the
// inbound driver and the outbound dispatcher, sharing one peer cache.
func BuildRuntimeFromConfig(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (errand.SinkRef, errand.Driver, errand.SinkDispatcher, error) {
	fail := func(step string, err error) (errand.SinkRef, errand.Driver, errand.SinkDispatcher, error) {
		return errand.SinkRef{}, nil, nil, fmt.Errorf("build telegram runtime %s: %s: %w", name, step, err)
	}

	cfg, err := parseRuntimeConfig(rawConfig, os.LookupEnv)
	if err != nil {
		return fail("parse config", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("driver", name)
	ref := errand.SinkRef{Platform: DriverPlatform, ID: name}

	storage, err := newGotdSessionStorage(cfg.sessionFile)
	if err != nil {
		return fail("session storage", err)
	}
	updates := NewGotdUpdateChannel(cfg.updateBuffer)
	client := gotdtelegram.NewClient(cfg.appID, cfg.appHash, gotdtelegram.Options{
		UpdateHandler:  updates,
		SessionStorage: storage,
	})

	peers := NewPeerCache()
	bot := &botSession{client: client, cfg: cfg, logger: logger, self: &SelfIdentity{}}
	reportError := func(ctx context.Context, err error) {
		logger.ErrorContext(ctx, "telegram driver async error", "error", err)
	}

	source, err := NewGotdSource(
		bot,
		updates,
		NewDefaultGotdUpdateMapper(WithPeerCache(peers), WithSelfIdentity(bot.self)),
		reportError,
	)
	if err != nil {
		return fail("update source", err)
	}
	sink, err := NewOutboundDispatcher(
		client,
		peers,
		WithOutboundTimeout(cfg.publishTimeout),
		WithOutboundLogger(logger),
		WithSinkRef(ref),
	)
	if err != nil {
		return fail("sink dispatcher", err)
	}
	driver, err := NewDriver(
		source,
		NewDefaultDecoder(),
		WithName(name),
		WithPublishTimeout(cfg.publishTimeout),
		WithErrorHandler(reportError),
		WithCallbackAnswerer(sink),
	)
	if err != nil {
		return fail("driver", err)
	}

	return ref, driver, sink, nil
}

// parseRuntimeConfig applies defaults and checks credentials. A bot token in
// the config wins over EnvBotToken.
func parseRuntimeConfig(raw []byte, lookupEnv func(string) (string, bool)) (parsedRuntimeConfig, error) {
	if len(raw) == 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("missing config")
	}
	var file runtimeConfig
	if err := json.Unmarshal(raw, &file); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := parsedRuntimeConfig{
		appID:        file.AppID,
		appHash:      strings.TrimSpace(file.AppHash),
		botToken:     strings.TrimSpace(file.BotToken),
		updateBuffer: file.UpdateBuffer,
		sessionFile:  strings.TrimSpace(file.SessionFile),
	}
	if cfg.botToken == "" && lookupEnv != nil {
		token, _ := lookupEnv(EnvBotToken)
		cfg.botToken = strings.TrimSpace(token)
	}
	if cfg.updateBuffer <= 0 {
		cfg.updateBuffer = defaultRuntimeUpdateBuffer
	}
	if cfg.sessionFile == "" {
		cfg.sessionFile = defaultRuntimeSessionFile
	}

	var err error
	cfg.publishTimeout, err = durationOr("publish_timeout", file.PublishTimeout, defaultRuntimePublishDelay)
	if err != nil {
		return parsedRuntimeConfig{}, err
	}
	cfg.authTimeout, err = durationOr("auth_timeout", file.AuthTimeout, defaultRuntimeAuthTimeout)
	if err != nil {
		return parsedRuntimeConfig{}, err
	}

	switch {
	case cfg.appID <= 0:
		return parsedRuntimeConfig{}, fmt.Errorf("app_id must be > 0")
	case cfg.appHash == "":
		return parsedRuntimeConfig{}, fmt.Errorf("app_hash is required")
	case cfg.botToken == "":
		return parsedRuntimeConfig{}, fmt.Errorf("bot_token is required (or set %s)", EnvBotToken)
	}

	return cfg, nil
}

// durationOr parses a positive Go duration, returning fallback for blank input.
func durationOr(field string, raw string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(strings.TrimSpace(raw))
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %w", field, err)
	case value <= 0:
		return 0, fmt.Errorf("%s: must be > 0, got %s", field, value)
	}

	return value, nil
}

// newGotdSessionStorage expands a leading ~ and creates the session directory
// with owner-only permissions, since the file holds the authorization key.
func newGotdSessionStorage(path string) (*session.FileStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty session file path")
	}

	expanded, err := homedir.Expand(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("expand session file path: %w", err)
	}
	absolute, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("resolve session file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absolute), 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	return &session.FileStorage{Path: absolute}, nil
}

// botSession runs the gotd client and signs the bot in before any update is
// read. It satisfies GotdSessionClient.
type botSession struct {
	client *gotdtelegram.Client
	cfg    parsedRuntimeConfig
	logger *slog.Logger
	self   *SelfIdentity
}

func (b *botSession) Run(ctx context.Context, fn func(runCtx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("run telegram session: nil callback")
	}

	err := b.client.Run(ctx, func(runCtx context.Context) error {
		if err := b.signIn(runCtx); err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
		return fn(runCtx)
	})
	if err != nil {
		return fmt.Errorf("run telegram session: %w", err)
	}

	return nil
}

// signIn reuses a stored authorization when it is still valid, then records
// who the bot is for mention detection.
func (b *botSession) signIn(ctx context.Context) error {
	authCtx, cancel := context.WithTimeout(ctx, b.cfg.authTimeout)
	defer cancel()

	status, err := b.client.Auth().Status(authCtx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	how := "session file"
	if !status.Authorized {
		if _, err := b.client.Auth().Bot(authCtx, b.cfg.botToken); err != nil {
			return fmt.Errorf("bot token: %w", err)
		}
		how = "bot token"
	}

	account, err := b.client.Self(authCtx)
	if err != nil {
		return fmt.Errorf("resolve bot account: %w", err)
	}
	b.self.Set(account.ID, account.Username)
	b.logger.InfoContext(ctx, "telegram bot ready",
		"authorized_by", how,
		"session_file", b.cfg.sessionFile,
		"username", account.Username,
		"user_id", account.ID,
	)

	return nil
}
