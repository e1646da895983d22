// Package digest sends the owner a daily reading list, coding-activity notes
// and the occasional idle remark.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"errand-bot/pkg/errand"
	"errand-bot/pkg/schedule"
)

const commandName = "digest"

// Service registry keys of the digest sources.
const (
	ServiceProducts = "digest.products"
	ServiceArticles = "digest.articles"
	ServiceActivity = "digest.activity"
)

// DefaultActivityInterval is how often coding activity is polled.
const DefaultActivityInterval = 30 * time.Minute

// Config controls where and when the digest jobs run.
type Config struct {
	// Owner is the conversation that receives scheduled messages. Jobs stay
	// idle when Owner.ID is empty.
	Owner errand.Conversation
	// Sink optionally pins the driver that delivers scheduled messages.
	Sink *errand.SinkRef
	// DailyAt is the UTC time of the daily digest.
	DailyAt schedule.TimeOfDay
	// ActivityInterval is the coding-activity poll period. Zero uses DefaultActivityInterval.
	ActivityInterval time.Duration
	// IdleInterval is the idle chatter period. Zero disables chatter.
	IdleInterval time.Duration
}

// DefaultConfig returns a config with an 08:00 UTC digest and no owner.
func DefaultConfig() Config {
	return Config{
		DailyAt:          schedule.TimeOfDay{Hour: 8},
		ActivityInterval: DefaultActivityInterval,
	}
}

// Product is one trending product.
type Product struct {
	Name    string
	Tagline string
	URL     string
	Votes   int
}

// Article is one popular article.
type Article struct {
	Title     string
	URL       string
	Reactions int
}

// Activity is the busiest project and language of the day.
type Activity struct {
	Project         string
	ProjectSeconds  float64
	Language        string
	LanguageSeconds float64
}

// ProductSource lists trending developer products.
type ProductSource interface {
	TrendingDevTools(ctx context.Context) ([]Product, error)
}

// ArticleSource lists popular developer articles.
type ArticleSource interface {
	TopArticles(ctx context.Context) ([]Article, error)
}

// ActivitySource reports today's coding activity.
type ActivitySource interface {
	Enabled() bool
	Today(ctx context.Context) (Activity, error)
}

// Module owns the scheduled owner notifications.
type Module struct {
	cfg Config

	dispatcher  errand.SinkDispatcher
	products    ProductSource
	articles    ArticleSource
	activity    ActivitySource
	fingerprint errand.Collection[errand.ActivityFingerprint]
	logger      *slog.Logger

	now  func() time.Time
	pick func(n int) int

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New creates a digest module.
func New(cfg Config) *Module {
	if cfg.Owner.ID != "" && cfg.Owner.Type == "" {
		cfg.Owner.Type = errand.ConversationTypePrivate
	}
	if cfg.ActivityInterval <= 0 {
		cfg.ActivityInterval = DefaultActivityInterval
	}

	return &Module{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		pick:   rand.IntN,
	}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "digest"
}

// Spec declares the on-demand digest command.
func (m *Module) Spec() errand.ModuleSpec {
	return errand.ModuleSpec{
		Handlers: []errand.ModuleHandler{
			{
				Capability: errand.Capability{
					Name:        "digest-command-handler",
					Description: "builds the developer digest on request",
					Interest: errand.InterestSet{
						Kinds:          []errand.EventKind{errand.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
					RequiredServices: []string{
						errand.ServiceSinkDispatcher,
						ServiceProducts,
						ServiceArticles,
						ServiceActivity,
						errand.CollectionService(errand.CollectionActivity),
					},
				},
				Subscription: errand.NewDefaultSubscriptionSpec("digest-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []errand.CommandSpec{
			{Name: commandName, Description: "today's developer reading list"},
		},
	}
}

// OnRegister resolves the dispatcher, the digest sources and the fingerprint collection.
func (m *Module) OnRegister(_ context.Context, runtime errand.ModuleRuntime) error {
	services := runtime.Services()
	dispatcher, err := errand.ResolveAs[errand.SinkDispatcher](services, errand.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("digest resolve sink dispatcher: %w", err)
	}
	products, err := errand.ResolveAs[ProductSource](services, ServiceProducts)
	if err != nil {
		return fmt.Errorf("digest resolve products: %w", err)
	}
	articles, err := errand.ResolveAs[ArticleSource](services, ServiceArticles)
	if err != nil {
		return fmt.Errorf("digest resolve articles: %w", err)
	}
	activity, err := errand.ResolveAs[ActivitySource](services, ServiceActivity)
	if err != nil {
		return fmt.Errorf("digest resolve activity: %w", err)
	}
	fingerprint, err := errand.ResolveCollection[errand.ActivityFingerprint](services, errand.CollectionActivity)
	if err != nil {
		return fmt.Errorf("digest resolve activity fingerprint: %w", err)
	}
	logger, err := errand.ResolveAs[*slog.Logger](services, errand.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger.With("module", m.Name())
	case errors.Is(err, errand.ErrServiceNotFound):
	default:
		return fmt.Errorf("digest resolve logger: %w", err)
	}

	m.dispatcher = dispatcher
	m.products = products
	m.articles = articles
	m.activity = activity
	m.fingerprint = fingerprint

	return nil
}

// OnStart launches the daily digest, the activity watcher and idle chatter.
func (m *Module) OnStart(ctx context.Context) error {
	if m.cfg.Owner.ID == "" {
		m.logger.InfoContext(ctx, "digest owner conversation not configured, scheduled jobs disabled")
		return nil
	}
	target := m.ownerTarget()
	if err := target.Validate(); err != nil {
		return fmt.Errorf("digest start: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("digest start: already running")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.running = true

	m.spawn(func() error {
		return schedule.Daily(runCtx, m.cfg.DailyAt, m.sendDailyDigest)
	})
	if m.activity.Enabled() {
		m.spawn(func() error {
			return schedule.Every(runCtx, m.cfg.ActivityInterval, true, m.checkActivity)
		})
	} else {
		m.logger.InfoContext(ctx, "coding activity source not configured, watcher disabled")
	}
	if m.cfg.IdleInterval > 0 {
		m.spawn(func() error {
			return schedule.Every(runCtx, m.cfg.IdleInterval, false, m.sendIdleChatter)
		})
	}
	m.logger.InfoContext(ctx, "digest jobs started",
		"owner", m.cfg.Owner.ID,
		"daily_at", m.cfg.DailyAt.String(),
		"idle_interval", m.cfg.IdleInterval,
	)

	return nil
}

// OnShutdown cancels the jobs and waits for them to return.
func (m *Module) OnShutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("digest shutdown: %w", ctx.Err())
	}
}

func (m *Module) spawn(job func() error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := job(); err != nil {
			m.logger.Error("digest job stopped", "error", err)
		}
	}()
}

func (m *Module) ownerTarget() errand.OutboundTarget {
	target := errand.OutboundTarget{Conversation: m.cfg.Owner}
	if m.cfg.Sink != nil && !m.cfg.Sink.IsZero() {
		sink := *m.cfg.Sink
		target.Sink = &sink
	}

	return target
}

func (m *Module) sendOwner(ctx context.Context, text string) error {
	_, err := m.dispatcher.SendMessage(ctx, errand.SendMessageRequest{
		Target:             m.ownerTarget(),
		Text:               text,
		DisableLinkPreview: true,
	})

	return err
}

func (m *Module) handleCommand(ctx context.Context, event *errand.Event) error {
	if event == nil || event.Command == nil || event.Command.Name != commandName {
		return nil
	}

	text, err := m.buildDigest(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "on-demand digest failed", "error", err)
		text = digestApology
	}

	target, err := errand.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("digest derive outbound target: %w", err)
	}
	request := errand.SendMessageRequest{Target: target, Text: text, DisableLinkPreview: true}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("digest send reply: %w", err)
	}

	return nil
}

// idleLines are offered to the owner every IdleInterval when that is set.
var idleLines = []string{
	"Any errands I might see to, good people?",
	"Might I be of service to anyone?",
	"*Adjusts cap* Ready to help, as ever!",
	"Consider me at your disposal, should you need anything!",
	"Begging your pardon, but I'm here if needed!",
	"*Dusts off jacket* Might anyone require assistance today?",
	"*Straightens worn bow tie* Ready and willing to serve!",
	"*Polishes single brass button* Whatever the task, I'm here to assist!",
	"Might there be any tasks requiring attention? Do say the word!",
}

func (m *Module) sendIdleChatter(ctx context.Context) {
	line := idleLines[m.pick(len(idleLines))]
	if err := m.sendOwner(ctx, line); err != nil && ctx.Err() == nil {
		m.logger.WarnContext(ctx, "idle chatter failed", "error", err)
	}
}

var (
	_ errand.Module          = (*Module)(nil)
	_ errand.ModuleRegistrar = (*Module)(nil)
)
