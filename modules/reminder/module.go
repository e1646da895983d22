// Package reminder serves the remind and timer commands and delivers them when due.
//
// Delivery is claim-then-send: a due record is marked sent inside one
// collection update before the notification goes out, and the mark is
// reverted when the send fails. The periodic scan and the in-process fast path
// both go through the same claim, so each record is delivered at most once and
// retried until it succeeds. A crash between claim and send drops that one
// notification rather than risk sending it twice.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"errand-bot/pkg/errand"
	"errand-bot/pkg/schedule"

	"github.com/google/uuid"
)

const (
	remindCommandName = "remind"
	timerCommandName  = "timer"

	// DefaultScanInterval is how often due reminders and timers are collected.
	DefaultScanInterval = time.Minute
)

// Option mutates reminder module configuration.
type Option func(*Module)

// WithScanInterval overrides DefaultScanInterval. Non-positive values are ignored.
func WithScanInterval(interval time.Duration) Option {
	return func(module *Module) {
		if interval > 0 {
			module.scanInterval = interval
		}
	}
}

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// Module owns the reminder and timer collections.
type Module struct {
	dispatcher errand.SinkDispatcher
	reminders  errand.Collection[errand.Reminder]
	timers     errand.Collection[errand.Timer]
	logger     *slog.Logger

	scanInterval time.Duration
	now          func() time.Time
	newID        func() string

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	running bool
	armed   map[string]*time.Timer
	wg      sync.WaitGroup
}

// New creates a reminder module.
func New(options ...Option) *Module {
	module := &Module{
		logger:       slog.Default(),
		scanInterval: DefaultScanInterval,
		now:          time.Now,
		newID:        uuid.NewString,
		armed:        make(map[string]*time.Timer),
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "reminder"
}

// Spec declares the remind and timer commands.
func (m *Module) Spec() errand.ModuleSpec {
	return errand.ModuleSpec{
		Handlers: []errand.ModuleHandler{
			{
				Capability: errand.Capability{
					Name:        "reminder-command-handler",
					Description: "schedules reminders and countdown timers",
					Interest: errand.InterestSet{
						Kinds:          []errand.EventKind{errand.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{remindCommandName, timerCommandName},
					},
					RequiredServices: []string{
						errand.ServiceSinkDispatcher,
						errand.CollectionService(errand.CollectionReminders),
						errand.CollectionService(errand.CollectionTimers),
					},
				},
				Subscription: errand.NewDefaultSubscriptionSpec("reminder-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []errand.CommandSpec{
			{
				Name:        remindCommandName,
				Usage:       "<task> in <N> minutes|hours|days",
				Description: "get a private nudge later",
			},
			{
				Name:        timerCommandName,
				Usage:       "<minutes>",
				Description: "start a countdown",
			},
		},
	}
}

// OnRegister resolves the dispatcher, both collections and the logger.
func (m *Module) OnRegister(_ context.Context, runtime errand.ModuleRuntime) error {
	services := runtime.Services()
	dispatcher, err := errand.ResolveAs[errand.SinkDispatcher](services, errand.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("reminder resolve sink dispatcher: %w", err)
	}
	reminders, err := errand.ResolveCollection[errand.Reminder](services, errand.CollectionReminders)
	if err != nil {
		return fmt.Errorf("reminder resolve reminders: %w", err)
	}
	timers, err := errand.ResolveCollection[errand.Timer](services, errand.CollectionTimers)
	if err != nil {
		return fmt.Errorf("reminder resolve timers: %w", err)
	}
	logger, err := errand.ResolveAs[*slog.Logger](services, errand.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger.With("module", m.Name())
	case errors.Is(err, errand.ErrServiceNotFound):
	default:
		return fmt.Errorf("reminder resolve logger: %w", err)
	}

	m.dispatcher = dispatcher
	m.reminders = reminders
	m.timers = timers

	return nil
}

// OnStart runs one scan right away and then keeps scanning every scan interval
// until OnShutdown.
func (m *Module) OnStart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("reminder start: already running")
	}
	m.runCtx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.running = true

	runCtx := m.runCtx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := schedule.Every(runCtx, m.scanInterval, true, m.scan); err != nil {
			m.logger.Error("reminder scan loop stopped", "error", err)
		}
	}()

	return nil
}

// OnShutdown stops armed fast-path deliveries and waits for in-flight work.
func (m *Module) OnShutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	for id, timer := range m.armed {
		timer.Stop()
		delete(m.armed, id)
	}
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
		return fmt.Errorf("reminder shutdown: %w", ctx.Err())
	}
}

func (m *Module) handleCommand(ctx context.Context, event *errand.Event) error {
	if event == nil || event.Command == nil {
		return nil
	}

	var (
		text string
		err  error
	)
	switch event.Command.Name {
	case remindCommandName:
		text, err = m.createReminder(ctx, event)
	case timerCommandName:
		text, err = m.createTimer(ctx, event)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	return m.reply(ctx, event, text)
}

func (m *Module) createReminder(ctx context.Context, event *errand.Event) (string, error) {
	request, err := parseReminder(event.Command.Value)
	switch {
	case errors.Is(err, errMissingDelay):
		return "When shall I remind you? Try `remind stretch in 20 minutes`.", nil
	case errors.Is(err, errMissingText):
		return "Remind you about what, exactly? I didn't catch the task.", nil
	case errors.Is(err, errDelayTooLong):
		return "That's rather far off! I can only keep promises up to a year ahead.", nil
	case err != nil:
		return "", fmt.Errorf("reminder parse: %w", err)
	}

	now := m.now().UTC()
	reminder := errand.Reminder{
		ID:     m.newID(),
		UserID: event.Actor.ID,
		Text:   request.text,
		Time:   now.Add(request.delay),
		Origin: originOf(event),
		Sink:   sinkOf(event),
	}
	if err := m.reminders.Append(ctx, reminder); err != nil {
		return "", fmt.Errorf("reminder create: %w", err)
	}
	m.arm(reminder.ID, request.delay)
	m.logger.DebugContext(ctx, "reminder scheduled",
		"reminder_id", reminder.ID,
		"user_id", reminder.UserID,
		"due", reminder.Time,
	)

	return fmt.Sprintf(
		"Consider it done! I'll remind you about %q in %d %s. Punctual as a church clock!",
		reminder.Text,
		request.amount,
		request.unit,
	), nil
}

func (m *Module) createTimer(ctx context.Context, event *errand.Event) (string, error) {
	minutes, ok := parseTimerMinutes(event.Command.Value)
	if !ok {
		return "I need a number of minutes to count, e.g. `timer 25`.", nil
	}

	now := m.now().UTC()
	timer := errand.Timer{
		ID:      m.newID(),
		UserID:  event.Actor.ID,
		Minutes: minutes,
		EndTime: now.Add(time.Duration(minutes) * time.Minute),
		Origin:  originOf(event),
		Sink:    sinkOf(event),
	}
	if err := m.timers.Append(ctx, timer); err != nil {
		return "", fmt.Errorf("timer create: %w", err)
	}

	return fmt.Sprintf("⏱ Consider it done! Counting exactly %d minutes for you.", minutes), nil
}

// arm schedules the in-process fast path for one reminder. It is a no-op
// before OnStart and after OnShutdown; the scan covers those windows.
func (m *Module) arm(id string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.armed[id] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if !m.running {
			m.mu.Unlock()
			return
		}
		delete(m.armed, id)
		runCtx := m.runCtx
		m.wg.Add(1)
		m.mu.Unlock()

		defer m.wg.Done()
		m.deliverReminders(runCtx, func(reminder errand.Reminder) bool {
			return reminder.ID == id
		})
	})
}

func (m *Module) scan(ctx context.Context) {
	m.deliverReminders(ctx, func(errand.Reminder) bool { return true })
	m.deliverTimers(ctx)
}

// deliverReminders claims every due reminder accepted by match, sends it and
// reverts the claim of each failed send.
func (m *Module) deliverReminders(ctx context.Context, match func(errand.Reminder) bool) {
	now := m.now()
	var claimed []errand.Reminder
	err := m.reminders.Update(ctx, func(reminders []errand.Reminder) ([]errand.Reminder, error) {
		for index := range reminders {
			if !reminders[index].Due(now) || !match(reminders[index]) {
				continue
			}
			reminders[index].Sent = true
			claimed = append(claimed, reminders[index])
		}
		if len(claimed) == 0 {
			return nil, errand.ErrNoChange
		}
		return reminders, nil
	})
	if err != nil {
		if ctx.Err() == nil {
			m.logger.ErrorContext(ctx, "claim due reminders", "error", err)
		}
		return
	}

	failed := make(map[string]struct{})
	for _, reminder := range claimed {
		text := "🔔 Pardon the interruption! You asked me to remind you about: " + reminder.Text
		if err := m.notify(ctx, reminder.UserID, reminder.Sink, text); err != nil {
			m.logger.WarnContext(ctx, "reminder delivery failed, will retry",
				"reminder_id", reminder.ID,
				"user_id", reminder.UserID,
				"error", err,
			)
			failed[reminder.ID] = struct{}{}
		}
	}
	if len(failed) == 0 {
		return
	}

	err = m.reminders.Update(context.WithoutCancel(ctx), func(reminders []errand.Reminder) ([]errand.Reminder, error) {
		for index := range reminders {
			if _, revert := failed[reminders[index].ID]; revert {
				reminders[index].Sent = false
			}
		}
		return reminders, nil
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "revert reminder claims", "error", err)
	}
}

// deliverTimers claims due timers, sends them, then reverts failed claims and
// drops timers that are both notified and past in one final update.
func (m *Module) deliverTimers(ctx context.Context) {
	now := m.now()
	var claimed []errand.Timer
	err := m.timers.Update(ctx, func(timers []errand.Timer) ([]errand.Timer, error) {
		for index := range timers {
			if !timers[index].Due(now) {
				continue
			}
			timers[index].Notified = true
			claimed = append(claimed, timers[index])
		}
		if len(claimed) == 0 {
			return nil, errand.ErrNoChange
		}
		return timers, nil
	})
	if err != nil {
		if ctx.Err() == nil {
			m.logger.ErrorContext(ctx, "claim due timers", "error", err)
		}
		return
	}

	failed := make(map[string]struct{})
	for _, timer := range claimed {
		text := fmt.Sprintf("⏰ Beg pardon, your %d minutes are up! Time flies.", timer.Minutes)
		if err := m.notify(ctx, timer.UserID, timer.Sink, text); err != nil {
			m.logger.WarnContext(ctx, "timer delivery failed, will retry",
				"timer_id", timer.ID,
				"user_id", timer.UserID,
				"error", err,
			)
			failed[timer.ID] = struct{}{}
		}
	}

	err = m.timers.Update(context.WithoutCancel(ctx), func(timers []errand.Timer) ([]errand.Timer, error) {
		live := timers[:0]
		for _, timer := range timers {
			if _, revert := failed[timer.ID]; revert {
				timer.Notified = false
			}
			if timer.Live(now) {
				live = append(live, timer)
			}
		}
		return live, nil
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "prune timers", "error", err)
	}
}

func (m *Module) notify(ctx context.Context, userID string, sink *errand.SinkRef, text string) error {
	_, err := m.dispatcher.SendMessage(ctx, errand.SendMessageRequest{
		Target: errand.DirectTarget(userID, sink),
		Text:   text,
	})

	return err
}

func (m *Module) reply(ctx context.Context, event *errand.Event, text string) error {
	target, err := errand.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("reminder derive outbound target: %w", err)
	}
	request := errand.SendMessageRequest{Target: target, Text: text}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("reminder send reply: %w", err)
	}

	return nil
}

func originOf(event *errand.Event) *errand.Conversation {
	if event.Conversation.ID == "" {
		return nil
	}
	origin := event.Conversation

	return &origin
}

func sinkOf(event *errand.Event) *errand.SinkRef {
	if event.Source.IsZero() {
		return nil
	}
	sink := event.Source

	return &sink
}

var (
	_ errand.Module          = (*Module)(nil)
	_ errand.ModuleRegistrar = (*Module)(nil)
)
