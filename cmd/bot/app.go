package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"errand-bot/internal/driver"
	"errand-bot/internal/fetch"
	"errand-bot/internal/kernel"
	"errand-bot/internal/store"
	"errand-bot/modules/digest"
	"errand-bot/modules/help"
	"errand-bot/modules/lookup"
	"errand-bot/modules/poll"
	"errand-bot/modules/reminder"
	"errand-bot/modules/stats"
	"errand-bot/modules/todo"
	"errand-bot/pkg/errand"
)

func run(ctx context.Context) error {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}

	cfg, err := loadConfig(registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))
	kernelRuntime := buildKernelRuntime(logger, cfg)

	stateStore, err := store.Open(cfg.store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	logger.Info("state store opened", "dir", stateStore.Dir())

	drivers, sinkDispatcher, err := buildDriverRuntime(ctx, logger, cfg, registry)
	if err != nil {
		return err
	}

	if err := registerRuntimeDrivers(kernelRuntime, drivers); err != nil {
		return err
	}
	if err := registerRuntimeServices(kernelRuntime, logger, sinkDispatcher); err != nil {
		return err
	}
	if err := registerCollections(kernelRuntime, stateStore); err != nil {
		return err
	}
	if err := registerFetchServices(kernelRuntime, cfg.fetch); err != nil {
		return err
	}
	if err := registerRuntimeModules(ctx, kernelRuntime, logger, cfg); err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kernelRuntime.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
	)
}

func buildDriverRuntime(
	ctx context.Context,
	logger *slog.Logger,
	cfg appConfig,
	registry *driver.Registry,
) ([]errand.Driver, errand.SinkDispatcher, error) {
	if registry == nil {
		return nil, nil, fmt.Errorf("build drivers: nil driver registry")
	}

	runtimes, err := registry.BuildEnabled(ctx, cfg.drivers, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build drivers: %w", err)
	}

	drivers := make([]errand.Driver, 0, len(runtimes))
	for _, runtime := range runtimes {
		drivers = append(drivers, runtime.Driver)
	}

	dispatcher, err := driver.NewCompositeSinkDispatcher(runtimes)
	if err != nil {
		return nil, nil, fmt.Errorf("build sink dispatcher: %w", err)
	}

	return drivers, dispatcher, nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, drivers []errand.Driver) error {
	for _, runtimeDriver := range drivers {
		if err := kernelRuntime.RegisterDriver(runtimeDriver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtimeDriver.Name(), err)
		}
	}

	return nil
}

func registerRuntimeServices(
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	sinkDispatcher errand.SinkDispatcher,
) error {
	if err := kernelRuntime.RegisterService(errand.ServiceLogger, logger); err != nil {
		return fmt.Errorf("register logger service: %w", err)
	}
	if sinkDispatcher == nil {
		return fmt.Errorf("register sink dispatcher service: nil dispatcher")
	}
	if err := kernelRuntime.RegisterService(errand.ServiceSinkDispatcher, sinkDispatcher); err != nil {
		return fmt.Errorf("register sink dispatcher service: %w", err)
	}

	return nil
}

// registerCollections binds every persisted collection under its service key.
func registerCollections(kernelRuntime *kernel.Kernel, stateStore *store.Store) error {
	register := func(name string, build func() (any, error)) error {
		collection, err := build()
		if err != nil {
			return fmt.Errorf("open collection %s: %w", name, err)
		}
		if err := kernelRuntime.RegisterService(errand.CollectionService(name), collection); err != nil {
			return fmt.Errorf("register collection %s: %w", name, err)
		}

		return nil
	}

	builders := []struct {
		name  string
		build func() (any, error)
	}{
		{name: errand.CollectionTodos, build: collectionBuilder[errand.Todo](stateStore, errand.CollectionTodos)},
		{name: errand.CollectionReminders, build: collectionBuilder[errand.Reminder](stateStore, errand.CollectionReminders)},
		{name: errand.CollectionTimers, build: collectionBuilder[errand.Timer](stateStore, errand.CollectionTimers)},
		{name: errand.CollectionPolls, build: collectionBuilder[errand.Poll](stateStore, errand.CollectionPolls)},
		{name: errand.CollectionInteractions, build: collectionBuilder[errand.Interaction](stateStore, errand.CollectionInteractions)},
		{name: errand.CollectionActivity, build: collectionBuilder[errand.ActivityFingerprint](stateStore, errand.CollectionActivity)},
	}
	for _, builder := range builders {
		if err := register(builder.name, builder.build); err != nil {
			return err
		}
	}

	return nil
}

func collectionBuilder[T any](stateStore *store.Store, name string) func() (any, error) {
	return func() (any, error) {
		collection, err := store.NewCollection[T](stateStore, name)
		if err != nil {
			return nil, err
		}

		return errand.Collection[T](collection), nil
	}
}

func registerFetchServices(kernelRuntime *kernel.Kernel, cfg fetch.Config) error {
	services := map[string]any{
		lookup.ServiceDefiner:      fetch.NewDictionary(cfg),
		lookup.ServiceGIFSearcher:  fetch.NewGiphy(cfg),
		lookup.ServiceEncyclopedia: encyclopediaAdapter{client: fetch.NewWikipedia(cfg)},
		digest.ServiceProducts:     productsAdapter{client: fetch.NewProductHunt(cfg)},
		digest.ServiceArticles:     articlesAdapter{client: fetch.NewDevTo(cfg)},
		digest.ServiceActivity:     activityAdapter{client: fetch.NewWakaTime(cfg)},
	}
	for name, service := range services {
		if err := kernelRuntime.RegisterService(name, service); err != nil {
			return fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return nil
}

func registerRuntimeModules(
	ctx context.Context,
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	cfg appConfig,
) error {
	modules := []errand.Module{
		todo.New(),
		reminder.New(
			reminder.WithScanInterval(cfg.reminderScanInterval),
			reminder.WithLogger(logger),
		),
		poll.New(),
		lookup.New(),
		stats.New(),
		help.New(),
		digest.New(cfg.digest),
	}
	for _, module := range modules {
		if err := kernelRuntime.RegisterModule(ctx, module); err != nil {
			return fmt.Errorf("register %s module: %w", module.Name(), err)
		}
	}

	return nil
}
