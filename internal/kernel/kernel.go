// Package kernel wires drivers, modules and the event bus into one runtime.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"errand-bot/pkg/errand"

	"golang.org/x/sync/errgroup"
)

// Kernel owns the event bus, the command table and the lifecycle of modules and drivers.
type Kernel struct {
	cfg config

	bus      *EventBus
	services *ServiceRegistry
	modules  *orderedRegistry[*moduleRecord]
	drivers  *orderedRegistry[errand.Driver]

	// mu guards the command table.
	mu           sync.RWMutex
	commands     map[string]commandRegistration
	commandOrder []string

	runMu   sync.Mutex
	running bool
}

// New creates a kernel. The command catalog service is registered up front.
func New(options ...Option) *Kernel {
	cfg := defaultConfig()
	for _, option := range options {
		option(&cfg)
	}
	cfg = cfg.finish()

	k := &Kernel{
		cfg:      cfg,
		bus:      NewEventBus(cfg.subscriptionBuffer, cfg.subscriptionWorker, cfg.handlerTimeout, cfg.onAsyncError),
		services: NewServiceRegistry(),
		modules:  newOrderedRegistry[*moduleRecord](),
		drivers:  newOrderedRegistry[errand.Driver](),
		commands: make(map[string]commandRegistration),
	}
	if err := k.services.Register(errand.ServiceCommandCatalog, &kernelCommandCatalog{kernel: k}); err != nil {
		cfg.onAsyncError(context.Background(), "register command catalog service", err)
	}

	return k
}

// EventBus exposes the kernel event bus to integration code.
func (k *Kernel) EventBus() errand.EventBus {
	return k.bus
}

// Services exposes the kernel service registry.
func (k *Kernel) Services() errand.ServiceRegistry {
	return k.services
}

// RegisterService binds one process-wide service. Modules resolve services
// while registering, so services go in before the modules that need them.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("register service %s: %w", name, err)
	}

	return nil
}

// RegisterModule claims the module's commands, runs OnRegister and subscribes
// its declared handlers. Any failure leaves no trace of the module behind.
func (k *Kernel) RegisterModule(ctx context.Context, module errand.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}

	moduleSpec := module.Spec()
	if err := validateModuleSpec(moduleSpec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	record := &moduleRecord{
		name:         name,
		module:       module,
		capabilities: moduleSpec.Capabilities(),
	}
	if err := k.validateCapabilityDependencies(record.capabilities); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	if !k.modules.add(name, record) {
		return fmt.Errorf("register module %s: %w", name, errand.ErrModuleAlreadyRegistered)
	}

	if err := k.bindModule(ctx, record, moduleSpec); err != nil {
		k.rollbackModuleRegistration(ctx, name, record)
		return fmt.Errorf("register module %s: %w", name, err)
	}
	k.cfg.logger.DebugContext(ctx, "module registered",
		"module", name,
		"commands", len(moduleSpec.Commands),
		"handlers", len(moduleSpec.Handlers),
	)

	return nil
}

func (k *Kernel) bindModule(ctx context.Context, record *moduleRecord, moduleSpec errand.ModuleSpec) error {
	if err := k.registerModuleCommands(ctx, record.name, moduleSpec.Commands); err != nil {
		return err
	}

	runtime := &moduleRuntime{
		moduleName:    record.name,
		serviceLookup: k.services,
		bus:           k.bus,
		record:        record,
	}
	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()

	if registrar, ok := record.module.(errand.ModuleRegistrar); ok {
		if err := runSafely("module "+record.name+" OnRegister", func() error {
			return registrar.OnRegister(hookCtx, runtime)
		}); err != nil {
			return err
		}
	}

	return k.registerDeclaredHandlers(hookCtx, record.name, runtime, moduleSpec.Handlers)
}

// RegisterDriver adds a platform driver. Drivers start after every module.
func (k *Kernel) RegisterDriver(driver errand.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}
	if !k.drivers.add(name, driver) {
		return fmt.Errorf("register driver %s: %w", name, errand.ErrDriverAlreadyRegistered)
	}

	return nil
}

// Run starts modules, then drivers, and blocks until ctx is canceled or a
// driver fails. Everything is shut down before Run returns.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.startRun(); err != nil {
		return err
	}
	defer k.finishRun()

	if err := k.startModules(ctx); err != nil {
		return err
	}

	driverCtx, stopDrivers := context.WithCancel(ctx)
	defer stopDrivers()
	driversDone := make(chan error, 1)
	go func() {
		driversDone <- k.runDrivers(driverCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
		stopDrivers()
		k.awaitDrivers(driversDone)
	case runErr = <-driversDone:
		stopDrivers()
	}

	shutdownErr := k.shutdownAll(ctx)
	if isContextCancellation(runErr) {
		runErr = nil
	}

	return errors.Join(runErr, shutdownErr)
}

func (k *Kernel) startRun() error {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	if k.running {
		return fmt.Errorf("kernel run: already running")
	}
	k.running = true

	return nil
}

func (k *Kernel) finishRun() {
	k.runMu.Lock()
	k.running = false
	k.runMu.Unlock()
}

// startModules calls OnStart in registration order. When one module fails
// the modules already started are shut down again, newest first.
func (k *Kernel) startModules(ctx context.Context) error {
	started := make([]namedEntry[*moduleRecord], 0)
	for _, entry := range k.modules.snapshot() {
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+entry.name+" OnStart", func() error {
			return entry.value.module.OnStart(hookCtx)
		})
		cancel()
		if err != nil {
			startErr := fmt.Errorf("start module %s: %w", entry.name, err)
			unwindCtx, unwindCancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
			defer unwindCancel()
			for i := len(started) - 1; i >= 0; i-- {
				startErr = errors.Join(startErr, k.stopModule(unwindCtx, started[i]))
			}
			return errors.Join(startErr, k.bus.Close(unwindCtx))
		}
		started = append(started, entry)
	}
	k.cfg.logger.InfoContext(ctx, "modules started", "count", len(started))

	return nil
}

// runDrivers runs every driver until ctx ends. The first driver to fail
// cancels the others; a driver stopping because of ctx is not a failure.
func (k *Kernel) runDrivers(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	sink := k.newDriverEventSink()
	for _, entry := range k.drivers.snapshot() {
		group.Go(func() error {
			err := runSafely("driver "+entry.name+" Start", func() error {
				return entry.value.Start(groupCtx, sink)
			})
			if err == nil || isContextCancellation(err) {
				return nil
			}

			return fmt.Errorf("run driver %s: %w", entry.name, err)
		})
	}

	return group.Wait()
}

// awaitDrivers waits for canceled drivers up to the shutdown timeout.
func (k *Kernel) awaitDrivers(done <-chan error) {
	timer := time.NewTimer(k.cfg.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		k.cfg.logger.Warn("drivers did not stop within the shutdown timeout", "timeout", k.cfg.shutdownTimeout)
	}
}

// shutdownAll stops drivers, then modules, then the bus. Cleanup runs on a
// context detached from ctx so a canceled parent still gets a full teardown.
func (k *Kernel) shutdownAll(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, entry := range k.drivers.reversed() {
		err := runSafely("driver "+entry.name+" Shutdown", func() error {
			return entry.value.Shutdown(shutdownCtx)
		})
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown driver %s: %w", entry.name, err))
		}
	}
	for _, entry := range k.modules.reversed() {
		shutdownErr = errors.Join(shutdownErr, k.stopModule(shutdownCtx, entry))
	}
	shutdownErr = errors.Join(shutdownErr, k.bus.Close(shutdownCtx))

	if shutdownErr != nil {
		return fmt.Errorf("kernel shutdown: %w", shutdownErr)
	}

	return nil
}

// stopModule closes the module's subscriptions before calling OnShutdown so
// no handler runs against a stopped module.
func (k *Kernel) stopModule(ctx context.Context, entry namedEntry[*moduleRecord]) error {
	var stopErr error
	if err := entry.value.closeSubscriptions(ctx); err != nil {
		stopErr = fmt.Errorf("shutdown module %s subscriptions: %w", entry.name, err)
	}

	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()
	err := runSafely("module "+entry.name+" OnShutdown", func() error {
		return entry.value.module.OnShutdown(hookCtx)
	})
	if err != nil {
		stopErr = errors.Join(stopErr, fmt.Errorf("shutdown module %s: %w", entry.name, err))
	}

	return stopErr
}

func (k *Kernel) rollbackModuleRegistration(ctx context.Context, name string, record *moduleRecord) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.moduleHookTimeout)
	defer cancel()

	if err := record.closeSubscriptions(rollbackCtx); err != nil {
		k.cfg.onAsyncError(rollbackCtx, "rollback_module_registration", err)
	}
	k.unregisterModuleCommands(name)
	k.modules.remove(name)
}

func (k *Kernel) validateCapabilityDependencies(capabilities []errand.Capability) error {
	for _, capability := range capabilities {
		for _, serviceName := range capability.RequiredServices {
			if _, err := k.services.Resolve(serviceName); err != nil {
				return fmt.Errorf("capability %s requires service %s: %w", capability.Name, serviceName, err)
			}
		}
	}

	return nil
}

// registerDeclaredHandlers subscribes the module's declared handlers.
// Command handlers get the failure reply wrapper.
func (k *Kernel) registerDeclaredHandlers(
	ctx context.Context,
	moduleName string,
	runtime *moduleRuntime,
	handlers []errand.ModuleHandler,
) error {
	for idx, declared := range handlers {
		spec := declared.Subscription
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("%s-handler-%d", moduleName, idx+1)
		}
		handler := declared.Handler
		if declared.Capability.Interest.RequireCommand {
			handler = k.withCommandFailureReply(moduleName, handler)
		}
		if _, err := runtime.Subscribe(ctx, declared.Capability.Interest, spec, handler); err != nil {
			return fmt.Errorf("register handler %s for capability %s: %w", spec.Name, declared.Capability.Name, err)
		}
	}

	return nil
}

func validateModuleSpec(spec errand.ModuleSpec) error {
	capabilities := make(map[string]struct{}, len(spec.Handlers))
	subscriptions := make(map[string]struct{}, len(spec.Handlers))
	for idx, handler := range spec.Handlers {
		name := handler.Capability.Name
		switch {
		case name == "":
			return fmt.Errorf("module handler %d: empty capability name", idx)
		case handler.Handler == nil:
			return fmt.Errorf("module handler %s: nil handler", name)
		}
		if _, exists := capabilities[name]; exists {
			return fmt.Errorf("module handler %d: duplicate capability name %s", idx, name)
		}
		capabilities[name] = struct{}{}

		if subscription := handler.Subscription.Name; subscription != "" {
			if _, exists := subscriptions[subscription]; exists {
				return fmt.Errorf("module handler %s: duplicate subscription name %s", name, subscription)
			}
			subscriptions[subscription] = struct{}{}
		}
	}

	commands := make(map[string]struct{}, len(spec.Commands))
	for idx, command := range spec.Commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("module command %d: %w", idx, err)
		}
		key := errand.NormalizeCommandName(command.Name)
		if _, exists := commands[key]; exists {
			return fmt.Errorf("module command %d: duplicate command %s", idx, key)
		}
		commands[key] = struct{}{}
	}

	return nil
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
