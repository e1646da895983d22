package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"errand-bot/pkg/errand"
)

// moduleRecord is the kernel's bookkeeping for one registered module.
type moduleRecord struct {
	name         string
	module       errand.Module
	capabilities []errand.Capability

	subMu         sync.Mutex
	subscriptions []errand.Subscription
}

func (m *moduleRecord) addSubscription(subscription errand.Subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscriptions = append(m.subscriptions, subscription)
}

// closeSubscriptions closes everything the module subscribed to, newest
// first. Calling it again is a no-op.
func (m *moduleRecord) closeSubscriptions(ctx context.Context) error {
	m.subMu.Lock()
	owned := m.subscriptions
	m.subscriptions = nil
	m.subMu.Unlock()

	var errs []error
	for _, subscription := range slices.Backward(owned) {
		if err := subscription.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close subscription %s: %w", subscription.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// moduleRuntime is the errand.ModuleRuntime handed to a module in OnRegister.
type moduleRuntime struct {
	moduleName    string
	serviceLookup errand.ServiceRegistry
	bus           errand.EventBus
	record        *moduleRecord
}

func (r *moduleRuntime) Services() errand.ServiceRegistry {
	return r.serviceLookup
}

// Subscribe opens a bus subscription owned by the module. The interest has to
// fit inside one of the module's declared capabilities.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest errand.InterestSet,
	spec errand.SubscriptionSpec,
	handler errand.EventHandler,
) (errand.Subscription, error) {
	if spec.Name == "" {
		spec.Name = r.moduleName + "-subscription"
	}
	if err := assertSubscriptionAllowed(r.record.capabilities, spec.Name, interest); err != nil {
		return nil, fmt.Errorf("module %s: %w", r.moduleName, err)
	}

	subscription, err := r.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", r.moduleName, err)
	}
	r.record.addSubscription(subscription)

	return subscription, nil
}

func assertSubscriptionAllowed(capabilities []errand.Capability, name string, interest errand.InterestSet) error {
	if len(capabilities) == 0 {
		return fmt.Errorf("subscribe %s: module declares no capabilities", name)
	}
	covered := slices.ContainsFunc(capabilities, func(capability errand.Capability) bool {
		return capability.Interest.Allows(interest)
	})
	if !covered {
		return fmt.Errorf("subscribe %s: interest exceeds declared capabilities", name)
	}

	return nil
}
