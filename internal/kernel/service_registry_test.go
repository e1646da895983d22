package kernel

import (
	"errors"
	"log/slog"
	"testing"

	"errand-bot/pkg/errand"
)

func TestServiceRegistryRegister(t *testing.T) {
	t.Parallel()

	var nilLogger *slog.Logger
	var nilMap map[string]int
	tests := []struct {
		name      string
		key       string
		service   any
		wantErr   bool
		wantErrIs error
	}{
		{name: "logger", key: errand.ServiceLogger, service: slog.Default()},
		{name: "plain value", key: "greeting", service: "good day"},
		{name: "rebinding a name", key: "taken", service: 2, wantErr: true, wantErrIs: errand.ErrServiceAlreadyRegistered},
		{name: "empty name", key: "", service: 1, wantErr: true},
		{name: "nil", key: "nothing", service: nil, wantErr: true},
		{name: "typed nil pointer", key: "nil-logger", service: nilLogger, wantErr: true},
		{name: "nil map", key: "nil-map", service: nilMap, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry := NewServiceRegistry()
			if err := registry.Register("taken", 1); err != nil {
				t.Fatalf("seed register failed: %v", err)
			}

			err := registry.Register(testCase.key, testCase.service)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected register error")
				}
				if testCase.wantErrIs != nil && !errors.Is(err, testCase.wantErrIs) {
					t.Fatalf("register error = %v, want %v", err, testCase.wantErrIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("register failed: %v", err)
			}

			got, err := registry.Resolve(testCase.key)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if got != testCase.service {
				t.Fatalf("resolved = %v, want %v", got, testCase.service)
			}
		})
	}
}

func TestServiceRegistryResolveAs(t *testing.T) {
	t.Parallel()

	registry := NewServiceRegistry()
	logger := slog.Default()
	if err := registry.Register(errand.ServiceLogger, logger); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, err := errand.ResolveAs[*slog.Logger](registry, errand.ServiceLogger)
	if err != nil {
		t.Fatalf("resolve as logger failed: %v", err)
	}
	if got != logger {
		t.Fatal("resolved a different logger")
	}
	if _, err := errand.ResolveAs[string](registry, errand.ServiceLogger); err == nil {
		t.Fatal("expected type mismatch error")
	}
	if _, err := errand.ResolveAs[string](registry, "missing"); !errors.Is(err, errand.ErrServiceNotFound) {
		t.Fatalf("missing error = %v, want %v", err, errand.ErrServiceNotFound)
	}
	if _, err := registry.Resolve(""); err == nil {
		t.Fatal("expected empty name error")
	}
}
