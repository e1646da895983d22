package driver

import (
	"context"
	"log/slog"

	"errand-bot/internal/driver/telegram"
)

// NewBuiltinRegistry registers every driver type this binary ships with.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{
		{Type: telegram.DriverType, Platform: telegram.DriverPlatform, Builder: buildTelegram},
	})
}

func buildTelegram(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	source, inbound, outbound, err := telegram.BuildRuntimeFromConfig(definition.Name, logger, definition.Config)
	if err != nil {
		return Runtime{}, err
	}

	return Runtime{Source: source, Driver: inbound, SinkDispatcher: outbound}, nil
}
