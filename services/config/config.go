package config

import (
	"context"
	"errors"

	"blcbus-go/bus"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// TopicMotors is where the motors section is retained.
var TopicMotors = bus.T(configPrefix, "motors")

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	// Doc, when set, is published instead of the embedded document.
	Doc *Config
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig resolves the device document and publishes each section as a
// retained message on config/<section>.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	cfg := s.Doc
	if cfg == nil {
		device, _ := ctx.Value(CtxDeviceKey).(string)
		if device == "" {
			return errors.New("missing device ID in context")
		}
		var err error
		if cfg, err = ForDevice(device); err != nil {
			return err
		}
	}

	conn.Publish(conn.NewMessage(bus.T(configPrefix, "device"), cfg.Device, true))
	conn.Publish(conn.NewMessage(bus.T(configPrefix, "bus"), cfg.Bus, true))
	conn.Publish(conn.NewMessage(TopicMotors, cfg.Motors, true))
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("[config] publish failed:", err.Error())
		}
	}()
}
