package main

import (
	"context"
	"encoding/json"
	"fmt"

	"dimas/pkg/config"
	"dimas/pkg/transport"
	natstransport "dimas/pkg/transport/nats"
)

// natsSessionConfig is the shape dimasctl understands inside a
// config.Session's opaque Config blob. Other protocol bindings would need
// their own decode path here; NATS is the only one this runtime ships.
type natsSessionConfig struct {
	URL string `json:"url"`
}

// openSession loads the default session configuration and dials it. Every
// subcommand opens its own short-lived session rather than sharing one
// across a process, since dimasctl is a one-shot CLI, not a long-running
// agent.
func openSession(ctx context.Context) (transport.Session, error) {
	cfg := config.Default()
	if cfg.Default.Protocol != "" && cfg.Default.Protocol != "nats" {
		return nil, fmt.Errorf("unsupported session protocol %q", cfg.Default.Protocol)
	}

	var natsCfg natsSessionConfig
	if len(cfg.Default.Config) > 0 {
		if err := json.Unmarshal(cfg.Default.Config, &natsCfg); err != nil {
			return nil, fmt.Errorf("parsing session config: %w", err)
		}
	}

	sess, err := natstransport.Open(ctx, natstransport.Config{
		URL:  natsCfg.URL,
		Name: "dimasctl",
	})
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return sess, nil
}
