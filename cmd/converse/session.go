package main

import (
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-converse/internal/config"
	"github.com/teslashibe/go-converse/pkg/inference"
	"github.com/teslashibe/go-converse/pkg/orchestrator"
	"github.com/teslashibe/go-converse/pkg/voice"
	"github.com/teslashibe/go-converse/pkg/voice/browser"
	"github.com/teslashibe/go-converse/pkg/voice/live"
)

// session bundles the components of one conversation.
type session struct {
	gw     inference.Gateway
	orch   *orchestrator.Orchestrator
	voice  *voice.Controller
	bridge *browser.Engine // set for the browser voice engine
}

// newSession wires the gateway, voice engine and orchestrator from cfg.
func newSession(cfg *config.Config, logger *slog.Logger) (*session, error) {
	gw, err := inference.New(cfg.Gateway.Provider, cfg.GatewayOptions(logger)...)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	s := &session{gw: gw}
	var engine voice.Engine
	switch cfg.Voice.Engine {
	case config.VoiceLive:
		engine = live.New(cfg.LiveConfig(logger))
	case config.VoiceBrowser:
		s.bridge = browser.New(browser.WithLanguage(cfg.Voice.Language), browser.WithLogger(logger))
		engine = s.bridge
	}

	s.voice = voice.NewController(engine, voice.WithLogger(logger))
	s.orch = orchestrator.New(gw, s.voice, orchestrator.WithLogger(logger))

	logger.Info("session configured",
		"provider", cfg.Gateway.Provider,
		"voice_engine", cfg.Voice.Engine,
		"voice_available", s.voice.Available(),
	)
	return s, nil
}

// close stops the orchestrator, which ends any voice session, and then
// releases the gateway.
func (s *session) close(logger *slog.Logger) {
	s.orch.Close()
	if err := s.gw.Close(); err != nil {
		logger.Warn("gateway close failed", "error", err)
	}
}
