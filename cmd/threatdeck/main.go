/*
 * Copyright 2025 Threatdeck Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/threatdeck/threatdeck/pkg/client"
	"github.com/threatdeck/threatdeck/pkg/config"
	"github.com/threatdeck/threatdeck/pkg/dashboard"
	"github.com/threatdeck/threatdeck/pkg/logger"
	"github.com/threatdeck/threatdeck/pkg/tui"
)

const (
	defaultServerURL   = "http://localhost:5000"
	defaultPollSeconds = 30
	defaultHTTPSeconds = 15
	defaultConfigPath  = "threatdeck.json"
	defaultLogFile     = "threatdeck.log"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

// Config is the application configuration, loaded from a JSON file with
// THREATDECK_* environment overrides. Every field has a runnable default.
type Config struct {
	ServerURL           string         `json:"server_url"`
	PollIntervalSeconds int            `json:"poll_interval_seconds"`
	HTTPTimeoutSeconds  int            `json:"http_timeout_seconds"`
	Logging             *logger.Config `json:"logging"`
}

// Validate fills defaults and rejects nonsense values.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		c.ServerURL = defaultServerURL
	}

	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = defaultPollSeconds
	}

	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = defaultHTTPSeconds
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "Path to threatdeck config file")
	logFile := flag.String("log-file", "", "Log file path (overrides config)")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	// The TUI owns the terminal, so logs go to a file by default.
	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: defaultLogFile,
		}
	}

	if *logFile != "" {
		logConfig.Output = *logFile
	}

	appLogger, err := logger.New(logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	apiClient, err := client.New(client.Config{
		BaseURL: cfg.ServerURL,
		Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
		Logger:  appLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	fetcher := dashboard.NewFetcher(
		apiClient,
		time.Duration(cfg.PollIntervalSeconds)*time.Second,
		nil, // real clock
		appLogger,
	)

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := fetcher.Start(fetchCtx); err != nil && fetchCtx.Err() == nil {
			appLogger.Error().Err(err).Msg("Snapshot fetcher stopped")
		}
	}()

	dispatcher := dashboard.NewDispatcher(apiClient, fetcher, appLogger)

	model := tui.New(tui.Options{
		Fetcher:    fetcher,
		Dispatcher: dispatcher,
		Logger:     appLogger,
	})

	appLogger.Info().Str("server", cfg.ServerURL).Msg("Starting threatdeck")

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}

	cancel()

	return fetcher.Stop(ctx)
}
