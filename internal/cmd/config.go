package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/motorlot/motorlot/internal/models"
)

// Config is the yaml application configuration. Database settings come from
// the environment instead, see dbconfig.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	NATS struct {
		URL           string `yaml:"url"`
		WinnerSubject string `yaml:"winner_subject"`
	} `yaml:"nats"`
	Scheduler struct {
		PollIntervalMS int  `yaml:"poll_interval_ms"`
		BatchSize      int  `yaml:"batch_size"`
		NumWorkers     int  `yaml:"num_workers"`
		LeaseTTLSec    int  `yaml:"lease_ttl_sec"`
		SkipCatchUp    bool `yaml:"skip_catch_up"`
	} `yaml:"scheduler"`
	AuctionDefaults struct {
		TimerSeconds      int    `yaml:"timer_seconds"`
		MinBidIncrement   string `yaml:"min_bid_increment"`
		MaxLotDurationMin int    `yaml:"max_lot_duration_min"`
	} `yaml:"auction_defaults"`
}

func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// auctionDefaults converts configured defaults into settings, falling back to
// house values for anything unset.
func (c *Config) auctionDefaults() (models.AuctionSettings, error) {
	settings := models.AuctionSettings{
		TimerSeconds:      30,
		MinBidIncrement:   decimal.NewFromInt(100),
		MaxLotDurationMin: 10,
	}
	if c.AuctionDefaults.TimerSeconds > 0 {
		settings.TimerSeconds = c.AuctionDefaults.TimerSeconds
	}
	if c.AuctionDefaults.MaxLotDurationMin > 0 {
		settings.MaxLotDurationMin = c.AuctionDefaults.MaxLotDurationMin
	}
	if c.AuctionDefaults.MinBidIncrement != "" {
		inc, err := decimal.NewFromString(c.AuctionDefaults.MinBidIncrement)
		if err != nil {
			return settings, fmt.Errorf("invalid min_bid_increment: %w", err)
		}
		settings.MinBidIncrement = inc
	}
	return settings, nil
}

func (c *Config) schedulerConfig() schedulerSettings {
	s := schedulerSettings{
		PollInterval:   2 * time.Second,
		BatchSize:      50,
		NumWorkers:     10,
		LeaseTTL:       30 * time.Second,
		CatchUpOnStart: true,
	}
	if c.Scheduler.PollIntervalMS > 0 {
		s.PollInterval = time.Duration(c.Scheduler.PollIntervalMS) * time.Millisecond
	}
	if c.Scheduler.BatchSize > 0 {
		s.BatchSize = int32(c.Scheduler.BatchSize)
	}
	if c.Scheduler.NumWorkers > 0 {
		s.NumWorkers = c.Scheduler.NumWorkers
	}
	if c.Scheduler.LeaseTTLSec > 0 {
		s.LeaseTTL = time.Duration(c.Scheduler.LeaseTTLSec) * time.Second
	}
	s.CatchUpOnStart = !c.Scheduler.SkipCatchUp
	return s
}

type schedulerSettings struct {
	PollInterval   time.Duration
	BatchSize      int32
	NumWorkers     int
	LeaseTTL       time.Duration
	CatchUpOnStart bool
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
