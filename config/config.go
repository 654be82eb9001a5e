// Package config loads service configuration from a YAML file or CLI flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradelens/tradelens/internal/domain"
)

const (
	defaultInterval     = "1h"
	defaultCandleLimit  = 500
	defaultPollInterval = time.Minute
	defaultListenAddr   = ":8080"
	defaultDatabasePath = "tradelens.db"
)

// Config runtime configuration of the service.
type Config struct {
	// Pair trading pair whose candles are collected and profiled.
	Pair domain.Pair
	// Interval kline interval requested from the exchange (e.g. "1m", "1h").
	Interval string
	// CandleLimit number of candles fetched per collection cycle.
	CandleLimit int
	// PollInterval delay between collection cycles.
	PollInterval time.Duration
	// ListenAddr address the HTTP API binds to.
	ListenAddr string
	// DatabasePath path of the SQLite candle database.
	DatabasePath string
}

type configTmp struct {
	Pair         string        `yaml:"pair"`
	Interval     string        `yaml:"interval,omitempty"`
	CandleLimit  int           `yaml:"candle_limit,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	ListenAddr   string        `yaml:"listen_addr,omitempty"`
	DatabasePath string        `yaml:"database_path,omitempty"`
}

// Get reads configuration from the file given by the -config flag, falling
// back to individual flags when no file is provided.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	pairFlag := flag.String("pair", "BTC_USDT", "trading pair, example: BTC_USDT")
	intervalFlag := flag.String("interval", defaultInterval, "kline interval, example: 1h")
	limitFlag := flag.Int("candlelimit", defaultCandleLimit, "candles fetched per collection cycle")
	pollFlag := flag.Duration("pollinterval", defaultPollInterval, "delay between collection cycles")
	listenFlag := flag.String("listen", defaultListenAddr, "HTTP listen address")
	dbFlag := flag.String("db", defaultDatabasePath, "path to the sqlite database")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	pair, err := getPairFromString(*pairFlag)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --pair provided, --pair=%s", *pairFlag)
	}

	cfg := Config{
		Pair:         pair,
		Interval:     *intervalFlag,
		CandleLimit:  *limitFlag,
		PollInterval: *pollFlag,
		ListenAddr:   *listenFlag,
		DatabasePath: *dbFlag,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	pair, err := getPairFromString(tmp.Pair)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'pair' param in yaml config: %s, error: %w", tmp.Pair, err)
	}

	cfg := Config{
		Pair:         pair,
		Interval:     tmp.Interval,
		CandleLimit:  tmp.CandleLimit,
		PollInterval: tmp.PollInterval,
		ListenAddr:   tmp.ListenAddr,
		DatabasePath: tmp.DatabasePath,
	}
	if cfg.Interval == "" {
		cfg.Interval = defaultInterval
	}
	if cfg.CandleLimit == 0 {
		cfg.CandleLimit = defaultCandleLimit
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaultDatabasePath
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.CandleLimit < 1 {
		return fmt.Errorf("invalid candle limit %d, must be positive", c.CandleLimit)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %s, must be positive", c.PollInterval)
	}
	return nil
}

func getPairFromString(pairStr string) (domain.Pair, error) {
	pairElements := strings.Split(pairStr, "_")
	if len(pairElements) != 2 || pairElements[0] == "" || pairElements[1] == "" {
		return domain.Pair{}, fmt.Errorf("invalid pair param")
	}
	return domain.Pair{From: pairElements[0], To: pairElements[1]}, nil
}
