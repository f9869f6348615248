package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sentinelflow/internal/risk"
)

type Config struct {
	Addr              string
	DataDir           string
	DBPath            string
	RetentionDays     int
	RetentionInterval time.Duration
	NodeTTL           time.Duration
	NotifyMinRisk     float64
	NotifyCooldown    time.Duration
	DispatchQueue     int
	TelegramBotToken  string
	TelegramChatID    string
	ConfigFile        string
	Debug             bool
	Rules             risk.Rules
}

// fileConfig is the optional YAML overlay. Only rule thresholds live there.
type fileConfig struct {
	Rules *ruleOverrides `yaml:"rules"`
}

type ruleOverrides struct {
	Window            *time.Duration `yaml:"window"`
	SpikeMultiplier   *float64       `yaml:"spike_multiplier"`
	MinBaselineBPS    *float64       `yaml:"min_baseline_bps"`
	IdleLoudBPS       *float64       `yaml:"idle_loud_bps"`
	SynFloodThreshold *int64         `yaml:"syn_flood_threshold"`
	PortScanThreshold *int64         `yaml:"port_scan_threshold"`
	DecayStep         *float64       `yaml:"decay_step"`
}

func Load() (Config, error) {
	dataDir := getenv("APP_DATA_DIR", "./data")
	cfg := Config{
		Addr:              getenv("APP_ADDR", ":8080"),
		DataDir:           dataDir,
		DBPath:            getenv("APP_DB_PATH", dataDir+"/sentinel.db"),
		RetentionDays:     getenvInt("APP_RETENTION_DAYS", 14),
		RetentionInterval: getenvDuration("APP_RETENTION_INTERVAL", 6*time.Hour),
		NodeTTL:           getenvDuration("APP_NODE_TTL", 0),
		NotifyMinRisk:     getenvFloat("APP_NOTIFY_MIN_RISK", 70),
		NotifyCooldown:    getenvDuration("APP_NOTIFY_COOLDOWN", 5*time.Minute),
		DispatchQueue:     getenvInt("APP_DISPATCH_QUEUE", 1024),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    os.Getenv("TELEGRAM_CHAT_ID"),
		ConfigFile:        os.Getenv("APP_CONFIG_FILE"),
		Debug:             getenvBool("APP_DEBUG", false),
		Rules:             risk.DefaultRules(),
	}
	if cfg.ConfigFile != "" {
		raw, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := applyOverlay(&cfg.Rules, raw); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", cfg.ConfigFile, err)
		}
	}
	if err := cfg.Rules.Validate(); err != nil {
		return cfg, fmt.Errorf("rules: %w", err)
	}
	return cfg, nil
}

func applyOverlay(rules *risk.Rules, raw []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return err
	}
	o := fc.Rules
	if o == nil {
		return nil
	}
	if o.Window != nil {
		rules.Window = *o.Window
	}
	if o.SpikeMultiplier != nil {
		rules.SpikeMultiplier = *o.SpikeMultiplier
	}
	if o.MinBaselineBPS != nil {
		rules.MinBaselineBPS = *o.MinBaselineBPS
	}
	if o.IdleLoudBPS != nil {
		rules.IdleLoudBPS = *o.IdleLoudBPS
	}
	if o.SynFloodThreshold != nil {
		rules.SynFloodThreshold = *o.SynFloodThreshold
	}
	if o.PortScanThreshold != nil {
		rules.PortScanThreshold = *o.PortScanThreshold
	}
	if o.DecayStep != nil {
		rules.DecayStep = *o.DecayStep
	}
	return nil
}

type AgentConfig struct {
	ServerURL string
	AgentID   string
	Interval  time.Duration
	Timeout   time.Duration
	Iface     string
	Snaplen   int
}

func LoadAgent() AgentConfig {
	hostname, _ := os.Hostname()
	return AgentConfig{
		ServerURL: getenv("AGENT_SERVER_URL", "http://localhost:8080/ingest"),
		AgentID:   getenv("AGENT_ID", hostname),
		Interval:  getenvDuration("AGENT_INTERVAL", 5*time.Second),
		Timeout:   getenvDuration("AGENT_TIMEOUT", 2*time.Second),
		Iface:     os.Getenv("AGENT_IFACE"),
		Snaplen:   getenvInt("AGENT_SNAPLEN", 128),
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvFloat(k string, d float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return d
	}
	return f
}

func getenvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}

func getenvBool(k string, d bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return d
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	return d
}
