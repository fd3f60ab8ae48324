// Package config loads the pilot's tunables from YAML, with every field
// defaulting to the values the controllers were designed around.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	WSURL     string `yaml:"ws_url"`
	AgentName string `yaml:"agent_name"`

	Navigation NavigationConfig `yaml:"navigation"`
	RandomWalk RandomWalkConfig `yaml:"random_walk"`
	Motion     MotionConfig     `yaml:"motion"`

	TickRateHz     int `yaml:"tick_rate_hz"`
	PollIntervalMs int `yaml:"poll_interval_ms"`

	SessionLogDir string `yaml:"session_log_dir"`
	ChatDBPath    string `yaml:"chat_db_path"`
}

type NavigationConfig struct {
	TickIntervalMs   int     `yaml:"tick_interval_ms"`
	StopDistance     float64 `yaml:"stop_distance"`
	TurnThresholdDeg float64 `yaml:"turn_threshold_deg"`
	SteerDeadbandDeg float64 `yaml:"steer_deadband_deg"`
}

type RandomWalkConfig struct {
	IntervalMs  int     `yaml:"interval_ms"`
	MaxDistance float64 `yaml:"max_distance"`
}

type MotionConfig struct {
	JumpCooldownMs int     `yaml:"jump_cooldown_ms"`
	JumpFlightMs   int     `yaml:"jump_flight_ms"`
	JumpImpulse    float64 `yaml:"jump_impulse"`
}

// Load reads path, or returns pure defaults when path is empty.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("pilot.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("pilot.yaml: %w", err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		WSURL:     "ws://localhost:8080/v1/ws",
		AgentName: "pilot",
		Navigation: NavigationConfig{
			TickIntervalMs:   100,
			StopDistance:     1.0,
			TurnThresholdDeg: 45,
			SteerDeadbandDeg: 10,
		},
		RandomWalk: RandomWalkConfig{
			IntervalMs:  5000,
			MaxDistance: 7,
		},
		Motion: MotionConfig{
			JumpCooldownMs: 1000,
			JumpFlightMs:   800,
			JumpImpulse:    5,
		},
		TickRateHz:     50,
		PollIntervalMs: 30000,
	}
}

// Normalize fills anything a partial YAML file left zeroed.
func (c *Config) Normalize() {
	d := Defaults()
	if strings.TrimSpace(c.WSURL) == "" {
		c.WSURL = d.WSURL
	}
	if strings.TrimSpace(c.AgentName) == "" {
		c.AgentName = d.AgentName
	}
	if c.Navigation.TickIntervalMs <= 0 {
		c.Navigation.TickIntervalMs = d.Navigation.TickIntervalMs
	}
	if c.Navigation.StopDistance <= 0 {
		c.Navigation.StopDistance = d.Navigation.StopDistance
	}
	if c.Navigation.TurnThresholdDeg <= 0 {
		c.Navigation.TurnThresholdDeg = d.Navigation.TurnThresholdDeg
	}
	if c.Navigation.SteerDeadbandDeg <= 0 {
		c.Navigation.SteerDeadbandDeg = d.Navigation.SteerDeadbandDeg
	}
	if c.RandomWalk.IntervalMs <= 0 {
		c.RandomWalk.IntervalMs = d.RandomWalk.IntervalMs
	}
	if c.RandomWalk.MaxDistance < 0 {
		c.RandomWalk.MaxDistance = d.RandomWalk.MaxDistance
	}
	if c.Motion.JumpCooldownMs <= 0 {
		c.Motion.JumpCooldownMs = d.Motion.JumpCooldownMs
	}
	if c.Motion.JumpFlightMs <= 0 {
		c.Motion.JumpFlightMs = d.Motion.JumpFlightMs
	}
	if c.Motion.JumpImpulse <= 0 {
		c.Motion.JumpImpulse = d.Motion.JumpImpulse
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = d.TickRateHz
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = d.PollIntervalMs
	}
}

func (c *Config) Validate() error {
	if !strings.HasPrefix(c.WSURL, "ws://") && !strings.HasPrefix(c.WSURL, "wss://") {
		return fmt.Errorf("ws_url must be a ws:// or wss:// url, got %q", c.WSURL)
	}
	if c.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz too high: %d", c.TickRateHz)
	}
	if c.Navigation.TurnThresholdDeg >= 180 {
		return fmt.Errorf("turn_threshold_deg out of range: %v", c.Navigation.TurnThresholdDeg)
	}
	if c.Navigation.SteerDeadbandDeg >= c.Navigation.TurnThresholdDeg {
		return fmt.Errorf("steer_deadband_deg must be below turn_threshold_deg")
	}
	return nil
}

func (c Config) NavTickInterval() time.Duration {
	return time.Duration(c.Navigation.TickIntervalMs) * time.Millisecond
}

func (c Config) WalkInterval() time.Duration {
	return time.Duration(c.RandomWalk.IntervalMs) * time.Millisecond
}

func (c Config) JumpCooldown() time.Duration {
	return time.Duration(c.Motion.JumpCooldownMs) * time.Millisecond
}

func (c Config) JumpFlight() time.Duration {
	return time.Duration(c.Motion.JumpFlightMs) * time.Millisecond
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
