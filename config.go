package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the server reads from the environment.
// Defaults match the values the balance team currently runs in production.
type Config struct {
	Addr   string `env:"ARENA_ADDR" envDefault:":8080"`
	DBPath string `env:"ARENA_DB" envDefault:"arena.db"`
	Debug  bool   `env:"ARENA_DEBUG" envDefault:"false"`

	Queue     QueueConfig     `envPrefix:"ARENA_QUEUE_"`
	Sync      SyncConfig      `envPrefix:"ARENA_SYNC_"`
	AntiCheat AntiCheatConfig `envPrefix:"ARENA_AC_"`
	World     WorldConfig     `envPrefix:"ARENA_WORLD_"`
}

// QueueConfig tunes matchmaking search and quality scoring
type QueueConfig struct {
	InitialRange    int           `env:"INITIAL_RANGE" envDefault:"100"`
	RangeStep       int           `env:"RANGE_STEP" envDefault:"50"`
	MaxRange        int           `env:"MAX_RANGE" envDefault:"500"`
	ExpandEvery     time.Duration `env:"EXPAND_EVERY" envDefault:"10s"`
	QualityFloor    float64       `env:"QUALITY_FLOOR" envDefault:"60"`
	ForceMatchAfter time.Duration `env:"FORCE_MATCH_AFTER" envDefault:"2m"`
	MaxWait         time.Duration `env:"MAX_WAIT" envDefault:"5m"`
	RematchWindow   time.Duration `env:"REMATCH_WINDOW" envDefault:"10m"`
	SkillWeight     float64       `env:"SKILL_WEIGHT" envDefault:"0.7"`
	WaitWeight      float64       `env:"WAIT_WEIGHT" envDefault:"0.3"`
	OverlapPenalty  float64       `env:"OVERLAP_PENALTY" envDefault:"10"`
	RematchPenalty  float64       `env:"REMATCH_PENALTY" envDefault:"15"`
}

// SyncConfig tunes client-side prediction and reconciliation
type SyncConfig struct {
	CorrectionThreshold float64 `env:"CORRECTION_THRESHOLD" envDefault:"50"`
	CorrectionTicks     int     `env:"CORRECTION_TICKS" envDefault:"12"`
	MoveSpeed           float64 `env:"MOVE_SPEED" envDefault:"300"`
	OverheadBytes       int     `env:"OVERHEAD_BYTES" envDefault:"28"`
	EntityBytes         int     `env:"ENTITY_BYTES" envDefault:"74"`
}

// AntiCheatConfig tunes plausibility bounds and suspicion scoring
type AntiCheatConfig struct {
	MaxSpeed          float64 `env:"MAX_SPEED" envDefault:"400"`
	TeleportThreshold float64 `env:"TELEPORT_THRESHOLD" envDefault:"600"`
	MaxDamage         int     `env:"MAX_DAMAGE" envDefault:"500"`
	MaxEngageRange    float64 `env:"MAX_ENGAGE_RANGE" envDefault:"900"`
	SpeedPoints       int     `env:"SPEED_POINTS" envDefault:"25"`
	TeleportPoints    int     `env:"TELEPORT_POINTS" envDefault:"50"`
	AbilityPoints     int     `env:"ABILITY_POINTS" envDefault:"20"`
	DamagePoints      int     `env:"DAMAGE_POINTS" envDefault:"40"`
	ReportThreshold   int     `env:"REPORT_THRESHOLD" envDefault:"100"`
}

// WorldConfig tunes the authoritative match simulation
type WorldConfig struct {
	Width     float64 `env:"WIDTH" envDefault:"4000"`
	Height    float64 `env:"HEIGHT" envDefault:"4000"`
	TimeLimit float64 `env:"TIME_LIMIT" envDefault:"300"`
	KillLimit int     `env:"KILL_LIMIT" envDefault:"20"`
	ManaRegen float64 `env:"MANA_REGEN" envDefault:"5"`
}

// LoadConfig reads configuration from the environment
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the production defaults without touching the
// environment. Tests build on this.
func DefaultConfig() Config {
	return Config{
		Addr:   ":8080",
		DBPath: "arena.db",
		Queue: QueueConfig{
			InitialRange:    100,
			RangeStep:       50,
			MaxRange:        500,
			ExpandEvery:     10 * time.Second,
			QualityFloor:    60,
			ForceMatchAfter: 2 * time.Minute,
			MaxWait:         5 * time.Minute,
			RematchWindow:   10 * time.Minute,
			SkillWeight:     0.7,
			WaitWeight:      0.3,
			OverlapPenalty:  10,
			RematchPenalty:  15,
		},
		Sync: SyncConfig{
			CorrectionThreshold: 50,
			CorrectionTicks:     12,
			MoveSpeed:           300,
			OverheadBytes:       28,
			EntityBytes:         74,
		},
		AntiCheat: AntiCheatConfig{
			MaxSpeed:          400,
			TeleportThreshold: 600,
			MaxDamage:         500,
			MaxEngageRange:    900,
			SpeedPoints:       25,
			TeleportPoints:    50,
			AbilityPoints:     20,
			DamagePoints:      40,
			ReportThreshold:   100,
		},
		World: WorldConfig{
			Width:     4000,
			Height:    4000,
			TimeLimit: 300,
			KillLimit: 20,
			ManaRegen: 5,
		},
	}
}
