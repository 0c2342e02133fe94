// Package config reads the run configuration from the environment.
//
//	GARNET_STRATEGY      auto, datatexture, ubo or transformfeedback
//	GARNET_SEED          seed for cluster placement and palettes; defaults to the clock
//	GARNET_PROFILE       cpu or mem, to profile the run
//	GARNET_TEXTURE_EDGE  power-of-two edge of the GPU arenas, in texels
//	GARNET_SCENE         path of a scene document to import at startup
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/irfansharif/garnet/internal/memory"
	"github.com/irfansharif/garnet/internal/render"
)

// Profile selects what pkg/profile records.
type Profile string

const (
	NoProfile  Profile = ""
	CPUProfile Profile = "cpu"
	MemProfile Profile = "mem"
)

// Config is the run configuration.
type Config struct {
	Strategy render.Kind
	Seed     int64
	Profile  Profile
	Memory   memory.Config
	Scene    string
}

// FromEnv builds a Config from the GARNET_* variables. Unset variables take
// their defaults; malformed ones are errors.
func FromEnv() (Config, error) {
	cfg := Config{
		Strategy: render.Auto,
		Seed:     time.Now().Unix(),
		Memory:   memory.DefaultConfig(),
		Scene:    os.Getenv("GARNET_SCENE"),
	}

	if s := os.Getenv("GARNET_STRATEGY"); s != "" {
		kind, err := render.ParseKind(s)
		if err != nil {
			return Config{}, fmt.Errorf("config: GARNET_STRATEGY: %w", err)
		}
		cfg.Strategy = kind
	}

	if s := os.Getenv("GARNET_SEED"); s != "" {
		seed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid GARNET_SEED value '%s': %w", s, err)
		}
		cfg.Seed = seed
	}

	switch p := Profile(os.Getenv("GARNET_PROFILE")); p {
	case NoProfile, CPUProfile, MemProfile:
		cfg.Profile = p
	default:
		return Config{}, fmt.Errorf("config: GARNET_PROFILE must be cpu or mem, got '%s'", p)
	}

	if s := os.Getenv("GARNET_TEXTURE_EDGE"); s != "" {
		edge, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid GARNET_TEXTURE_EDGE value '%s': %w", s, err)
		}
		cfg.Memory.Width, cfg.Memory.Height = edge, edge
	}
	if err := cfg.Memory.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: GARNET_TEXTURE_EDGE: %w", err)
	}
	return cfg, nil
}
