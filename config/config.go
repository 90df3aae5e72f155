// Package config loads run profiles: strategy choice, heuristic weights,
// search parameters and logging, from YAML/JSON files and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/arach/2048ish/executor/expectimax"
	"github.com/arach/2048ish/executor/mcts"
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/heuristic"
	"github.com/arach/2048ish/rules"
	"github.com/arach/2048ish/scraper/logging"
	"github.com/arach/2048ish/strategy"
)

// EnvPrefix is prepended to every environment override, e.g.
// G2048_EXPECTIMAX_MAX_DEPTH=3.
const EnvPrefix = "G2048"

type Profile struct {
	Strategy string `mapstructure:"strategy" yaml:"strategy"`
	// WeightPreset names a heuristic.Preset used as the base for Weights.
	// Keys under weights override individual values.
	WeightPreset string            `mapstructure:"weight_preset" yaml:"weight_preset,omitempty"`
	Weights      heuristic.Weights `mapstructure:"weights" yaml:"weights"`
	Expectimax   ExpectimaxConfig  `mapstructure:"expectimax" yaml:"expectimax"`
	MCTS         MCTSConfig        `mapstructure:"mcts" yaml:"mcts"`
	GridSize     int               `mapstructure:"grid_size" yaml:"grid_size"`
	WinTarget    game.Cell         `mapstructure:"win_target" yaml:"win_target"`
	// Seed is the base seed for self-play. 0 means unseeded.
	Seed int64     `mapstructure:"seed" yaml:"seed"`
	Log  LogConfig `mapstructure:"log" yaml:"log"`
}

type ExpectimaxConfig struct {
	MaxDepth      int  `mapstructure:"max_depth" yaml:"max_depth"`
	MaxSpawnCells int  `mapstructure:"max_spawn_cells" yaml:"max_spawn_cells"`
	Parallel      bool `mapstructure:"parallel" yaml:"parallel"`
}

type MCTSConfig struct {
	MaxIterations int     `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxDepth      int     `mapstructure:"max_depth" yaml:"max_depth"`
	Exploration   float64 `mapstructure:"exploration" yaml:"exploration"`
}

type LogConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Level  string `mapstructure:"level" yaml:"level"`
}

func Default() Profile {
	ec := expectimax.DefaultConfig()
	mc := mcts.DefaultConfig()
	return Profile{
		Strategy: string(strategy.Expectimax),
		Weights:  heuristic.DefaultWeights(),
		Expectimax: ExpectimaxConfig{
			MaxDepth:      ec.MaxDepth,
			MaxSpawnCells: ec.MaxSpawnCells,
		},
		MCTS: MCTSConfig{
			MaxIterations: mc.MaxIterations,
			MaxDepth:      mc.MaxDepth,
			Exploration:   mc.Exploration,
		},
		GridSize:  game.DefaultGridSize,
		WinTarget: rules.DefaultWinTarget,
		Log:       LogConfig{Format: "pretty", Level: "info"},
	}
}

func setDefaults(v *viper.Viper, p Profile) {
	v.SetDefault("strategy", p.Strategy)
	v.SetDefault("weight_preset", p.WeightPreset)
	v.SetDefault("expectimax.max_depth", p.Expectimax.MaxDepth)
	v.SetDefault("expectimax.max_spawn_cells", p.Expectimax.MaxSpawnCells)
	v.SetDefault("expectimax.parallel", p.Expectimax.Parallel)
	v.SetDefault("mcts.max_iterations", p.MCTS.MaxIterations)
	v.SetDefault("mcts.max_depth", p.MCTS.MaxDepth)
	v.SetDefault("mcts.exploration", p.MCTS.Exploration)
	v.SetDefault("grid_size", p.GridSize)
	v.SetDefault("win_target", uint64(p.WinTarget))
	v.SetDefault("seed", p.Seed)
	v.SetDefault("log.format", p.Log.Format)
	v.SetDefault("log.level", p.Log.Level)
	setWeightDefaults(v, p.Weights)
}

func setWeightDefaults(v *viper.Viper, w heuristic.Weights) {
	v.SetDefault("weights.empty", w.Empty)
	v.SetDefault("weights.corner", w.Corner)
	v.SetDefault("weights.smoothness", w.Smoothness)
	v.SetDefault("weights.monotonicity", w.Monotonicity)
	v.SetDefault("weights.mergeability", w.Mergeability)
	v.SetDefault("weights.score", w.Score)
}

// Load reads a profile. An empty path skips the file and yields the
// defaults plus environment overrides. The file type follows the
// extension (.yaml, .yml, .json).
func Load(path string) (Profile, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Profile{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// The preset only replaces the weight defaults, so explicit weights in
	// the file or environment still win.
	w, err := heuristic.Preset(v.GetString("weight_preset"))
	if err != nil {
		return Profile{}, err
	}
	setWeightDefaults(v, w)

	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return Profile{}, fmt.Errorf("decode config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate reports the first invalid field.
func (p Profile) Validate() error {
	if _, err := strategy.ParseKind(p.Strategy); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if p.GridSize < game.MinGridSize || p.GridSize > game.MaxGridSize {
		return fmt.Errorf("config validation: grid_size %d out of range [%d, %d]", p.GridSize, game.MinGridSize, game.MaxGridSize)
	}
	if !p.WinTarget.IsTile() {
		return fmt.Errorf("config validation: win_target %d is not a power of two", p.WinTarget)
	}
	if p.Expectimax.MaxDepth < 1 {
		return fmt.Errorf("config validation: expectimax.max_depth must be >= 1, got %d", p.Expectimax.MaxDepth)
	}
	if p.Expectimax.MaxSpawnCells < 0 {
		return errors.New("config validation: expectimax.max_spawn_cells must be >= 0")
	}
	if p.MCTS.MaxIterations < 0 || p.MCTS.MaxDepth < 0 || p.MCTS.Exploration < 0 {
		return errors.New("config validation: mcts parameters must be >= 0")
	}
	if _, err := p.Logger(os.Stderr); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// Logger builds the logger described by the log section.
func (p Profile) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(p.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(p.Log.Format, level, w)
}

// StrategyConfig converts the profile into a strategy.Config. seed
// overrides Profile.Seed so each game can run on its own stream.
func (p Profile) StrategyConfig(seed int64, logger *slog.Logger) (strategy.Config, error) {
	kind, err := strategy.ParseKind(p.Strategy)
	if err != nil {
		return strategy.Config{}, err
	}
	cfg := strategy.DefaultConfig(kind)
	cfg.Weights = p.Weights
	cfg.Expectimax.MaxDepth = p.Expectimax.MaxDepth
	cfg.Expectimax.MaxSpawnCells = p.Expectimax.MaxSpawnCells
	cfg.Expectimax.Parallel = p.Expectimax.Parallel
	cfg.MCTS.MaxIterations = p.MCTS.MaxIterations
	cfg.MCTS.MaxDepth = p.MCTS.MaxDepth
	cfg.MCTS.Exploration = p.MCTS.Exploration
	cfg.MCTS.WinTarget = p.WinTarget
	cfg.Seed = seed
	cfg.Logger = logger
	return cfg, nil
}

// Marshal renders the profile as YAML in the layout Load reads back.
func (p Profile) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the profile as YAML, replacing path atomically.
func (p Profile) Save(path string) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
