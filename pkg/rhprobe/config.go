// Copyright 2021 Intel Corporation. All Rights Reserved.
// Copyright 2024 rhprobe authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rhprobe

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// BridgeConfig names a northbridge family in config files, mirroring
// PolicyConfig/RoutineConfig's {Name, Config} sub-document shape: a
// plain string selector plus a free-form body, here a single field
// rather than an opaque blob since the DRAM model has no plugin
// registry.
type BridgeConfig string

// Family resolves the configured bridge name to a Family value.
func (b BridgeConfig) Family() (Family, error) {
	switch b {
	case "haswell", "":
		return FamilyHaswell, nil
	case "sandybridge":
		return FamilySandyBridge, nil
	default:
		return 0, errors.Errorf("unknown bridge family %q", b)
	}
}

// ProfileFileConfig is the `profile` section of the YAML config file.
type ProfileFileConfig struct {
	Fraction         float64
	Dimms            int
	Bridge           BridgeConfig
	Method           string
	Iterations       int
	AggressorPattern string `yaml:"aggressor_pattern"`
	VictimPattern    string `yaml:"victim_pattern"`
	CataloguePath    string `yaml:"catalogue_path"`
	StatusPath       string `yaml:"status_path"`
}

// SelectFileConfig is the `select` section of the YAML config file.
type SelectFileConfig struct {
	Dimms              int
	Bridge             BridgeConfig
	Method             string
	RiskBit            int     `yaml:"risk_bit"`
	TargetBit          int     `yaml:"target_bit"`
	TargetBitThreshold int64   `yaml:"target_bit_threshold"`
	CataloguePath      string  `yaml:"catalogue_path"`
	HitRateThreshold   float64 `yaml:"hit_rate_threshold"`
	HintDir            string  `yaml:"hint_dir"`
}

// AttackFileConfig is the `attack` section of the YAML config file.
type AttackFileConfig struct {
	Method         string
	CataloguePath  string   `yaml:"catalogue_path"`
	HintDir        string   `yaml:"hint_dir"`
	DummyFraction  float64  `yaml:"dummy_fraction"`
	WarmupSeconds  int      `yaml:"warmup_seconds"`
	CoreAttacker   int      `yaml:"core_attacker"`
	CoreVictim     int      `yaml:"core_victim"`
	CoreHammerer   int      `yaml:"core_hammerer"`
	CoreDegrade    int      `yaml:"core_degrade"`
	VictimCommand  []string `yaml:"victim_command"`
	DegradeCommand []string `yaml:"degrade_command"`
	DryRun         bool     `yaml:"dry_run"`
	Iterations     int      `yaml:"iterations"`
	Calibrate      bool     `yaml:"calibrate"`
}

// CalibrateFileConfig is the `calibrate` section of the YAML config file.
type CalibrateFileConfig struct {
	Threshold int
}

// Config is the top-level YAML configuration file shape, mirroring
// cmd/memtierd's single top-level Config struct composed of per-
// operation sub-documents.
type Config struct {
	Profile   ProfileFileConfig
	Select    SelectFileConfig
	Attack    AttackFileConfig
	Calibrate CalibrateFileConfig
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %q", path)
	}
	return &cfg, nil
}

// ToProfileConfig converts the file section to the operation's runtime
// config, resolving the bridge name and attack method.
func (c ProfileFileConfig) ToProfileConfig() (ProfileConfig, error) {
	family, err := c.Bridge.Family()
	if err != nil {
		return ProfileConfig{}, err
	}
	method, err := ParseAttackMethod(c.Method)
	if err != nil {
		return ProfileConfig{}, err
	}
	aggressor, err := ParsePattern(c.AggressorPattern)
	if err != nil {
		return ProfileConfig{}, err
	}
	victim, err := ParsePattern(c.VictimPattern)
	if err != nil {
		return ProfileConfig{}, err
	}
	return ProfileConfig{
		Fraction:         c.Fraction,
		Dimms:            c.Dimms,
		Family:           family,
		Method:           method,
		Iterations:       c.Iterations,
		AggressorPattern: aggressor,
		VictimPattern:    victim,
		CataloguePath:    c.CataloguePath,
		StatusPath:       c.StatusPath,
	}, nil
}

// ToSelectConfig converts the file section to the operation's runtime
// config.
func (c SelectFileConfig) ToSelectConfig() (SelectConfig, error) {
	family, err := c.Bridge.Family()
	if err != nil {
		return SelectConfig{}, err
	}
	method, err := ParseAttackMethod(c.Method)
	if err != nil {
		return SelectConfig{}, err
	}
	return SelectConfig{
		Dimms:                  c.Dimms,
		Family:                 family,
		Method:                 method,
		RiskBit:                c.RiskBit,
		TargetBit:              c.TargetBit,
		TargetBitThreshold:     c.TargetBitThreshold,
		LocateHitRateThreshold: c.HitRateThreshold,
		HintDir:                c.HintDir,
	}, nil
}

// ToAttackConfig converts the file section to the operation's runtime
// config. Candidates must be supplied separately: the caller resolves
// them via SelectCandidates against CataloguePath or via
// CandidatesFromHints against HintDir, since the config file only
// describes the mechanics of the attack, not its targets.
func (c AttackFileConfig) ToAttackConfig(candidates []PageCandidate, calibrate CalibrateFileConfig) (AttackConfig, error) {
	method, err := ParseAttackMethod(c.Method)
	if err != nil {
		return AttackConfig{}, err
	}
	cfg := AttackConfig{
		Candidates:      candidates,
		Method:          method,
		DummyFraction:   c.DummyFraction,
		CoreAttacker:    c.CoreAttacker,
		CoreVictim:      c.CoreVictim,
		CoreHammerer:    c.CoreHammerer,
		CoreDegrade:     c.CoreDegrade,
		VictimCommand:   c.VictimCommand,
		DegradeCommand:  c.DegradeCommand,
		DryRun:          c.DryRun,
		Iterations:      c.Iterations,
		Calibrate:       c.Calibrate,
		CalibrateConfig: calibrate.ToCalibrateConfig(),
	}
	if c.WarmupSeconds > 0 {
		cfg.WarmupDelay = secondsToDuration(c.WarmupSeconds)
	}
	return cfg, nil
}

// ToCalibrateConfig converts the file section to the operation's
// runtime config.
func (c CalibrateFileConfig) ToCalibrateConfig() CalibrateConfig {
	return CalibrateConfig{Threshold: c.Threshold}
}
