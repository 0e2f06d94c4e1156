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

package main

import (
	"context"
	"flag"
	"strings"

	"github.com/rowhammer-lab/rhprobe/pkg/rhprobe"
)

func runAttack(args []string) error {
	fs := flag.NewFlagSet("attack", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file; its `attack` section overrides the flags below")
	dimms := fs.Int("dimms", 2, "number of populated DIMMs (1 or 2)")
	bridge := fs.String("bridge", "haswell", "northbridge family: haswell or sandybridge")
	method := fs.String("method", "rowhammer", "hammer kernel: rowhammer or rowpress")
	catalogue := fs.String("catalogue", "data/catalogue.txt", "catalogue input path")
	hintDir := fs.String("hint-dir", "", "if set, load candidates from victim hint files here instead of re-running selection")
	dummyFraction := fs.Float64("dummy-fraction", 0.1, "fraction of physical memory reserved as dummy block")
	coreAttacker := fs.Int("core-attacker", 0, "core pinned to the attacker role")
	coreVictim := fs.Int("core-victim", 1, "core pinned to the victim workload")
	coreHammerer := fs.Int("core-hammerer", 2, "core pinned to the hammerer role")
	coreDegrade := fs.Int("core-degrade", 3, "core pinned to the degradation helper")
	victimCmd := fs.String("victim-command", "", "comma-separated argv for the external victim workload")
	degradeCmd := fs.String("degrade-command", "", "comma-separated argv for the external degradation helper")
	dryRun := fs.Bool("dry-run", false, "rehearse the massage without hammering")
	iterations := fs.Int("iterations", 0, "hammer iterations per candidate pair (0 = default)")
	calibrate := fs.Bool("calibrate", false, "calibrate the iteration count against the first candidate before attacking")
	calibrateThreshold := fs.Int("calibrate-threshold", 0, "flip count the calibration search targets (0 = default)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	family, err := rhprobe.BridgeConfig(*bridge).Family()
	if err != nil {
		return err
	}
	attackMethod, err := rhprobe.ParseAttackMethod(*method)
	if err != nil {
		return err
	}

	cataloguePath, hintDirPath := *catalogue, *hintDir
	selectCfg := rhprobe.SelectConfig{
		Dimms:  *dimms,
		Family: family,
		Method: attackMethod,
	}
	var fileCfg *rhprobe.Config
	if *configPath != "" {
		fileCfg, err = rhprobe.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		if fileCfg.Attack.CataloguePath != "" {
			cataloguePath = fileCfg.Attack.CataloguePath
		}
		if fileCfg.Attack.HintDir != "" {
			hintDirPath = fileCfg.Attack.HintDir
		}
		selectCfg, err = fileCfg.Select.ToSelectConfig()
		if err != nil {
			return err
		}
	}

	stats := &rhprobe.RunStats{}
	var candidates []rhprobe.PageCandidate
	var mapping *rhprobe.Mapping
	if hintDirPath != "" {
		candidates, mapping, err = rhprobe.CandidatesFromHints(hintDirPath, selectCfg, stats)
	} else {
		candidates, mapping, err = rhprobe.SelectCandidates(cataloguePath, selectCfg, stats)
	}
	if err != nil {
		return err
	}
	defer mapping.Close()

	var cfg rhprobe.AttackConfig
	if fileCfg != nil {
		cfg, err = fileCfg.Attack.ToAttackConfig(candidates, fileCfg.Calibrate)
		if err != nil {
			return err
		}
	} else {
		cfg = rhprobe.AttackConfig{
			Candidates:      candidates,
			Method:          attackMethod,
			DummyFraction:   *dummyFraction,
			CoreAttacker:    *coreAttacker,
			CoreVictim:      *coreVictim,
			CoreHammerer:    *coreHammerer,
			CoreDegrade:     *coreDegrade,
			DryRun:          *dryRun,
			Iterations:      *iterations,
			Calibrate:       *calibrate,
			CalibrateConfig: rhprobe.CalibrateConfig{Threshold: *calibrateThreshold},
		}
		if *victimCmd != "" {
			cfg.VictimCommand = strings.Split(*victimCmd, ",")
		}
		if *degradeCmd != "" {
			cfg.DegradeCommand = strings.Split(*degradeCmd, ",")
		}
	}

	return cfg.Run(context.Background())
}
