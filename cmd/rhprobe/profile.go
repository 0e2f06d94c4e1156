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
	"flag"
	"fmt"

	"github.com/rowhammer-lab/rhprobe/pkg/rhprobe"
)

func runProfile(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file; its `profile` section overrides the flags below")
	fraction := fs.Float64("fraction", 0.5, "fraction of physical memory to reserve")
	dimms := fs.Int("dimms", 2, "number of populated DIMMs (1 or 2)")
	bridge := fs.String("bridge", "haswell", "northbridge family: haswell or sandybridge")
	method := fs.String("method", "rowhammer", "hammer kernel: rowhammer or rowpress")
	iterations := fs.Int("iterations", 0, "hammer iterations per bank pair (0 = default)")
	aggressorPattern := fs.String("aggressor-pattern", "", "aggressor row fill: aggressor, 0x5555, 0xaaaa, 0x00ff, or 0x0100 (empty = 0xffff)")
	victimPattern := fs.String("victim-pattern", "", "victim row fill: victim, 0x5555, 0xaaaa, 0x00ff, or 0x0100 (empty = 0x0000)")
	catalogue := fs.String("output", "data/catalogue.txt", "catalogue output path")
	status := fs.String("status", "data/status.txt", "status file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var profileCfg rhprobe.ProfileConfig
	if *configPath != "" {
		cfg, err := rhprobe.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		profileCfg, err = cfg.Profile.ToProfileConfig()
		if err != nil {
			return err
		}
	} else {
		family, err := rhprobe.BridgeConfig(*bridge).Family()
		if err != nil {
			return err
		}
		attackMethod, err := rhprobe.ParseAttackMethod(*method)
		if err != nil {
			return err
		}
		aggressor, err := rhprobe.ParsePattern(*aggressorPattern)
		if err != nil {
			return err
		}
		victim, err := rhprobe.ParsePattern(*victimPattern)
		if err != nil {
			return err
		}
		profileCfg = rhprobe.ProfileConfig{
			Fraction:         *fraction,
			Dimms:            *dimms,
			Family:           family,
			Method:           attackMethod,
			Iterations:       *iterations,
			AggressorPattern: aggressor,
			VictimPattern:    victim,
			CataloguePath:    *catalogue,
			StatusPath:       *status,
		}
	}

	stats, err := rhprobe.Profile(profileCfg)
	if stats != nil {
		fmt.Println(stats.String())
	}
	return err
}
