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

// runEvaluate implements the `evaluate` sub-command: reads the
// catalogue, selects and confirms exploit-worthy candidates, and
// prints them. The candidate-selector stage gets its own entry point
// so it can be run independently of a fresh profiling pass.
func runEvaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file; its `select` section overrides the flags below")
	dimms := fs.Int("dimms", 2, "number of populated DIMMs (1 or 2)")
	bridge := fs.String("bridge", "haswell", "northbridge family: haswell or sandybridge")
	method := fs.String("method", "rowhammer", "hammer kernel: rowhammer or rowpress")
	catalogue := fs.String("catalogue", "data/catalogue.txt", "catalogue input path")
	riskBit := fs.Int("risk-bit", 0, "lowest unsafe bit position (0 = default)")
	targetBit := fs.Int("target-bit", 0, "designated target bit position (0 = default)")
	targetThreshold := fs.Int64("target-threshold", 0, "minimum flip count at target bit (0 = default)")
	hintDir := fs.String("hint-dir", "", "if set, write a victim hint file per confirmed candidate here")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var selectCfg rhprobe.SelectConfig
	var cataloguePath string
	if *configPath != "" {
		cfg, err := rhprobe.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		selectCfg, err = cfg.Select.ToSelectConfig()
		if err != nil {
			return err
		}
		cataloguePath = cfg.Select.CataloguePath
	} else {
		family, err := rhprobe.BridgeConfig(*bridge).Family()
		if err != nil {
			return err
		}
		attackMethod, err := rhprobe.ParseAttackMethod(*method)
		if err != nil {
			return err
		}
		selectCfg = rhprobe.SelectConfig{
			Dimms:              *dimms,
			Family:             family,
			Method:             attackMethod,
			RiskBit:            *riskBit,
			TargetBit:          *targetBit,
			TargetBitThreshold: *targetThreshold,
			HintDir:            *hintDir,
		}
		cataloguePath = *catalogue
	}
	if *hintDir != "" {
		selectCfg.HintDir = *hintDir
	}

	stats := &rhprobe.RunStats{}
	candidates, mapping, err := rhprobe.SelectCandidates(cataloguePath, selectCfg, stats)
	if err != nil {
		return err
	}
	defer mapping.Close()

	fmt.Printf("%d candidates confirmed (%s)\n", len(candidates), stats.String())
	for _, c := range candidates {
		fmt.Printf("victim=0x%x above=(0x%x,0x%x) below=(0x%x,0x%x) score=%d\n",
			c.Victim.Pfn, c.Above[0].Pfn, c.Above[1].Pfn, c.Below[0].Pfn, c.Below[1].Pfn, c.Score)
	}
	return nil
}
