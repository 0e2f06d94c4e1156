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
	"fmt"
	"log"
	"os"

	"github.com/rowhammer-lab/rhprobe/pkg/rhprobe"
)

func exit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "rhprobe: "+format+"\n", a...)
	os.Exit(1)
}

func main() {
	rhprobe.SetLogger(log.New(os.Stderr, "", 0))

	if len(os.Args) < 2 {
		exit("missing sub-command: profile, evaluate, or attack")
	}

	var err error
	switch os.Args[1] {
	case "profile":
		err = runProfile(os.Args[2:])
	case "evaluate":
		err = runEvaluate(os.Args[2:])
	case "attack":
		err = runAttack(os.Args[2:])
	default:
		exit("unknown sub-command %q: expected profile, evaluate, or attack", os.Args[1])
	}
	if err != nil {
		exit("%s", err)
	}
}
