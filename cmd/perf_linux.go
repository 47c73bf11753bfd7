//go:build linux

package cmd

import (
	perf "github.com/hodgesds/perf-utils"
	"github.com/rs/zerolog"
)

// countInstructions runs fn on a locked OS thread and returns the CPU
// instructions it retired. ok is false when perf events are unavailable, fn
// then runs unmeasured.
func countInstructions(logger zerolog.Logger, fn func() error) (count uint64, ok bool, err error) {
	ran := false
	pv, perr := perf.CPUInstructions(func() error {
		ran = true
		err = fn()
		return err
	})
	if !ran {
		logger.Warn().Err(perr).Msg("perf events unavailable, running without instruction counts")
		return 0, false, fn()
	}
	if err != nil || perr != nil || pv == nil {
		return 0, false, err
	}
	return pv.Value, true, nil
}
