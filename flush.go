package oldgen

import "go.uber.org/zap"

// flushReason is the pause reason passed to Pauser.StopAllMutators for
// the mark-to-sweep transition (spec.md §4.5 step 1).
const flushReason = "FLUSH_URS"

// flushURS implements the four-step flush protocol of spec.md §4.5:
// stop mutators, splice every capability's URS into the global chain,
// wait for all capabilities to acknowledge, then drain and run the
// final weak/thread fixpoint before disabling the barrier and
// releasing mutators.
func (gc *GC) flushURS(q *MarkQueue) {
	gc.logFlush("stop_mutators")
	gc.pauser.StopAllMutators(flushReason)
	defer gc.pauser.ReleaseAllMutators()

	gc.capsMu.RLock()
	caps := gc.caps
	gc.capsMu.RUnlock()

	gc.flushMu.Lock()
	gc.flushCount = 0
	gc.flushMu.Unlock()

	gc.logFlush("splice_urs")
	for _, cap := range caps {
		if !cap.urs.ursSyncd {
			cap.urs.flush()
			gc.flushMu.Lock()
			gc.flushCount++
			gc.flushCond.Broadcast()
			gc.flushMu.Unlock()
		}
	}

	gc.waitForFlush(len(caps))

	gc.logFlush("drain_and_fixpoint")
	gc.mark(q)
	rounds := gc.fixpoint(q)
	if gc.metrics != nil {
		gc.metrics.FixpointRounds.Observe(float64(rounds))
	}
	gc.finalPostFixpoint(q)

	gc.wb.Enabled.Store(false)

	for _, cap := range caps {
		cap.urs.resetSync()
	}
	gc.logFlush("released")
}

// waitForFlush blocks until the flush counter equals the capability
// count, or the system is shutting down (spec.md §4.5 step 3).
func (gc *GC) waitForFlush(capCount int) {
	gc.flushMu.Lock()
	defer gc.flushMu.Unlock()
	for gc.flushCount < capCount {
		if gc.SchedStateNow() == SchedShuttingDown {
			return
		}
		gc.flushCond.Wait()
	}
}

func (gc *GC) logFlush(stage string) {
	gc.log.Debug("oldgen: flush protocol", zap.String("stage", stage))
}
