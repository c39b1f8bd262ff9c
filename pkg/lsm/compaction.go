package lsm

// compact scans all levels and invokes performCompaction on the first
// level whose trigger is satisfied.
func (e *Engine) compact() error {
	if !e.compactionEnabled {
		return nil
	}
	for i := 0; i < len(e.levels); i++ {
		if e.levels[i].NeedsCompaction() {
			return e.performCompaction(i)
		}
	}
	return nil
}

// performCompaction merges level i's runs per its policy, possibly
// cascading to deeper levels and extending the tree.
func (e *Engine) performCompaction(levelIdx int) error {
	if !e.compactionEnabled {
		return nil
	}

	level := e.levels[levelIdx]
	switch level.Strategy {
	case Tiering:
		return e.compactTiering(levelIdx)
	default:
		return e.compactLazyOrLeveling(levelIdx)
	}
}

// compactTiering implements §4.5's tiering branch: merge, write one new
// run one level deeper, clear the source, cascade, and extend if needed.
func (e *Engine) compactTiering(levelIdx int) error {
	source := e.levels[levelIdx]
	merged := mergeLevelRuns(source.Runs)

	e.ensureLevel(levelIdx + 1)
	target := e.levels[levelIdx+1]

	if len(merged) > 0 {
		newID := target.RunCount()
		run, err := NewRunFromPairs(e.dataDir, target.Number, newID, merged, e.fprForLevel(target.Number))
		if err != nil {
			return err
		}
		target.AppendRun(e.adoptWritten(run))
	}

	e.clearLevelFiles(source)
	e.metrics.RecordCompaction()

	if target.NeedsCompaction() {
		if err := e.performCompaction(levelIdx + 1); err != nil {
			return err
		}
	}
	if target.Number == e.maxLevel && target.RunCount() >= 1 {
		return e.extendLevels()
	}
	return nil
}

// compactLazyOrLeveling implements §4.5's shared lazy-leveling/leveling
// branch: merge, place the result at the shallowest level with enough
// capacity, cascade, and extend if needed.
func (e *Engine) compactLazyOrLeveling(levelIdx int) error {
	source := e.levels[levelIdx]
	merged := mergeLevelRuns(source.Runs)

	totalBytes := int64(len(merged)) * pairSize
	targetNum := targetLevelForSize(DefaultBufferSizeBytes, e.sizeRatio, e.maxLevel, totalBytes)
	if targetNum < source.Number {
		targetNum = source.Number
	}
	e.ensureLevel(targetNum - 1)
	target := e.levels[targetNum-1]
	sameLevel := targetNum == source.Number

	var newID int
	if !sameLevel {
		newID = target.RunCount()
	}

	e.clearLevelFiles(source)

	if len(merged) > 0 {
		run, err := NewRunFromPairs(e.dataDir, target.Number, newID, merged, e.fprForLevel(target.Number))
		if err != nil {
			return err
		}
		target.AppendRun(e.adoptWritten(run))
	}
	e.metrics.RecordCompaction()

	if target.NeedsCompaction() {
		if err := e.performCompaction(target.Number - 1); err != nil {
			return err
		}
	}
	if target.Number == e.maxLevel && target.RunCount() >= 1 {
		return e.extendLevels()
	}
	return nil
}

// mergeLevelRuns gathers every pair from every run in the level (newest
// last, matching the level's own storage order) and reduces them to a
// sorted, deduplicated, tombstone-free sequence per §4.5.
func mergeLevelRuns(runs []*Run) []Pair {
	var all []Pair
	for _, r := range runs {
		pairs, err := r.AllPairs()
		if err != nil {
			continue
		}
		all = append(all, pairs...)
	}
	return sortAndDeduplicate(all)
}

// clearLevelFiles detaches and deletes every run currently in the level.
func (e *Engine) clearLevelFiles(level *Level) {
	old := level.Clear()
	for _, r := range old {
		r.DeleteFilesFromDisk(func(path string, err error) {
			e.logger.Warn("failed to unlink run file", e.logFields(Path(path), Error(err))...)
		})
	}
}

// ensureLevel grows e.levels (without changing maxLevel/strategy
// semantics) so index levelIdx is addressable. Callers pass a slice
// index, not a 1-based level number.
func (e *Engine) ensureLevel(levelIdx int) {
	for len(e.levels) <= levelIdx {
		e.levels = append(e.levels, NewLevel(len(e.levels)+1))
	}
}

// extendLevels appends a new empty level (its policy follows from its
// number, as for every level), increments maxLevel,
// and rebuilds every run's Bloom filter at the recomputed per-level FPR.
func (e *Engine) extendLevels() error {
	e.maxLevel++
	e.levels = append(e.levels, NewLevel(e.maxLevel))

	for _, level := range e.levels {
		fpr := e.fprForLevel(level.Number)
		for _, r := range level.Runs {
			if err := r.RebuildBloomFilter(fpr); err != nil {
				e.logger.Warn("failed to rebuild bloom filter during level extension",
					e.logFields(Path(r.DataPath()), Error(err))...)
			}
		}
	}
	return nil
}

// fprForLevel applies the Monkey allocation FPR(i) = min(1, r / T^(L-i)).
func (e *Engine) fprForLevel(level int) float64 {
	return monkeyFPR(e.totalFPR, e.sizeRatio, level, e.maxLevel)
}

// flushBuffer writes the buffer's contents as exactly one new run at
// level 1, clears the buffer, and cascades compaction if level 1 now
// needs it.
func (e *Engine) flushBuffer() error {
	pairs := e.buffer.GetAllSorted()
	if len(pairs) == 0 {
		return nil
	}

	level1 := e.levels[0]
	run, err := NewRunFromPairs(e.dataDir, 1, level1.RunCount(), pairs, e.fprForLevel(1))
	if err != nil {
		return err
	}
	level1.AppendRun(e.adoptWritten(run))
	e.buffer.Clear()
	e.metrics.RecordFlush()

	if level1.NeedsCompaction() {
		return e.performCompaction(0)
	}
	return nil
}
