package lsm

// bulkLoadBufferBytes is the reference implementation's enlarged buffer
// capacity used for the duration of a bulk load (100 MiB).

// BulkLoadFile implements the ten-step bulk-load algorithm of §4.7:
// trade streaming memory for throughput by sorting and deduplicating the
// entire input in memory, distributing it across levels by capacity, and
// running one compaction pass afterward.
func (e *Engine) BulkLoadFile(path string) error {
	e.mu.Lock()
	savedCapacity := e.bufferCapacityBytes
	savedCompaction := e.compactionEnabled
	e.bufferCapacityBytes = bulkLoadBufferBytes
	e.compactionEnabled = false
	e.mu.Unlock()

	restore := func() {
		e.mu.Lock()
		e.bufferCapacityBytes = savedCapacity
		e.compactionEnabled = savedCompaction
		e.mu.Unlock()
	}

	pairs, err := readPairsFile(path)
	if err != nil {
		restore()
		return err
	}

	pairs = sortAndDeduplicate(pairs)
	if len(pairs) == 0 {
		restore()
		return nil
	}

	e.mu.Lock()
	maxLevel := e.maxLevel
	sizeRatio := e.sizeRatio
	e.mu.Unlock()

	totalBytes := int64(len(pairs)) * pairSize
	targetLevel := targetLevelForSize(DefaultBufferSizeBytes, sizeRatio, maxLevel, totalBytes)

	allocations := distributeBulkLoad(pairs, sizeRatio, targetLevel)

	e.mu.Lock()
	for level, slice := range allocations {
		if len(slice) == 0 {
			continue
		}
		lvl := e.levels[level-1]
		run, err := NewRunFromPairs(e.dataDir, level, lvl.RunCount(), slice, e.fprForLevel(level))
		if err != nil {
			e.mu.Unlock()
			restore()
			return err
		}
		lvl.AppendRun(e.adoptWritten(run))
	}
	e.mu.Unlock()

	// Step 8: release the lock before compacting so concurrent reads can proceed.
	e.mu.Lock()
	e.compactionEnabled = true
	err = e.compact()
	e.mu.Unlock()
	if err != nil {
		restore()
		return err
	}

	e.mu.Lock()
	e.bufferCapacityBytes = savedCapacity
	e.mu.Unlock()
	return nil
}

// distributeBulkLoad implements step 6/7 of §4.7: distribute the sorted
// data backwards from targetLevel down to level 1, each level taking an
// integer multiple of its parent's capacity (capped at what remains),
// with any residual going to level 1.
func distributeBulkLoad(pairs []Pair, sizeRatio, targetLevel int) map[int][]Pair {
	totalBytes := int64(len(pairs)) * pairSize
	totalPairs := int64(len(pairs))

	byteAllocations := make(map[int]int64)
	remaining := totalBytes

	for level := targetLevel; level >= 2; level-- {
		parentCapacity := levelCapacityBytes(DefaultBufferSizeBytes, sizeRatio, level-1)
		if parentCapacity <= 0 {
			continue
		}
		allocated := (remaining / parentCapacity) * parentCapacity
		if allocated > remaining {
			allocated = remaining
		}
		byteAllocations[level] = allocated
		remaining -= allocated
	}
	byteAllocations[1] = remaining

	pairsPerByte := float64(totalPairs) / float64(totalBytes)

	result := make(map[int][]Pair)
	offset := 0
	deepestWithData := 0
	for level := targetLevel; level >= 1; level-- {
		bytesForLevel := byteAllocations[level]
		if bytesForLevel <= 0 {
			continue
		}
		count := int(float64(bytesForLevel) * pairsPerByte)
		if level == 1 || offset+count > len(pairs) {
			count = len(pairs) - offset
		}
		if count <= 0 {
			continue
		}
		result[level] = pairs[offset : offset+count]
		offset += count
		if deepestWithData == 0 {
			deepestWithData = level
		}
	}

	if offset < len(pairs) {
		result[deepestWithData] = append(result[deepestWithData], pairs[offset:]...)
	}
	return result
}
