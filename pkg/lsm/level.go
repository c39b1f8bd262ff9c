package lsm

import "math"

// Level holds an ordered sequence of runs sharing one compaction policy.
// Runs are stored newest-last; reads scan from newest to oldest.
type Level struct {
	Number   int
	Strategy Policy
	Runs     []*Run
}

// NewLevel creates an empty level with the policy its number implies.
func NewLevel(number int) *Level {
	return &Level{Number: number, Strategy: policyForLevel(number)}
}

// AppendRun adds a newly created run as the newest run in the level.
func (l *Level) AppendRun(r *Run) {
	l.Runs = append(l.Runs, r)
}

// RunCount returns how many runs the level currently holds.
func (l *Level) RunCount() int {
	return len(l.Runs)
}

// NeedsCompaction reports whether the level's run count meets its
// strategy's trigger.
func (l *Level) NeedsCompaction() bool {
	switch l.Strategy {
	case Tiering:
		return len(l.Runs) >= TieringThreshold
	case LazyLeveling:
		return len(l.Runs) >= LazyLevelingThreshold
	case Leveling:
		return len(l.Runs) > 1
	default:
		return false
	}
}

// ByteSize sums the on-disk size of every run in the level.
func (l *Level) ByteSize() int64 {
	var total int64
	for _, r := range l.Runs {
		total += r.ByteSize()
	}
	return total
}

// KeyCount sums the pair count of every run in the level. This double
// counts keys superseded by a newer run; it is the raw "logical pair
// count" the statistics surface names, not a deduplicated key count.
func (l *Level) KeyCount() int64 {
	var total int64
	for _, r := range l.Runs {
		total += r.NumPairs()
	}
	return total
}

// Clear detaches all runs from the level without deleting their files;
// callers are expected to delete files themselves once the new run set
// is safely swapped in.
func (l *Level) Clear() []*Run {
	old := l.Runs
	l.Runs = nil
	return old
}

// levelCapacityBytes returns BUFFER_SIZE * T^(i-1) for level i, the
// capacity used by target placement and bulk-load distribution.
func levelCapacityBytes(bufferSizeBytes int64, sizeRatio, level int) int64 {
	return int64(float64(bufferSizeBytes) * math.Pow(float64(sizeRatio), float64(level-1)))
}

// monkeyFPR computes the Monkey per-level false positive rate allocation
// FPR(i) = min(1, r / T^(L-i)) for level i given size ratio T and deepest
// level L.
func monkeyFPR(totalFPR float64, sizeRatio, level, maxLevel int) float64 {
	fpr := totalFPR / math.Pow(float64(sizeRatio), float64(maxLevel-level))
	if fpr > 1 {
		return 1
	}
	return fpr
}

// targetLevelForSize finds the shallowest level (1..maxLevel) whose
// capacity is at least sizeBytes, clamping to maxLevel if none fits.
func targetLevelForSize(bufferSizeBytes int64, sizeRatio, maxLevel int, sizeBytes int64) int {
	for i := 1; i <= maxLevel; i++ {
		if levelCapacityBytes(bufferSizeBytes, sizeRatio, i) >= sizeBytes {
			return i
		}
	}
	return maxLevel
}
