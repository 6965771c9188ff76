package eonsim

// ledger.go holds the per-link spectrum ledger.  A ledger is an array of slots, each
// holding freeSlot, guardSlot, or the (positive) id of the lightpath occupying it.
// The fixed-grid (wavelength) variant is the same structure with a guard band of width zero,
// one slot per wavelength.

import (
	"fmt"
)

const (
	freeSlot  int64 = 0
	guardSlot int64 = -1
)

// SpectrumLedger records the occupancy of the slots of one link
type SpectrumLedger struct {
	slots     []int64
	guardband int
}

// CreateSpectrumLedger is a constructor.  numSlots is the number of slots on the link, guardband
// the number of slots left as guard on each side of an occupied range
func CreateSpectrumLedger(numSlots, guardband int) *SpectrumLedger {
	if numSlots < 1 || guardband < 0 {
		panic(fmt.Errorf("spectrum ledger needs positive slot count and non-negative guard band, got %d, %d",
			numSlots, guardband))
	}
	sl := new(SpectrumLedger)
	sl.slots = make([]int64, numSlots)
	sl.guardband = guardband
	return sl
}

// CreateWavelengthLedger is a constructor for the fixed-grid variant
func CreateWavelengthLedger(numWavelengths int) *SpectrumLedger {
	return CreateSpectrumLedger(numWavelengths, 0)
}

// NumSlots returns the length of the slot array
func (sl *SpectrumLedger) NumSlots() int {
	return len(sl.slots)
}

// Guardband returns the guard band width the ledger was built with
func (sl *SpectrumLedger) Guardband() int {
	return sl.guardband
}

// Slot returns the raw value held by slot idx
func (sl *SpectrumLedger) Slot(idx int) int64 {
	if idx < 0 || idx >= len(sl.slots) {
		panic(fmt.Errorf("slot index %d outside [0,%d)", idx, len(sl.slots)))
	}
	return sl.slots[idx]
}

// Snapshot returns a copy of the slot array
func (sl *SpectrumLedger) Snapshot() []int64 {
	rtn := make([]int64, len(sl.slots))
	copy(rtn, sl.slots)
	return rtn
}

// AvailableSlots counts the free slots
func (sl *SpectrumLedger) AvailableSlots() int {
	cnt := 0
	for _, v := range sl.slots {
		if v == freeSlot {
			cnt += 1
		}
	}
	return cnt
}

// UsedSlots counts the slots that are occupied or serve as guard
func (sl *SpectrumLedger) UsedSlots() int {
	return len(sl.slots) - sl.AvailableSlots()
}

// Utilization is the fraction of slots that are not free
func (sl *SpectrumLedger) Utilization() float64 {
	return float64(sl.UsedSlots()) / float64(len(sl.slots))
}

// Fragmentation is 1 - (largest free run / free slots), zero when nothing is free
func (sl *SpectrumLedger) Fragmentation() float64 {
	avail := sl.AvailableSlots()
	if avail == 0 {
		return 0.0
	}
	return 1.0 - float64(sl.MaxContiguousFree())/float64(avail)
}

// checkBlockSize panics when a request for k contiguous slots cannot be meaningful
func (sl *SpectrumLedger) checkBlockSize(k int) {
	if k < 1 || k > len(sl.slots) {
		panic(fmt.Errorf("block of %d slots requested from a ledger of %d", k, len(sl.slots)))
	}
}

// checkRange panics unless [begin, end] is a non-empty range inside the array
func (sl *SpectrumLedger) checkRange(begin, end int) {
	if begin < 0 || end >= len(sl.slots) || begin > end {
		panic(fmt.Errorf("slot range [%d,%d] invalid for a ledger of %d slots", begin, end, len(sl.slots)))
	}
}

// leftFlank returns the guard window in front of a range starting at begin.
// ok is false when the range touches the low boundary (begin < guardband) or there is no guard band
func (sl *SpectrumLedger) leftFlank(begin int) (lo, hi int, ok bool) {
	if sl.guardband == 0 || begin < sl.guardband {
		return 0, -1, false
	}
	return begin - sl.guardband, begin - 1, true
}

// rightFlank returns the guard window behind a range ending at end.
// ok is false when the range touches the high boundary (end > N-1-guardband) or there is no guard band
func (sl *SpectrumLedger) rightFlank(end int) (lo, hi int, ok bool) {
	if sl.guardband == 0 || end > len(sl.slots)-1-sl.guardband {
		return 0, -1, false
	}
	return end + 1, end + sl.guardband, true
}

// allFree reports whether every slot in [lo, hi] is free
func (sl *SpectrumLedger) allFree(lo, hi int) bool {
	for idx := lo; idx <= hi; idx++ {
		if sl.slots[idx] != freeSlot {
			return false
		}
	}
	return true
}

// allFreeOrGuard reports whether every slot in [lo, hi] is free or guard
func (sl *SpectrumLedger) allFreeOrGuard(lo, hi int) bool {
	for idx := lo; idx <= hi; idx++ {
		if sl.slots[idx] > freeSlot {
			return false
		}
	}
	return true
}

// CanReserve is the guard band feasibility test for the range [begin, end].
// Every slot of the range must be free, and each flank that is not cut off by
// the array boundary must hold only free or guard slots
func (sl *SpectrumLedger) CanReserve(begin, end int) bool {
	sl.checkRange(begin, end)

	if !sl.allFree(begin, end) {
		return false
	}
	if lo, hi, ok := sl.leftFlank(begin); ok && !sl.allFreeOrGuard(lo, hi) {
		return false
	}
	if lo, hi, ok := sl.rightFlank(end); ok && !sl.allFreeOrGuard(lo, hi) {
		return false
	}
	return true
}

// HasContiguousFree reports whether a block of k slots can be placed somewhere
func (sl *SpectrumLedger) HasContiguousFree(k int) bool {
	return sl.FirstFitIndex(k) != -1
}

// FirstFitIndex returns the lowest offset at which a block of k slots passes CanReserve, or -1
func (sl *SpectrumLedger) FirstFitIndex(k int) int {
	sl.checkBlockSize(k)
	for begin := 0; begin+k <= len(sl.slots); begin++ {
		if sl.slots[begin] != freeSlot {
			continue
		}
		if sl.CanReserve(begin, begin+k-1) {
			return begin
		}
	}
	return -1
}

// AllFittingOffsets returns, in increasing order, every offset at which a block of k slots passes CanReserve
func (sl *SpectrumLedger) AllFittingOffsets(k int) []int {
	sl.checkBlockSize(k)
	offsets := []int{}
	for begin := 0; begin+k <= len(sl.slots); begin++ {
		if sl.slots[begin] != freeSlot {
			continue
		}
		if sl.CanReserve(begin, begin+k-1) {
			offsets = append(offsets, begin)
		}
	}
	return offsets
}

// FittingBlocks counts how many disjoint blocks of k slots fit in the runs of free slots
func (sl *SpectrumLedger) FittingBlocks(k int) int {
	sl.checkBlockSize(k)
	cnt := 0
	for _, run := range sl.freeRuns() {
		cnt += run / k
	}
	return cnt
}

// freeRuns returns the lengths of the maximal runs of free slots, lowest index first
func (sl *SpectrumLedger) freeRuns() []int {
	runs := []int{}
	cur := 0
	for _, v := range sl.slots {
		if v == freeSlot {
			cur += 1
			continue
		}
		if cur > 0 {
			runs = append(runs, cur)
		}
		cur = 0
	}
	if cur > 0 {
		runs = append(runs, cur)
	}
	return runs
}

// MaxContiguousFree is the length of the longest run of free slots
func (sl *SpectrumLedger) MaxContiguousFree() int {
	maxRun := 0
	for _, run := range sl.freeRuns() {
		if run > maxRun {
			maxRun = run
		}
	}
	return maxRun
}

// MinContiguousFree is the length of the shortest maximal run of free slots, 0 if nothing is free
func (sl *SpectrumLedger) MinContiguousFree() int {
	runs := sl.freeRuns()
	if len(runs) == 0 {
		return 0
	}
	minRun := runs[0]
	for _, run := range runs[1:] {
		if run < minRun {
			minRun = run
		}
	}
	return minRun
}

// reserve writes id into [begin, end] and marks the flanks as guard under the boundary rule.
// The caller must have passed CanReserve(begin, end)
func (sl *SpectrumLedger) reserve(id int64, begin, end int) {
	if id <= 0 {
		panic(fmt.Errorf("lightpath id %d cannot occupy slots", id))
	}
	sl.checkRange(begin, end)

	for idx := begin; idx <= end; idx++ {
		sl.slots[idx] = id
	}
	if lo, hi, ok := sl.leftFlank(begin); ok {
		for idx := lo; idx <= hi; idx++ {
			sl.slots[idx] = guardSlot
		}
	}
	if lo, hi, ok := sl.rightFlank(end); ok {
		for idx := lo; idx <= hi; idx++ {
			sl.slots[idx] = guardSlot
		}
	}
}

// release frees [begin, end] and then every guard slot within guardband of the range
// that no remaining range still claims as its own flank
func (sl *SpectrumLedger) release(begin, end int) {
	sl.checkRange(begin, end)

	for idx := begin; idx <= end; idx++ {
		sl.slots[idx] = freeSlot
	}

	lo := max(begin-sl.guardband, 0)
	hi := min(end+sl.guardband, len(sl.slots)-1)
	for idx := lo; idx <= hi; idx++ {
		if sl.slots[idx] == guardSlot && !sl.guardOwned(idx) {
			sl.slots[idx] = freeSlot
		}
	}
}

// rangeBegins reports whether slot idx is the first slot of an occupied range
func (sl *SpectrumLedger) rangeBegins(idx int) bool {
	return sl.slots[idx] > freeSlot && (idx == 0 || sl.slots[idx-1] != sl.slots[idx])
}

// rangeEnds reports whether slot idx is the last slot of an occupied range
func (sl *SpectrumLedger) rangeEnds(idx int) bool {
	last := len(sl.slots) - 1
	return sl.slots[idx] > freeSlot && (idx == last || sl.slots[idx+1] != sl.slots[idx])
}

// guardOwned reports whether position pos lies inside a flank that reserve would have
// written for some range still present in the ledger
func (sl *SpectrumLedger) guardOwned(pos int) bool {
	// a range beginning at q writes [q-G, q-1] when q >= G
	for q := pos + 1; q <= pos+sl.guardband && q < len(sl.slots); q++ {
		if sl.rangeBegins(q) && q >= sl.guardband {
			return true
		}
	}
	// a range ending at q writes [q+1, q+G] when q <= N-1-G
	for q := pos - 1; q >= pos-sl.guardband && q >= 0; q-- {
		if sl.rangeEnds(q) && q <= len(sl.slots)-1-sl.guardband {
			return true
		}
	}
	return false
}

// FindOccupant returns the slot range held by lightpath id, or (-1,-1) when it holds none
func (sl *SpectrumLedger) FindOccupant(id int64) (int, int) {
	if id <= 0 {
		panic(fmt.Errorf("lightpath id %d cannot occupy slots", id))
	}
	begin, end := -1, -1
	for idx, v := range sl.slots {
		if v != id {
			if begin != -1 {
				break
			}
			continue
		}
		if begin == -1 {
			begin = idx
		}
		end = idx
	}
	return begin, end
}

// HasLightpath reports whether lightpath id occupies any slot
func (sl *SpectrumLedger) HasLightpath(id int64) bool {
	begin, _ := sl.FindOccupant(id)
	return begin != -1
}

// String renders the slot array the way a trace would show it
func (sl *SpectrumLedger) String() string {
	return fmt.Sprintf("%v", sl.slots)
}
