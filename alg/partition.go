package alg

// PageRange is a half-open interval [Start, End) of zero-indexed pages.
type PageRange struct {
	Start int
	End   int
}

// Len returns the number of pages in the range.
func (r PageRange) Len() int {
	return r.End - r.Start
}

// Partition splits numPages pages into contiguous ranges, one per worker.
//
// The worker count is clamped to [1, numPages] so that no worker is created
// without pages. Every range holds numPages/workers pages except the last one,
// which also absorbs the remainder. No ranges are returned for an empty document.
func Partition(numPages, workers int) []PageRange {
	if numPages <= 0 {
		return nil
	}

	workers = max(workers, 1)
	workers = min(workers, numPages)

	base := numPages / workers
	ranges := make([]PageRange, workers)
	for i := range workers {
		ranges[i] = PageRange{Start: i * base, End: (i + 1) * base}
	}
	ranges[workers-1].End = numPages
	return ranges
}
