package threads

// MaxThreads caps the decode parallelism requested from the engine.
const MaxThreads = 16

// Budget returns the number of decode threads to request for one job.
//
// The hardware concurrency is floored to a power of two and capped at
// MaxThreads; the requested count is clamped to that ceiling. A requested
// count <= 0 means "use the ceiling". The result is never below 1.
func Budget(requested, hardwareConcurrency int) int {
	ceiling := min(MaxThreads, LargestPowerOfTwo(hardwareConcurrency))
	if ceiling < 1 {
		ceiling = 1
	}
	if requested <= 0 {
		return ceiling
	}
	return min(requested, ceiling)
}

// LargestPowerOfTwo returns the largest power of two <= n, or 0 for n <= 0.
func LargestPowerOfTwo(n int) int {
	if n <= 0 {
		return 0
	}
	p := 1
	for p <= n/2 {
		p *= 2
	}
	return p
}
