package scale

import (
	"fmt"
	"math"
	"time"

	"github.com/fatih/stopwatch"
)

// Settle blocks until stableSamples consecutive raw readings lie within a band of
// |maxNoiseRatio * baseline| around the current baseline and returns that baseline.
// A reading outside the band resets the count and becomes the new baseline.
// Readings are paced by samplePeriod and the timeout is only checked between
// readings, so an in-flight read is never interrupted. Read failures abort
// immediately and are returned unchanged.
func Settle(r Reader, samplePeriod time.Duration, stableSamples int, timeout time.Duration, maxNoiseRatio float64) (float64, error) {
	if stableSamples < 1 {
		return 0, fmt.Errorf("%w: number of stable samples must be positive, got %d", ErrInvalidArgument, stableSamples)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidArgument, timeout)
	}
	if maxNoiseRatio < 0 || math.IsNaN(maxNoiseRatio) {
		return 0, fmt.Errorf("%w: noise ratio must not be negative, got %v", ErrInvalidArgument, maxNoiseRatio)
	}

	timer := stopwatch.Start(0)
	defer timer.Stop()

	baseline, err := r.ReadRatio()
	if err != nil {
		return 0, err
	}

	for stableCount := 0; stableCount < stableSamples; {
		reading, err := r.ReadRatio()
		if err != nil {
			return 0, err
		}

		band := math.Abs(maxNoiseRatio * baseline)
		if math.Abs(reading-baseline) <= band {
			stableCount++
		} else {
			stableCount = 0
			baseline = reading
		}
		if stableCount >= stableSamples {
			break
		}

		time.Sleep(samplePeriod)
		if elapsed := timer.ElapsedTime(); elapsed > timeout {
			return 0, fmt.Errorf("%w: no %d consecutive stable samples within %v (last baseline %v)", ErrTimeout, stableSamples, timeout, baseline)
		}
	}

	return baseline, nil
}
