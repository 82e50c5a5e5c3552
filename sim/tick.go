package sim

import "fmt"

// Tick is a point in simulated time. One second of simulated wall time is
// 1000 ticks.
type Tick int64

// TicksPerSecond is the resolution of the simulated clock.
const TicksPerSecond = 1000

func (t Tick) String() string {
	return fmt.Sprintf("%d", int64(t))
}
