package mohb

import "math/rand"

// gpuAllocator tracks in-flight jobs per GPU device and assigns devices
// by a least-loaded policy. The random source is injected so tests can
// pin tie-breaks and preference orderings.
type gpuAllocator struct {
	devices []int
	usage   map[int]int
	rng     *rand.Rand
}

func newGPUAllocator(devices []int, rng *rand.Rand) *gpuAllocator {
	usage := make(map[int]int, len(devices))
	for _, id := range devices {
		usage[id] = 0
	}
	return &gpuAllocator{devices: devices, usage: usage, rng: rng}
}

// assign picks the device with the minimum usage counter, breaking ties
// randomly, increments its counter and returns the device plus a
// preference ordering: the chosen device first, the remaining devices in
// randomized order so the worker can fall back if its primary device is
// unexpectedly busy.
func (g *gpuAllocator) assign() (deviceID int, preference []int) {
	minUsage := -1
	for _, id := range g.devices {
		if minUsage < 0 || g.usage[id] < minUsage {
			minUsage = g.usage[id]
		}
	}
	var candidates []int
	for _, id := range g.devices {
		if g.usage[id] == minUsage {
			candidates = append(candidates, id)
		}
	}
	deviceID = candidates[g.rng.Intn(len(candidates))]
	g.usage[deviceID]++

	var rest []int
	for _, id := range g.devices {
		if id != deviceID {
			rest = append(rest, id)
		}
	}
	g.rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })

	preference = append([]int{deviceID}, rest...)
	return deviceID, preference
}

// release decrements the device counter once its job has resolved.
func (g *gpuAllocator) release(deviceID int) {
	if _, ok := g.usage[deviceID]; ok && g.usage[deviceID] > 0 {
		g.usage[deviceID]--
	}
}

// load returns a copy of the usage table for logging and tests.
func (g *gpuAllocator) load() map[int]int {
	out := make(map[int]int, len(g.usage))
	for k, v := range g.usage {
		out[k] = v
	}
	return out
}
