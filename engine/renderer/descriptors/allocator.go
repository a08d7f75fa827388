package descriptors

import (
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/math"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

const (
	// DefaultMaxSetsPerPool caps the size of newly created pools.
	DefaultMaxSetsPerPool uint32 = 4092
	growthFactor                 = 1.5
)

// Stats describes the allocator's pools.
type Stats struct {
	/** @brief Number of pools created since Init. */
	PoolsCreated int
	/** @brief Pools available for allocation. */
	Ready int
	/** @brief Pools known to be exhausted, waiting for ClearPools. */
	Full int
	/** @brief Set capacity of the next pool to be created. */
	NextSetsPerPool uint32
}

// GrowableAllocator hands out descriptor sets from a set of pools. When
// every pool is exhausted it creates a bigger one, up to maxSetsPerPool.
type GrowableAllocator struct {
	name           string
	device         gpu.Device
	log            *log.Logger
	ratios         []gpu.PoolSizeRatio
	ready          []gpu.DescriptorPool
	full           []gpu.DescriptorPool
	setsPerPool    uint32
	maxSetsPerPool uint32
	poolsCreated   int
}

func NewGrowableAllocator(name string, device gpu.Device) *GrowableAllocator {
	return &GrowableAllocator{
		name:           name,
		device:         device,
		log:            core.NewLogger("descriptors/" + name),
		maxSetsPerPool: DefaultMaxSetsPerPool,
	}
}

// SetMaxSetsPerPool changes the growth ceiling. Pools already created keep
// their size.
func (a *GrowableAllocator) SetMaxSetsPerPool(max uint32) {
	if max == 0 {
		max = DefaultMaxSetsPerPool
	}
	a.maxSetsPerPool = max
	a.setsPerPool = math.Min(a.setsPerPool, max)
}

// Init creates the first pool with room for initialSets sets and remembers
// ratios for every later pool.
func (a *GrowableAllocator) Init(initialSets uint32, ratios []gpu.PoolSizeRatio) error {
	if initialSets == 0 {
		return core.ContractViolation("descriptor allocator %s initialised with zero sets", a.name)
	}
	a.ratios = append(a.ratios[:0], ratios...)

	pool, err := a.createPool(initialSets)
	if err != nil {
		return err
	}
	a.setsPerPool = a.grow(initialSets)
	a.ready = append(a.ready, pool)
	return nil
}

func (a *GrowableAllocator) grow(sets uint32) uint32 {
	next := uint32(float64(sets) * growthFactor)
	// Small pools must still grow.
	next = math.Max(next, sets+1)
	return math.Min(next, a.maxSetsPerPool)
}

func (a *GrowableAllocator) createPool(sets uint32) (gpu.DescriptorPool, error) {
	pool, err := a.device.CreateDescriptorPool(sets, a.ratios)
	if err != nil {
		return gpu.DescriptorPool{}, core.Fatal(err, "create descriptor pool")
	}
	a.poolsCreated++
	a.log.Debug("pool created", "pool", pool.Handle, "sets", sets)
	return pool, nil
}

// getPool pops a ready pool or creates one at the current target size,
// then grows the target for the next creation.
func (a *GrowableAllocator) getPool() (gpu.DescriptorPool, error) {
	if n := len(a.ready); n > 0 {
		pool := a.ready[n-1]
		a.ready = a.ready[:n-1]
		return pool, nil
	}
	pool, err := a.createPool(a.setsPerPool)
	if err != nil {
		return gpu.DescriptorPool{}, err
	}
	a.setsPerPool = a.grow(a.setsPerPool)
	return pool, nil
}

// Allocate returns a set for layout. An exhausted or fragmented pool is
// parked in the full list and the allocation is retried once from a fresh
// pool; a second failure is fatal.
func (a *GrowableAllocator) Allocate(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	if a.setsPerPool == 0 {
		return gpu.DescriptorSet{}, core.ContractViolation("allocate from uninitialised descriptor allocator %s", a.name)
	}
	pool, err := a.getPool()
	if err != nil {
		return gpu.DescriptorSet{}, err
	}

	set, err := a.device.AllocateDescriptorSet(pool, layout)
	if gpu.IsPoolExhausted(err) {
		a.full = append(a.full, pool)
		a.log.Debug("pool exhausted, rotating", "pool", pool.Handle)

		pool, err = a.getPool()
		if err != nil {
			return gpu.DescriptorSet{}, err
		}
		set, err = a.device.AllocateDescriptorSet(pool, layout)
		if err != nil {
			// The fresh pool still goes back so teardown reaches it.
			a.full = append(a.full, pool)
			return gpu.DescriptorSet{}, core.Fatal(errors.Wrapf(err, "retry in fresh pool %s", pool.Handle), "allocate descriptor set")
		}
	} else if err != nil {
		a.ready = append(a.ready, pool)
		return gpu.DescriptorSet{}, core.Fatal(err, "allocate descriptor set")
	}

	a.ready = append(a.ready, pool)
	return set, nil
}

// ClearPools resets every pool and makes the full ones ready again. Sets
// allocated before the call are invalid afterwards.
func (a *GrowableAllocator) ClearPools() error {
	for _, pool := range a.ready {
		if err := a.device.ResetDescriptorPool(pool); err != nil {
			return core.Fatal(err, "reset descriptor pool")
		}
	}
	for _, pool := range a.full {
		if err := a.device.ResetDescriptorPool(pool); err != nil {
			return core.Fatal(err, "reset descriptor pool")
		}
		a.ready = append(a.ready, pool)
	}
	a.full = a.full[:0]
	return nil
}

// DestroyPools releases every pool. The allocator must be initialised
// again before further use.
func (a *GrowableAllocator) DestroyPools() {
	for _, pool := range a.ready {
		a.device.DestroyDescriptorPool(pool)
	}
	for _, pool := range a.full {
		a.device.DestroyDescriptorPool(pool)
	}
	a.ready = nil
	a.full = nil
	a.setsPerPool = 0
}

func (a *GrowableAllocator) Stats() Stats {
	return Stats{
		PoolsCreated:    a.poolsCreated,
		Ready:           len(a.ready),
		Full:            len(a.full),
		NextSetsPerPool: a.setsPerPool,
	}
}
