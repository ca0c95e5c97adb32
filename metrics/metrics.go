package metrics

import (
	"sort"
	"sync"
	"time"
)

type counter struct {
	value   int64
	total   int64
	started time.Time

	window      int64
	windowStart time.Time
	rate1s      float64
}

// Snapshot is a point in time view of one counter.
type Snapshot struct {
	Name        string
	Value       int64
	Total       int64
	Rate1s      float64
	Performance float64
}

var (
	counters     = make(map[string]*counter)
	countersLock sync.RWMutex
)

// must hold countersLock
func getOrCreate(name string, now time.Time) *counter {
	c, exists := counters[name]
	if !exists {
		c = &counter{started: now, windowStart: now}
		counters[name] = c
	}
	return c
}

// Tick adds value to the named counter, the prometheus events counter follows.
func Tick(name string, value int64) {
	now := time.Now()

	countersLock.Lock()
	c := getOrCreate(name, now)
	c.value += value
	c.window += value
	if elapsed := now.Sub(c.windowStart); elapsed >= time.Second {
		c.rate1s = float64(c.window) / elapsed.Seconds()
		c.window = 0
		c.windowStart = now
	}
	countersLock.Unlock()

	EventsTotal.WithLabelValues(name).Add(float64(value))
}

// SetTotal records how many events the named counter is expected to reach.
func SetTotal(name string, total int64) {
	countersLock.Lock()
	getOrCreate(name, time.Now()).total = total
	countersLock.Unlock()
}

func GetTotal(name string) int64 {
	c, _ := lookup(name)
	return c.total
}

func lookup(name string) (counter, bool) {
	countersLock.RLock()
	defer countersLock.RUnlock()

	c, exists := counters[name]
	if !exists {
		return counter{}, false
	}
	return *c, true
}

func Get(name string) int64 {
	c, _ := lookup(name)
	return c.value
}

// GetPerformance is the average per second rate since the first tick.
func GetPerformance(name string) float64 {
	c, exists := lookup(name)
	if !exists {
		return 0
	}
	return c.performance(time.Now())
}

func GetRate1s(name string) float64 {
	c, _ := lookup(name)
	return c.rate1s
}

func (c counter) performance(now time.Time) float64 {
	elapsed := now.Sub(c.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.value) / elapsed
}

// Snapshots returns every counter sorted by name.
func Snapshots() []Snapshot {
	now := time.Now()

	countersLock.RLock()
	result := make([]Snapshot, 0, len(counters))
	for name, c := range counters {
		result = append(result, Snapshot{
			Name:        name,
			Value:       c.value,
			Total:       c.total,
			Rate1s:      c.rate1s,
			Performance: c.performance(now),
		})
	}
	countersLock.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
