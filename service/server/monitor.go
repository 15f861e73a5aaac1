package server

import (
	"log"
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
)

var monitor *Monitor

// Monitor keeps ListService stats.
type Monitor struct {
	sync.Mutex
	mutationsHandled int
	requestsHandled  int
	publishFailures  int
	reqDur           *movingaverage.MovingAverage
	running          int
	stopCh           chan struct{}
}

// MutationHandled increments the persisted mutations metric.
func (m *Monitor) MutationHandled() {
	m.Lock()
	defer m.Unlock()

	m.mutationsHandled++
}

// PublishFailed increments the lost broadcasts metric.
func (m *Monitor) PublishFailed() {
	m.Lock()
	defer m.Unlock()

	m.publishFailures++
}

// RequestServed updates the request handling duration metric.
func (m *Monitor) RequestServed(dur time.Duration) {
	m.Lock()
	defer m.Unlock()

	m.reqDur.Add(float64(dur/time.Microsecond) / 1000.0)
	m.requestsHandled++
}

// Start starts the Monitor worker (reference counted, services share the monitor).
func (m *Monitor) Start() {
	m.Lock()
	defer m.Unlock()

	m.running++
	if m.stopCh != nil {
		return
	}

	m.stopCh = make(chan struct{})
	go m.worker(m.stopCh)
}

// Stop stops the Monitor worker once the last user stops.
func (m *Monitor) Stop() {
	m.Lock()
	defer m.Unlock()

	if m.stopCh == nil {
		return
	}
	m.running--
	if m.running > 0 {
		return
	}

	close(m.stopCh)
	m.stopCh = nil
}

// worker does the actual job.
func (m *Monitor) worker(stopCh chan struct{}) {
	const period = 5 * time.Second

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			// Stop the monitor
			return
		case <-ticker.C:
			// Print the report
			m.Lock()

			mutsPerSec := float64(m.mutationsHandled) / (float64(period) / float64(time.Second))
			reqsPerSec := float64(m.requestsHandled) / (float64(period) / float64(time.Second))
			log.Printf("Monitor:")
			log.Printf("  - List mutations / s:  %.2f", mutsPerSec)
			log.Printf("  - Requests / s:        %.2f", reqsPerSec)
			log.Printf("  - Request dur [ms]:    %.2f", m.reqDur.Avg())
			log.Printf("  - Publish failures:    %d", m.publishFailures)
			m.mutationsHandled = 0
			m.requestsHandled = 0
			m.publishFailures = 0

			m.Unlock()
		}
	}
}

func init() {
	monitor = &Monitor{
		reqDur: movingaverage.New(5),
	}
}
