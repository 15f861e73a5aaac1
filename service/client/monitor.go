package client

import (
	"log"
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
)

var monitor *Monitor

// Monitor keeps Client stats.
type Monitor struct {
	sync.Mutex
	updReqDur        *movingaverage.MovingAverage
	consistencyDur   *movingaverage.MovingAverage
	updReqSend       int
	eventsApplied    int
	echoesDiscarded  int
	eventsRejected   int
	resyncs          int
	consistencyReset time.Time
	running          int
	stopCh           chan struct{}
}

func (m *Monitor) UpdatesSend(count int, dur time.Duration) {
	m.Lock()
	defer m.Unlock()

	m.updReqSend += count
	m.updReqDur.Add(float64(dur/time.Microsecond) / 1000.0)
}

func (m *Monitor) EventApplied() {
	m.Lock()
	defer m.Unlock()

	m.eventsApplied++
}

func (m *Monitor) EchoDiscarded() {
	m.Lock()
	defer m.Unlock()

	m.echoesDiscarded++
}

func (m *Monitor) EventRejected() {
	m.Lock()
	defer m.Unlock()

	m.eventsRejected++
}

func (m *Monitor) Resynced() {
	m.Lock()
	defer m.Unlock()

	m.resyncs++
}

func (m *Monitor) ConsistencyReset(ts time.Time) {
	m.Lock()
	defer m.Unlock()

	m.consistencyReset = ts
}

func (m *Monitor) ConsistencyAchieved(ts time.Time) {
	m.Lock()
	defer m.Unlock()

	dur := ts.Sub(m.consistencyReset)
	m.consistencyDur.Add(float64(dur/time.Microsecond) / 1000.0)
}

// Start starts the Monitor worker (reference counted, clients share the monitor).
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

// Stop stops the Monitor worker once the last client stops.
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

			updReqPerSec := float64(m.updReqSend) / (float64(period) / float64(time.Second))
			log.Printf("Monitor:")
			log.Printf("  - Update requests / s:     %.2f", updReqPerSec)
			log.Printf("  - Update request dur [ms]: %.2f", m.updReqDur.Avg())
			log.Printf("  - Echo round trip [ms]:    %.2f", m.consistencyDur.Avg())
			log.Printf("  - Events applied:          %d", m.eventsApplied)
			log.Printf("  - Echoes discarded:        %d", m.echoesDiscarded)
			log.Printf("  - Events rejected:         %d", m.eventsRejected)
			log.Printf("  - Resyncs:                 %d", m.resyncs)
			m.updReqSend = 0
			m.eventsApplied = 0
			m.echoesDiscarded = 0
			m.eventsRejected = 0
			m.resyncs = 0

			m.Unlock()
		}
	}
}

func init() {
	monitor = &Monitor{
		updReqDur:      movingaverage.New(3),
		consistencyDur: movingaverage.New(3),
	}
}
