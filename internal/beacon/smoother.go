package beacon

import "sync"

// DefaultAlpha is the smoothing factor applied to new readings.
const DefaultAlpha = 0.4

// Smoother applies an exponential moving average to per-transmitter signal
// strength readings. State is kept per observed device address.
type Smoother struct {
	alpha float64

	mu   sync.Mutex
	prev map[string]float64
}

// NewSmoother creates a smoother with the given factor; zero selects
// DefaultAlpha.
func NewSmoother(alpha float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Smoother{
		alpha: alpha,
		prev:  make(map[string]float64),
	}
}

// Update folds a raw reading for the given device address into the running
// average and returns the smoothed value. The first reading per address
// seeds the average.
func (s *Smoother) Update(deviceKey string, raw float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.prev[deviceKey]
	if !ok {
		s.prev[deviceKey] = raw
		return raw
	}

	smoothed := s.alpha*raw + (1-s.alpha)*prev
	s.prev[deviceKey] = smoothed
	return smoothed
}

// Reset discards all per-device state.
func (s *Smoother) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prev = make(map[string]float64)
}
