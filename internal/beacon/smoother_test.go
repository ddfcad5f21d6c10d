package beacon_test

import (
	"math"
	"testing"

	"github.com/presenceguard/presenceguard/internal/beacon"
)

func TestSmoother_FirstReadingSeeds(t *testing.T) {
	s := beacon.NewSmoother(0.4)
	if got := s.Update("aa:bb:cc:dd:ee:ff", -70); got != -70 {
		t.Errorf("first reading = %f, want -70", got)
	}
}

func TestSmoother_ExponentialAverage(t *testing.T) {
	s := beacon.NewSmoother(0.4)
	s.Update("dev", -70)

	got := s.Update("dev", -60)
	want := 0.4*-60 + 0.6*-70 // -64
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("second reading = %f, want %f", got, want)
	}

	got = s.Update("dev", -50)
	want = 0.4*-50 + 0.6*want
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("third reading = %f, want %f", got, want)
	}
}

func TestSmoother_IndependentKeys(t *testing.T) {
	s := beacon.NewSmoother(0.4)
	s.Update("a", -90)
	if got := s.Update("b", -40); got != -40 {
		t.Errorf("key b should seed independently, got %f", got)
	}
}

func TestSmoother_InvalidAlphaFallsBack(t *testing.T) {
	for _, alpha := range []float64{0, -1, 1.5} {
		s := beacon.NewSmoother(alpha)
		s.Update("dev", -80)
		got := s.Update("dev", -60)
		want := beacon.DefaultAlpha*-60 + (1-beacon.DefaultAlpha)*-80
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("alpha %f: got %f, want %f", alpha, got, want)
		}
	}
}

func TestSmoother_Reset(t *testing.T) {
	s := beacon.NewSmoother(0.4)
	s.Update("dev", -90)
	s.Reset()
	if got := s.Update("dev", -50); got != -50 {
		t.Errorf("expected seeding after reset, got %f", got)
	}
}
