package session

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/yungbote/neurobridge-cat/internal/assessment/estimate"
	"github.com/yungbote/neurobridge-cat/internal/assessment/exposure"
	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

func pool(n int) []*assessment.Item {
	out := make([]*assessment.Item, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &assessment.Item{
			ID:     fmt.Sprintf("gq-%02d", i),
			Domain: "Gq",
			Family: "number_pattern",
			Model:  assessment.Model2PL,
			A:      1.5,
			B:      -1.5 + 3*float64(i)/float64(n),
		})
	}
	return out
}

func newSession(t *testing.T, cfg Config, items []*assessment.Item) (*Session, *exposure.Tracker) {
	t.Helper()
	tracker := exposure.NewTracker(exposure.NewMemory(), nil, nil)
	cfg.Domain = "Gq"
	s, err := New(cfg, items, tracker, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, tracker
}

func drive(t *testing.T, s *Session, answer func(i int) *bool) int {
	t.Helper()
	ctx := context.Background()
	n := 0
	for {
		it, _ := s.Next(ctx)
		if it == nil {
			return n
		}
		if _, err := s.Record(ctx, it, answer(n), nil); err != nil {
			t.Fatalf("Record %d: %v", n, err)
		}
		n++
		if n > 200 {
			t.Fatalf("session did not stop")
		}
	}
}

func alternate(i int) *bool {
	v := i%2 == 0
	return &v
}

func TestSessionNeverStopsBeforeMinItems(t *testing.T) {
	s, _ := newSession(t, Config{MinItems: 6, MaxItems: 10, SEMThreshold: 5}, pool(20))
	if got := drive(t, s, alternate); got != 6 {
		t.Fatalf("items: want=6 got=%d", got)
	}
	if s.StopReason() != StopPrecision {
		t.Fatalf("reason: want=%s got=%s", StopPrecision, s.StopReason())
	}
}

func TestSessionStopsAtMaxItems(t *testing.T) {
	s, _ := newSession(t, Config{MinItems: 3, MaxItems: 5, SEMThreshold: 0.01}, pool(20))
	if got := drive(t, s, alternate); got != 5 {
		t.Fatalf("items: want=5 got=%d", got)
	}
	if s.StopReason() != StopMaxItems {
		t.Fatalf("reason: want=%s got=%s", StopMaxItems, s.StopReason())
	}
}

func TestSessionStopsWhenPoolExhausted(t *testing.T) {
	s, _ := newSession(t, Config{MinItems: 8}, pool(3))
	if got := drive(t, s, alternate); got != 3 {
		t.Fatalf("items: want=3 got=%d", got)
	}
	if s.StopReason() != StopExhausted || s.Phase() != PhaseStopped {
		t.Fatalf("state: phase=%s reason=%s", s.Phase(), s.StopReason())
	}
}

func TestSessionRecordBumpsExposure(t *testing.T) {
	s, tracker := newSession(t, Config{MinItems: 2, MaxItems: 2}, pool(5))
	ctx := context.Background()
	drive(t, s, alternate)
	sum := s.Finalize()
	for _, r := range sum.Responses {
		if got := tracker.Count(ctx, r.ItemID); got != 1 {
			t.Fatalf("exposure %s: want=1 got=%d", r.ItemID, got)
		}
	}
}

func TestSessionUnscoredResponse(t *testing.T) {
	s, _ := newSession(t, Config{MinItems: 1, MaxItems: 1}, pool(4))
	ctx := context.Background()
	it, _ := s.Next(ctx)
	rt := 1234.0
	est, err := s.Record(ctx, it, nil, &rt)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if est.Theta != 0 || est.SEM != 1 {
		t.Fatalf("estimate: want prior got=%+v", est)
	}
	sum := s.Finalize()
	if sum.N != 1 || sum.Responses[0].Correct != nil || *sum.Responses[0].RTMs != rt {
		t.Fatalf("summary: got=%+v", sum)
	}
	if next, _ := s.Next(ctx); next != nil {
		t.Fatalf("Next after finalize: want nil")
	}
}

func TestSessionRejectsReadministration(t *testing.T) {
	s, _ := newSession(t, Config{MinItems: 5}, pool(6))
	ctx := context.Background()
	it, _ := s.Next(ctx)
	yes := true
	if _, err := s.Record(ctx, it, &yes, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := s.Record(ctx, it, &yes, nil); !errors.Is(err, ErrAdministered) {
		t.Fatalf("second Record: want ErrAdministered got=%v", err)
	}
	if !errors.Is(ErrAdministered, errors.ErrInvalidArgument) {
		t.Fatalf("ErrAdministered should be an invalid argument")
	}
}

func TestSessionRecordBeforeStart(t *testing.T) {
	items := pool(2)
	s, _ := newSession(t, Config{}, items)
	if _, err := s.Record(context.Background(), items[0], nil, nil); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("want ErrNotRunning got=%v", err)
	}
}

func TestSessionMalformedItemTerminates(t *testing.T) {
	s, _ := newSession(t, Config{}, pool(4))
	ctx := context.Background()
	s.Next(ctx)
	bad := &assessment.Item{ID: "gq-00", Domain: "Gq", Model: assessment.Model2PL, A: math.NaN()}
	_, err := s.Record(ctx, bad, nil, nil)
	if !errors.Is(err, errors.ErrConfig) {
		t.Fatalf("want ErrConfig got=%v", err)
	}
	if s.Phase() != PhaseStopped || s.StopReason() != StopInvalidCfg {
		t.Fatalf("state: phase=%s reason=%s", s.Phase(), s.StopReason())
	}
}

func TestNewRejectsMalformedPool(t *testing.T) {
	items := pool(2)
	items[1] = &assessment.Item{ID: "x", Domain: "Gq", Model: "1PL", A: 1}
	if _, err := New(Config{Domain: "Gq"}, items, nil, nil); !errors.Is(err, errors.ErrConfig) {
		t.Fatalf("want ErrConfig got=%v", err)
	}
}

func TestSessionEAPEstimator(t *testing.T) {
	s, _ := newSession(t, Config{MinItems: 4, MaxItems: 4, Estimator: estimate.NewEAP(0.1)}, pool(10))
	drive(t, s, func(int) *bool { v := true; return &v })
	est := s.Estimate()
	if est.Theta <= 0 || est.SEM <= 0 {
		t.Fatalf("all correct: want theta>0 got=%+v", est)
	}
}

func TestSessionResponsesTrackTheta(t *testing.T) {
	s, _ := newSession(t, Config{MinItems: 4, MaxItems: 4}, pool(10))
	drive(t, s, alternate)
	sum := s.Finalize()
	for i := 1; i < len(sum.Responses); i++ {
		if sum.Responses[i].ThetaBefore != sum.Responses[i-1].ThetaAfter {
			t.Fatalf("response %d: thetaBefore=%v previous thetaAfter=%v", i, sum.Responses[i].ThetaBefore, sum.Responses[i-1].ThetaAfter)
		}
	}
	if sum.Theta != sum.Responses[len(sum.Responses)-1].ThetaAfter {
		t.Fatalf("summary theta mismatch")
	}
}

func TestSessionRecordRequiresSelectedItem(t *testing.T) {
	items := pool(10)
	s, tracker := newSession(t, Config{MinItems: 2, MaxItems: 2, SEMThreshold: 0.01}, items)
	ctx := context.Background()
	yes := true

	it, _ := s.Next(ctx)
	var other *assessment.Item
	for _, cand := range items {
		if cand.ID != it.ID {
			other = cand
			break
		}
	}
	if _, err := s.Record(ctx, other, &yes, nil); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("unselected item: want ErrNotSelected got=%v", err)
	}
	if got := tracker.Count(ctx, other.ID); got != 0 {
		t.Fatalf("rejected item exposure: want=0 got=%d", got)
	}
	if _, err := s.Record(ctx, it, &yes, nil); err != nil {
		t.Fatalf("Record selected: %v", err)
	}

	// recording again without Next is rejected even for a fresh pool item
	if _, err := s.Record(ctx, other, &yes, nil); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("Record without Next: want ErrNotSelected got=%v", err)
	}
	if s.N() != 1 {
		t.Fatalf("responses: want=1 got=%d", s.N())
	}
}

func TestSessionRecordNeverExceedsMaxItems(t *testing.T) {
	s, _ := newSession(t, Config{MinItems: 2, MaxItems: 2, SEMThreshold: 0.01}, pool(10))
	ctx := context.Background()
	yes := true
	for i := 0; i < 2; i++ {
		it, _ := s.Next(ctx)
		if it == nil {
			t.Fatalf("Next %d: want item", i)
		}
		if _, err := s.Record(ctx, it, &yes, nil); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	if s.Phase() != PhaseStopped || s.StopReason() != StopMaxItems {
		t.Fatalf("after max items: phase=%s reason=%s", s.Phase(), s.StopReason())
	}
	items := pool(10)
	if _, err := s.Record(ctx, items[9], &yes, nil); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Record past max: want ErrNotRunning got=%v", err)
	}
	if s.N() != 2 {
		t.Fatalf("responses: want=2 got=%d", s.N())
	}
}
