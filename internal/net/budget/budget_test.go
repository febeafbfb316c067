package budget

import (
	"strings"
	"testing"
	"time"
)

func TestTracker_Allow(t *testing.T) {
	tracker := NewTracker(100, 0, 0.8)

	for i := 0; i < 80; i++ {
		tracker.Consume(1)
	}

	err := tracker.Allow()
	if err == nil {
		t.Error("should warn at 80% threshold")
	}
	if _, ok := err.(*WarningError); !ok {
		t.Errorf("should return *WarningError, got %T: %v", err, err)
	}

	for i := 80; i < 100; i++ {
		tracker.Consume(1)
	}

	err = tracker.Allow()
	if err == nil {
		t.Error("should block at 100% limit")
	}
	if _, ok := err.(*ExhaustedError); !ok {
		t.Errorf("should return *ExhaustedError, got %T: %v", err, err)
	}
}

func TestTracker_Consume(t *testing.T) {
	tracker := NewTracker(10, 0, 0.8)

	for i := 0; i < 7; i++ {
		if err := tracker.Consume(1); err != nil {
			t.Errorf("call %d should succeed: %v", i, err)
		}
	}

	err := tracker.Consume(1) // 8th = 80%
	if err == nil {
		t.Error("should warn at 80% threshold")
	}
	if _, ok := err.(*WarningError); !ok {
		t.Errorf("should return *WarningError, got %T: %v", err, err)
	}

	tracker.Consume(1) // 9th
	tracker.Consume(1) // 10th, at limit

	err = tracker.Consume(1)
	if err == nil {
		t.Error("should block consumption over limit")
	}
	if _, ok := err.(*ExhaustedError); !ok {
		t.Errorf("should return *ExhaustedError, got %T: %v", err, err)
	}

	if stats := tracker.Stats(); stats.Used != 10 {
		t.Errorf("usage should stay at 10 after a blocked attempt, got %d", stats.Used)
	}
}

func TestTracker_Stats(t *testing.T) {
	tracker := NewTracker(100, 12, 0.75)

	for i := 0; i < 30; i++ {
		tracker.Consume(1)
	}

	stats := tracker.Stats()
	if stats.Limit != 100 {
		t.Errorf("limit should be 100, got %d", stats.Limit)
	}
	if stats.Used != 30 {
		t.Errorf("used should be 30, got %d", stats.Used)
	}
	if stats.Remaining != 70 {
		t.Errorf("remaining should be 70, got %d", stats.Remaining)
	}
	if abs64(stats.UtilizationRate-0.30) > 0.01 {
		t.Errorf("utilization should be 0.30, got %.2f", stats.UtilizationRate)
	}
	if stats.IsWarning {
		t.Error("should not warn at 30% utilization")
	}
	if stats.IsExhausted {
		t.Error("should not be exhausted at 30% utilization")
	}
	if stats.TimeToReset() <= 0 {
		t.Error("time to reset should be positive")
	}
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker(50, 0, 0.8)

	for i := 0; i < 50; i++ {
		tracker.Consume(1)
	}
	if stats := tracker.Stats(); !stats.IsExhausted {
		t.Error("should be exhausted after consuming the full budget")
	}

	tracker.Reset()

	if err := tracker.Allow(); err != nil {
		t.Errorf("should allow calls after reset: %v", err)
	}
	if stats := tracker.Stats(); stats.Used != 0 {
		t.Errorf("used should be 0 after reset, got %d", stats.Used)
	}
}

func TestTracker_SetLimit(t *testing.T) {
	tracker := NewTracker(100, 0, 0.8)

	for i := 0; i < 50; i++ {
		tracker.Consume(1)
	}

	tracker.SetLimit(30)
	if err := tracker.Allow(); err == nil {
		t.Error("should block once usage exceeds the lowered limit")
	}

	tracker.SetLimit(100)
	if err := tracker.Allow(); err != nil {
		t.Errorf("should allow once limit is raised above usage: %v", err)
	}
}

func TestTracker_AutoReset(t *testing.T) {
	now := time.Now().UTC()
	tracker := NewTracker(100, now.Hour(), 0.8)

	for i := 0; i < 50; i++ {
		tracker.Consume(1)
	}

	tracker.mu.Lock()
	tracker.lastReset = now.Add(-25 * time.Hour)
	tracker.mu.Unlock()

	if err := tracker.Allow(); err != nil {
		t.Errorf("should allow after an automatic period reset: %v", err)
	}
	if stats := tracker.Stats(); stats.Used >= 50 {
		t.Errorf("usage should have reset, got %d", stats.Used)
	}
}

func TestTracker_SyncFromResponse(t *testing.T) {
	tracker := NewTracker(1000, 0, 0.8)
	tracker.Consume(400)

	var gotRPS float64
	tracker.BindLimiter(func(rps float64) { gotRPS = rps })

	tracker.SyncFromResponse(500, 120) // remote says 500 left, refills 120/min

	stats := tracker.Stats()
	if stats.Used != 500 {
		t.Errorf("used should follow the remote-reported remaining count, got %d", stats.Used)
	}
	if stats.RefillPerMinute != 120 {
		t.Errorf("refill per minute should be recorded, got %f", stats.RefillPerMinute)
	}
	if gotRPS != 2.0 {
		t.Errorf("bound limiter should receive 120/min converted to 2 rps, got %f", gotRPS)
	}
}

func TestExhaustedError_Message(t *testing.T) {
	err := &ExhaustedError{Used: 100, Limit: 100, ETA: time.Now().Add(2 * time.Hour)}
	msg := err.Error()
	if !strings.Contains(msg, "100/100") {
		t.Errorf("message should contain usage, got %s", msg)
	}
}

func TestWarningError_Message(t *testing.T) {
	err := &WarningError{Used: 80, Limit: 100, Threshold: 0.8}
	msg := err.Error()
	if !strings.Contains(msg, "80.0%") {
		t.Errorf("message should contain utilization percentage, got %s", msg)
	}
}

func abs64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
