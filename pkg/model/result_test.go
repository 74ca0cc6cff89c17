package model

import (
	"errors"
	"testing"
	"time"
)

func TestFinish(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	var r PlanResult
	r.Finish(nil, now)
	if r.Status != "success" || r.Error != "" {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.EndedAt.Location() != time.UTC || r.EndedAt.Hour() != 10 {
		t.Fatalf("end time must be UTC, got %v", r.EndedAt)
	}

	r = PlanResult{}
	r.Finish(errors.New("step Bootstrap failed"), now)
	if r.Status != "failed" || r.Error != "step Bootstrap failed" {
		t.Fatalf("unexpected result: %+v", r)
	}
}
