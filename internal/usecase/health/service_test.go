package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockGateChecker struct {
	err error
}

func (m *mockGateChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockGateChecker{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["store"] != CheckOK {
		t.Errorf("expected store %q, got %q", CheckOK, r.Checks["store"])
	}
	if r.Checks["disclosure_gate"] != CheckOK {
		t.Errorf("expected disclosure_gate %q, got %q", CheckOK, r.Checks["disclosure_gate"])
	}
}

func TestCheck_StoreError(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}, &mockGateChecker{})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["store"] != CheckError {
		t.Errorf("expected store %q, got %q", CheckError, r.Checks["store"])
	}
	if r.Checks["disclosure_gate"] != CheckOK {
		t.Errorf("expected disclosure_gate %q, got %q", CheckOK, r.Checks["disclosure_gate"])
	}
}

func TestCheck_GateError(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockGateChecker{err: errors.New("circuit open")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["store"] != CheckOK {
		t.Errorf("expected store %q, got %q", CheckOK, r.Checks["store"])
	}
	if r.Checks["disclosure_gate"] != CheckError {
		t.Errorf("expected disclosure_gate %q, got %q", CheckError, r.Checks["disclosure_gate"])
	}
}

func TestCheck_BothFail(t *testing.T) {
	svc := New(
		&mockDBPinger{err: errors.New("db down")},
		&mockGateChecker{err: errors.New("gate down")},
	)
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["store"] != CheckError {
		t.Error("expected store error")
	}
	if r.Checks["disclosure_gate"] != CheckError {
		t.Error("expected disclosure_gate error")
	}
}

func TestCheck_NoGate(t *testing.T) {
	svc := New(&mockDBPinger{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["store"] != CheckOK {
		t.Errorf("expected store %q, got %q", CheckOK, r.Checks["store"])
	}
	if _, ok := r.Checks["disclosure_gate"]; ok {
		t.Error("disclosure_gate check should be absent when gate is nil")
	}
}

func TestCheck_NoGate_StoreError(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("fail")}, nil)
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["store"] != CheckError {
		t.Error("expected store error")
	}
	if _, ok := r.Checks["disclosure_gate"]; ok {
		t.Error("disclosure_gate check should be absent when gate is nil")
	}
}
