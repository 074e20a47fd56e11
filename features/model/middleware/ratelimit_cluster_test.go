package middleware

import (
	"context"
	"strconv"
	"testing"
	"time"

	"goa.design/pulse/rmap"

	"goa.design/ensemble/model"
)

type fakeClusterMap struct {
	values map[string]string
	ch     chan rmap.EventKind
}

func newFakeClusterMap() *fakeClusterMap {
	return &fakeClusterMap{
		values: make(map[string]string),
		ch:     make(chan rmap.EventKind, 1),
	}
}

func (m *fakeClusterMap) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *fakeClusterMap) SetIfNotExists(_ context.Context, key, value string) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	select {
	case m.ch <- rmap.EventChange:
	default:
	}
	return true, nil
}

func (m *fakeClusterMap) TestAndSet(_ context.Context, key, test, value string) (string, error) {
	cur, ok := m.values[key]
	if !ok || cur != test {
		return cur, nil
	}
	m.values[key] = value
	select {
	case m.ch <- rmap.EventChange:
	default:
	}
	return cur, nil
}

func (m *fakeClusterMap) Subscribe() <-chan rmap.EventKind {
	return m.ch
}

func TestClusterLimiter_BackoffUpdatesSharedMap(t *testing.T) {
	ctx := context.Background()
	m := newFakeClusterMap()
	const key = "model"

	m.values[key] = strconv.Itoa(80000)

	lim := newClusterAdaptiveRateLimiter(ctx, m, key, 80000, 80000)

	client := &fakeClient{err: model.ErrRateLimited}
	wrapped := lim.Middleware()(client)

	_, _ = wrapped.GenerateJSON(context.Background(), userRequest("hello"))

	// Allow the background callback to run.
	time.Sleep(10 * time.Millisecond)

	v, ok := m.Get(key)
	if !ok {
		t.Fatal("expected key to exist in cluster map")
	}
	cur, err := strconv.Atoi(v)
	if err != nil {
		t.Fatalf("invalid value in cluster map: %v", err)
	}
	if cur >= 80000 {
		t.Fatalf("expected shared TPM to decrease, got %d", cur)
	}
}

func TestClusterLimiter_FallsBackWithoutKey(t *testing.T) {
	lim := newClusterAdaptiveRateLimiter(context.Background(), nil, "", 60000, 60000)
	if lim == nil {
		t.Fatal("expected process-local limiter")
	}
	if lim.currentTPM != 60000 {
		t.Fatalf("expected initial TPM, got %f", lim.currentTPM)
	}
}
