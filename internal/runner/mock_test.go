package runner

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/freight-quotes/internal/runlog"
)

type mockRates struct {
	mock.Mock
}

func (m *mockRates) Rate(ctx context.Context, source, target string) (float64, error) {
	args := m.Called(ctx, source, target)
	return args.Get(0).(float64), args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Append(ctx context.Context, e runlog.Entry) (string, error) {
	args := m.Called(ctx, e)
	return args.String(0), args.Error(1)
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Sleep(_ context.Context, d time.Duration) { c.now = c.now.Add(d) }
