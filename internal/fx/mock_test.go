package fx

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/freight-quotes/pkg/frankfurter"
)

type mockRateProvider struct {
	mock.Mock
}

func (m *mockRateProvider) Rate(ctx context.Context, source, target string) (float64, error) {
	args := m.Called(ctx, source, target)
	return args.Get(0).(float64), args.Error(1)
}

type mockFrankfurter struct {
	mock.Mock
}

func (m *mockFrankfurter) Latest(ctx context.Context, base string, symbols ...string) (*frankfurter.LatestResponse, error) {
	args := m.Called(ctx, base, symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*frankfurter.LatestResponse), args.Error(1)
}
