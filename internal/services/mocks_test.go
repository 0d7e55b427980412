package services

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/nbrons/perp-prophet/internal/models"
)

// MockRateSource implements market.RateSource for testing within the services package
type MockRateSource struct {
	mock.Mock
}

func (m *MockRateSource) FetchHelixRates(ctx context.Context) (map[string]models.HelixMarketRate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]models.HelixMarketRate), args.Error(1)
}

func (m *MockRateSource) FetchBorrowRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

func (m *MockRateSource) FetchLendRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

// MockRateStore implements RateStore
type MockRateStore struct {
	mock.Mock
}

func (m *MockRateStore) Insert(ctx context.Context, record *models.RateRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRateStore) History(ctx context.Context, asset string, since time.Time) ([]models.RateRecord, error) {
	args := m.Called(ctx, asset, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RateRecord), args.Error(1)
}

func (m *MockRateStore) Latest(ctx context.Context, asset string) (*models.RateRecord, error) {
	args := m.Called(ctx, asset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RateRecord), args.Error(1)
}

func (m *MockRateStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockMessageSender implements MessageSender
type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

// memoryCache is a SnapshotCache kept in memory.
type memoryCache struct {
	mu       sync.Mutex
	snapshot *models.RateSnapshot
	sets     int
}

func (c *memoryCache) Get(ctx context.Context) (models.RateSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return models.RateSnapshot{}, false
	}
	return *c.snapshot, true
}

func (c *memoryCache) Set(ctx context.Context, snapshot models.RateSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = &snapshot
	c.sets++
	return nil
}

// memoryDeduper is an AlertDeduper kept in memory.
type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memoryDeduper) Acquire(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memoryDeduper) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

// healthyRates returns a source answering with the scenario rates:
// funding 0.0001/h, USDT borrow 10%, INJ lend 8%, USDT lend 12%.
func healthyRates() *MockRateSource {
	source := &MockRateSource{}
	source.On("FetchHelixRates", mock.Anything).Return(map[string]models.HelixMarketRate{
		"INJ": {TickerID: "INJ/USDT PERP", Token: "INJ", FundingRate: d("0.0001"), OpenInterest: d("125000")},
		"ETH": {TickerID: "ETH/USDT PERP", Token: "ETH", FundingRate: d("0.00002"), OpenInterest: d("9000")},
	}, nil)
	source.On("FetchBorrowRates", mock.Anything).Return(map[string]decimal.Decimal{
		"USDT": d("10"), "INJ": d("10"),
	}, nil)
	source.On("FetchLendRates", mock.Anything).Return(map[string]decimal.Decimal{
		"INJ": d("8"), "USDT": d("12"),
	}, nil)
	return source
}

func mockAnyTime() interface{} {
	return mock.AnythingOfType("time.Time")
}
