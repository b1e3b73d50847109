package services

import (
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockCommissionProcessor struct {
	mock.Mock
}

func (m *MockCommissionProcessor) ProcessCommission(userID int64, amount decimal.Decimal, source, action string, sourceTransactionID int64) error {
	args := m.Called(userID, amount, source, action, sourceTransactionID)
	return args.Error(0)
}

type MockRateConverter struct {
	mock.Mock
}

func (m *MockRateConverter) ConvertFromGTON(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	args := m.Called(amount, currency)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// fakeSettings serves fixed values and falls back to the caller's
// default for anything not set, like the real provider does.
type fakeSettings struct {
	decimals map[string]decimal.Decimal
	bools    map[string]bool
	ints     map[string]int
}

func (f *fakeSettings) GetDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if v, ok := f.decimals[key]; ok {
		return v
	}
	return defaultValue
}

func (f *fakeSettings) GetBool(key string, defaultValue bool) bool {
	if v, ok := f.bools[key]; ok {
		return v
	}
	return defaultValue
}

func (f *fakeSettings) GetInt(key string, defaultValue int) int {
	if v, ok := f.ints[key]; ok {
		return v
	}
	return defaultValue
}
