package services

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestPayoutService_RequestPayout(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	t.Run("freezes amount and creates pending request", func(t *testing.T) {
		rates := &MockRateConverter{}
		rates.On("ConvertFromGTON", mock.Anything, "RUB").
			Return(decimal.RequireFromString("2.5"), nil)
		service := NewPayoutService(db, &fakeSettings{}, rates, nil)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT user_id, balance, frozen_balance, status FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "frozen_balance", "status"}).
				AddRow(2, "100", "20", "active"))
		dbMock.ExpectExec("UPDATE partners SET frozen_balance").
			WithArgs("30", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery("INSERT INTO payouts").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(55))
		dbMock.ExpectCommit()

		result, err := service.RequestPayout(7, decimal.NewFromInt(30), "card", map[string]string{"card": "2200..."}, "RUB")

		assert.NoError(t, err)
		assert.Equal(t, int64(55), result.PayoutID)
		assert.True(t, result.AmountGTON.Equal(decimal.NewFromInt(30)))
		assert.True(t, result.FeeGTON.IsZero())
		assert.True(t, result.AmountFiat.Equal(decimal.RequireFromString("75")))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("two pending requests stack their freezes", func(t *testing.T) {
		rates := &MockRateConverter{}
		rates.On("ConvertFromGTON", mock.Anything, "RUB").
			Return(decimal.RequireFromString("2.5"), nil)
		service := NewPayoutService(db, &fakeSettings{}, rates, nil)

		// First request: nothing frozen yet.
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT user_id, balance, frozen_balance, status FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "frozen_balance", "status"}).
				AddRow(2, "100", "0", "active"))
		dbMock.ExpectExec("UPDATE partners SET frozen_balance").
			WithArgs("30", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery("INSERT INTO payouts").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(60))
		dbMock.ExpectCommit()

		// Second request validates against the already-frozen 30.
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT user_id, balance, frozen_balance, status FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "frozen_balance", "status"}).
				AddRow(2, "100", "30", "active"))
		dbMock.ExpectExec("UPDATE partners SET frozen_balance").
			WithArgs("30", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery("INSERT INTO payouts").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(61))
		dbMock.ExpectCommit()

		first, err := service.RequestPayout(7, decimal.NewFromInt(30), "card", nil, "RUB")
		assert.NoError(t, err)
		assert.Equal(t, int64(60), first.PayoutID)

		second, err := service.RequestPayout(7, decimal.NewFromInt(30), "card", nil, "RUB")
		assert.NoError(t, err)
		assert.Equal(t, int64(61), second.PayoutID)

		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("fee reduces the fiat amount", func(t *testing.T) {
		rates := &MockRateConverter{}
		rates.On("ConvertFromGTON", mock.Anything, "RUB").
			Return(decimal.RequireFromString("2"), nil)
		service := NewPayoutService(db, &fakeSettings{
			decimals: map[string]decimal.Decimal{"payout.fee_percent": decimal.NewFromInt(10)},
		}, rates, nil)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT user_id, balance, frozen_balance, status FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "frozen_balance", "status"}).
				AddRow(2, "100", "0", "active"))
		dbMock.ExpectExec("UPDATE partners SET frozen_balance").
			WithArgs("30", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery("INSERT INTO payouts").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(56))
		dbMock.ExpectCommit()

		result, err := service.RequestPayout(7, decimal.NewFromInt(30), "card", nil, "RUB")

		assert.NoError(t, err)
		assert.True(t, result.FeeGTON.Equal(decimal.NewFromInt(3)))
		assert.True(t, result.AmountFiat.Equal(decimal.NewFromInt(54)))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("below minimum", func(t *testing.T) {
		service := NewPayoutService(db, &fakeSettings{}, &MockRateConverter{}, nil)

		_, err := service.RequestPayout(7, decimal.NewFromInt(3), "card", nil, "RUB")

		assert.ErrorIs(t, err, ErrBelowMinimum)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		service := NewPayoutService(db, &fakeSettings{}, &MockRateConverter{}, nil)

		_, err := service.RequestPayout(7, decimal.Zero, "card", nil, "RUB")

		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("rate unavailable", func(t *testing.T) {
		rates := &MockRateConverter{}
		rates.On("ConvertFromGTON", mock.Anything, "USD").
			Return(decimal.Zero, ErrRateUnavailable)
		service := NewPayoutService(db, &fakeSettings{}, rates, nil)

		_, err := service.RequestPayout(7, decimal.NewFromInt(30), "card", nil, "USD")

		assert.ErrorIs(t, err, ErrRateUnavailable)
	})

	t.Run("partner not active", func(t *testing.T) {
		rates := &MockRateConverter{}
		rates.On("ConvertFromGTON", mock.Anything, "RUB").
			Return(decimal.RequireFromString("2.5"), nil)
		service := NewPayoutService(db, &fakeSettings{}, rates, nil)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT user_id, balance, frozen_balance, status FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "frozen_balance", "status"}).
				AddRow(2, "100", "0", "pending"))
		dbMock.ExpectRollback()

		_, err := service.RequestPayout(7, decimal.NewFromInt(30), "card", nil, "RUB")

		assert.ErrorIs(t, err, ErrPartnerNotActive)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("frozen funds reduce the available balance", func(t *testing.T) {
		rates := &MockRateConverter{}
		rates.On("ConvertFromGTON", mock.Anything, "RUB").
			Return(decimal.RequireFromString("2.5"), nil)
		service := NewPayoutService(db, &fakeSettings{}, rates, nil)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT user_id, balance, frozen_balance, status FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "frozen_balance", "status"}).
				AddRow(2, "100", "80", "active"))
		dbMock.ExpectRollback()

		_, err := service.RequestPayout(7, decimal.NewFromInt(30), "card", nil, "RUB")

		assert.ErrorIs(t, err, ErrInsufficientAvailableBalance)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPayoutService_ApprovePayout(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPayoutService(db, &fakeSettings{}, &MockRateConverter{}, nil)

	t.Run("settles frozen amount", func(t *testing.T) {
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT partner_id FROM payouts").
			WithArgs(int64(55)).
			WillReturnRows(sqlmock.NewRows([]string{"partner_id"}).AddRow(7))
		dbMock.ExpectQuery("SELECT user_id, balance, frozen_balance, status FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "frozen_balance", "status"}).
				AddRow(2, "100", "30", "active"))
		dbMock.ExpectQuery("SELECT amount_gton, fee_gton, amount_fiat, currency, status FROM payouts").
			WithArgs(int64(55)).
			WillReturnRows(sqlmock.NewRows([]string{"amount_gton", "fee_gton", "amount_fiat", "currency", "status"}).
				AddRow("30", "0", "75", "RUB", "pending"))
		dbMock.ExpectExec("UPDATE partners").
			WithArgs("30", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("UPDATE payouts").
			WithArgs(int64(99), "looks good", int64(55)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		result, err := service.ApprovePayout(55, 99, "looks good")

		assert.NoError(t, err)
		assert.True(t, result.AmountGTON.Equal(decimal.NewFromInt(30)))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("second decision loses", func(t *testing.T) {
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT partner_id FROM payouts").
			WithArgs(int64(55)).
			WillReturnRows(sqlmock.NewRows([]string{"partner_id"}).AddRow(7))
		dbMock.ExpectQuery("SELECT user_id, balance, frozen_balance, status FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "frozen_balance", "status"}).
				AddRow(2, "70", "0", "active"))
		dbMock.ExpectQuery("SELECT amount_gton, fee_gton, amount_fiat, currency, status FROM payouts").
			WithArgs(int64(55)).
			WillReturnRows(sqlmock.NewRows([]string{"amount_gton", "fee_gton", "amount_fiat", "currency", "status"}).
				AddRow("30", "0", "75", "RUB", "completed"))
		dbMock.ExpectRollback()

		_, err := service.ApprovePayout(55, 99, "")

		assert.ErrorIs(t, err, ErrPayoutAlreadyProcessed)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("payout not found", func(t *testing.T) {
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT partner_id FROM payouts").
			WithArgs(int64(404)).
			WillReturnError(sql.ErrNoRows)
		dbMock.ExpectRollback()

		_, err := service.ApprovePayout(404, 99, "")

		assert.ErrorIs(t, err, ErrPayoutNotFound)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPayoutService_RejectPayout(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPayoutService(db, &fakeSettings{}, &MockRateConverter{}, nil)

	t.Run("unfreezes without touching the balance", func(t *testing.T) {
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT partner_id FROM payouts").
			WithArgs(int64(55)).
			WillReturnRows(sqlmock.NewRows([]string{"partner_id"}).AddRow(7))
		dbMock.ExpectQuery("SELECT user_id, balance, frozen_balance, status FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "frozen_balance", "status"}).
				AddRow(2, "100", "30", "active"))
		dbMock.ExpectQuery("SELECT amount_gton, fee_gton, amount_fiat, currency, status FROM payouts").
			WithArgs(int64(55)).
			WillReturnRows(sqlmock.NewRows([]string{"amount_gton", "fee_gton", "amount_fiat", "currency", "status"}).
				AddRow("30", "0", "75", "RUB", "pending"))
		dbMock.ExpectExec("UPDATE partners SET frozen_balance").
			WithArgs("30", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("UPDATE payouts").
			WithArgs(int64(99), "invalid details", int64(55)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		result, err := service.RejectPayout(55, 99, "invalid details")

		assert.NoError(t, err)
		assert.True(t, result.AmountGTON.Equal(decimal.NewFromInt(30)))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPayoutService_CancelPayout(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPayoutService(db, &fakeSettings{}, &MockRateConverter{}, nil)

	t.Run("owner cancels a pending payout", func(t *testing.T) {
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT p.partner_id FROM payouts p").
			WithArgs(int64(55), int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"partner_id"}).AddRow(7))
		dbMock.ExpectQuery("SELECT user_id, balance, frozen_balance, status FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "frozen_balance", "status"}).
				AddRow(2, "100", "30", "active"))
		dbMock.ExpectQuery("SELECT amount_gton, fee_gton, amount_fiat, currency, status FROM payouts").
			WithArgs(int64(55)).
			WillReturnRows(sqlmock.NewRows([]string{"amount_gton", "fee_gton", "amount_fiat", "currency", "status"}).
				AddRow("30", "0", "75", "RUB", "pending"))
		dbMock.ExpectExec("UPDATE partners SET frozen_balance").
			WithArgs("30", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("UPDATE payouts").
			WithArgs(int64(55)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		_, err := service.CancelPayout(55, 2)

		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("someone else's payout reads as missing", func(t *testing.T) {
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT p.partner_id FROM payouts p").
			WithArgs(int64(55), int64(3)).
			WillReturnError(sql.ErrNoRows)
		dbMock.ExpectRollback()

		_, err := service.CancelPayout(55, 3)

		assert.ErrorIs(t, err, ErrPayoutNotFound)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPayoutService_GetAvailableBalance(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPayoutService(db, &fakeSettings{}, &MockRateConverter{}, nil)

	t.Run("subtracts frozen funds", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT balance, frozen_balance FROM partners").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"balance", "frozen_balance"}).
				AddRow("100", "30"))

		available, err := service.GetAvailableBalance(7)

		assert.NoError(t, err)
		assert.True(t, available.Equal(decimal.NewFromInt(70)))
	})

	t.Run("unknown partner", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT balance, frozen_balance FROM partners").
			WithArgs(int64(8)).
			WillReturnError(sql.ErrNoRows)

		_, err := service.GetAvailableBalance(8)

		assert.ErrorIs(t, err, ErrPartnerNotFound)
	})
}
