package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountTransactionTypeSigns(t *testing.T) {
	credits := []AccountTransactionType{TxDeposit, TxSell, TxDividend}
	debits := []AccountTransactionType{TxWithdrawal, TxBuy, TxCost}

	for _, typ := range credits {
		assert.True(t, typ.Credit(), "expected %s to credit", typ)
	}
	for _, typ := range debits {
		assert.False(t, typ.Credit(), "expected %s to debit", typ)
	}
}

func TestAccountTransactionSigned(t *testing.T) {
	tx := AccountTransaction{Type: TxWithdrawal, Amount: decimal.NewFromInt(50)}
	assert.True(t, tx.Signed().Equal(decimal.NewFromInt(-50)))

	tx.Type = TxDeposit
	assert.True(t, tx.Signed().Equal(decimal.NewFromInt(50)))
}

func TestTypeValidation(t *testing.T) {
	assert.True(t, TxDeposit.Valid())
	assert.False(t, AccountTransactionType("transfer").Valid())
	assert.True(t, AssetTxPrice.Valid())
	assert.False(t, AssetTransactionType("split").Valid())
}

func TestDayHelpers(t *testing.T) {
	ts := time.Date(2024, 3, 15, 17, 45, 12, 0, time.UTC)

	day := DayOf(ts)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), day)
	assert.Equal(t, "2024-03-15", FormatDay(ts))

	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), NextDay(ts))
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), PrevDay(ts))

	parsed, err := ParseDay("2024-03-15")
	require.NoError(t, err)
	assert.True(t, SameDay(parsed, ts))
	assert.False(t, SameDay(parsed, NextDay(ts)))
}
