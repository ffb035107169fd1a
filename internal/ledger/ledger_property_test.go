package ledger

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"pgregory.net/rapid"

	"paper-trader-go/internal/config"
	"paper-trader-go/internal/database"
	"paper-trader-go/internal/models"
)

// newPropertyLedger builds a ledger with a balance large enough that
// generated buys never hit the funds check.
func newPropertyLedger(t require.TestingT) *Ledger {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Ledger{StartingBalance: 1e12, AccountType: "demo"}
	return New(db, nil, cfg, zap.NewNop())
}

// The average cost of a holding always equals the quantity-weighted
// mean of all buy execution prices, regardless of the buy sequence.
func TestAvgCostIsWeightedMean(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := newPropertyLedger(t)
		account, err := l.Register("prop", "secret123")
		require.NoError(t, err)

		numBuys := rapid.IntRange(1, 8).Draw(t, "num_buys")

		totalQty := decimal.Zero
		totalCost := decimal.Zero
		for i := 0; i < numBuys; i++ {
			qty := rapid.Int64Range(1, 50).Draw(t, fmt.Sprintf("qty_%d", i))
			cents := rapid.Int64Range(1, 100000).Draw(t, fmt.Sprintf("price_cents_%d", i))
			price := decimal.New(cents, -2)

			_, err := l.ExecuteTradeAt(account.ID, "AAPL", qty, models.OrderSideBuy, price)
			require.NoError(t, err)

			qtyDec := decimal.NewFromInt(qty)
			totalQty = totalQty.Add(qtyDec)
			totalCost = totalCost.Add(price.Mul(qtyDec))
		}

		holdings, err := l.GetHoldings(account.ID)
		require.NoError(t, err)
		require.Len(t, holdings, 1)

		expectedAvg := totalCost.Div(totalQty)
		diff := holdings[0].AvgCost.Sub(expectedAvg).Abs()
		require.True(t, diff.LessThan(decimal.New(1, -9)),
			"avg cost %s differs from weighted mean %s", holdings[0].AvgCost, expectedAvg)
		require.True(t, totalQty.Equal(decimal.NewFromInt(holdings[0].Quantity)))
	})
}

// Sells never change the average cost, and the balance always equals
// starting balance minus buy totals plus sell totals.
func TestSellsPreserveAvgCostAndBalance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := newPropertyLedger(t)
		account, err := l.Register("prop", "secret123")
		require.NoError(t, err)

		start := account.Balance
		balance := start
		held := int64(0)

		numTrades := rapid.IntRange(1, 12).Draw(t, "num_trades")
		var avgAfterLastBuy decimal.Decimal

		for i := 0; i < numTrades; i++ {
			price := decimal.New(rapid.Int64Range(1, 100000).Draw(t, fmt.Sprintf("price_%d", i)), -2)
			sell := held > 0 && rapid.Bool().Draw(t, fmt.Sprintf("sell_%d", i))

			if sell {
				qty := rapid.Int64Range(1, held).Draw(t, fmt.Sprintf("sell_qty_%d", i))
				_, err := l.ExecuteTradeAt(account.ID, "AAPL", qty, models.OrderSideSell, price)
				require.NoError(t, err)
				held -= qty
				balance = balance.Add(price.Mul(decimal.NewFromInt(qty)))

				if held > 0 {
					holdings, err := l.GetHoldings(account.ID)
					require.NoError(t, err)
					require.Len(t, holdings, 1)
					require.True(t, holdings[0].AvgCost.Equal(avgAfterLastBuy),
						"sell changed avg cost from %s to %s", avgAfterLastBuy, holdings[0].AvgCost)
				}
			} else {
				qty := rapid.Int64Range(1, 50).Draw(t, fmt.Sprintf("buy_qty_%d", i))
				_, err := l.ExecuteTradeAt(account.ID, "AAPL", qty, models.OrderSideBuy, price)
				require.NoError(t, err)
				held += qty
				balance = balance.Sub(price.Mul(decimal.NewFromInt(qty)))

				holdings, err := l.GetHoldings(account.ID)
				require.NoError(t, err)
				require.Len(t, holdings, 1)
				avgAfterLastBuy = holdings[0].AvgCost
			}

			require.GreaterOrEqual(t, held, int64(0))
		}

		got, err := l.GetAccount(account.ID)
		require.NoError(t, err)
		require.True(t, got.Balance.Equal(balance),
			"balance %s differs from replayed balance %s", got.Balance, balance)
	})
}
