package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"paper-trader-go/internal/config"
	"paper-trader-go/internal/marketdata"
	"paper-trader-go/internal/models"
)

// Receipt summarizes a settled trade.
type Receipt struct {
	OrderID    uint             `json:"order_id"`
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	Quantity   int64            `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	Total      decimal.Decimal  `json:"total"`
	ProfitLoss *decimal.Decimal `json:"profit_loss,omitempty"`
	Balance    decimal.Decimal  `json:"balance"`
}

// Ledger owns the portfolio bookkeeping: accounts, holdings, and the
// append-only order history. Trades settle atomically in one
// transaction, serialized per account.
type Ledger struct {
	db     *gorm.DB
	oracle marketdata.Oracle
	cfg    *config.Ledger
	logger *zap.Logger

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// New creates a Ledger backed by the given store and price oracle.
func New(db *gorm.DB, oracle marketdata.Oracle, cfg *config.Ledger, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:     db,
		oracle: oracle,
		cfg:    cfg,
		logger: logger,
		locks:  make(map[uint]*sync.Mutex),
	}
}

// accountLock returns the mutex serializing trades for one account.
func (l *Ledger) accountLock(accountID uint) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[accountID] = lock
	}
	return lock
}

// Register creates a new account with the configured starting balance.
// The secret is bcrypt-hashed before it is stored.
func (l *Ledger) Register(username, secret string) (*models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash credential: %w", err)
	}

	account := models.Account{
		Username:     username,
		PasswordHash: string(hash),
		Balance:      decimal.NewFromFloat(l.cfg.StartingBalance),
		AccountType:  l.cfg.AccountType,
	}

	err = l.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Account{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateUsername
		}
		return tx.Create(&account).Error
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			return nil, ErrDuplicateUsername
		}
		l.logger.Error("Failed to register account", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	l.logger.Info("Registered account",
		zap.String("username", username),
		zap.Uint("account_id", account.ID),
	)
	return &account, nil
}

// Authenticate looks up an account by username and verifies the secret
// against the stored hash. Unknown users and wrong secrets are
// indistinguishable to the caller.
func (l *Ledger) Authenticate(username, secret string) (*models.Account, error) {
	var account models.Account
	if err := l.db.Where("username = ?", username).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &account, nil
}

// GetAccount fetches an account by ID.
func (l *Ledger) GetAccount(accountID uint) (*models.Account, error) {
	var account models.Account
	if err := l.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return &account, nil
}

// ExecuteTrade quotes the symbol through the price oracle and settles
// the trade at that price. Any oracle failure, including an empty
// quote, aborts before any mutation with ErrPriceUnavailable.
func (l *Ledger) ExecuteTrade(ctx context.Context, accountID uint, symbol string, quantity int64, side string) (*Receipt, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	quote, err := l.oracle.LatestClose(ctx, symbol)
	if err != nil {
		l.logger.Warn("Price lookup failed, aborting trade",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil, ErrPriceUnavailable
	}

	return l.ExecuteTradeAt(accountID, symbol, quantity, side, quote.Price)
}

// ExecuteTradeAt settles a trade at a caller-supplied execution price.
// Balance update, holding upsert/delete, and order insert commit as one
// transaction; any storage failure rolls all of them back.
func (l *Ledger) ExecuteTradeAt(accountID uint, symbol string, quantity int64, side string, price decimal.Decimal) (*Receipt, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if side != models.OrderSideBuy && side != models.OrderSideSell {
		return nil, ErrInvalidSide
	}

	lock := l.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	var receipt *Receipt
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.First(&account, accountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		total := price.Mul(decimal.NewFromInt(quantity))

		var err error
		if side == models.OrderSideBuy {
			receipt, err = l.settleBuy(tx, &account, symbol, quantity, price, total)
		} else {
			receipt, err = l.settleSell(tx, &account, symbol, quantity, price, total)
		}
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound),
			errors.Is(err, ErrInsufficientFunds),
			errors.Is(err, ErrInsufficientShares):
			return nil, err
		default:
			l.logger.Error("Trade settlement failed, rolled back",
				zap.Uint("account_id", accountID),
				zap.String("symbol", symbol),
				zap.String("side", side),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %v", ErrTradeFailed, err)
		}
	}

	l.logger.Info("Trade settled",
		zap.Uint("account_id", accountID),
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Int64("quantity", quantity),
		zap.String("price", price.String()),
	)
	return receipt, nil
}

// settleBuy debits the balance and recomputes the weighted-average cost.
func (l *Ledger) settleBuy(tx *gorm.DB, account *models.Account, symbol string, quantity int64, price, total decimal.Decimal) (*Receipt, error) {
	if total.GreaterThan(account.Balance) {
		return nil, ErrInsufficientFunds
	}

	var holding models.Holding
	err := tx.Where("account_id = ? AND symbol = ?", account.ID, symbol).First(&holding).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		holding = models.Holding{
			AccountID: account.ID,
			Symbol:    symbol,
			Quantity:  quantity,
			AvgCost:   price,
		}
		if err := tx.Create(&holding).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		oldQty := decimal.NewFromInt(holding.Quantity)
		newQty := decimal.NewFromInt(holding.Quantity + quantity)
		// new_avg = (old_qty*old_avg + qty*price) / (old_qty+qty)
		newAvg := oldQty.Mul(holding.AvgCost).Add(total).Div(newQty)

		holding.Quantity += quantity
		holding.AvgCost = newAvg
		if err := tx.Save(&holding).Error; err != nil {
			return nil, err
		}
	}

	account.Balance = account.Balance.Sub(total)
	if err := tx.Save(account).Error; err != nil {
		return nil, err
	}

	order := models.Order{
		AccountID: account.ID,
		Symbol:    symbol,
		Side:      models.OrderSideBuy,
		Quantity:  quantity,
		Price:     price,
		Timestamp: time.Now().Unix(),
	}
	if err := tx.Create(&order).Error; err != nil {
		return nil, err
	}

	return &Receipt{
		OrderID:  order.ID,
		Symbol:   symbol,
		Side:     models.OrderSideBuy,
		Quantity: quantity,
		Price:    price,
		Total:    total,
		Balance:  account.Balance,
	}, nil
}

// settleSell realizes profit/loss against the average cost and credits
// the balance. Exhausting the position removes the holding row.
func (l *Ledger) settleSell(tx *gorm.DB, account *models.Account, symbol string, quantity int64, price, total decimal.Decimal) (*Receipt, error) {
	var holding models.Holding
	err := tx.Where("account_id = ? AND symbol = ?", account.ID, symbol).First(&holding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInsufficientShares
	}
	if err != nil {
		return nil, err
	}
	if holding.Quantity < quantity {
		return nil, ErrInsufficientShares
	}

	// profit_loss = (execution_price - avg_cost) * quantity
	profitLoss := price.Sub(holding.AvgCost).Mul(decimal.NewFromInt(quantity))

	holding.Quantity -= quantity
	if holding.Quantity == 0 {
		// Hard delete: a soft-deleted row would keep occupying the
		// (account_id, symbol) unique index and block a later re-buy.
		if err := tx.Unscoped().Delete(&holding).Error; err != nil {
			return nil, err
		}
	} else {
		if err := tx.Save(&holding).Error; err != nil {
			return nil, err
		}
	}

	account.Balance = account.Balance.Add(total)
	if err := tx.Save(account).Error; err != nil {
		return nil, err
	}

	order := models.Order{
		AccountID:  account.ID,
		Symbol:     symbol,
		Side:       models.OrderSideSell,
		Quantity:   quantity,
		Price:      price,
		ProfitLoss: decimal.NullDecimal{Decimal: profitLoss, Valid: true},
		Timestamp:  time.Now().Unix(),
	}
	if err := tx.Create(&order).Error; err != nil {
		return nil, err
	}

	return &Receipt{
		OrderID:    order.ID,
		Symbol:     symbol,
		Side:       models.OrderSideSell,
		Quantity:   quantity,
		Price:      price,
		Total:      total,
		ProfitLoss: &profitLoss,
		Balance:    account.Balance,
	}, nil
}

// GetHoldings returns the account's current positions.
func (l *Ledger) GetHoldings(accountID uint) ([]models.Holding, error) {
	var holdings []models.Holding
	if err := l.db.Where("account_id = ?", accountID).Find(&holdings).Error; err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	return holdings, nil
}

// GetOrderHistory returns the account's executed trades, newest first.
func (l *Ledger) GetOrderHistory(accountID uint) ([]models.Order, error) {
	var orders []models.Order
	if err := l.db.Where("account_id = ?", accountID).Order("timestamp desc, id desc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}
	return orders, nil
}
