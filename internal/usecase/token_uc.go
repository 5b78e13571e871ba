package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/adapter"
	"elverra-membership/internal/domain/ports/repository"
	ucport "elverra-membership/internal/domain/ports/usecase"
	"elverra-membership/internal/infra/logging"
	"elverra-membership/internal/infra/metrics"
)

// Compile-time checks
var (
	_ TokenUseCase          = (*tokenUC)(nil)
	_ ucport.TokenCompleter = (*tokenUC)(nil)
)

// WarningLowBalance is returned in PurchaseResult.Warnings; it never blocks a purchase.
const WarningLowBalance = "tokens.low_balance"

// TokenUseCase is the emergency-assistance token ledger.
type TokenUseCase interface {
	OpenAccount(ctx context.Context, userID, membershipSubscriptionID string, t model.TokenServiceType) (*model.TokenAccount, error)
	PurchaseTokens(ctx context.Context, in PurchaseInput) (*PurchaseResult, error)
	// CompleteTransaction settles a pending purchase. The balance is credited
	// at most once however often it is called.
	CompleteTransaction(ctx context.Context, transactionID string, success bool) (*model.TokenTransaction, error)
	GetAccount(ctx context.Context, accountID, requestingUserID string) (*model.TokenAccount, error)
	ListAccounts(ctx context.Context, userID string) ([]*model.TokenAccount, error)
	ListTransactions(ctx context.Context, accountID, requestingUserID string, limit int) ([]*model.TokenTransaction, error)
}

type PurchaseInput struct {
	UserID    string // requesting user; empty skips the ownership check
	AccountID string
	Amount    int
	Method    model.PaymentMethod
	Phone     string
	Name      string // shown on the gateway checkout
}

type PurchaseResult struct {
	Transaction *model.TokenTransaction
	Payment     *model.Payment // nil for cash, card and wallet
	RedirectURL string
	Balance     int // balance after the purchase settles
	Warnings    []string
}

type tokenUC struct {
	accounts repository.TokenAccountRepository
	txs      repository.TokenTransactionRepository
	subs     repository.SubscriptionRepository
	gateways adapter.GatewayRegistry
	tm       repository.TransactionManager
	events   adapter.EventPublisher
	starter  *paymentStarter
	log      *zerolog.Logger
	now      func() time.Time
}

func NewTokenUseCase(
	accounts repository.TokenAccountRepository,
	txs repository.TokenTransactionRepository,
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	gateways adapter.GatewayRegistry,
	tm repository.TransactionManager,
	events adapter.EventPublisher,
	settings PaymentSettings,
	logger *zerolog.Logger,
) *tokenUC {
	return &tokenUC{
		accounts: accounts,
		txs:      txs,
		subs:     subs,
		gateways: gateways,
		tm:       tm,
		events:   events,
		starter:  &paymentStarter{payments: payments, settings: settings, log: logger},
		log:      logger,
		now:      time.Now,
	}
}

// eligibleMembership checks the membership a token account hangs off.
func eligibleMembership(sub *model.Subscription) error {
	if sub.IsChild {
		return domain.ErrChildTierNotEligible
	}
	if sub.Status != model.SubscriptionStatusActive {
		return domain.ErrSubscriptionInactive
	}
	return nil
}

func (u *tokenUC) findSubscription(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	sub, err := u.subs.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (u *tokenUC) OpenAccount(ctx context.Context, userID, membershipSubscriptionID string, t model.TokenServiceType) (*model.TokenAccount, error) {
	defer logging.TraceDuration(u.log, "TokenUC.OpenAccount")()

	sub, err := u.findSubscription(ctx, repository.NoTX, membershipSubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	if err := eligibleMembership(sub); err != nil {
		return nil, err
	}
	acct, err := model.NewTokenAccount(uuid.NewString(), userID, sub.ID, t, u.now())
	if err != nil {
		return nil, err
	}
	if err := u.accounts.Insert(ctx, repository.NoTX, acct); err != nil {
		return nil, err
	}
	u.log.Info().Str("account_id", acct.ID).Str("type", string(t)).Msg("token account opened")
	return acct, nil
}

func (u *tokenUC) PurchaseTokens(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	defer logging.TraceDuration(u.log, "TokenUC.PurchaseTokens")()

	if in.AccountID == "" || in.Amount <= 0 {
		return nil, domain.ErrValidation
	}
	method, err := model.ParsePaymentMethod(string(in.Method))
	if err != nil {
		return nil, err
	}

	var (
		gw    adapter.PaymentGateway
		phone string
	)
	if method.IsMobileMoney() {
		if gw, err = u.gateways.Get(string(method)); err != nil {
			return nil, err
		}
		if phone, err = gw.ValidatePhone(in.Phone); err != nil {
			return nil, err
		}
	}

	var (
		acct    *model.TokenAccount
		t       *model.TokenTransaction
		balance int
	)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// the row lock serializes purchases on one account so the monthly sum holds
		a, err := u.accounts.FindByID(ctx, tx, in.AccountID)
		if err != nil {
			return err
		}
		acct = a
		if in.UserID != "" && a.UserID != in.UserID {
			return domain.ErrUnauthorized
		}
		if !a.IsActive {
			return domain.ErrInactiveTokenAccount
		}
		sub, err := u.findSubscription(ctx, tx, a.MembershipSubscriptionID)
		if err != nil {
			return err
		}
		if err := eligibleMembership(sub); err != nil {
			return err
		}

		terms, ok := model.TermsFor(a.Type)
		if !ok {
			return domain.ErrValidation
		}
		now := u.now()
		used, err := u.txs.SumSince(ctx, tx, a.ID, model.MonthStart(now))
		if err != nil {
			return err
		}
		if in.Amount < terms.MinPurchase || used+in.Amount > terms.MaxPurchase {
			return fmt.Errorf("%w: %d requested, %d already this month (min %d, max %d)",
				domain.ErrTokenLimitExceeded, in.Amount, used, terms.MinPurchase, terms.MaxPurchase)
		}

		t = &model.TokenTransaction{
			ID:            uuid.NewString(),
			AccountID:     a.ID,
			Type:          a.Type,
			Amount:        in.Amount,
			TotalPrice:    int64(in.Amount) * terms.TokenValue,
			PaymentMethod: method,
			PhoneNumber:   phone,
			Status:        model.TokenTxPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if !method.IsMobileMoney() {
			t.Status = model.TokenTxCompleted
		}
		if err := u.txs.Save(ctx, tx, t); err != nil {
			return err
		}

		balance = a.TokenBalance
		if t.Status == model.TokenTxCompleted {
			if balance, err = u.accounts.AddBalance(ctx, tx, a.ID, t.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrTokenLimitExceeded) {
			metrics.IncTokenPurchase(string(acctType(acct)), string(method), "limit_exceeded")
		}
		return nil, err
	}

	res := &PurchaseResult{Transaction: t, Balance: balance}

	if method.IsMobileMoney() {
		p := &model.Payment{
			ID:          uuid.NewString(),
			UserID:      acct.UserID,
			Purpose:     model.PaymentPurposeTokens,
			ReferenceID: t.ID,
			Amount:      t.TotalPrice,
			Phone:       phone,
		}
		gres, err := u.starter.start(ctx, gw, p, adapter.PaymentRequest{
			Phone:        in.Phone,
			CustomerName: in.Name,
			Description:  fmt.Sprintf("Elverra %d tokens %s", t.Amount, t.Type),
		})
		if err != nil {
			if _, ferr := u.CompleteTransaction(ctx, t.ID, false); ferr != nil {
				u.log.Error().Err(ferr).Str("transaction_id", t.ID).Msg("failed to mark token purchase failed")
			}
			metrics.IncTokenPurchase(string(t.Type), string(method), "gateway_error")
			return nil, err
		}
		t.PaymentID = &p.ID
		t.UpdatedAt = u.now()
		if err := u.txs.Save(ctx, repository.NoTX, t); err != nil {
			// the payment still references t, so settlement finds it by ReferenceID
			u.log.Error().Err(err).
				Str("transaction_id", t.ID).
				Str("payment_id", p.ID).
				Msg("failed to link payment to token purchase")
			return nil, err
		}
		res.Payment = p
		res.RedirectURL = gres.RedirectURL
		res.Balance = balance + t.Amount
		metrics.IncTokenPurchase(string(t.Type), string(method), string(model.TokenTxPending))
	} else {
		metrics.IncTokenPurchase(string(t.Type), string(method), string(model.TokenTxCompleted))
		metrics.AddTokensCredited(string(t.Type), t.Amount)
		publish(ctx, u.events, u.log, adapter.EventTokensCredited, t.AccountID, acct.UserID, map[string]string{
			"transaction_id": t.ID,
			"amount":         strconv.Itoa(t.Amount),
		})
	}

	if res.Balance < model.LowBalanceThreshold {
		res.Warnings = append(res.Warnings, WarningLowBalance)
	}
	u.log.Info().
		Str("transaction_id", t.ID).
		Str("account_id", t.AccountID).
		Int("amount", t.Amount).
		Str("method", string(method)).
		Str("status", string(t.Status)).
		Msg("token purchase recorded")
	return res, nil
}

func acctType(a *model.TokenAccount) model.TokenServiceType {
	if a == nil {
		return "unknown"
	}
	return a.Type
}

func (u *tokenUC) CompleteTransaction(ctx context.Context, transactionID string, success bool) (*model.TokenTransaction, error) {
	defer logging.TraceDuration(u.log, "TokenUC.CompleteTransaction")()

	status := model.TokenTxFailed
	if success {
		status = model.TokenTxCompleted
	}

	var (
		t        *model.TokenTransaction
		credited bool
		userID   string
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if t, err = u.txs.FindByID(ctx, tx, transactionID); err != nil {
			return err
		}
		changed, err := u.txs.CompleteIfPending(ctx, tx, t.ID, status)
		if err != nil || !changed {
			return err
		}
		t.Status = status
		t.UpdatedAt = u.now()
		if !success {
			return nil
		}
		if _, err := u.accounts.AddBalance(ctx, tx, t.AccountID, t.Amount); err != nil {
			return err
		}
		a, err := u.accounts.FindByID(ctx, tx, t.AccountID)
		if err != nil {
			return err
		}
		credited, userID = true, a.UserID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if credited {
		metrics.AddTokensCredited(string(t.Type), t.Amount)
		publish(ctx, u.events, u.log, adapter.EventTokensCredited, t.AccountID, userID, map[string]string{
			"transaction_id": t.ID,
			"amount":         strconv.Itoa(t.Amount),
		})
		u.log.Info().Str("transaction_id", t.ID).Int("amount", t.Amount).Msg("tokens credited")
	}
	return t, nil
}

func (u *tokenUC) GetAccount(ctx context.Context, accountID, requestingUserID string) (*model.TokenAccount, error) {
	defer logging.TraceDuration(u.log, "TokenUC.GetAccount")()
	a, err := u.accounts.FindByID(ctx, repository.NoTX, accountID)
	if err != nil {
		return nil, err
	}
	if requestingUserID != "" && a.UserID != requestingUserID {
		return nil, domain.ErrTokenAccountNotFound
	}
	return a, nil
}

func (u *tokenUC) ListAccounts(ctx context.Context, userID string) ([]*model.TokenAccount, error) {
	defer logging.TraceDuration(u.log, "TokenUC.ListAccounts")()
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrValidation
	}
	return u.accounts.ListByUser(ctx, repository.NoTX, userID)
}

func (u *tokenUC) ListTransactions(ctx context.Context, accountID, requestingUserID string, limit int) ([]*model.TokenTransaction, error) {
	defer logging.TraceDuration(u.log, "TokenUC.ListTransactions")()
	if _, err := u.GetAccount(ctx, accountID, requestingUserID); err != nil {
		return nil, err
	}
	return u.txs.ListByAccount(ctx, repository.NoTX, accountID, limit)
}
