// internal/services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/config"
	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/models"
)

// GatewayIntent is the gateway-neutral view of a payment intent.
type GatewayIntent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Metadata     map[string]string
}

const (
	IntentStatusSucceeded = "succeeded"
	IntentStatusCanceled  = "canceled"
)

type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string, idempotencyKey string) (*GatewayIntent, error)
	GetIntent(ctx context.Context, intentID string) (*GatewayIntent, error)
	Refund(ctx context.Context, intentID string, amount int64, idempotencyKey string) (string, error)
}

// StripeGateway talks to Stripe through the package level client.
type StripeGateway struct{}

func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{}
}

func intentFromStripe(pi *stripe.PaymentIntent) *GatewayIntent {
	return &GatewayIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Metadata:     pi.Metadata,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string, idempotencyKey string) (*GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, intentID string) (*GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) Refund(ctx context.Context, intentID string, amount int64, idempotencyKey string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to process refund: %w", err)
	}
	return r.ID, nil
}

type PaymentService struct {
	db       *gorm.DB
	gateway  PaymentGateway
	currency string
}

type CreatePaymentIntentRequest struct {
	OrderID uint `json:"order_id" validate:"required"`
}

type PaymentIntentResponse struct {
	ClientSecret  string          `json:"client_secret"`
	PaymentID     string          `json:"payment_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id"`
}

type ConfirmPaymentRequest struct {
	OrderID         uint   `json:"order_id" validate:"required"`
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

type VerifyPaymentRequest struct {
	Reference string `json:"payment_reference" validate:"max=255"`
}

// NewPaymentService wires Stripe when a secret key is configured. Without one,
// card payments report ErrPaymentNotConfigured and only manual verification works.
func NewPaymentService(db *gorm.DB, cfg *config.Config) *PaymentService {
	var gateway PaymentGateway
	if cfg.Payment.StripeSecretKey != "" {
		gateway = NewStripeGateway(cfg.Payment.StripeSecretKey)
	}
	return NewPaymentServiceWithGateway(db, gateway, cfg.Payment.Currency)
}

func NewPaymentServiceWithGateway(db *gorm.DB, gateway PaymentGateway, currency string) *PaymentService {
	if currency == "" {
		currency = "php"
	}
	return &PaymentService{db: db, gateway: gateway, currency: strings.ToLower(currency)}
}

// toMinorUnits converts pesos to centavos.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (s *PaymentService) ownedOrder(tx *gorm.DB, userID uuid.UUID, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.Preload("Transaction").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	if order.Transaction == nil {
		return nil, fmt.Errorf("order %s has no transaction", order.OrderNumber)
	}
	return &order, nil
}

func (s *PaymentService) CreatePaymentIntent(ctx context.Context, userID uuid.UUID, orderID uint) (*PaymentIntentResponse, error) {
	if s.gateway == nil {
		return nil, ErrPaymentNotConfigured
	}

	order, err := s.ownedOrder(s.db.WithContext(ctx), userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: order is cancelled", ErrInvalidTransition)
	}
	txn := order.Transaction
	if txn.Status == models.TransactionStatusPaid || txn.Status == models.TransactionStatusRefunded {
		return nil, ErrAlreadyPaid
	}

	metadata := map[string]string{
		"user_id":        userID.String(),
		"order_number":   order.OrderNumber,
		"invoice_id":     txn.InvoiceID,
		"transaction_id": txn.TransactionID,
	}
	intent, err := s.gateway.CreateIntent(ctx, toMinorUnits(txn.Amount), s.currency, metadata, "intent-"+txn.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	err = s.db.WithContext(ctx).Model(&models.SalesTransaction{}).Where("id = ?", txn.ID).Updates(map[string]interface{}{
		"payment_method":    models.PaymentMethodCard,
		"payment_reference": intent.ID,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	return &PaymentIntentResponse{
		ClientSecret:  intent.ClientSecret,
		PaymentID:     intent.ID,
		Status:        intent.Status,
		Amount:        txn.Amount,
		Currency:      s.currency,
		TransactionID: txn.TransactionID,
	}, nil
}

// ConfirmPayment checks the intent with the gateway and marks the
// transaction and invoice paid when it succeeded.
func (s *PaymentService) ConfirmPayment(ctx context.Context, userID uuid.UUID, req *ConfirmPaymentRequest) (*models.SalesTransaction, error) {
	if s.gateway == nil {
		return nil, ErrPaymentNotConfigured
	}

	order, err := s.ownedOrder(s.db.WithContext(ctx), userID, req.OrderID)
	if err != nil {
		return nil, err
	}
	txn := order.Transaction
	if txn.PaymentReference != req.PaymentIntentID {
		return nil, fmt.Errorf("%w: payment intent does not belong to this order", ErrValidation)
	}
	if txn.Status == models.TransactionStatusPaid {
		return txn, nil
	}

	intent, err := s.gateway.GetIntent(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if intent.Status != IntentStatusSucceeded {
		logrus.WithFields(logrus.Fields{
			"transaction_id": txn.TransactionID,
			"intent_status":  intent.Status,
		}).Warn("Payment intent not succeeded")
		return nil, fmt.Errorf("%w: intent status %s", ErrPaymentFailed, intent.Status)
	}
	if intent.Amount != toMinorUnits(txn.Amount) {
		return nil, fmt.Errorf("%w: paid amount %d does not match %s", ErrPaymentFailed, intent.Amount, txn.Amount.StringFixed(2))
	}

	if err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return s.markPaidInTx(tx, txn, intent.ID)
	}); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": txn.TransactionID,
		"order_number":   order.OrderNumber,
	}).Info("Card payment confirmed")
	return s.reloadTransaction(ctx, txn.ID)
}

// VerifyPayment lets an admin record an offline payment such as cash on
// delivery or a bank transfer.
func (s *PaymentService) VerifyPayment(ctx context.Context, orderID uint, adminID uuid.UUID, req *VerifyPaymentRequest) (*models.SalesTransaction, error) {
	var txnID uint
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Preload("Transaction").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if order.Status == models.OrderStatusCancelled {
			return fmt.Errorf("%w: order is cancelled", ErrInvalidTransition)
		}
		if order.Transaction == nil {
			return ErrNotFound
		}
		txnID = order.Transaction.ID
		return s.markPaidInTx(tx, order.Transaction, req.Reference)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"order_id": orderID, "admin_id": adminID}).Info("Payment verified")
	return s.reloadTransaction(ctx, txnID)
}

func (s *PaymentService) markPaidInTx(tx *gorm.DB, txn *models.SalesTransaction, reference string) error {
	updates := map[string]interface{}{
		"transaction_status": models.TransactionStatusPaid,
		"paid_at":            time.Now(),
	}
	if reference != "" {
		updates["payment_reference"] = reference
	}

	result := tx.Model(&models.SalesTransaction{}).
		Where("id = ? AND transaction_status IN ?", txn.ID,
			[]models.TransactionStatus{models.TransactionStatusPending, models.TransactionStatusConfirmed}).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyPaid
	}

	return tx.Model(&models.OrderInvoice{}).Where("invoice_id = ?", txn.InvoiceID).
		Update("invoice_status", models.InvoiceStatusPaid).Error
}

func (s *PaymentService) reloadTransaction(ctx context.Context, id uint) (*models.SalesTransaction, error) {
	var txn models.SalesTransaction
	if err := s.db.WithContext(ctx).First(&txn, id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// settleCancelledInTx closes the transaction of a cancelled order. Card
// payments are refunded through the gateway, payments taken offline are
// marked refunded for the cashier, and unpaid transactions become cancelled.
func (s *PaymentService) settleCancelledInTx(tx *gorm.DB, transactionID, reason string) error {
	var txn models.SalesTransaction
	if err := tx.Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithField("transaction_id", transactionID).Warn("Cancelled order has no transaction row")
			return nil
		}
		return err
	}

	switch txn.Status {
	case models.TransactionStatusCancelled, models.TransactionStatusRefunded:
		return nil
	case models.TransactionStatusPaid:
		return s.refundInTx(tx, &txn, reason)
	}

	return tx.Model(&models.SalesTransaction{}).Where("id = ?", txn.ID).
		Update("transaction_status", models.TransactionStatusCancelled).Error
}

func (s *PaymentService) refundInTx(tx *gorm.DB, txn *models.SalesTransaction, reason string) error {
	fields := logrus.Fields{
		"transaction_id": txn.TransactionID,
		"amount":         txn.Amount.StringFixed(2),
		"reason":         reason,
	}

	if txn.PaymentMethod == models.PaymentMethodCard && strings.HasPrefix(txn.PaymentReference, "pi_") {
		if s.gateway == nil {
			return ErrPaymentNotConfigured
		}
		ctx := tx.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		refundID, err := s.gateway.Refund(ctx, txn.PaymentReference, toMinorUnits(txn.Amount), "refund-"+txn.TransactionID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		fields["refund_id"] = refundID
		logrus.WithFields(fields).Info("Card payment refunded")
	} else {
		logrus.WithFields(fields).Warn("Offline payment marked refunded, settle with the customer manually")
	}

	return tx.Model(&models.SalesTransaction{}).Where("id = ?", txn.ID).Updates(map[string]interface{}{
		"transaction_status": models.TransactionStatusRefunded,
		"refunded_at":        time.Now(),
	}).Error
}

// PaymentHistory lists the user's transactions, newest first.
func (s *PaymentService) PaymentHistory(ctx context.Context, userID uuid.UUID) ([]models.SalesTransaction, error) {
	var txns []models.SalesTransaction
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&txns).Error
	return txns, err
}
