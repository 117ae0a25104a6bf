package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// nativeAmountPrecision é a precisão do token nativo (9 casas, como lamports)
const nativeAmountPrecision = 9

// SettlementUseCase contém a lógica de negócio de settlement
type SettlementUseCase struct {
	wallets  WalletRepository
	oracle   PriceOracle
	payments PaymentClient
	ledger   LedgerClient
	saga     SagaOrchestrator
}

// NewSettlementUseCase cria uma nova instância de SettlementUseCase
func NewSettlementUseCase(
	wallets WalletRepository,
	oracle PriceOracle,
	payments PaymentClient,
	ledger LedgerClient,
	saga SagaOrchestrator,
) *SettlementUseCase {
	return &SettlementUseCase{
		wallets:  wallets,
		oracle:   oracle,
		payments: payments,
		ledger:   ledger,
		saga:     saga,
	}
}

// FinalizePurchaseRequest representa a requisição de finalização de compra
type FinalizePurchaseRequest struct {
	BuyerID string `json:"buyer_id" binding:"required"`
}

// RegisterWalletRequest representa o registro de uma wallet
type RegisterWalletRequest struct {
	Address string `json:"address" binding:"required"`
}

// QuoteNativeAmount converte um valor fiat para o token nativo usando a rate
// do oráculo. Sem rate disponível o resultado é zero e ErrQuoteUnavailable;
// o caller deve bloquear a submissão do pagamento nesse caso.
func (uc *SettlementUseCase) QuoteNativeAmount(ctx context.Context, fiatAmount decimal.Decimal, fiatCurrency string) (decimal.Decimal, error) {
	rate, err := uc.oracle.Rate(ctx, fiatCurrency)
	if err != nil {
		log.Printf("❌ QUOTE FAILED: %s/%s | Error=%v", fiatAmount, fiatCurrency, err)
		return decimal.Zero, err
	}

	amount := fiatAmount.DivRound(rate, nativeAmountPrecision)
	log.Printf("💱 Quote: %s %s = %s native (rate %s)", fiatAmount, fiatCurrency, amount, rate)
	return amount, nil
}

// SubmitPayment executa a transferência de valor nativo buyer -> seller.
// Wallets são validadas antes de qualquer transação ser construída.
func (uc *SettlementUseCase) SubmitPayment(ctx context.Context, buyerID, sellerID string, nativeAmount decimal.Decimal) (string, error) {
	signature, _, _, err := uc.submitPayment(ctx, buyerID, sellerID, nativeAmount)
	return signature, err
}

// submitPayment valida as wallets, executa a transferência e devolve as
// wallets carregadas para que o caller não precise rebuscá-las
func (uc *SettlementUseCase) submitPayment(ctx context.Context, buyerID, sellerID string, nativeAmount decimal.Decimal) (string, *Wallet, *Wallet, error) {
	log.Printf("➡️ [SUBMIT PAYMENT] Buyer: %s | Seller: %s | Amount: %s", buyerID, sellerID, nativeAmount)

	if !nativeAmount.IsPositive() {
		return "", nil, nil, fmt.Errorf("%w: non-positive native amount", ErrQuoteUnavailable)
	}

	buyerWallet, err := uc.wallets.GetWalletByUserID(ctx, buyerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", nil, nil, fmt.Errorf("failed to load buyer wallet: %w", err)
	}
	if !buyerWallet.Connected() {
		log.Printf("❌ PAYMENT FAILED: buyer %s has no connected wallet", buyerID)
		return "", nil, nil, ErrWalletNotConnected
	}

	sellerWallet, err := uc.wallets.GetWalletByUserID(ctx, sellerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", nil, nil, fmt.Errorf("failed to load seller wallet: %w", err)
	}
	if !sellerWallet.Connected() {
		log.Printf("❌ PAYMENT FAILED: seller %s has no registered wallet", sellerID)
		return "", nil, nil, ErrInvalidRecipient
	}

	signature, err := uc.payments.SubmitPayment(ctx, buyerWallet.Address, sellerWallet.Address, nativeAmount)
	if err != nil {
		log.Printf("❌ PAYMENT FAILED: %v", err)
		return "", nil, nil, err
	}

	log.Printf("✅ [SUBMIT PAYMENT] Success: %s", signature)
	return signature, buyerWallet, sellerWallet, nil
}

// FinalizePurchase paga um purchase request e dispara a SAGA de finalização:
// ledger registra o pagamento, o produto muda de dono, o request completa.
// A compra completa no pagamento do buyer; o aceite do seller é opcional e
// acontece antes, no próprio ledger.
func (uc *SettlementUseCase) FinalizePurchase(ctx context.Context, requestID, buyerID string) (string, string, error) {
	log.Printf("🚀 [FINALIZE PURCHASE] RequestID: %s | BuyerID: %s", requestID, buyerID)

	request, err := uc.ledger.GetRequest(ctx, requestID)
	if err != nil {
		return "", "", err
	}
	if request.BuyerID != buyerID {
		return "", "", ErrForbidden
	}

	// The status gate lives here, before any money moves: a request that is
	// already paid, completed, rejected or cancelled must never trigger a
	// second on-chain payment
	if request.Status != RequestStatusProposed && request.Status != RequestStatusAccepted {
		log.Printf("❌ FINALIZE FAILED: request %s is %s", requestID, request.Status)
		return "", "", fmt.Errorf("%w: request is %s", ErrInvalidState, request.Status)
	}

	quote, err := uc.QuoteNativeAmount(ctx, request.OfferedPrice, request.OfferedCurrency)
	if err != nil {
		return "", "", err
	}

	signature, buyerWallet, sellerWallet, err := uc.submitPayment(ctx, request.BuyerID, request.SellerID, quote)
	if err != nil {
		return "", "", err
	}

	gid, err := uc.saga.FinalizePurchaseSaga(ctx, FinalizeContext{
		RequestID:       request.ID,
		ProductID:       request.ProductID,
		SellerID:        request.SellerID,
		BuyerID:         request.BuyerID,
		SellerPublicKey: sellerWallet.Address,
		BuyerPublicKey:  buyerWallet.Address,
		PaymentTxHash:   signature,
	})
	if err != nil {
		// The payment is on-chain; the saga's own compensations unwind the
		// ledger state, the operator reconciles the funds out-of-band
		log.Printf("❌ FINALIZE FAILED after payment: RequestID=%s Signature=%s | %v", requestID, signature, err)
		return gid, signature, err
	}

	log.Printf("✅ [FINALIZE PURCHASE] RequestID: %s | GID: %s | Signature: %s", requestID, gid, signature)
	return gid, signature, nil
}

// RegisterWallet registra ou substitui o endereço da wallet do usuário
func (uc *SettlementUseCase) RegisterWallet(ctx context.Context, userID, address string) (*Wallet, error) {
	wallet := NewWallet(uuid.New().String(), userID, address)
	if err := uc.wallets.UpsertWallet(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to register wallet: %w", err)
	}

	log.Printf("✅ Wallet registered for user %s", userID)
	return wallet, nil
}

// GetWallet busca a wallet registrada do usuário
func (uc *SettlementUseCase) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	return uc.wallets.GetWalletByUserID(ctx, userID)
}
