package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// MockTx simula uma transação do banco
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	return m.Called().Error(0)
}

func (m *MockTx) Rollback() error {
	return m.Called().Error(0)
}

// MockOwnershipRepository para testes que não precisam de banco real
type MockOwnershipRepository struct {
	mock.Mock
}

func (m *MockOwnershipRepository) BeginTx(ctx context.Context) (Tx, error) {
	args := m.Called(ctx)
	return args.Get(0).(Tx), args.Error(1)
}

func (m *MockOwnershipRepository) GetCurrentRecord(ctx context.Context, productID string) (*OwnershipRecord, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*OwnershipRecord), args.Error(1)
}

func (m *MockOwnershipRepository) GetCurrentRecordForUpdate(ctx context.Context, tx Tx, productID string) (*OwnershipRecord, error) {
	args := m.Called(ctx, tx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*OwnershipRecord), args.Error(1)
}

func (m *MockOwnershipRepository) CloseAndOpen(ctx context.Context, tx Tx, current *OwnershipRecord, next *OwnershipRecord) error {
	return m.Called(ctx, tx, current, next).Error(0)
}

func (m *MockOwnershipRepository) CreateGenesisRecord(ctx context.Context, record *OwnershipRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockOwnershipRepository) History(ctx context.Context, productID string) ([]OwnershipRecord, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).([]OwnershipRecord), args.Error(1)
}

// MockChainClient simula o endpoint RPC da blockchain
type MockChainClient struct {
	mock.Mock
}

func (m *MockChainClient) SubmitTransfer(ctx context.Context, fromPublicKey, toPublicKey, productID string) (string, error) {
	args := m.Called(ctx, fromPublicKey, toPublicKey, productID)
	return args.String(0), args.Error(1)
}

func (m *MockChainClient) SubmitRegistration(ctx context.Context, ownerPublicKey, productID string) (string, error) {
	args := m.Called(ctx, ownerPublicKey, productID)
	return args.String(0), args.Error(1)
}

func (m *MockChainClient) ConfirmTransaction(ctx context.Context, signature string) error {
	return m.Called(ctx, signature).Error(0)
}

func newMockTx() *MockTx {
	tx := new(MockTx)
	tx.On("Commit").Return(nil).Maybe()
	tx.On("Rollback").Return(nil).Maybe()
	return tx
}

func ownedRecord(productID, ownerID string) *OwnershipRecord {
	return NewOwnershipRecord("rec-"+productID, productID, ownerID, "pk-"+ownerID, "")
}

// expectSuccessfulTransfer arma o caminho feliz de um item do batch
func expectSuccessfulTransfer(repo *MockOwnershipRepository, chain *MockChainClient, productID, fromUserID string) {
	record := ownedRecord(productID, fromUserID)
	sig := "sig-" + productID

	repo.On("GetCurrentRecord", mock.Anything, productID).Return(record, nil)
	chain.On("SubmitTransfer", mock.Anything, record.OwnerPublicKey, mock.Anything, productID).Return(sig, nil)
	chain.On("ConfirmTransaction", mock.Anything, sig).Return(nil)

	tx := newMockTx()
	repo.On("BeginTx", mock.Anything).Return(tx, nil)
	repo.On("GetCurrentRecordForUpdate", mock.Anything, mock.Anything, productID).Return(record, nil)
	repo.On("CloseAndOpen", mock.Anything, mock.Anything, record, mock.AnythingOfType("*main.OwnershipRecord")).Return(nil)
}

func TestTransferBatch_PartialFailurePreservesOrder(t *testing.T) {
	// Arrange: products 11 and 13 belong to user-5, product 12 does not
	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	expectSuccessfulTransfer(repo, chain, "11", "user-5")
	repo.On("GetCurrentRecord", mock.Anything, "12").Return(ownedRecord("12", "user-7"), nil)
	expectSuccessfulTransfer(repo, chain, "13", "user-5")

	uc := NewTransferUseCase(repo, chain, 2)

	// Act
	results := uc.TransferBatch(ctx, BatchTransferRequest{
		FromUserID:  "user-5",
		ToUserID:    "user-9",
		ToPublicKey: "pk-user-9",
		ProductIDs:  []string{"11", "12", "13"},
	})

	// Assert: one result per input, in input order
	assert.Len(t, results, 3)
	assert.Equal(t, "11", results[0].ProductID)
	assert.Equal(t, "12", results[1].ProductID)
	assert.Equal(t, "13", results[2].ProductID)

	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Equal(t, "not current owner", results[1].Message)
	assert.True(t, results[2].OK)

	// Ownership swapped for 11 and 13 only
	repo.AssertNumberOfCalls(t, "CloseAndOpen", 2)
	chain.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything, mock.Anything, "12")
}

func TestTransferBatch_ChainFailureDoesNotAbortOthers(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	// Product a: chain submission blows up
	recA := ownedRecord("a", "user-1")
	repo.On("GetCurrentRecord", mock.Anything, "a").Return(recA, nil)
	chain.On("SubmitTransfer", mock.Anything, recA.OwnerPublicKey, mock.Anything, "a").
		Return("", errors.New("rpc unavailable"))

	// Product b, listed after a, still goes through
	expectSuccessfulTransfer(repo, chain, "b", "user-1")

	uc := NewTransferUseCase(repo, chain, 1)

	results := uc.TransferBatch(ctx, BatchTransferRequest{
		FromUserID:  "user-1",
		ToUserID:    "user-2",
		ToPublicKey: "pk-user-2",
		ProductIDs:  []string{"a", "b"},
	})

	assert.Len(t, results, 2)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Message, "rpc unavailable")
	assert.True(t, results[1].OK)
}

func TestTransferBatch_MissingRecordReportsNotCurrentOwner(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	repo.On("GetCurrentRecord", mock.Anything, "ghost").Return(nil, ErrNotFound)

	uc := NewTransferUseCase(repo, chain, 4)

	results := uc.TransferBatch(ctx, BatchTransferRequest{
		FromUserID:  "user-1",
		ToUserID:    "user-2",
		ToPublicKey: "pk-user-2",
		ProductIDs:  []string{"ghost"},
	})

	assert.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Equal(t, "not current owner", results[0].Message)
}

func TestTransferBatch_ResultCountMatchesLargeBatch(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	ids := make([]string, 16)
	for i := range ids {
		ids[i] = string(rune('a' + i))
		expectSuccessfulTransfer(repo, chain, ids[i], "user-1")
	}

	uc := NewTransferUseCase(repo, chain, 4)

	results := uc.TransferBatch(ctx, BatchTransferRequest{
		FromUserID:  "user-1",
		ToUserID:    "user-2",
		ToPublicKey: "pk-user-2",
		ProductIDs:  ids,
	})

	assert.Len(t, results, len(ids))
	for i, res := range results {
		assert.Equal(t, ids[i], res.ProductID, "result %d out of order", i)
		assert.True(t, res.OK)
	}
}

func TestTransferBatch_CancelledContextSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)
	uc := NewTransferUseCase(repo, chain, 4)

	results := uc.TransferBatch(ctx, BatchTransferRequest{
		FromUserID:  "user-1",
		ToUserID:    "user-2",
		ToPublicKey: "pk-user-2",
		ProductIDs:  []string{"x", "y"},
	})

	assert.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.OK)
		assert.Equal(t, "batch cancelled", res.Message)
	}
	repo.AssertNotCalled(t, "GetCurrentRecord", mock.Anything, mock.Anything)
}

func TestTransferBatch_ConcurrentOwnerChangeFailsSafely(t *testing.T) {
	// The unlocked read sees user-1 as owner, but by the time the row lock is
	// taken another transfer has won the race
	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	record := ownedRecord("p1", "user-1")
	stolen := ownedRecord("p1", "user-3")

	repo.On("GetCurrentRecord", mock.Anything, "p1").Return(record, nil)
	chain.On("SubmitTransfer", mock.Anything, record.OwnerPublicKey, mock.Anything, "p1").Return("sig-p1", nil)
	chain.On("ConfirmTransaction", mock.Anything, "sig-p1").Return(nil)
	repo.On("BeginTx", mock.Anything).Return(newMockTx(), nil)
	repo.On("GetCurrentRecordForUpdate", mock.Anything, mock.Anything, "p1").Return(stolen, nil)

	uc := NewTransferUseCase(repo, chain, 1)

	results := uc.TransferBatch(ctx, BatchTransferRequest{
		FromUserID:  "user-1",
		ToUserID:    "user-2",
		ToPublicKey: "pk-user-2",
		ProductIDs:  []string{"p1"},
	})

	assert.False(t, results[0].OK)
	assert.Equal(t, "not current owner", results[0].Message)
	repo.AssertNotCalled(t, "CloseAndOpen", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteTransfer_IdempotentWhenBuyerAlreadyOwns(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	repo.On("GetCurrentRecord", mock.Anything, "p1").Return(ownedRecord("p1", "buyer-9"), nil)

	uc := NewTransferUseCase(repo, chain, 4)

	err := uc.ExecuteTransfer(ctx, TransferActionRequest{
		RequestID:      "req-1",
		ProductID:      "p1",
		SellerID:       "seller-5",
		BuyerID:        "buyer-9",
		BuyerPublicKey: "pk-buyer-9",
	})

	assert.NoError(t, err)
	chain.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteTransfer_FailsWhenSellerNotOwner(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	repo.On("GetCurrentRecord", mock.Anything, "p1").Return(ownedRecord("p1", "user-7"), nil)

	uc := NewTransferUseCase(repo, chain, 4)

	err := uc.ExecuteTransfer(ctx, TransferActionRequest{
		RequestID:      "req-1",
		ProductID:      "p1",
		SellerID:       "seller-5",
		BuyerID:        "buyer-9",
		BuyerPublicKey: "pk-buyer-9",
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not current owner")
}

func TestCompensateTransfer_IdempotentWhenSellerStillOwns(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	repo.On("GetCurrentRecord", mock.Anything, "p1").Return(ownedRecord("p1", "seller-5"), nil)

	uc := NewTransferUseCase(repo, chain, 4)

	err := uc.CompensateTransfer(ctx, TransferActionRequest{
		RequestID:       "req-1",
		ProductID:       "p1",
		SellerID:        "seller-5",
		BuyerID:         "buyer-9",
		SellerPublicKey: "pk-seller-5",
	})

	assert.NoError(t, err)
	chain.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterProduct_ConflictWhenAlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	repo.On("GetCurrentRecord", mock.Anything, "p1").Return(ownedRecord("p1", "factory-1"), nil)

	uc := NewTransferUseCase(repo, chain, 4)

	record, err := uc.RegisterProduct(ctx, RegisterProductRequest{
		ProductID:      "p1",
		OwnerID:        "factory-1",
		OwnerPublicKey: "pk-factory-1",
	})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Nil(t, record)
	chain.AssertNotCalled(t, "SubmitRegistration", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterProduct_OpensGenesisRecord(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	repo.On("GetCurrentRecord", mock.Anything, "p1").Return(nil, ErrNotFound)
	chain.On("SubmitRegistration", mock.Anything, "pk-factory-1", "p1").Return("sig-genesis", nil)
	chain.On("ConfirmTransaction", mock.Anything, "sig-genesis").Return(nil)
	repo.On("CreateGenesisRecord", mock.Anything, mock.AnythingOfType("*main.OwnershipRecord")).Return(nil)

	uc := NewTransferUseCase(repo, chain, 4)

	record, err := uc.RegisterProduct(ctx, RegisterProductRequest{
		ProductID:      "p1",
		OwnerID:        "factory-1",
		OwnerPublicKey: "pk-factory-1",
	})

	assert.NoError(t, err)
	assert.Equal(t, "factory-1", record.OwnerID)
	assert.Equal(t, "sig-genesis", record.TxHash)
	assert.True(t, record.Open())
	repo.AssertExpectations(t)
}

func TestTransferBatch_CountsItemOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	defer otel.SetMeterProvider(previous)

	ctx := context.Background()
	repo := new(MockOwnershipRepository)
	chain := new(MockChainClient)

	expectSuccessfulTransfer(repo, chain, "11", "user-5")
	repo.On("GetCurrentRecord", mock.Anything, "12").Return(ownedRecord("12", "user-7"), nil)

	uc := NewTransferUseCase(repo, chain, 2)

	uc.TransferBatch(ctx, BatchTransferRequest{
		FromUserID:  "user-5",
		ToUserID:    "user-9",
		ToPublicKey: "pk-user-9",
		ProductIDs:  []string{"11", "12"},
	})

	var rm metricdata.ResourceMetrics
	assert.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}

	assert.Equal(t, int64(1), totals["transfer.batch.items.succeeded"])
	assert.Equal(t, int64(1), totals["transfer.batch.items.failed"])
}
