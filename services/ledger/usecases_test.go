package main

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
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

// MockRepository para testes que não precisam de banco real
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) BeginTx(ctx context.Context) (Tx, error) {
	args := m.Called(ctx)
	return args.Get(0).(Tx), args.Error(1)
}

func (m *MockRepository) GetListing(ctx context.Context, listingID string) (*Listing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Listing), args.Error(1)
}

func (m *MockRepository) GetListingForUpdate(ctx context.Context, tx Tx, listingID string) (*Listing, error) {
	args := m.Called(ctx, tx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Listing), args.Error(1)
}

func (m *MockRepository) ActiveListingExists(ctx context.Context, tx Tx, productID string) (bool, error) {
	args := m.Called(ctx, tx, productID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CreateListing(ctx context.Context, tx Tx, listing *Listing) error {
	return m.Called(ctx, tx, listing).Error(0)
}

func (m *MockRepository) UpdateListing(ctx context.Context, tx Tx, listing *Listing) error {
	return m.Called(ctx, tx, listing).Error(0)
}

func (m *MockRepository) DeleteListing(ctx context.Context, tx Tx, listingID string) error {
	return m.Called(ctx, tx, listingID).Error(0)
}

func (m *MockRepository) ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]Listing), args.Error(1)
}

func (m *MockRepository) GetRequest(ctx context.Context, requestID string) (*PurchaseRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PurchaseRequest), args.Error(1)
}

func (m *MockRepository) GetRequestForUpdate(ctx context.Context, tx Tx, requestID string) (*PurchaseRequest, error) {
	args := m.Called(ctx, tx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PurchaseRequest), args.Error(1)
}

func (m *MockRepository) CreateRequest(ctx context.Context, request *PurchaseRequest) error {
	return m.Called(ctx, request).Error(0)
}

func (m *MockRepository) UpdateRequest(ctx context.Context, tx Tx, request *PurchaseRequest) error {
	return m.Called(ctx, tx, request).Error(0)
}

func (m *MockRepository) ListRequests(ctx context.Context, filter RequestFilter) ([]PurchaseRequest, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]PurchaseRequest), args.Error(1)
}

// MockOwnershipClient simula o transfer service
type MockOwnershipClient struct {
	mock.Mock
}

func (m *MockOwnershipClient) CurrentOwner(ctx context.Context, productID string) (string, error) {
	args := m.Called(ctx, productID)
	return args.String(0), args.Error(1)
}

func newMockTx() *MockTx {
	tx := new(MockTx)
	tx.On("Commit").Return(nil).Maybe()
	tx.On("Rollback").Return(nil).Maybe()
	return tx
}

func TestCreateListing_ConflictOnActiveListing(t *testing.T) {
	// Arrange
	ctx := context.Background()
	mockRepo := new(MockRepository)
	mockOwners := new(MockOwnershipClient)
	tx := newMockTx()

	mockOwners.On("CurrentOwner", ctx, "product-1").Return("seller-1", nil)
	mockRepo.On("BeginTx", ctx).Return(tx, nil)
	mockRepo.On("ActiveListingExists", ctx, tx, "product-1").Return(true, nil)

	uc := NewLedgerUseCase(mockRepo, mockOwners)

	// Act
	listing, err := uc.CreateListing(ctx, CreateListingRequest{
		SellerID:  "seller-1",
		ProductID: "product-1",
		Price:     "99.90",
		Currency:  CurrencySGD,
	})

	// Assert
	assert.ErrorIs(t, err, ErrConflict)
	assert.Nil(t, listing)
	mockRepo.AssertNotCalled(t, "CreateListing", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateListing_ForbiddenWhenNotOwner(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	mockOwners := new(MockOwnershipClient)

	mockOwners.On("CurrentOwner", ctx, "product-1").Return("someone-else", nil)

	uc := NewLedgerUseCase(mockRepo, mockOwners)

	listing, err := uc.CreateListing(ctx, CreateListingRequest{
		SellerID:  "seller-1",
		ProductID: "product-1",
		Price:     "99.90",
		Currency:  CurrencySGD,
	})

	assert.ErrorIs(t, err, ErrForbidden)
	assert.Nil(t, listing)
	mockRepo.AssertNotCalled(t, "BeginTx", mock.Anything)
}

func TestCreateListing_SucceedsAfterPriorListingSold(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	mockOwners := new(MockOwnershipClient)
	tx := newMockTx()

	mockOwners.On("CurrentOwner", ctx, "product-1").Return("seller-1", nil)
	mockRepo.On("BeginTx", ctx).Return(tx, nil)
	// A sold listing does not count as active
	mockRepo.On("ActiveListingExists", ctx, tx, "product-1").Return(false, nil)
	mockRepo.On("CreateListing", ctx, tx, mock.AnythingOfType("*main.Listing")).Return(nil)

	uc := NewLedgerUseCase(mockRepo, mockOwners)

	listing, err := uc.CreateListing(ctx, CreateListingRequest{
		SellerID:  "seller-1",
		ProductID: "product-1",
		Price:     "150",
		Currency:  CurrencyUSD,
	})

	assert.NoError(t, err)
	assert.NotNil(t, listing)
	assert.Equal(t, ListingStatusAvailable, listing.Status)
	mockRepo.AssertExpectations(t)
}

func TestCreateListing_RejectsNonPositivePrice(t *testing.T) {
	ctx := context.Background()
	uc := NewLedgerUseCase(new(MockRepository), new(MockOwnershipClient))

	for _, price := range []string{"0", "-10", "abc"} {
		_, err := uc.CreateListing(ctx, CreateListingRequest{
			SellerID:  "seller-1",
			ProductID: "product-1",
			Price:     price,
			Currency:  CurrencyUSD,
		})
		assert.Error(t, err, "price %s should be rejected", price)
	}
}

func TestDeleteListing_InvalidStateWhenSold(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	tx := newMockTx()

	sold := NewListing("l1", "p1", "seller-1", decimal.NewFromInt(10), CurrencyUSD, "")
	sold.Status = ListingStatusSold

	mockRepo.On("BeginTx", ctx).Return(tx, nil)
	mockRepo.On("GetListingForUpdate", ctx, tx, "l1").Return(sold, nil)

	uc := NewLedgerUseCase(mockRepo, new(MockOwnershipClient))

	err := uc.DeleteListing(ctx, "l1", "seller-1")

	assert.ErrorIs(t, err, ErrInvalidState)
	mockRepo.AssertNotCalled(t, "DeleteListing", mock.Anything, mock.Anything, mock.Anything)
}

func TestProposeRequest_NotFoundWhenListingSold(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)

	sold := NewListing("l1", "p1", "seller-1", decimal.NewFromInt(10), CurrencyUSD, "")
	sold.Status = ListingStatusSold

	mockRepo.On("GetListing", ctx, "l1").Return(sold, nil)

	uc := NewLedgerUseCase(mockRepo, new(MockOwnershipClient))

	request, err := uc.ProposeRequest(ctx, ProposeRequestRequest{
		ListingID:       "l1",
		BuyerID:         "buyer-1",
		OfferedPrice:    "10",
		OfferedCurrency: CurrencyUSD,
	})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, request)
	mockRepo.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything)
}

func TestRecordPayment_ForbiddenOnBuyerMismatch(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	tx := newMockTx()

	listing := NewListing("l1", "p1", "seller-1", decimal.NewFromInt(10), CurrencyUSD, "")
	request := NewPurchaseRequest("r1", listing, "buyer-1", decimal.NewFromInt(10), CurrencyUSD)

	mockRepo.On("BeginTx", ctx).Return(tx, nil)
	mockRepo.On("GetRequestForUpdate", ctx, tx, "r1").Return(request, nil)

	uc := NewLedgerUseCase(mockRepo, new(MockOwnershipClient))

	err := uc.RecordPayment(ctx, PaymentActionRequest{
		RequestID:     "r1",
		BuyerID:       "impostor",
		PaymentTxHash: "sig",
	})

	assert.ErrorIs(t, err, ErrForbidden)
	mockRepo.AssertNotCalled(t, "UpdateRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordPayment_ForbiddenEvenWhenAlreadyPaid(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	tx := newMockTx()

	listing := NewListing("l1", "p1", "seller-1", decimal.NewFromInt(10), CurrencyUSD, "")
	request := NewPurchaseRequest("r1", listing, "buyer-1", decimal.NewFromInt(10), CurrencyUSD)
	_ = request.RecordPayment("sig")

	mockRepo.On("BeginTx", ctx).Return(tx, nil)
	mockRepo.On("GetRequestForUpdate", ctx, tx, "r1").Return(request, nil)

	uc := NewLedgerUseCase(mockRepo, new(MockOwnershipClient))

	// The buyer check applies regardless of request status
	err := uc.RecordPayment(ctx, PaymentActionRequest{
		RequestID:     "r1",
		BuyerID:       "impostor",
		PaymentTxHash: "sig",
	})

	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRecordPayment_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	tx := newMockTx()

	listing := NewListing("l1", "p1", "seller-1", decimal.NewFromInt(10), CurrencyUSD, "")
	request := NewPurchaseRequest("r1", listing, "buyer-1", decimal.NewFromInt(10), CurrencyUSD)
	_ = request.RecordPayment("sig")

	mockRepo.On("BeginTx", ctx).Return(tx, nil)
	mockRepo.On("GetRequestForUpdate", ctx, tx, "r1").Return(request, nil)

	uc := NewLedgerUseCase(mockRepo, new(MockOwnershipClient))

	err := uc.RecordPayment(ctx, PaymentActionRequest{
		RequestID:     "r1",
		BuyerID:       "buyer-1",
		PaymentTxHash: "sig",
	})

	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "UpdateRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteRequest_InvalidStateWhenNotPaid(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	tx := newMockTx()

	listing := NewListing("l1", "p1", "seller-1", decimal.NewFromInt(10), CurrencyUSD, "")
	request := NewPurchaseRequest("r1", listing, "buyer-1", decimal.NewFromInt(10), CurrencyUSD)

	mockRepo.On("BeginTx", ctx).Return(tx, nil)
	mockRepo.On("GetRequestForUpdate", ctx, tx, "r1").Return(request, nil)

	uc := NewLedgerUseCase(mockRepo, new(MockOwnershipClient))

	err := uc.CompleteRequest(ctx, PaymentActionRequest{RequestID: "r1"})

	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteRequest_MarksListingSold(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	tx := newMockTx()

	listing := NewListing("l1", "p1", "seller-1", decimal.NewFromInt(10), CurrencyUSD, "")
	_ = listing.Transition(ListingStatusReserved)
	request := NewPurchaseRequest("r1", listing, "buyer-1", decimal.NewFromInt(10), CurrencyUSD)
	_ = request.RecordPayment("sig")

	mockRepo.On("BeginTx", ctx).Return(tx, nil)
	mockRepo.On("GetRequestForUpdate", ctx, tx, "r1").Return(request, nil)
	mockRepo.On("UpdateRequest", ctx, tx, request).Return(nil)
	mockRepo.On("GetListingForUpdate", ctx, tx, "l1").Return(listing, nil)
	mockRepo.On("UpdateListing", ctx, tx, listing).Return(nil)

	uc := NewLedgerUseCase(mockRepo, new(MockOwnershipClient))

	err := uc.CompleteRequest(ctx, PaymentActionRequest{RequestID: "r1"})

	assert.NoError(t, err)
	assert.Equal(t, RequestStatusCompleted, request.Status)
	assert.Equal(t, ListingStatusSold, listing.Status)
	mockRepo.AssertExpectations(t)
}

func TestCompensatePayment_ReleasesListing(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	tx := newMockTx()

	listing := NewListing("l1", "p1", "seller-1", decimal.NewFromInt(10), CurrencyUSD, "")
	_ = listing.Transition(ListingStatusReserved)
	request := NewPurchaseRequest("r1", listing, "buyer-1", decimal.NewFromInt(10), CurrencyUSD)
	_ = request.RecordPayment("sig")

	mockRepo.On("BeginTx", ctx).Return(tx, nil)
	mockRepo.On("GetRequestForUpdate", ctx, tx, "r1").Return(request, nil)
	mockRepo.On("UpdateRequest", ctx, tx, request).Return(nil)
	mockRepo.On("GetListingForUpdate", ctx, tx, "l1").Return(listing, nil)
	mockRepo.On("UpdateListing", ctx, tx, listing).Return(nil)

	uc := NewLedgerUseCase(mockRepo, new(MockOwnershipClient))

	err := uc.CompensatePayment(ctx, PaymentActionRequest{RequestID: "r1"})

	assert.NoError(t, err)
	assert.Equal(t, RequestStatusCancelled, request.Status)
	assert.Equal(t, ListingStatusAvailable, listing.Status)
}
