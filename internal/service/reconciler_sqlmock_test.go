package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/picsellart/internal/gateway/gatewaytest"
	"github.com/templui/picsellart/internal/metrics"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/repository"
	"github.com/templui/picsellart/internal/storage/storagetest"
)

var orderColumns = []string{
	"id", "gateway_order_id", "provider", "kind", "subject_id", "requester_id", "requester_email",
	"amount", "currency", "status", "payment_id", "signature_payload", "result_ref", "failure_reason",
	"refund_required", "version", "created_at", "updated_at", "settled_at",
}

func createdOrderRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(orderColumns).AddRow(
		"o1", "gw_o1", "razorpay", "listing", "l1", "buyer-1", "buyer@example.com",
		int64(9900), "inr", "created", nil, nil, nil, nil,
		false, int64(1), now, now, nil,
	)
}

func newMockReconciler(t *testing.T) (*Reconciler, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	database := sqlx.NewDb(mockDB, "sqlmock")
	r := NewReconciler(
		database,
		repository.NewPaymentOrderRepository(database),
		repository.NewPurchaseRepository(database),
		repository.NewSellerPlanRepository(database),
		repository.NewListingRepository(database),
		gatewaytest.New(),
		storagetest.New(),
		&recordingPublisher{},
		NewEmailService("", "noreply@test", "https://picsellart.test", "Picsellart", true),
		metrics.New("test"),
		ReconcilerConfig{TxMaxRetries: 2},
	)
	return r, mock
}

func expectSettleReads(mock sqlmock.Sqlmock, now time.Time) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM payment_orders WHERE gateway_order_id = $1`)).
		WithArgs("gw_o1").
		WillReturnRows(createdOrderRows(now))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM payment_orders WHERE id = $1`)).
		WithArgs("o1").
		WillReturnRows(createdOrderRows(now))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM purchases WHERE buyer_uid = $1 AND photo_id = $2`)).
		WithArgs("buyer-1", "l1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM listings WHERE id = $1`)).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seller_id", "title", "price", "tags", "preview_path", "created_at"}).
			AddRow("l1", "seller-1", "Sunset", int64(9900), `["sky"]`, "public/previews/seller-1/l1.jpg", now))
}

// A storage failure in the middle of settlement rolls back everything: no
// purchase, and the order is never moved out of created.
func TestSettleFailureLeavesOrderCreated(t *testing.T) {
	r, mock := newMockReconciler(t)
	now := time.Now().UTC()

	expectSettleReads(mock, now)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO purchases`)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := r.VerifyAndSettle(context.Background(), Callback{Payload: paidCallback("gw_o1", "pay_1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleCommitsPurchaseAndOrderTogether(t *testing.T) {
	r, mock := newMockReconciler(t)
	now := time.Now().UTC()

	expectSettleReads(mock, now)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO purchases`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payment_orders`)).
		WithArgs(model.OrderStatusSettled, "pay_1", sqlmock.AnyArg(), sqlmock.AnyArg(), false, sqlmock.AnyArg(), sqlmock.AnyArg(), "o1", model.OrderStatusCreated, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := r.VerifyAndSettle(context.Background(), Callback{Payload: paidCallback("gw_o1", "pay_1")})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSettled, result.Status)
	assert.Equal(t, "pay_1", result.PaymentID)
	assert.NotEmpty(t, result.ResultRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A lost version race reruns the whole transaction.
func TestSettleRetriesVersionConflict(t *testing.T) {
	r, mock := newMockReconciler(t)
	now := time.Now().UTC()

	expectSettleReads(mock, now)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO purchases`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payment_orders`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM payment_orders WHERE id = $1`)).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(
			"o1", "gw_o1", "razorpay", "listing", "l1", "buyer-1", "buyer@example.com",
			int64(9900), "inr", "settled", "pay_1", "{}", "p-1", nil,
			false, int64(2), now, now, now,
		))
	mock.ExpectCommit()

	result, err := r.VerifyAndSettle(context.Background(), Callback{Payload: paidCallback("gw_o1", "pay_1")})
	require.NoError(t, err)
	assert.Equal(t, "p-1", result.ResultRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}
