package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/picsellart/internal/events"
	"github.com/templui/picsellart/internal/gateway"
	"github.com/templui/picsellart/internal/gateway/gatewaytest"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/repository"
)

var (
	buyer  = model.Identity{UID: "buyer-1", Email: "buyer@example.com"}
	seller = model.Identity{UID: "seller-1", Email: "seller@example.com"}
)

func TestCreateOrderDerivesAmount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 9900)

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), order.Amount)
	assert.Equal(t, "inr", order.Currency)
	assert.Equal(t, gateway.ProviderRazorpay, order.Provider)
	assert.Equal(t, "rzp_test", order.KeyID)

	req := e.lastRequest()
	assert.Equal(t, int64(9900), req.Amount)
	assert.Equal(t, order.OrderID, req.Reference)
	assert.Equal(t, buyer.Email, req.CustomerEmail)

	stored, err := e.orders.ByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCreated, stored.Status)
	assert.Equal(t, order.GatewayOrderID, stored.GatewayOrderID)
	assert.Equal(t, buyer.UID, stored.RequesterID)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.OrdersCreated.WithLabelValues("listing")))

	pack, _ := model.PackByID(model.PackPro)
	planOrder, err := e.reconciler.CreateOrder(ctx, model.OrderKindPlan, model.PackPro, seller)
	require.NoError(t, err)
	assert.Equal(t, pack.Price, planOrder.Amount)
	assert.Equal(t, model.PackPro, e.lastRequest().Product)
}

func TestCreateOrderRejections(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 9900)
	e.buy(t, buyer, listing.ID)

	tests := []struct {
		name      string
		kind      model.OrderKind
		subject   string
		requester model.Identity
		want      error
	}{
		{"already owned", model.OrderKindListing, listing.ID, buyer, ErrAlreadyOwned},
		{"own listing", model.OrderKindListing, listing.ID, seller, ErrOwnListing},
		{"unknown listing", model.OrderKindListing, "missing", buyer, ErrListingNotFound},
		{"unknown pack", model.OrderKindPlan, "platinum", seller, ErrPackNotFound},
		{"unknown kind", model.OrderKind("gift"), listing.ID, buyer, ErrInvalidInput},
		{"anonymous", model.OrderKindListing, listing.ID, model.Identity{}, ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(e.gateway.Requests())
			_, err := e.reconciler.CreateOrder(ctx, tt.kind, tt.subject, tt.requester)
			assert.ErrorIs(t, err, tt.want)
			assert.Len(t, e.gateway.Requests(), before, "gateway must not be called")
		})
	}
}

func TestCreateOrderGatewayFailurePersistsNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 9900)
	e.gateway.FailCreate(gateway.ErrUnavailable)

	_, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	stale, err := e.orders.StaleCreated(ctx, e.clock.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestVerifyAndSettleIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 9900)

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	require.NoError(t, err)

	cb := Callback{Payload: paidCallback(order.GatewayOrderID, "pay_1"), Requester: &buyer, Kind: model.OrderKindListing}
	first, err := e.reconciler.VerifyAndSettle(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSettled, first.Status)
	assert.Equal(t, "pay_1", first.PaymentID)
	assert.NotEmpty(t, first.ResultRef)
	assert.False(t, first.RefundRequired)

	second, err := e.reconciler.VerifyAndSettle(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, first.ResultRef, second.ResultRef)
	assert.Equal(t, first.Status, second.Status)
	assert.True(t, first.SettledAt.Equal(*second.SettledAt))

	purchases, err := e.reconciler.Purchases(ctx, buyer.UID)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, first.ResultRef, purchases[0].ID)
	assert.Equal(t, order.OrderID, purchases[0].OrderID)
	assert.Equal(t, listing.Title, purchases[0].Title)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.OrdersSettled.WithLabelValues("listing")))
	assert.Equal(t, []string{events.SubjectPurchaseSettled}, e.publisher.subjects())
}

func TestVerifyAndSettleConcurrentDuplicates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 9900)

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	require.NoError(t, err)
	cb := Callback{Payload: paidCallback(order.GatewayOrderID, "pay_1")}

	const workers = 5
	results := make([]*SettlementResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.reconciler.VerifyAndSettle(ctx, cb)
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ResultRef, results[i].ResultRef)
	}
	purchases, err := e.purchases.ByBuyer(ctx, buyer.UID)
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.OrdersSettled.WithLabelValues("listing")))
}

func TestVerifyAndSettleRejectsTamperedCallback(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 9900)
	e.seedPlan(t, seller.UID, 25, 3, 24900, 24*time.Hour)

	listingOrder, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	require.NoError(t, err)
	planOrder, err := e.reconciler.CreateOrder(ctx, model.OrderKindPlan, model.PackPro, seller)
	require.NoError(t, err)
	planBefore, err := e.plans.BySellerID(ctx, seller.UID)
	require.NoError(t, err)

	for _, gwOrderID := range []string{listingOrder.GatewayOrderID, planOrder.GatewayOrderID} {
		valid := gateway.SignCheckout(testKeySecret, gwOrderID, "pay_1")
		payloads := [][]byte{
			[]byte(`{"razorpay_order_id":"` + gwOrderID + `","razorpay_payment_id":"pay_1","razorpay_signature":"` + flipLast(valid) + `"}`),
			[]byte(`{"razorpay_order_id":"` + gwOrderID + `","razorpay_payment_id":"pay_2","razorpay_signature":"` + valid + `"}`),
			[]byte(`{"razorpay_order_id":"` + gwOrderID + `","razorpay_payment_id":"pay_1","razorpay_signature":"zz"}`),
		}
		for _, p := range payloads {
			_, err := e.reconciler.VerifyAndSettle(ctx, Callback{Payload: p})
			assert.ErrorIs(t, err, ErrInvalidSignature)
		}
	}

	for _, id := range []string{listingOrder.OrderID, planOrder.OrderID} {
		o, err := e.orders.ByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusCreated, o.Status)
		assert.Nil(t, o.PaymentID)
	}
	purchases, err := e.purchases.ByBuyer(ctx, buyer.UID)
	require.NoError(t, err)
	assert.Empty(t, purchases)
	planAfter, err := e.plans.BySellerID(ctx, seller.UID)
	require.NoError(t, err)
	assert.Equal(t, planBefore.Version, planAfter.Version)
	assert.Equal(t, 3, planAfter.UploadsUsed)

	assert.Equal(t, 6.0, testutil.ToFloat64(e.metrics.SignatureFailures))
	assert.Empty(t, e.publisher.subjects())
}

func TestVerifyAndSettleRenewsPlan(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	existing := e.seedPlan(t, seller.UID, 10, 7, 19900, 30*24*time.Hour)

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindPlan, model.PackPro, seller)
	require.NoError(t, err)
	result, err := e.reconciler.VerifyAndSettle(ctx, Callback{
		Payload:   paidCallback(order.GatewayOrderID, "pay_plan"),
		Requester: &seller,
		Kind:      model.OrderKindPlan,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSettled, result.Status)
	assert.Equal(t, model.PackPro, result.ResultRef)

	pack, _ := model.PackByID(model.PackPro)
	plan, err := e.plans.BySellerID(ctx, seller.UID)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.UploadsUsed)
	assert.Equal(t, pack.UploadLimit, plan.UploadLimit)
	assert.Equal(t, pack.MaxPricePerItem, plan.MaxPricePerItem)
	assert.True(t, existing.ExpiresAt.Add(180*24*time.Hour).Equal(plan.ExpiresAt), "expires %s", plan.ExpiresAt)

	assert.Equal(t, []string{events.SubjectPlanRenewed}, e.publisher.subjects())
}

func TestVerifyAndSettleCreatesFirstPlan(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindPlan, model.PackBasic, seller)
	require.NoError(t, err)
	_, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: paidCallback(order.GatewayOrderID, "pay_plan")})
	require.NoError(t, err)

	plan, err := e.plans.BySellerID(ctx, seller.UID)
	require.NoError(t, err)
	assert.Equal(t, model.PackBasic, plan.PlanID)
	assert.True(t, e.clock.Now().Add(180*24*time.Hour).Equal(plan.ExpiresAt))

	// the seller can now upload
	assert.NoError(t, e.quota.Check(ctx, seller.UID, 100))
}

func TestVerifyAndSettleRenewsExpiredPlanFromNow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedPlan(t, seller.UID, 10, 10, 19900, -48*time.Hour)

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindPlan, model.PackBasic, seller)
	require.NoError(t, err)
	_, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: paidCallback(order.GatewayOrderID, "pay_plan")})
	require.NoError(t, err)

	plan, err := e.plans.BySellerID(ctx, seller.UID)
	require.NoError(t, err)
	assert.True(t, e.clock.Now().Add(180*24*time.Hour).Equal(plan.ExpiresAt))
	assert.Equal(t, 0, plan.UploadsUsed)
}

func TestVerifyAndSettleDoublePayment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 9900)

	first, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	require.NoError(t, err)
	second, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	require.NoError(t, err)

	r1, err := e.reconciler.VerifyAndSettle(ctx, Callback{Payload: paidCallback(first.GatewayOrderID, "pay_1")})
	require.NoError(t, err)
	r2, err := e.reconciler.VerifyAndSettle(ctx, Callback{Payload: paidCallback(second.GatewayOrderID, "pay_2")})
	require.NoError(t, err)

	assert.False(t, r1.RefundRequired)
	assert.True(t, r2.RefundRequired)
	assert.Equal(t, r1.ResultRef, r2.ResultRef)

	purchases, err := e.purchases.ByBuyer(ctx, buyer.UID)
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.RefundsRequired))

	stored, err := e.orders.ByID(ctx, second.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSettled, stored.Status)
	assert.True(t, stored.RefundRequired)
}

func TestVerifyAndSettleFailedOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 9900)

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	require.NoError(t, err)

	e.clock.Advance(2 * time.Hour)
	n, err := e.reconciler.ExpireStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: paidCallback(order.GatewayOrderID, "pay_late")})
	assert.ErrorIs(t, err, ErrOrderFailed)

	stored, err := e.orders.ByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "expired", *stored.FailureReason)

	_, err = e.purchases.ByBuyerAndPhoto(ctx, buyer.UID, listing.ID)
	assert.ErrorIs(t, err, repository.ErrPurchaseNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.RefundsRequired))
}

func TestVerifyAndSettleRetryAfterFailedAttempt(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 9900)

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	require.NoError(t, err)

	// card declined, the order stays open for another attempt
	body, headers := gatewaytest.Webhook("payment.failed", order.GatewayOrderID, "pay_declined", 9900)
	result, err := e.reconciler.VerifyAndSettle(ctx, Callback{Payload: body, Headers: headers})
	require.NoError(t, err)
	assert.Nil(t, result)

	stored, err := e.orders.ByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCreated, stored.Status)

	body, headers = gatewaytest.Webhook("payment.captured", order.GatewayOrderID, "pay_retry", 9900)
	result, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: body, Headers: headers})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSettled, result.Status)
	assert.Equal(t, "pay_retry", result.PaymentID)

	purchases, err := e.purchases.ByBuyer(ctx, buyer.UID)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, order.OrderID, purchases[0].OrderID)
	assert.Zero(t, testutil.ToFloat64(e.metrics.RefundsRequired))
	assert.Zero(t, testutil.ToFloat64(e.metrics.OrdersFailed.WithLabelValues("listing", "payment_failed")))

	// an unrelated event is acknowledged without effect
	body = []byte(`{"event":"refund.created","payload":{}}`)
	headers.Set("X-Razorpay-Signature", gateway.SignWebhook(gatewaytest.WebhookSecret, body))
	result, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: body, Headers: headers})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestVerifyAndSettleAmountMismatch(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 19900)

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	require.NoError(t, err)

	body, headers := gatewaytest.Webhook("payment.captured", order.GatewayOrderID, "pay_short", 100)
	_, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: body, Headers: headers})
	assert.ErrorIs(t, err, ErrAmountMismatch)

	stored, err := e.orders.ByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFailed, stored.Status)
	assert.True(t, stored.RefundRequired)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "amount_mismatch", *stored.FailureReason)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "pay_short", *stored.PaymentID)

	_, err = e.purchases.ByBuyerAndPhoto(ctx, buyer.UID, listing.ID)
	assert.ErrorIs(t, err, repository.ErrPurchaseNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.RefundsRequired))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.OrdersFailed.WithLabelValues("listing", "amount_mismatch")))

	// a later delivery at the right amount does not grant either
	body, headers = gatewaytest.Webhook("payment.captured", order.GatewayOrderID, "pay_full", 19900)
	_, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: body, Headers: headers})
	assert.ErrorIs(t, err, ErrOrderFailed)
	_, err = e.purchases.ByBuyerAndPhoto(ctx, buyer.UID, listing.ID)
	assert.ErrorIs(t, err, repository.ErrPurchaseNotFound)
}

func TestVerifyAndSettleMatchingAmountGrants(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindPlan, model.PackBasic, seller)
	require.NoError(t, err)

	body, headers := gatewaytest.Webhook("order.paid", order.GatewayOrderID, "pay_pack", order.Amount)
	result, err := e.reconciler.VerifyAndSettle(ctx, Callback{Payload: body, Headers: headers})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSettled, result.Status)
	assert.Equal(t, model.PackBasic, result.ResultRef)
}

func TestCreateOrderUnsupportedByGateway(t *testing.T) {
	e := newTestEnv(t)
	listing := e.seedListing(t, seller.UID, 9900)
	e.gateway.FailCreate(fmt.Errorf("%w: per-listing prices", gateway.ErrUnsupported))

	_, err := e.reconciler.CreateOrder(context.Background(), model.OrderKindListing, listing.ID, buyer)
	assert.ErrorIs(t, err, ErrPaymentUnsupported)

	pending, err := e.orders.StaleCreated(context.Background(), e.clock.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestVerifyAndSettleCallerChecks(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	listing := e.seedListing(t, seller.UID, 9900)

	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listing.ID, buyer)
	require.NoError(t, err)
	payload := paidCallback(order.GatewayOrderID, "pay_1")

	other := model.Identity{UID: "buyer-2"}
	_, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: payload, Requester: &other})
	assert.ErrorIs(t, err, ErrWrongRequester)

	_, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: payload, Requester: &buyer, Kind: model.OrderKindPlan})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: paidCallback("order_unknown", "pay_1")})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = e.reconciler.VerifyAndSettle(ctx, Callback{Payload: []byte(`{"razorpay_order_id":""}`)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	stored, err := e.orders.ByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCreated, stored.Status)
}

func TestVerifyAndSettleGatewayError(t *testing.T) {
	e := newTestEnv(t)
	e.reconciler.gateway = failingGateway{e.gateway}

	_, err := e.reconciler.VerifyAndSettle(context.Background(), Callback{Payload: []byte(`{}`)})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidSignature))
}

type failingGateway struct {
	*gatewaytest.Gateway
}

func (failingGateway) VerifyCallback([]byte, http.Header) (*gateway.Callback, error) {
	return nil, errors.New("boom")
}

func flipLast(sig string) string {
	last := sig[len(sig)-1]
	if last == '0' {
		return sig[:len(sig)-1] + "1"
	}
	return sig[:len(sig)-1] + "0"
}
