package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v79"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
)

// fakeProcessor is a stateful in-memory processor. Create calls honour
// idempotency keys and every call is counted by method name.
type fakeProcessor struct {
	mu sync.Mutex

	unconfigured bool
	seq          int
	calls        map[string]int
	failures     map[string][]error
	keys         map[string]string

	customers      map[string]*stripe.Customer
	paymentMethods map[string]*stripe.PaymentMethod
	paymentIntents map[string]*stripe.PaymentIntent
	setupIntents   map[string]*stripe.SetupIntent
	charges        map[string]*stripe.Charge
	balances       map[string]*stripe.BalanceTransaction
	products       map[string]*stripe.Product
	plans          map[string]*stripe.Plan
	coupons        map[string]*stripe.Coupon
	subscriptions  map[string]*stripe.Subscription
	invoices       []*stripe.Invoice

	// confirmStatus overrides the status a confirmed payment intent lands in.
	confirmStatus      stripe.PaymentIntentStatus
	subscriptionStatus stripe.SubscriptionStatus
	keepAtPeriodEnd    bool

	lastIntentParams       *stripe.PaymentIntentParams
	lastIntentUpdate       *stripe.PaymentIntentParams
	lastSubscriptionParams *stripe.SubscriptionParams
	subscriptionParams     []*stripe.SubscriptionParams
	trialEnds              map[string]int64
	refundKeys             []string
	capturedAmount         int64
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		calls:          map[string]int{},
		failures:       map[string][]error{},
		keys:           map[string]string{},
		customers:      map[string]*stripe.Customer{},
		paymentMethods: map[string]*stripe.PaymentMethod{
			"pm_card":    {ID: "pm_card", Card: &stripe.PaymentMethodCard{Funding: stripe.CardFundingCredit}},
			"pm_other":   {ID: "pm_other", Card: &stripe.PaymentMethodCard{Funding: stripe.CardFundingDebit}},
			"pm_prepaid": {ID: "pm_prepaid", Card: &stripe.PaymentMethodCard{Funding: stripe.CardFundingPrepaid}},
		},
		paymentIntents:     map[string]*stripe.PaymentIntent{},
		setupIntents:       map[string]*stripe.SetupIntent{},
		charges:            map[string]*stripe.Charge{},
		balances:           map[string]*stripe.BalanceTransaction{},
		products:           map[string]*stripe.Product{},
		plans:              map[string]*stripe.Plan{},
		coupons:            map[string]*stripe.Coupon{},
		subscriptions:      map[string]*stripe.Subscription{},
		subscriptionStatus: stripe.SubscriptionStatusTrialing,
		trialEnds:          map[string]int64{},
	}
}

func (f *fakeProcessor) fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], err)
}

func (f *fakeProcessor) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeProcessor) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// enter counts the call and pops an injected failure. Callers hold f.mu.
func (f *fakeProcessor) enter(method string) error {
	f.calls[method]++
	if queued := f.failures[method]; len(queued) > 0 {
		f.failures[method] = queued[1:]
		return queued[0]
	}
	return nil
}

func (f *fakeProcessor) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func missing(kind, id string) error {
	return &processor.Error{
		Type:       processor.ErrorTypeInvalidRequest,
		Code:       processor.CodeResourceMissing,
		Message:    fmt.Sprintf("No such %s: '%s'", kind, id),
		HTTPStatus: 404,
	}
}

func alreadyExists(id string) error {
	return &processor.Error{
		Type:       processor.ErrorTypeInvalidRequest,
		Code:       processor.CodeResourceAlreadyExists,
		Message:    fmt.Sprintf("%s already exists", id),
		HTTPStatus: 400,
	}
}

func cardDeclined() error {
	return &processor.Error{
		Type:             processor.ErrorTypeCard,
		Code:             "card_declined",
		DeclineCode:      "insufficient_funds",
		Message:          "Your card has insufficient funds.",
		LocalizedMessage: "Your card has insufficient funds.",
		HTTPStatus:       402,
	}
}

func (f *fakeProcessor) Configured() bool { return !f.unconfigured }

func (f *fakeProcessor) CreateCustomer(_ context.Context, params *stripe.CustomerParams, key string) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateCustomer"); err != nil {
		return nil, err
	}
	if id, ok := f.keys[key]; ok {
		return f.customers[id], nil
	}
	customer := &stripe.Customer{ID: f.nextID("cus"), Metadata: params.Metadata}
	if params.Email != nil {
		customer.Email = *params.Email
	}
	f.customers[customer.ID] = customer
	f.keys[key] = customer.ID
	return customer, nil
}

func (f *fakeProcessor) UpdateCustomer(_ context.Context, id string, _ *stripe.CustomerParams) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateCustomer"); err != nil {
		return nil, err
	}
	customer, ok := f.customers[id]
	if !ok {
		customer = &stripe.Customer{ID: id}
		f.customers[id] = customer
	}
	return customer, nil
}

func (f *fakeProcessor) GetCustomer(_ context.Context, id string) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetCustomer"); err != nil {
		return nil, err
	}
	customer, ok := f.customers[id]
	if !ok {
		return nil, missing("customer", id)
	}
	return customer, nil
}

func (f *fakeProcessor) GetPaymentMethod(_ context.Context, id string) (*stripe.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetPaymentMethod"); err != nil {
		return nil, err
	}
	pm, ok := f.paymentMethods[id]
	if !ok {
		return nil, missing("payment_method", id)
	}
	cp := *pm
	return &cp, nil
}

func (f *fakeProcessor) AttachPaymentMethod(_ context.Context, id, customerID string) (*stripe.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AttachPaymentMethod"); err != nil {
		return nil, err
	}
	pm, ok := f.paymentMethods[id]
	if !ok {
		return nil, missing("payment_method", id)
	}
	pm.Customer = &stripe.Customer{ID: customerID}
	cp := *pm
	return &cp, nil
}

func (f *fakeProcessor) GetCharge(_ context.Context, id string, _ ...string) (*stripe.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetCharge"); err != nil {
		return nil, err
	}
	charge, ok := f.charges[id]
	if !ok {
		return nil, missing("charge", id)
	}
	cp := *charge
	return &cp, nil
}

func (f *fakeProcessor) CreateSetupIntent(_ context.Context, params *stripe.SetupIntentParams, key string) (*stripe.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateSetupIntent"); err != nil {
		return nil, err
	}
	if id, ok := f.keys[key]; ok {
		cp := *f.setupIntents[id]
		return &cp, nil
	}
	id := f.nextID("seti")
	intent := &stripe.SetupIntent{
		ID:            id,
		ClientSecret:  id + "_secret",
		Status:        stripe.SetupIntentStatusSucceeded,
		Customer:      &stripe.Customer{ID: stripe.StringValue(params.Customer)},
		PaymentMethod: &stripe.PaymentMethod{ID: stripe.StringValue(params.PaymentMethod)},
		Metadata:      params.Metadata,
	}
	f.setupIntents[id] = intent
	f.keys[key] = id
	cp := *intent
	return &cp, nil
}

func (f *fakeProcessor) GetSetupIntent(_ context.Context, id string) (*stripe.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetSetupIntent"); err != nil {
		return nil, err
	}
	intent, ok := f.setupIntents[id]
	if !ok {
		return nil, missing("setup_intent", id)
	}
	cp := *intent
	return &cp, nil
}

func (f *fakeProcessor) UpdateSetupIntent(_ context.Context, id string, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateSetupIntent"); err != nil {
		return nil, err
	}
	intent, ok := f.setupIntents[id]
	if !ok {
		return nil, missing("setup_intent", id)
	}
	if params.PaymentMethod != nil {
		intent.PaymentMethod = &stripe.PaymentMethod{ID: *params.PaymentMethod}
	}
	if params.Customer != nil {
		intent.Customer = &stripe.Customer{ID: *params.Customer}
	}
	cp := *intent
	return &cp, nil
}

func (f *fakeProcessor) CancelSetupIntent(_ context.Context, id string) (*stripe.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CancelSetupIntent"); err != nil {
		return nil, err
	}
	intent, ok := f.setupIntents[id]
	if !ok {
		return nil, missing("setup_intent", id)
	}
	intent.Status = stripe.SetupIntentStatusCanceled
	cp := *intent
	return &cp, nil
}

func (f *fakeProcessor) CreatePaymentIntent(_ context.Context, params *stripe.PaymentIntentParams, key string) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastIntentParams = params
	if err := f.enter("CreatePaymentIntent"); err != nil {
		return nil, err
	}
	if id, ok := f.keys[key]; ok {
		cp := *f.paymentIntents[id]
		return &cp, nil
	}

	id := f.nextID("pi")
	intent := &stripe.PaymentIntent{
		ID:            id,
		ClientSecret:  id + "_secret",
		Amount:        stripe.Int64Value(params.Amount),
		Currency:      stripe.Currency(stripe.StringValue(params.Currency)),
		Customer:      &stripe.Customer{ID: stripe.StringValue(params.Customer)},
		PaymentMethod: &stripe.PaymentMethod{ID: stripe.StringValue(params.PaymentMethod)},
		CaptureMethod: stripe.PaymentIntentCaptureMethod(stripe.StringValue(params.CaptureMethod)),
		Metadata:      params.Metadata,
	}

	switch {
	case f.confirmStatus != "":
		intent.Status = f.confirmStatus
	case intent.CaptureMethod == stripe.PaymentIntentCaptureMethodManual:
		intent.Status = stripe.PaymentIntentStatusRequiresCapture
	default:
		intent.Status = stripe.PaymentIntentStatusSucceeded
	}

	if intent.Status == stripe.PaymentIntentStatusSucceeded || intent.Status == stripe.PaymentIntentStatusRequiresCapture {
		captured := intent.Status == stripe.PaymentIntentStatusSucceeded
		charge := &stripe.Charge{
			ID:       f.nextID("ch"),
			Amount:   intent.Amount,
			Status:   stripe.ChargeStatusSucceeded,
			Captured: captured,
		}
		if captured {
			intent.AmountReceived = intent.Amount
			charge.BalanceTransaction = f.balanceFor(intent.Amount, intent.Currency)
		}
		f.charges[charge.ID] = charge
		intent.LatestCharge = charge
	}

	f.paymentIntents[id] = intent
	f.keys[key] = id
	cp := *intent
	return &cp, nil
}

// balanceFor records a balance transaction with a 2.9% + 30 fee.
func (f *fakeProcessor) balanceFor(amount int64, cur stripe.Currency) *stripe.BalanceTransaction {
	fee := amount*29/1000 + 30
	balance := &stripe.BalanceTransaction{
		ID:       f.nextID("txn"),
		Amount:   amount,
		Fee:      fee,
		Net:      amount - fee,
		Currency: cur,
	}
	f.balances[balance.ID] = balance
	return balance
}

func (f *fakeProcessor) GetPaymentIntent(_ context.Context, id string, _ ...string) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetPaymentIntent"); err != nil {
		return nil, err
	}
	intent, ok := f.paymentIntents[id]
	if !ok {
		return nil, missing("payment_intent", id)
	}
	cp := *intent
	if intent.LatestCharge != nil {
		charge := *intent.LatestCharge
		cp.LatestCharge = &charge
	}
	return &cp, nil
}

func (f *fakeProcessor) UpdatePaymentIntent(_ context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastIntentUpdate = params
	if err := f.enter("UpdatePaymentIntent"); err != nil {
		return nil, err
	}
	intent, ok := f.paymentIntents[id]
	if !ok {
		return nil, missing("payment_intent", id)
	}
	if params.Amount != nil {
		intent.Amount = *params.Amount
	}
	if params.Currency != nil {
		intent.Currency = stripe.Currency(*params.Currency)
	}
	if params.PaymentMethod != nil {
		intent.PaymentMethod = &stripe.PaymentMethod{ID: *params.PaymentMethod}
	}
	if params.Customer != nil {
		intent.Customer = &stripe.Customer{ID: *params.Customer}
	}
	cp := *intent
	return &cp, nil
}

func (f *fakeProcessor) CapturePaymentIntent(_ context.Context, id string, amount int64) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CapturePaymentIntent"); err != nil {
		return nil, err
	}
	intent, ok := f.paymentIntents[id]
	if !ok {
		return nil, missing("payment_intent", id)
	}
	if intent.Status != stripe.PaymentIntentStatusRequiresCapture {
		return nil, &processor.Error{
			Type:    processor.ErrorTypeInvalidRequest,
			Code:    processor.CodePaymentIntentUnexpectedState,
			Message: "This PaymentIntent could not be captured.",
		}
	}
	f.capturedAmount = amount
	intent.Status = stripe.PaymentIntentStatusSucceeded
	intent.AmountReceived = amount
	if intent.LatestCharge != nil {
		intent.LatestCharge.Captured = true
		intent.LatestCharge.BalanceTransaction = f.balanceFor(amount, intent.Currency)
	}
	cp := *intent
	if intent.LatestCharge != nil {
		charge := *intent.LatestCharge
		cp.LatestCharge = &charge
	}
	return &cp, nil
}

func (f *fakeProcessor) CancelPaymentIntent(_ context.Context, id string, _ stripe.PaymentIntentCancellationReason) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CancelPaymentIntent"); err != nil {
		return nil, err
	}
	intent, ok := f.paymentIntents[id]
	if !ok {
		return nil, missing("payment_intent", id)
	}
	intent.Status = stripe.PaymentIntentStatusCanceled
	cp := *intent
	return &cp, nil
}

func (f *fakeProcessor) GetBalanceTransaction(_ context.Context, id string) (*stripe.BalanceTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetBalanceTransaction"); err != nil {
		return nil, err
	}
	balance, ok := f.balances[id]
	if !ok {
		return nil, missing("balance_transaction", id)
	}
	return balance, nil
}

func (f *fakeProcessor) CreateProduct(_ context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateProduct"); err != nil {
		return nil, err
	}
	id := stripe.StringValue(params.ID)
	if _, ok := f.products[id]; ok {
		return nil, alreadyExists(id)
	}
	product := &stripe.Product{ID: id, Name: stripe.StringValue(params.Name)}
	f.products[id] = product
	return product, nil
}

func (f *fakeProcessor) GetProduct(_ context.Context, id string) (*stripe.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetProduct"); err != nil {
		return nil, err
	}
	product, ok := f.products[id]
	if !ok {
		return nil, missing("product", id)
	}
	return product, nil
}

func (f *fakeProcessor) CreatePlan(_ context.Context, params *stripe.PlanParams) (*stripe.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreatePlan"); err != nil {
		return nil, err
	}
	id := stripe.StringValue(params.ID)
	if _, ok := f.plans[id]; ok {
		return nil, alreadyExists(id)
	}
	plan := &stripe.Plan{
		ID:            id,
		Amount:        stripe.Int64Value(params.Amount),
		Currency:      stripe.Currency(stripe.StringValue(params.Currency)),
		Interval:      stripe.PlanInterval(stripe.StringValue(params.Interval)),
		IntervalCount: stripe.Int64Value(params.IntervalCount),
		Metadata:      params.Metadata,
	}
	if params.Product != nil {
		plan.Product = &stripe.Product{ID: stripe.StringValue(params.Product.ID)}
	}
	f.plans[id] = plan
	return plan, nil
}

func (f *fakeProcessor) GetPlan(_ context.Context, id string) (*stripe.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetPlan"); err != nil {
		return nil, err
	}
	plan, ok := f.plans[id]
	if !ok {
		return nil, missing("plan", id)
	}
	return plan, nil
}

func (f *fakeProcessor) CreateSubscription(_ context.Context, params *stripe.SubscriptionParams, key string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSubscriptionParams = params
	f.subscriptionParams = append(f.subscriptionParams, params)
	if err := f.enter("CreateSubscription"); err != nil {
		return nil, err
	}
	if prev, ok := f.trialEnds[key]; ok && prev != stripe.Int64Value(params.TrialEnd) {
		return nil, &processor.Error{
			Type:       processor.ErrorTypeIdempotency,
			Message:    "Keys for idempotent requests can only be used with the same parameters they were first used with.",
			HTTPStatus: 400,
		}
	}
	f.trialEnds[key] = stripe.Int64Value(params.TrialEnd)
	if id, ok := f.keys[key]; ok {
		cp := *f.subscriptions[id]
		return &cp, nil
	}
	now := time.Now()
	sub := &stripe.Subscription{
		ID:                 f.nextID("sub"),
		Status:             f.subscriptionStatus,
		Customer:           &stripe.Customer{ID: stripe.StringValue(params.Customer)},
		CurrentPeriodStart: now.Unix(),
		CurrentPeriodEnd:   now.AddDate(0, 1, 0).Unix(),
		Metadata:           params.Metadata,
	}
	f.subscriptions[sub.ID] = sub
	f.keys[key] = sub.ID
	cp := *sub
	return &cp, nil
}

func (f *fakeProcessor) UpdateSubscription(_ context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateSubscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, missing("subscription", id)
	}
	if params.CancelAtPeriodEnd != nil && !f.keepAtPeriodEnd {
		sub.CancelAtPeriodEnd = *params.CancelAtPeriodEnd
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeProcessor) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetSubscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, missing("subscription", id)
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeProcessor) CancelSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CancelSubscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, missing("subscription", id)
	}
	sub.Status = stripe.SubscriptionStatusCanceled
	cp := *sub
	return &cp, nil
}

func (f *fakeProcessor) ListInvoices(_ context.Context, params *stripe.InvoiceListParams) ([]*stripe.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListInvoices"); err != nil {
		return nil, err
	}
	var out []*stripe.Invoice
	for _, inv := range f.invoices {
		if params.Subscription != nil && (inv.Subscription == nil || inv.Subscription.ID != *params.Subscription) {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (f *fakeProcessor) CreateRefund(_ context.Context, params *stripe.RefundParams, key string) (*stripe.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundKeys = append(f.refundKeys, key)
	if err := f.enter("CreateRefund"); err != nil {
		return nil, err
	}
	if id, ok := f.keys[key]; ok {
		return &stripe.Refund{ID: id, Amount: stripe.Int64Value(params.Amount), Charge: &stripe.Charge{ID: stripe.StringValue(params.Charge)}}, nil
	}
	chargeID := stripe.StringValue(params.Charge)
	charge, ok := f.charges[chargeID]
	if !ok {
		return nil, missing("charge", chargeID)
	}
	if charge.Refunded {
		return nil, &processor.Error{
			Type:    processor.ErrorTypeInvalidRequest,
			Code:    processor.CodeChargeAlreadyRefunded,
			Message: fmt.Sprintf("Charge %s has already been refunded.", chargeID),
		}
	}
	amount := charge.Amount
	if params.Amount != nil {
		amount = *params.Amount
	}
	charge.AmountRefunded += amount
	charge.Refunded = charge.AmountRefunded >= charge.Amount
	refund := &stripe.Refund{ID: f.nextID("re"), Amount: amount, Charge: &stripe.Charge{ID: chargeID}}
	f.keys[key] = refund.ID
	return refund, nil
}

func (f *fakeProcessor) CreateCoupon(_ context.Context, params *stripe.CouponParams) (*stripe.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateCoupon"); err != nil {
		return nil, err
	}
	id := stripe.StringValue(params.ID)
	if _, ok := f.coupons[id]; ok {
		return nil, alreadyExists(id)
	}
	coupon := &stripe.Coupon{ID: id, AmountOff: stripe.Int64Value(params.AmountOff)}
	f.coupons[id] = coupon
	return coupon, nil
}

// memoryStore backs every repository interface with maps.
type memoryStore struct {
	mu            sync.Mutex
	seq           int64
	orders        map[int64]*model.Order
	notes         map[int64][]string
	subscriptions map[int64]*model.Subscription
	mappings      map[uuid.UUID]*model.CustomerMapping
	pricing       map[int64]*model.CoursePricing
	events        map[string]*model.WebhookEvent
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:        map[int64]*model.Order{},
		notes:         map[int64][]string{},
		subscriptions: map[int64]*model.Subscription{},
		mappings:      map[uuid.UUID]*model.CustomerMapping{},
		pricing:       map[int64]*model.CoursePricing{},
		events:        map[string]*model.WebhookEvent{},
	}
}

func (s *memoryStore) next() int64 {
	s.seq++
	return s.seq
}

func cloneOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	if o.Metadata != nil {
		cp.Metadata = map[string]interface{}{}
		for k, v := range o.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// paymentOrders returns the payment orders created for parentID.
func (s *memoryStore) paymentOrders(parentID int64) []*model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Order
	for _, o := range s.orders {
		if o.ParentID != nil && *o.ParentID == parentID {
			out = append(out, cloneOrder(o))
		}
	}
	return out
}

func (s *memoryStore) order(id int64) *model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrder(s.orders[id])
}

type orderRepo struct{ *memoryStore }

func (r orderRepo) Create(_ context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.SourceIntentID != nil {
		for _, o := range r.orders {
			if o.SourceIntentID != nil && *o.SourceIntentID == *order.SourceIntentID {
				return fmt.Errorf("duplicate key value violates unique constraint")
			}
		}
	}
	order.ID = r.next()
	for i := range order.Items {
		order.Items[i].ID = r.next()
		order.Items[i].OrderID = order.ID
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepo) Update(_ context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %d not found", order.ID)
	}
	cp := cloneOrder(order)
	cp.Items = stored.Items
	r.orders[order.ID] = cp
	return nil
}

func (r orderRepo) GetByID(_ context.Context, id int64) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (r orderRepo) GetBySourceIntentID(_ context.Context, intentID string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.SourceIntentID != nil && *o.SourceIntentID == intentID {
			return cloneOrder(o), nil
		}
	}
	return nil, nil
}

func (r orderRepo) GetByTransactionID(_ context.Context, transactionID string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.Order
	for _, o := range r.orders {
		if o.TransactionID == transactionID && (found == nil || o.ID > found.ID) {
			found = o
		}
	}
	if found == nil {
		return nil, nil
	}
	return cloneOrder(found), nil
}

func (r orderRepo) ListByParentID(_ context.Context, parentID int64) ([]*model.Order, error) {
	return r.paymentOrders(parentID), nil
}

func (r orderRepo) AddNote(_ context.Context, orderID int64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[orderID] = append(r.notes[orderID], message)
	return nil
}

type subscriptionRepo struct{ *memoryStore }

func cloneSubscription(s *model.Subscription) *model.Subscription {
	cp := *s
	return &cp
}

func (r subscriptionRepo) Create(_ context.Context, sub *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.subscriptions {
		if existing.OrderItemID == sub.OrderItemID {
			return fmt.Errorf("duplicate key value violates unique constraint")
		}
	}
	sub.ID = r.next()
	r.subscriptions[sub.ID] = cloneSubscription(sub)
	return nil
}

func (r subscriptionRepo) Update(_ context.Context, sub *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.subscriptions[sub.ID]
	if !ok {
		return fmt.Errorf("subscription %d not found", sub.ID)
	}
	if stored.HasProfile() && (sub.ProfileID == nil || *sub.ProfileID != *stored.ProfileID) {
		return model.ErrProfileIDImmutable
	}
	r.subscriptions[sub.ID] = cloneSubscription(sub)
	return nil
}

func (r subscriptionRepo) GetByID(_ context.Context, id int64) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return cloneSubscription(sub), nil
}

func (r subscriptionRepo) GetByProfileID(_ context.Context, profileID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscriptions {
		if sub.HasProfile() && *sub.ProfileID == profileID {
			return cloneSubscription(sub), nil
		}
	}
	return nil, nil
}

func (r subscriptionRepo) GetByOrderItemID(_ context.Context, orderItemID int64) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscriptions {
		if sub.OrderItemID == orderItemID {
			return cloneSubscription(sub), nil
		}
	}
	return nil, nil
}

func (r subscriptionRepo) ListByOrderID(_ context.Context, orderID int64) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, sub := range r.subscriptions {
		if sub.OrderID == orderID {
			out = append(out, cloneSubscription(sub))
		}
	}
	return out, nil
}

func (r subscriptionRepo) ListByStatus(_ context.Context, statuses ...model.SubscriptionStatus) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, sub := range r.subscriptions {
		for _, status := range statuses {
			if sub.Status == status {
				out = append(out, cloneSubscription(sub))
				break
			}
		}
	}
	return out, nil
}

type customerRepo struct{ *memoryStore }

func (r customerRepo) Save(_ context.Context, mapping *model.CustomerMapping) (*model.CustomerMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.mappings[mapping.StudentID]; ok {
		cp := *existing
		return &cp, nil
	}
	mapping.ID = r.next()
	cp := *mapping
	r.mappings[mapping.StudentID] = &cp
	return mapping, nil
}

func (r customerRepo) GetByStudentID(_ context.Context, studentID uuid.UUID) (*model.CustomerMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mappings[studentID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

type courseRepo struct{ *memoryStore }

func (r courseRepo) GetPricing(_ context.Context, courseID int64) (*model.CoursePricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pricing[courseID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) OrderFailed(ctx context.Context, order *model.Order, reason string) error {
	return m.Called(ctx, order, reason).Error(0)
}

func (m *mockNotifier) OrderCompleted(ctx context.Context, order *model.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockNotifier) ClearCart(ctx context.Context, studentID uuid.UUID) error {
	return m.Called(ctx, studentID).Error(0)
}
