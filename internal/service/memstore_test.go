package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"medstore/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// memStore is an in-memory stand-in for the postgres store. A single mutex
// plays the role of the row locks.
type memStore struct {
	mu         sync.Mutex
	users      map[string]*models.User
	admins     map[string]*models.Admin
	categories map[string]*models.Category
	products   map[string]*models.Product
	orders     map[string]*models.Order
	counters   map[string]int64
	reviews    []models.Review
	wishlist   map[string]time.Time
	complaints map[string]*models.Complaint
	events     map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[string]*models.User{},
		admins:     map[string]*models.Admin{},
		categories: map[string]*models.Category{},
		products:   map[string]*models.Product{},
		orders:     map[string]*models.Order{},
		counters:   map[string]int64{},
		wishlist:   map[string]time.Time{},
		complaints: map[string]*models.Complaint{},
		events:     map[string]string{},
	}
}

func notFoundErr(what string) error {
	return fmt.Errorf("%w: %s", models.ErrNotFound, what)
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

// addProduct seeds a product and returns its id
func (m *memStore) addProduct(name string, price int64, stock int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.products[id] = &models.Product{
		ID: id, Name: name, Price: decimal.NewFromInt(price), Stock: stock, IsActive: true,
	}
	return id
}

func (m *memStore) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) order(id string) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.orders[id])
}

// users

func (m *memStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: email already registered", models.ErrConflict)
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, notFoundErr("user " + id)
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) findUser(match func(u *models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFoundErr("user")
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.Email == email })
}

func (m *memStore) GetUserByVerificationToken(ctx context.Context, digest string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool {
		return u.VerificationTokenHash != nil && *u.VerificationTokenHash == digest &&
			u.VerificationExpiresAt != nil && u.VerificationExpiresAt.After(time.Now())
	})
}

func (m *memStore) GetUserByResetToken(ctx context.Context, digest string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool {
		return u.ResetTokenHash != nil && *u.ResetTokenHash == digest &&
			u.ResetExpiresAt != nil && u.ResetExpiresAt.After(time.Now())
	})
}

func (m *memStore) UpdateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return notFoundErr("user " + user.ID)
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return notFoundErr("user " + id)
	}
	delete(m.users, id)
	return nil
}

// admins

func (m *memStore) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if admin.ID == "" {
		admin.ID = uuid.New().String()
	}
	cp := *admin
	m.admins[admin.ID] = &cp
	return nil
}

func (m *memStore) GetAdminByID(ctx context.Context, id string) (*models.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return nil, notFoundErr("admin " + id)
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admins {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, notFoundErr("admin")
}

// catalog

func (m *memStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Category{}
	for _, c := range m.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetCategoryByID(ctx context.Context, id string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, notFoundErr("category " + id)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) CreateCategory(ctx context.Context, category *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Name == category.Name {
			return fmt.Errorf("%w: category name already exists", models.ErrConflict)
		}
	}
	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	cp := *category
	m.categories[category.ID] = &cp
	return nil
}

func (m *memStore) UpdateCategory(ctx context.Context, category *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *category
	m.categories[category.ID] = &cp
	return nil
}

func (m *memStore) DeleteCategory(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return notFoundErr("category " + id)
	}
	delete(m.categories, id)
	return nil
}

func (m *memStore) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, p := range m.products {
		if !filter.IncludeInactive && !p.IsActive {
			continue
		}
		if filter.CategoryID != "" && (p.CategoryID == nil || *p.CategoryID != filter.CategoryID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, notFoundErr("product " + id)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) CreateProduct(ctx context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	cp := *product
	m.products[product.ID] = &cp
	return nil
}

func (m *memStore) UpdateProduct(ctx context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[product.ID]; !ok {
		return notFoundErr("product " + product.ID)
	}
	cp := *product
	m.products[product.ID] = &cp
	return nil
}

func (m *memStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return notFoundErr("product " + id)
	}
	delete(m.products, id)
	return nil
}

// orders

func (m *memStore) NextOrderSequence(ctx context.Context, name string, year int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%d", name, year)
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == order.OrderNumber {
			return fmt.Errorf("%w: order number", models.ErrConflict)
		}
		if order.IdempotencyKey != nil && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
			return fmt.Errorf("%w: idempotency key", models.ErrConflict)
		}
	}
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = uuid.New().String()
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, notFoundErr("order " + id)
	}
	return cloneOrder(o), nil
}

func (m *memStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return cloneOrder(o), nil
		}
	}
	return nil, nil
}

func (m *memStore) GetOrderByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentIntentID != nil && *o.PaymentIntentID == intentID {
			return cloneOrder(o), nil
		}
	}
	return nil, notFoundErr("order for payment intent " + intentID)
}

func (m *memStore) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if filter.UserID != "" && !o.OwnedBy(filter.UserID) {
			continue
		}
		if filter.OrderStatus != "" && o.OrderStatus != filter.OrderStatus {
			continue
		}
		if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber > out[j].OrderNumber })
	return out, nil
}

func (m *memStore) MutateOrder(ctx context.Context, id string, fn func(order *models.Order) error) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, notFoundErr("order " + id)
	}
	work := cloneOrder(o)
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now()
	m.orders[id] = cloneOrder(work)
	return work, nil
}

func (m *memStore) ConfirmPayment(ctx context.Context, id string, params models.ConfirmPayment) (*models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, false, notFoundErr("order " + id)
	}
	work := cloneOrder(o)
	if work.PaymentStatus == models.PaymentStatusPaid {
		return work, false, nil
	}
	if err := work.MarkPaid(params); err != nil {
		return nil, false, err
	}

	var levels []models.StockLevel
	for _, pid := range models.ItemProductIDs(work.Items) {
		if p, ok := m.products[pid]; ok {
			levels = append(levels, models.StockLevel{ProductID: p.ID, Name: p.Name, Stock: p.Stock})
		}
	}
	plan, err := models.PlanStockDecrement(work.Items, levels)
	if err != nil {
		return nil, false, err
	}
	for _, d := range plan {
		m.products[d.ProductID].Stock = d.Remaining
	}

	m.orders[id] = cloneOrder(work)
	return work, true, nil
}

func (m *memStore) GetDashboardStats(ctx context.Context, lowStockThreshold int) (*models.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.DashboardStats{Revenue: decimal.Zero}
	for _, o := range m.orders {
		stats.TotalOrders++
		if o.PaymentStatus == models.PaymentStatusPaid {
			stats.PaidOrders++
			stats.Revenue = stats.Revenue.Add(o.TotalAmount)
		}
	}
	for _, p := range m.products {
		stats.TotalProducts++
		if p.Stock <= lowStockThreshold {
			stats.LowStockProducts++
		}
	}
	return stats, nil
}

// webhook events

func (m *memStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[eventID]
	return ok, nil
}

func (m *memStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventID] = eventType
	return nil
}

// engagement

func (m *memStore) ListReviews(ctx context.Context, productID string) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Review{}
	for _, r := range m.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GetReviewStats(ctx context.Context, productID string) (*models.ReviewStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.ReviewStats{}
	sum := 0
	for _, r := range m.reviews {
		if r.ProductID == productID {
			stats.TotalReviews++
			sum += r.Rating
		}
	}
	if stats.TotalReviews > 0 {
		stats.AverageRating = float64(sum) / float64(stats.TotalReviews)
	}
	return stats, nil
}

func (m *memStore) CreateReview(ctx context.Context, review *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.UserID == review.UserID && r.ProductID == review.ProductID {
			return fmt.Errorf("%w: you have already reviewed this product", models.ErrConflict)
		}
	}
	review.ID = uuid.New().String()
	review.CreatedAt = time.Now()
	m.reviews = append(m.reviews, *review)
	return nil
}

func wishKey(userID, productID string) string { return userID + "|" + productID }

func (m *memStore) ListWishlist(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.WishlistItem{}
	for key, at := range m.wishlist {
		parts := strings.SplitN(key, "|", 2)
		if parts[0] != userID {
			continue
		}
		p := m.products[parts[1]]
		out = append(out, models.WishlistItem{
			UserID: userID, ProductID: p.ID, ProductName: p.Name, ProductPrice: p.Price, CreatedAt: at,
		})
	}
	return out, nil
}

func (m *memStore) AddWishlistItem(ctx context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := wishKey(userID, productID)
	if _, ok := m.wishlist[key]; ok {
		return fmt.Errorf("%w: product already in wishlist", models.ErrConflict)
	}
	m.wishlist[key] = time.Now()
	return nil
}

func (m *memStore) RemoveWishlistItem(ctx context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := wishKey(userID, productID)
	if _, ok := m.wishlist[key]; !ok {
		return notFoundErr("wishlist item")
	}
	delete(m.wishlist, key)
	return nil
}

func (m *memStore) IsInWishlist(ctx context.Context, userID, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.wishlist[wishKey(userID, productID)]
	return ok, nil
}

func (m *memStore) CreateComplaint(ctx context.Context, complaint *models.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	complaint.ID = uuid.New().String()
	cp := *complaint
	m.complaints[complaint.ID] = &cp
	return nil
}

func (m *memStore) ListComplaints(ctx context.Context) ([]models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Complaint{}
	for _, c := range m.complaints {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memStore) UpdateComplaintStatus(ctx context.Context, id string, status models.ComplaintStatus) (*models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return nil, notFoundErr("complaint " + id)
	}
	c.Status = status
	cp := *c
	return &cp, nil
}

func (m *memStore) DeleteComplaint(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.complaints[id]; !ok {
		return notFoundErr("complaint " + id)
	}
	delete(m.complaints, id)
	return nil
}

// recordingNotifier keeps every notification it is handed
type recordingNotifier struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count(eventType, room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.EventType == eventType && s.Room == room {
			n++
		}
	}
	return n
}

// failingNotifier always errors; callers must not care
type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, *models.Notification) error {
	return errors.New("bus unavailable")
}

// fakeGateway accepts webhooks whose signature is "valid" and whose body
// is a JSON encoded models.WebhookEvent
type fakeGateway struct {
	mu       sync.Mutex
	requests []models.PaymentIntentRequest
}

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	n := len(g.requests)
	return &models.PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", n),
		ClientSecret: fmt.Sprintf("pi_%d_secret", n),
	}, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	if signature != "valid" {
		return nil, errors.New("signature mismatch")
	}
	var event models.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func webhookPayload(event models.WebhookEvent) []byte {
	payload, _ := json.Marshal(event)
	return payload
}

// recordingMailer keeps sent mail
type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, to+": "+subject)
	return nil
}

var nopLogger = zap.NewNop()
