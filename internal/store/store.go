// Package store implements the backing store for orders over GORM. It is the
// ultimate arbiter of order state: clients seed their caches from it and the
// sync hub applies team updates through it before broadcasting.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"

	"packline/internal/ledger"
	"packline/internal/models"
)

// ErrDuplicateOrderNumber is returned when a create collides with an existing
// business key.
var ErrDuplicateOrderNumber = errors.New("order number already exists")

// ErrOrderNotFound is returned when an order ID or number matches nothing
var ErrOrderNotFound = errors.New("order not found")

// OrderRecord is the persisted shape of an order. The per-team line item map
// is stored as a JSON column; the store is the only reader and writer of it.
type OrderRecord struct {
	gorm.Model
	OrderID        string `gorm:"unique_index"`
	OrderNumber    string `gorm:"unique_index"`
	DispatcherName string
	CustomerName   string
	Status         string
	OrderedAt      time.Time
	DetailsJSON    string `gorm:"type:text"`
}

// Store is the GORM-backed order repository
type Store struct {
	db *gorm.DB
}

// New creates a store and migrates its schema
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&OrderRecord{}).Error; err != nil {
		return nil, fmt.Errorf("migrate order records: %w", err)
	}
	return &Store{db: db}, nil
}

// ListOrders returns every stored order
func (s *Store) ListOrders() (models.OrderCollection, error) {
	var records []OrderRecord
	if err := s.db.Order("ordered_at").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make(models.OrderCollection, 0, len(records))
	for _, rec := range records {
		order, err := rec.toOrder()
		if err != nil {
			// A record with corrupt details must not abort the rest of the listing.
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

// CreateOrder persists a new order, assigning IDs where missing. A duplicate
// order number is rejected with ErrDuplicateOrderNumber.
func (s *Store) CreateOrder(order models.Order) (models.Order, error) {
	if order.OrderNumber == "" {
		return models.Order{}, fmt.Errorf("order number is required")
	}
	var count int64
	if err := s.db.Model(&OrderRecord{}).Where("order_number = ?", order.OrderNumber).Count(&count).Error; err != nil {
		return models.Order{}, fmt.Errorf("check order number: %w", err)
	}
	if count > 0 {
		return models.Order{}, fmt.Errorf("order number %q: %w", order.OrderNumber, ErrDuplicateOrderNumber)
	}

	if order.OrderID == "" {
		order.OrderID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	for team, items := range order.OrderDetails {
		for i := range items {
			if items[i].ItemID == "" {
				items[i].ItemID = uuid.NewString()
			}
		}
		order.OrderDetails[team] = items
	}
	ledger.RefreshOrder(&order)

	rec, err := toRecord(order)
	if err != nil {
		return models.Order{}, err
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return models.Order{}, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

// ApplyTeamUpdate runs the given quantity increments through the ledger for
// one team of one order, persists the result, and returns the updated order.
func (s *Store) ApplyTeamUpdate(orderID string, team models.TeamType, updates []models.ItemUpdate) (models.Order, error) {
	var rec OrderRecord
	if err := s.db.Where("order_id = ?", orderID).First(&rec).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
		}
		return models.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	order, err := rec.toOrder()
	if err != nil {
		return models.Order{}, err
	}

	items := order.OrderDetails[team]
	byID := make(map[string]*models.LineItem, len(items))
	for i := range items {
		byID[items[i].ItemID] = &items[i]
	}
	for _, upd := range updates {
		item, ok := byID[upd.ItemID]
		if !ok {
			return models.Order{}, fmt.Errorf("item %s not found in %s of order %s", upd.ItemID, team, orderID)
		}
		// Reuse the reporter's entry timestamp: the reporting client already
		// holds this entry optimistically, and the echoed broadcast must
		// collapse with it in the merge union instead of double-counting.
		at := upd.CompletedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if err := ledger.ApplyCompletionAt(item, upd.QtyCompleted, at); err != nil {
			return models.Order{}, err
		}
	}
	order.OrderDetails[team] = items
	ledger.RefreshOrder(&order)

	updated, err := toRecord(order)
	if err != nil {
		return models.Order{}, err
	}
	rec.Status = updated.Status
	rec.DetailsJSON = updated.DetailsJSON
	if err := s.db.Save(&rec).Error; err != nil {
		return models.Order{}, fmt.Errorf("save order %s: %w", orderID, err)
	}
	return order, nil
}

// GetOrder loads one order by its server-assigned ID
func (s *Store) GetOrder(orderID string) (models.Order, error) {
	var rec OrderRecord
	if err := s.db.Where("order_id = ?", orderID).First(&rec).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
		}
		return models.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return rec.toOrder()
}

// DeleteOrder removes an order by its business key and returns the removed
// order's ID so the deletion can be propagated to caches and peers.
func (s *Store) DeleteOrder(orderNumber string) (string, error) {
	var rec OrderRecord
	if err := s.db.Where("order_number = ?", orderNumber).First(&rec).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return "", fmt.Errorf("order %s: %w", orderNumber, ErrOrderNotFound)
		}
		return "", fmt.Errorf("load order %s: %w", orderNumber, err)
	}
	if err := s.db.Delete(&rec).Error; err != nil {
		return "", fmt.Errorf("delete order %s: %w", orderNumber, err)
	}
	return rec.OrderID, nil
}

func toRecord(order models.Order) (OrderRecord, error) {
	details, err := json.Marshal(order.OrderDetails)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("serialize order details: %w", err)
	}
	return OrderRecord{
		OrderID:        order.OrderID,
		OrderNumber:    order.OrderNumber,
		DispatcherName: order.DispatcherName,
		CustomerName:   order.CustomerName,
		Status:         string(order.OrderStatus),
		OrderedAt:      order.CreatedAt,
		DetailsJSON:    string(details),
	}, nil
}

func (rec OrderRecord) toOrder() (models.Order, error) {
	order := models.Order{
		OrderID:        rec.OrderID,
		OrderNumber:    rec.OrderNumber,
		DispatcherName: rec.DispatcherName,
		CustomerName:   rec.CustomerName,
		OrderStatus:    models.OrderStatus(rec.Status),
		CreatedAt:      rec.OrderedAt,
		OrderDetails:   map[models.TeamType][]models.LineItem{},
	}
	if rec.DetailsJSON != "" {
		if err := json.Unmarshal([]byte(rec.DetailsJSON), &order.OrderDetails); err != nil {
			return models.Order{}, fmt.Errorf("deserialize order details: %w", err)
		}
	}
	return order, nil
}
