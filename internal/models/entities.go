package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Entity is a typed view over the payload of a SyncDocument.
type Entity interface {
	Validate() error
}

type WaiterAction string

const (
	WaiterActionSeat  WaiterAction = "seat"
	WaiterActionOrder WaiterAction = "order"
	WaiterActionServe WaiterAction = "serve"
	WaiterActionBill  WaiterAction = "bill"
)

type WaiterOperation struct {
	WaiterID    string       `json:"waiterId"`
	TableNumber string       `json:"tableNumber"`
	Action      WaiterAction `json:"action"`
	Notes       string       `json:"notes,omitempty"`
}

func (w *WaiterOperation) Validate() error {
	if w.WaiterID == "" {
		return errors.New("waiterId is required")
	}
	if w.TableNumber == "" {
		return errors.New("tableNumber is required")
	}
	switch w.Action {
	case WaiterActionSeat, WaiterActionOrder, WaiterActionServe, WaiterActionBill:
		return nil
	}
	return fmt.Errorf("invalid action %q", w.Action)
}

type KitchenStatus string

const (
	KitchenStatusQueued    KitchenStatus = "queued"
	KitchenStatusPrepping  KitchenStatus = "prepping"
	KitchenStatusReady     KitchenStatus = "ready"
	KitchenStatusServed    KitchenStatus = "served"
	KitchenStatusCancelled KitchenStatus = "cancelled"
)

type OrderItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// UnmarshalJSON accepts both "quantity" and the short "qty" key.
func (i *OrderItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		SKU      string `json:"sku"`
		Quantity *int   `json:"quantity"`
		Qty      *int   `json:"qty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.SKU = raw.SKU
	switch {
	case raw.Quantity != nil:
		i.Quantity = *raw.Quantity
	case raw.Qty != nil:
		i.Quantity = *raw.Qty
	}
	return nil
}

type KitchenOrder struct {
	OrderID string        `json:"orderId"`
	Status  KitchenStatus `json:"status"`
	Items   []OrderItem   `json:"items"`
}

func (k *KitchenOrder) Validate() error {
	switch k.Status {
	case KitchenStatusQueued, KitchenStatusPrepping, KitchenStatusReady, KitchenStatusServed, KitchenStatusCancelled:
	default:
		return fmt.Errorf("invalid status %q", k.Status)
	}
	for n, item := range k.Items {
		if item.SKU == "" {
			return fmt.Errorf("items[%d].sku is required", n)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d].quantity must be positive", n)
		}
	}
	return nil
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentMobile PaymentMethod = "mobile"
)

type CashierTransaction struct {
	TxnID    string        `json:"txnId"`
	Amount   float64       `json:"amount"`
	Currency string        `json:"currency"`
	Method   PaymentMethod `json:"method"`
}

func (c *CashierTransaction) Validate() error {
	if c.TxnID == "" {
		return errors.New("txnId is required")
	}
	if c.Currency == "" {
		return errors.New("currency is required")
	}
	switch c.Method {
	case PaymentCash, PaymentCard, PaymentMobile:
		return nil
	}
	return fmt.Errorf("invalid method %q", c.Method)
}

// DecodeEntity fills entity from the payload fields of doc.
func DecodeEntity(doc *SyncDocument, entity Entity) error {
	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}
	if err := json.Unmarshal(data, entity); err != nil {
		return fmt.Errorf("failed to decode fields: %w", err)
	}
	return entity.Validate()
}
