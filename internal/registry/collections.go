package registry

import (
	"errors"
	"fmt"

	"github.com/prudhvinik1/possync/internal/config"
	"github.com/prudhvinik1/possync/internal/models"
)

var (
	ErrUnknownCollection  = errors.New("unknown collection")
	ErrTableNotConfigured = errors.New("table service table path missing")
)

const (
	WaiterOps   = "waiter_ops"
	ChefOrders  = "chef_orders"
	CashierTxns = "cashier_txns"
)

// Collection maps one logical key onto both stores.
type Collection struct {
	Key string
	// DocumentCollection is the MongoDB collection name; always set.
	DocumentCollection string
	// TablePath is the NocoDB table path (e.g. /api/v2/tables/{id}); may be empty.
	TablePath string
	// NewEntity returns the typed payload used for strict validation.
	NewEntity func() models.Entity
}

type Registry struct {
	collections map[string]Collection
}

// New builds the registry from the three table paths.
func New(waiterOpsTable, chefOrdersTable, cashierTxnsTable string) *Registry {
	return &Registry{collections: map[string]Collection{
		WaiterOps: {
			Key:                WaiterOps,
			DocumentCollection: WaiterOps,
			TablePath:          waiterOpsTable,
			NewEntity:          func() models.Entity { return &models.WaiterOperation{} },
		},
		ChefOrders: {
			Key:                ChefOrders,
			DocumentCollection: ChefOrders,
			TablePath:          chefOrdersTable,
			NewEntity:          func() models.Entity { return &models.KitchenOrder{} },
		},
		CashierTxns: {
			Key:                CashierTxns,
			DocumentCollection: CashierTxns,
			TablePath:          cashierTxnsTable,
			NewEntity:          func() models.Entity { return &models.CashierTransaction{} },
		},
	}}
}

func FromConfig(cfg *config.Config) *Registry {
	return New(cfg.NocoTableWaiterOps, cfg.NocoTableChefOrders, cfg.NocoTableCashierTxns)
}

func (r *Registry) Lookup(key string) (Collection, error) {
	c, ok := r.collections[key]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %s", ErrUnknownCollection, key)
	}
	return c, nil
}

func (r *Registry) DocumentCollection(key string) (string, error) {
	c, err := r.Lookup(key)
	if err != nil {
		return "", err
	}
	return c.DocumentCollection, nil
}

// TablePath fails fast when the deployment did not configure a table.
func (r *Registry) TablePath(key string) (string, error) {
	c, err := r.Lookup(key)
	if err != nil {
		return "", err
	}
	if c.TablePath == "" {
		return "", fmt.Errorf("%w for %s", ErrTableNotConfigured, key)
	}
	return c.TablePath, nil
}

// Keys returns the logical keys in a stable order.
func (r *Registry) Keys() []string {
	return []string{WaiterOps, ChefOrders, CashierTxns}
}

// Configured reports which collections have a table path.
func (r *Registry) Configured() map[string]bool {
	out := make(map[string]bool, len(r.collections))
	for k, c := range r.collections {
		out[k] = c.TablePath != ""
	}
	return out
}

// KeyForDocumentCollection maps a MongoDB collection name back to its key.
func (r *Registry) KeyForDocumentCollection(name string) (string, bool) {
	for k, c := range r.collections {
		if c.DocumentCollection == name {
			return k, true
		}
	}
	return "", false
}
