package memory

import (
	"context"
	"sync"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-payment/internal/domain/inventory"
)

// InventoryRepository backs the inventory simulator. Products never stored start
// with the seed quantity; a negative seed makes them unknown.
type InventoryRepository struct {
	mu    sync.RWMutex
	items map[string]*dominv.Item
	seed  int
}

func NewInventoryRepository(seed int) *InventoryRepository {
	return &InventoryRepository{
		items: make(map[string]*dominv.Item),
		seed:  seed,
	}
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*dominv.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, err := r.lookup(productID)
	if err != nil {
		return nil, err
	}
	return cloneItem(item), nil
}

func (r *InventoryRepository) Deduct(ctx context.Context, productID string, quantity int) (*dominv.Item, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	item, err := r.lookup(productID)
	if err != nil {
		return nil, err
	}
	next := cloneItem(item)
	if err := next.Deduct(quantity); err != nil {
		return nil, err
	}
	r.items[productID] = next
	return cloneItem(next), nil
}

func (r *InventoryRepository) Save(ctx context.Context, item *dominv.Item) error {
	_ = ctx
	if item == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[item.ProductID] = cloneItem(item)
	return nil
}

// lookup must be called with r.mu held.
func (r *InventoryRepository) lookup(productID string) (*dominv.Item, error) {
	if item, ok := r.items[productID]; ok {
		return item, nil
	}
	if r.seed < 0 {
		return nil, dominv.ErrNotFound
	}
	return &dominv.Item{ProductID: productID, Quantity: r.seed, UpdatedAt: time.Now().UTC()}, nil
}

func cloneItem(item *dominv.Item) *dominv.Item {
	if item == nil {
		return nil
	}
	clone := *item
	return &clone
}
