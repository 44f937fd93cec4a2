package cart

import (
	"slices"
	"sync"

	"github.com/xenking/checkout-gateway/internal/domain/money"
)

// Store holds the cart items in insertion order.
type Store struct {
	seed []Item

	mu    sync.Mutex
	order []string
	items map[string]*Item
}

// NewStore creates a Store initialised with seed. When seed is empty,
// DefaultSeed is used.
func NewStore(seed ...Item) *Store {
	if len(seed) == 0 {
		seed = DefaultSeed()
	}
	s := &Store{seed: slices.Clone(seed)}
	s.reset()
	return s
}

// Get returns the current items and subtotal.
func (s *Store) Get() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

// Add merges quantity into the item identified by productID, or appends a
// new item when none exists. The existing name and price are kept on merge.
// A mutation that would leave the cart unorderable is rejected and the cart
// is left unchanged.
func (s *Store) Add(productID, productName string, quantity int, unitPrice float64) (Cart, error) {
	switch {
	case productID == "" || productName == "":
		return Cart{}, ErrMissingProduct
	case !money.ValidQuantity(quantity):
		return Cart{}, ErrInvalidQuantity
	case !money.ValidAmount(unitPrice):
		return Cart{}, ErrInvalidPrice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.items[productID]; ok {
		if quantity > money.MaxQuantity-it.Quantity {
			return Cart{}, ErrInvalidQuantity
		}
		next := *it
		next.Quantity += quantity
		if err := s.put(&next); err != nil {
			return Cart{}, err
		}
		return s.snapshot(), nil
	}

	if err := s.put(&Item{
		ID:          productID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	}); err != nil {
		return Cart{}, err
	}
	s.order = append(s.order, productID)
	return s.snapshot(), nil
}

// Update sets the quantity of an item. A quantity of zero or less removes it.
func (s *Store) Update(itemID string, quantity int) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok {
		return Cart{}, ErrItemNotFound
	}
	if quantity <= 0 {
		s.delete(itemID)
		return s.snapshot(), nil
	}
	if quantity > money.MaxQuantity {
		return Cart{}, ErrInvalidQuantity
	}
	next := *it
	next.Quantity = quantity
	if err := s.put(&next); err != nil {
		return Cart{}, err
	}
	return s.snapshot(), nil
}

// put recomputes it and stores it under its ID unless its line total or the
// resulting subtotal exceeds money.MaxAmount. Must be called with s.mu held.
func (s *Store) put(it *Item) error {
	it.recompute()
	if !money.ValidAmount(it.LineTotal) {
		return ErrTotalTooLarge
	}
	total := it.LineTotal
	for id, other := range s.items {
		if id != it.ID {
			total += other.LineTotal
		}
	}
	if !money.ValidAmount(money.Round2(total)) {
		return ErrTotalTooLarge
	}
	s.items[it.ID] = it
	return nil
}

// Remove deletes an item.
func (s *Store) Remove(itemID string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[itemID]; !ok {
		return Cart{}, ErrItemNotFound
	}
	s.delete(itemID)
	return s.snapshot(), nil
}

// Reset restores the seed items, discarding all mutations.
func (s *Store) Reset() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	return s.snapshot()
}

// ResetAfter runs fn while holding the cart lock and resets the cart only if
// fn succeeds. Readers never observe fn's effects without the reset.
func (s *Store) ResetAfter(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	s.reset()
	return nil
}

func (s *Store) reset() {
	s.order = make([]string, 0, len(s.seed))
	s.items = make(map[string]*Item, len(s.seed))
	for _, seed := range s.seed {
		it := seed
		it.recompute()
		s.items[it.ID] = &it
		s.order = append(s.order, it.ID)
	}
}

func (s *Store) delete(itemID string) {
	delete(s.items, itemID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == itemID })
}

// snapshot must be called with s.mu held.
func (s *Store) snapshot() Cart {
	c := Cart{Items: make([]Item, 0, len(s.order))}
	var total float64
	for _, id := range s.order {
		it := *s.items[id]
		c.Items = append(c.Items, it)
		total += it.LineTotal
	}
	c.Subtotal = money.Round2(total)
	return c
}
