// Package memory provides a store.Driver that keeps all state in process.
//
// It backs tests and local development. One transaction runs at a time; it
// works on a copy of the state that replaces the live state on commit and
// is dropped on error, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/jensholdgaard/pregao/internal/config"
	"github.com/jensholdgaard/pregao/internal/event"
	"github.com/jensholdgaard/pregao/internal/store"
)

func init() {
	store.Register("memory", func(_ context.Context, _ config.DatabaseConfig) (*store.Repositories, error) {
		return New().Repositories(), nil
	})
}

type data struct {
	nextID map[string]int64

	ruleSets            []store.RuleSet
	auctions            []store.Auction
	participants        []store.Participant
	lineItems           []store.LineItem
	bids                []store.Bid
	requests            []store.Request
	requestItems        []store.RequestLineItem
	requestParticipants []store.RequestParticipant
	conversions         []store.Conversion
	events              []event.Event

	users      []store.User
	items      []store.CatalogItem
	units      []store.MeasureUnit
	categories []store.Category
	brands     []store.Brand
}

func newData() *data {
	return &data{nextID: make(map[string]int64)}
}

func (d *data) id(table string) int64 {
	d.nextID[table]++
	return d.nextID[table]
}

// clone copies every table. Records are values and their pointer fields are
// never written through, so a shallow copy of each slice is enough.
func (d *data) clone() *data {
	ids := make(map[string]int64, len(d.nextID))
	for k, v := range d.nextID {
		ids[k] = v
	}
	return &data{
		nextID:              ids,
		ruleSets:            slices.Clone(d.ruleSets),
		auctions:            slices.Clone(d.auctions),
		participants:        slices.Clone(d.participants),
		lineItems:           slices.Clone(d.lineItems),
		bids:                slices.Clone(d.bids),
		requests:            slices.Clone(d.requests),
		requestItems:        slices.Clone(d.requestItems),
		requestParticipants: slices.Clone(d.requestParticipants),
		conversions:         slices.Clone(d.conversions),
		events:              slices.Clone(d.events),
		users:               slices.Clone(d.users),
		items:               slices.Clone(d.items),
		units:               slices.Clone(d.units),
		categories:          slices.Clone(d.categories),
		brands:              slices.Clone(d.brands),
	}
}

// Store is an in-memory database.
type Store struct {
	mu sync.Mutex
	d  *data
}

// New returns an empty Store.
func New() *Store {
	return &Store{d: newData()}
}

// Repositories returns the store.Repositories view of s.
func (s *Store) Repositories() *store.Repositories {
	return &store.Repositories{
		Unit:    *s.unit(nil),
		Tx:      s,
		Migrate: func(context.Context) error { return nil },
		Closer:  closerFunc(func() error { return nil }),
		Ping:    func(context.Context) error { return nil },
	}
}

// InTx implements store.TxRunner. Repositories from the Unit passed to fn
// must be used for every access inside fn; the non-transactional ones would
// block on the store lock.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, u *store.Unit) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.d.clone()
	if err := fn(ctx, s.unit(tx)); err != nil {
		return err
	}
	s.d = tx
	return nil
}

func (s *Store) unit(tx *data) *store.Unit {
	b := base{s: s, tx: tx}
	return &store.Unit{
		RuleSets:     ruleSetRepo{b},
		Auctions:     auctionRepo{b},
		Participants: participantRepo{b},
		LineItems:    lineItemRepo{b},
		Bids:         bidRepo{b},
		Requests:     requestRepo{b},
		Conversions:  conversionRepo{b},
		Users:        userRepo{b},
		Catalog:      catalogRepo{b},
		Events:       eventRepo{b},
	}
}

// base routes an operation to the transaction copy when there is one and
// to the live state under the lock otherwise.
type base struct {
	s  *Store
	tx *data
}

func (b base) do(fn func(d *data) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return fn(b.s.d)
}

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// AddUser stores a user and returns it with its id set. User management
// belongs to an external service; this exists to seed the in-memory store.
func (s *Store) AddUser(name, email string) store.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := store.User{ID: s.d.id("users"), Name: name, Email: email}
	s.d.users = append(s.d.users, u)
	return u
}

// AddItem stores a catalog item.
func (s *Store) AddItem(name string) store.CatalogItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := store.CatalogItem{ID: s.d.id("items"), Name: name}
	s.d.items = append(s.d.items, it)
	return it
}

// AddUnit stores a unit of measure.
func (s *Store) AddUnit(code, name string) store.MeasureUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := store.MeasureUnit{ID: s.d.id("units"), Code: code, Name: name}
	s.d.units = append(s.d.units, u)
	return u
}

// AddCategory stores a catalog category.
func (s *Store) AddCategory(name string) store.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := store.Category{ID: s.d.id("categories"), Name: name}
	s.d.categories = append(s.d.categories, c)
	return c
}

// AddBrand stores a catalog brand.
func (s *Store) AddBrand(name string) store.Brand {
	s.mu.Lock()
	defer s.mu.Unlock()
	br := store.Brand{ID: s.d.id("brands"), Name: name}
	s.d.brands = append(s.d.brands, br)
	return br
}
