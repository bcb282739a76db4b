package memory

import (
	"context"
	"slices"
	"time"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/event"
	"github.com/jensholdgaard/pregao/internal/store"
)

// --- rule-sets ---

type ruleSetRepo struct{ base }

func (r ruleSetRepo) Create(_ context.Context, rs *store.RuleSet) error {
	return r.do(func(d *data) error {
		if rs.Active {
			for _, existing := range d.ruleSets {
				if existing.Active {
					return apperr.Conflict("rule-set", "rule-set %d is already active", existing.ID)
				}
			}
		}
		rs.ID = d.id("rule_sets")
		d.ruleSets = append(d.ruleSets, *rs)
		return nil
	})
}

func (r ruleSetRepo) GetByID(_ context.Context, id int64) (*store.RuleSet, error) {
	var out *store.RuleSet
	err := r.do(func(d *data) error {
		for _, rs := range d.ruleSets {
			if rs.ID == id {
				out = &rs
				return nil
			}
		}
		return apperr.NotFound("rule-set", id)
	})
	return out, err
}

func (r ruleSetRepo) GetActive(_ context.Context) (*store.RuleSet, error) {
	var out *store.RuleSet
	err := r.do(func(d *data) error {
		for _, rs := range d.ruleSets {
			if rs.Active {
				out = &rs
				return nil
			}
		}
		return &apperr.Error{Kind: apperr.KindNotFound, Resource: "rule-set", Message: "no active rule-set"}
	})
	return out, err
}

func (r ruleSetRepo) List(_ context.Context) ([]store.RuleSet, error) {
	var out []store.RuleSet
	err := r.do(func(d *data) error {
		out = append(out, d.ruleSets...)
		return nil
	})
	return out, err
}

func (r ruleSetRepo) DeactivateAll(_ context.Context) error {
	return r.do(func(d *data) error {
		for i := range d.ruleSets {
			d.ruleSets[i].Active = false
		}
		return nil
	})
}

// --- auctions ---

type auctionRepo struct{ base }

func (r auctionRepo) Create(_ context.Context, a *store.Auction) error {
	return r.do(func(d *data) error {
		a.ID = d.id("auctions")
		d.auctions = append(d.auctions, *a)
		return nil
	})
}

func (r auctionRepo) GetByID(_ context.Context, id int64) (*store.Auction, error) {
	var out *store.Auction
	err := r.do(func(d *data) error {
		for _, a := range d.auctions {
			if a.ID == id {
				out = &a
				return nil
			}
		}
		return apperr.NotFound("auction", id)
	})
	return out, err
}

func (r auctionRepo) GetByIDForUpdate(ctx context.Context, id int64) (*store.Auction, error) {
	return r.GetByID(ctx, id)
}

func (r auctionRepo) UpdateStatus(_ context.Context, id int64, status store.AuctionStatus, at time.Time) error {
	return r.do(func(d *data) error {
		for i := range d.auctions {
			if d.auctions[i].ID == id {
				d.auctions[i].Status = status
				d.auctions[i].UpdatedAt = at
				return nil
			}
		}
		return apperr.NotFound("auction", id)
	})
}

// --- participants ---

type participantRepo struct{ base }

func (r participantRepo) Create(_ context.Context, p *store.Participant) error {
	return r.do(func(d *data) error {
		for _, existing := range d.participants {
			if existing.AuctionID == p.AuctionID && existing.UserID == p.UserID {
				return apperr.Conflict("participant", "user %d is already enrolled in auction %d", p.UserID, p.AuctionID)
			}
		}
		p.ID = d.id("participants")
		d.participants = append(d.participants, *p)
		return nil
	})
}

func (r participantRepo) GetByID(_ context.Context, id int64) (*store.Participant, error) {
	var out *store.Participant
	err := r.do(func(d *data) error {
		for _, p := range d.participants {
			if p.ID == id {
				out = &p
				return nil
			}
		}
		return apperr.NotFound("participant", id)
	})
	return out, err
}

func (r participantRepo) GetByIDForUpdate(ctx context.Context, id int64) (*store.Participant, error) {
	return r.GetByID(ctx, id)
}

func (r participantRepo) FindByAuctionUser(_ context.Context, auctionID, userID int64) (*store.Participant, error) {
	var out *store.Participant
	err := r.do(func(d *data) error {
		for _, p := range d.participants {
			if p.AuctionID == auctionID && p.UserID == userID {
				out = &p
				return nil
			}
		}
		return apperr.NotFound("participant", userID)
	})
	return out, err
}

func (r participantRepo) ListByAuction(_ context.Context, auctionID int64) ([]store.Participant, error) {
	var out []store.Participant
	err := r.do(func(d *data) error {
		for _, p := range d.participants {
			if p.AuctionID == auctionID {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// --- line items ---

type lineItemRepo struct{ base }

func (r lineItemRepo) Create(_ context.Context, li *store.LineItem) error {
	return r.do(func(d *data) error {
		if li.Active() {
			for _, existing := range d.lineItems {
				if existing.AuctionID == li.AuctionID && existing.ItemID == li.ItemID && existing.Active() {
					return apperr.Conflict("line-item", "item %d already has an active line item in auction %d", li.ItemID, li.AuctionID)
				}
			}
		}
		li.ID = d.id("line_items")
		d.lineItems = append(d.lineItems, *li)
		return nil
	})
}

func (r lineItemRepo) GetByID(_ context.Context, id int64) (*store.LineItem, error) {
	var out *store.LineItem
	err := r.do(func(d *data) error {
		for _, li := range d.lineItems {
			if li.ID == id {
				out = &li
				return nil
			}
		}
		return apperr.NotFound("line-item", id)
	})
	return out, err
}

func (r lineItemRepo) GetByIDForUpdate(ctx context.Context, id int64) (*store.LineItem, error) {
	return r.GetByID(ctx, id)
}

func (r lineItemRepo) FindActive(_ context.Context, auctionID, itemID int64) (*store.LineItem, error) {
	var out *store.LineItem
	err := r.do(func(d *data) error {
		for _, li := range d.lineItems {
			if li.AuctionID == auctionID && li.ItemID == itemID && li.Active() {
				out = &li
				return nil
			}
		}
		return apperr.NotFound("line-item", itemID)
	})
	return out, err
}

func (r lineItemRepo) ListActive(_ context.Context, auctionID int64) ([]store.LineItem, error) {
	var out []store.LineItem
	err := r.do(func(d *data) error {
		for _, li := range d.lineItems {
			if li.AuctionID == auctionID && li.Active() {
				out = append(out, li)
			}
		}
		return nil
	})
	return out, err
}

func (r lineItemRepo) SetFlags(_ context.Context, id int64, current, deleted bool, at time.Time) error {
	return r.do(func(d *data) error {
		for i := range d.lineItems {
			if d.lineItems[i].ID == id {
				d.lineItems[i].CurrentVersion = current
				d.lineItems[i].Deleted = deleted
				d.lineItems[i].UpdatedAt = at
				return nil
			}
		}
		return apperr.NotFound("line-item", id)
	})
}

// --- bids ---

type bidRepo struct{ base }

func (r bidRepo) Create(_ context.Context, b *store.Bid) error {
	return r.do(func(d *data) error {
		b.ID = d.id("bids")
		d.bids = append(d.bids, *b)
		return nil
	})
}

func (r bidRepo) winner(match func(store.Bid) bool) (*store.Bid, error) {
	var out *store.Bid
	err := r.do(func(d *data) error {
		for _, b := range d.bids {
			if !match(b) {
				continue
			}
			if out == nil || store.RanksBefore(b, *out) {
				b := b
				out = &b
			}
		}
		return nil
	})
	return out, err
}

// LineItemWinner ranks the bids on every version of the line item, that is
// every row of the auction for the same catalog item.
func (r bidRepo) LineItemWinner(_ context.Context, auctionID, lineItemID int64) (*store.Bid, error) {
	versions := map[int64]bool{}
	err := r.do(func(d *data) error {
		i := slices.IndexFunc(d.lineItems, func(li store.LineItem) bool { return li.ID == lineItemID })
		if i < 0 {
			return nil
		}
		itemID := d.lineItems[i].ItemID
		for _, li := range d.lineItems {
			if li.AuctionID == auctionID && li.ItemID == itemID {
				versions[li.ID] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out, err := r.winner(func(b store.Bid) bool { return b.AuctionID == auctionID && versions[b.LineItemID] })
	if err == nil && out == nil {
		return nil, apperr.NotFound("bid", lineItemID)
	}
	return out, err
}

func (r bidRepo) AuctionWinner(_ context.Context, auctionID int64) (*store.Bid, error) {
	out, err := r.winner(func(b store.Bid) bool { return b.AuctionID == auctionID })
	if err == nil && out == nil {
		return nil, apperr.NotFound("bid", auctionID)
	}
	return out, err
}

func (r bidRepo) CountSince(_ context.Context, auctionID, participantID int64, since time.Time) (int, error) {
	n := 0
	err := r.do(func(d *data) error {
		for _, b := range d.bids {
			if b.AuctionID == auctionID && b.ParticipantID == participantID && !b.RegisteredAt.Before(since) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r bidRepo) ListByAuction(_ context.Context, auctionID int64) ([]store.Bid, error) {
	var out []store.Bid
	err := r.do(func(d *data) error {
		for _, b := range d.bids {
			if b.AuctionID == auctionID {
				out = append(out, b)
			}
		}
		return nil
	})
	return out, err
}

// --- requests ---

type requestRepo struct{ base }

func (r requestRepo) Create(_ context.Context, req *store.Request) error {
	return r.do(func(d *data) error {
		req.ID = d.id("requests")
		d.requests = append(d.requests, *req)
		return nil
	})
}

func (r requestRepo) GetByID(_ context.Context, id int64) (*store.Request, error) {
	var out *store.Request
	err := r.do(func(d *data) error {
		for _, req := range d.requests {
			if req.ID == id {
				out = &req
				return nil
			}
		}
		return apperr.NotFound("request", id)
	})
	return out, err
}

func (r requestRepo) GetByIDForUpdate(ctx context.Context, id int64) (*store.Request, error) {
	return r.GetByID(ctx, id)
}

func (r requestRepo) UpdateStatus(_ context.Context, id int64, status store.RequestStatus, reason string, at time.Time) error {
	return r.do(func(d *data) error {
		for i := range d.requests {
			if d.requests[i].ID == id {
				d.requests[i].Status = status
				d.requests[i].RejectionReason = reason
				d.requests[i].UpdatedAt = at
				return nil
			}
		}
		return apperr.NotFound("request", id)
	})
}

func (r requestRepo) CreateLineItem(_ context.Context, li *store.RequestLineItem) error {
	return r.do(func(d *data) error {
		li.ID = d.id("request_line_items")
		d.requestItems = append(d.requestItems, *li)
		return nil
	})
}

func (r requestRepo) ListLineItems(_ context.Context, requestID int64) ([]store.RequestLineItem, error) {
	var out []store.RequestLineItem
	err := r.do(func(d *data) error {
		for _, li := range d.requestItems {
			if li.RequestID == requestID && !li.Deleted {
				out = append(out, li)
			}
		}
		return nil
	})
	return out, err
}

func (r requestRepo) CreateParticipant(_ context.Context, p *store.RequestParticipant) error {
	return r.do(func(d *data) error {
		for _, existing := range d.requestParticipants {
			if existing.RequestID == p.RequestID && existing.UserID == p.UserID {
				return apperr.Conflict("request-participant", "user %d is already enrolled in request %d", p.UserID, p.RequestID)
			}
		}
		p.ID = d.id("request_participants")
		d.requestParticipants = append(d.requestParticipants, *p)
		return nil
	})
}

func (r requestRepo) FindParticipant(_ context.Context, requestID, userID int64) (*store.RequestParticipant, error) {
	var out *store.RequestParticipant
	err := r.do(func(d *data) error {
		for _, p := range d.requestParticipants {
			if p.RequestID == requestID && p.UserID == userID {
				out = &p
				return nil
			}
		}
		return apperr.NotFound("request-participant", userID)
	})
	return out, err
}

func (r requestRepo) ListParticipants(_ context.Context, requestID int64) ([]store.RequestParticipant, error) {
	var out []store.RequestParticipant
	err := r.do(func(d *data) error {
		for _, p := range d.requestParticipants {
			if p.RequestID == requestID {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// --- conversions ---

type conversionRepo struct{ base }

func (r conversionRepo) Create(_ context.Context, c *store.Conversion) error {
	return r.do(func(d *data) error {
		c.ID = d.id("conversions")
		d.conversions = append(d.conversions, *c)
		return nil
	})
}

func (r conversionRepo) ListByAuction(_ context.Context, auctionID int64) ([]store.Conversion, error) {
	var out []store.Conversion
	err := r.do(func(d *data) error {
		for _, c := range d.conversions {
			if c.AuctionID == auctionID {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

// --- lookups ---

type userRepo struct{ base }

func (r userRepo) GetByID(_ context.Context, id int64) (*store.User, error) {
	var out *store.User
	err := r.do(func(d *data) error {
		for _, u := range d.users {
			if u.ID == id {
				out = &u
				return nil
			}
		}
		return apperr.NotFound("user", id)
	})
	return out, err
}

type catalogRepo struct{ base }

func (r catalogRepo) GetItem(_ context.Context, id int64) (*store.CatalogItem, error) {
	var out *store.CatalogItem
	err := r.do(func(d *data) error {
		for _, it := range d.items {
			if it.ID == id {
				out = &it
				return nil
			}
		}
		return apperr.NotFound("item", id)
	})
	return out, err
}

func (r catalogRepo) GetUnit(_ context.Context, id int64) (*store.MeasureUnit, error) {
	var out *store.MeasureUnit
	err := r.do(func(d *data) error {
		for _, u := range d.units {
			if u.ID == id {
				out = &u
				return nil
			}
		}
		return apperr.NotFound("unit", id)
	})
	return out, err
}

func (r catalogRepo) GetCategory(_ context.Context, id int64) (*store.Category, error) {
	var out *store.Category
	err := r.do(func(d *data) error {
		for _, c := range d.categories {
			if c.ID == id {
				out = &c
				return nil
			}
		}
		return apperr.NotFound("category", id)
	})
	return out, err
}

func (r catalogRepo) GetBrand(_ context.Context, id int64) (*store.Brand, error) {
	var out *store.Brand
	err := r.do(func(d *data) error {
		for _, b := range d.brands {
			if b.ID == id {
				out = &b
				return nil
			}
		}
		return apperr.NotFound("brand", id)
	})
	return out, err
}

// --- events ---

type eventRepo struct{ base }

func (r eventRepo) Append(_ context.Context, events ...event.Event) error {
	return r.do(func(d *data) error {
		d.events = append(d.events, events...)
		return nil
	})
}

func (r eventRepo) ListByAuction(_ context.Context, auctionID int64) ([]event.Event, error) {
	var out []event.Event
	err := r.do(func(d *data) error {
		for _, e := range d.events {
			if e.AuctionID == auctionID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}
