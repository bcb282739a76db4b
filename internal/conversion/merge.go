package conversion

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/store"
)

// Item is one catalog item of the merged demand.
type Item struct {
	ItemID   int64
	UnitID   int64
	Quantity decimal.Decimal
}

// Member is one user of the merged participant list.
type Member struct {
	UserID int64
	Role   store.Role
}

// Unify merges request line items by referenced catalog item and request
// participants by user. Entries of one item must agree on the unit and
// entries of one user must agree on the role. Results are ordered by item
// id and user id.
func Unify(items []store.RequestLineItem, participants []store.RequestParticipant) ([]Item, []Member, error) {
	byItem := make(map[int64]*Item)
	for _, li := range items {
		if li.ItemRefID == nil {
			return nil, nil, apperr.Validation("itemReferenceId",
				"request line item %d does not reference a catalog item", li.ID)
		}
		if li.UnitRefID == nil {
			return nil, nil, apperr.Validation("unitReferenceId",
				"request line item %d does not reference a unit", li.ID)
		}

		it, ok := byItem[*li.ItemRefID]
		if !ok {
			byItem[*li.ItemRefID] = &Item{
				ItemID:   *li.ItemRefID,
				UnitID:   *li.UnitRefID,
				Quantity: li.Quantity,
			}
			continue
		}
		if it.UnitID != *li.UnitRefID {
			return nil, nil, apperr.Validation("unitReferenceId",
				"unit inconsistency for item %d: unit %d and unit %d", it.ItemID, it.UnitID, *li.UnitRefID)
		}
		it.Quantity = it.Quantity.Add(li.Quantity)
	}

	byUser := make(map[int64]store.Role)
	for _, p := range participants {
		role, ok := byUser[p.UserID]
		if !ok {
			byUser[p.UserID] = p.Role
			continue
		}
		if role != p.Role {
			return nil, nil, apperr.Validation("role",
				"participation-type inconsistency for user %d: %s and %s", p.UserID, role, p.Role)
		}
	}

	merged := make([]Item, 0, len(byItem))
	for _, it := range byItem {
		merged = append(merged, *it)
	}
	slices.SortFunc(merged, func(a, b Item) int { return cmp.Compare(a.ItemID, b.ItemID) })

	members := make([]Member, 0, len(byUser))
	for userID, role := range byUser {
		members = append(members, Member{UserID: userID, Role: role})
	}
	slices.SortFunc(members, func(a, b Member) int { return cmp.Compare(a.UserID, b.UserID) })

	return merged, members, nil
}
