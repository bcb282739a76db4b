package httpapi

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/pregao/internal/auction"
	"github.com/jensholdgaard/pregao/internal/bidding"
	"github.com/jensholdgaard/pregao/internal/lineitem"
	"github.com/jensholdgaard/pregao/internal/rules"
	"github.com/jensholdgaard/pregao/internal/store"
)

func (h *Handler) createRuleSet(w http.ResponseWriter, r *http.Request) {
	var in rules.Params
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	rs, err := h.svc.Rules.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rs)
}

func (h *Handler) listRuleSets(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Rules.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) activeRuleSet(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.Rules.Active(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *Handler) getRuleSet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rs, err := h.svc.Rules.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

type createAuctionRequest struct {
	CreatedBy int64 `json:"createdBy"`
	auction.Fields
}

func (h *Handler) createAuction(w http.ResponseWriter, r *http.Request) {
	var in createAuctionRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.svc.Auctions.Create(r.Context(), in.CreatedBy, in.Fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) getAuction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.svc.Auctions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) authorizeAuction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Auctions.Authorize)
}

func (h *Handler) cancelAuction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Auctions.Cancel)
}

func (h *Handler) rejectAuction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Auctions.Reject)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (*store.Auction, error)) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := fn(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	evts, err := h.svc.Auctions.Events(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evts)
}

type enrollRequest struct {
	UserID int64      `json:"userId"`
	Role   store.Role `json:"role"`
}

func (h *Handler) addParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in enrollRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Roster.Add(r.Context(), id, in.UserID, in.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ps, err := h.svc.Roster.List(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) getParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Roster.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) addLineItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in lineitem.NewLineItem
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	in.AuctionID = id
	li, err := h.svc.LineItems.Add(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, li)
}

func (h *Handler) listLineItems(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lis, err := h.svc.LineItems.List(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lis)
}

func (h *Handler) getLineItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	li, err := h.svc.LineItems.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, li)
}

// updateLineItemRequest leaves absent fields nil so only supplied fields
// override the superseded row.
type updateLineItemRequest struct {
	Quantity *decimal.Decimal `json:"quantity"`
	UnitID   *int64           `json:"unitId"`
}

func (h *Handler) updateLineItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in updateLineItemRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	li, err := h.svc.LineItems.Update(r.Context(), id, store.LineItemPatch{Quantity: in.Quantity, UnitID: in.UnitID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, li)
}

func (h *Handler) deleteLineItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	li, err := h.svc.LineItems.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, li)
}

func (h *Handler) submitBid(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in bidding.Submission
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	in.AuctionID = id
	bid, err := h.svc.Bids.Submit(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

func (h *Handler) listBids(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bids, err := h.svc.Bids.List(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

func (h *Handler) auctionWinner(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bid, err := h.svc.Bids.AuctionWinner(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

func (h *Handler) lineItemWinner(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lineItemID, err := idParam(r, "lineItemId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bid, err := h.svc.Bids.LineItemWinner(r.Context(), id, lineItemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}
