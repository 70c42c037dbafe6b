package checkout

import (
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/drafts"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	checkoutform "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type SessionCreated struct {
	SessionID      string `json:"session_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// SessionView is the shopper-facing state of a checkout session.
type SessionView struct {
	SessionID string                 `json:"session_id"`
	State     enums.SubmissionState  `json:"state"`
	Cart      cart.Snapshot          `json:"cart"`
	ItemCount int                    `json:"item_count"`
	LastOrder *sessions.Confirmation `json:"last_order,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func newSessionView(sess *sessions.Session) SessionView {
	snap := sess.Cart().Snapshot()
	if snap.Lines == nil {
		snap.Lines = []cart.Line{}
	}
	return SessionView{
		SessionID: sess.ID,
		State:     sess.State,
		Cart:      snap,
		ItemCount: sess.Cart().Count(),
		LastOrder: sess.LastOrder,
		UpdatedAt: sess.UpdatedAt,
	}
}

type DraftView struct {
	SessionID string            `json:"session_id"`
	Form      checkoutform.Form `json:"form"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func newDraftView(d *drafts.Draft) DraftView {
	return DraftView{SessionID: d.SessionID, Form: d.Form, UpdatedAt: d.UpdatedAt}
}
