package checkout

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/drafts"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	checkoutform "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const sessionParam = "sessionID"

type sessionStore interface {
	Start(ctx context.Context) (*sessions.Session, error)
	Load(ctx context.Context, id string) (*sessions.Session, error)
}

type previewer interface {
	Preview(ctx context.Context, sessionID string) (*checkoutsvc.Preview, error)
}

type submitter interface {
	Submit(ctx context.Context, in checkoutsvc.SubmitInput) (*checkoutsvc.Outcome, error)
}

type closer interface {
	Close(ctx context.Context, sessionID string, confirmed bool) (*sessions.Session, error)
	Cancel(ctx context.Context, sessionID string) (*sessions.Session, error)
}

type productLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type draftStore interface {
	Get(sessionID string) (*drafts.Draft, error)
	Delete(sessionID string) error
}

type draftScheduler interface {
	Save(sessionID string, form checkoutform.Form)
	Discard(sessionID string)
}

// SessionStart opens a checkout session with an empty cart and a fresh idempotency key.
func SessionStart(store sessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := store.Start(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start checkout session"))
			return
		}
		if logg != nil {
			logg.Info(logg.WithSessionID(r.Context(), sess.ID), "checkout session started")
		}
		responses.WriteCreated(w, SessionCreated{SessionID: sess.ID, IdempotencyKey: sess.IdempotencyKey})
	}
}

func SessionFetch(store sessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sess, err := loadSession(r, store, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionView(sess))
	}
}

// CartUpsert adds products to the cart or sets the quantity of lines already
// in it. Product names come from the catalog; unknown or inactive products
// are rejected before any line changes.
func CartUpsert(store sessionStore, products productLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sess, err := loadEditableSession(r, store, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload CartUpsertRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		names := make(map[uuid.UUID]string, len(payload.Lines))
		for _, line := range payload.Lines {
			product, err := products.FindByID(ctx, line.ProductID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product"))
				return
			}
			if product == nil || !product.IsActive {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidItem, "product is not available").
					WithDetails(map[string]any{"product_id": line.ProductID}))
				return
			}
			names[line.ProductID] = product.Name
		}

		items := sess.Cart()
		for _, line := range payload.Lines {
			if inCart(sess, line.ProductID) {
				err = items.UpdateQuantity(line.ProductID, line.Quantity)
			} else {
				err = items.Add(line.ProductID, names[line.ProductID], line.Quantity, line.UnitPriceCents)
			}
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart line").
					WithDetails(map[string]any{"product_id": line.ProductID}))
				return
			}
		}
		responses.WriteSuccess(w, newSessionView(sess))
	}
}

func CartRemoveLine(store sessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sess, err := loadEditableSession(r, store, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		productID, err := validators.PathUUID(r, "productID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !sess.Cart().Remove(productID) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "product not in cart"))
			return
		}
		responses.WriteSuccess(w, newSessionView(sess))
	}
}

func CartClear(store sessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sess, err := loadEditableSession(r, store, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sess.Cart().Clear()
		responses.WriteSuccess(w, newSessionView(sess))
	}
}

// CouponApply stores a coupon code on the cart and returns the priced
// preview. A code that does not apply is reported in the preview, not as a
// request failure.
func CouponApply(store sessionStore, flow previewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sess, err := loadEditableSession(r, store, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload CouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		code := coupons.NormalizeCode(payload.Code)
		if code == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required"))
			return
		}
		sess.Cart().SetCouponCode(code)

		preview, err := flow.Preview(ctx, sess.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

func CouponRemove(store sessionStore, flow previewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sess, err := loadEditableSession(r, store, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sess.Cart().ClearCoupon()

		preview, err := flow.Preview(ctx, sess.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

func CheckoutPreview(flow previewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sessionID, err := sessionIDParam(r, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		preview, err := flow.Preview(ctx, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

// CheckoutSubmit runs the submission flow for the session. The form is
// validated by the flow itself so field errors come back in one response.
func CheckoutSubmit(flow submitter, store draftStore, pending draftScheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sessionID, err := sessionIDParam(r, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var form checkoutform.Form
		if err := validators.DecodeJSON(r, &form); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := flow.Submit(ctx, checkoutsvc.SubmitInput{SessionID: sessionID, Form: form})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if pending != nil {
			pending.Discard(sessionID)
		}
		if store != nil {
			if err := store.Delete(sessionID); err != nil && logg != nil {
				logg.Warn(ctx, "delete checkout draft after submit: "+err.Error())
			}
		}
		responses.WriteSuccess(w, outcome)
	}
}

func CheckoutClose(flow closer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sessionID, err := sessionIDParam(r, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload CloseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sess, err := flow.Close(ctx, sessionID, payload.Confirmed)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionView(sess))
	}
}

func CheckoutCancel(flow closer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sessionID, err := sessionIDParam(r, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sess, err := flow.Cancel(ctx, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionView(sess))
	}
}

// DraftSave schedules a debounced write of the checkout form typed so far.
func DraftSave(store sessionStore, pending draftScheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sess, err := loadSession(r, store, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var form checkoutform.Form
		if err := validators.DecodeJSON(r, &form); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		pending.Save(sess.ID, form.Normalize())
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
	}
}

func DraftFetch(store draftStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, sessionID, err := sessionIDParam(r, logg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		draft, err := store.Get(sessionID)
		if err != nil {
			if errors.Is(err, drafts.ErrNotFound) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no draft saved"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout draft"))
			return
		}
		responses.WriteSuccess(w, newDraftView(draft))
	}
}

func sessionIDParam(r *http.Request, logg *logger.Logger) (context.Context, string, error) {
	ctx := r.Context()
	id, err := validators.PathString(r, sessionParam)
	if err != nil {
		return ctx, "", err
	}
	if logg != nil {
		ctx = logg.WithSessionID(ctx, id)
	}
	return ctx, id, nil
}

func loadSession(r *http.Request, store sessionStore, logg *logger.Logger) (context.Context, *sessions.Session, error) {
	ctx, id, err := sessionIDParam(r, logg)
	if err != nil {
		return ctx, nil, err
	}
	sess, err := store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			return ctx, nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "checkout session not found")
		}
		return ctx, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	return ctx, sess, nil
}

// loadEditableSession loads a session whose cart may still change. Carts are
// frozen while a submission runs and while a placed order is on screen.
func loadEditableSession(r *http.Request, store sessionStore, logg *logger.Logger) (context.Context, *sessions.Session, error) {
	ctx, sess, err := loadSession(r, store, logg)
	if err != nil {
		return ctx, nil, err
	}
	switch sess.State {
	case enums.SubmissionIdle, enums.SubmissionFailed:
		return ctx, sess, nil
	default:
		return ctx, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart can not change right now").
			WithDetails(map[string]any{"state": sess.State})
	}
}

func inCart(sess *sessions.Session, productID uuid.UUID) bool {
	for _, line := range sess.Cart().Lines() {
		if line.ProductID == productID {
			return true
		}
	}
	return false
}
