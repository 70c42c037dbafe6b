// Package messaging renders placed orders into the text handed to the
// external messaging channel.
package messaging

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

const (
	separator       = "──────────────────"
	mapsSearchURL   = "https://www.google.com/maps/search/?api=1&query="
	defaultPickup   = "In-store pickup"
	pickupAgreement = "Place and time to be agreed."
)

// Options controls the parts of the message that depend on the store.
type Options struct {
	PickupLocation string
	MapsLinks      bool
	Location       *time.Location
}

// BuildMessage renders order as a plain-text summary. The output depends only
// on its inputs: prices come from the stored line items, never the catalog.
// The message always ends with the TOTAL line.
func BuildMessage(order *models.Order, opts Options) string {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder

	fmt.Fprintf(&b, "*ORDER %s*\n", order.OrderNumber)
	fmt.Fprintf(&b, "Date: %s\n", order.CreatedAt.In(loc).Format("02/01/2006"))
	b.WriteString(separator + "\n\n")

	b.WriteString("*CUSTOMER*\n")
	fmt.Fprintf(&b, "Name: %s\n", order.CustomerName)
	fmt.Fprintf(&b, "Phone: %s\n", order.CustomerPhone)
	if v := deref(order.CustomerEmail); v != "" {
		fmt.Fprintf(&b, "Email: %s\n", v)
	}
	b.WriteString("\n")

	if order.Fulfillment == enums.FulfillmentPickup {
		pickup := opts.PickupLocation
		if pickup == "" {
			pickup = defaultPickup
		}
		fmt.Fprintf(&b, "*PICKUP*: %s\n", pickup)
		b.WriteString(pickupAgreement + "\n")
	} else {
		writeAddress(&b, order, opts.MapsLinks)
	}

	if notes := deref(order.Notes); notes != "" {
		fmt.Fprintf(&b, "\n*NOTES*\n%s\n", notes)
	}

	b.WriteString("\n" + separator + "\n")
	b.WriteString("*ORDER SUMMARY*\n\n")
	for _, item := range order.LineItems {
		fmt.Fprintf(&b, "- *%s*\n", item.Name)
		fmt.Fprintf(&b, "   %d x %s = %s\n", item.Qty, money.Format(item.UnitPriceCents), money.Format(item.TotalCents))
	}

	b.WriteString("\n" + separator + "\n")
	fmt.Fprintf(&b, "Subtotal: %s\n", money.Format(order.SubtotalCents))
	if code := deref(order.DiscountCode); code != "" {
		fmt.Fprintf(&b, "Discount (%s): -%s\n", code, money.Format(order.DiscountCents))
	}
	fmt.Fprintf(&b, "TOTAL: %s", money.Format(order.TotalCents))
	return b.String()
}

func writeAddress(b *strings.Builder, order *models.Order, mapsLinks bool) {
	b.WriteString("*SHIPPING*\n")
	street := strings.TrimSpace(deref(order.AddressLine) + " " + deref(order.CivicNumber))
	if street != "" {
		b.WriteString(street + "\n")
	}
	locality := strings.TrimSpace(deref(order.PostalCode) + " " + deref(order.City))
	if province := deref(order.Province); province != "" {
		locality = strings.TrimSpace(locality + " (" + province + ")")
	}
	if locality != "" {
		b.WriteString(locality + "\n")
	}
	if mapsLinks && street != "" {
		query := strings.Join(nonEmpty(street, deref(order.PostalCode), deref(order.City), deref(order.Province)), ", ")
		fmt.Fprintf(b, "Map: %s%s\n", mapsSearchURL, url.QueryEscape(query))
	}
}

// DeepLink builds https://<host>/<channel>?text=<text>, percent-encoding the
// text with spaces as %20.
func DeepLink(host, channel, text string) string {
	encoded := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return fmt.Sprintf("https://%s/%s?text=%s", strings.Trim(host, "/"), url.PathEscape(channel), encoded)
}

// Message is a rendered order summary and its deep link.
type Message struct {
	Text string
	Link string
}

// Builder renders messages with the configured channel settings.
type Builder struct {
	host    string
	channel string
	opts    Options
}

// NewBuilder renders dates in loc, the store time zone; nil means UTC.
func NewBuilder(cfg config.MessagingConfig, loc *time.Location) (*Builder, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("messaging host is required")
	}
	if strings.TrimSpace(cfg.ChannelID) == "" {
		return nil, fmt.Errorf("messaging channel id is required")
	}
	return &Builder{
		host:    cfg.Host,
		channel: cfg.ChannelID,
		opts: Options{
			PickupLocation: cfg.PickupLocation,
			MapsLinks:      cfg.MapsLinks,
			Location:       loc,
		},
	}, nil
}

func (b *Builder) Render(order *models.Order) Message {
	text := BuildMessage(order, b.opts)
	return Message{Text: text, Link: DeepLink(b.host, b.channel, text)}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
