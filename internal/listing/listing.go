// Package listing resolves a marketplace item reference into a ProductListing.
//
// Resolution never fails after the reference passes shape validation: when the
// page cannot be fetched or yields no trustworthy price, a synthetic listing
// derived from the category table is returned instead.
package listing

import (
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidReference is returned for references that do not match any
	// known shape. Nothing is fetched for them.
	ErrInvalidReference = errors.New("invalid product reference")
	// ErrExtractionFailure marks a page that produced no trustworthy listing.
	// It is absorbed by the synthetic fallback.
	ErrExtractionFailure = errors.New("listing extraction failed")
)

// Condition values inferred from listing descriptions.
const (
	ConditionExcellent = "Excellent"
	ConditionGood      = "Good"
	ConditionFair      = "Fair"
	ConditionPoor      = "Poor"
	ConditionUsed      = "Used"
)

// Listing is the negotiation target. Immutable once resolved.
type Listing struct {
	ID            string    `json:"id"`
	SourceRef     string    `json:"sourceReference"`
	Platform      string    `json:"platform"`
	Title         string    `json:"title"`
	Price         int64     `json:"price"`
	Category      string    `json:"category"`
	Condition     string    `json:"condition"`
	Description   string    `json:"description,omitempty"`
	Location      string    `json:"location,omitempty"`
	SellerName    string    `json:"sellerName"`
	SellerContact string    `json:"sellerContact,omitempty"`
	Synthetic     bool      `json:"synthetic"`
	ResolvedAt    time.Time `json:"resolvedAt"`
}
