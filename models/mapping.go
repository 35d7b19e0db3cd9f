package models

import "time"

// MerchantMapping maps a normalized merchant name to a spending category.
// The mapping's document ID is derived deterministically from the merchant
// name, so two clients that learn the same merchant concurrently converge
// on one document instead of creating duplicates.
type MerchantMapping struct {
	// ID is the deterministic document identifier derived from Name.
	ID string `json:"id"`

	// Name is the normalized merchant name the mapping was derived from.
	Name string `json:"name"`

	// Category is the spending category assigned to the merchant.
	Category string `json:"category"`

	// CreatedBy is the user that first wrote the mapping.
	CreatedBy string `json:"created_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
