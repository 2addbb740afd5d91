package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category enumerates the closed item category set shared by lost and
// found items. Matching is gated on exact category equality.
type Category string

const (
	CategoryPhone       Category = "phone"
	CategoryWallet      Category = "wallet"
	CategoryBag         Category = "bag"
	CategoryDocuments   Category = "documents"
	CategoryKeys        Category = "keys"
	CategoryElectronics Category = "electronics"
	CategoryJewelry     Category = "jewelry"
	CategoryClothing    Category = "clothing"
	CategoryOther       Category = "other"
)

// Categories lists every valid category, in display order.
var Categories = []Category{
	CategoryPhone,
	CategoryWallet,
	CategoryBag,
	CategoryDocuments,
	CategoryKeys,
	CategoryElectronics,
	CategoryJewelry,
	CategoryClothing,
	CategoryOther,
}

// ValidCategory reports whether c is a member of the closed set.
func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// LostItemStatus enumerates lost item lifecycle states.
type LostItemStatus string

const (
	LostActive   LostItemStatus = "active"
	LostClaimed  LostItemStatus = "claimed"
	LostReturned LostItemStatus = "returned"
	LostExpired  LostItemStatus = "expired"
)

// FoundItemStatus enumerates found item lifecycle states.
type FoundItemStatus string

const (
	FoundUnclaimed FoundItemStatus = "unclaimed"
	FoundMatched   FoundItemStatus = "matched"
	FoundReturned  FoundItemStatus = "returned"
	FoundExpired   FoundItemStatus = "expired"
)

// FoundSource distinguishes citizen submissions from cooperative intake.
type FoundSource string

const (
	SourceCitizen     FoundSource = "citizen"
	SourceCooperative FoundSource = "cooperative"
)

// LostItem is a reported loss. Keywords are derived from title and
// description at insert/update and never set by callers directly.
type LostItem struct {
	ID           uuid.UUID      `json:"id"`
	UserID       uuid.UUID      `json:"user_id"`
	Category     Category       `json:"category"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	LocationArea string         `json:"location_area"`
	LostDate     time.Time      `json:"lost_date"`
	Status       LostItemStatus `json:"status"`
	Keywords     []string       `json:"keywords"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// FoundItem is a reported find. A cooperative binding means the item is
// physically held at that cooperative's office.
type FoundItem struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	CooperativeID *uuid.UUID      `json:"cooperative_id,omitempty"`
	Category      Category        `json:"category"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	LocationArea  string          `json:"location_area"`
	FoundDate     time.Time       `json:"found_date"`
	Status        FoundItemStatus `json:"status"`
	Source        FoundSource     `json:"source"`
	ImageURLs     []string        `json:"image_urls"`
	Keywords      []string        `json:"keywords"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ItemSecret is one (question, salt, hash) triple of a lost item's
// secret set. Salt and AnswerHash never leave the storage boundary.
type ItemSecret struct {
	ID         uuid.UUID `json:"id"`
	LostItemID uuid.UUID `json:"lost_item_id"`
	Position   int       `json:"position"`
	Question   string    `json:"question"`
	Salt       []byte    `json:"-"`
	AnswerHash []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// SecretSetSize is the required number of verification questions per
// lost item.
const SecretSetSize = 3

// Item field bounds.
const (
	MinTitleLen       = 3
	MaxTitleLen       = 100
	MinDescriptionLen = 10
	MaxDescriptionLen = 2000
	MaxLocationLen    = 100
	MaxImageURLs      = 5
)

// ValidateTitle checks the item title bounds.
func ValidateTitle(title string) error {
	n := len(strings.TrimSpace(title))
	if n < MinTitleLen {
		return fmt.Errorf("title must be at least %d characters", MinTitleLen)
	}
	if n > MaxTitleLen {
		return fmt.Errorf("title must be at most %d characters", MaxTitleLen)
	}
	return nil
}

// ValidateDescription checks the item description bounds.
func ValidateDescription(desc string) error {
	n := len(strings.TrimSpace(desc))
	if n < MinDescriptionLen {
		return fmt.Errorf("description must be at least %d characters", MinDescriptionLen)
	}
	if n > MaxDescriptionLen {
		return fmt.Errorf("description must be at most %d characters", MaxDescriptionLen)
	}
	return nil
}

// ValidateLocationArea checks the free-text area name bounds. Areas
// outside the known district table are allowed; they simply score as
// far (distance 3) during matching.
func ValidateLocationArea(area string) error {
	n := len(strings.TrimSpace(area))
	if n == 0 {
		return fmt.Errorf("location_area is required")
	}
	if n > MaxLocationLen {
		return fmt.Errorf("location_area must be at most %d characters", MaxLocationLen)
	}
	return nil
}

// ValidateItemDate rejects dates in the future beyond a one-day clock
// skew allowance.
func ValidateItemDate(field string, t time.Time, now time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%s is required", field)
	}
	if t.After(now.Add(24 * time.Hour)) {
		return fmt.Errorf("%s must not be in the future", field)
	}
	return nil
}

// ValidateImageURL ensures an image URL is a safe http/https reference.
// Rejects javascript: and file: schemes and embedded credentials.
func ValidateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("image URL must use http or https scheme (got %q)", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("image URL must not include credentials")
	}
	if u.Hostname() == "" {
		return fmt.Errorf("image URL must include a host")
	}
	return nil
}
