package board

import (
	"errors"
	"fmt"
	"strings"
)

// Visibility controls who may see a list entry or bulletin.
type Visibility string

const (
	// VisibilityPublic exposes the record to every signed-in user.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate restricts the record to its owner and collaborators.
	VisibilityPrivate Visibility = "private"
)

// Field length bounds enforced by domain actions.
const (
	MaxNameLength         = 200
	MaxLabelLength        = 200
	MaxPlainFieldLength   = 200
	MaxNotesLength        = 2000
	MaxBulletinTextLength = 2000
	MaxOwnedLists         = 200
	MaxItemsPerList       = 1000
)

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("board: invalid user id")
	// ErrInvalidListID indicates that a list identifier is empty or exceeds storage bounds.
	ErrInvalidListID = errors.New("board: invalid list id")
	// ErrInvalidItemID indicates that an item identifier is empty or exceeds storage bounds.
	ErrInvalidItemID = errors.New("board: invalid item id")
	// ErrInvalidBulletinID indicates that a bulletin identifier is empty or exceeds storage bounds.
	ErrInvalidBulletinID = errors.New("board: invalid bulletin id")
	// ErrInvalidVisibility indicates an unknown visibility selector.
	ErrInvalidVisibility = errors.New("board: invalid visibility")
)

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// ListID represents a validated list identifier.
type ListID string

// NewListID validates raw input and returns a ListID.
func NewListID(rawInput string) (ListID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidListID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidListID, maxIdentifierLength)
	}
	return ListID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ListID) String() string {
	return string(id)
}

// ItemID represents a validated item identifier.
type ItemID string

// NewItemID validates raw input and returns an ItemID.
func NewItemID(rawInput string) (ItemID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidItemID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidItemID, maxIdentifierLength)
	}
	return ItemID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ItemID) String() string {
	return string(id)
}

// BulletinID represents a validated bulletin identifier.
type BulletinID string

// NewBulletinID validates raw input and returns a BulletinID.
func NewBulletinID(rawInput string) (BulletinID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBulletinID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidBulletinID, maxIdentifierLength)
	}
	return BulletinID(trimmed), nil
}

// String returns the underlying string identifier.
func (id BulletinID) String() string {
	return string(id)
}

// ParseVisibility validates a raw visibility selector.
func ParseVisibility(rawInput string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case string(VisibilityPublic):
		return VisibilityPublic, nil
	case string(VisibilityPrivate):
		return VisibilityPrivate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, rawInput)
	}
}

// ListEntry is the plain-data projection of a registry entry.
type ListEntry struct {
	ID            string   `json:"id"`
	OwnerID       string   `json:"ownerId"`
	Name          string   `json:"name"`
	CreatedAt     string   `json:"createdAt"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
	Visibility    string   `json:"visibility"`
	Collaborators []string `json:"collaborators"`
	Archived      bool     `json:"archived"`
}

// Item is the plain-data projection of a list item.
type Item struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	CreatedAt string `json:"createdAt"`
	AddedBy   string `json:"addedBy"`
	Quantity  string `json:"quantity,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Checked   bool   `json:"checked"`
}

// Bulletin is the plain-data projection of a bulletin board post.
type Bulletin struct {
	ID         string `json:"id"`
	AuthorID   string `json:"authorId"`
	Text       string `json:"text"`
	CreatedAt  string `json:"createdAt"`
	EditedAt   string `json:"editedAt,omitempty"`
	Visibility string `json:"visibility"`
}

// RegistrySnapshot is the wire projection of the list registry.
type RegistrySnapshot struct {
	Lists []ListEntry `json:"lists"`
}

// BulletinsSnapshot is the wire projection of the bulletin board.
type BulletinsSnapshot struct {
	Bulletins []Bulletin `json:"bulletins"`
}

// ListSnapshot is the wire projection of a single list document.
type ListSnapshot struct {
	ListID string `json:"listId"`
	Items  []Item `json:"items"`
}

// ListDocument is the decoded form of a per-list document.
type ListDocument struct {
	ListID ListID
	Items  []Item
}
