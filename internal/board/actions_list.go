package board

import (
	"time"

	"github.com/automerge/automerge-go"
)

// List action types.
const (
	ActionAddItem           = "add_item"
	ActionUpdateItem        = "update_item"
	ActionSetItemQuantity   = "set_item_quantity"
	ActionSetItemVendor     = "set_item_vendor"
	ActionSetItemNotes      = "set_item_notes"
	ActionToggleItemChecked = "toggle_item_checked"
	ActionRemoveItem        = "remove_item"
)

// ListAction is the wire payload of an item-level mutation.
type ListAction struct {
	Type     string `json:"type"`
	ItemID   string `json:"itemId,omitempty"`
	Label    string `json:"label,omitempty"`
	Quantity string `json:"quantity,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Checked  bool   `json:"checked"`
}

// ApplyListAction validates and applies one item mutation as a single commit
// on the list document. The caller resolves the registry entry first; the
// edit predicate (including the archived check) is enforced here.
func ApplyListAction(doc *automerge.Doc, entry ListEntry, caller UserID, action ListAction, now time.Time, ids IDProvider) error {
	if !EditableTo(entry, caller) {
		if entry.Archived {
			return Forbiddenf("list %s is archived", entry.ID)
		}
		return Forbiddenf("user %s may not edit list %s", caller, entry.ID)
	}

	switch action.Type {
	case ActionAddItem:
		return applyAddItem(doc, caller, action, now, ids)
	case ActionUpdateItem:
		return applyUpdateItem(doc, action)
	case ActionSetItemQuantity:
		return applySetItemField(doc, action, fieldQuantity, action.Quantity)
	case ActionSetItemVendor:
		return applySetItemField(doc, action, fieldVendor, action.Vendor)
	case ActionSetItemNotes:
		return applySetItemNotes(doc, action)
	case ActionToggleItemChecked:
		return applyToggleItemChecked(doc, action)
	case ActionRemoveItem:
		return applyRemoveItem(doc, action)
	default:
		return BadRequestf("unknown list action %q", action.Type)
	}
}

func applyAddItem(doc *automerge.Doc, caller UserID, action ListAction, now time.Time, ids IDProvider) error {
	label, err := validateRequiredText(action.Label, MaxLabelLength, "label")
	if err != nil {
		return err
	}
	quantity, hasQuantity, err := validateOptionalText(action.Quantity, MaxPlainFieldLength, "quantity")
	if err != nil {
		return err
	}
	vendor, hasVendor, err := validateOptionalText(action.Vendor, MaxPlainFieldLength, "vendor")
	if err != nil {
		return err
	}

	items, err := listItems(doc)
	if err != nil {
		return err
	}
	if items.Len() >= MaxItemsPerList {
		return BadRequestf("item cap of %d reached", MaxItemsPerList)
	}

	rawID, err := ids.NewID()
	if err != nil {
		return err
	}
	itemID, err := NewItemID(rawID)
	if err != nil {
		return err
	}

	itemMap := automerge.NewMap()
	if err := items.Append(itemMap); err != nil {
		return err
	}
	if err := itemMap.Set(fieldID, itemID.String()); err != nil {
		return err
	}
	if err := itemMap.Set(fieldLabel, automerge.NewText(label)); err != nil {
		return err
	}
	if err := itemMap.Set(fieldCreatedAt, isoTimestamp(now)); err != nil {
		return err
	}
	if err := itemMap.Set(fieldAddedBy, caller.String()); err != nil {
		return err
	}
	if hasQuantity {
		if err := itemMap.Set(fieldQuantity, quantity); err != nil {
			return err
		}
	}
	if hasVendor {
		if err := itemMap.Set(fieldVendor, vendor); err != nil {
			return err
		}
	}
	if err := itemMap.Set(fieldChecked, false); err != nil {
		return err
	}
	_, err = doc.Commit(ActionAddItem)
	return err
}

func applyUpdateItem(doc *automerge.Doc, action ListAction) error {
	label, err := validateRequiredText(action.Label, MaxLabelLength, "label")
	if err != nil {
		return err
	}
	itemMap, err := resolveItemMap(doc, action.ItemID)
	if err != nil {
		return err
	}
	if err := setTextField(itemMap, fieldLabel, label); err != nil {
		return err
	}
	_, err = doc.Commit(ActionUpdateItem)
	return err
}

// applySetItemField handles the plain optional string fields; empty input
// clears the field.
func applySetItemField(doc *automerge.Doc, action ListAction, field, rawValue string) error {
	value, present, err := validateOptionalText(rawValue, MaxPlainFieldLength, field)
	if err != nil {
		return err
	}
	itemMap, err := resolveItemMap(doc, action.ItemID)
	if err != nil {
		return err
	}
	if present {
		if err := itemMap.Set(field, value); err != nil {
			return err
		}
	} else if err := clearMapField(itemMap, field); err != nil {
		return err
	}
	_, err = doc.Commit(action.Type)
	return err
}

func applySetItemNotes(doc *automerge.Doc, action ListAction) error {
	notes, present, err := validateOptionalText(action.Notes, MaxNotesLength, "notes")
	if err != nil {
		return err
	}
	itemMap, err := resolveItemMap(doc, action.ItemID)
	if err != nil {
		return err
	}
	if present {
		if err := setTextField(itemMap, fieldNotes, notes); err != nil {
			return err
		}
	} else if err := clearMapField(itemMap, fieldNotes); err != nil {
		return err
	}
	_, err = doc.Commit(ActionSetItemNotes)
	return err
}

// applyToggleItemChecked sets the explicit target state, keeping repeated
// delivery idempotent.
func applyToggleItemChecked(doc *automerge.Doc, action ListAction) error {
	itemMap, err := resolveItemMap(doc, action.ItemID)
	if err != nil {
		return err
	}
	current, err := boolField(itemMap, fieldChecked)
	if err != nil {
		return err
	}
	if current == action.Checked {
		// Already in the target state: there is nothing to commit.
		return nil
	}
	if err := itemMap.Set(fieldChecked, action.Checked); err != nil {
		return err
	}
	_, err = doc.Commit(ActionToggleItemChecked)
	return err
}

func applyRemoveItem(doc *automerge.Doc, action ListAction) error {
	itemID, err := NewItemID(action.ItemID)
	if err != nil {
		return BadRequestf("invalid item id")
	}
	items, err := listItems(doc)
	if err != nil {
		return err
	}
	_, index, err := findMapByID(items, itemID.String())
	if err != nil {
		return err
	}
	if index < 0 {
		return NotFoundf("item %s does not exist", itemID)
	}
	if err := items.Delete(index); err != nil {
		return err
	}
	_, err = doc.Commit(ActionRemoveItem)
	return err
}

func resolveItemMap(doc *automerge.Doc, rawItemID string) (*automerge.Map, error) {
	itemID, err := NewItemID(rawItemID)
	if err != nil {
		return nil, BadRequestf("invalid item id")
	}
	items, err := listItems(doc)
	if err != nil {
		return nil, err
	}
	itemMap, _, err := findMapByID(items, itemID.String())
	if err != nil {
		return nil, err
	}
	if itemMap == nil {
		return nil, NotFoundf("item %s does not exist", itemID)
	}
	return itemMap, nil
}
