package board

import (
	"strings"
	"time"

	"github.com/automerge/automerge-go"
)

// Bulletin action types.
const (
	ActionAddBulletin    = "add_bulletin"
	ActionEditBulletin   = "edit_bulletin"
	ActionDeleteBulletin = "delete_bulletin"
)

// BulletinAction is the wire payload of a bulletin board mutation.
type BulletinAction struct {
	Type       string `json:"type"`
	BulletinID string `json:"bulletinId,omitempty"`
	Text       string `json:"text,omitempty"`
	Visibility string `json:"visibility,omitempty"`
}

// ApplyBulletinAction validates and applies one bulletin mutation as a
// single commit on the bulletins document.
func ApplyBulletinAction(doc *automerge.Doc, caller UserID, action BulletinAction, now time.Time, ids IDProvider) error {
	switch action.Type {
	case ActionAddBulletin:
		return applyAddBulletin(doc, caller, action, now, ids)
	case ActionEditBulletin:
		return applyEditBulletin(doc, caller, action, now)
	case ActionDeleteBulletin:
		return applyDeleteBulletin(doc, caller, action)
	default:
		return BadRequestf("unknown bulletin action %q", action.Type)
	}
}

func applyAddBulletin(doc *automerge.Doc, caller UserID, action BulletinAction, now time.Time, ids IDProvider) error {
	text, err := validateRequiredText(action.Text, MaxBulletinTextLength, "text")
	if err != nil {
		return err
	}
	visibility := VisibilityPublic
	if strings.TrimSpace(action.Visibility) != "" {
		visibility, err = ParseVisibility(action.Visibility)
		if err != nil {
			return BadRequestf("invalid visibility %q", action.Visibility)
		}
	}

	rawID, err := ids.NewID()
	if err != nil {
		return err
	}
	bulletinID, err := NewBulletinID(rawID)
	if err != nil {
		return err
	}

	bulletins, err := bulletinEntries(doc)
	if err != nil {
		return err
	}
	entryMap := automerge.NewMap()
	if err := bulletins.Append(entryMap); err != nil {
		return err
	}
	if err := entryMap.Set(fieldID, bulletinID.String()); err != nil {
		return err
	}
	if err := entryMap.Set(fieldAuthorID, caller.String()); err != nil {
		return err
	}
	if err := entryMap.Set(fieldText, automerge.NewText(text)); err != nil {
		return err
	}
	if err := entryMap.Set(fieldCreatedAt, isoTimestamp(now)); err != nil {
		return err
	}
	if err := entryMap.Set(fieldVisibility, string(visibility)); err != nil {
		return err
	}
	_, err = doc.Commit(ActionAddBulletin)
	return err
}

func applyEditBulletin(doc *automerge.Doc, caller UserID, action BulletinAction, now time.Time) error {
	text, err := validateRequiredText(action.Text, MaxBulletinTextLength, "text")
	if err != nil {
		return err
	}
	entryMap, err := authoredBulletinMap(doc, caller, action.BulletinID)
	if err != nil {
		return err
	}
	if err := setTextField(entryMap, fieldText, text); err != nil {
		return err
	}
	if err := entryMap.Set(fieldEditedAt, isoTimestamp(now)); err != nil {
		return err
	}
	_, err = doc.Commit(ActionEditBulletin)
	return err
}

func applyDeleteBulletin(doc *automerge.Doc, caller UserID, action BulletinAction) error {
	bulletinID, err := NewBulletinID(action.BulletinID)
	if err != nil {
		return BadRequestf("invalid bulletin id")
	}
	bulletins, err := bulletinEntries(doc)
	if err != nil {
		return err
	}
	entryMap, index, err := findMapByID(bulletins, bulletinID.String())
	if err != nil {
		return err
	}
	if entryMap == nil {
		return NotFoundf("bulletin %s does not exist", bulletinID)
	}
	authorID, err := requiredString(entryMap, fieldAuthorID)
	if err != nil {
		return err
	}
	if authorID != caller.String() {
		return Forbiddenf("only the author may delete a bulletin")
	}
	if err := bulletins.Delete(index); err != nil {
		return err
	}
	_, err = doc.Commit(ActionDeleteBulletin)
	return err
}

func authoredBulletinMap(doc *automerge.Doc, caller UserID, rawBulletinID string) (*automerge.Map, error) {
	bulletinID, err := NewBulletinID(rawBulletinID)
	if err != nil {
		return nil, BadRequestf("invalid bulletin id")
	}
	bulletins, err := bulletinEntries(doc)
	if err != nil {
		return nil, err
	}
	entryMap, _, err := findMapByID(bulletins, bulletinID.String())
	if err != nil {
		return nil, err
	}
	if entryMap == nil {
		return nil, NotFoundf("bulletin %s does not exist", bulletinID)
	}
	authorID, err := requiredString(entryMap, fieldAuthorID)
	if err != nil {
		return nil, err
	}
	if authorID != caller.String() {
		return nil, Forbiddenf("only the author may edit a bulletin")
	}
	return entryMap, nil
}
