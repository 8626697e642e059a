package board

import (
	"strings"
	"time"

	"github.com/automerge/automerge-go"
)

// Registry action types.
const (
	ActionCreateList           = "create_list"
	ActionRenameList           = "rename_list"
	ActionUpdateListVisibility = "update_list_visibility"
	ActionSetCollaborators     = "set_collaborators"
	ActionArchiveList          = "archive_list"
	ActionRestoreList          = "restore_list"
	ActionDeleteList           = "delete_list"
)

// RegistryAction is the wire payload of a registry mutation.
type RegistryAction struct {
	Type          string   `json:"type"`
	ListID        string   `json:"listId,omitempty"`
	Name          string   `json:"name,omitempty"`
	Visibility    string   `json:"visibility,omitempty"`
	Collaborators []string `json:"collaborators,omitempty"`
}

// RegistryOutcome reports document-lifecycle side effects of a registry action.
type RegistryOutcome struct {
	CreatedListID ListID
	DeletedListID ListID
}

func isoTimestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

// ApplyRegistryAction validates and applies one registry mutation as a
// single commit on the registry document.
func ApplyRegistryAction(doc *automerge.Doc, caller UserID, action RegistryAction, now time.Time, ids IDProvider) (RegistryOutcome, error) {
	switch action.Type {
	case ActionCreateList:
		return applyCreateList(doc, caller, action, now, ids)
	case ActionRenameList:
		return RegistryOutcome{}, applyRenameList(doc, caller, action, now)
	case ActionUpdateListVisibility:
		return RegistryOutcome{}, applyUpdateListVisibility(doc, caller, action, now)
	case ActionSetCollaborators:
		return RegistryOutcome{}, applySetCollaborators(doc, caller, action, now)
	case ActionArchiveList:
		return RegistryOutcome{}, applySetArchived(doc, caller, action, now, true)
	case ActionRestoreList:
		return RegistryOutcome{}, applySetArchived(doc, caller, action, now, false)
	case ActionDeleteList:
		return applyDeleteList(doc, caller, action)
	default:
		return RegistryOutcome{}, BadRequestf("unknown registry action %q", action.Type)
	}
}

func applyCreateList(doc *automerge.Doc, caller UserID, action RegistryAction, now time.Time, ids IDProvider) (RegistryOutcome, error) {
	name, err := validateRequiredText(action.Name, MaxNameLength, "name")
	if err != nil {
		return RegistryOutcome{}, err
	}
	visibility := VisibilityPrivate
	if strings.TrimSpace(action.Visibility) != "" {
		visibility, err = ParseVisibility(action.Visibility)
		if err != nil {
			return RegistryOutcome{}, BadRequestf("invalid visibility %q", action.Visibility)
		}
	}

	entries, err := DecodeRegistry(doc)
	if err != nil {
		return RegistryOutcome{}, err
	}
	owned := 0
	for _, entry := range entries {
		if entry.OwnerID == caller.String() && !entry.Archived {
			owned++
		}
	}
	if owned >= MaxOwnedLists {
		return RegistryOutcome{}, BadRequestf("list cap of %d reached", MaxOwnedLists)
	}

	rawID, err := ids.NewID()
	if err != nil {
		return RegistryOutcome{}, err
	}
	listID, err := NewListID(rawID)
	if err != nil {
		return RegistryOutcome{}, err
	}

	lists, err := registryEntries(doc)
	if err != nil {
		return RegistryOutcome{}, err
	}
	entryMap := automerge.NewMap()
	if err := lists.Append(entryMap); err != nil {
		return RegistryOutcome{}, err
	}
	if err := entryMap.Set(fieldID, listID.String()); err != nil {
		return RegistryOutcome{}, err
	}
	if err := entryMap.Set(fieldOwnerID, caller.String()); err != nil {
		return RegistryOutcome{}, err
	}
	if err := entryMap.Set(fieldName, automerge.NewText(name)); err != nil {
		return RegistryOutcome{}, err
	}
	if err := entryMap.Set(fieldCreatedAt, isoTimestamp(now)); err != nil {
		return RegistryOutcome{}, err
	}
	if err := entryMap.Set(fieldVisibility, string(visibility)); err != nil {
		return RegistryOutcome{}, err
	}
	if err := entryMap.Set(fieldCollaborators, automerge.NewList()); err != nil {
		return RegistryOutcome{}, err
	}
	if err := entryMap.Set(fieldArchived, false); err != nil {
		return RegistryOutcome{}, err
	}
	if _, err := doc.Commit(ActionCreateList); err != nil {
		return RegistryOutcome{}, err
	}
	return RegistryOutcome{CreatedListID: listID}, nil
}

func applyRenameList(doc *automerge.Doc, caller UserID, action RegistryAction, now time.Time) error {
	name, err := validateRequiredText(action.Name, MaxNameLength, "name")
	if err != nil {
		return err
	}
	entryMap, err := ownedEntryMap(doc, caller, action.ListID)
	if err != nil {
		return err
	}
	if err := setTextField(entryMap, fieldName, name); err != nil {
		return err
	}
	if err := entryMap.Set(fieldUpdatedAt, isoTimestamp(now)); err != nil {
		return err
	}
	_, err = doc.Commit(ActionRenameList)
	return err
}

func applyUpdateListVisibility(doc *automerge.Doc, caller UserID, action RegistryAction, now time.Time) error {
	visibility, err := ParseVisibility(action.Visibility)
	if err != nil {
		return BadRequestf("invalid visibility %q", action.Visibility)
	}
	entryMap, err := ownedEntryMap(doc, caller, action.ListID)
	if err != nil {
		return err
	}
	if err := entryMap.Set(fieldVisibility, string(visibility)); err != nil {
		return err
	}
	if err := entryMap.Set(fieldUpdatedAt, isoTimestamp(now)); err != nil {
		return err
	}
	_, err = doc.Commit(ActionUpdateListVisibility)
	return err
}

func applySetCollaborators(doc *automerge.Doc, caller UserID, action RegistryAction, now time.Time) error {
	collaborators := make([]string, 0, len(action.Collaborators))
	seen := make(map[string]struct{}, len(action.Collaborators))
	for _, raw := range action.Collaborators {
		collaborator, err := NewUserID(raw)
		if err != nil {
			return BadRequestf("invalid collaborator id %q", raw)
		}
		if collaborator == caller {
			continue
		}
		if _, duplicate := seen[collaborator.String()]; duplicate {
			continue
		}
		seen[collaborator.String()] = struct{}{}
		collaborators = append(collaborators, collaborator.String())
	}

	entryMap, err := ownedEntryMap(doc, caller, action.ListID)
	if err != nil {
		return err
	}
	// Collaborator ids the entry owner listed may include the owner; the
	// filter above keeps the set disjoint from ownerId.
	if err := entryMap.Set(fieldCollaborators, collaborators); err != nil {
		return err
	}
	if err := entryMap.Set(fieldUpdatedAt, isoTimestamp(now)); err != nil {
		return err
	}
	_, err = doc.Commit(ActionSetCollaborators)
	return err
}

func applySetArchived(doc *automerge.Doc, caller UserID, action RegistryAction, now time.Time, archived bool) error {
	entryMap, err := ownedEntryMap(doc, caller, action.ListID)
	if err != nil {
		return err
	}
	if err := entryMap.Set(fieldArchived, archived); err != nil {
		return err
	}
	if err := entryMap.Set(fieldUpdatedAt, isoTimestamp(now)); err != nil {
		return err
	}
	commitMessage := ActionArchiveList
	if !archived {
		commitMessage = ActionRestoreList
	}
	_, err = doc.Commit(commitMessage)
	return err
}

func applyDeleteList(doc *automerge.Doc, caller UserID, action RegistryAction) (RegistryOutcome, error) {
	listID, err := NewListID(action.ListID)
	if err != nil {
		return RegistryOutcome{}, BadRequestf("invalid list id")
	}
	lists, err := registryEntries(doc)
	if err != nil {
		return RegistryOutcome{}, err
	}
	entryMap, index, err := findMapByID(lists, listID.String())
	if err != nil {
		return RegistryOutcome{}, err
	}
	if entryMap == nil {
		return RegistryOutcome{}, NotFoundf("list %s does not exist", listID)
	}
	ownerID, err := requiredString(entryMap, fieldOwnerID)
	if err != nil {
		return RegistryOutcome{}, err
	}
	if ownerID != caller.String() {
		return RegistryOutcome{}, Forbiddenf("only the owner may delete a list")
	}
	if err := lists.Delete(index); err != nil {
		return RegistryOutcome{}, err
	}
	if _, err := doc.Commit(ActionDeleteList); err != nil {
		return RegistryOutcome{}, err
	}
	return RegistryOutcome{DeletedListID: listID}, nil
}

// TouchListEntry refreshes a registry entry's updatedAt after an item-level
// mutation of its list document.
func TouchListEntry(doc *automerge.Doc, listID ListID, now time.Time) error {
	lists, err := registryEntries(doc)
	if err != nil {
		return err
	}
	entryMap, _, err := findMapByID(lists, listID.String())
	if err != nil {
		return err
	}
	if entryMap == nil {
		return NotFoundf("list %s does not exist", listID)
	}
	stamp := isoTimestamp(now)
	current, _, err := optionalString(entryMap, fieldUpdatedAt)
	if err != nil {
		return err
	}
	if current == stamp {
		// Already stamped this second: there is nothing to commit.
		return nil
	}
	if err := entryMap.Set(fieldUpdatedAt, stamp); err != nil {
		return err
	}
	_, err = doc.Commit("touch " + listID.String())
	return err
}

func ownedEntryMap(doc *automerge.Doc, caller UserID, rawListID string) (*automerge.Map, error) {
	listID, err := NewListID(rawListID)
	if err != nil {
		return nil, BadRequestf("invalid list id")
	}
	lists, err := registryEntries(doc)
	if err != nil {
		return nil, err
	}
	entryMap, _, err := findMapByID(lists, listID.String())
	if err != nil {
		return nil, err
	}
	if entryMap == nil {
		return nil, NotFoundf("list %s does not exist", listID)
	}
	ownerID, err := requiredString(entryMap, fieldOwnerID)
	if err != nil {
		return nil, err
	}
	if ownerID != caller.String() {
		return nil, Forbiddenf("only the owner may modify list metadata")
	}
	return entryMap, nil
}

// validateRequiredText trims and bounds a mandatory text input.
func validateRequiredText(raw string, limit int, field string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", BadRequestf("%s must not be empty", field)
	}
	if len([]rune(trimmed)) > limit {
		return "", BadRequestf("%s exceeds %d characters", field, limit)
	}
	return trimmed, nil
}

// validateOptionalText trims and bounds an optional text input; empty after
// trimming means absent.
func validateOptionalText(raw string, limit int, field string) (string, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false, nil
	}
	if len([]rune(trimmed)) > limit {
		return "", false, BadRequestf("%s exceeds %d characters", field, limit)
	}
	return trimmed, true, nil
}
