package board

import (
	"fmt"

	"github.com/automerge/automerge-go"
)

// Field names inside the automerge documents.
const (
	fieldLists         = "lists"
	fieldBulletins     = "bulletins"
	fieldListID        = "listId"
	fieldItems         = "items"
	fieldID            = "id"
	fieldOwnerID       = "ownerId"
	fieldAuthorID      = "authorId"
	fieldName          = "name"
	fieldLabel         = "label"
	fieldText          = "text"
	fieldNotes         = "notes"
	fieldQuantity      = "quantity"
	fieldVendor        = "vendor"
	fieldCreatedAt     = "createdAt"
	fieldUpdatedAt     = "updatedAt"
	fieldEditedAt      = "editedAt"
	fieldVisibility    = "visibility"
	fieldCollaborators = "collaborators"
	fieldArchived      = "archived"
	fieldAddedBy       = "addedBy"
	fieldChecked       = "checked"
)

// NewEmptyDocument initializes a document of the shape required by the key.
func NewEmptyDocument(key DocKey) (*automerge.Doc, error) {
	doc := automerge.New()
	switch key.Kind() {
	case DocKindRegistry:
		if err := doc.Path(fieldLists).Set(automerge.NewList()); err != nil {
			return nil, err
		}
	case DocKindBulletins:
		if err := doc.Path(fieldBulletins).Set(automerge.NewList()); err != nil {
			return nil, err
		}
	case DocKindList:
		if err := doc.Path(fieldListID).Set(key.ListID().String()); err != nil {
			return nil, err
		}
		if err := doc.Path(fieldItems).Set(automerge.NewList()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("board: cannot initialize document for zero key")
	}
	if _, err := doc.Commit("init " + key.String()); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadDocument deserializes an opaque blob into a live document handle.
func LoadDocument(raw []byte) (*automerge.Doc, error) {
	return automerge.Load(raw)
}

// SaveDocument serializes a document into its opaque blob form.
func SaveDocument(doc *automerge.Doc) []byte {
	return doc.Save()
}

func registryEntries(doc *automerge.Doc) (*automerge.List, error) {
	return docList(doc, fieldLists)
}

func bulletinEntries(doc *automerge.Doc) (*automerge.List, error) {
	return docList(doc, fieldBulletins)
}

func listItems(doc *automerge.Doc) (*automerge.List, error) {
	return docList(doc, fieldItems)
}

func docList(doc *automerge.Doc, field string) (*automerge.List, error) {
	value, err := doc.Path(field).Get()
	if err != nil {
		return nil, err
	}
	if value.Kind() != automerge.KindList {
		return nil, fmt.Errorf("board: document field %q is not a list", field)
	}
	return value.List(), nil
}

// DecodeRegistry reads every registry entry into plain data.
func DecodeRegistry(doc *automerge.Doc) ([]ListEntry, error) {
	entries, err := registryEntries(doc)
	if err != nil {
		return nil, err
	}
	result := make([]ListEntry, 0, entries.Len())
	for index := 0; index < entries.Len(); index++ {
		entryMap, err := listMapAt(entries, index)
		if err != nil {
			return nil, err
		}
		entry, err := decodeListEntry(entryMap)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, nil
}

// FindListEntry locates the registry entry for a list identifier.
func FindListEntry(doc *automerge.Doc, listID ListID) (ListEntry, bool, error) {
	entries, err := DecodeRegistry(doc)
	if err != nil {
		return ListEntry{}, false, err
	}
	for _, entry := range entries {
		if entry.ID == listID.String() {
			return entry, true, nil
		}
	}
	return ListEntry{}, false, nil
}

// DecodeBulletins reads every bulletin into plain data.
func DecodeBulletins(doc *automerge.Doc) ([]Bulletin, error) {
	entries, err := bulletinEntries(doc)
	if err != nil {
		return nil, err
	}
	result := make([]Bulletin, 0, entries.Len())
	for index := 0; index < entries.Len(); index++ {
		entryMap, err := listMapAt(entries, index)
		if err != nil {
			return nil, err
		}
		bulletin, err := decodeBulletin(entryMap)
		if err != nil {
			return nil, err
		}
		result = append(result, bulletin)
	}
	return result, nil
}

// DecodeList reads a per-list document into plain data.
func DecodeList(doc *automerge.Doc) (ListDocument, error) {
	listIDValue, err := doc.Path(fieldListID).Get()
	if err != nil {
		return ListDocument{}, err
	}
	if listIDValue.Kind() != automerge.KindStr {
		return ListDocument{}, fmt.Errorf("board: list document is missing its %s field", fieldListID)
	}
	listID, err := NewListID(listIDValue.Str())
	if err != nil {
		return ListDocument{}, err
	}

	items, err := listItems(doc)
	if err != nil {
		return ListDocument{}, err
	}
	decoded := make([]Item, 0, items.Len())
	for index := 0; index < items.Len(); index++ {
		itemMap, err := listMapAt(items, index)
		if err != nil {
			return ListDocument{}, err
		}
		item, err := decodeItem(itemMap)
		if err != nil {
			return ListDocument{}, err
		}
		decoded = append(decoded, item)
	}
	return ListDocument{ListID: listID, Items: decoded}, nil
}

func decodeListEntry(entryMap *automerge.Map) (ListEntry, error) {
	entry := ListEntry{}
	var err error
	if entry.ID, err = requiredString(entryMap, fieldID); err != nil {
		return ListEntry{}, err
	}
	if entry.OwnerID, err = requiredString(entryMap, fieldOwnerID); err != nil {
		return ListEntry{}, err
	}
	if entry.Name, err = requiredString(entryMap, fieldName); err != nil {
		return ListEntry{}, err
	}
	if entry.CreatedAt, err = requiredString(entryMap, fieldCreatedAt); err != nil {
		return ListEntry{}, err
	}
	if entry.UpdatedAt, _, err = optionalString(entryMap, fieldUpdatedAt); err != nil {
		return ListEntry{}, err
	}
	if entry.Visibility, err = requiredString(entryMap, fieldVisibility); err != nil {
		return ListEntry{}, err
	}
	if entry.Collaborators, err = stringSlice(entryMap, fieldCollaborators); err != nil {
		return ListEntry{}, err
	}
	if entry.Archived, err = boolField(entryMap, fieldArchived); err != nil {
		return ListEntry{}, err
	}
	return entry, nil
}

func decodeItem(itemMap *automerge.Map) (Item, error) {
	item := Item{}
	var err error
	if item.ID, err = requiredString(itemMap, fieldID); err != nil {
		return Item{}, err
	}
	if item.Label, err = requiredString(itemMap, fieldLabel); err != nil {
		return Item{}, err
	}
	if item.CreatedAt, err = requiredString(itemMap, fieldCreatedAt); err != nil {
		return Item{}, err
	}
	if item.AddedBy, err = requiredString(itemMap, fieldAddedBy); err != nil {
		return Item{}, err
	}
	if item.Quantity, _, err = optionalString(itemMap, fieldQuantity); err != nil {
		return Item{}, err
	}
	if item.Vendor, _, err = optionalString(itemMap, fieldVendor); err != nil {
		return Item{}, err
	}
	if item.Notes, _, err = optionalString(itemMap, fieldNotes); err != nil {
		return Item{}, err
	}
	if item.Checked, err = boolField(itemMap, fieldChecked); err != nil {
		return Item{}, err
	}
	return item, nil
}

func decodeBulletin(entryMap *automerge.Map) (Bulletin, error) {
	bulletin := Bulletin{}
	var err error
	if bulletin.ID, err = requiredString(entryMap, fieldID); err != nil {
		return Bulletin{}, err
	}
	if bulletin.AuthorID, err = requiredString(entryMap, fieldAuthorID); err != nil {
		return Bulletin{}, err
	}
	if bulletin.Text, err = requiredString(entryMap, fieldText); err != nil {
		return Bulletin{}, err
	}
	if bulletin.CreatedAt, err = requiredString(entryMap, fieldCreatedAt); err != nil {
		return Bulletin{}, err
	}
	if bulletin.EditedAt, _, err = optionalString(entryMap, fieldEditedAt); err != nil {
		return Bulletin{}, err
	}
	if bulletin.Visibility, err = requiredString(entryMap, fieldVisibility); err != nil {
		return Bulletin{}, err
	}
	return bulletin, nil
}

func listMapAt(list *automerge.List, index int) (*automerge.Map, error) {
	value, err := list.Get(index)
	if err != nil {
		return nil, err
	}
	if value.Kind() != automerge.KindMap {
		return nil, fmt.Errorf("board: list element %d is not a map", index)
	}
	return value.Map(), nil
}

func requiredString(container *automerge.Map, field string) (string, error) {
	value, present, err := optionalString(container, field)
	if err != nil {
		return "", err
	}
	if !present {
		return "", fmt.Errorf("board: document field %q is missing", field)
	}
	return value, nil
}

// optionalString reads a plain string or collaborative text field.
func optionalString(container *automerge.Map, field string) (string, bool, error) {
	value, err := container.Get(field)
	if err != nil {
		return "", false, err
	}
	switch value.Kind() {
	case automerge.KindVoid:
		return "", false, nil
	case automerge.KindStr:
		return value.Str(), true, nil
	case automerge.KindText:
		text, err := value.Text().Get()
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	default:
		return "", false, fmt.Errorf("board: document field %q is not textual", field)
	}
}

func boolField(container *automerge.Map, field string) (bool, error) {
	value, err := container.Get(field)
	if err != nil {
		return false, err
	}
	switch value.Kind() {
	case automerge.KindVoid:
		return false, nil
	case automerge.KindBool:
		return value.Bool(), nil
	default:
		return false, fmt.Errorf("board: document field %q is not a bool", field)
	}
}

func stringSlice(container *automerge.Map, field string) ([]string, error) {
	value, err := container.Get(field)
	if err != nil {
		return nil, err
	}
	if value.Kind() == automerge.KindVoid {
		return []string{}, nil
	}
	if value.Kind() != automerge.KindList {
		return nil, fmt.Errorf("board: document field %q is not a list", field)
	}
	list := value.List()
	result := make([]string, 0, list.Len())
	for index := 0; index < list.Len(); index++ {
		element, err := list.Get(index)
		if err != nil {
			return nil, err
		}
		if element.Kind() != automerge.KindStr {
			return nil, fmt.Errorf("board: document field %q holds a non-string element", field)
		}
		result = append(result, element.Str())
	}
	return result, nil
}

// setTextField replaces the full content of a collaborative text field,
// creating the field when absent.
func setTextField(container *automerge.Map, field, content string) error {
	value, err := container.Get(field)
	if err != nil {
		return err
	}
	if value.Kind() == automerge.KindText {
		return value.Text().Set(content)
	}
	return container.Set(field, automerge.NewText(content))
}

// clearMapField removes an optional field; clearing an absent field is a
// no-op.
func clearMapField(container *automerge.Map, field string) error {
	value, err := container.Get(field)
	if err != nil {
		return err
	}
	if value.Kind() == automerge.KindVoid {
		return nil
	}
	return container.Delete(field)
}

func findMapByID(list *automerge.List, id string) (*automerge.Map, int, error) {
	for index := 0; index < list.Len(); index++ {
		entryMap, err := listMapAt(list, index)
		if err != nil {
			return nil, -1, err
		}
		entryID, err := requiredString(entryMap, fieldID)
		if err != nil {
			return nil, -1, err
		}
		if entryID == id {
			return entryMap, index, nil
		}
	}
	return nil, -1, nil
}
