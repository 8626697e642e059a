package board

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DocKind enumerates the three document families served by the sync engine.
type DocKind string

const (
	// DocKindRegistry identifies the list-registry document.
	DocKindRegistry DocKind = "registry"
	// DocKindBulletins identifies the bulletin board document.
	DocKindBulletins DocKind = "bulletins"
	// DocKindList identifies a per-list item document.
	DocKindList DocKind = "list"
)

const listBlobPrefix = "list/"

// DocKey selects one synchronized document. The zero value is invalid.
type DocKey struct {
	kind   DocKind
	listID ListID
}

// RegistryKey selects the list registry.
func RegistryKey() DocKey {
	return DocKey{kind: DocKindRegistry}
}

// BulletinsKey selects the bulletin board.
func BulletinsKey() DocKey {
	return DocKey{kind: DocKindBulletins}
}

// ListKey selects the item document for the given list.
func ListKey(listID ListID) DocKey {
	return DocKey{kind: DocKindList, listID: listID}
}

// Kind returns the document family.
func (k DocKey) Kind() DocKind {
	return k.kind
}

// ListID returns the list identifier for list keys, empty otherwise.
func (k DocKey) ListID() ListID {
	return k.listID
}

// IsZero reports whether the key selects no document.
func (k DocKey) IsZero() bool {
	return k.kind == ""
}

// BlobKey returns the persistence key: "registry", "bulletins" or "list/<id>".
func (k DocKey) BlobKey() string {
	if k.kind == DocKindList {
		return listBlobPrefix + k.listID.String()
	}
	return string(k.kind)
}

// String renders the key for logs.
func (k DocKey) String() string {
	return k.BlobKey()
}

// ParseBlobKey reverses BlobKey.
func ParseBlobKey(raw string) (DocKey, error) {
	switch {
	case raw == string(DocKindRegistry):
		return RegistryKey(), nil
	case raw == string(DocKindBulletins):
		return BulletinsKey(), nil
	case strings.HasPrefix(raw, listBlobPrefix):
		listID, err := NewListID(strings.TrimPrefix(raw, listBlobPrefix))
		if err != nil {
			return DocKey{}, err
		}
		return ListKey(listID), nil
	default:
		return DocKey{}, fmt.Errorf("board: unknown blob key %q", raw)
	}
}

type listSelectorPayload struct {
	ListID string `json:"listId"`
}

// MarshalJSON renders the wire selector: "registry", "bulletins" or {"listId": id}.
func (k DocKey) MarshalJSON() ([]byte, error) {
	switch k.kind {
	case DocKindRegistry, DocKindBulletins:
		return json.Marshal(string(k.kind))
	case DocKindList:
		return json.Marshal(listSelectorPayload{ListID: k.listID.String()})
	default:
		return nil, fmt.Errorf("board: cannot marshal zero doc key")
	}
}

// UnmarshalJSON parses the wire selector.
func (k *DocKey) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch name {
		case string(DocKindRegistry):
			*k = RegistryKey()
			return nil
		case string(DocKindBulletins):
			*k = BulletinsKey()
			return nil
		default:
			return fmt.Errorf("board: unknown document selector %q", name)
		}
	}

	var payload listSelectorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("board: malformed document selector")
	}
	listID, err := NewListID(payload.ListID)
	if err != nil {
		return err
	}
	*k = ListKey(listID)
	return nil
}
