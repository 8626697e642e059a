package board

import "github.com/automerge/automerge-go"

// ProjectRegistry renders the registry for a viewer, keeping only entries
// the viewer may see.
func ProjectRegistry(doc *automerge.Doc, viewer UserID) (RegistrySnapshot, error) {
	entries, err := DecodeRegistry(doc)
	if err != nil {
		return RegistrySnapshot{}, err
	}
	visible := make([]ListEntry, 0, len(entries))
	for _, entry := range entries {
		if VisibleTo(entry, viewer) {
			visible = append(visible, entry)
		}
	}
	return RegistrySnapshot{Lists: visible}, nil
}

// ProjectBulletins renders the bulletin board for a viewer: public posts
// plus the viewer's own.
func ProjectBulletins(doc *automerge.Doc, viewer UserID) (BulletinsSnapshot, error) {
	bulletins, err := DecodeBulletins(doc)
	if err != nil {
		return BulletinsSnapshot{}, err
	}
	visible := make([]Bulletin, 0, len(bulletins))
	for _, bulletin := range bulletins {
		if BulletinVisibleTo(bulletin, viewer) {
			visible = append(visible, bulletin)
		}
	}
	return BulletinsSnapshot{Bulletins: visible}, nil
}

// ProjectList renders a list document. Authorization is settled at
// subscribe time; the projection itself is viewer-independent.
func ProjectList(doc *automerge.Doc) (ListSnapshot, error) {
	decoded, err := DecodeList(doc)
	if err != nil {
		return ListSnapshot{}, err
	}
	return ListSnapshot{ListID: decoded.ListID.String(), Items: decoded.Items}, nil
}
