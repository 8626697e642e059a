package board

// VisibleTo reports whether the user may read the list behind the entry.
func VisibleTo(entry ListEntry, userID UserID) bool {
	if entry.Visibility == string(VisibilityPublic) {
		return true
	}
	if entry.OwnerID == userID.String() {
		return true
	}
	for _, collaborator := range entry.Collaborators {
		if collaborator == userID.String() {
			return true
		}
	}
	return false
}

// EditableTo reports whether the user may mutate the list's items. Archived
// lists are read-only for everyone, including the owner.
func EditableTo(entry ListEntry, userID UserID) bool {
	if entry.Archived {
		return false
	}
	if entry.Visibility == string(VisibilityPublic) {
		return true
	}
	return VisibleTo(entry, userID)
}

// OwnedBy reports whether the user owns the entry. Registry metadata
// operations require ownership.
func OwnedBy(entry ListEntry, userID UserID) bool {
	return entry.OwnerID == userID.String()
}

// BulletinVisibleTo reports whether the user may read a bulletin.
func BulletinVisibleTo(bulletin Bulletin, userID UserID) bool {
	if bulletin.Visibility == string(VisibilityPublic) {
		return true
	}
	return bulletin.AuthorID == userID.String()
}

// BulletinAuthoredBy reports whether the user may edit or delete a bulletin.
func BulletinAuthoredBy(bulletin Bulletin, userID UserID) bool {
	return bulletin.AuthorID == userID.String()
}
