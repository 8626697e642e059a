package board

import "testing"

func TestVisibleTo(testContext *testing.T) {
	owner := mustUserID(testContext, "user-alice")
	collaborator := mustUserID(testContext, "user-bob")
	stranger := mustUserID(testContext, "user-mallory")

	publicEntry := ListEntry{ID: "l1", OwnerID: owner.String(), Visibility: string(VisibilityPublic)}
	privateEntry := ListEntry{
		ID:            "l2",
		OwnerID:       owner.String(),
		Visibility:    string(VisibilityPrivate),
		Collaborators: []string{collaborator.String()},
	}

	if !VisibleTo(publicEntry, stranger) {
		testContext.Fatalf("public entries must be visible to everyone")
	}
	if !VisibleTo(privateEntry, owner) {
		testContext.Fatalf("private entries must be visible to the owner")
	}
	if !VisibleTo(privateEntry, collaborator) {
		testContext.Fatalf("private entries must be visible to collaborators")
	}
	if VisibleTo(privateEntry, stranger) {
		testContext.Fatalf("private entries must be hidden from strangers")
	}
}

func TestEditableTo(testContext *testing.T) {
	owner := mustUserID(testContext, "user-alice")
	stranger := mustUserID(testContext, "user-mallory")

	publicEntry := ListEntry{ID: "l1", OwnerID: owner.String(), Visibility: string(VisibilityPublic)}
	if !EditableTo(publicEntry, stranger) {
		testContext.Fatalf("any signed-in user may edit a public list's items")
	}

	archivedEntry := publicEntry
	archivedEntry.Archived = true
	if EditableTo(archivedEntry, owner) {
		testContext.Fatalf("archived lists are read-only for everyone")
	}

	privateEntry := ListEntry{ID: "l2", OwnerID: owner.String(), Visibility: string(VisibilityPrivate)}
	if EditableTo(privateEntry, stranger) {
		testContext.Fatalf("strangers may not edit private lists")
	}
	if !EditableTo(privateEntry, owner) {
		testContext.Fatalf("the owner may edit a private list")
	}
}

func TestBulletinPredicates(testContext *testing.T) {
	author := mustUserID(testContext, "user-alice")
	reader := mustUserID(testContext, "user-bob")

	publicBulletin := Bulletin{ID: "b1", AuthorID: author.String(), Visibility: string(VisibilityPublic)}
	privateBulletin := Bulletin{ID: "b2", AuthorID: author.String(), Visibility: string(VisibilityPrivate)}

	if !BulletinVisibleTo(publicBulletin, reader) {
		testContext.Fatalf("public bulletins must be visible to everyone")
	}
	if BulletinVisibleTo(privateBulletin, reader) {
		testContext.Fatalf("private bulletins must be hidden from other users")
	}
	if !BulletinVisibleTo(privateBulletin, author) {
		testContext.Fatalf("private bulletins must be visible to the author")
	}
	if BulletinAuthoredBy(publicBulletin, reader) {
		testContext.Fatalf("only the author may edit a bulletin")
	}
}
