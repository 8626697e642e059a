package board

import (
	"fmt"
	"testing"
	"time"

	"github.com/automerge/automerge-go"
)

var fixedNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%04d", p.next), nil
}

func mustEmptyDoc(testContext *testing.T, key DocKey) *automerge.Doc {
	testContext.Helper()
	doc, err := NewEmptyDocument(key)
	if err != nil {
		testContext.Fatalf("failed to initialize document: %v", err)
	}
	return doc
}

func mustUserID(testContext *testing.T, raw string) UserID {
	testContext.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		testContext.Fatalf("invalid user id: %v", err)
	}
	return userID
}

func mustCreateList(testContext *testing.T, doc *automerge.Doc, owner UserID, name, visibility string, ids IDProvider) ListID {
	testContext.Helper()
	outcome, err := ApplyRegistryAction(doc, owner, RegistryAction{
		Type:       ActionCreateList,
		Name:       name,
		Visibility: visibility,
	}, fixedNow, ids)
	if err != nil {
		testContext.Fatalf("create_list failed: %v", err)
	}
	if outcome.CreatedListID == "" {
		testContext.Fatalf("create_list returned no list id")
	}
	return outcome.CreatedListID
}

func mustAddItem(testContext *testing.T, doc *automerge.Doc, entry ListEntry, caller UserID, label string, ids IDProvider) Item {
	testContext.Helper()
	if err := ApplyListAction(doc, entry, caller, ListAction{
		Type:  ActionAddItem,
		Label: label,
	}, fixedNow, ids); err != nil {
		testContext.Fatalf("add_item failed: %v", err)
	}
	decoded, err := DecodeList(doc)
	if err != nil {
		testContext.Fatalf("failed to decode list: %v", err)
	}
	if len(decoded.Items) == 0 {
		testContext.Fatalf("expected at least one item after add_item")
	}
	return decoded.Items[len(decoded.Items)-1]
}

func mustFindEntry(testContext *testing.T, doc *automerge.Doc, listID ListID) ListEntry {
	testContext.Helper()
	entry, found, err := FindListEntry(doc, listID)
	if err != nil {
		testContext.Fatalf("failed to look up list entry: %v", err)
	}
	if !found {
		testContext.Fatalf("expected entry for list %s", listID)
	}
	return entry
}

func mustCode(testContext *testing.T, err error, expected ErrorCode) {
	testContext.Helper()
	if err == nil {
		testContext.Fatalf("expected %s error, got nil", expected)
	}
	code, _ := CodeOf(err)
	if code != expected {
		testContext.Fatalf("expected %s error, got %s (%v)", expected, code, err)
	}
}
