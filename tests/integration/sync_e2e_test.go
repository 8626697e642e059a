package integration

import (
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/MarcoPoloResearchLab/tandem/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/tandem/backend/internal/board"
	"github.com/MarcoPoloResearchLab/tandem/backend/internal/server"
	"github.com/MarcoPoloResearchLab/tandem/backend/internal/storage"
)

const frameReadLimit = 300

type testBackend struct {
	httpServer *httptest.Server
	hub        *server.Hub
}

func startBackend(testContext *testing.T, dataDir string) *testBackend {
	testContext.Helper()
	gin.SetMode(gin.ReleaseMode)

	store, err := storage.NewFileStore(dataDir)
	if err != nil {
		testContext.Fatalf("failed to create file store: %v", err)
	}
	docs, err := storage.NewDocStore(storage.DocStoreConfig{Store: store})
	if err != nil {
		testContext.Fatalf("failed to create doc store: %v", err)
	}
	hub, err := server.NewHub(server.HubConfig{Docs: docs})
	if err != nil {
		testContext.Fatalf("failed to create hub: %v", err)
	}
	if err := hub.LoadBaseDocuments(); err != nil {
		testContext.Fatalf("failed to load base documents: %v", err)
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Hub:        hub,
		Identifier: auth.NewIdentifier(nil),
	})
	if err != nil {
		testContext.Fatalf("failed to create handler: %v", err)
	}
	httpServer := httptest.NewServer(handler)
	testContext.Cleanup(httpServer.Close)
	return &testBackend{httpServer: httpServer, hub: hub}
}

type wireFrame struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId"`
	Doc     json.RawMessage `json:"doc"`
	State   json.RawMessage `json:"state"`
	Data    string          `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

type registryState struct {
	Lists []struct {
		ID         string `json:"id"`
		OwnerID    string `json:"ownerId"`
		Name       string `json:"name"`
		Visibility string `json:"visibility"`
		Archived   bool   `json:"archived"`
	} `json:"lists"`
}

type bulletinsState struct {
	Bulletins []struct {
		ID         string `json:"id"`
		AuthorID   string `json:"authorId"`
		Text       string `json:"text"`
		Visibility string `json:"visibility"`
	} `json:"bulletins"`
}

type listState struct {
	ListID string `json:"listId"`
	Items  []struct {
		ID       string `json:"id"`
		Label    string `json:"label"`
		Quantity string `json:"quantity"`
		Checked  bool   `json:"checked"`
	} `json:"items"`
}

func dialUser(testContext *testing.T, backend *testBackend, username string) *websocket.Conn {
	testContext.Helper()
	wsURL := "ws" + strings.TrimPrefix(backend.httpServer.URL, "http") + "/ws?username=" + username
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		testContext.Fatalf("failed to dial %s: %v", wsURL, err)
	}
	testContext.Cleanup(func() { _ = conn.Close() })
	if err := conn.SetReadDeadline(time.Now().Add(15 * time.Second)); err != nil {
		testContext.Fatalf("failed to set read deadline: %v", err)
	}

	welcome := readFrame(testContext, conn)
	if welcome.Type != "welcome" || welcome.UserID != "user-"+username {
		testContext.Fatalf("expected welcome for user-%s, got %+v", username, welcome)
	}
	return conn
}

func readFrame(testContext *testing.T, conn *websocket.Conn) wireFrame {
	testContext.Helper()
	var frame wireFrame
	if err := conn.ReadJSON(&frame); err != nil {
		testContext.Fatalf("failed to read frame: %v", err)
	}
	return frame
}

func readUntil(testContext *testing.T, conn *websocket.Conn, description string, match func(wireFrame) bool) wireFrame {
	testContext.Helper()
	for attempt := 0; attempt < frameReadLimit; attempt++ {
		frame := readFrame(testContext, conn)
		if match(frame) {
			return frame
		}
	}
	testContext.Fatalf("gave up waiting for %s", description)
	return wireFrame{}
}

func sendFrame(testContext *testing.T, conn *websocket.Conn, frame map[string]interface{}) {
	testContext.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		testContext.Fatalf("failed to send frame: %v", err)
	}
}

func docIsRegistry(doc json.RawMessage) bool {
	return string(doc) == `"registry"`
}

func docIsBulletins(doc json.RawMessage) bool {
	return string(doc) == `"bulletins"`
}

func docIsList(doc json.RawMessage, listID string) bool {
	var selector struct {
		ListID string `json:"listId"`
	}
	if err := json.Unmarshal(doc, &selector); err != nil {
		return false
	}
	return selector.ListID == listID
}

func registrySnapshotWithList(testContext *testing.T, frame wireFrame, name string) (registryState, bool) {
	testContext.Helper()
	if frame.Type != "snapshot" || !docIsRegistry(frame.Doc) {
		return registryState{}, false
	}
	var state registryState
	if err := json.Unmarshal(frame.State, &state); err != nil {
		testContext.Fatalf("malformed registry snapshot: %v", err)
	}
	for _, entry := range state.Lists {
		if entry.Name == name {
			return state, true
		}
	}
	return registryState{}, false
}

func createList(testContext *testing.T, conn *websocket.Conn, name, visibility string) string {
	testContext.Helper()
	sendFrame(testContext, conn, map[string]interface{}{
		"type": "registry_action",
		"action": map[string]interface{}{
			"type":       "create_list",
			"name":       name,
			"visibility": visibility,
		},
	})
	frame := readUntil(testContext, conn, "registry snapshot with "+name, func(frame wireFrame) bool {
		_, found := registrySnapshotWithList(testContext, frame, name)
		return found
	})
	state, _ := registrySnapshotWithList(testContext, frame, name)
	for _, entry := range state.Lists {
		if entry.Name == name {
			return entry.ID
		}
	}
	return ""
}

func TestPublicListVisibleToEveryone(testContext *testing.T) {
	backend := startBackend(testContext, testContext.TempDir())
	alice := dialUser(testContext, backend, "alice")
	bob := dialUser(testContext, backend, "bob")

	listID := createList(testContext, alice, "Groceries", "public")
	if listID == "" {
		testContext.Fatalf("expected a list id in alice's snapshot")
	}

	frame := readUntil(testContext, bob, "bob's registry snapshot with Groceries", func(frame wireFrame) bool {
		_, found := registrySnapshotWithList(testContext, frame, "Groceries")
		return found
	})
	state, _ := registrySnapshotWithList(testContext, frame, "Groceries")
	for _, entry := range state.Lists {
		if entry.Name == "Groceries" {
			if entry.OwnerID != "user-alice" || entry.Visibility != "public" {
				testContext.Fatalf("unexpected entry in bob's snapshot: %+v", entry)
			}
		}
	}
}

func TestPrivateListHiddenFromOthers(testContext *testing.T) {
	backend := startBackend(testContext, testContext.TempDir())
	alice := dialUser(testContext, backend, "alice")
	bob := dialUser(testContext, backend, "bob")

	listID := createList(testContext, alice, "Diary", "private")

	sendFrame(testContext, bob, map[string]interface{}{"type": "request_full_state", "doc": "registry"})
	frame := readUntil(testContext, bob, "bob's registry snapshot", func(frame wireFrame) bool {
		return frame.Type == "snapshot" && docIsRegistry(frame.Doc)
	})
	var state registryState
	if err := json.Unmarshal(frame.State, &state); err != nil {
		testContext.Fatalf("malformed registry snapshot: %v", err)
	}
	for _, entry := range state.Lists {
		if entry.Name == "Diary" {
			testContext.Fatalf("private list leaked into bob's registry snapshot")
		}
	}

	sendFrame(testContext, bob, map[string]interface{}{
		"type": "subscribe",
		"doc":  map[string]interface{}{"listId": listID},
	})
	errorFrame := readUntil(testContext, bob, "subscription rejection", func(frame wireFrame) bool {
		return frame.Type == "error"
	})
	if errorFrame.Code != "FORBIDDEN" {
		testContext.Fatalf("expected FORBIDDEN, got %s (%s)", errorFrame.Code, errorFrame.Message)
	}
}

func TestCollaborativeEditViaSyncPath(testContext *testing.T) {
	backend := startBackend(testContext, testContext.TempDir())
	alice := dialUser(testContext, backend, "alice")
	bob := dialUser(testContext, backend, "bob")

	listID := createList(testContext, alice, "Groceries", "public")

	sendFrame(testContext, alice, map[string]interface{}{
		"type":   "list_action",
		"listId": listID,
		"action": map[string]interface{}{"type": "add_item", "label": "Milk"},
	})
	sendFrame(testContext, alice, map[string]interface{}{
		"type": "subscribe",
		"doc":  map[string]interface{}{"listId": listID},
	})
	readUntil(testContext, alice, "alice's list snapshot with Milk", func(frame wireFrame) bool {
		return listSnapshotHasLabel(frame, listID, "Milk")
	})

	// Bob replicates the list into a local automerge doc over the sync path.
	sendFrame(testContext, bob, map[string]interface{}{
		"type": "subscribe",
		"doc":  map[string]interface{}{"listId": listID},
	})
	bobDoc := automerge.New()
	syncState := automerge.NewSyncState(bobDoc)

	for attempt := 0; attempt < frameReadLimit; attempt++ {
		if bobDocHasLabel(testContext, bobDoc, "Milk") {
			break
		}
		frame := readFrame(testContext, bob)
		if frame.Type != "sync" || !docIsList(frame.Doc, listID) {
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(frame.Data)
		if err != nil {
			testContext.Fatalf("sync frame is not base64: %v", err)
		}
		if _, err := syncState.ReceiveMessage(payload); err != nil {
			testContext.Fatalf("failed to receive sync message: %v", err)
		}
		sendGeneratedMessages(testContext, bob, listID, syncState)
	}
	if !bobDocHasLabel(testContext, bobDoc, "Milk") {
		testContext.Fatalf("bob's replica never converged on the Milk item")
	}

	// Bob renames the item locally and pushes the change through sync.
	labelValue, err := bobDoc.Path("items", 0, "label").Get()
	if err != nil {
		testContext.Fatalf("failed to resolve label text: %v", err)
	}
	if err := labelValue.Text().Set("Milk 2%"); err != nil {
		testContext.Fatalf("failed to edit label text: %v", err)
	}
	if _, err := bobDoc.Commit("rename item"); err != nil {
		testContext.Fatalf("failed to commit local edit: %v", err)
	}
	sendGeneratedMessages(testContext, bob, listID, syncState)

	readUntil(testContext, alice, "alice's snapshot with the merged edit", func(frame wireFrame) bool {
		return listSnapshotHasLabel(frame, listID, "Milk 2%")
	})
}

func listSnapshotHasLabel(frame wireFrame, listID, label string) bool {
	if frame.Type != "snapshot" || !docIsList(frame.Doc, listID) {
		return false
	}
	var state listState
	if err := json.Unmarshal(frame.State, &state); err != nil {
		return false
	}
	for _, item := range state.Items {
		if item.Label == label {
			return true
		}
	}
	return false
}

func bobDocHasLabel(testContext *testing.T, doc *automerge.Doc, label string) bool {
	testContext.Helper()
	decoded, err := board.DecodeList(doc)
	if err != nil {
		return false
	}
	for _, item := range decoded.Items {
		if item.Label == label {
			return true
		}
	}
	return false
}

func sendGeneratedMessages(testContext *testing.T, conn *websocket.Conn, listID string, syncState *automerge.SyncState) {
	testContext.Helper()
	for {
		message, valid := syncState.GenerateMessage()
		if !valid {
			return
		}
		sendFrame(testContext, conn, map[string]interface{}{
			"type": "sync",
			"doc":  map[string]interface{}{"listId": listID},
			"data": base64.StdEncoding.EncodeToString(message.Bytes()),
		})
	}
}

func TestBulletinPrivacy(testContext *testing.T) {
	backend := startBackend(testContext, testContext.TempDir())
	alice := dialUser(testContext, backend, "alice")
	bob := dialUser(testContext, backend, "bob")

	for _, bulletin := range []map[string]interface{}{
		{"type": "add_bulletin", "text": "hi", "visibility": "public"},
		{"type": "add_bulletin", "text": "secret", "visibility": "private"},
	} {
		sendFrame(testContext, alice, map[string]interface{}{
			"type":   "bulletin_action",
			"action": bulletin,
		})
	}

	aliceFrame := readUntil(testContext, alice, "alice's bulletins snapshot with both posts", func(frame wireFrame) bool {
		if frame.Type != "snapshot" || !docIsBulletins(frame.Doc) {
			return false
		}
		var state bulletinsState
		if err := json.Unmarshal(frame.State, &state); err != nil {
			return false
		}
		return len(state.Bulletins) == 2
	})
	var aliceState bulletinsState
	if err := json.Unmarshal(aliceFrame.State, &aliceState); err != nil {
		testContext.Fatalf("malformed bulletins snapshot: %v", err)
	}

	sendFrame(testContext, bob, map[string]interface{}{"type": "request_full_state", "doc": "bulletins"})
	bobFrame := readUntil(testContext, bob, "bob's bulletins snapshot with the public post", func(frame wireFrame) bool {
		if frame.Type != "snapshot" || !docIsBulletins(frame.Doc) {
			return false
		}
		var state bulletinsState
		if err := json.Unmarshal(frame.State, &state); err != nil {
			return false
		}
		return len(state.Bulletins) >= 1
	})
	var bobState bulletinsState
	if err := json.Unmarshal(bobFrame.State, &bobState); err != nil {
		testContext.Fatalf("malformed bulletins snapshot: %v", err)
	}
	if len(bobState.Bulletins) != 1 || bobState.Bulletins[0].Text != "hi" {
		testContext.Fatalf("expected bob to see only the public bulletin, got %+v", bobState.Bulletins)
	}
}

func TestRestartDurability(testContext *testing.T) {
	dataDir := testContext.TempDir()

	first := startBackend(testContext, dataDir)
	alice := dialUser(testContext, first, "alice")
	listID := createList(testContext, alice, "Groceries", "public")
	sendFrame(testContext, alice, map[string]interface{}{
		"type":   "list_action",
		"listId": listID,
		"action": map[string]interface{}{"type": "add_item", "label": "Milk"},
	})
	sendFrame(testContext, alice, map[string]interface{}{
		"type": "subscribe",
		"doc":  map[string]interface{}{"listId": listID},
	})
	readUntil(testContext, alice, "alice's list snapshot with Milk", func(frame wireFrame) bool {
		return listSnapshotHasLabel(frame, listID, "Milk")
	})

	if err := first.hub.Flush(); err != nil {
		testContext.Fatalf("flush failed: %v", err)
	}
	_ = alice.Close()
	first.httpServer.Close()

	second := startBackend(testContext, dataDir)
	carol := dialUser(testContext, second, "carol")
	readUntil(testContext, carol, "carol's registry snapshot with Groceries", func(frame wireFrame) bool {
		_, found := registrySnapshotWithList(testContext, frame, "Groceries")
		return found
	})

	sendFrame(testContext, carol, map[string]interface{}{
		"type": "subscribe",
		"doc":  map[string]interface{}{"listId": listID},
	})
	readUntil(testContext, carol, "carol's list snapshot with Milk", func(frame wireFrame) bool {
		return listSnapshotHasLabel(frame, listID, "Milk")
	})
}

func TestRateLimitTripsAfterBurst(testContext *testing.T) {
	backend := startBackend(testContext, testContext.TempDir())
	alice := dialUser(testContext, backend, "alice")

	for attempt := 0; attempt < 41; attempt++ {
		sendFrame(testContext, alice, map[string]interface{}{
			"type":   "bulletin_action",
			"action": map[string]interface{}{"type": "add_bulletin", "text": "post", "visibility": "public"},
		})
	}

	errorFrame := readUntil(testContext, alice, "rate limit rejection", func(frame wireFrame) bool {
		return frame.Type == "error"
	})
	if errorFrame.Code != "RATE_LIMITED" {
		testContext.Fatalf("expected RATE_LIMITED, got %s (%s)", errorFrame.Code, errorFrame.Message)
	}

	sendFrame(testContext, alice, map[string]interface{}{"type": "request_full_state", "doc": "bulletins"})
	frame := readUntil(testContext, alice, "final bulletins snapshot", func(frame wireFrame) bool {
		return frame.Type == "snapshot" && docIsBulletins(frame.Doc)
	})
	var state bulletinsState
	if err := json.Unmarshal(frame.State, &state); err != nil {
		testContext.Fatalf("malformed bulletins snapshot: %v", err)
	}
	if len(state.Bulletins) != 40 {
		testContext.Fatalf("expected exactly 40 accepted bulletins, got %d", len(state.Bulletins))
	}
}
