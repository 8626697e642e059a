package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/tandem/backend/internal/board"
	"github.com/MarcoPoloResearchLab/tandem/backend/internal/storage"
)

var (
	errMissingDocStore = errors.New("document store dependency required")
	noOpLogger         = zap.NewNop()
)

// Hub owns the connection registry and serializes every document mutation.
// One message is handled at a time under the hub mutex; socket sends leave
// through buffered per-session queues and never block the critical section.
type Hub struct {
	mu       sync.Mutex
	docs     *storage.DocStore
	sessions map[*session]struct{}
	logger   *zap.Logger
	clock    func() time.Time
	ids      board.IDProvider
}

// HubConfig describes the dependencies required by a Hub.
type HubConfig struct {
	Docs       *storage.DocStore
	Logger     *zap.Logger
	Clock      func() time.Time
	IDProvider board.IDProvider
}

// NewHub constructs a Hub with sane defaults.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Docs == nil {
		return nil, errMissingDocStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = board.NewUUIDProvider()
	}
	return &Hub{
		docs:     cfg.Docs,
		sessions: make(map[*session]struct{}),
		logger:   logger,
		clock:    clock,
		ids:      ids,
	}, nil
}

// Flush persists every dirty document. It takes the hub mutex so document
// saves never interleave with a mutation in dispatch.
func (h *Hub) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.docs.FlushAll()
}

// LoadBaseDocuments eagerly loads the registry and bulletin board so the
// first connection does not pay the deserialization cost. List documents
// stay lazy.
func (h *Hub) LoadBaseDocuments() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.docs.Get(board.RegistryKey()); err != nil {
		return err
	}
	_, err := h.docs.Get(board.BulletinsKey())
	return err
}

func (h *Hub) dispatch(s *session, frame clientFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	switch frame.Type {
	case frameHello:
		h.logger.Debug("client hello",
			zap.String("user_id", s.userID.String()),
			zap.String("client_version", frame.ClientVersion))
	case frameSubscribe:
		if frame.Doc == nil {
			err = board.BadRequestf("subscribe requires a document selector")
		} else {
			err = h.subscribe(s, *frame.Doc)
		}
	case frameUnsubscribe:
		if frame.Doc == nil {
			err = board.BadRequestf("unsubscribe requires a document selector")
		} else {
			delete(s.subs, *frame.Doc)
		}
	case frameRegistryAction:
		err = h.applyRegistryAction(s, frame.Action)
	case frameListAction:
		err = h.applyListAction(s, frame.ListID, frame.Action)
	case frameBulletinAction:
		err = h.applyBulletinAction(s, frame.Action)
	case frameSync:
		if frame.Doc == nil {
			err = board.BadRequestf("sync requires a document selector")
		} else {
			err = h.applySync(s, *frame.Doc, frame.Data)
		}
	case frameRequestFullState:
		err = h.sendFullState(s, frame.Doc)
	default:
		err = board.BadRequestf("unknown frame type %q", frame.Type)
	}

	if err != nil {
		code, message := board.CodeOf(err)
		s.enqueue(errorFrame(code, message))
	}
}

// subscribe authorizes and installs a subscription, then sends the initial
// snapshot and drains the outbound sync loop.
func (h *Hub) subscribe(s *session, key board.DocKey) error {
	var doc *automerge.Doc
	var err error
	switch key.Kind() {
	case board.DocKindRegistry, board.DocKindBulletins:
		doc, err = h.docs.Get(key)
		if err != nil {
			return err
		}
	case board.DocKindList:
		registryDoc, regErr := h.docs.Get(board.RegistryKey())
		if regErr != nil {
			return regErr
		}
		entry, found, lookupErr := board.FindListEntry(registryDoc, key.ListID())
		if lookupErr != nil {
			return lookupErr
		}
		if !found {
			return board.NotFoundf("list %s does not exist", key.ListID())
		}
		if !board.VisibleTo(entry, s.userID) {
			return board.Forbiddenf("user %s may not subscribe to list %s", s.userID, key.ListID())
		}
		doc, err = h.docs.Get(key)
		if err != nil {
			return err
		}
	default:
		return board.BadRequestf("unknown document selector")
	}

	if _, exists := s.subs[key]; !exists {
		// Registry subscriptions carry no sync state: the registry is
		// snapshot-only and mutated exclusively through actions.
		if key.Kind() == board.DocKindRegistry {
			s.subs[key] = nil
		} else {
			s.subs[key] = automerge.NewSyncState(doc)
		}
	}

	if err := h.sendSnapshot(s, key); err != nil {
		return err
	}
	h.runOutbound(s, key)
	return nil
}

func (h *Hub) applyRegistryAction(s *session, raw json.RawMessage) error {
	if len(raw) == 0 {
		return board.BadRequestf("registry_action requires an action payload")
	}
	var action board.RegistryAction
	if err := json.Unmarshal(raw, &action); err != nil {
		return board.WrapBadRequest("malformed registry action", err)
	}

	registryDoc, err := h.docs.Get(board.RegistryKey())
	if err != nil {
		return err
	}
	outcome, err := board.ApplyRegistryAction(registryDoc, s.userID, action, h.clock(), h.ids)
	if err != nil {
		return err
	}
	h.docs.MarkDirty(board.RegistryKey())

	if outcome.CreatedListID != "" {
		if _, createErr := h.docs.Create(board.ListKey(outcome.CreatedListID)); createErr != nil {
			h.logger.Error("list document creation failed",
				zap.String("list_id", outcome.CreatedListID.String()),
				zap.Error(createErr))
		}
	}
	if outcome.DeletedListID != "" {
		listKey := board.ListKey(outcome.DeletedListID)
		for sess := range h.sessions {
			delete(sess.subs, listKey)
		}
		h.docs.Forget(listKey)
		if deleteErr := h.docs.DeleteBlob(listKey); deleteErr != nil {
			h.logger.Error("list blob deletion failed",
				zap.String("list_id", outcome.DeletedListID.String()),
				zap.Error(deleteErr))
		}
	}

	h.dropRevokedListSubscriptions(registryDoc)
	h.broadcastDoc(board.RegistryKey())
	return nil
}

func (h *Hub) applyListAction(s *session, rawListID string, raw json.RawMessage) error {
	listID, err := board.NewListID(rawListID)
	if err != nil {
		return board.BadRequestf("list_action requires a list id")
	}
	if len(raw) == 0 {
		return board.BadRequestf("list_action requires an action payload")
	}
	var action board.ListAction
	if err := json.Unmarshal(raw, &action); err != nil {
		return board.WrapBadRequest("malformed list action", err)
	}

	registryDoc, err := h.docs.Get(board.RegistryKey())
	if err != nil {
		return err
	}
	entry, found, err := board.FindListEntry(registryDoc, listID)
	if err != nil {
		return err
	}
	if !found {
		return board.NotFoundf("list %s does not exist", listID)
	}

	listKey := board.ListKey(listID)
	listDoc, err := h.docs.Get(listKey)
	if err != nil {
		return err
	}
	if err := board.ApplyListAction(listDoc, entry, s.userID, action, h.clock(), h.ids); err != nil {
		return err
	}
	h.docs.MarkDirty(listKey)

	if touchErr := board.TouchListEntry(registryDoc, listID, h.clock()); touchErr != nil {
		h.logger.Error("registry entry touch failed",
			zap.String("list_id", listID.String()),
			zap.Error(touchErr))
	} else {
		h.docs.MarkDirty(board.RegistryKey())
		h.broadcastDoc(board.RegistryKey())
	}

	h.broadcastDoc(listKey)
	return nil
}

func (h *Hub) applyBulletinAction(s *session, raw json.RawMessage) error {
	if len(raw) == 0 {
		return board.BadRequestf("bulletin_action requires an action payload")
	}
	var action board.BulletinAction
	if err := json.Unmarshal(raw, &action); err != nil {
		return board.WrapBadRequest("malformed bulletin action", err)
	}

	bulletinsDoc, err := h.docs.Get(board.BulletinsKey())
	if err != nil {
		return err
	}
	if err := board.ApplyBulletinAction(bulletinsDoc, s.userID, action, h.clock(), h.ids); err != nil {
		return err
	}
	h.docs.MarkDirty(board.BulletinsKey())
	h.broadcastDoc(board.BulletinsKey())
	return nil
}

func (h *Hub) applySync(s *session, key board.DocKey, data string) error {
	if key.Kind() == board.DocKindRegistry {
		return board.BadRequestf("registry sync not supported")
	}
	state, subscribed := s.subs[key]
	if !subscribed || state == nil {
		return board.BadRequestf("not subscribed to %s", key)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return board.WrapBadRequest("sync payload is not valid base64", err)
	}
	if _, err := state.ReceiveMessage(raw); err != nil {
		return board.WrapBadRequest("sync message rejected", err)
	}
	h.docs.MarkDirty(key)
	h.broadcastDoc(key)
	return nil
}

func (h *Hub) sendFullState(s *session, key *board.DocKey) error {
	if key == nil {
		for subscribed := range s.subs {
			if err := h.sendSnapshot(s, subscribed); err != nil {
				return err
			}
		}
		return nil
	}
	if _, subscribed := s.subs[*key]; !subscribed {
		return board.NotFoundf("not subscribed to %s", *key)
	}
	return h.sendSnapshot(s, *key)
}

// broadcastDoc sends every subscriber of the document a fresh snapshot
// followed by its outbound sync messages.
func (h *Hub) broadcastDoc(key board.DocKey) {
	for sess := range h.sessions {
		if _, subscribed := sess.subs[key]; !subscribed {
			continue
		}
		if err := h.sendSnapshot(sess, key); err != nil {
			h.logger.Error("snapshot broadcast failed",
				zap.String("doc", key.String()),
				zap.String("user_id", sess.userID.String()),
				zap.Error(err))
			continue
		}
		h.runOutbound(sess, key)
	}
}

func (h *Hub) sendSnapshot(s *session, key board.DocKey) error {
	doc, err := h.docs.Get(key)
	if err != nil {
		return err
	}
	var state interface{}
	switch key.Kind() {
	case board.DocKindRegistry:
		state, err = board.ProjectRegistry(doc, s.userID)
	case board.DocKindBulletins:
		state, err = board.ProjectBulletins(doc, s.userID)
	case board.DocKindList:
		state, err = board.ProjectList(doc)
	default:
		return board.BadRequestf("unknown document selector")
	}
	if err != nil {
		return err
	}
	s.enqueue(snapshotFrame(key, state))
	return nil
}

// runOutbound drains the subscription's sync generator until quiescent.
func (h *Hub) runOutbound(s *session, key board.DocKey) {
	state := s.subs[key]
	if state == nil {
		return
	}
	for {
		message, valid := state.GenerateMessage()
		if !valid {
			break
		}
		s.enqueue(syncFrame(key, message.Bytes()))
	}
}

// dropRevokedListSubscriptions removes list subscriptions whose entry was
// deleted or whose visibility no longer covers the subscriber, so later
// broadcasts cannot leak state to revoked viewers.
func (h *Hub) dropRevokedListSubscriptions(registryDoc *automerge.Doc) {
	entries, err := board.DecodeRegistry(registryDoc)
	if err != nil {
		h.logger.Error("registry decode failed during revocation sweep", zap.Error(err))
		return
	}
	entriesByID := make(map[string]board.ListEntry, len(entries))
	for _, entry := range entries {
		entriesByID[entry.ID] = entry
	}

	for sess := range h.sessions {
		for key := range sess.subs {
			if key.Kind() != board.DocKindList {
				continue
			}
			entry, exists := entriesByID[key.ListID().String()]
			if !exists || !board.VisibleTo(entry, sess.userID) {
				delete(sess.subs, key)
			}
		}
	}
}

// DebugState renders every cached document for the development endpoint.
func (h *Hub) DebugState() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	dump := make(map[string]interface{})
	for _, key := range h.docs.CachedKeys() {
		doc, ok := h.docs.Lookup(key)
		if !ok {
			continue
		}
		switch key.Kind() {
		case board.DocKindRegistry:
			if entries, err := board.DecodeRegistry(doc); err == nil {
				dump[key.BlobKey()] = entries
			}
		case board.DocKindBulletins:
			if bulletins, err := board.DecodeBulletins(doc); err == nil {
				dump[key.BlobKey()] = bulletins
			}
		case board.DocKindList:
			if snapshot, err := board.ProjectList(doc); err == nil {
				dump[key.BlobKey()] = snapshot
			}
		}
	}
	return dump
}
