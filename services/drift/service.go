// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package drift is the document service: a registry of named CRDT
// documents with operations, snapshot exchange, and persistence.
//
// # Thread Safety
//
// The CRDT core is single-threaded by contract; all synchronization
// lives here. One RWMutex guards the registry and every document, which
// keeps merge atomicity trivial at local-first scale.
package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt/resolve"
	"github.com/AleutianAI/AleutianDrift/services/drift/storage"
	"github.com/AleutianAI/AleutianDrift/services/drift/telemetry"
)

// docKeyPrefix namespaces document snapshots inside the SnapshotStore.
const docKeyPrefix = "doc/"

// docNameRE constrains names to storage-key and filename safe forms.
var docNameRE = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// Envelope is the wire form of a document snapshot: the kind tag guards
// against merging incompatible states, the payload is the CRDT's own
// serialization.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Replica crdt.ReplicaID  `json:"replica"`
	Payload json.RawMessage `json:"payload"`
}

// DocInfo describes one document for listings.
type DocInfo struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// ChangeHook is invoked after a document mutates locally or by merge.
// Hooks run outside the service lock but must still return quickly.
type ChangeHook func(name string)

// Service owns the document registry.
type Service struct {
	replica  crdt.ReplicaID
	store    storage.SnapshotStore
	logger   *slog.Logger
	strategy resolve.Strategy

	mu   sync.RWMutex
	docs map[string]document

	hookMu sync.RWMutex
	hooks  []ChangeHook
}

// NewService creates a service for the given replica backed by store.
func NewService(replica crdt.ReplicaID, store storage.SnapshotStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		replica:  replica,
		store:    store,
		logger:   logger,
		strategy: resolve.LastWriteWins,
		docs:     make(map[string]document),
	}
}

// SetResolveStrategy selects the conflict resolution strategy for
// documents created afterwards. Call before Load; documents already in
// the registry keep the resolver they were built with.
func (s *Service) SetResolveStrategy(strategy resolve.Strategy) {
	s.strategy = strategy
}

// Replica returns the replica identity this service writes as.
func (s *Service) Replica() crdt.ReplicaID {
	return s.replica
}

// OnChange registers a hook called after every document mutation.
func (s *Service) OnChange(hook ChangeHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *Service) notify(name string) {
	s.hookMu.RLock()
	hooks := make([]ChangeHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(name)
	}
}

// Load restores every persisted document from the store. Call once at
// startup before serving traffic.
func (s *Service) Load(ctx context.Context) error {
	keys, err := s.store.Keys(ctx, docKeyPrefix)
	if err != nil {
		return fmt.Errorf("list persisted documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		name := key[len(docKeyPrefix):]
		data, found, err := s.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("load document %s: %w", name, err)
		}
		if !found {
			continue
		}
		doc, err := s.decodeEnvelope(name, data)
		if err != nil {
			// A corrupt snapshot must not take the daemon down; it
			// stays in the store for manual inspection.
			s.logger.Warn("skipping corrupt document snapshot",
				slog.String("doc", name),
				slog.String("error", err.Error()))
			continue
		}
		s.docs[name] = doc
	}
	s.logger.Info("documents loaded", slog.Int("count", len(s.docs)))
	return nil
}

// decodeEnvelope builds a fresh document from envelope bytes.
func (s *Service) decodeEnvelope(name string, data []byte) (document, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope for %s: %w", name, err)
	}
	doc, err := newDocument(env.Kind, s.replica, s.strategy)
	if err != nil {
		return nil, err
	}
	if err := doc.Merge(name, env.Payload); err != nil {
		return nil, fmt.Errorf("restore %s: %w", name, err)
	}
	return doc, nil
}

// Create registers a new empty document.
func (s *Service) Create(ctx context.Context, name string, kind Kind) error {
	if !docNameRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDocName, name)
	}
	doc, err := newDocument(kind, s.replica, s.strategy)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.docs[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDocExists, name)
	}
	s.docs[name] = doc
	err = s.persistLocked(ctx, name, doc)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.logger.Info("document created",
		slog.String("doc", name), slog.String("kind", string(kind)))
	s.notify(name)
	return nil
}

// List returns all documents sorted by name.
func (s *Service) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Docs returns name and kind for every document, sorted by name.
func (s *Service) Docs() []DocInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]DocInfo, 0, len(s.docs))
	for name, doc := range s.docs {
		infos = append(infos, DocInfo{Name: name, Kind: doc.Kind()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// View returns the materialized read model and kind of a document.
func (s *Service) View(name string) (any, Kind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrDocNotFound, name)
	}
	return doc.View(), doc.Kind(), nil
}

// Delete removes a document locally and from the store.
//
// Deletion is a local administrative action, not a replicated one: a
// peer that still has the document will re-propagate it on the next
// sync.
func (s *Service) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	if _, ok := s.docs[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDocNotFound, name)
	}
	delete(s.docs, name)
	err := s.store.Remove(ctx, docKeyPrefix+name)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("remove persisted snapshot for %s: %w", name, err)
	}
	s.logger.Info("document deleted", slog.String("doc", name))
	return nil
}

// Apply runs an operation batch against a document. The batch applies
// atomically with respect to readers; a failing operation aborts the
// rest but the earlier ones stay applied (CRDT mutations have no undo).
func (s *Service) Apply(ctx context.Context, name string, ops []Operation) error {
	ctx, span := telemetry.StartSpan(ctx, "drift.service", "Service.Apply",
		trace.WithAttributes(
			attribute.String("doc", name),
			attribute.Int("ops", len(ops)),
		))
	defer span.End()

	s.mu.Lock()
	doc, ok := s.docs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDocNotFound, name)
	}
	var applyErr error
	for i, op := range ops {
		if err := doc.Apply(op); err != nil {
			applyErr = fmt.Errorf("op %d (%s): %w", i, op.Action, err)
			break
		}
	}
	persistErr := s.persistLocked(ctx, name, doc)
	s.mu.Unlock()

	if applyErr != nil {
		telemetry.RecordError(span, applyErr)
		return applyErr
	}
	if persistErr != nil {
		telemetry.RecordError(span, persistErr)
		return persistErr
	}
	s.notify(name)
	return nil
}

// Snapshot returns the envelope-wrapped serialized state of a document.
func (s *Service) Snapshot(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDocNotFound, name)
	}
	return s.encodeEnvelopeLocked(doc)
}

func (s *Service) encodeEnvelopeLocked(doc document) ([]byte, error) {
	payload, err := doc.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}
	return json.Marshal(Envelope{
		Kind:    doc.Kind(),
		Replica: s.replica,
		Payload: payload,
	})
}

// MergeSnapshot folds remote envelope bytes into a document, creating
// the document when it is new to this replica.
func (s *Service) MergeSnapshot(ctx context.Context, name string, data []byte) error {
	ctx, span := telemetry.StartSpan(ctx, "drift.service", "Service.MergeSnapshot",
		trace.WithAttributes(attribute.String("doc", name)))
	defer span.End()

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope for %s: %w", name, err)
	}

	s.mu.Lock()
	doc, ok := s.docs[name]
	if !ok {
		if !docNameRE.MatchString(name) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrInvalidDocName, name)
		}
		fresh, err := newDocument(env.Kind, s.replica, s.strategy)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		doc = fresh
		s.docs[name] = doc
	} else if doc.Kind() != env.Kind {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %q, snapshot is %q",
			ErrKindMismatch, name, doc.Kind(), env.Kind)
	}

	if err := doc.Merge(name, env.Payload); err != nil {
		if !ok {
			// The document was created for this merge; roll it back so
			// a garbage snapshot doesn't leave an empty husk behind.
			delete(s.docs, name)
		}
		s.mu.Unlock()
		return fmt.Errorf("merge snapshot into %s: %w", name, err)
	}
	err := s.persistLocked(ctx, name, doc)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(name)
	return nil
}

// persistLocked writes a document's envelope to the store. Callers hold
// the write lock.
func (s *Service) persistLocked(ctx context.Context, name string, doc document) error {
	data, err := s.encodeEnvelopeLocked(doc)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, docKeyPrefix+name, data); err != nil {
		return fmt.Errorf("persist %s: %w", name, err)
	}
	return nil
}
