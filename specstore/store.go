// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package specstore persists reference documents — invariant
// descriptions, payload schemas, playbooks — in an embedded BadgerDB,
// addressed by kind and spec ID.
package specstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/substratelabs/atlas/storage/badger"
)

// Well-known document kinds.
const (
	KindInvariant = "invariant"
	KindSchema    = "schema"
	KindPlaybook  = "playbook"
)

// Sentinel errors.
var (
	// ErrNotFound indicates no document under the kind/spec ID.
	ErrNotFound = errors.New("spec document not found")

	// ErrInvalidDoc indicates a document missing kind or spec ID.
	ErrInvalidDoc = errors.New("invalid spec document")
)

// keyPrefix namespaces all spec documents in the database.
const keyPrefix = "spec/"

// Doc is one stored reference document.
type Doc struct {
	Kind           string          `json:"kind"`
	SpecID         string          `json:"spec_id"`
	Title          string          `json:"title"`
	Body           json.RawMessage `json:"body,omitempty"`
	UpdatedAtMilli int64           `json:"updated_at_ms"`
}

// Key returns the database key for the document.
func (d *Doc) Key() string {
	return keyPrefix + d.Kind + "/" + d.SpecID
}

// Validate checks the addressing fields.
func (d *Doc) Validate() error {
	if d.Kind == "" || d.SpecID == "" {
		return fmt.Errorf("%w: kind and spec_id are required", ErrInvalidDoc)
	}
	if strings.Contains(d.Kind, "/") {
		return fmt.Errorf("%w: kind must not contain '/'", ErrInvalidDoc)
	}
	return nil
}

// Store is a BadgerDB-backed spec document store.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens a persistent store at dir.
func Open(dir string) (*Store, error) {
	db, err := badger.OpenPath(dir)
	if err != nil {
		return nil, fmt.Errorf("open spec store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway store for tests.
func OpenInMemory() (*Store, error) {
	db, err := badger.OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("open spec store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a document, overwriting any existing one under the same
// kind and spec ID.
func (s *Store) Put(ctx context.Context, doc *Doc) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	doc.UpdatedAtMilli = time.Now().UnixMilli()
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode spec document: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(doc.Key()), data)
	})
}

// Get fetches one document by kind and spec ID.
func (s *Store) Get(ctx context.Context, kind, specID string) (*Doc, error) {
	key := keyPrefix + kind + "/" + specID
	var doc Doc
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, kind, specID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns all documents of one kind, in key order. An empty kind
// lists everything.
func (s *Store) List(ctx context.Context, kind string) ([]*Doc, error) {
	prefix := keyPrefix
	if kind != "" {
		prefix += kind + "/"
	}
	var docs []*Doc
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var doc Doc
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return err
			}
			docs = append(docs, &doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Search returns documents whose key or title contains the term,
// case-insensitively.
func (s *Store) Search(ctx context.Context, term string) ([]*Doc, error) {
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", ErrInvalidDoc)
	}
	needle := strings.ToLower(term)
	all, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var hits []*Doc
	for _, doc := range all {
		if strings.Contains(strings.ToLower(doc.Key()), needle) ||
			strings.Contains(strings.ToLower(doc.Title), needle) {
			hits = append(hits, doc)
		}
	}
	return hits, nil
}

// Seed installs the shipped default documents that are not already
// present. Existing documents are never overwritten. Returns how many
// were created.
func (s *Store) Seed(ctx context.Context) (int, error) {
	created := 0
	for _, doc := range defaultDocs() {
		if _, err := s.Get(ctx, doc.Kind, doc.SpecID); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return created, err
		}
		if err := s.Put(ctx, doc); err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		slog.Info("spec store seeded", slog.Int("created", created))
	}
	return created, nil
}
