// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"context"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v4"
)

func TestOpenInMemory_RoundTrip(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer db.Close()

	if !db.InMemory() {
		t.Error("InMemory() = false")
	}

	ctx := context.Background()
	err = db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set([]byte("spec/inv:test"), []byte(`{"title":"test"}`))
	})
	if err != nil {
		t.Fatalf("WithTxn: %v", err)
	}

	var got []byte
	err = db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte("spec/inv:test"))
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		t.Fatalf("WithReadTxn: %v", err)
	}
	if string(got) != `{"title":"test"}` {
		t.Errorf("value = %q", got)
	}
}

func TestOpenPath_Persists(t *testing.T) {
	dir := t.TempDir()

	db, err := OpenPath(dir)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if db.Path() != dir {
		t.Errorf("Path() = %q, want %q", db.Path(), dir)
	}

	ctx := context.Background()
	if err := db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}); err != nil {
		t.Fatalf("WithTxn: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenPath(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	err = reopened.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte("k"))
		return err
	})
	if err != nil {
		t.Errorf("value did not survive reopen: %v", err)
	}
}

func TestOpen_Validation(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("persistent database without a path should fail")
	}
}

func TestWithTxn_CancelledContext(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = db.WithTxn(ctx, func(txn *badgerdb.Txn) error { return nil })
	if err == nil {
		t.Error("cancelled context should abort the transaction")
	}
}
