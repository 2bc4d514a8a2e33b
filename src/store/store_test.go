package store

import (
	"context"
	"strings"
	"sync"
	"testing"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	data := []byte(`{"stage":"aggregate"}`)
	if err := s.Put(ctx, "r1", Snapshot{Stage: "aggregate", Data: data}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	// the stored copy must not alias the caller's buffer
	data[0] = 'X'

	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.RecordID != "r1" || got.Stage != "aggregate" {
		t.Errorf("Get() = %+v", got)
	}
	if string(got.Data) != `{"stage":"aggregate"}` {
		t.Errorf("stored data aliased caller buffer: %s", got.Data)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be stamped")
	}

	if err := s.Put(ctx, "r1", Snapshot{Stage: "publish", Data: []byte("{}")}); err != nil {
		t.Fatalf("Put() overwrite error: %v", err)
	}
	got, _ = s.Get(ctx, "r1")
	if got.Stage != "publish" {
		t.Errorf("overwrite not applied, stage = %s", got.Stage)
	}
	if s.Puts() != 2 {
		t.Errorf("Puts() = %d, want 2", s.Puts())
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := []string{"a", "b"}[i%2]
			s.Put(ctx, id, Snapshot{Stage: "x", Data: []byte("{}")})
			s.Get(ctx, id)
		}(i)
	}
	wg.Wait()

	if s.Puts() != 20 {
		t.Errorf("Puts() = %d, want 20", s.Puts())
	}
}

func TestErrNotFound(t *testing.T) {
	err := ErrNotFound{RecordID: "abc"}
	if !strings.Contains(err.Error(), "abc") {
		t.Errorf("Error() = %q", err.Error())
	}
	if IsNotFound(nil) {
		t.Error("IsNotFound(nil) should be false")
	}
}

func TestPostgresQueries(t *testing.T) {
	query, args, err := upsertQuery("r1", Snapshot{Stage: "validate", Data: []byte("{}")})
	if err != nil {
		t.Fatalf("upsertQuery() error: %v", err)
	}
	if !strings.HasPrefix(query, "INSERT INTO review_checkpoints (record_id,stage,data,updated_at) VALUES ($1,$2,$3,$4)") {
		t.Errorf("unexpected upsert SQL: %s", query)
	}
	if !strings.Contains(query, "ON CONFLICT (record_id) DO UPDATE") {
		t.Errorf("upsert missing conflict clause: %s", query)
	}
	if len(args) != 4 || args[0] != "r1" || args[1] != "validate" {
		t.Errorf("unexpected args: %v", args)
	}

	query, args, err = selectQuery("r1")
	if err != nil {
		t.Fatalf("selectQuery() error: %v", err)
	}
	if query != "SELECT stage, data, updated_at FROM review_checkpoints WHERE record_id = $1" {
		t.Errorf("unexpected select SQL: %s", query)
	}
	if len(args) != 1 || args[0] != "r1" {
		t.Errorf("unexpected args: %v", args)
	}
}
