package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/liminalcommons/chora-cvm/internal/engine"
	"github.com/liminalcommons/chora-cvm/internal/registry"
	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/storage/sqlite"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

func setupQueue(t *testing.T) (*Queue, func()) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "worker-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	q, err := OpenQueue(context.Background(), filepath.Join(tmpDir, "cvm.db.queue"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open queue: %v", err)
	}
	return q, func() {
		q.Close()
		os.RemoveAll(tmpDir)
	}
}

func TestEnqueueClaimComplete(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, &Job{
		Intent:    "echo",
		Inputs:    map[string]any{"value": "hello"},
		PersonaID: "persona-test",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated job id")
	}

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if job == nil || job.ID != id {
		t.Fatalf("expected job %s, got %+v", id, job)
	}
	if job.Status != JobRunning {
		t.Errorf("expected running status, got %s", job.Status)
	}
	if job.Inputs["value"] != "hello" {
		t.Errorf("inputs not round-tripped: %v", job.Inputs)
	}

	// A second claim finds nothing.
	second, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("second Claim failed: %v", err)
	}
	if second != nil {
		t.Errorf("expected empty queue, claimed %+v", second)
	}

	result := engine.DispatchResult{OK: true, Data: map[string]any{"value": "hello"}}
	if err := q.Complete(ctx, id, result); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	stored, err := q.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != JobDone {
		t.Errorf("expected done status, got %s", stored.Status)
	}
	if stored.Result == nil || !stored.Result.OK {
		t.Errorf("result not recorded: %+v", stored.Result)
	}
	if stored.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

func TestClaimOrdersByCreation(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	first, _ := q.Enqueue(ctx, &Job{ID: "job-a", Intent: "one"})
	if _, err := q.Enqueue(ctx, &Job{ID: "job-b", Intent: "two"}); err != nil {
		t.Fatal(err)
	}

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if job.ID != first {
		t.Errorf("expected oldest job %s first, got %s", first, job.ID)
	}
}

func TestFailedResultMarksJobError(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, &Job{Intent: "missing"})
	if _, err := q.Claim(ctx); err != nil {
		t.Fatal(err)
	}
	result := engine.DispatchResult{OK: false, ErrorKind: types.ErrIntentNotFound, ErrorMessage: "no such intent"}
	if err := q.Complete(ctx, id, result); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	stored, _ := q.Get(ctx, id)
	if stored.Status != JobError {
		t.Errorf("expected error status, got %s", stored.Status)
	}
	if stored.Result.ErrorKind != types.ErrIntentNotFound {
		t.Errorf("error kind not preserved: %+v", stored.Result)
	}

	counts, err := q.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[JobError] != 1 {
		t.Errorf("expected 1 error job, got %v", counts)
	}
}

func echoHandler(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	return map[string]any{"value": args["value"]}, nil
}

func TestDrainExecutesJobsThroughEngine(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "worker-drain-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	ctx := context.Background()

	store, err := sqlite.New(ctx, filepath.Join(tmpDir, "cvm.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	data, _ := json.Marshal(types.PrimitiveData{HandlerRef: "test.echo"})
	var dataMap map[string]any
	if err := json.Unmarshal(data, &dataMap); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveEntity(ctx, "primitive-echo", types.TypePrimitive, dataMap); err != nil {
		t.Fatalf("failed to seed primitive: %v", err)
	}

	symbols := map[string]registry.Handler{"test.echo": echoHandler}
	eng, err := engine.NewWithStore(ctx, store, symbols)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	q, err := OpenQueue(ctx, QueuePath(store.Path()))
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	defer q.Close()

	goodID, _ := q.Enqueue(ctx, &Job{Intent: "primitive-echo", Inputs: map[string]any{"value": "ping"}})
	badID, _ := q.Enqueue(ctx, &Job{Intent: "nonexistent"})

	w := New(q, eng, Options{LogPath: filepath.Join(tmpDir, "worker.log")})
	if err := w.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	good, _ := q.Get(ctx, goodID)
	if good.Status != JobDone || good.Result == nil || good.Result.Data["value"] != "ping" {
		t.Errorf("echo job not completed: %+v", good)
	}

	bad, _ := q.Get(ctx, badID)
	if bad.Status != JobError {
		t.Errorf("expected error status for unknown intent, got %s", bad.Status)
	}
	if bad.Result.ErrorKind != types.ErrIntentNotFound {
		t.Errorf("expected intent_not_found, got %+v", bad.Result)
	}

	counts, _ := q.CountByStatus(ctx)
	if counts[JobPending] != 0 {
		t.Errorf("expected drained queue, got %v", counts)
	}
}
