package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shadwo/mediadock/internal/media"
)

func TestEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	task := media.FetchTask{ID: "dQw4w9WgXcQ", Kind: media.KindAudio, Quality: media.QualityAudioHigh}

	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.ID != task.ID || got.Kind != task.Kind {
		t.Fatalf("Dequeue = %+v, want %+v", got, task)
	}
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	if err := q.Enqueue(context.Background(), media.FetchTask{ID: "first"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, media.FetchTask{ID: "second"}); err == nil {
		t.Fatal("Enqueue on full queue should fail when context expires")
	}
}

func TestDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatal("Dequeue on empty queue should fail when context expires")
	}
}

func TestCloseDrainsThenErrors(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if err := q.Enqueue(context.Background(), media.FetchTask{ID: "queued"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	q.Close()
	q.Close() // idempotent

	task, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue after Close should drain: %v", err)
	}
	if task.ID != "queued" {
		t.Fatalf("task.ID = %q", task.ID)
	}

	if _, err := q.Dequeue(context.Background()); err == nil {
		t.Fatal("Dequeue on closed empty queue should fail")
	}
}
