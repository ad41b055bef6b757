package memory

import (
	"context"
	"testing"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New(0)
	id1, err := pub.Publish(context.Background(), "topic-a", map[string]string{"k": "v"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "topic-b", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "topic-a" || msgs[1].Topic != "topic-b" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherDropsOldest(t *testing.T) {
	t.Parallel()

	pub := New(2)
	for i := 0; i < 3; i++ {
		if _, err := pub.Publish(context.Background(), "events", i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 retained messages, got %d", len(msgs))
	}
	if msgs[0].ID != "memory-2" || msgs[1].ID != "memory-3" {
		t.Fatalf("expected newest messages retained, got %+v", msgs)
	}
}

func TestPublisherHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(1).Publish(ctx, "events", "x"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
