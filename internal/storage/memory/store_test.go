package memory

import (
	"context"
	"testing"
	"time"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

func TestTicketCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.CreateTicket(ctx, &domain.NewTicket{QueueID: "q", Title: "octocat Collaborator Access"})
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	created.Tags = append(created.Tags, "mutated")

	got, err := s.GetTicket(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if len(got.Tags) != 0 {
		t.Errorf("expected stored ticket unaffected by caller mutation, got tags %v", got.Tags)
	}
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	s := New()
	created, _ := s.CreateTicket(ctx, &domain.NewTicket{QueueID: "q"})

	if err := s.AddTags(ctx, created.ID, []string{"granted", "granted"}); err != nil {
		t.Fatalf("AddTags failed: %v", err)
	}
	got, _ := s.GetTicket(ctx, created.ID)
	if len(got.Tags) != 1 {
		t.Errorf("expected one tag, got %v", got.Tags)
	}
	if err := s.RemoveTag(ctx, created.ID, "removed"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound removing absent tag, got %v", err)
	}
	if err := s.RemoveTag(ctx, created.ID, "granted"); err != nil {
		t.Errorf("RemoveTag failed: %v", err)
	}
}

func TestListTickets(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"a", "b", "c"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		s.SetClock(func() time.Time { return ts })
		_, _ = s.CreateTicket(ctx, &domain.NewTicket{QueueID: "q", Title: title})
	}

	page, err := s.ListTickets(ctx, "q", domain.Page{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListTickets failed: %v", err)
	}
	if page.Total != 3 || len(page.Tickets) != 2 || page.Tickets[0].Title != "b" {
		t.Errorf("unexpected page: total=%d len=%d", page.Total, len(page.Tickets))
	}

	page, _ = s.ListTickets(ctx, "q", domain.Page{Limit: 2, Offset: 5})
	if len(page.Tickets) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(page.Tickets))
	}
}

func TestQueueLease(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	if err := s.Enqueue(ctx, &domain.QueueMessage{DeliveryID: "d1", Payload: "{}"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := s.Enqueue(ctx, &domain.QueueMessage{DeliveryID: "d1", Payload: "{}"}); err != domain.ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	msg, err := s.Receive(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if _, err := s.Receive(ctx, time.Minute); err != domain.ErrNotFound {
		t.Errorf("expected leased message to be invisible, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	again, err := s.Receive(ctx, time.Minute)
	if err != nil {
		t.Fatalf("expected redelivery after visibility timeout: %v", err)
	}
	if again.ReceiveCount != 2 {
		t.Errorf("ReceiveCount = %d, want 2", again.ReceiveCount)
	}
	if err := s.Delete(ctx, msg.Receipt); err != domain.ErrNotFound {
		t.Errorf("expected stale receipt to be rejected, got %v", err)
	}
	if err := s.Delete(ctx, again.Receipt); err != nil {
		t.Errorf("Delete failed: %v", err)
	}

	stats, _ := s.QueueStats(ctx)
	if *stats != (domain.QueueStats{}) {
		t.Errorf("expected empty queue, got %+v", stats)
	}
}
