package telegram

import (
	"context"
	"fmt"
	"testing"
)

type staticRecipients []int64

func (s staticRecipients) Recipients(context.Context) ([]int64, error) {
	return s, nil
}

type flakySender struct {
	failChat int64
	sent     []int64
}

func (f *flakySender) SendMessage(_ context.Context, chatID int64, _ string) error {
	if chatID == f.failChat {
		return fmt.Errorf("chat blocked the bot")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	sender := &flakySender{failChat: 2}
	n := NewNotifier(sender, staticRecipients{1, 2, 3}, nil)

	sent, err := n.Broadcast(context.Background(), "alert")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 deliveries, got %d", sent)
	}
	if len(sender.sent) != 2 || sender.sent[0] != 1 || sender.sent[1] != 3 {
		t.Fatalf("unexpected deliveries %v", sender.sent)
	}
}

func TestBroadcastHonorsContext(t *testing.T) {
	sender := &flakySender{}
	n := NewNotifier(sender, staticRecipients{1, 2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := n.Broadcast(ctx, "alert"); err == nil {
		t.Fatal("expected context error")
	}
}
