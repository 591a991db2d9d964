package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nstogner/ragchat/pkg/store"
	"github.com/nstogner/ragchat/pkg/store/jsonl"
)

func newJSONLSlot(t *testing.T) (*jsonl.Slot, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := jsonl.NewSlot(dir)
	if err != nil {
		t.Fatalf("failed to create slot: %v", err)
	}
	return s, dir
}

// failingSlot rejects every write.
type failingSlot struct {
	store.Slot
}

func (failingSlot) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestConversation_AppendAndSnapshotOrder(t *testing.T) {
	ctx := context.Background()
	c := store.NewConversation(store.NewMemorySlot(), store.ConversationKey)

	var want []string
	for i := 0; i < 10; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		content := fmt.Sprintf("message %d", i)
		want = append(want, content)
		got := c.Append(ctx, store.Message{Role: role, Content: content})
		if got.ID == "" || got.CreatedAt.IsZero() {
			t.Fatalf("Append did not assign ID/timestamp: %+v", got)
		}
	}

	snap := c.Snapshot()
	if len(snap) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(snap))
	}
	for i, m := range snap {
		if m.Content != want[i] {
			t.Errorf("message %d: got %q, want %q", i, m.Content, want[i])
		}
	}
	if c.Len() != len(want) {
		t.Errorf("Len = %d, want %d", c.Len(), len(want))
	}
}

func TestConversation_RestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	slot, _ := newJSONLSlot(t)

	c := store.NewConversation(slot, store.ConversationKey)
	c.Append(ctx, store.Message{Role: store.RoleUser, Content: "How is GDP?"})
	c.Append(ctx, store.Message{
		Role:    store.RoleAssistant,
		Content: "GDP is **rising**.",
		Attachments: []store.Attachment{
			{Type: store.AttachmentImage, Source: "https://x/y.png", Title: "GDP", SeriesID: "GDP"},
			{Type: "table", Source: "https://x/t.csv"},
		},
	})
	before := c.Snapshot()

	fresh := store.NewConversation(slot, store.ConversationKey)
	if n := fresh.Restore(ctx); n != 2 {
		t.Fatalf("Restore returned %d, want 2", n)
	}
	after := fresh.Snapshot()

	if len(after) != len(before) {
		t.Fatalf("restored %d messages, want %d", len(after), len(before))
	}
	for i := range before {
		b, a := before[i], after[i]
		if a.ID != b.ID || a.Role != b.Role || a.Content != b.Content || !a.CreatedAt.Equal(b.CreatedAt) {
			t.Errorf("message %d mismatch:\n got %+v\nwant %+v", i, a, b)
		}
		if len(a.Attachments) != len(b.Attachments) {
			t.Fatalf("message %d: %d attachments, want %d", i, len(a.Attachments), len(b.Attachments))
		}
		for j := range b.Attachments {
			if a.Attachments[j] != b.Attachments[j] {
				t.Errorf("message %d attachment %d: got %+v, want %+v", i, j, a.Attachments[j], b.Attachments[j])
			}
		}
	}
}

func TestConversation_RestoreMissingSlot(t *testing.T) {
	slot, _ := newJSONLSlot(t)
	c := store.NewConversation(slot, store.ConversationKey)
	if n := c.Restore(context.Background()); n != 0 {
		t.Errorf("Restore = %d, want 0", n)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty log, got %d", c.Len())
	}
}

func TestConversation_RestoreMalformedIsCacheMiss(t *testing.T) {
	cases := map[string]string{
		"not json":     "this is not json\n",
		"truncated":    `{"id":"1","role":"user","content":"hi"}` + "\n" + `{"id":"2","role":"assis`,
		"invalid role": `{"id":"1","role":"system","content":"hi"}` + "\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			slot, dir := newJSONLSlot(t)
			path := filepath.Join(dir, store.ConversationKey+".jsonl")
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatal(err)
			}

			c := store.NewConversation(slot, store.ConversationKey)
			if n := c.Restore(ctx); n != 0 {
				t.Errorf("Restore = %d, want 0", n)
			}
			if len(c.Snapshot()) != 0 {
				t.Error("expected empty log after malformed restore")
			}

			// The store is still usable and overwrites the bad data.
			c.Append(ctx, store.Message{Role: store.RoleUser, Content: "fresh"})
			again := store.NewConversation(slot, store.ConversationKey)
			if n := again.Restore(ctx); n != 1 {
				t.Errorf("Restore after append = %d, want 1", n)
			}
		})
	}
}

func TestConversation_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	c := store.NewConversation(store.NewMemorySlot(), store.ConversationKey)
	c.Append(ctx, store.Message{
		Role:        store.RoleAssistant,
		Content:     "original",
		Attachments: []store.Attachment{{Type: store.AttachmentImage, Source: "a.png"}},
	})

	snap := c.Snapshot()
	snap[0].Content = "mutated"
	snap[0].Attachments[0].Source = "mutated.png"
	_ = append(snap, store.Message{Role: store.RoleUser, Content: "extra"})

	got := c.Snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].Content != "original" || got[0].Attachments[0].Source != "a.png" {
		t.Errorf("store was mutated through snapshot: %+v", got[0])
	}
}

func TestConversation_AppendSurvivesPersistFailure(t *testing.T) {
	ctx := context.Background()
	c := store.NewConversation(failingSlot{store.NewMemorySlot()}, store.ConversationKey)

	c.Append(ctx, store.Message{Role: store.RoleUser, Content: "still here"})
	if c.Len() != 1 {
		t.Fatalf("expected in-memory log to keep the message, got %d", c.Len())
	}
}

func TestConversation_SubscribeNotifiesOnAppend(t *testing.T) {
	ctx := context.Background()
	c := store.NewConversation(store.NewMemorySlot(), store.ConversationKey)
	updates := c.Subscribe()

	c.Append(ctx, store.Message{Role: store.RoleUser, Content: "one"})
	c.Append(ctx, store.Message{Role: store.RoleAssistant, Content: "two"})

	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestAttachment_Known(t *testing.T) {
	if !(store.Attachment{Type: store.AttachmentImage}).Known() {
		t.Error("image attachments should be known")
	}
	if (store.Attachment{Type: "hologram"}).Known() {
		t.Error("unrecognized attachment types should not be known")
	}
}
