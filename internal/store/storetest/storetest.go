// Package storetest holds behaviour tests shared by every store backend.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

var base = time.Date(2026, 2, 19, 9, 0, 0, 0, time.UTC)

func msg(id, room, sender string, sec int) a2a.Message {
	return a2a.Message{
		ID:             id,
		RoomID:         room,
		SenderEntityID: sender,
		AgentID:        sender,
		Content: a2a.Content{
			Text:              "text " + id,
			SenderDisplayName: sender,
			Metadata: a2a.Metadata{
				IsBot:   true,
				ReplyTo: &a2a.ReplyTo{AuthorID: "someone", AuthorDisplayName: "Someone"},
			},
		},
		CreatedAt: base.Add(time.Duration(sec) * time.Second),
	}
}

// Run exercises the MessageStore and RoomStore contracts. newStores must return an
// empty, isolated backend for each call.
func Run(t *testing.T, newStores func(t *testing.T) *store.Stores) {
	t.Run("recent messages ascending and bounded", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		// Appended out of order on purpose.
		for _, m := range []a2a.Message{msg("m3", "r1", "a", 3), msg("m1", "r1", "b", 1), msg("m2", "r1", "a", 2), msg("x1", "r2", "a", 4)} {
			if err := s.Messages.Append(ctx, m); err != nil {
				t.Fatalf("Append(%s): %v", m.ID, err)
			}
		}
		got, err := s.Messages.RecentMessages(ctx, "r1", 2)
		if err != nil {
			t.Fatalf("RecentMessages: %v", err)
		}
		if len(got) != 2 || got[0].ID != "m2" || got[1].ID != "m3" {
			t.Fatalf("got %v, want [m2 m3]", ids(got))
		}
		all, _ := s.Messages.RecentMessages(ctx, "r1", 10)
		if len(all) != 3 {
			t.Errorf("room isolation broken: %v", ids(all))
		}
	})

	t.Run("same timestamp keeps arrival order", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		// Ids chosen so string order disagrees with arrival order.
		arrival := []string{"telegram:1:9", "telegram:1:10", "telegram:1:100", "telegram:1:11"}
		for _, id := range arrival {
			if err := s.Messages.Append(ctx, msg(id, "r1", "a", 5)); err != nil {
				t.Fatalf("Append(%s): %v", id, err)
			}
		}
		got, err := s.Messages.RecentMessages(ctx, "r1", 10)
		if err != nil {
			t.Fatalf("RecentMessages: %v", err)
		}
		if fmt.Sprint(ids(got)) != fmt.Sprint(arrival) {
			t.Errorf("got %v, want %v", ids(got), arrival)
		}
		last, _ := s.Messages.RecentMessages(ctx, "r1", 2)
		if fmt.Sprint(ids(last)) != fmt.Sprint(arrival[2:]) {
			t.Errorf("last two = %v, want %v", ids(last), arrival[2:])
		}
	})

	t.Run("round trips fields", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		in := msg("m1", "r1", "a", 1)
		in.Content.ChannelName = "daily-standup"
		if err := s.Messages.Append(ctx, in); err != nil {
			t.Fatal(err)
		}
		got, err := s.Messages.RecentMessages(ctx, "r1", 1)
		if err != nil || len(got) != 1 {
			t.Fatalf("got %v, %v", got, err)
		}
		out := got[0]
		if out.SenderEntityID != in.SenderEntityID || out.AgentID != in.AgentID || out.Content.Text != in.Content.Text {
			t.Errorf("fields lost: %+v", out)
		}
		if out.Content.ChannelName != "daily-standup" || !out.Content.Metadata.IsBot {
			t.Errorf("content lost: %+v", out.Content)
		}
		if out.Content.Metadata.ReplyTo == nil || out.Content.Metadata.ReplyTo.AuthorID != "someone" {
			t.Errorf("reply-to lost: %+v", out.Content.Metadata.ReplyTo)
		}
		if !out.CreatedAt.Equal(in.CreatedAt) {
			t.Errorf("created_at = %v, want %v", out.CreatedAt, in.CreatedAt)
		}
	})

	t.Run("append is idempotent by id", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		m := msg("dup", "r1", "a", 1)
		for i := 0; i < 3; i++ {
			if err := s.Messages.Append(ctx, m); err != nil {
				t.Fatalf("Append #%d: %v", i, err)
			}
		}
		got, _ := s.Messages.RecentMessages(ctx, "r1", 10)
		if len(got) != 1 {
			t.Errorf("duplicates stored: %v", ids(got))
		}
	})

	t.Run("append fills id and rejects missing room", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		if err := s.Messages.Append(ctx, a2a.Message{Content: a2a.Content{Text: "x"}}); err == nil {
			t.Error("expected error for missing room id")
		}
		if err := s.Messages.Append(ctx, a2a.Message{RoomID: "r1", Content: a2a.Content{Text: "x"}}); err != nil {
			t.Fatal(err)
		}
		got, _ := s.Messages.RecentMessages(ctx, "r1", 1)
		if len(got) != 1 || got[0].ID == "" {
			t.Errorf("id not generated: %+v", got)
		}
	})

	t.Run("empty and zero count", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		got, err := s.Messages.RecentMessages(ctx, "nowhere", 10)
		if err != nil || len(got) != 0 {
			t.Errorf("unknown room = %v, %v", got, err)
		}
		_ = s.Messages.Append(ctx, msg("m1", "r1", "a", 1))
		got, err = s.Messages.RecentMessages(ctx, "r1", 0)
		if err != nil || len(got) != 0 {
			t.Errorf("zero count = %v, %v", got, err)
		}
	})

	t.Run("concurrent appends", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					id := fmt.Sprintf("w%d-%d", w, i)
					if err := s.Messages.Append(ctx, msg(id, "r1", fmt.Sprintf("agent%d", w), w*10+i)); err != nil {
						t.Errorf("Append(%s): %v", id, err)
					}
				}
			}(w)
		}
		wg.Wait()
		got, _ := s.Messages.RecentMessages(ctx, "r1", 100)
		if len(got) != 40 {
			t.Fatalf("stored %d messages, want 40", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
				t.Fatalf("not ascending at %d: %v", i, ids(got))
			}
		}
	})

	t.Run("rooms", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		r, err := s.Rooms.GetRoom(ctx, "missing")
		if err != nil || r != nil {
			t.Fatalf("unknown room = %v, %v", r, err)
		}
		room := a2a.Room{ID: "r1", DisplayName: "daily-standup", WorldID: "w1", Metadata: map[string]string{"platform": "discord"}}
		if err := s.Rooms.UpsertRoom(ctx, room); err != nil {
			t.Fatal(err)
		}
		room.DisplayName = "standup"
		if err := s.Rooms.UpsertRoom(ctx, room); err != nil {
			t.Fatal(err)
		}
		r, err = s.Rooms.GetRoom(ctx, "r1")
		if err != nil || r == nil {
			t.Fatalf("GetRoom = %v, %v", r, err)
		}
		if r.DisplayName != "standup" || r.WorldID != "w1" || r.Metadata["platform"] != "discord" {
			t.Errorf("room = %+v", r)
		}
		if err := s.Rooms.UpsertRoom(ctx, a2a.Room{DisplayName: "no id"}); err == nil {
			t.Error("expected error for room without id")
		}
		list, err := s.Rooms.ListRooms(ctx)
		if err != nil || len(list) != 1 {
			t.Errorf("ListRooms = %v, %v", list, err)
		}
	})
}

func ids(msgs []a2a.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
