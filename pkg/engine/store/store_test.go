package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"Bindr/pkg/engine/api"
)

func TestFileSessionStore_RoundTrip(t *testing.T) {
	s, err := NewFileSessionStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	sess := &api.Session{
		SessionID: "s1",
		Mode:      api.ModePlan,
		CreatedAt: time.Now().UTC(),
		Messages:  []api.LLMMessage{{Role: "user", Content: "hi"}},
		Pending: &api.PendingRequest{
			TurnID:  "t1",
			Request: api.ToolRequest{ID: "r1", Kind: api.CapCreateFile, Target: "a.txt"},
		},
	}
	if err := s.Put(ctx, sess.SessionID, sess); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != api.ModePlan || len(got.Messages) != 1 {
		t.Fatalf("bad round trip: %+v", got)
	}
	if got.Pending == nil || got.Pending.Request.ID != "r1" {
		t.Fatal("pending request not persisted")
	}
}

func TestFileSessionStore_GetMissing(t *testing.T) {
	s, err := NewFileSessionStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_RejectsEscapingID(t *testing.T) {
	s, err := NewFileSessionStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(context.Background(), "../evil", &api.Session{SessionID: "x"}); !errors.Is(err, ErrWorkspaceEscape) {
		t.Fatalf("expected ErrWorkspaceEscape, got %v", err)
	}
}

func TestFileHandoffStore_ArchivesTransitions(t *testing.T) {
	s, err := NewFileHandoffStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	arch := &api.HandoffArchive{
		SessionID: "s1",
		Handoffs: []api.ContextHandoff{
			{Version: 1, From: api.ModeBrainstorm, To: api.ModePlan},
			{Version: 1, From: api.ModePlan, To: api.ModeExecute},
		},
	}
	if err := s.Put(ctx, "s1", arch); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Handoffs) != 2 || got.Handoffs[1].To != api.ModeExecute {
		t.Fatalf("bad archive: %+v", got)
	}
}

func TestJSONLEventLog_AppendAndReplay(t *testing.T) {
	l, err := NewJSONLEventLog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := api.Event{
			SessionID: "s1",
			TurnID:    "t1",
			Seq:       i,
			Type:      api.EventDelta,
			Delta:     &api.DeltaPayload{Text: "chunk"},
		}
		if err := l.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	stream, err := l.Stream(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	for i := 0; i < 3; i++ {
		e, err := stream.Recv(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if e.Seq != i || e.Version != api.EventVersion {
			t.Fatalf("bad event %d: %+v", i, e)
		}
	}
	if _, err := stream.Recv(ctx); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestJSONLEventLog_MissingSessionIsEmpty(t *testing.T) {
	l, err := NewJSONLEventLog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	stream, err := l.Stream(context.Background(), "never-seen")
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	if _, err := stream.Recv(context.Background()); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestChannelEventStream_OrderAndClose(t *testing.T) {
	s := NewChannelEventStream(8)
	for i := 0; i < 3; i++ {
		if err := s.Send(api.Event{Seq: i}); err != nil {
			t.Fatal(err)
		}
	}
	s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e, err := s.Recv(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if e.Seq != i {
			t.Fatalf("out of order: got %d want %d", e.Seq, i)
		}
	}
	if _, err := s.Recv(ctx); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	if err := s.Send(api.Event{}); err == nil {
		t.Fatal("send after close should fail")
	}
}
