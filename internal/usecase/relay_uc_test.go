//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-media-relay/internal/domain/model"
)

func TestRelayUseCase_Enqueue(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	uc := NewRelayUseCase(q, nil, newTestLogger())

	job, pos, err := uc.EnqueueURL(ctx, 42, 4200, "  https://cdn.example/a.mp4 ")
	if err != nil || pos != 1 {
		t.Fatalf("EnqueueURL: pos=%d err=%v", pos, err)
	}
	if job.Input.URL != "https://cdn.example/a.mp4" || job.ChatID != 4200 || job.ID == "" {
		t.Fatalf("unexpected job: %+v", job)
	}

	job, pos, err = uc.EnqueueAttachment(ctx, 42, 0, model.AttachmentRef{FileID: "F", SuggestedName: "b.mp4"})
	if err != nil || pos != 2 {
		t.Fatalf("EnqueueAttachment: pos=%d err=%v", pos, err)
	}
	if job.ChatID != 42 || job.Input.Kind != model.InputAttachment {
		t.Fatalf("chat id should default to the requester: %+v", job)
	}

	if n := uc.Pending(ctx, 42); n != 2 {
		t.Fatalf("Pending = %d", n)
	}
	if n := uc.Cancel(ctx, 42); n != 2 {
		t.Fatalf("Cancel = %d", n)
	}
	if uc.IsBusy(ctx, 42) {
		t.Fatal("fake queue reports idle")
	}

	q.err = errors.New("shutting down")
	if _, _, err := uc.EnqueueURL(ctx, 1, 1, "https://x/y"); err == nil {
		t.Fatal("expected queue error to surface")
	}
}

func TestRelayUseCase_History(t *testing.T) {
	ctx := context.Background()

	if recs, err := NewRelayUseCase(&fakeQueue{}, nil, newTestLogger()).History(ctx, 1, 5); err != nil || recs != nil {
		t.Fatalf("no history store: %v %v", recs, err)
	}

	h := &memHistory{}
	for i := 0; i < 15; i++ {
		rec := model.NewJobRecord(model.NewJob(1, 1, model.RemoteURL("https://x/y")))
		rec.Complete("y", "tok")
		rec.FinishedAt = time.Now().Add(time.Duration(i) * time.Second)
		_ = h.Save(ctx, nil, rec)
	}
	recs, err := NewRelayUseCase(&fakeQueue{}, h, newTestLogger()).History(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 10 {
		t.Fatalf("default limit should be 10, got %d", len(recs))
	}
	if !recs[0].FinishedAt.After(recs[1].FinishedAt) {
		t.Fatal("newest first")
	}
}
