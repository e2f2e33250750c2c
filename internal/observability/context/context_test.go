package obscontext

import (
	"context"
	"testing"
)

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), " system ", "scheduler")
	actorType, actorID := ActorFromContext(ctx)
	if actorType != "system" || actorID != "scheduler" {
		t.Fatalf("unexpected actor %q/%q", actorType, actorID)
	}
}

func TestEmptyValuesAreIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	ctx = WithRunID(ctx, "run-1")
	if got := RunIDFromContext(ctx); got != "run-1" {
		t.Fatalf("expected run-1, got %q", got)
	}
}
