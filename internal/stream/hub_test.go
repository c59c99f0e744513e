package stream

import (
	"testing"

	"pickdesk/internal/authz"
	"pickdesk/internal/models"
)

func TestScopeDecision(t *testing.T) {
	decision := models.Decision{ID: "d1", OwnerUserID: "u1", Status: models.DecisionStatusPick}

	if _, ok := scopeDecision(decision, authz.Identity{UserID: "u2", Role: authz.RoleUser}); ok {
		t.Fatal("user saw someone else's decision")
	}
	if got, ok := scopeDecision(decision, authz.Identity{UserID: "u1", Role: authz.RoleUser}); !ok || got.OwnerUserID != "u1" {
		t.Fatalf("owner scoped out: ok=%v got=%+v", ok, got)
	}
	got, ok := scopeDecision(decision, authz.Identity{UserID: "obs", Role: authz.RoleObserver})
	if !ok || got.OwnerUserID != "" {
		t.Fatalf("observer copy not anonymized: ok=%v owner=%q", ok, got.OwnerUserID)
	}
	if decision.OwnerUserID != "u1" {
		t.Fatal("anonymization mutated the source decision")
	}
	if got, ok := scopeDecision(decision, authz.Identity{UserID: "s1", Role: authz.RoleSupport}); !ok || got.OwnerUserID != "u1" {
		t.Fatalf("support should see full row: ok=%v got=%+v", ok, got)
	}
}

func TestBroadcastDropsWhenSubscriberLags(t *testing.T) {
	h := &Hub{}
	sub := &subscriber{
		identity: authz.Identity{UserID: "a1", Role: authz.RoleAdmin},
		ch:       make(chan models.Decision, 1),
	}
	h.register(sub)
	defer h.unregister(sub)

	h.BroadcastDecision(models.Decision{ID: "d1"})
	h.BroadcastDecision(models.Decision{ID: "d2"}) // buffer full, dropped

	if got := <-sub.ch; got.ID != "d1" {
		t.Fatalf("got %s want d1", got.ID)
	}
	select {
	case got := <-sub.ch:
		t.Fatalf("unexpected buffered decision %s", got.ID)
	default:
	}
}

func TestBroadcastSkipsForeignUserRows(t *testing.T) {
	h := &Hub{}
	sub := &subscriber{
		identity: authz.Identity{UserID: "u2", Role: authz.RoleUser},
		ch:       make(chan models.Decision, 4),
	}
	h.register(sub)
	h.BroadcastDecision(models.Decision{ID: "d1", OwnerUserID: "u1"})
	h.BroadcastDecision(models.Decision{ID: "d2", OwnerUserID: "u2"})

	if got := <-sub.ch; got.ID != "d2" {
		t.Fatalf("got %s want only the owned decision", got.ID)
	}
	if n := h.SubscriberCount(); n != 1 {
		t.Fatalf("subscribers=%d want 1", n)
	}
	h.unregister(sub)
	if n := h.SubscriberCount(); n != 0 {
		t.Fatalf("subscribers=%d want 0", n)
	}
}
