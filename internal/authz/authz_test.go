package authz

import (
	"context"
	"errors"
	"testing"

	"pickdesk/internal/models"
)

type memSink struct {
	events []models.AuditEvent
	err    error
}

func (s *memSink) Append(_ context.Context, event models.AuditEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" OPS_ADMIN ")
	if err != nil || role != RoleOpsAdmin {
		t.Fatalf("role=%v err=%v want ops_admin", role, err)
	}
	if _, err := ParseRole("root"); err == nil {
		t.Fatal("unknown role accepted")
	}
}

func TestAuthorize_ExactMembershipNotHierarchy(t *testing.T) {
	sink := &memSink{}
	a := &Authorizer{Audit: sink}
	ctx := context.Background()
	required := []Role{RoleOpsAdmin, RoleAdmin}

	if err := a.Authorize(ctx, &Identity{UserID: "u1", Role: RoleOpsAdmin}, required, "guardrail", "t1"); err != nil {
		t.Fatalf("ops_admin denied: %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("grant emitted %d audit events, want 0", len(sink.events))
	}

	// admin outranks support but support is not in the list, and neither is
	// user: membership only.
	err := a.Authorize(ctx, &Identity{UserID: "u2", Role: RoleSupport}, required, "guardrail", "t2")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err=%v want ErrForbidden", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("denial emitted %d audit events, want exactly 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Action != ActionForbidden || ev.RequesterID != "u2" || ev.TraceID != "t2" {
		t.Fatalf("event=%+v want forbidden/u2/t2", ev)
	}
	if len(ev.RequiredRoles) == 0 {
		t.Fatal("denial event missing required_roles")
	}
}

func TestAuthorize_NoIdentity(t *testing.T) {
	sink := &memSink{}
	a := &Authorizer{Audit: sink}

	err := a.Authorize(context.Background(), nil, []Role{RoleAdmin}, "audit", "t3")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v want ErrUnauthorized", err)
	}
	if len(sink.events) != 1 || sink.events[0].Action != ActionUnauthorized {
		t.Fatalf("events=%+v want one unauthorized event", sink.events)
	}
}

func TestAuthorize_SinkFailureDoesNotFailRequest(t *testing.T) {
	a := &Authorizer{Audit: &memSink{err: errors.New("sink down")}}
	err := a.Authorize(context.Background(), &Identity{UserID: "u1", Role: RoleUser}, []Role{RoleAdmin}, "audit", "t4")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err=%v want ErrForbidden even when sink fails", err)
	}
}

func TestCheckOwnership(t *testing.T) {
	sink := &memSink{}
	a := &Authorizer{Audit: sink}
	ctx := context.Background()

	if err := a.CheckOwnership(ctx, &Identity{UserID: "u1", Role: RoleUser}, "u1", "decision/1", "t1"); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
	if err := a.CheckOwnership(ctx, &Identity{UserID: "admin1", Role: RoleOpsAdmin}, "u1", "decision/1", "t1"); err != nil {
		t.Fatalf("ops_admin override denied: %v", err)
	}

	err := a.CheckOwnership(ctx, &Identity{UserID: "u2", Role: RoleUser}, "u1", "decision/1", "t5")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err=%v want ErrForbidden", err)
	}
	if len(sink.events) != 1 || sink.events[0].Action != ActionOwnershipDenied {
		t.Fatalf("events=%+v want one ownership_denied event", sink.events)
	}
}

func decisionsFixture() []models.Decision {
	return []models.Decision{
		{ID: "d1", OwnerUserID: "u1", Status: models.DecisionStatusPick},
		{ID: "d2", OwnerUserID: "u2", Status: models.DecisionStatusNoBet},
		{ID: "d3", OwnerUserID: "u1", Status: models.DecisionStatusBlocked},
	}
}

func TestScopeRead_UserSeesOnlyOwnRows(t *testing.T) {
	out := ScopeRead(&Identity{UserID: "u1", Role: RoleUser}, decisionsFixture(), nil)
	if len(out) != 2 {
		t.Fatalf("rows=%d want 2", len(out))
	}
	for _, d := range out {
		if d.OwnerUserID != "u1" {
			t.Fatalf("user scope leaked row owned by %s", d.OwnerUserID)
		}
	}
}

func TestScopeRead_ObserverSeesAllAnonymized(t *testing.T) {
	in := decisionsFixture()
	out := ScopeRead(&Identity{UserID: "obs", Role: RoleObserver}, in, nil)
	if len(out) != 3 {
		t.Fatalf("rows=%d want 3", len(out))
	}
	for _, d := range out {
		if d.OwnerUserID != "" {
			t.Fatalf("observer scope exposed owner %s", d.OwnerUserID)
		}
	}
	// Input untouched.
	if in[0].OwnerUserID != "u1" {
		t.Fatal("ScopeRead mutated its input")
	}
}

func TestScopeRead_PrivilegedOwnerFilter(t *testing.T) {
	owner := "u1"
	out := ScopeRead(&Identity{UserID: "s1", Role: RoleSupport}, decisionsFixture(), &owner)
	if len(out) != 2 {
		t.Fatalf("rows=%d want 2", len(out))
	}
	for _, d := range out {
		if d.OwnerUserID != "u1" {
			t.Fatalf("filter leaked row owned by %s", d.OwnerUserID)
		}
	}

	all := ScopeRead(&Identity{UserID: "s1", Role: RoleSupport}, decisionsFixture(), nil)
	if len(all) != 3 {
		t.Fatalf("rows=%d want 3 without filter", len(all))
	}
	if all[0].OwnerUserID != "u1" {
		t.Fatal("support rows must not be anonymized")
	}
}

func TestContainsNonOwned(t *testing.T) {
	ident := &Identity{UserID: "u1", Role: RoleSupport}
	if !ContainsNonOwned(ident, decisionsFixture()) {
		t.Fatal("want true, fixture has u2 rows")
	}
	own := []models.Decision{{ID: "d1", OwnerUserID: "u1"}}
	if ContainsNonOwned(ident, own) {
		t.Fatal("want false for owned-only rows")
	}
}
