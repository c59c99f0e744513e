package authz

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"pickdesk/internal/models"
)

// ErrUnauthorized: no identity on the request.
// ErrForbidden: identity present but not in the operation's allow-list.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Audit actions emitted by this layer.
const (
	ActionUnauthorized    = "access_unauthorized"
	ActionForbidden       = "access_forbidden"
	ActionOwnershipDenied = "ownership_denied"
	ActionPrivilegedRead  = "privileged_read"
)

// Sink receives audit events. Appends are at-least-once and must tolerate
// concurrent callers.
type Sink interface {
	Append(ctx context.Context, event models.AuditEvent) error
}

// Authorizer decides access per operation and emits exactly one audit event
// per denial. Audit loss is logged but never fails the underlying request.
type Authorizer struct {
	Audit  Sink
	Logger *zap.Logger
}

// Authorize grants when the requester's role is a member of the explicit
// allow-list. This is an exact membership check, not a hierarchy walk.
func (a *Authorizer) Authorize(ctx context.Context, ident *Identity, required []Role, resource, traceID string) error {
	if ident == nil {
		a.emit(ctx, models.AuditEvent{
			Action:   ActionUnauthorized,
			Resource: resource,
			TraceID:  traceID,
		}, required)
		return ErrUnauthorized
	}
	for _, r := range required {
		if ident.Role == r {
			return nil
		}
	}
	a.emit(ctx, models.AuditEvent{
		Action:        ActionForbidden,
		RequesterID:   ident.UserID,
		RequesterRole: ident.Role.String(),
		Resource:      resource,
		TraceID:       traceID,
	}, required)
	return ErrForbidden
}

// CheckOwnership grants writes on a resource to its owner, or to ops_admin
// and above as an administrative override. Denials surface as Forbidden.
func (a *Authorizer) CheckOwnership(ctx context.Context, ident *Identity, ownerID, resource, traceID string) error {
	if ident == nil {
		a.emit(ctx, models.AuditEvent{
			Action:   ActionUnauthorized,
			Resource: resource,
			TraceID:  traceID,
		}, nil)
		return ErrUnauthorized
	}
	if ident.UserID == ownerID || ident.Role >= RoleOpsAdmin {
		return nil
	}
	a.emit(ctx, models.AuditEvent{
		Action:        ActionOwnershipDenied,
		RequesterID:   ident.UserID,
		RequesterRole: ident.Role.String(),
		Resource:      resource,
		TraceID:       traceID,
	}, nil)
	return ErrForbidden
}

// AuditPrivilegedRead records a support/ops_admin/admin read of another
// user's data. Read access to non-owned rows is itself a sensitive event.
func (a *Authorizer) AuditPrivilegedRead(ctx context.Context, ident *Identity, resource, traceID string) {
	if ident == nil {
		return
	}
	a.emit(ctx, models.AuditEvent{
		Action:        ActionPrivilegedRead,
		RequesterID:   ident.UserID,
		RequesterRole: ident.Role.String(),
		Resource:      resource,
		TraceID:       traceID,
	}, nil)
}

func (a *Authorizer) emit(ctx context.Context, event models.AuditEvent, required []Role) {
	if a == nil || a.Audit == nil {
		return
	}
	if len(required) > 0 {
		names := make([]string, 0, len(required))
		for _, r := range required {
			names = append(names, r.String())
		}
		raw, _ := json.Marshal(names)
		event.RequiredRoles = raw
	}
	if err := a.Audit.Append(ctx, event); err != nil && a.Logger != nil {
		a.Logger.Warn("audit append failed",
			zap.String("action", event.Action),
			zap.Error(err),
		)
	}
}
