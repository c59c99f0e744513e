package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"pickdesk/internal/authz"
	"pickdesk/internal/models"
	"pickdesk/internal/repository"
)

type stubRepo struct {
	decisions []models.Decision
	total     int64
	lastList  repository.ListDecisionsParams
}

func (r *stubRepo) InsertDecision(_ context.Context, _ *models.Decision) error { return nil }

func (r *stubRepo) GetDecisionByID(_ context.Context, id string) (*models.Decision, error) {
	for i := range r.decisions {
		if r.decisions[i].ID == id {
			return &r.decisions[i], nil
		}
	}
	return nil, nil
}

func (r *stubRepo) ListDecisions(_ context.Context, params repository.ListDecisionsParams) ([]models.Decision, error) {
	r.lastList = params
	return r.decisions, nil
}

func (r *stubRepo) CountDecisions(_ context.Context, _ repository.ListDecisionsParams) (int64, error) {
	return r.total, nil
}

func (r *stubRepo) InsertSettlement(_ context.Context, _ *models.Settlement) error { return nil }

func (r *stubRepo) ListSettlementsSince(_ context.Context, _ time.Time) ([]models.Settlement, error) {
	return nil, nil
}

func (r *stubRepo) DeleteSettlementsBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *stubRepo) LoadGuardrailCheckpoint(_ context.Context) (*models.GuardrailCheckpoint, error) {
	return nil, nil
}

func (r *stubRepo) SaveGuardrailCheckpoint(_ context.Context, _ *models.GuardrailCheckpoint) error {
	return nil
}

func (r *stubRepo) InsertAuditEvent(_ context.Context, _ *models.AuditEvent) error { return nil }

func (r *stubRepo) ListAuditEvents(_ context.Context, _ repository.ListAuditEventsParams) ([]models.AuditEvent, error) {
	return nil, nil
}

func (r *stubRepo) CountAuditEvents(_ context.Context, _ repository.ListAuditEventsParams) (int64, error) {
	return 0, nil
}

func (r *stubRepo) DeleteAuditEventsBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func newDecisionRouter(repo *stubRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(IdentityMiddleware())
	h := &DecisionHandler{Repo: repo, Authz: &authz.Authorizer{}}
	h.Register(engine)
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, target string) (int, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-User-Id", "a1")
	req.Header.Set("X-User-Role", "admin")
	req.Header.Set("X-Trace-Id", "trace-123")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return rec.Code, resp
}

func TestListDecisions_MetaMatchesServedPage(t *testing.T) {
	repo := &stubRepo{
		decisions: []models.Decision{{ID: "d1", OwnerUserID: "a1", Status: models.DecisionStatusPick}},
		total:     1,
	}
	engine := newDecisionRouter(repo)

	code, resp := doJSON(t, engine, http.MethodGet, "/api/v1/decisions?limit=9999&offset=-5")
	if code != http.StatusOK {
		t.Fatalf("status=%d want 200", code)
	}
	if got := resp.Meta["limit"]; got != float64(500) {
		t.Fatalf("meta.limit=%v want 500, the bound the store enforces", got)
	}
	if got := resp.Meta["offset"]; got != float64(0) {
		t.Fatalf("meta.offset=%v want 0", got)
	}
	if repo.lastList.Limit != 500 || repo.lastList.Offset != 0 {
		t.Fatalf("query params=%+v want normalized before the store", repo.lastList)
	}
	if got := resp.Meta["trace_id"]; got != "trace-123" {
		t.Fatalf("meta.trace_id=%v want trace-123", got)
	}
}

func TestGetDecision_MetaCarriesTraceID(t *testing.T) {
	repo := &stubRepo{
		decisions: []models.Decision{{ID: "d1", OwnerUserID: "a1", Status: models.DecisionStatusPick}},
		total:     1,
	}
	engine := newDecisionRouter(repo)

	code, resp := doJSON(t, engine, http.MethodGet, "/api/v1/decisions/d1")
	if code != http.StatusOK {
		t.Fatalf("status=%d want 200", code)
	}
	if got := resp.Meta["trace_id"]; got != "trace-123" {
		t.Fatalf("meta.trace_id=%v want trace-123", got)
	}
}
