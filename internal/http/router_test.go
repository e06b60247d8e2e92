package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wisefido-ward/internal/auth"
	"wisefido-ward/internal/domain"
	httpapi "wisefido-ward/internal/http"
	"wisefido-ward/internal/projector"
	"wisefido-ward/internal/service"
	"wisefido-ward/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	store    *store.MemoryStore
	router   *httpapi.Router
	sessions *auth.Sessions
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	st := store.NewMemoryStore()

	state := auth.NewState()
	sessions := auth.NewSessions(state)

	pendencyService := service.NewPendencyService(st, logger)
	kpiService := service.NewKPIService(st, logger)
	historyService := service.NewHistoryService(st, logger)
	wardService := service.NewWardService(st, logger,
		service.NewPendencyCleanupHook(pendencyService),
		service.NewKPICounterHook(kpiService),
	)
	require.NoError(t, kpiService.Seed(context.Background()))

	proj := projector.New(st, state, logger)

	router := httpapi.NewRouter(sessions, logger)
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(sessions, logger))
	router.RegisterWardRoutes(httpapi.NewWardHandler(wardService, proj, logger))
	router.RegisterPendencyRoutes(httpapi.NewPendencyHandler(pendencyService, logger))
	router.RegisterHistoryRoutes(httpapi.NewHistoryHandler(historyService, logger))
	router.RegisterKPIRoutes(httpapi.NewKPIHandler(kpiService, logger))

	sess := sessions.Create("tester", "Enfermeiro")
	return &testEnv{store: st, router: router, sessions: sessions, token: sess.Token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Code    int             `json:"code"`
		Type    string          `json:"type"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, httpapi.ResultSuccess, envelope.Code)
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Result, out))
	}
}

func TestRouter_RejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/ward/api/v1/census", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/ward/api/v1/census", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginAndLogout(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/ward/api/v1/login", map[string]any{"user": "maria", "role": "Médico"})
	require.Equal(t, http.StatusOK, w.Code)

	var sess auth.Session
	decodeResult(t, w, &sess)
	require.NotEmpty(t, sess.Token)
	require.Equal(t, "maria", sess.User)

	_, ok := env.sessions.Validate(sess.Token)
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodPost, "/ward/api/v1/logout", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok = env.sessions.Validate(sess.Token)
	require.False(t, ok)
}

func TestBedLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	// 新增床位
	w := env.do(t, http.MethodPost, "/ward/api/v1/beds", map[string]any{"sector": string(domain.SectorRedRoom)})
	require.Equal(t, http.StatusOK, w.Code)
	var bed domain.Bed
	decodeResult(t, w, &bed)
	require.Equal(t, 1, bed.Number)
	require.NotEmpty(t, bed.ID)

	// 改床号
	w = env.do(t, http.MethodPost, "/ward/api/v1/beds/"+bed.ID+"/renumber", map[string]any{"number": 7})
	require.Equal(t, http.StatusOK, w.Code)

	// 写入患者
	w = env.do(t, http.MethodPut, "/ward/api/v1/beds/"+bed.ID+"/patient", map[string]any{
		"patient": map[string]any{"name": "Maria", "diagnosisSuspicion": "Pneumonia"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var patient domain.Patient
	decodeResult(t, w, &patient)
	require.NotEmpty(t, patient.ID)

	// 占用中的床位拒绝删除
	w = env.do(t, http.MethodDelete, "/ward/api/v1/beds/"+bed.ID, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// 出院后可删除
	w = env.do(t, http.MethodPost, "/ward/api/v1/beds/"+bed.ID+"/discharge", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/ward/api/v1/beds/"+bed.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDischargeUnknownBedReturns404(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/ward/api/v1/beds/ghost/discharge", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDischargeWritesHistoryOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bed := domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: &domain.Patient{
		ID: "p1", Name: "Maria", DiagnosisSuspicion: "Pneumonia", Status: domain.StatusAdmitted,
	}}
	require.NoError(t, env.store.Set(ctx, store.Ref{Collection: domain.CollectionBeds, ID: bed.ID}, bed))

	w := env.do(t, http.MethodPost, "/ward/api/v1/beds/sv-1/discharge", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/ward/api/v1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []domain.HistoryRecord
	decodeResult(t, w, &records)
	require.Len(t, records, 1)
	require.Equal(t, "Maria", records[0].Name)

	// 出院计数器已累加
	w = env.do(t, http.MethodGet, "/ward/api/v1/kpis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var kpis []domain.KPI
	decodeResult(t, w, &kpis)
	total := 0
	for _, k := range kpis {
		if k.Name == domain.KPITotalExits {
			total = k.Value
		}
	}
	require.Equal(t, 1, total)
}

func TestMoveOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	source := domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: &domain.Patient{ID: "p1", Name: "Maria"}}
	target := domain.Bed{ID: "ef-1", Number: 1, Sector: domain.SectorFemaleWard}
	require.NoError(t, env.store.Set(ctx, store.Ref{Collection: domain.CollectionBeds, ID: source.ID}, source))
	require.NoError(t, env.store.Set(ctx, store.Ref{Collection: domain.CollectionBeds, ID: target.ID}, target))

	w := env.do(t, http.MethodPost, "/ward/api/v1/beds/move", map[string]any{
		"sourceBedId": "sv-1",
		"targetBedId": "ef-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/ward/api/v1/beds/move", map[string]any{"sourceBedId": "sv-1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPendencyEndpoints(t *testing.T) {
	env := newTestEnv(t)

	// 旧式单槽
	w := env.do(t, http.MethodPut, "/ward/api/v1/pendencies/legacy", map[string]any{
		"patientId": "p1", "patientName": "Maria", "bedNumber": 1, "text": "colher exames",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// 离散待办
	w = env.do(t, http.MethodPost, "/ward/api/v1/pendencies/patient", map[string]any{
		"patientId": "p1", "text": "avaliar dieta", "recipientRole": "Enfermeiro",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var created map[string]string
	decodeResult(t, w, &created)
	require.NotEmpty(t, created["id"])

	w = env.do(t, http.MethodGet, "/ward/api/v1/pendencies/patient", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []domain.PatientPendency
	decodeResult(t, w, &items)
	require.Len(t, items, 2)

	// 角色过滤
	w = env.do(t, http.MethodGet, "/ward/api/v1/pendencies/patient?role=M%C3%A9dico", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeResult(t, w, &items)
	require.Len(t, items, 1)
	require.Equal(t, "colher exames", items[0].Text)

	// 完成 + 删除
	w = env.do(t, http.MethodPost, "/ward/api/v1/pendencies/patient/"+created["id"]+"/done", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/ward/api/v1/pendencies/patient/"+created["id"], nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGeneralPendencyEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/ward/api/v1/pendencies/general", map[string]any{
		"title": "conferir estoque", "priority": "alta",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var created map[string]string
	decodeResult(t, w, &created)

	w = env.do(t, http.MethodPut, "/ward/api/v1/pendencies/general/"+created["id"], map[string]any{
		"description": "ala sul",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/ward/api/v1/pendencies/general", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []domain.GeneralPendency
	decodeResult(t, w, &items)
	require.Len(t, items, 1)
	require.Equal(t, "ala sul", items[0].Description)
	require.Equal(t, domain.PriorityHigh, items[0].Priority)
}

func TestCensusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/ward/api/v1/census", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var sections []domain.CensusSection
	decodeResult(t, w, &sections)
	require.Len(t, sections, 4)
}

func TestCensusExportEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/ward/api/v1/census/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "Censo_Hospitalar_")
	require.NotEmpty(t, w.Body.Bytes())
}

func TestHistoryUpdateAndDeleteOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := domain.HistoryRecord{
		Patient:  domain.Patient{ID: "p1", Name: "Maria"},
		ExitType: domain.ExitDischarge,
	}
	require.NoError(t, env.store.Set(ctx, store.Ref{Collection: domain.CollectionPatientHistory, ID: "h1"}, rec))

	w := env.do(t, http.MethodPut, "/ward/api/v1/history/h1", map[string]any{"name": "Maria Silva"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, "/ward/api/v1/history/ghost", map[string]any{"name": "x"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/ward/api/v1/history/h1", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
