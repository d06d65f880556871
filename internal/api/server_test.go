package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedbank/internal/docx"
	"seedbank/internal/drafts"
	"seedbank/internal/export"
	"seedbank/internal/metrics"
	"seedbank/internal/middleware"
	"seedbank/internal/models"
)

type harness struct {
	t         *testing.T
	router    *gin.Engine
	inventory *models.Inventory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	inventory := models.NewInventory(0)
	server := &Server{
		Inventory: inventory,
		Sessions:  drafts.NewManager(inventory, drafts.Options{Logger: logger, Observer: m}),
		Metrics:   m,
		Logger:    logger,
	}
	return &harness{t: t, router: NewRouter(server), inventory: inventory}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.ActorHeader, "Tester")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthWithoutDatabase(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"status": "disabled"}, body["database"])
}

func TestRecordLifecycleAndHistory(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/records/accessions", map[string]any{"name": "Koa lot A", "tags": []string{"koa"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Record](t, rec)
	assert.Equal(t, "tester", created.UpdatedBy)

	rec = h.do(http.MethodPut, "/api/v1/records/accessions/"+created.ID, map[string]any{"name": "Koa lot A2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/history", nil)
	status := decode[models.HistoryStatus](t, rec)
	assert.Equal(t, 2, status.UndoSteps)

	rec = h.do(http.MethodPost, "/api/v1/history/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/v1/records/accessions/"+created.ID, nil)
	assert.Equal(t, "Koa lot A", decode[models.Record](t, rec).Name)

	rec = h.do(http.MethodPost, "/api/v1/history/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodPost, "/api/v1/history/redo", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[map[string]any](t, rec)
	assert.Equal(t, "redo_unavailable", conflict["error"])

	rec = h.do(http.MethodDelete, "/api/v1/records/accessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(http.MethodGet, "/api/v1/records/accessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"record_not_found"}`, rec.Body.String())
}

func TestRecordErrors(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/v1/records/seeds", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"kind_unsupported"}`, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/v1/records/batches", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_record", decode[map[string]any](t, rec)["error"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/batches", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	out := httptest.NewRecorder()
	h.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
	assert.JSONEq(t, `{"error":"invalid_payload"}`, out.Body.String())
}

func TestListPagingFiltersAndReorder(t *testing.T) {
	h := newHarness(t)
	var ids []string
	for _, name := range []string{"flat a", "flat b", "tray c"} {
		rec := h.do(http.MethodPost, "/api/v1/records/batches", map[string]any{"name": name, "attributes": map[string]string{"house": "shade"}})
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decode[models.Record](t, rec).ID)
	}

	rec := h.do(http.MethodGet, "/api/v1/records/batches?page=2&page_size=2", nil)
	page := decode[struct {
		Items []models.Record `json:"items"`
		Total int             `json:"total"`
	}](t, rec)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "tray c", page.Items[0].Name)

	filters := url.QueryEscape(`[{"property":"name","op":"contains","value":"FLAT"}]`)
	sorts := url.QueryEscape(`[{"property":"name","direction":"desc"}]`)
	rec = h.do(http.MethodGet, "/api/v1/records/batches?filters="+filters+"&sort="+sorts, nil)
	page = decode[struct {
		Items []models.Record `json:"items"`
		Total int             `json:"total"`
	}](t, rec)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "flat b", page.Items[0].Name)

	rec = h.do(http.MethodGet, "/api/v1/records/batches?filters=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/records/batches/reorder", map[string]any{"ids": []string{ids[2], ids[0]}})
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[struct {
		Items []models.Record `json:"items"`
	}](t, rec).Items
	assert.Equal(t, []string{ids[2], ids[0], ids[1]}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestEditSessionFlow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/sessions", map[string]any{"kind": "planting_sites"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[drafts.View](t, rec)
	assert.False(t, view.Current.IsSet())
	base := "/api/v1/sessions/" + view.ID

	rec = h.do(http.MethodPatch, base, map[string]any{"name": "Gulch"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, p := range []map[string]float64{{"lng": 0, "lat": 0}, {"lng": 2, "lat": 0}, {"lng": 1, "lat": 2}} {
		rec = h.do(http.MethodPost, base+"/boundary/vertices", p)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec = h.do(http.MethodPut, base+"/boundary/vertices/2", map[string]float64{"lng": 1, "lat": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodDelete, base+"/boundary/vertices/9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"vertex_out_of_range"}`, rec.Body.String())

	rec = h.do(http.MethodPost, base+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[drafts.View](t, rec)
	current, ok := view.Current.Get()
	require.True(t, ok)
	assert.Equal(t, models.Point{Lng: 1, Lat: 2}, current.Boundary.Points[2])
	assert.True(t, view.History.CanRedo)

	rec = h.do(http.MethodPost, base+"/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, base+"/commit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	committed := decode[struct {
		Record  models.Record `json:"record"`
		Session drafts.View   `json:"session"`
	}](t, rec)
	assert.Equal(t, committed.Record.ID, committed.Session.RecordID)
	assert.False(t, committed.Session.History.CanUndo)

	rec = h.do(http.MethodPost, base+"/undo", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "undo_unavailable", decode[map[string]any](t, rec)["error"])

	stored, err := h.inventory.Get(models.KindPlantingSite, committed.Record.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, stored.Boundary.Area(), 1e-9)

	rec = h.do(http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(http.MethodGet, base, nil)
	assert.JSONEq(t, `{"error":"session_not_found"}`, rec.Body.String())
}

func TestSessionErrors(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/sessions", map[string]any{"kind": "batches", "record_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/sessions", map[string]any{"kind": "batches"})
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/v1/sessions/" + decode[drafts.View](t, rec).ID

	rec = h.do(http.MethodPost, base+"/commit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"nothing_to_commit"}`, rec.Body.String())

	rec = h.do(http.MethodPatch, base, map[string]any{})
	assert.JSONEq(t, `{"error":"empty_patch"}`, rec.Body.String())

	rec = h.do(http.MethodPut, base+"/boundary", map[string]any{"points": []any{}})
	assert.JSONEq(t, `{"error":"not_boundary_record"}`, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/v1/sessions", nil)
	items := decode[struct {
		Items []drafts.View `json:"items"`
	}](t, rec).Items
	assert.Len(t, items, 1)
}

func TestWorkbookExportImport(t *testing.T) {
	h := newHarness(t)
	_, err := h.inventory.Create(models.KindAccession, models.Record{Name: "Koa lot A", Tags: []string{"koa"}}, "")
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	workbook := rec.Body.Bytes()

	catalog, err := export.Import(bytes.NewReader(workbook))
	require.NoError(t, err)
	catalog[models.KindAccession][0].Name = "Koa lot B"
	catalog[models.KindBatch] = []models.Record{{Name: "flat"}}
	edited, err := export.Export(catalog)
	require.NoError(t, err)

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("file", "seedbank.xlsx")
	require.NoError(t, err)
	_, err = part.Write(edited)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	out := httptest.NewRecorder()
	h.router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code, out.Body.String())

	accessions, err := h.inventory.List(models.KindAccession)
	require.NoError(t, err)
	require.Len(t, accessions, 1)
	assert.Equal(t, "Koa lot B", accessions[0].Name)

	rec = h.do(http.MethodPost, "/api/v1/history/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	accessions, err = h.inventory.List(models.KindAccession)
	require.NoError(t, err)
	assert.Equal(t, "Koa lot A", accessions[0].Name, "an import is one undo step")

	rec = h.do(http.MethodPost, "/api/v1/import", map[string]string{"data": base64.StdEncoding.EncodeToString([]byte("junk"))})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_workbook", decode[map[string]any](t, rec)["error"])
}

func TestRecordDocument(t *testing.T) {
	h := newHarness(t)
	record, err := h.inventory.Create(models.KindObservation, models.Record{Name: "Germination check"}, "")
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/api/v1/records/observations/"+record.ID+"/document", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, docx.ContentType, rec.Header().Get("Content-Type"))
	paragraphs, err := docx.ExtractText(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Germination check", paragraphs[0])
}

func TestOverviewAndMetrics(t *testing.T) {
	h := newHarness(t)
	_, err := h.inventory.Create(models.KindBatch, models.Record{Name: "flat", Tags: []string{"Shade"}}, "")
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/api/v1/overview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overview := decode[models.OverviewStats](t, rec)
	assert.Equal(t, []models.TagCount{{Tag: "shade", Count: 1}}, overview.TagTop)

	h.do(http.MethodPost, "/api/v1/history/undo", nil)
	h.do(http.MethodPost, "/api/v1/history/undo", nil)

	rec = h.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `seedbank_history_operations_total{op="undo",result="ok",scope="inventory"} 1`)
	assert.Contains(t, body, `seedbank_history_operations_total{op="undo",result="unavailable",scope="inventory"} 1`)
	assert.Contains(t, body, `route="/api/v1/overview"`)
}

func TestSessionReplace(t *testing.T) {
	h := newHarness(t)
	record, err := h.inventory.Create(models.KindAccession, models.Record{Name: "Koa lot A", Tags: []string{"koa"}}, "")
	require.NoError(t, err)

	rec := h.do(http.MethodPost, "/api/v1/sessions", map[string]any{"kind": "accessions", "record_id": record.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/v1/sessions/" + decode[drafts.View](t, rec).ID

	rec = h.do(http.MethodPut, base, map[string]any{
		"name":       "Koa lot A2",
		"attributes": map[string]string{"source": "Kona"},
		"links":      map[string][]string{"batches": {"batches-1"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[drafts.View](t, rec)
	current, ok := view.Current.Get()
	require.True(t, ok)
	assert.Equal(t, record.ID, current.ID)
	assert.Equal(t, "Koa lot A2", current.Name)
	assert.Empty(t, current.Tags)
	assert.Equal(t, []string{"batches-1"}, current.Links[models.KindBatch])
	assert.True(t, view.History.CanUndo)

	rec = h.do(http.MethodPut, base, "not a record")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, base+"/commit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := h.inventory.Get(models.KindAccession, record.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"source": "Kona"}, stored.Attributes)
}

func TestWorkbookImportAppend(t *testing.T) {
	h := newHarness(t)
	existing, err := h.inventory.Create(models.KindAccession, models.Record{Name: "Koa lot A"}, "")
	require.NoError(t, err)

	workbook, err := export.Export(models.Catalog{
		models.KindAccession: {{ID: existing.ID, Name: "Koa lot A copy"}},
	})
	require.NoError(t, err)
	body := map[string]string{"data": base64.StdEncoding.EncodeToString(workbook)}

	rec := h.do(http.MethodPost, "/api/v1/import?mode=merge", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid_mode"}`, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/v1/import?mode=append", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "append", decode[map[string]any](t, rec)["mode"])

	accessions, err := h.inventory.List(models.KindAccession)
	require.NoError(t, err)
	require.Len(t, accessions, 2)
	assert.Equal(t, "Koa lot A", accessions[0].Name)
	assert.Equal(t, "Koa lot A copy", accessions[1].Name)
	assert.NotEqual(t, existing.ID, accessions[1].ID)

	rec = h.do(http.MethodPost, "/api/v1/history/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	accessions, err = h.inventory.List(models.KindAccession)
	require.NoError(t, err)
	assert.Len(t, accessions, 1)
}

func TestSessionDocumentUpload(t *testing.T) {
	h := newHarness(t)
	record, err := h.inventory.Create(models.KindObservation, models.Record{Name: "Germination check", Description: "pending"}, "")
	require.NoError(t, err)
	rec := h.do(http.MethodPost, "/api/v1/sessions", map[string]any{"kind": "observations", "record_id": record.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/v1/sessions/" + decode[drafts.View](t, rec).ID

	notes, err := docx.Encode([]string{"Day 12", "radicle emerged in 9 of 20"})
	require.NoError(t, err)
	rec = h.do(http.MethodPost, base+"/document", map[string]string{"data": base64.StdEncoding.EncodeToString(notes)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	current, ok := decode[drafts.View](t, rec).Current.Get()
	require.True(t, ok)
	assert.Equal(t, "Day 12\nradicle emerged in 9 of 20", current.Description)

	rec = h.do(http.MethodPost, base+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	current, _ = decode[drafts.View](t, rec).Current.Get()
	assert.Equal(t, "pending", current.Description)

	rec = h.do(http.MethodPost, base+"/document", map[string]string{"data": base64.StdEncoding.EncodeToString([]byte("junk"))})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid_document"}`, rec.Body.String())
}
