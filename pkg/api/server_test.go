package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/models"
	"github.com/tessera-intel/tessera/pkg/narrative"
	"github.com/tessera-intel/tessera/pkg/store"
)

type stubEFs struct {
	ef  *models.EventFamily
	err error
}

func (s *stubEFs) Get(context.Context, string) (*models.EventFamily, error) {
	return s.ef, s.err
}

type stubTitles struct{ titles []*models.Title }

func (s *stubTitles) MemberTitles(context.Context, string, int) ([]*models.Title, error) {
	return s.titles, nil
}

type stubCTMs struct {
	ctm       *models.CTM
	getErr    error
	refreshed bool
}

func (s *stubCTMs) Get(context.Context, string, string, time.Time) (*models.CTM, error) {
	return s.ctm, s.getErr
}

func (s *stubCTMs) MemberTitles(context.Context, *models.CTM) ([]*models.Title, error) {
	return []*models.Title{{ID: "t1", Text: "headline"}}, nil
}

func (s *stubCTMs) MarkNarrativeRefreshed(context.Context, string, string, time.Time, int) error {
	s.refreshed = true
	return nil
}

type stubFrames struct{ frames []models.NarrativeFrame }

func (s *stubFrames) Frames(context.Context, models.NarrativeEntityType, string) ([]models.NarrativeFrame, error) {
	return s.frames, nil
}

type stubExtractor struct {
	eventErr error
	ctmErr   error
	events   int
	ctms     int
}

func (s *stubExtractor) FrameEvent(context.Context, *models.EventFamily, []*models.Title) error {
	s.events++
	return s.eventErr
}

func (s *stubExtractor) FrameCTM(context.Context, *models.CTM, []*models.Title) error {
	s.ctms++
	return s.ctmErr
}

type serverFixture struct {
	server    *Server
	efs       *stubEFs
	ctms      *stubCTMs
	extractor *stubExtractor
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		efs: &stubEFs{ef: &models.EventFamily{ID: "ef-1", Title: "Strait closure"}},
		ctms: &stubCTMs{ctm: &models.CTM{
			CentroidID: "ARC-UKR",
			Track:      "military",
			Month:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		}},
		extractor: &stubExtractor{},
	}
	f.server = NewServer(
		config.APIConfig{Port: "8080", AuthToken: "secret"},
		nil,
		&stubTitles{titles: []*models.Title{{ID: "t1", Text: "headline"}}},
		f.efs,
		f.ctms,
		&stubFrames{frames: []models.NarrativeFrame{{Label: "aggression"}}},
		f.extractor,
		slog.Default(),
	)
	return f
}

func (f *serverFixture) post(body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/extract", bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestExtractRequiresBearerToken(t *testing.T) {
	f := newTestServer(t)

	rec := f.post(`{"entity_type":"event","entity_id":"ef-1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.post(`{"entity_type":"event","entity_id":"ef-1"}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.extractor.events)
}

func TestExtractEmptyConfiguredTokenRejectsEverything(t *testing.T) {
	f := newTestServer(t)
	f.server.cfg.AuthToken = ""

	rec := f.post(`{"entity_type":"event","entity_id":"ef-1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractBadRequests(t *testing.T) {
	f := newTestServer(t)

	for name, body := range map[string]string{
		"malformed json":    `{"entity_type":`,
		"missing entity_id": `{"entity_type":"event"}`,
		"bad entity_type":   `{"entity_type":"galaxy","entity_id":"x"}`,
		"bad ctm id":        `{"entity_type":"ctm","entity_id":"ARC-UKR/military"}`,
		"bad ctm month":     `{"entity_type":"ctm","entity_id":"ARC-UKR/military/August"}`,
	} {
		rec := f.post(body, "secret")
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestExtractEventNotFound(t *testing.T) {
	f := newTestServer(t)
	f.efs.err = store.ErrNotFound

	rec := f.post(`{"entity_type":"event","entity_id":"missing"}`, "secret")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractInsufficientTitles(t *testing.T) {
	f := newTestServer(t)
	f.extractor.eventErr = narrative.ErrInsufficientTitles

	rec := f.post(`{"entity_type":"event","entity_id":"ef-1"}`, "secret")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestExtractInternalErrorTruncated(t *testing.T) {
	f := newTestServer(t)
	f.extractor.eventErr = errors.New(strings.Repeat("boom ", 200))

	rec := f.post(`{"entity_type":"event","entity_id":"ef-1"}`, "secret")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.LessOrEqual(t, len(body["error"]), maxErrorChars)
}

func TestExtractEventSuccess(t *testing.T) {
	f := newTestServer(t)

	rec := f.post(`{"entity_type":"event","entity_id":"ef-1"}`, "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.extractor.events)

	var body struct {
		EntityType string                  `json:"entity_type"`
		EntityID   string                  `json:"entity_id"`
		Frames     []models.NarrativeFrame `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "event", body.EntityType)
	assert.Equal(t, "ef-1", body.EntityID)
	require.Len(t, body.Frames, 1)
	assert.Equal(t, "aggression", body.Frames[0].Label)
}

func TestExtractCTMSuccessMarksRefresh(t *testing.T) {
	f := newTestServer(t)

	rec := f.post(`{"entity_type":"ctm","entity_id":"ARC-UKR/military/2026-08"}`, "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.extractor.ctms)
	assert.True(t, f.ctms.refreshed)
}

func TestHealthWithoutDatabase(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
