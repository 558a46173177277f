// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fieldtrack/tracklog/export"
	"github.com/fieldtrack/tracklog/ingest"
)

const testToken = "secret-token"

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	dataDir := filepath.Join(t.TempDir(), "data")
	log := zaptest.NewLogger(t)
	now := func() time.Time { return time.Unix(1700003600, 0).UTC() }

	ingestConfig := ingest.DefaultConfig()
	ingestConfig.DataDir = dataDir
	ingestService := ingest.NewService(log, ingestConfig)
	ingestService.Now = now

	exportConfig := export.DefaultConfig()
	exportConfig.DataDir = dataDir
	exportService := export.NewService(log, exportConfig)
	exportService.Now = now

	server := NewServer(log, ingestService, exportService, Config{
		Address: "127.0.0.1:0",
		Token:   testToken,
	})
	return server, dataDir
}

func doRequest(t *testing.T, server *Server, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("X-API-Token", token)
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestBatchEndpoint(t *testing.T) {
	server, dataDir := testServer(t)

	body := `[{"ts":1700000000,"latE7":407128000,"lonE7":-740060000,"seq":1}]`
	rec := doRequest(t, server, http.MethodPost, "/gps/batch?device=rover1", testToken, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		OK      bool   `json:"ok"`
		Device  string `json:"device"`
		Written int    `json:"written"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.OK)
	require.Equal(t, "rover1", res.Device)
	require.Equal(t, 1, res.Written)

	_, err := os.Stat(filepath.Join(dataDir, "rover1", "2023-11-14.csv"))
	require.NoError(t, err)
}

func TestBatchDeviceHeader(t *testing.T) {
	server, _ := testServer(t)

	body := `[{"ts":1700000000,"latE7":1,"lonE7":2,"seq":1}]`
	req := httptest.NewRequest(http.MethodPost, "/gps/batch", strings.NewReader(body))
	req.Header.Set("X-API-Token", testToken)
	req.Header.Set("X-Device-Id", "header-dev")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Device string `json:"device"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "header-dev", res.Device)
}

func TestBatchUnauthorized(t *testing.T) {
	server, dataDir := testServer(t)

	for _, token := range []string{"", "wrong-token"} {
		rec := doRequest(t, server, http.MethodPost, "/gps/batch?device=rover1", token, `[]`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var res struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.False(t, res.OK)
		require.Equal(t, "unauthorized", res.Error)
	}

	// rejected before any state is touched
	_, err := os.Stat(filepath.Join(dataDir, "rover1"))
	require.True(t, os.IsNotExist(err))
}

func TestBatchMalformedBody(t *testing.T) {
	server, _ := testServer(t)

	rec := doRequest(t, server, http.MethodPost, "/gps/batch?device=rover1", testToken, `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var res struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.False(t, res.OK)
	require.NotEmpty(t, res.Error)
}

func TestGeoJSONEndpoint(t *testing.T) {
	server, _ := testServer(t)

	body := `[
		{"ts":1700000000,"latE7":407128000,"lonE7":-740060000,"seq":1},
		{"ts":1700000060,"latE7":407138000,"lonE7":-740060000,"seq":2}
	]`
	rec := doRequest(t, server, http.MethodPost, "/gps/batch?device=rover1", testToken, body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server, http.MethodGet, "/gps/geojson?device=rover1&hours=24", testToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Cache-Control"), "no-store")

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string          `json:"type"`
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	require.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	require.Equal(t, "LineString", fc.Features[0].Geometry.Type)
}

func TestGeoJSONUnknownDevice(t *testing.T) {
	server, _ := testServer(t)

	rec := doRequest(t, server, http.MethodGet, "/gps/geojson?device=ghost", testToken, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGeoJSONBadWindow(t *testing.T) {
	server, _ := testServer(t)

	body := `[{"ts":1700000000,"latE7":1,"lonE7":2,"seq":1}]`
	rec := doRequest(t, server, http.MethodPost, "/gps/batch?device=rover1", testToken, body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server, http.MethodGet, "/gps/geojson?device=rover1&begin_ts=1700000100&end_ts=1700000000", testToken, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := testServer(t)

	rec := doRequest(t, server, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res["ok"])
}
