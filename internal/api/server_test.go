package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/claims-consolidator/internal/config"
	"github.com/ginjaninja78/claims-consolidator/internal/csvio"
	"github.com/ginjaninja78/claims-consolidator/internal/logging"
	"github.com/ginjaninja78/claims-consolidator/internal/registry"
)

const expensesCSV = "FilerID,DisplayName,QuarterLabel,Year,ExpenseValue\n" +
	"123456,,2T,2024,200.00\n" +
	"123456,,1T,2024,100.00\n" +
	"654321,,1T,2024,\"1.000,50\"\n" +
	"123456,,4T,2023,50.00\n" +
	"999999,,1T,2024,10.00\n"

func testIndex() *registry.Index {
	return registry.NewIndex([]registry.Filer{
		{RegistryNumber: "123456", CNPJ: "11.222.333/0001-81", Name: "Alpha Saude", Region: "SP", Modality: "Cooperativa"},
		{RegistryNumber: "654321", CNPJ: "45997418000153", Name: "Beta Planos", Region: "RJ", Modality: "Autogestao"},
		{RegistryNumber: "111111", CNPJ: "", Name: "Gamma Vida", Region: "", Modality: ""},
	})
}

func testDataset(t *testing.T) *Dataset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "consolidated.csv")
	require.NoError(t, os.WriteFile(path, []byte(expensesCSV), 0o644))

	expenses, err := LoadExpenses(path)
	require.NoError(t, err)
	return NewDataset(testIndex(), expenses)
}

func testServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := config.ServerConfig{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
		MaxPageSize:     2,
	}
	return NewServer(cfg, testDataset(t), logging.Discard(), reg), reg
}

func get(t *testing.T, h http.Handler, target string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestLoadExpensesMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("FilerID,Year\n1,2024\n"), 0o644))

	_, err := LoadExpenses(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, csvio.ErrMissingColumns)
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, s.Routes(), "/api/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListFilers(t *testing.T) {
	s, _ := testServer(t)
	h := s.Routes()

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantTotal int
		wantIDs   []string
		wantLimit int
	}{
		{"first page", "/api/filers?limit=1", http.StatusOK, 3, []string{"123456"}, 1},
		{"second page", "/api/filers?limit=1&page=2", http.StatusOK, 3, []string{"654321"}, 1},
		{"limit capped", "/api/filers?limit=50", http.StatusOK, 3, []string{"123456", "654321"}, 2},
		{"past the end", "/api/filers?page=9", http.StatusOK, 3, []string{}, 2},
		{"huge page", "/api/filers?page=100000000000000001&limit=2", http.StatusOK, 3, []string{}, 2},
		{"by name", "/api/filers?q=BETA", http.StatusOK, 1, []string{"654321"}, 2},
		{"by cnpj digits", "/api/filers?q=11.222.333", http.StatusOK, 1, []string{"123456"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var page FilerPage
			assert.Equal(t, tt.wantCode, get(t, h, tt.target, &page))
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantLimit, page.Limit)

			ids := []string{}
			for _, f := range page.Data {
				ids = append(ids, f.RegistryNumber)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestListFilersBadParams(t *testing.T) {
	s, _ := testServer(t)
	var body errorResponse
	assert.Equal(t, http.StatusBadRequest, get(t, s.Routes(), "/api/filers?page=0", &body))
	assert.Contains(t, body.Error, "page")
	assert.Equal(t, http.StatusBadRequest, get(t, s.Routes(), "/api/filers?limit=x", &body))
	assert.Contains(t, body.Error, "limit")
}

func TestGetFiler(t *testing.T) {
	s, _ := testServer(t)
	h := s.Routes()

	var filer registry.Filer
	assert.Equal(t, http.StatusOK, get(t, h, "/api/filers/11222333000181", &filer))
	assert.Equal(t, "Alpha Saude", filer.Name)

	assert.Equal(t, http.StatusOK, get(t, h, "/api/filers/654321", &filer))
	assert.Equal(t, "Beta Planos", filer.Name)

	var body errorResponse
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/filers/000", &body))
	assert.Equal(t, "filer not found", body.Error)
}

func TestFilerExpensesSorted(t *testing.T) {
	s, _ := testServer(t)

	var history ExpenseHistory
	assert.Equal(t, http.StatusOK, get(t, s.Routes(), "/api/filers/11222333000181/expenses", &history))
	assert.Equal(t, "11222333000181", history.CNPJ)
	assert.Equal(t, "123456", history.RegistryNumber)

	type period struct {
		Year  int
		Label string
	}
	got := []period{}
	for _, e := range history.Data {
		got = append(got, period{e.Year, e.QuarterLabel})
	}
	assert.Equal(t, []period{{2023, "4T"}, {2024, "1T"}, {2024, "2T"}}, got)
}

func TestFilerExpensesEmpty(t *testing.T) {
	s, _ := testServer(t)

	var history ExpenseHistory
	assert.Equal(t, http.StatusOK, get(t, s.Routes(), "/api/filers/111111/expenses", &history))
	assert.NotNil(t, history.Data)
	assert.Empty(t, history.Data)
}

func TestStatistics(t *testing.T) {
	s, _ := testServer(t)

	var st Statistics
	assert.Equal(t, http.StatusOK, get(t, s.Routes(), "/api/statistics", &st))
	assert.InDelta(t, 1360.50, st.Total, 1e-9)
	assert.InDelta(t, 272.10, st.Mean, 1e-9)

	require.Len(t, st.Top, 3)
	assert.Equal(t, NamedTotal{Name: "Beta Planos", Total: 1000.50}, st.Top[0])
	assert.Equal(t, NamedTotal{Name: "Alpha Saude", Total: 350}, st.Top[1])
	assert.Equal(t, NamedTotal{Name: "999999", Total: 10}, st.Top[2])

	assert.Equal(t, []NamedTotal{
		{Name: "RJ", Total: 1000.50},
		{Name: "SP", Total: 350},
		{Name: UnknownLabel, Total: 10},
	}, st.ByRegion)
}

func TestStatisticsEmptyDataset(t *testing.T) {
	st := NewDataset(testIndex(), nil).Statistics()
	assert.Zero(t, st.Total)
	assert.Zero(t, st.Mean)
	assert.Empty(t, st.Top)
	assert.Empty(t, st.ByRegion)
}

func TestMetricsEndpoint(t *testing.T) {
	s, reg := testServer(t)
	h := s.Routes()

	get(t, h, "/api/filers/123456", nil)
	get(t, h, "/api/filers/654321", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.requests.WithLabelValues(http.MethodGet, "/api/filers/{id}", "200")))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "consolidator_http_requests_total")

	count, err := testutil.GatherAndCount(reg, "consolidator_http_requests_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)
}
