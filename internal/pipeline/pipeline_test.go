package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/claims-consolidator/internal/classify"
	"github.com/ginjaninja78/claims-consolidator/internal/config"
	"github.com/ginjaninja78/claims-consolidator/internal/logging"
	"github.com/ginjaninja78/claims-consolidator/internal/tabular"
)

const registryFixture = "REGISTRO_OPERADORA;CNPJ;Razao_Social;UF;Modalidade\n" +
	"123456;11.222.333/0001-81;Alpha Saude;SP;Cooperativa Medica\n"

type failingDownloader struct{}

func (failingDownloader) DownloadFile(context.Context, string, string) error {
	return errors.New("network disabled in tests")
}

func writeText(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeWorkbook(t *testing.T, path string, rows [][]any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

// fixture lays out one quarter with a delimited file and a workbook that
// both report the same filer, plus an unreadable file.
func fixture(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Paths.ArchivesDir = filepath.Join(root, "archives")
	cfg.Paths.ExtractDir = filepath.Join(root, "extracted")
	cfg.Paths.OutputDir = filepath.Join(root, "output")
	cfg.Registry.Path = filepath.Join(root, "registry", "Relatorio_cadop.csv")

	quarter := filepath.Join(cfg.Paths.ExtractDir, "1T2024")
	writeText(t, filepath.Join(quarter, "a.csv"),
		"REG_ANS;DESCRICAO;VL_SALDO_FINAL\n"+
			"123456;EVENTOS/ SINISTROS CONHECIDOS;50,00\n"+
			"123456;Outras despesas;10,00\n"+
			"123456;Sinistros a liquidar;n/a\n")
	writeWorkbook(t, filepath.Join(quarter, "b.xlsx"), [][]any{
		{"REG_ANS", "DESCRICAO", "VL_SALDO_FINAL"},
		{"123456", "Sinistros avisados", 25},
	})
	writeText(t, filepath.Join(quarter, "broken.csv"), "single-column\nvalue\n")
	writeText(t, filepath.Join(quarter, "notes.md"), "ignored")
	writeText(t, cfg.Registry.Path, registryFixture)

	return cfg
}

func newPipeline(cfg *config.Config, reg prometheus.Registerer) *Pipeline {
	p := New(cfg, logging.Discard(), NewMetrics(reg))
	p.Downloader = failingDownloader{}
	return p
}

func TestReadFile(t *testing.T) {
	cfg := fixture(t)
	path := filepath.Join(cfg.Paths.ExtractDir, "1T2024", "a.csv")

	result := ReadFile(path, classify.Default(), tabular.Options{})
	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, 1, result.Dropped)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "123456", result.Events[0].FilerID)
	assert.InDelta(t, 50.0, result.Events[0].Amount, 1e-9)
	assert.Equal(t, path, result.Events[0].SourceFile)
	assert.Equal(t, tabular.OriginDelimited, result.Origin)
	assert.Equal(t, ';', result.Delimiter)
}

func TestReadFileSpreadsheetOrigin(t *testing.T) {
	cfg := fixture(t)
	path := filepath.Join(cfg.Paths.ExtractDir, "1T2024", "b.xlsx")

	result := ReadFile(path, classify.Default(), tabular.Options{})
	require.NoError(t, result.Err)
	assert.Equal(t, tabular.OriginSpreadsheet, result.Origin)
	assert.Equal(t, "spreadsheet", result.Origin.String())
	assert.Zero(t, result.Delimiter)
	require.Len(t, result.Events, 1)
	assert.InDelta(t, 25.0, result.Events[0].Amount, 1e-9)
}

func TestReadFileSkipsUnreadable(t *testing.T) {
	cfg := fixture(t)
	path := filepath.Join(cfg.Paths.ExtractDir, "1T2024", "broken.csv")

	result := ReadFile(path, classify.Default(), tabular.Options{})
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, tabular.ErrNoDelimiter)
	assert.True(t, result.Skipped())
	assert.Empty(t, result.Events)
}

func TestConsolidateMergesFiles(t *testing.T) {
	cfg := fixture(t)
	reg := prometheus.NewRegistry()
	p := newPipeline(cfg, reg)

	result, err := p.Consolidate(context.Background(), cfg.Paths.ExtractDir)
	require.NoError(t, err)

	assert.Len(t, result.Files, 3)
	assert.Equal(t, 2, result.ReadFiles())
	require.Len(t, result.Entries, 1)
	assert.InDelta(t, 75.0, result.Entries[0].Total, 1e-9)
	assert.Empty(t, result.Inconsistencies)
	assert.Empty(t, result.InconsistenciesPath)

	data, err := os.ReadFile(result.ConsolidatedPath)
	require.NoError(t, err)
	assert.Equal(t, "FilerID,DisplayName,QuarterLabel,Year,ExpenseValue\n123456,,1T,2024,75.00\n", string(data))

	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.FilesRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.FilesSkipped))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.Events))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.DroppedRows))
}

func TestConsolidateIsReproducible(t *testing.T) {
	cfg := fixture(t)
	quarter := filepath.Join(cfg.Paths.ExtractDir, "2T2024")
	for i, amount := range []string{"0,10", "0,20", "0,30", "-1,00", "12.345,67"} {
		writeText(t, filepath.Join(quarter, "part"+string(rune('a'+i))+".csv"),
			"REG_ANS;DESCRICAO;VL_SALDO_FINAL\n"+
				"654321;Eventos;"+amount+"\n"+
				";Eventos;1,00\n")
	}
	writeText(t, filepath.Join(cfg.Paths.ExtractDir, "annual", "x.csv"),
		"REG_ANS;DESCRICAO;VL_SALDO_FINAL\n1;Eventos;1,00\n")

	outputs := make([]string, 0, 2)
	incs := make([]string, 0, 2)
	for _, workers := range []int{1, 8} {
		cfg.Processing.MaxConcurrency = workers
		p := newPipeline(cfg, prometheus.NewRegistry())

		result, err := p.Consolidate(context.Background(), cfg.Paths.ExtractDir)
		require.NoError(t, err)
		require.NotEmpty(t, result.InconsistenciesPath)

		data, err := os.ReadFile(result.ConsolidatedPath)
		require.NoError(t, err)
		outputs = append(outputs, string(data))

		data, err = os.ReadFile(result.InconsistenciesPath)
		require.NoError(t, err)
		incs = append(incs, string(data))
	}

	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, incs[0], incs[1])
	assert.Contains(t, outputs[0], "654321,,2T,2024,12345.27\n")
	assert.Contains(t, incs[0], "EMPTY_FILER_ID")
	assert.Contains(t, incs[0], "INVALID_QUARTER")
	assert.Contains(t, incs[0], "NON_POSITIVE_VALUE")
}

func TestRun(t *testing.T) {
	cfg := fixture(t)
	p := newPipeline(cfg, prometheus.NewRegistry())

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.TotalFiles)
	assert.Equal(t, 1, summary.SkippedFiles)
	assert.Equal(t, 1, summary.Entries)
	assert.Equal(t, 1, summary.MatchedRows)
	assert.Zero(t, summary.InvalidRows)
	assert.Equal(t, 1, summary.Groups)

	out := cfg.Paths.OutputDir
	for _, name := range []string{
		ConsolidatedFile, EnrichedFile, ValidatedFile, ValidationErrorsFile,
		AggregatedFile, ConsolidatedArchive, AggregatedArchive,
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.NoFileExists(t, filepath.Join(out, InconsistenciesFile))

	validated, err := os.ReadFile(filepath.Join(out, ValidatedFile))
	require.NoError(t, err)
	assert.Equal(t,
		"FilerID,DisplayName,QuarterLabel,Year,ExpenseValue,CNPJ,Region,Modality,StatusValue,StatusDisplayName,StatusFilerID\n"+
			"123456,Alpha Saude,1T,2024,75.00,11.222.333/0001-81,SP,Cooperativa Medica,OK,OK,OK\n",
		string(validated))

	aggregated, err := os.ReadFile(filepath.Join(out, AggregatedFile))
	require.NoError(t, err)
	assert.Equal(t,
		"DisplayName,Region,TotalExpense,QuarterlyMean,QuarterlyStdDev,QuarterCount\n"+
			"Alpha Saude,SP,75.00,75.00,0.00,1\n",
		string(aggregated))

	logs, err := filepath.Glob(filepath.Join(out, "run_summary_*.txt"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRunWithoutRegistryFails(t *testing.T) {
	cfg := fixture(t)
	require.NoError(t, os.Remove(cfg.Registry.Path))
	p := newPipeline(cfg, prometheus.NewRegistry())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "enrich:"))
}

func TestScan(t *testing.T) {
	cfg := fixture(t)
	writeText(t, filepath.Join(cfg.Paths.ExtractDir, "1T2024", "c.csv"),
		"CONTA;VALOR\nReceitas;1,00\n")
	p := newPipeline(cfg, prometheus.NewRegistry())

	result, err := p.Scan(context.Background(), cfg.Paths.ExtractDir)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Files)
	assert.Equal(t, []string{
		filepath.Join(cfg.Paths.ExtractDir, "1T2024", "a.csv"),
		filepath.Join(cfg.Paths.ExtractDir, "1T2024", "b.xlsx"),
	}, result.Matching)
	assert.Equal(t, []string{filepath.Join(cfg.Paths.ExtractDir, "1T2024", "broken.csv")}, result.Skipped)
}

func TestReadAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := readAll(ctx, []string{"a", "b"}, 2, func(p string) string { return p })
	require.ErrorIs(t, err, context.Canceled)
}
