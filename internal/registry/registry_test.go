package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/claims-consolidator/internal/csvio"
)

const registryCSV = "REGISTRO_OPERADORA;CNPJ;Razao_Social;Nome_Fantasia;UF;Modalidade\n" +
	"123456;11.222.333/0001-81;Alpha Saúde S.A.;Alpha;SP;Cooperativa Médica\n" +
	"654321;45997418000153;Beta Planos Ltda;Beta;RJ;Autogestão\n" +
	"123456;00000000000000;Duplicate Alpha;Dup;MG;Other\n" +
	";99999999999999;No Registry;;PR;Other\n"

func writeRegistry(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Relatorio_cadop.csv")
	require.NoError(t, os.WriteFile(path, []byte(registryCSV), 0o644))
	return path
}

func loadIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Load(writeRegistry(t), csvio.ReadOptions{Delimiter: ';'})
	require.NoError(t, err)
	return idx
}

func TestLoadFirstRowWins(t *testing.T) {
	idx := loadIndex(t)
	assert.Equal(t, 2, idx.Len())

	f, ok := idx.Lookup("123456")
	require.True(t, ok)
	assert.Equal(t, "Alpha Saúde S.A.", f.Name)
	assert.Equal(t, "SP", f.Region)
	assert.Equal(t, "Cooperativa Médica", f.Modality)

	_, ok = idx.Lookup("999")
	assert.False(t, ok)
}

func TestLoadMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.csv")
	require.NoError(t, os.WriteFile(path, []byte("REGISTRO_OPERADORA;CNPJ\n1;2\n"), 0o644))

	_, err := Load(path, csvio.ReadOptions{Delimiter: ';'})
	require.Error(t, err)
	assert.ErrorIs(t, err, csvio.ErrMissingColumns)
	assert.Contains(t, err.Error(), "Razao_Social")
}

func TestLookupAny(t *testing.T) {
	idx := loadIndex(t)

	tests := []struct {
		key      string
		wantName string
		wantOK   bool
	}{
		{"11.222.333/0001-81", "Alpha Saúde S.A.", true},
		{"11222333000181", "Alpha Saúde S.A.", true},
		{"654321", "Beta Planos Ltda", true},
		{" 654321 ", "Beta Planos Ltda", true},
		{"00000000000000", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			f, ok := idx.LookupAny(tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, f.Name)
		})
	}
}

func TestSearch(t *testing.T) {
	idx := loadIndex(t)

	assert.Len(t, idx.Search(""), 2)

	byName := idx.Search("beta")
	require.Len(t, byName, 1)
	assert.Equal(t, "654321", byName[0].RegistryNumber)

	byCNPJ := idx.Search("11.222")
	require.Len(t, byCNPJ, 1)
	assert.Equal(t, "123456", byCNPJ[0].RegistryNumber)

	byRegistry := idx.Search("4321")
	require.Len(t, byRegistry, 1)
	assert.Equal(t, "Beta Planos Ltda", byRegistry[0].Name)

	assert.Empty(t, idx.Search("gamma"))
}

func TestAllReturnsCopy(t *testing.T) {
	idx := loadIndex(t)
	all := idx.All()
	all[0].Name = "changed"

	f, _ := idx.Lookup("123456")
	assert.Equal(t, "Alpha Saúde S.A.", f.Name)
}

func TestEnrich(t *testing.T) {
	idx := loadIndex(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "consolidated.csv")
	out := filepath.Join(dir, "enriched.csv")

	content := strings.Join([]string{
		"FilerID,DisplayName,QuarterLabel,Year,ExpenseValue",
		"123456,,1T,2024,100.00",
		"777,,1T,2024,50.00",
		"654321,,2T,2024,10.50",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(in, []byte(content), 0o644))

	summary, err := Enrich(in, out, idx)
	require.NoError(t, err)
	assert.Equal(t, EnrichSummary{Rows: 3, Matched: 2, Unmatched: 1}, summary)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	want := "FilerID,DisplayName,QuarterLabel,Year,ExpenseValue,CNPJ,Region,Modality\n" +
		"123456,Alpha Saúde S.A.,1T,2024,100.00,11.222.333/0001-81,SP,Cooperativa Médica\n" +
		"777,,1T,2024,50.00,,,\n" +
		"654321,Beta Planos Ltda,2T,2024,10.50,45997418000153,RJ,Autogestão\n"
	assert.Equal(t, want, string(got))
}

func TestEnrichMissingColumns(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "consolidated.csv")
	require.NoError(t, os.WriteFile(in, []byte("Year,ExpenseValue\n2024,1\n"), 0o644))

	_, err := Enrich(in, filepath.Join(dir, "enriched.csv"), NewIndex(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, csvio.ErrMissingColumns)
	assert.NoFileExists(t, filepath.Join(dir, "enriched.csv"))
}

type fakeDownloader struct {
	calls int
	err   error
}

func (f *fakeDownloader) DownloadFile(_ context.Context, _, target string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(target, []byte(registryCSV), 0o644)
}

func TestEnsureDownloaded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.csv")
	d := &fakeDownloader{}

	downloaded, err := EnsureDownloaded(context.Background(), d, "http://example/registry.csv", path)
	require.NoError(t, err)
	assert.True(t, downloaded)

	downloaded, err = EnsureDownloaded(context.Background(), d, "http://example/registry.csv", path)
	require.NoError(t, err)
	assert.False(t, downloaded)
	assert.Equal(t, 1, d.calls)
}

func TestEnsureDownloadedFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.csv")
	d := &fakeDownloader{err: errors.New("boom")}

	_, err := EnsureDownloaded(context.Background(), d, "http://example/registry.csv", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
