package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ginjaninja78/claims-consolidator/internal/config"
	"github.com/ginjaninja78/claims-consolidator/internal/tabular"
)

func row(origin tabular.Origin, cells ...tabular.Cell) tabular.Row {
	return tabular.Row{Source: "extracted/1T2024/file.csv", Origin: origin, Cells: cells}
}

func TestClassify(t *testing.T) {
	c := Default()

	tests := []struct {
		name       string
		row        tabular.Row
		wantMatch  bool
		wantAmount float64
		wantFiler  string
		wantReason SkipReason
	}{
		{
			name: "claims description with grouped comma decimal",
			row: row(tabular.OriginDelimited,
				tabular.Cell{Label: "REG_ANS", Value: "123456"},
				tabular.Cell{Label: "DESCRICAO", Value: "Despesa com Eventos/Sinistros"},
				tabular.Cell{Label: "VL_SALDO_FINAL", Value: "1.500,00"}),
			wantMatch:  true,
			wantAmount: 1500,
			wantFiler:  "123456",
		},
		{
			name: "english labels",
			row: row(tabular.OriginDelimited,
				tabular.Cell{Label: "Filer ID", Value: "42"},
				tabular.Cell{Label: "Account Description", Value: "CLAIM reserves"},
				tabular.Cell{Label: "Final Balance", Value: "-12.5"}),
			wantMatch:  true,
			wantAmount: -12.5,
			wantFiler:  "42",
		},
		{
			name: "first populated description alias wins",
			row: row(tabular.OriginDelimited,
				tabular.Cell{Label: "descricao", Value: " "},
				tabular.Cell{Label: "conta", Value: "Eventos conhecidos"},
				tabular.Cell{Label: "valor", Value: "10"}),
			wantMatch:  true,
			wantAmount: 10,
		},
		{
			name: "spreadsheet amount uses comma decimal",
			row: row(tabular.OriginSpreadsheet,
				tabular.Cell{Label: "Descrição", Value: "Sinistros"},
				tabular.Cell{Label: "Valor", Value: "1500,5"}),
			wantMatch:  true,
			wantAmount: 1500.5,
		},
		{
			name: "no keyword",
			row: row(tabular.OriginDelimited,
				tabular.Cell{Label: "descricao", Value: "Receitas"},
				tabular.Cell{Label: "valor", Value: "10"}),
			wantReason: NotAnEvent,
		},
		{
			name: "no description column",
			row: row(tabular.OriginDelimited,
				tabular.Cell{Label: "valor", Value: "10"}),
			wantReason: NotAnEvent,
		},
		{
			name: "unparseable amount",
			row: row(tabular.OriginDelimited,
				tabular.Cell{Label: "descricao", Value: "Eventos"},
				tabular.Cell{Label: "valor", Value: "n/a"}),
			wantReason: AmountUnparseable,
		},
		{
			name: "missing amount",
			row: row(tabular.OriginDelimited,
				tabular.Cell{Label: "descricao", Value: "Eventos"}),
			wantReason: AmountUnparseable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := c.Classify(tt.row)
			assert.Equal(t, tt.wantMatch, out.Matched)
			if !tt.wantMatch {
				assert.Equal(t, tt.wantReason, out.Reason)
				return
			}
			assert.InDelta(t, tt.wantAmount, out.Event.Amount, 1e-9)
			assert.Equal(t, tt.wantFiler, out.Event.FilerID)
			assert.Equal(t, tt.row.Source, out.Event.SourceFile)
		})
	}
}

func TestNewSlugifiesConfiguredKeys(t *testing.T) {
	c := New(config.ClassificationConfig{
		Keywords:        []string{"  GLOSA "},
		DescriptionKeys: []string{"Historico Lancamento"},
		AmountKeys:      []string{"VALOR_TOTAL"},
		FilerIDKeys:     []string{"Operadora"},
	})

	out := c.Classify(row(tabular.OriginDelimited,
		tabular.Cell{Label: "OPERADORA", Value: "9"},
		tabular.Cell{Label: "Histórico lançamento", Value: "Glosa de contas"},
		tabular.Cell{Label: "valor total", Value: "3,5"}))

	assert.True(t, out.Matched)
	assert.Equal(t, "9", out.Event.FilerID)
	assert.InDelta(t, 3.5, out.Event.Amount, 1e-9)
}

func TestMentionsEvent(t *testing.T) {
	c := Default()
	assert.True(t, c.MentionsEvent(row(tabular.OriginDelimited, tabular.Cell{Label: "x", Value: "total de SINISTROS"})))
	assert.False(t, c.MentionsEvent(row(tabular.OriginDelimited, tabular.Cell{Label: "x", Value: "receitas"})))
}
