// =============================================================================
// Claims Consolidator - Filer Registry
// =============================================================================
//
// The regulator's registry report lists every active filer:
//
//   REGISTRO_OPERADORA;CNPJ;Razao_Social;...;UF;Modalidade;...
//
// Load builds an Index once; after that it is read-only and safe to share
// between goroutines (the query service does).
//
// =============================================================================

package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ginjaninja78/claims-consolidator/internal/csvio"
	"github.com/ginjaninja78/claims-consolidator/internal/validation"
)

// Registry report columns.
const (
	ColRegistryNumber = "REGISTRO_OPERADORA"
	ColCNPJ           = "CNPJ"
	ColName           = "Razao_Social"
	ColRegion         = "UF"
	ColModality       = "Modalidade"
)

// Filer is one registry entry.
type Filer struct {
	RegistryNumber string `json:"registry_number"`
	CNPJ           string `json:"cnpj"`
	Name           string `json:"name"`
	Region         string `json:"region"`
	Modality       string `json:"modality"`
}

// Index is an immutable lookup over the registry.
type Index struct {
	filers     []Filer
	byRegistry map[string]int
	byCNPJ     map[string]int
}

// Load reads the registry report. Rows without a registry number are
// skipped; the first row of each registry number wins.
func Load(path string, opts csvio.ReadOptions) (*Index, error) {
	table, err := csvio.OpenTable(path, opts)
	if err != nil {
		return nil, err
	}
	defer table.Close()

	if err := table.Require(ColRegistryNumber, ColCNPJ, ColName, ColRegion, ColModality); err != nil {
		return nil, fmt.Errorf("invalid registry %s: %w", path, err)
	}

	var filers []Filer
	for table.Next() {
		rec := table.Record()
		filers = append(filers, Filer{
			RegistryNumber: strings.TrimSpace(rec.Get(ColRegistryNumber)),
			CNPJ:           strings.TrimSpace(rec.Get(ColCNPJ)),
			Name:           strings.TrimSpace(rec.Get(ColName)),
			Region:         strings.TrimSpace(rec.Get(ColRegion)),
			Modality:       strings.TrimSpace(rec.Get(ColModality)),
		})
	}
	if err := table.Err(); err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	}

	return NewIndex(filers), nil
}

// NewIndex builds an Index from filers in order, applying the same
// first-wins rule as Load.
func NewIndex(filers []Filer) *Index {
	idx := &Index{
		byRegistry: make(map[string]int, len(filers)),
		byCNPJ:     make(map[string]int, len(filers)),
	}
	for _, f := range filers {
		if f.RegistryNumber == "" {
			continue
		}
		if _, dup := idx.byRegistry[f.RegistryNumber]; dup {
			continue
		}
		pos := len(idx.filers)
		idx.filers = append(idx.filers, f)
		idx.byRegistry[f.RegistryNumber] = pos

		if digits := validation.Digits(f.CNPJ); digits != "" {
			if _, dup := idx.byCNPJ[digits]; !dup {
				idx.byCNPJ[digits] = pos
			}
		}
	}
	return idx
}

// Len returns the number of filers.
func (idx *Index) Len() int { return len(idx.filers) }

// Lookup finds a filer by registry number.
func (idx *Index) Lookup(registryNumber string) (Filer, bool) {
	pos, ok := idx.byRegistry[strings.TrimSpace(registryNumber)]
	if !ok {
		return Filer{}, false
	}
	return idx.filers[pos], true
}

// LookupAny resolves a key that may be a CNPJ or a registry number. Keys
// with at least 11 digits are tried as a CNPJ first.
func (idx *Index) LookupAny(key string) (Filer, bool) {
	digits := validation.Digits(key)
	if digits == "" {
		return Filer{}, false
	}
	if len(digits) >= 11 {
		if pos, ok := idx.byCNPJ[digits]; ok {
			return idx.filers[pos], true
		}
	}
	return idx.Lookup(digits)
}

// Search returns the filers whose name contains q (case-insensitive), or
// whose CNPJ or registry number contains the digits of q. A blank query
// matches everything. Results keep registry order.
func (idx *Index) Search(q string) []Filer {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return idx.All()
	}
	digits := validation.Digits(q)

	var out []Filer
	for _, f := range idx.filers {
		if strings.Contains(strings.ToLower(f.Name), q) ||
			(digits != "" && strings.Contains(validation.Digits(f.CNPJ), digits)) ||
			(digits != "" && strings.Contains(f.RegistryNumber, digits)) {
			out = append(out, f)
		}
	}
	return out
}

// All returns a copy of every filer in registry order.
func (idx *Index) All() []Filer {
	return append([]Filer(nil), idx.filers...)
}

// =============================================================================
// DOWNLOAD
// =============================================================================

// Downloader fetches a URL into a local file.
type Downloader interface {
	DownloadFile(ctx context.Context, url, target string) error
}

// EnsureDownloaded fetches the registry into path unless the file already
// exists. It reports whether a download happened.
func EnsureDownloaded(ctx context.Context, d Downloader, url, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := d.DownloadFile(ctx, url, path); err != nil {
		return false, fmt.Errorf("failed to download registry: %w", err)
	}
	return true, nil
}
