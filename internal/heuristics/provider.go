package heuristics

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"archscore/internal/domain"
)

//go:embed defaults.yaml
var embeddedDefaults []byte

// DefaultSubtype is the fallback row of every component type.
const DefaultSubtype = "default"

const linksKey = "LINKS"

// Table is a parsed default-heuristics document.
type Table struct {
	Components map[domain.ComponentType]map[string]map[domain.Parameter]float64
	Links      map[domain.LinkType]map[domain.Parameter]float64
}

// ParseTable decodes a defaults document. Unknown types, unknown parameters
// and out of range scores are rejected.
func ParseTable(data []byte) (*Table, error) {
	var raw map[string]map[string]map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse heuristics table: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: heuristics table is empty", domain.ErrValidation)
	}
	t := &Table{
		Components: map[domain.ComponentType]map[string]map[domain.Parameter]float64{},
		Links:      map[domain.LinkType]map[domain.Parameter]float64{},
	}
	for key, rows := range raw {
		if key == linksKey {
			for ltName, scores := range rows {
				lt, err := domain.ParseLinkType(ltName)
				if err != nil {
					return nil, fmt.Errorf("LINKS: %w", err)
				}
				row, err := parseRow(scores)
				if err != nil {
					return nil, fmt.Errorf("LINKS.%s: %w", lt, err)
				}
				t.Links[lt] = row
			}
			continue
		}
		ct, err := domain.ParseComponentType(key)
		if err != nil {
			return nil, err
		}
		t.Components[ct] = map[string]map[domain.Parameter]float64{}
		for subtype, scores := range rows {
			row, err := parseRow(scores)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", ct, subtype, err)
			}
			t.Components[ct][subtype] = row
		}
	}
	return t, nil
}

func parseRow(scores map[string]float64) (map[domain.Parameter]float64, error) {
	row := make(map[domain.Parameter]float64, len(scores))
	for name, v := range scores {
		p, err := domain.ParseParameter(name)
		if err != nil {
			return nil, err
		}
		if err := domain.ValidateScore(p, v); err != nil {
			return nil, err
		}
		row[p] = v
	}
	return row, nil
}

// Provider serves default heuristics from a Table that can be swapped at
// runtime. Readers never block on a reload.
type Provider struct {
	table atomic.Pointer[Table]
}

// NewProvider returns a provider backed by the built-in table.
func NewProvider() *Provider {
	t, err := ParseTable(embeddedDefaults)
	if err != nil {
		panic(fmt.Sprintf("embedded heuristics table: %v", err))
	}
	p := &Provider{}
	p.table.Store(t)
	return p
}

// LoadProvider returns a provider backed by the file at path.
func LoadProvider(path string) (*Provider, error) {
	p := &Provider{}
	if err := p.LoadFile(path); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile replaces the current table with the file at path. On error the
// previous table stays active.
func (p *Provider) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	t, err := ParseTable(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	p.table.Store(t)
	return nil
}

func (p *Provider) Swap(t *Table) {
	if t != nil {
		p.table.Store(t)
	}
}

func (p *Provider) current() *Table {
	if t := p.table.Load(); t != nil {
		return t
	}
	return &Table{}
}

// ForType returns a fresh profile for (t, subtype). An unknown subtype falls
// back to the default row; parameters the row does not name start neutral.
func (p *Provider) ForType(t domain.ComponentType, subtype string) domain.HeuristicProfile {
	rows := p.current().Components[t]
	row, ok := rows[subtype]
	if !ok {
		row, ok = rows[strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToUpper(strings.TrimSpace(subtype)))]
	}
	if !ok {
		row = rows[DefaultSubtype]
	}
	return seeded(row)
}

func (p *Provider) ForLinkType(lt domain.LinkType) domain.HeuristicProfile {
	return seeded(p.current().Links[lt])
}

func seeded(row map[domain.Parameter]float64) domain.HeuristicProfile {
	h := domain.NeutralProfile()
	for k, v := range row {
		h[k] = v
	}
	return h
}

// Subtypes lists the subtypes known for t, default first and the rest sorted.
func (p *Provider) Subtypes(t domain.ComponentType) []string {
	rows := p.current().Components[t]
	out := make([]string, 0, len(rows))
	for name := range rows {
		if name != DefaultSubtype {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	if _, ok := rows[DefaultSubtype]; ok {
		out = append([]string{DefaultSubtype}, out...)
	}
	return out
}

// Adjusted returns ForType(t, subtype) with property adjustments applied.
func (p *Provider) Adjusted(t domain.ComponentType, subtype string, props domain.Properties) domain.HeuristicProfile {
	h := p.ForType(t, subtype)
	ApplyProperties(&h, props)
	return h
}

// ApplyProperties nudges scores for replication, scale-out and sizing hints.
func ApplyProperties(h *domain.HeuristicProfile, props domain.Properties) {
	if len(props) == 0 {
		return
	}
	if replicas, ok := props.Int("replicas"); ok && replicas > 1 {
		h.Adjust(domain.Availability, 1.0)
		h.Adjust(domain.Durability, 0.5)
		h.Adjust(domain.Cost, -0.5*float64(replicas))
	}
	if props.Has("memoryGB") || props.Has("storageGB") {
		h.Adjust(domain.Cost, -0.5)
		h.Adjust(domain.Throughput, 0.5)
	}
	if instances, ok := props.Int("instances"); ok && instances > 1 {
		h.Adjust(domain.Scalability, 1.0)
		h.Adjust(domain.Availability, 0.5)
		h.Adjust(domain.Cost, -0.3*float64(instances))
	}
}
