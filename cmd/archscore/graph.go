package main

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"archscore/internal/domain"
)

// graphFile is the on-disk form accepted by `archscore evaluate -f`. JSON is
// a subset of YAML, so both parse here.
type graphFile struct {
	ID         string           `yaml:"id"`
	Name       string           `yaml:"name"`
	Components []graphComponent `yaml:"components"`
	Links      []graphLink      `yaml:"links"`
}

type graphComponent struct {
	ID         string             `yaml:"id"`
	Name       string             `yaml:"name"`
	Type       string             `yaml:"type"`
	Subtype    string             `yaml:"subtype"`
	Properties map[string]any     `yaml:"properties"`
	Heuristics map[string]float64 `yaml:"heuristics"`
}

type graphLink struct {
	ID         string             `yaml:"id"`
	Source     string             `yaml:"source"`
	Target     string             `yaml:"target"`
	Type       string             `yaml:"type"`
	Heuristics map[string]float64 `yaml:"heuristics"`
}

func loadGraphFile(path string) (domain.Architecture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Architecture{}, err
	}
	return parseGraph(data)
}

func parseGraph(data []byte) (domain.Architecture, error) {
	var g graphFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return domain.Architecture{}, fmt.Errorf("%w: parse graph: %v", domain.ErrValidation, err)
	}
	arch := domain.Architecture{ID: g.ID, Name: g.Name}
	if arch.ID == "" {
		arch.ID = "adhoc"
	}
	seen := make(map[string]bool, len(g.Components))
	for i, in := range g.Components {
		ct, err := domain.ParseComponentType(in.Type)
		if err != nil {
			return domain.Architecture{}, fmt.Errorf("component %d: %w", i+1, err)
		}
		id := in.ID
		if id == "" {
			id = fmt.Sprintf("component-%d", i+1)
		}
		if seen[id] {
			return domain.Architecture{}, fmt.Errorf("%w: duplicate component id %q", domain.ErrValidation, id)
		}
		seen[id] = true
		scores, err := graphScores(in.Heuristics)
		if err != nil {
			return domain.Architecture{}, fmt.Errorf("component %s: %w", id, err)
		}
		arch.Components = append(arch.Components, domain.Component{
			ID:         id,
			Name:       in.Name,
			Type:       ct,
			Subtype:    in.Subtype,
			Properties: domain.Properties(in.Properties),
			Heuristics: scores,
		})
	}
	for i, in := range g.Links {
		lt, err := domain.ParseLinkType(in.Type)
		if err != nil {
			return domain.Architecture{}, fmt.Errorf("link %d: %w", i+1, err)
		}
		id := in.ID
		if id == "" {
			id = fmt.Sprintf("link-%d", i+1)
		}
		scores, err := graphScores(in.Heuristics)
		if err != nil {
			return domain.Architecture{}, fmt.Errorf("link %s: %w", id, err)
		}
		arch.Links = append(arch.Links, domain.Link{ID: id, SourceID: in.Source, TargetID: in.Target, Type: lt, Heuristics: scores})
	}
	return arch, nil
}

func graphScores(in map[string]float64) (domain.HeuristicProfile, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := domain.NewProfile()
	for name, v := range in {
		p, err := domain.ParseParameter(name)
		if err != nil {
			return nil, err
		}
		if err := out.Set(p, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
