// Package seed reads the jurisdiction feed (CSV) and the datapoint catalog (YAML).
package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/user/legalcode-service/internal/entity"
)

// Columns the location feed must carry; order is free.
var requiredColumns = []string{"id", "name", "state", "platform"}

// ReadLocations parses a CSV with a header row. Recognized columns are id,
// name, state, platform, domains and seed_urls; list columns are separated by
// "|". Unknown columns are ignored.
func ReadLocations(r io.Reader) ([]*entity.Location, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var locs []*entity.Location
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if field("id") == "" && field("name") == "" {
			continue
		}
		locs = append(locs, &entity.Location{
			ID:       field("id"),
			Name:     field("name"),
			State:    strings.ToUpper(field("state")),
			Platform: entity.Platform(strings.ToLower(field("platform"))),
			Domains:  splitList(strings.ToLower(field("domains"))),
			SeedURLs: splitList(field("seed_urls")),
		})
	}
	return locs, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "|") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type catalog struct {
	Datapoints []*entity.Datapoint `yaml:"datapoints"`
}

// ReadDatapoints parses a document of the form:
//
//	datapoints:
//	  - id: sales-tax
//	    name: sales tax
//	    synonyms: [use tax]
func ReadDatapoints(r io.Reader) ([]*entity.Datapoint, error) {
	var c catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode datapoints: %w", err)
	}
	return c.Datapoints, nil
}

// LoadFiles reads both seed files from disk.
func LoadFiles(locationsPath, datapointsPath string) ([]*entity.Location, []*entity.Datapoint, error) {
	lf, err := os.Open(locationsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open locations: %w", err)
	}
	defer lf.Close()
	locs, err := ReadLocations(lf)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", locationsPath, err)
	}

	df, err := os.Open(datapointsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open datapoints: %w", err)
	}
	defer df.Close()
	dps, err := ReadDatapoints(df)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", datapointsPath, err)
	}
	return locs, dps, nil
}
