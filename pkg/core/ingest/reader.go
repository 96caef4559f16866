// Package ingest reads the canonical per-filing fact streams produced by the
// external XBRL parser. Extractors in the field occasionally emit slightly
// malformed JSON (trailing commas, comments, unquoted keys), so parsing runs
// a ladder: strict JSON, then automated repair, then Hjson as the most
// lenient form.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
	log "github.com/sirupsen/logrus"

	"xbrl_warehouse/pkg/models"
)

// ReadDir loads every filing document under dir (non-recursive, *.json),
// sorted by file name for deterministic processing order. Unreadable or
// unparseable files are skipped with a warning; the pipeline never fails a
// whole corpus on one bad file.
func ReadDir(dir string) ([]*models.FilingDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read filings directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var docs []*models.FilingDocument
	for _, name := range names {
		path := filepath.Join(dir, name)
		doc, err := ReadFile(path)
		if err != nil {
			log.WithFields(log.Fields{"file": name, "error": err}).Warn("skipping unreadable filing document")
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ReadFile loads a single filing document through the parse ladder.
func ReadFile(path string) (*models.FilingDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc.Company == "" {
		return nil, fmt.Errorf("filing document %s has no company ticker", path)
	}
	if len(doc.Facts) == 0 {
		return nil, fmt.Errorf("filing document %s carries no facts", path)
	}
	return doc, nil
}

// Parse decodes a filing document, trying strict JSON first, then repair,
// then Hjson.
func Parse(raw []byte) (*models.FilingDocument, error) {
	var doc models.FilingDocument
	if err := json.Unmarshal(raw, &doc); err == nil {
		return &doc, nil
	}

	repaired, err := jsonrepair.RepairJSON(string(raw))
	if err == nil {
		doc = models.FilingDocument{}
		if err := json.Unmarshal([]byte(repaired), &doc); err == nil {
			log.Debug("filing document recovered via JSON repair")
			return &doc, nil
		}
	}

	var lenient interface{}
	if err := hjson.Unmarshal(raw, &lenient); err == nil {
		normalized, err := json.Marshal(lenient)
		if err == nil {
			doc = models.FilingDocument{}
			if err := json.Unmarshal(normalized, &doc); err == nil {
				log.Debug("filing document recovered via Hjson parse")
				return &doc, nil
			}
		}
	}

	return nil, fmt.Errorf("all parsing strategies failed")
}
