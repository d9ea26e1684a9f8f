// results persists a run's outputs as an indented yaml document. Vectors and
// matrices are flattened to plain lists so the file reads back without gonum.
package results

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

const indent = 2

// Run is the header stored alongside every saved result set.
type Run struct {
	ID      string    `yaml:"id"`
	Created time.Time `yaml:"created"`
}

// NewRun stamps a fresh run id.
func NewRun() Run {
	return Run{
		ID:      uuid.NewString(),
		Created: time.Now().UTC(),
	}
}

// Save writes results to path, creating parent directories as needed.
func Save(path string, results map[string]any) (err error) {
	doc := make(map[string]any, len(results))
	for key, val := range results {
		doc[key] = plain(val)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indent)
	if err = enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	if err = enc.Close(); err != nil {
		return
	}

	if dir := filepath.Dir(path); dir != "." {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return
		}
	}
	if err = os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return
	}

	log.Printf("Results saved to %s", path)
	return nil
}

// Load reads a document written by Save.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	results := map[string]any{}
	if err = yaml.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return results, nil
}

// plain converts gonum values into lists, recursing through maps and slices.
// A vector becomes a flat list, any other matrix a list of rows.
func plain(val any) any {
	switch v := val.(type) {
	case mat.Vector:
		out := make([]float64, v.Len())
		for i := range out {
			out[i] = v.AtVec(i)
		}
		return out
	case mat.Matrix:
		r, _ := v.Dims()
		rows := make([][]float64, r)
		for i := range rows {
			rows[i] = mat.Row(nil, i, v)
		}
		return rows
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			out[key] = plain(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = plain(inner)
		}
		return out
	case Run:
		return map[string]any{"id": v.ID, "created": v.Created.Format(time.RFC3339)}
	}
	return val
}
