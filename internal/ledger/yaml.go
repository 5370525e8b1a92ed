package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/me/jobtree/pkg/model"
)

// YAMLStore keeps the ledger in a single YAML document mapping job
// names to their run records. Handy for inspecting and hand-editing
// run state.
type YAMLStore struct {
	path   string
	logger *slog.Logger
}

// NewYAMLStore creates a store writing to path.
func NewYAMLStore(path string, logger *slog.Logger) *YAMLStore {
	return &YAMLStore{
		path:   path,
		logger: logger.With("component", "ledger"),
	}
}

func (s *YAMLStore) Load(ctx context.Context) (model.Ledger, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Debug("no run file yet", "path", s.path)
		return make(model.Ledger), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}

	var doc map[string][]*model.RunRecord
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse run file %s: %w", s.path, err)
	}

	ledger := make(model.Ledger, len(doc))
	for job, records := range doc {
		for _, rec := range records {
			ledger.Record(job, rec)
		}
	}
	return ledger, nil
}

func (s *YAMLStore) Save(ctx context.Context, l model.Ledger) error {
	existing, err := s.Load(ctx)
	if err != nil {
		return err
	}
	for job, runs := range l {
		for _, rec := range runs {
			existing.Record(job, rec)
		}
	}

	doc := make(map[string][]*model.RunRecord, len(existing))
	for job, runs := range existing {
		records := make([]*model.RunRecord, 0, len(runs))
		for _, rec := range runs {
			records = append(records, rec)
		}
		sort.Slice(records, func(i, j int) bool {
			return records[i].Params.Key() < records[j].Params.Key()
		})
		doc[job] = records
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode run file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".runfile-*")
	if err != nil {
		return fmt.Errorf("write run file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write run file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write run file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace run file: %w", err)
	}

	s.logger.Debug("saved run file", "path", s.path, "jobs", len(doc))
	return nil
}

func (s *YAMLStore) Close() error {
	return nil
}
