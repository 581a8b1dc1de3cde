package history

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"

	corehistory "github.com/volteq/flexplan/core/history"
	"github.com/volteq/flexplan/core/model"
)

// JSONLStore keeps run records as one JSON object per line in a single file.
// Suited to small deployments that want a grep-able audit trail without a
// database.
type JSONLStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONLStore(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if cerr := f.Close(); cerr != nil {
		return nil, cerr
	}
	return &JSONLStore{path: path}, nil
}

func (s *JSONLStore) Append(ctx context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	return enc.Encode(run)
}

func (s *JSONLStore) Query(ctx context.Context, q corehistory.Query) ([]model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := readMatching(s.path, q)
	if err != nil {
		return nil, err
	}
	return capLimit(res, q.Limit), nil
}

func (s *JSONLStore) Close() error { return nil }

// readMatching decodes every record in one JSONL file and keeps those the
// query selects. Unparseable lines are skipped so a single corrupt record
// cannot hide the rest of the history.
func readMatching(path string, q corehistory.Query) ([]model.Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var res []model.Run
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r model.Run
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if matches(r, q) {
			res = append(res, r)
		}
	}
	return res, scanner.Err()
}

func capLimit(runs []model.Run, limit int) []model.Run {
	if limit > 0 && len(runs) > limit {
		return runs[:limit]
	}
	return runs
}

func matches(r model.Run, q corehistory.Query) bool {
	if q.Portfolio != "" && r.Portfolio != q.Portfolio {
		return false
	}
	if !q.Start.IsZero() && r.StartedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.StartedAt.After(q.End) {
		return false
	}
	if q.Status != model.StatusUnknown && r.Status != q.Status {
		return false
	}
	return true
}
