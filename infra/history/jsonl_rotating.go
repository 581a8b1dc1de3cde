package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/natefinch/lumberjack.v2"

	corehistory "github.com/volteq/flexplan/core/history"
	"github.com/volteq/flexplan/core/model"
)

// RotatingJSONLStore appends run records to a JSONL file that lumberjack
// rotates by size and age, so a long-lived service never grows an unbounded
// audit file.
type RotatingJSONLStore struct {
	out  *lumberjack.Logger
	path string
}

// NewRotatingJSONLStore opens a rotating store at path. Size is in
// megabytes, age in days; zero leaves the corresponding limit at
// lumberjack's default.
func NewRotatingJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &RotatingJSONLStore{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		},
		path: path,
	}, nil
}

// Append writes one run record, rotating the file first when it is full.
func (s *RotatingJSONLStore) Append(ctx context.Context, run model.Run) error {
	return json.NewEncoder(s.out).Encode(run)
}

// Query scans the live file and every rotated sibling. Results are sorted by
// run start because rotated files glob in name order, not record order.
func (s *RotatingJSONLStore) Query(ctx context.Context, q corehistory.Query) ([]model.Run, error) {
	files, err := filepath.Glob(s.path + "*")
	if err != nil {
		return nil, err
	}
	var res []model.Run
	for _, f := range files {
		runs, err := readMatching(f, q)
		if err != nil {
			// Rotation can prune a file between glob and open.
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		res = append(res, runs...)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StartedAt.Before(res[j].StartedAt) })
	return capLimit(res, q.Limit), nil
}

// Close flushes and closes the current file.
func (s *RotatingJSONLStore) Close() error { return s.out.Close() }
