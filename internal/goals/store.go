package goals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"tagstats/internal/reports"
	"tagstats/internal/storage"
)

// ResultRecord is one evaluated day of a goal.
type ResultRecord struct {
	Date       string `json:"date"`
	EventCount int64  `json:"e_count"`
	UserCount  int64  `json:"u_count"`
}

// ResultStore keeps one result document per goal, holding the full list of
// evaluated days.
type ResultStore interface {
	Load(ctx context.Context, org, tid, goalID string) ([]ResultRecord, error)
	Save(ctx context.Context, org, tid, goalID string, records []ResultRecord) error
}

// Upsert replaces the record with the same date or inserts it, keeping the
// list sorted by date.
func Upsert(records []ResultRecord, rec ResultRecord) []ResultRecord {
	for i := range records {
		if records[i].Date == rec.Date {
			records[i] = rec
			return records
		}
	}
	records = append(records, rec)
	sort.Slice(records, func(i, j int) bool { return records[i].Date < records[j].Date })
	return records
}

// DocumentResultStore persists result documents in the object store. Writes
// follow read-modify-write with last writer wins; evaluations of the same
// goal are not expected to race.
type DocumentResultStore struct {
	store  storage.ObjectStore
	prefix string
}

// NewDocumentResultStore creates a result store rooted at the stats prefix.
func NewDocumentResultStore(store storage.ObjectStore, prefix string) *DocumentResultStore {
	return &DocumentResultStore{store: store, prefix: prefix}
}

func (s *DocumentResultStore) key(org, tid, goalID string) string {
	return fmt.Sprintf("%s%s%s_%s_goal_result.json", s.prefix, reports.OrgPrefix(org), tid, goalID)
}

// Load reads a goal's result document. A goal that was never evaluated has
// no document and loads as an empty list.
func (s *DocumentResultStore) Load(ctx context.Context, org, tid, goalID string) ([]ResultRecord, error) {
	body, err := s.store.Get(ctx, s.key(org, tid, goalID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load goal result %s/%s: %w", tid, goalID, err)
	}

	var records []ResultRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("unmarshal goal result %s/%s: %w", tid, goalID, err)
	}
	return records, nil
}

func (s *DocumentResultStore) Save(ctx context.Context, org, tid, goalID string, records []ResultRecord) error {
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal goal result %s/%s: %w", tid, goalID, err)
	}
	if err := s.store.Put(ctx, s.key(org, tid, goalID), body, storage.JSONContentType); err != nil {
		return fmt.Errorf("save goal result %s/%s: %w", tid, goalID, err)
	}
	return nil
}
