package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// UsageRecordType is the record type written for every query execution.
const UsageRecordType = "athena_scan"

// CollectRecordType is written by the ingestion tier for accepted event
// payloads; this service only rolls it up.
const CollectRecordType = "collect"

// UsageRecord is the cost-accounting entry for one query execution.
type UsageRecord struct {
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// UsageRecorder writes per-execution scan accounting into the object store,
// partitioned by org/container/day so the monthly rollup can query it.
type UsageRecorder struct {
	store  ObjectStore
	prefix string
	now    func() time.Time
}

// NewUsageRecorder creates a recorder writing under the given key prefix.
func NewUsageRecorder(store ObjectStore, prefix string) *UsageRecorder {
	return &UsageRecorder{store: store, prefix: prefix, now: time.Now}
}

// WithClock overrides the wall clock; intended for tests.
func (r *UsageRecorder) WithClock(now func() time.Time) *UsageRecorder {
	r.now = now
	return r
}

// Key returns the deterministic record key for one execution. The execution
// id is part of the key, so re-recording the same execution overwrites the
// same object and the record stays exactly-once.
func (r *UsageRecorder) Key(org, tid, executionID string, at time.Time) string {
	return fmt.Sprintf("%sorg=%s/tid=%s/year=%d/month=%d/day=%d/%s.json",
		r.prefix, org, tid, at.Year(), int(at.Month()), at.Day(), executionID)
}

// RecordScan persists the bytes-scanned accounting for one execution.
func (r *UsageRecorder) RecordScan(ctx context.Context, org, tid, executionID string, bytesScanned int64) error {
	body, err := json.Marshal(UsageRecord{Type: UsageRecordType, Size: bytesScanned})
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}
	key := r.Key(org, tid, executionID, r.now().UTC())
	if err := r.store.Put(ctx, key, body, JSONContentType); err != nil {
		return fmt.Errorf("save usage record: %w", err)
	}
	return nil
}

// UsageDetail is one per-container line inside a monthly usage item.
type UsageDetail struct {
	Type string `json:"type" dynamodbav:"type"`
	TID  string `json:"tid" dynamodbav:"tid"`
	Size int64  `json:"size" dynamodbav:"size"`
}

// MonthlyUsage aggregates one organization's consumption for one month.
// The month key is year*1000+month, matching the existing table layout.
type MonthlyUsage struct {
	Organization   string        `json:"organization" dynamodbav:"organization"`
	Month          int64         `json:"month" dynamodbav:"month"`
	AthenaScanSize int64         `json:"athena_scan_size" dynamodbav:"athena_scan_size"`
	CollectSize    int64         `json:"collect_size" dynamodbav:"collect_size"`
	Details        []UsageDetail `json:"details" dynamodbav:"details"`
}

// UsageTable stores monthly usage items in the key-value store.
type UsageTable struct {
	client *dynamodb.Client
	table  string
}

// NewUsageTable creates a usage table accessor.
func NewUsageTable(client *dynamodb.Client, table string) *UsageTable {
	return &UsageTable{client: client, table: table}
}

// PutMonthly upserts one organization's monthly usage item.
func (t *UsageTable) PutMonthly(ctx context.Context, usage MonthlyUsage) error {
	item, err := attributevalue.MarshalMap(usage)
	if err != nil {
		return fmt.Errorf("marshal usage item: %w", err)
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put usage item for %s: %w", usage.Organization, err)
	}
	return nil
}
