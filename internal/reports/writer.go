package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tagstats/internal/pathtree"
	"tagstats/internal/storage"
	"tagstats/internal/timeseries"
)

// Version is the current report document schema version.
const Version = 4

// Report types.
const (
	TypeURLLinks           = "url_links"
	TypeEventGraph         = "event_graph"
	TypeURLTable           = "url_table"
	TypeEventTable         = "event_table"
	TypePageviewTimeSeries = "pageview_time_series"
)

// Meta is the header block every report document carries. Times are epoch
// milliseconds.
type Meta struct {
	Stime   int64  `json:"stime"`
	Etime   int64  `json:"etime"`
	TID     string `json:"tid"`
	Version int    `json:"version"`
	Type    string `json:"type"`
}

// Document is a versioned report artifact. Exactly one payload field is set,
// depending on Meta.Type.
type Document struct {
	Meta       Meta             `json:"meta"`
	URLs       []string         `json:"urls,omitempty"`
	URLLinks   []URLLink        `json:"url_links,omitempty"`
	Result     []LinkRow        `json:"result,omitempty"`
	Table      []URLTableRow    `json:"table,omitempty"`
	EventTable []EventTableRow  `json:"event_table,omitempty"`
	Series     []timeseries.Row `json:"series,omitempty"`
}

// NewMeta builds the meta block for a report over [stime, etime].
func NewMeta(tid, reportType string, stime, etime time.Time) Meta {
	return Meta{
		Stime:   stime.UnixMilli(),
		Etime:   etime.UnixMilli(),
		TID:     tid,
		Version: Version,
		Type:    reportType,
	}
}

// OrgPrefix is the object-key prefix scoping a non-root organization.
func OrgPrefix(org string) string {
	if org == "root" {
		return ""
	}
	return org + "/"
}

// Writer persists report documents into the object store. Every write
// creates a new, uniquely named object; documents are immutable.
type Writer struct {
	store     storage.ObjectStore
	prefix    string
	newSuffix func() string
}

// NewWriter creates a writer rooted at the stats prefix.
func NewWriter(store storage.ObjectStore, prefix string) *Writer {
	return &Writer{
		store:     store,
		prefix:    prefix,
		newSuffix: func() string { return uuid.NewString() },
	}
}

// WithSuffix overrides unique-suffix generation; intended for tests.
func (w *Writer) WithSuffix(fn func() string) *Writer {
	w.newSuffix = fn
	return w
}

// objectName derives the document key: time range, report type and a random
// suffix under the container's prefix.
func (w *Writer) objectName(org, tid, reportType string, stime, etime time.Time) string {
	return fmt.Sprintf("%s%s%s/%s_%s_%s_%s.json",
		w.prefix,
		OrgPrefix(org),
		tid,
		stime.Format("20060102150405"),
		etime.Format("20060102150405"),
		reportType,
		w.newSuffix())
}

// ReadDocument loads a written report document by its file name under the
// container's prefix. Propagates storage.ErrNotFound.
func (w *Writer) ReadDocument(ctx context.Context, org, tid, file string) (Document, error) {
	var doc Document
	key := fmt.Sprintf("%s%s%s/%s", w.prefix, OrgPrefix(org), tid, file)
	body, err := w.store.Get(ctx, key)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return doc, fmt.Errorf("unmarshal report document %s: %w", file, err)
	}
	return doc, nil
}

// Write persists one report document and returns its key.
func (w *Writer) Write(ctx context.Context, org string, doc Document, stime, etime time.Time) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal %s document: %w", doc.Meta.Type, err)
	}
	key := w.objectName(org, doc.Meta.TID, doc.Meta.Type, stime, etime)
	if err := w.store.Put(ctx, key, body, storage.JSONContentType); err != nil {
		return "", fmt.Errorf("write %s document: %w", doc.Meta.Type, err)
	}
	return key, nil
}

// WriteEndpointDoc persists the endpoint documentation skeleton for a
// container. Unlike report documents it is mutable configuration and is
// overwritten in place.
func (w *Writer) WriteEndpointDoc(ctx context.Context, org, tid string, doc pathtree.EndpointDoc) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal endpoint doc: %w", err)
	}
	key := EndpointDocKey(org, tid)
	if err := w.store.Put(ctx, key, body, storage.JSONContentType); err != nil {
		return "", fmt.Errorf("write endpoint doc: %w", err)
	}
	return key, nil
}

// ReadEndpointDoc loads a container's endpoint documentation. Propagates
// storage.ErrNotFound when none was ever written.
func (w *Writer) ReadEndpointDoc(ctx context.Context, org, tid string) (pathtree.EndpointDoc, error) {
	var doc pathtree.EndpointDoc
	body, err := w.store.Get(ctx, EndpointDocKey(org, tid))
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return doc, fmt.Errorf("unmarshal endpoint doc: %w", err)
	}
	return doc, nil
}

// HasEndpointDoc reports whether a container already has endpoint
// documentation. Report runs seed the doc once and never clobber edits.
func (w *Writer) HasEndpointDoc(ctx context.Context, org, tid string) (bool, error) {
	if _, err := w.store.Get(ctx, EndpointDocKey(org, tid)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EndpointDocKey is the fixed key of a container's endpoint documentation.
func EndpointDocKey(org, tid string) string {
	return fmt.Sprintf("containers/%s%s_endpoint_doc.json", OrgPrefix(org), tid)
}

// Presign returns a time-limited public read URL for a written document.
func (w *Writer) Presign(ctx context.Context, key string) (string, error) {
	return w.store.PresignGet(ctx, key, 15*time.Minute)
}
