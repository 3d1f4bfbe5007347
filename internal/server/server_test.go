// Tests for the admin gRPC surface
package server

import (
	"context"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/trmeister/fulltext2/internal/logger"
	"github.com/trmeister/fulltext2/internal/metrics"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(nil, logger.GetGlobalLogger())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustStruct(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	st, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return st
}

func TestCreateFileStagesHandle(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()

	resp, err := s.CreateFile(context.Background(), mustStruct(t, map[string]interface{}{
		"dir":  dir,
		"hint": "delayed=(async,vacuum=false)",
	}))
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if got := resp.GetFields()["delayed_mode"].GetNumberValue(); got != 2 {
		t.Fatalf("delayed_mode = %v, want Async(2)", got)
	}
}

func TestCreateFileMissingDir(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.CreateFile(context.Background(), mustStruct(t, map[string]interface{}{})); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestInsertGetExpungeRoundTrip(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()

	if _, err := s.CreateFile(context.Background(), mustStruct(t, map[string]interface{}{"dir": dir})); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	insertResp, err := s.InsertText(context.Background(), mustStruct(t, map[string]interface{}{
		"dir":  dir,
		"text": "abcXYZdefXYZghi",
	}))
	if err != nil {
		t.Fatalf("InsertText: %v", err)
	}
	docID := insertResp.GetFields()["doc_id"].GetNumberValue()

	getResp, err := s.GetText(context.Background(), mustStruct(t, map[string]interface{}{
		"dir":       dir,
		"doc_id":    docID,
		"size":      float64(7),
		"start_tag": "<b>",
		"end_tag":   "</b>",
		"ellipsis":  "...",
		"pattern":   "XYZ",
	}))
	if err != nil {
		t.Fatalf("GetText: %v", err)
	}
	if getResp.GetFields()["text"].GetStringValue() != "abcXYZdefXYZghi" {
		t.Fatalf("unexpected stored text: %v", getResp.GetFields()["text"])
	}
	if getResp.GetFields()["snippet"].GetStringValue() == "" {
		t.Fatalf("expected a non-empty KWIC snippet")
	}

	if _, err := s.ExpungeText(context.Background(), mustStruct(t, map[string]interface{}{
		"dir":    dir,
		"doc_id": docID,
	})); err != nil {
		t.Fatalf("ExpungeText: %v", err)
	}

	if _, err := s.GetText(context.Background(), mustStruct(t, map[string]interface{}{
		"dir":    dir,
		"doc_id": docID,
	})); err == nil {
		t.Fatalf("expected error reading an expunged document")
	}
}

func TestGetTextUnknownFile(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.GetText(context.Background(), mustStruct(t, map[string]interface{}{
		"dir":    "/does/not/exist",
		"doc_id": float64(1),
	})); err == nil {
		t.Fatalf("expected error for unopened file")
	}
}

func TestCompactFile(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	if _, err := s.CreateFile(context.Background(), mustStruct(t, map[string]interface{}{"dir": dir})); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	resp, err := s.CompactFile(context.Background(), mustStruct(t, map[string]interface{}{"dir": dir}))
	if err != nil {
		t.Fatalf("CompactFile: %v", err)
	}
	if resp.GetFields()["modified"].GetBoolValue() {
		t.Fatalf("expected nothing to reclaim on a fresh file")
	}
}

func TestHealthReturnsStartTime(t *testing.T) {
	s := newTestServer(t)
	ts, err := s.Health(context.Background(), mustStruct(t, map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !ts.IsValid() {
		t.Fatalf("expected a valid timestamp")
	}
}

func TestNewServerWithMetrics(t *testing.T) {
	s := NewServer(metrics.NewMetrics(), logger.GetGlobalLogger())
	defer s.Close()
	dir := t.TempDir()
	if _, err := s.CreateFile(context.Background(), mustStruct(t, map[string]interface{}{"dir": dir})); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if _, err := s.InsertText(context.Background(), mustStruct(t, map[string]interface{}{
		"dir": dir, "text": "hello",
	})); err != nil {
		t.Fatalf("InsertText: %v", err)
	}
}
