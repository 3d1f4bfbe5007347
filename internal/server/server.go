// Package server implements the admin gRPC surface over the full-text
// index storage engine. It replaces the teacher's proto-generated
// TreeStoreService (whose pb.* request/response types and .proto source
// are not present anywhere in the retrieved example pack — see
// DESIGN.md) with a hand-registered grpc.ServiceDesc whose RPCs exchange
// google.golang.org/protobuf's well-known types (structpb.Struct,
// timestamppb.Timestamp), which already satisfy proto.Message without
// code generation. The RPC set mirrors C8's driver operations: create a
// file from a hint string, insert/get/expunge indexed text, and compact
// a file's LOB store.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/trmeister/fulltext2/internal/logger"
	"github.com/trmeister/fulltext2/internal/metrics"
	"github.com/trmeister/fulltext2/pkg/delayedmerge"
	"github.com/trmeister/fulltext2/pkg/doccolumn"
	"github.com/trmeister/fulltext2/pkg/fileid"
	"github.com/trmeister/fulltext2/pkg/kwic"
	"github.com/trmeister/fulltext2/pkg/logicalfile"
)

// Server is the admin surface: one pkg/logicalfile.Handle per opened
// directory, a shared delayed-merge worker pool, and the engine's
// metrics/logger wiring.
type Server struct {
	mu    sync.Mutex
	files map[string]*logicalfile.Handle
	pool  *delayedmerge.Pool

	metrics   *metrics.Metrics
	log       *logger.Logger
	startTime time.Time
}

// NewServer builds an admin surface with its own delayed-merge pool.
// The pool's MergeFunc/VacuumFunc dispatch by lock name back into
// whichever open Handle owns that lock, per spec.md §4.6 ("each job
// takes a lock on the named index's lock name").
func NewServer(m *metrics.Metrics, log *logger.Logger) *Server {
	s := &Server{
		files:     make(map[string]*logicalfile.Handle),
		metrics:   m,
		log:       log,
		startTime: time.Now(),
	}
	s.pool = delayedmerge.New(4, s.mergeByLock, s.vacuumByLock)
	return s
}

func (s *Server) handleByLock(lockName string) *logicalfile.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.files {
		if h.FileID().LockName == lockName {
			return h
		}
	}
	return nil
}

func (s *Server) mergeByLock(lockName string) (int, error) {
	h := s.handleByLock(lockName)
	if h == nil {
		return 0, nil
	}
	if err := h.FlushAllPages(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *Server) vacuumByLock(lockName string) (int, error) {
	h := s.handleByLock(lockName)
	if h == nil {
		return 0, nil
	}
	start := time.Now()
	_, modified, err := h.Compact(nil)
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		s.metrics.RecordMergeJob(outcome, time.Since(start))
	}
	if modified {
		return 1, err
	}
	return 0, err
}

// Close shuts down the delayed-merge pool and every open file.
func (s *Server) Close() error {
	s.pool.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for dir, h := range s.files {
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.files, dir)
	}
	return first
}

func structField(req *structpb.Struct, key string) (string, bool) {
	v, ok := req.GetFields()[key]
	if !ok {
		return "", false
	}
	return v.GetStringValue(), true
}

func numberField(req *structpb.Struct, key string) (float64, bool) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, false
	}
	return v.GetNumberValue(), true
}

// CreateFile parses req's "hint" field per spec.md §4.5 and stages a new
// FullText2 file at req's "dir" field, per spec.md §4.8's
// create(tx) ("stage FileId; do not materialise the file on disk").
func (s *Server) CreateFile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dir, ok := structField(req, "dir")
	if !ok || dir == "" {
		return nil, status.Error(codes.InvalidArgument, "dir is required")
	}
	hint, _ := structField(req, "hint")

	var id fileid.FileID
	var err error
	if hint != "" {
		id, err = fileid.ParseHint(hint)
	} else {
		id = fileid.New()
	}
	if err != nil {
		if s.log != nil {
			s.log.Error("create file").Str("dir", dir).Err(err).Send()
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if id.LockName == "" {
		id.LockName = dir
	}

	h, err := logicalfile.Create(dir, id)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if err := h.Open(logicalfile.OpenOption{Mode: logicalfile.Update}, s.pool); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	s.mu.Lock()
	s.files[dir] = h
	s.mu.Unlock()

	return structpb.NewStruct(map[string]interface{}{
		"dir":           dir,
		"lock_name":     id.LockName,
		"delayed_mode":  float64(id.Delayed),
		"sectionized":   id.Sectionized,
		"indexing_type": float64(id.Indexing),
	})
}

func (s *Server) handle(dir string) (*logicalfile.Handle, error) {
	s.mu.Lock()
	h, ok := s.files[dir]
	s.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "file %q is not open", dir)
	}
	return h, nil
}

// InsertText stores req's "text" field as a new document's indexed
// text, per spec.md §4.8's insert(tuple).
func (s *Server) InsertText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dir, _ := structField(req, "dir")
	h, err := s.handle(dir)
	if err != nil {
		return nil, err
	}
	text, _ := structField(req, "text")
	lang, _ := structField(req, "language")

	start := time.Now()
	doc, err := h.Insert(logicalfile.Tuple{Text: []string{text}, Language: lang})
	if s.metrics != nil {
		s.metrics.RecordLobOp("insert", time.Since(start))
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]interface{}{"doc_id": float64(doc)})
}

// GetText returns req's document's stored text and, when req carries a
// "pattern" field, a KWIC snippet built against it (spec.md §4.7).
func (s *Server) GetText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dir, _ := structField(req, "dir")
	h, err := s.handle(dir)
	if err != nil {
		return nil, err
	}
	docNum, _ := numberField(req, "doc_id")
	doc := doccolumn.DocID(docNum)

	kreq := kwic.Request{Escape: kwic.EscapeNone}
	if size, ok := numberField(req, "size"); ok {
		kreq.Size = int(size)
	} else {
		kreq.Size = 80
	}
	kreq.StartTag, _ = structField(req, "start_tag")
	kreq.EndTag, _ = structField(req, "end_tag")
	kreq.Ellipsis, _ = structField(req, "ellipsis")

	if pattern, ok := structField(req, "pattern"); ok && pattern != "" {
		cond := kwic.NewCondition([]kwic.Item{{Term: &kwic.SearchTerm{Text: pattern}}}, nil, 16)
		h.SetCondition(cond, kwic.SimpleTokenizer{})
	}

	start := time.Now()
	tup, snippet, err := h.Get(doc, kreq)
	if s.metrics != nil {
		s.metrics.RecordKwicQuery(time.Since(start))
	}
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	text := ""
	if len(tup.Text) > 0 {
		text = tup.Text[0]
	}
	return structpb.NewStruct(map[string]interface{}{
		"text":    text,
		"snippet": snippet,
	})
}

// ExpungeText logically removes a document, per spec.md §4.8's
// expunge(tuple).
func (s *Server) ExpungeText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dir, _ := structField(req, "dir")
	h, err := s.handle(dir)
	if err != nil {
		return nil, err
	}
	docNum, _ := numberField(req, "doc_id")
	if err := h.Expunge(doccolumn.DocID(docNum)); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]interface{}{"ok": true})
}

// CompactFile drives req's file's LOB store's vacuum pass, per
// spec.md §4.8's compact(tx, &incomplete, &modified).
func (s *Server) CompactFile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dir, _ := structField(req, "dir")
	h, err := s.handle(dir)
	if err != nil {
		return nil, err
	}
	incomplete, modified, err := h.Compact(nil)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]interface{}{
		"incomplete": incomplete,
		"modified":   modified,
	})
}

// Health returns the server's start time as a timestamppb.Timestamp
// (structpb.Value has no timestamp variant). It is not listed in
// ServiceDesc, so it is a Go method only and not reachable over gRPC.
func (s *Server) Health(ctx context.Context, req *structpb.Struct) (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.startTime), nil
}

// ---- hand-registered grpc.ServiceDesc ----

func decodeStruct(dec func(interface{}) error) (*structpb.Struct, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	return in, nil
}

func adminUnary(name string, method func(*Server, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in, err := decodeStruct(dec)
		if err != nil {
			return nil, err
		}
		s, ok := srv.(*Server)
		if !ok {
			return nil, fmt.Errorf("server.%s: unexpected server type %T", name, srv)
		}
		if interceptor == nil {
			return method(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/fulltext2.Admin/" + name}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(s, ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc is the admin surface's hand-registered gRPC service
// description (no .proto/protoc step — see the package doc comment).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "fulltext2.Admin",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateFile", Handler: adminUnary("CreateFile", (*Server).CreateFile)},
		{MethodName: "InsertText", Handler: adminUnary("InsertText", (*Server).InsertText)},
		{MethodName: "GetText", Handler: adminUnary("GetText", (*Server).GetText)},
		{MethodName: "ExpungeText", Handler: adminUnary("ExpungeText", (*Server).ExpungeText)},
		{MethodName: "CompactFile", Handler: adminUnary("CompactFile", (*Server).CompactFile)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fulltext2/admin.proto",
}

// RegisterAdminServer registers s onto grpcServer using ServiceDesc.
func RegisterAdminServer(grpcServer *grpc.Server, s *Server) {
	grpcServer.RegisterService(&ServiceDesc, s)
}
