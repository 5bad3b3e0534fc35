package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	patchtools "github.com/madeneat/wplogify/pkg/patchTools"
)

// InterceptorConfig holds configuration for the scope interceptor.
type InterceptorConfig struct {
	Aggregator      *Aggregator
	Logger          *slog.Logger
	ExcludedMethods []string
	IncludedMethods []string // If non-empty, only these methods open a scope
	ActorExtractor  ActorExtractor
}

// ActorExtractor defines how to find the acting user of an RPC.
type ActorExtractor interface {
	ExtractActor(ctx context.Context) ActorInfo
}

// MetadataActorExtractor reads the actor from incoming metadata headers.
type MetadataActorExtractor struct{}

func (MetadataActorExtractor) ExtractActor(ctx context.Context) ActorInfo {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ActorInfo{}
	}

	actor := ActorInfo{
		DisplayName: first(md, "user-name"),
		Role:        first(md, "user-role"),
		UserAgent:   first(md, "user-agent"),
	}
	if id, err := strconv.ParseInt(first(md, "user-id"), 10, 64); err == nil && id > 0 {
		actor.UserID = id
	}
	if fwd := first(md, "x-forwarded-for"); fwd != "" {
		actor.IP = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return actor
}

func first(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// NewScopeInterceptor opens a Scope for every selected RPC and commits it
// when the handler succeeds. Handlers reach the scope with
// ScopeFromContext. A failed handler discards its scope, and a failed commit
// is logged without failing the RPC.
func NewScopeInterceptor(cfg *InterceptorConfig) grpc.UnaryServerInterceptor {
	if cfg == nil || cfg.Aggregator == nil {
		return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			return handler(ctx, req)
		}
	}

	extractor := cfg.ActorExtractor
	if extractor == nil {
		extractor = MetadataActorExtractor{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	excluded := lowerSet(cfg.ExcludedMethods)
	included := lowerSet(cfg.IncludedMethods)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		method := strings.ToLower(info.FullMethod)
		if _, ok := excluded[method]; ok {
			return handler(ctx, req)
		}
		if len(included) > 0 {
			if _, ok := included[method]; !ok {
				return handler(ctx, req)
			}
		}

		scope := cfg.Aggregator.Open(extractor.ExtractActor(ctx))
		_ = scope.SetOperation(inferOperation(info.FullMethod))

		resp, err := handler(WithScope(ctx, scope), req)
		if err != nil {
			logger.DebugContext(ctx, "rpc failed, scope discarded",
				slog.String("scope_id", scope.ID()),
				slog.String("method", info.FullMethod),
			)
			return resp, err
		}

		if _, cerr := cfg.Aggregator.Commit(ctx, scope); cerr != nil {
			logger.ErrorContext(ctx, "failed to save event",
				slog.String("scope_id", scope.ID()),
				slog.String("method", info.FullMethod),
				slog.Any("error", cerr),
			)
		}
		return resp, nil
	}
}

// inferOperation infers the operation type from the method name
func inferOperation(fullMethod string) Operation {
	name := fullMethod
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	lower := strings.ToLower(name)

	switch {
	case strings.Contains(lower, "create"), strings.Contains(lower, "add"), strings.Contains(lower, "insert"):
		return OperationCreate
	case strings.Contains(lower, "delete"), strings.Contains(lower, "remove"), strings.Contains(lower, "trash"):
		return OperationDelete
	case strings.Contains(lower, "update"), strings.Contains(lower, "patch"), strings.Contains(lower, "edit"), strings.Contains(lower, "modify"):
		return OperationUpdate
	}
	return OperationNone
}

// SnapshotFromProto converts a request or response into a field map for
// ContributeDiff. Proto messages use their proto field names; other values
// go through encoding/json. Values that are not objects yield nil.
func SnapshotFromProto(msg interface{}) map[string]interface{} {
	if msg == nil {
		return nil
	}

	var data []byte
	var err error
	if m, ok := msg.(proto.Message); ok {
		data, err = protojson.MarshalOptions{UseProtoNames: true, EmitUnpopulated: true}.Marshal(m)
	} else {
		data, err = json.Marshal(msg)
	}
	if err != nil {
		return nil
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var result map[string]interface{}
	if err := dec.Decode(&result); err != nil {
		return nil
	}
	return result
}

// PatchFromProto reads a partial update request of the form
// {"data": [{"field": ..., "value": ...}]} for ContributePatch.
func PatchFromProto(msg interface{}) []patchtools.Data {
	return patchtools.FromRequest(SnapshotFromProto(msg))
}
