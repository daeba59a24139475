package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestStartBuildsTree(t *testing.T) {
	ctx, root := Start(context.Background(), "build")
	shardCtx, shard := Start(ctx, "shard")
	_, write := Start(shardCtx, "write")
	_, merge := Start(ctx, "merge")
	for _, s := range []*Span{write, shard, merge, root} {
		s.End()
	}

	if FromContext(ctx) != root || FromContext(context.Background()) != nil {
		t.Error("FromContext returned the wrong span")
	}
	if root.TraceID == "" || shard.TraceID != root.TraceID || write.TraceID != root.TraceID {
		t.Errorf("trace ids %q %q %q", root.TraceID, shard.TraceID, write.TraceID)
	}
	children := root.Children()
	if len(children) != 2 || children[0] != shard || children[1] != merge {
		t.Errorf("root children = %v", children)
	}
	if got := shard.Children(); len(got) != 1 || got[0] != write {
		t.Errorf("shard children = %v", got)
	}

	_, other := Start(context.Background(), "build")
	if other.TraceID == root.TraceID {
		t.Error("separate roots share a trace id")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	_, s := Start(context.Background(), "x")
	s.End()
	d := s.Duration
	time.Sleep(2 * time.Millisecond)
	s.End()
	if s.Duration != d {
		t.Errorf("second End changed duration from %v to %v", d, s.Duration)
	}
}

func TestLog(t *testing.T) {
	ctx, root := Start(context.Background(), "build")
	_, shard := Start(ctx, "shard")
	shard.SetAttr("shard", "a")
	shard.End()
	root.End()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	root.Log(logger, slog.LevelDebug)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("logged %d records:\n%s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["span"] != "shard" || rec["shard"] != "a" || rec["depth"] != float64(1) {
		t.Errorf("child record = %v", rec)
	}

	buf.Reset()
	quiet := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	root.Log(quiet, slog.LevelDebug)
	if buf.Len() != 0 {
		t.Errorf("debug spans written at info level: %s", buf.String())
	}
}
