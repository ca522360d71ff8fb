package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/telemetry"
	"github.com/af-corp/querysmith/internal/types"
)

// reply is one scripted model answer. A non-nil err fails the call.
type reply struct {
	text   string
	finish string
	err    error
}

// scriptedModel answers each purpose from its own queue. When a queue runs
// dry the last reply for that purpose repeats.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[types.Purpose][]reply
	calls   []*types.ModelRequest
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{replies: make(map[types.Purpose][]reply)}
}

func (m *scriptedModel) on(p types.Purpose, r ...reply) *scriptedModel {
	m.replies[p] = append(m.replies[p], r...)
	return m
}

func (m *scriptedModel) Complete(_ context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	queue := m.replies[req.Purpose]
	if len(queue) == 0 {
		return nil, errors.New("no scripted reply for " + string(req.Purpose))
	}
	r := queue[0]
	if len(queue) > 1 {
		m.replies[req.Purpose] = queue[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	finish := r.finish
	if finish == "" {
		finish = types.FinishStop
	}
	return &types.ModelResponse{Text: r.text, FinishReason: finish, Provider: "fake", Model: req.Model}, nil
}

func (m *scriptedModel) count(p types.Purpose) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Purpose == p {
			n++
		}
	}
	return n
}

func (m *scriptedModel) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type fakeSchemas struct {
	schema string
	err    error
}

func (f *fakeSchemas) SchemaContext(_ context.Context, _ string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	return f.schema, f.schema != "", nil
}

type fakeQuota struct {
	allow bool
	err   error
	calls int
	limit int64
}

func (f *fakeQuota) CheckAndConsume(_ context.Context, _ string, limit int64) (bool, error) {
	f.calls++
	f.limit = limit
	return f.allow, f.err
}

type fakeHistory struct {
	records []*types.HistoryRecord
	err     error
}

func (f *fakeHistory) Append(_ context.Context, rec *types.HistoryRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type fakeGuard struct {
	verdict *types.Verdict
	err     error
}

func (f *fakeGuard) Screen(_ context.Context, _ *types.Request) (*types.Verdict, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.verdict == nil {
		return &types.Verdict{}, nil
	}
	return f.verdict, nil
}

const usersSchema = "CREATE TABLE users (id bigint primary key, email text, created_at timestamptz);"

type harness struct {
	svc     *Service
	model   *scriptedModel
	schemas *fakeSchemas
	quota   *fakeQuota
	history *fakeHistory
	guard   *fakeGuard
	cfg     config.PipelineConfig
}

func newHarness(model *scriptedModel) *harness {
	h := &harness{
		model:   model,
		schemas: &fakeSchemas{schema: usersSchema},
		quota:   &fakeQuota{allow: true},
		history: &fakeHistory{},
		guard:   &fakeGuard{},
		cfg:     config.DefaultConfig().Pipeline,
	}
	h.svc = NewService(Deps{
		Model:   model,
		Schemas: h.schemas,
		Quota:   h.quota,
		History: h.history,
		Guard:   h.guard,
		Config:  func() config.PipelineConfig { return h.cfg },
		Metrics: telemetry.NewMetrics(prometheus.NewRegistry()),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}
