package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-etl-pipeline/internal/model"
	"go-etl-pipeline/internal/notify"
	"go-etl-pipeline/internal/objectstore"
	"go-etl-pipeline/internal/store"
	"go-etl-pipeline/internal/warehouse"
	"go-etl-pipeline/pkg/utils"
)

// memStore keeps objects in memory. Only the buckets it was created with exist.
type memStore struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
}

func newMemStore(buckets ...string) *memStore {
	s := &memStore{buckets: map[string]bool{}, objects: map[string][]byte{}}
	for _, b := range buckets {
		s.buckets[b] = true
	}
	return s
}

func (s *memStore) PutFile(_ context.Context, ref objectstore.Ref, localPath, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.buckets[ref.Bucket] {
		return model.ResourceMissing("put "+ref.URL(), errors.New("NoSuchBucket"))
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return model.TransientIO("put "+ref.URL(), err)
	}
	s.objects[ref.Path()] = data
	return nil
}

func (s *memStore) GetFile(_ context.Context, ref objectstore.Ref, localPath string) error {
	s.mu.Lock()
	data, ok := s.objects[ref.Path()]
	s.mu.Unlock()
	if !ok {
		return model.ResourceMissing("get "+ref.URL(), errors.New("NoSuchKey"))
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (s *memStore) object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, ok
}

type fakeSource struct {
	users []RawUser
	err   error
	calls int
}

func (f *fakeSource) Fetch(context.Context) ([]RawUser, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.users, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, a notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

// flaky fails the first n calls with err, then delegates to fn.
func flaky(fn StageFunc, n int, err error) StageFunc {
	calls := 0
	return func(ctx context.Context, in StageInput) (map[string]string, error) {
		calls++
		if calls <= n {
			return nil, err
		}
		return fn(ctx, in)
	}
}

func sampleUsers() []RawUser {
	regions := []string{"Moscow", "Tver", "Moscow", "Tver", "Moscow"}
	users := make([]RawUser, 0, len(regions))
	for i, r := range regions {
		users = append(users, RawUser{
			FirstName:   fmt.Sprintf("Ivan%d", i),
			LastName:    "Petrov",
			DateOfBirth: "07.03.1991",
			Gender:      "man",
			Phone:       "+7 900 000-00-0" + fmt.Sprint(i),
			Login:       fmt.Sprintf("ivan%d", i),
			Password:    "secret",
			Email:       fmt.Sprintf("ivan%d@example.com", i),
			Country:     "Russia",
			Region:      r,
		})
	}
	return users
}

type harness struct {
	source    *fakeSource
	store     *memStore
	warehouse *warehouse.SQLite
	history   *store.DB
	notifier  *recordingNotifier
	sleeper   *recordingSleeper
	spool     *utils.OutputManager
	stages    *Stages
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	wh, err := warehouse.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })

	hist, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	h := &harness{
		source:    &fakeSource{users: sampleUsers()},
		store:     newMemStore("users"),
		warehouse: wh,
		history:   hist,
		notifier:  &recordingNotifier{},
		sleeper:   &recordingSleeper{},
		spool:     utils.NewOutputManager(t.TempDir()),
	}
	h.stages = &Stages{
		Source:    h.source,
		Store:     h.store,
		Warehouse: h.warehouse,
		Spool:     h.spool,
		Bucket:    "users",
	}
	return h
}

func (h *harness) graph(t *testing.T) *TaskGraph {
	t.Helper()
	g, err := h.stages.Graph(model.DefaultRetryPolicy())
	require.NoError(t, err)
	return g
}

func (h *harness) controller(g *TaskGraph, opts ...Option) *Controller {
	ids := 0
	base := []Option{
		WithHistory(h.history),
		WithSleeper(h.sleeper.Sleep),
		WithSpool(h.spool),
		WithRunIDs(func() string {
			ids++
			return fmt.Sprintf("run-%d", ids)
		}),
	}
	return NewController("ETL", g, h.notifier, append(base, opts...)...)
}

func mustDate(t *testing.T, s string) model.LogicalDate {
	t.Helper()
	d, err := model.ParseLogicalDate(s)
	require.NoError(t, err)
	return d
}
