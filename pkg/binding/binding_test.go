package binding

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/extdeck/extdeck/pkg/cache"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
)

type calls struct {
	mu   sync.Mutex
	keys []string
}

func (c *calls) add(k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, k)
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.keys)
}

func echo(c *calls) FetchFunc[string, []string] {
	return func(_ context.Context, key string) ([]string, error) {
		c.add(key)
		return []string{key + "-result"}, nil
	}
}

func TestUnchangedKeyDoesNotRefetch(t *testing.T) {
	var c calls
	b := New(echo(&c), nil)
	defer b.Close()

	b.Update("a")
	b.Wait()
	b.Update("a")
	b.Wait()
	b.Update("b")
	b.Wait()

	if got, want := c.list(), []string{"a", "b"}; !slices.Equal(got, want) {
		t.Fatalf("fetch calls = %v, want %v", got, want)
	}
	st := b.State()
	if st.IsLoading {
		t.Error("still loading after Wait")
	}
	if !slices.Equal(st.Data, []string{"b-result"}) {
		t.Errorf("data = %v", st.Data)
	}
}

func TestFailureKeepsDataAndNotifies(t *testing.T) {
	rec := &notify.Recorder{}
	fail := false
	var mu sync.Mutex
	fetch := func(_ context.Context, key string) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, errors.New("boom")
		}
		return []string{key}, nil
	}
	b := New(fetch, nil, WithNotifier(rec, "Failed to load tasks"))
	defer b.Close()

	b.Update("a")
	b.Wait()

	mu.Lock()
	fail = true
	mu.Unlock()
	b.Revalidate()
	b.Wait()

	st := b.State()
	if st.IsLoading {
		t.Error("IsLoading should be false after a failure")
	}
	if st.Err == nil || st.Err.Error() != "boom" {
		t.Errorf("Err = %v", st.Err)
	}
	if !slices.Equal(st.Data, []string{"a"}) {
		t.Errorf("data = %v, want previous data kept", st.Data)
	}
	toast, ok := rec.Last()
	if !ok || toast.Style != notify.StyleFailure || toast.Title != "Failed to load tasks" || toast.Message != "boom" {
		t.Errorf("toast = %+v", toast)
	}
}

func TestCancelOnSupersedeDiscardsStaleResult(t *testing.T) {
	release := make(chan struct{})
	fetch := func(_ context.Context, key string) ([]string, error) {
		if key == "a" {
			<-release // ignores cancellation on purpose
		}
		return []string{key + "-result"}, nil
	}
	b := New(fetch, nil)
	defer b.Close()

	b.Update("a")
	b.Update("ab")
	waitFor(t, func() bool { return slices.Equal(b.State().Data, []string{"ab-result"}) })
	if b.State().IsLoading {
		t.Error("latest fetch finished, IsLoading should be false")
	}

	close(release)
	b.Wait()
	if got := b.State().Data; !slices.Equal(got, []string{"ab-result"}) {
		t.Fatalf("data = %v, stale result must be discarded", got)
	}
}

func TestCancelOnSupersedeCancelsContext(t *testing.T) {
	cancelled := make(chan struct{})
	fetch := func(ctx context.Context, key string) ([]string, error) {
		if key == "a" {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}
		return []string{key}, nil
	}
	rec := &notify.Recorder{}
	b := New(fetch, nil, WithNotifier(rec, ""))
	defer b.Close()

	b.Update("a")
	b.Update("ab")
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}
	b.Wait()
	if st := b.State(); st.Err != nil || !slices.Equal(st.Data, []string{"ab"}) {
		t.Errorf("state = %+v", st)
	}
	if n := len(rec.Toasts()); n != 0 {
		t.Errorf("cancellation produced %d toasts", n)
	}
}

func TestLastArrivalWins(t *testing.T) {
	release := make(chan struct{})
	fetch := func(_ context.Context, key string) ([]string, error) {
		if key == "a" {
			<-release
		}
		return []string{key + "-result"}, nil
	}
	b := New(fetch, nil, WithLastArrivalWins())
	defer b.Close()

	b.Update("a")
	b.Update("ab")
	waitFor(t, func() bool { return slices.Equal(b.State().Data, []string{"ab-result"}) })
	if !b.State().IsLoading {
		t.Error("older fetch still running, IsLoading should be true")
	}

	close(release)
	b.Wait()
	if got := b.State().Data; !slices.Equal(got, []string{"a-result"}) {
		t.Fatalf("data = %v, want the late arrival", got)
	}
}

func TestDebounceCoalescesKeystrokes(t *testing.T) {
	var c calls
	b := New(echo(&c), nil, WithDebounce(50*time.Millisecond))
	defer b.Close()

	b.Update("")
	b.Update("a")
	b.Update("ab")
	b.Update("abc")
	if !b.State().IsLoading {
		t.Error("pending debounce should report loading")
	}
	b.Wait()

	if got, want := c.list(), []string{"", "abc"}; !slices.Equal(got, want) {
		t.Fatalf("fetch calls = %v, want %v", got, want)
	}
	if got := b.State().Data; !slices.Equal(got, []string{"abc-result"}) {
		t.Errorf("data = %v", got)
	}
}

func TestRevalidateReplacesPendingDebounce(t *testing.T) {
	var c calls
	b := New(echo(&c), nil, WithDebounce(30*time.Millisecond))
	defer b.Close()

	b.Update("")
	b.Wait()
	b.Update("go")
	b.Revalidate()
	b.Wait()
	time.Sleep(60 * time.Millisecond)
	b.Wait()

	if got, want := c.list(), []string{"", "go"}; !slices.Equal(got, want) {
		t.Fatalf("fetch calls = %v, want %v", got, want)
	}
	if b.State().IsLoading {
		t.Error("no fetch should be pending")
	}
}

func TestCacheSeedsAndPersists(t *testing.T) {
	clock := cache.NewSimClock()
	c := cache.New(kv.NewMemory(), cache.WithClock(clock))
	ctx := context.Background()
	if err := c.Put(ctx, "list", []string{"cached"}); err != nil {
		t.Fatal(err)
	}

	var calls calls
	b := New(echo(&calls), nil, WithCache(c, "list"), WithMaxAge(time.Minute))
	if got := b.State().Data; !slices.Equal(got, []string{"cached"}) {
		t.Fatalf("initial data = %v, want cached", got)
	}
	b.Update("k")
	b.Wait()
	if n := len(calls.list()); n != 0 {
		t.Fatalf("fresh cache should skip mount fetch, got %d calls", n)
	}
	b.Close()

	clock.Advance(2 * time.Minute)
	b = New(echo(&calls), nil, WithCache(c, "list"), WithMaxAge(time.Minute))
	defer b.Close()
	b.Update("k")
	b.Wait()
	if n := len(calls.list()); n != 1 {
		t.Fatalf("stale cache should fetch, got %d calls", n)
	}

	got, _, ok, err := cache.Load[[]string](ctx, c, "list")
	if err != nil || !ok || !slices.Equal(got, []string{"k-result"}) {
		t.Errorf("cache = %v %v %v", got, ok, err)
	}
}

type task struct {
	ID   string
	Done bool
}

func TestMutateRevertsExactly(t *testing.T) {
	initial := []task{{ID: "1"}, {ID: "2"}}
	fetch := func(context.Context, struct{}) ([]task, error) { return initial, nil }
	rec := &notify.Recorder{}
	b := New(fetch, nil, WithNotifier(rec, ""))
	defer b.Close()
	b.Update(struct{}{})
	b.Wait()
	before := b.State().Data

	var during []task
	err := b.Mutate(context.Background(), Mutation[[]task]{
		Optimistic: func(ts []task) []task {
			out := slices.Clone(ts)
			out[0].Done = true
			return out
		},
		Commit: func(context.Context) (func([]task) []task, error) {
			during = b.State().Data
			return nil, errors.New("403 Forbidden")
		},
		FailureTitle: "Failed to mark task as completed",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !during[0].Done {
		t.Error("optimistic patch was not visible during commit")
	}
	if got := b.State().Data; !reflect.DeepEqual(got, before) {
		t.Errorf("after revert = %+v, want %+v", got, before)
	}
	toast, _ := rec.Last()
	if toast.Title != "Failed to mark task as completed" || toast.Message != "403 Forbidden" {
		t.Errorf("toast = %+v", toast)
	}
}

func TestMutateReconciles(t *testing.T) {
	fetch := func(context.Context, struct{}) ([]task, error) { return []task{{ID: "1"}}, nil }
	b := New(fetch, nil)
	defer b.Close()
	b.Update(struct{}{})
	b.Wait()

	err := b.Mutate(context.Background(), Mutation[[]task]{
		Optimistic: func(ts []task) []task { return append(slices.Clone(ts), task{ID: "tmp"}) },
		Commit: func(context.Context) (func([]task) []task, error) {
			return func(ts []task) []task {
				out := slices.Clone(ts)
				out[len(out)-1].ID = "server-7"
				return out
			}, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := b.State().Data; len(got) != 2 || got[1].ID != "server-7" {
		t.Errorf("data = %+v", got)
	}
}

func TestCloseCancelsInflight(t *testing.T) {
	started := make(chan struct{})
	fetch := func(ctx context.Context, _ string) ([]string, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b := New(fetch, []string{"initial"})
	b.Update("x")
	<-started
	b.Close()
	b.Wait()
	if got := b.State().Data; !slices.Equal(got, []string{"initial"}) {
		t.Errorf("data = %v", got)
	}
	b.Update("y") // no-op after close
}

func TestOnChangeFires(t *testing.T) {
	var mu sync.Mutex
	n := 0
	b := New(echo(&calls{}), nil, WithOnChange(func() {
		mu.Lock()
		n++
		mu.Unlock()
	}))
	defer b.Close()
	b.Update("a")
	b.Wait()
	mu.Lock()
	defer mu.Unlock()
	if n < 2 {
		t.Errorf("onChange fired %d times, want at least start and finish", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
