package jobqueue_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
)

func newClient(t *testing.T) (*jobqueue.Client, *jobqueue.MemStore) {
	t.Helper()
	store := jobqueue.NewMemStore()
	c := jobqueue.NewClient(store, zap.NewNop(), jobqueue.Hooks{}, jobqueue.Options{
		PollInterval:        5 * time.Millisecond,
		MaintenanceInterval: 10 * time.Millisecond,
		CronTick:            10 * time.Millisecond,
	})
	return c, store
}

func mustCreateQueue(t *testing.T, c *jobqueue.Client, name string, p jobqueue.Policy) {
	t.Helper()
	if err := c.CreateQueue(context.Background(), name, p); err != nil {
		t.Fatalf("create queue %s: %v", name, err)
	}
}

func liveJobs(store *jobqueue.MemStore, queue string) []*jobqueue.Job {
	var live []*jobqueue.Job
	for _, j := range store.Snapshot() {
		if j.Queue == queue && (j.State == jobqueue.StateAvailable || j.State == jobqueue.StateActive) {
			live = append(live, j)
		}
	}
	return live
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEnqueue_SingletonKeyMergesLiveJobs(t *testing.T) {
	c, store := newClient(t)
	mustCreateQueue(t, c, "q", jobqueue.Policy{ExpireIn: time.Minute})
	ctx := context.Background()

	first, err := c.Enqueue(ctx, "q", map[string]string{"n": "1"}, jobqueue.EnqueueOptions{SingletonKey: "k"})
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	second, err := c.Enqueue(ctx, "q", map[string]string{"n": "2"}, jobqueue.EnqueueOptions{SingletonKey: "k"})
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}

	if second != first {
		t.Fatalf("expected merge to return the live job's id, got %s and %s", first, second)
	}
	if n := len(liveJobs(store, "q")); n != 1 {
		t.Fatalf("expected exactly 1 live job, got %d", n)
	}
}

func TestEnqueue_SingletonKeyFreeAfterCompletion(t *testing.T) {
	c, store := newClient(t)
	mustCreateQueue(t, c, "q", jobqueue.Policy{ExpireIn: time.Minute})
	ctx := context.Background()

	id, err := c.Enqueue(ctx, "q", nil, jobqueue.EnqueueOptions{SingletonKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	leased, err := store.Lease(ctx, "q")
	if err != nil || leased == nil {
		t.Fatalf("lease: job=%v err=%v", leased, err)
	}
	if err := store.Complete(ctx, leased.ID); err != nil {
		t.Fatal(err)
	}

	again, err := c.Enqueue(ctx, "q", nil, jobqueue.EnqueueOptions{SingletonKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if again == id {
		t.Fatal("expected a fresh job after the previous one completed")
	}
}

func TestEnqueue_UnknownQueue(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.Enqueue(context.Background(), "nope", nil, jobqueue.EnqueueOptions{})
	if err == nil {
		t.Fatal("expected error for unknown queue")
	}
}

func TestWork_SuccessCompletesJob(t *testing.T) {
	c, store := newClient(t)
	mustCreateQueue(t, c, "q", jobqueue.Policy{ExpireIn: time.Minute})

	var got atomic.Value
	err := c.Work("q", jobqueue.WorkOptions{}, func(_ context.Context, job *jobqueue.Job) error {
		got.Store(string(job.Payload))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	if _, err := c.Enqueue(ctx, "q", map[string]string{"hello": "world"}, jobqueue.EnqueueOptions{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool {
		for _, j := range store.Snapshot() {
			if j.Queue == "q" && j.State == jobqueue.StateCompleted {
				return true
			}
		}
		return false
	})

	var payload map[string]string
	if err := json.Unmarshal([]byte(got.Load().(string)), &payload); err != nil {
		t.Fatalf("handler saw invalid payload: %v", err)
	}
	if payload["hello"] != "world" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	cancel()
	c.Wait()
}

// TestWork_RetriesThenDeadLetters drives a permanently failing handler and
// verifies the attempt budget and that the dead-lettered copy carries the
// original payload unchanged.
func TestWork_RetriesThenDeadLetters(t *testing.T) {
	c, store := newClient(t)
	mustCreateQueue(t, c, "q/dlq", jobqueue.Policy{ExpireIn: time.Minute})
	mustCreateQueue(t, c, "q", jobqueue.Policy{
		RetryLimit: 2,
		RetryDelay: time.Millisecond,
		ExpireIn:   time.Minute,
		DeadLetter: "q/dlq",
	})

	var attempts atomic.Int32
	err := c.Work("q", jobqueue.WorkOptions{}, func(context.Context, *jobqueue.Job) error {
		attempts.Add(1)
		return context.DeadlineExceeded
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	original := map[string]string{"keep": "me"}
	if _, err := c.Enqueue(ctx, "q", original, jobqueue.EnqueueOptions{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		n, _ := store.Depth(context.Background(), "q/dlq")
		return n == 1
	})
	cancel()
	c.Wait()

	// first attempt + RetryLimit retries
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}

	for _, j := range store.Snapshot() {
		if j.Queue != "q/dlq" {
			continue
		}
		var payload map[string]string
		if err := json.Unmarshal(j.Payload, &payload); err != nil {
			t.Fatalf("dead-lettered payload invalid: %v", err)
		}
		if payload["keep"] != "me" {
			t.Fatalf("dead-lettered payload mutated: %v", payload)
		}
	}
}

// TestWork_ExpiredLeaseIsRetriedThenDeadLettered hangs a handler past its
// expiry window and verifies the maintenance sweep applies the same retry
// policy as a returned error: one rescheduled attempt, then the dead-letter
// queue, with the payload intact.
func TestWork_ExpiredLeaseIsRetriedThenDeadLettered(t *testing.T) {
	c, store := newClient(t)
	mustCreateQueue(t, c, "q/dlq", jobqueue.Policy{ExpireIn: time.Minute})
	mustCreateQueue(t, c, "q", jobqueue.Policy{
		RetryLimit: 1,
		RetryDelay: time.Millisecond,
		ExpireIn:   30 * time.Millisecond,
		DeadLetter: "q/dlq",
	})

	var attempts atomic.Int32
	release := make(chan struct{})
	err := c.Work("q", jobqueue.WorkOptions{Concurrency: 2}, func(context.Context, *jobqueue.Job) error {
		attempts.Add(1)
		<-release
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	if _, err := c.Enqueue(ctx, "q", map[string]string{"keep": "me"}, jobqueue.EnqueueOptions{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		n, _ := store.Depth(context.Background(), "q/dlq")
		return n == 1
	})
	close(release)
	cancel()
	c.Wait()

	// first lease + one sweep-driven retry
	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
	for _, j := range store.Snapshot() {
		if j.Queue != "q/dlq" {
			continue
		}
		var payload map[string]string
		if err := json.Unmarshal(j.Payload, &payload); err != nil {
			t.Fatalf("dead-lettered payload invalid: %v", err)
		}
		if payload["keep"] != "me" {
			t.Fatalf("dead-lettered payload mutated: %v", payload)
		}
	}
}

func TestWork_PanicIsAFailure(t *testing.T) {
	c, store := newClient(t)
	mustCreateQueue(t, c, "q/dlq", jobqueue.Policy{ExpireIn: time.Minute})
	mustCreateQueue(t, c, "q", jobqueue.Policy{
		RetryLimit: 0,
		ExpireIn:   time.Minute,
		DeadLetter: "q/dlq",
	})

	err := c.Work("q", jobqueue.WorkOptions{}, func(context.Context, *jobqueue.Job) error {
		panic("malformed payload")
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	if _, err := c.Enqueue(ctx, "q", nil, jobqueue.EnqueueOptions{}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		n, _ := store.Depth(context.Background(), "q/dlq")
		return n == 1
	})
	cancel()
	c.Wait()
}

func TestWork_ConcurrencySlots(t *testing.T) {
	c, store := newClient(t)
	mustCreateQueue(t, c, "q", jobqueue.Policy{ExpireIn: time.Minute})

	var mu sync.Mutex
	inFlight, peak := 0, 0

	err := c.Work("q", jobqueue.WorkOptions{Concurrency: 3}, func(context.Context, *jobqueue.Job) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	for i := 0; i < 9; i++ {
		if _, err := c.Enqueue(ctx, "q", nil, jobqueue.EnqueueOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		done := 0
		for _, j := range store.Snapshot() {
			if j.State == jobqueue.StateCompleted {
				done++
			}
		}
		return done == 9
	})
	cancel()
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if peak > 3 {
		t.Fatalf("concurrency cap exceeded: peak %d", peak)
	}
}

func TestSchedule_RejectsBadSpecAndUnknownQueue(t *testing.T) {
	c, _ := newClient(t)
	mustCreateQueue(t, c, "q", jobqueue.Policy{ExpireIn: time.Minute})

	if err := c.Schedule("q", "not a cron"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
	if err := c.Schedule("missing", "*/5 * * * *"); err == nil {
		t.Fatal("expected error for unknown queue")
	}
	if err := c.Schedule("q", "*/5 * * * *"); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
}

// TestCronSingletonKey_MinuteBucket verifies that two fires inside the same
// minute collapse to one key, so duplicate ticks merge at enqueue time.
func TestCronSingletonKey_MinuteBucket(t *testing.T) {
	base := time.Date(2026, 6, 1, 8, 15, 3, 0, time.UTC)

	same := jobqueue.CronSingletonKey("cronq", base.Add(40*time.Second))
	if got := jobqueue.CronSingletonKey("cronq", base); got != same {
		t.Fatalf("keys within a minute differ: %s vs %s", got, same)
	}
	if got := jobqueue.CronSingletonKey("cronq", base.Add(time.Minute)); got == same {
		t.Fatal("keys across minutes must differ")
	}
	if got := jobqueue.CronSingletonKey("other", base); got == same {
		t.Fatal("keys across queues must differ")
	}
}

// TestCronSingletonKey_MergesAtEnqueue drives two enqueues with the same
// bucketed key through the client, as two overlapping scheduler ticks would.
func TestCronSingletonKey_MergesAtEnqueue(t *testing.T) {
	c, store := newClient(t)
	mustCreateQueue(t, c, "cronq", jobqueue.Policy{ExpireIn: time.Minute})
	ctx := context.Background()

	key := jobqueue.CronSingletonKey("cronq", time.Now())
	for i := 0; i < 2; i++ {
		if _, err := c.Enqueue(ctx, "cronq", nil, jobqueue.EnqueueOptions{SingletonKey: key}); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(liveJobs(store, "cronq")); n != 1 {
		t.Fatalf("expected one job for the minute bucket, got %d", n)
	}
}

func TestCreateQueue_Idempotent(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	if err := c.CreateQueue(ctx, "q", jobqueue.Policy{RetryLimit: 3, ExpireIn: time.Minute}); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateQueue(ctx, "q", jobqueue.Policy{RetryLimit: 99, ExpireIn: time.Hour}); err != nil {
		t.Fatalf("second CreateQueue must be a no-op, got %v", err)
	}
}
