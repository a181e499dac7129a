// authcore-loadtest seeds an in-memory account store and hammers the login
// and session validation paths, reporting throughput and latency
// percentiles. Rate limit counters go through Redis when an address is
// given, miniredis otherwise, so the limiter path is exercised either way.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mintlane/authcore"
	"github.com/mintlane/authcore/email"
	"github.com/mintlane/authcore/store/memstore"
)

const seedPassword = "Loadtest123!"

func main() {
	var (
		accounts  = flag.Int("accounts", 10000, "number of accounts to seed")
		workers   = flag.Int("concurrency", 256, "number of concurrent workers")
		ops       = flag.Int("ops", 200000, "operations per phase (login + validate)")
		redisAddr = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *workers <= 0 || *ops <= 0 {
		fail("accounts, concurrency, and ops must be > 0")
	}

	ctx := context.Background()
	client, closeRedis := connectRedis(*redisAddr)
	defer closeRedis()

	engine, err := buildEngine(client)
	if err != nil {
		fail("failed to build engine: %v", err)
	}
	defer engine.Close()

	emails := seedAccounts(ctx, engine, *accounts)

	var tokens []string
	var tokensMu sync.Mutex
	loginStats := drive(*ops, *workers, func(r *rand.Rand) error {
		session, err := engine.Login(ctx, emails[r.Intn(len(emails))], seedPassword, false)
		if err != nil {
			return err
		}
		tokensMu.Lock()
		tokens = append(tokens, session.Token)
		tokensMu.Unlock()
		return nil
	})
	if len(tokens) == 0 {
		fail("no tokens from login phase")
	}

	validateStats := drive(*ops, *workers, func(r *rand.Rand) error {
		_, err := engine.ValidateSession(ctx, tokens[r.Intn(len(tokens))])
		return err
	})

	fmt.Println("---- results ----")
	loginStats.print("login")
	validateStats.print("validate")

	snapshot := engine.MetricsSnapshot()
	fmt.Printf("login_success=%d session_issued=%d session_rejected=%d audit_dropped=%d\n",
		snapshot.Counters["login_success"],
		snapshot.Counters["session_issued"],
		snapshot.Counters["session_rejected"],
		engine.AuditDropped(),
	)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// connectRedis dials the given address, or REDIS_ADDR, or a fresh miniredis
// when neither is set.
func connectRedis(addr string) (redis.UniversalClient, func()) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }
	}

	mr, err := miniredis.Run()
	if err != nil {
		fail("failed to start miniredis: %v", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}
}

// buildEngine wires cheap hash parameters and effectively unlimited rate
// budgets. The point is path throughput, not argon2 benchmarking.
func buildEngine(client redis.UniversalClient) (*authcore.Engine, error) {
	cfg := authcore.DefaultConfig()
	cfg.Session.Secret = []byte("loadtest-secret-loadtest-secret-ok")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.LoginLimit = 1 << 30
	cfg.RateLimit.RegisterLimit = 1 << 30
	cfg.Sweep.Enabled = false
	cfg.Audit.Enabled = false

	return authcore.New().
		WithConfig(cfg).
		WithRepository(memstore.New()).
		WithEmailSender(email.NewRecorder()).
		WithRedis(client).
		Build()
}

func seedAccounts(ctx context.Context, engine *authcore.Engine, n int) []string {
	fmt.Printf("seeding %d accounts...\n", n)
	started := time.Now()

	emails := make([]string, n)
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
		if _, err := engine.Register(ctx, emails[i], seedPassword); err != nil {
			fail("seed register failed: %v", err)
		}
	}

	fmt.Printf("seeded in %s\n", time.Since(started).Round(time.Millisecond))
	return emails
}

// drive splits ops across workers, each timing its own calls into a local
// slice; the slices are merged after the last worker finishes so the hot
// loop takes no shared lock.
func drive(ops, workers int, op func(r *rand.Rand) error) summary {
	perWorker := make([][]time.Duration, workers)
	failed := make([]int, workers)

	var wg sync.WaitGroup
	started := time.Now()
	for w := 0; w < workers; w++ {
		share := ops / workers
		if w < ops%workers {
			share++
		}

		wg.Add(1)
		go func(w, share int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(started.UnixNano() ^ int64(w)<<17))
			local := make([]time.Duration, 0, share)
			for i := 0; i < share; i++ {
				callStart := time.Now()
				err := op(r)
				local = append(local, time.Since(callStart))
				if err != nil {
					failed[w]++
				}
			}
			perWorker[w] = local
		}(w, share)
	}
	wg.Wait()
	elapsed := time.Since(started)

	var all []time.Duration
	var failures int
	for w := range perWorker {
		all = append(all, perWorker[w]...)
		failures += failed[w]
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	return summary{
		elapsed:  elapsed,
		count:    len(all),
		failures: failures,
		p50:      rank(all, 50),
		p95:      rank(all, 95),
		p99:      rank(all, 99),
	}
}

type summary struct {
	elapsed  time.Duration
	count    int
	failures int
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
}

// rank returns the nearest-rank percentile of sorted samples.
func rank(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := len(sorted) * p / 100
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func (s summary) print(name string) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.count,
		s.failures,
		s.elapsed.Round(time.Millisecond),
		float64(s.count)/s.elapsed.Seconds(),
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
