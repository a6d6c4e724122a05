package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/time/rate"

	playv1 "github.com/avisly/playengine/api/playv1"
	"github.com/avisly/playengine/api/playv1/playv1connect"
	"github.com/avisly/playengine/internal/apperr"
	"github.com/avisly/playengine/internal/auth"
	"github.com/avisly/playengine/internal/repository"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock-contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
//
// SpinViolations and RedeemViolations count scenarios where a race let
// more or fewer than one contender succeed.
type PerfResult struct {
	TotalScenarios   int64
	SuccessCount     int64
	ErrorCount       int64
	CouponsIssued    int64
	SpinViolations   int64
	RedeemViolations int64
	LatencySum       int64
	P95Latency       int64
}

// perfConfig is read from PERF_ variables
type perfConfig struct {
	BaseURL      string        `env:"BASE_URL,default=http://localhost:8080"`
	CampaignID   string        `env:"CAMPAIGN_ID"`
	RestaurantID string        `env:"RESTAURANT_ID"`
	JWTSecret    string        `env:"JWT_SECRET,default=dev-secret-change-me"`
	Issuer       string        `env:"ISSUER"`
	Workers      int           `env:"WORKERS,default=20"`
	RPS          int           `env:"RPS,default=100"`
	Contenders   int           `env:"CONTENDERS,default=5"`
	Duration     time.Duration `env:"DURATION,default=30s"`
}

const defaultTimeout = 30 * time.Second

func main() {
	var cfg perfConfig
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("PERF_", envconfig.OsLookuper()),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.CampaignID == "" {
		cfg.CampaignID = repository.DemoCampaignID.String()
	}
	if cfg.RestaurantID == "" {
		cfg.RestaurantID = repository.DemoRestaurantID.String()
	}

	// ─── HTTP Client & Transport ─────────────────────────────────
	transport := &http.Transport{
		MaxIdleConns:        cfg.Workers * cfg.Contenders * 2,
		MaxIdleConnsPerHost: cfg.Workers * cfg.Contenders * 2,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	token, err := staffToken(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign staff token: %v\n", err)
		os.Exit(1)
	}

	play := playv1connect.NewPlayServiceClient(httpClient, cfg.BaseURL)
	staff := playv1connect.NewStaffServiceClient(httpClient, cfg.BaseURL)

	// ─── Banner ──────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("Play engine race check")
	fmt.Println("==========================================")
	fmt.Printf("Campaign   : %s\n", cfg.CampaignID)
	fmt.Printf("Scenarios/s: %d\n", cfg.RPS)
	fmt.Printf("Contenders : %d\n", cfg.Contenders)
	fmt.Printf("Duration   : %v\n", cfg.Duration)
	fmt.Println("The server must trust this host in RATE_LIMIT_TRUSTED_PROXIES")
	fmt.Println("or run with RATE_LIMIT_ENABLED=false")
	fmt.Println("==========================================")

	// ─── Rate limiter & context ─────────────────────────────────
	burst := cfg.RPS / cfg.Workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), burst)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup
	var visitor atomic.Uint32

	latencyChan := make(chan time.Duration, 4096)
	var trackerDone sync.WaitGroup
	trackerDone.Add(1)
	go func() {
		defer trackerDone.Done()
		trackP95(latencyChan, &result)
	}()

	r := &runner{
		play:       play,
		staff:      staff,
		campaignID: cfg.CampaignID,
		token:      token,
		contenders: cfg.Contenders,
		result:     &result,
		latencies:  latencyChan,
	}

	// ─── Workers ────────────────────────────────────────────────
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				r.scenario(visitorIP(visitor.Add(1)))
			}
		}()
	}

	start := time.Now()
	<-ctx.Done()

	// ─── Cleanup ────────────────────────────────────────────────
	wg.Wait()
	close(latencyChan)
	trackerDone.Wait()

	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("Results")
	fmt.Println("==========================================")
	fmt.Printf("Elapsed            : %.2fs\n", totalDur.Seconds())
	fmt.Printf("Scenarios          : %d\n", result.TotalScenarios)
	fmt.Printf("Succeeded          : %d\n", result.SuccessCount)
	fmt.Printf("Failed             : %d\n", result.ErrorCount)
	fmt.Printf("Coupons issued     : %d\n", result.CouponsIssued)

	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}
	fmt.Printf("Scenarios/s        : %.2f\n", float64(result.SuccessCount)/totalDur.Seconds())
	fmt.Printf("Average latency    : %v\n", avgLatency)
	fmt.Printf("P95 latency        : %v\n", time.Duration(result.P95Latency))

	// ─── Data Consistency Check ─────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("Consistency")
	fmt.Println("==========================================")
	fmt.Printf("Double spins       : %d\n", result.SpinViolations)
	fmt.Printf("Double redemptions : %d\n", result.RedeemViolations)
	if result.SpinViolations > 0 || result.RedeemViolations > 0 {
		fmt.Println("FAIL: a guarded transition succeeded more or less than once")
		os.Exit(1)
	}
	fmt.Println("OK: every spin and redemption succeeded exactly once")
	fmt.Println("==========================================")
}

func staffToken(cfg perfConfig) (string, error) {
	restaurantID, err := uuid.Parse(cfg.RestaurantID)
	if err != nil {
		return "", fmt.Errorf("invalid restaurant id %q: %w", cfg.RestaurantID, err)
	}
	return auth.GenerateToken(cfg.JWTSecret, cfg.Issuer, auth.Identity{
		UserID:       "perf-client",
		RestaurantID: restaurantID,
	}, time.Hour)
}

// visitorIP spreads scenarios over distinct addresses so the fraud gate
// admits each one
func visitorIP(n uint32) string {
	return fmt.Sprintf("100.%d.%d.%d", 64+(n>>16)%64, (n>>8)&0xff, n&0xff)
}

type runner struct {
	play       playv1connect.PlayServiceClient
	staff      playv1connect.StaffServiceClient
	campaignID string
	token      string
	contenders int
	result     *PerfResult
	latencies  chan<- time.Duration
}

// scenario plays one visitor end to end, racing the spin and the redemption
func (r *runner) scenario(ip string) {
	// Use independent context to avoid cancellation when test ends
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	start := time.Now()
	atomic.AddInt64(&r.result.TotalScenarios, 1)

	initReq := connect.NewRequest(&playv1.InitSessionRequest{CampaignID: r.campaignID})
	initReq.Header().Set("X-Forwarded-For", ip)
	session, err := r.play.InitSession(ctx, initReq)
	if err != nil {
		atomic.AddInt64(&r.result.ErrorCount, 1)
		return
	}
	sessionID := session.Msg.SessionID

	spins := race(r.contenders, apperr.AlreadyPlayed, func() error {
		req := connect.NewRequest(&playv1.SpinRequest{
			CampaignID: r.campaignID,
			SessionID:  sessionID,
		})
		req.Header().Set("X-Forwarded-For", ip)
		_, err := r.play.Spin(ctx, req)
		return err
	})
	if spins.violated() {
		atomic.AddInt64(&r.result.SpinViolations, 1)
	}

	rateReq := connect.NewRequest(&playv1.RateRequest{
		CampaignID: r.campaignID,
		SessionID:  sessionID,
		Rating:     5,
	})
	rateReq.Header().Set("X-Forwarded-For", ip)
	rated, err := r.play.Rate(ctx, rateReq)
	if err != nil {
		atomic.AddInt64(&r.result.ErrorCount, 1)
		return
	}

	if coupon := rated.Msg.Coupon; coupon != nil {
		atomic.AddInt64(&r.result.CouponsIssued, 1)
		redeemed := race(r.contenders, apperr.AlreadyUsed, func() error {
			req := connect.NewRequest(&playv1.RedeemCouponRequest{Code: coupon.Code})
			req.Header().Set("Authorization", "Bearer "+r.token)
			req.Header().Set("X-Forwarded-For", ip)
			_, err := r.staff.RedeemCoupon(ctx, req)
			return err
		})
		if redeemed.violated() {
			atomic.AddInt64(&r.result.RedeemViolations, 1)
		}
	}

	latency := time.Since(start)
	atomic.AddInt64(&r.result.SuccessCount, 1)
	atomic.AddInt64(&r.result.LatencySum, latency.Nanoseconds())
	select {
	case r.latencies <- latency:
	default:
	}
}

// raceResult splits contenders into winners, expected losers and others
// (throttled or failed calls)
type raceResult struct {
	won, lost, other int32
}

// violated reports a second winner, or no winner while every contender
// got a definite answer
func (r raceResult) violated() bool {
	return r.won > 1 || (r.won == 0 && r.other == 0)
}

// race runs call n times at once. Losers must fail with loserKind.
func race(n int, loserKind apperr.Kind, call func() error) raceResult {
	var (
		wg               sync.WaitGroup
		won, lost, other atomic.Int32
		gate             = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			err := call()
			switch {
			case err == nil:
				won.Add(1)
			case kindOf(err) == loserKind:
				lost.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	close(gate)
	wg.Wait()
	return raceResult{won: won.Load(), lost: lost.Load(), other: other.Load()}
}

func kindOf(err error) apperr.Kind {
	if e := apperr.FromConnect(err); e != nil {
		return e.Kind
	}
	return apperr.Internal
}

// trackP95 maintains a best-effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else {
			// Replace random element (simple reservoir sampling)
			if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
				buf[idx] = lat.Nanoseconds()
			}
		}

		// Update P95 periodically
		if len(buf) >= 100 && len(buf)%100 == 0 {
			sorted := slices.Clone(buf)
			slices.Sort(sorted)
			p95Index := int(float64(len(sorted)) * 0.95)
			if p95Index >= len(sorted) {
				p95Index = len(sorted) - 1
			}
			atomic.StoreInt64(&result.P95Latency, sorted[p95Index])
		}
	}
}
