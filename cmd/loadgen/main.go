// Loadgen нагружает POST /api/shorten несколькими воркерами и ключами и печатает,
// сколько запросов прошло и на каком уровне ограничителя остальные получили отказ.
//
// Пример:
//
//	go run ./cmd/loadgen -target http://localhost:8090 -n 5000 -c 50 -keys key1,key2,key3
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dessources/Go-rate-limited-url-shortener/models"
)

const (
	headerAPIKey        = "X-API-Key"
	headerRateLimitTier = "X-RateLimit-Tier"
)

type loadConfig struct {
	Target   string
	Requests int
	Workers  int
	Keys     []string
	RPS      float64
	URL      string
}

// report итог прогона
type report struct {
	Admitted       int64
	GlobalRejected int64
	ClientRejected int64
	Failed         int64
	Elapsed        time.Duration
}

func (r report) String() string {
	total := r.Admitted + r.GlobalRejected + r.ClientRejected + r.Failed
	return fmt.Sprintf("requests=%d admitted=%d global_rejected=%d client_rejected=%d failed=%d elapsed=%s",
		total, r.Admitted, r.GlobalRejected, r.ClientRejected, r.Failed, r.Elapsed.Round(time.Millisecond))
}

type counters struct {
	admitted, global, client, failed atomic.Int64
}

func main() {
	var cfg loadConfig
	var keys string
	flag.StringVar(&cfg.Target, "target", "http://localhost:8090", "Shortener base URL")
	flag.IntVar(&cfg.Requests, "n", 1000, "Total number of requests")
	flag.IntVar(&cfg.Workers, "c", 20, "Number of concurrent workers")
	flag.StringVar(&keys, "keys", "loadgen", "Comma separated API keys, requests are spread across them")
	flag.Float64Var(&cfg.RPS, "rps", 0, "Overall request rate limit, 0 means unlimited")
	flag.StringVar(&cfg.URL, "url", "https://example.com/load/test", "URL to shorten")
	flag.Parse()
	cfg.Keys = splitKeys(keys)

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := runLoad(ctx, &http.Client{Timeout: 10 * time.Second}, cfg, sugar)
	if err != nil {
		sugar.Errorw("load run failed", "error", err)
		return
	}
	fmt.Println(rep)
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// runLoad отправляет cfg.Requests запросов из cfg.Workers горутин. Запрос i идёт с ключом i % len(Keys)
func runLoad(ctx context.Context, client *http.Client, cfg loadConfig, logger *zap.SugaredLogger) (report, error) {
	if cfg.Requests <= 0 || cfg.Workers <= 0 {
		return report{}, fmt.Errorf("requests and workers must be positive")
	}
	if len(cfg.Keys) == 0 {
		return report{}, fmt.Errorf("at least one API key is required")
	}

	body, err := json.Marshal(models.ShortenRequest{Original: cfg.URL})
	if err != nil {
		return report{}, err
	}
	endpoint := strings.TrimRight(cfg.Target, "/") + "/api/shorten"

	var pacer *rate.Limiter
	if cfg.RPS > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	jobs := make(chan int)
	var c counters
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				key := cfg.Keys[i%len(cfg.Keys)]
				if err := shortenOnce(ctx, client, endpoint, key, body, &c); err != nil {
					c.failed.Add(1)
					logger.Debugw("request failed", "key_index", i%len(cfg.Keys), "error", err)
				}
			}
		}()
	}

feed:
	for i := 0; i < cfg.Requests; i++ {
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				break
			}
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return report{
		Admitted:       c.admitted.Load(),
		GlobalRejected: c.global.Load(),
		ClientRejected: c.client.Load(),
		Failed:         c.failed.Load(),
		Elapsed:        time.Since(start),
	}, nil
}

func shortenOnce(ctx context.Context, client *http.Client, endpoint, key string, body []byte, c *counters) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKey, key)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		c.admitted.Add(1)
	case http.StatusTooManyRequests:
		if resp.Header.Get(headerRateLimitTier) == "global" {
			c.global.Add(1)
		} else {
			c.client.Add(1)
		}
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
