package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const eventLayout = "2006-01-02 15:04:05.000000"

// session is one simulated app session of a subject.
type session struct {
	subjectID int64
	userID    string
	sessionID int64
}

func main() {
	targetURL := flag.String("url", "http://localhost:8080/ingest", "Target URL for ingestion")
	apiKey := flag.String("api-key", "supersecretkey", "API Key for authentication")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 100, "Requests per second limit")
	batch := flag.Int("batch", 50, "Events per NDJSON request")
	subjects := flag.Int("subjects", 1000, "Number of distinct subjects to simulate")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Batch: %d, Subjects: %d", *concurrency, *duration, *rps, *batch, *subjects)

	var wg sync.WaitGroup
	var successCount, errorCount, eventCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 10)

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			open := make(map[int64]session)

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				var body bytes.Buffer
				for j := 0; j < *batch; j++ {
					s := nextSession(rng, open, *subjects)
					body.WriteString(eventLine(s, time.Now().UTC()))
					body.WriteByte('\n')
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, &body)
				if err != nil {
					continue // Should not happen
				}
				req.Header.Set("Content-Type", "application/x-ndjson")
				req.Header.Set("X-API-Key", *apiKey)

				resp, err := client.Do(req)
				if err != nil {
					errorCount.Add(1)
					continue
				}

				if resp.StatusCode == http.StatusAccepted {
					successCount.Add(1)
					eventCount.Add(int64(*batch))
				} else {
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (202 Accepted): %d", successCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Events accepted: %d", eventCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}

// nextSession picks a subject and either continues its open session or,
// now and then, starts a new one.
func nextSession(rng *rand.Rand, open map[int64]session, subjects int) session {
	subjectID := int64(100000 + rng.Intn(subjects))
	s, ok := open[subjectID]
	if !ok || rng.Intn(20) == 0 {
		s = session{
			subjectID: subjectID,
			sessionID: time.Now().UnixMilli(),
		}
		if rng.Intn(2) == 0 {
			s.userID = fmt.Sprintf("user-%d", subjectID)
		}
		open[subjectID] = s
	}
	return s
}

func eventLine(s session, now time.Time) string {
	user := "null"
	if s.userID != "" {
		user = fmt.Sprintf("%q", s.userID)
	}
	// Simulated client clocks run up to a minute behind the server.
	client := now.Add(-time.Duration(s.subjectID%60) * time.Second)
	return fmt.Sprintf(`{"uuid": %q, "amplitude_id": %d, "user_id": %s, "session_id": %d, "event_time": %q, "client_upload_time": %q, "server_upload_time": %q}`,
		uuid.NewString(), s.subjectID, user, s.sessionID,
		client.Format(eventLayout), client.Format(eventLayout), now.Format(eventLayout))
}
