package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/neurobloom/pkg/logger"
)

// Client talks to the session API.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// Submit posts one session and classifies the response.
func (c *Client) Submit(ctx context.Context, sub Submission) (string, error) { //nolint:gocritic // hugeParam: read-only
	resp, err := c.do(ctx, http.MethodPost, "/sessions", sub)
	if err != nil {
		return outcomeRejected, err
	}
	defer resp.Body.Close()

	var ack AckResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return outcomeRejected, fmt.Errorf("decode ack: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		return outcomeAccepted, nil
	case http.StatusOK:
		if ack.Duplicate {
			return outcomeDuplicate, nil
		}
		return outcomeAccepted, nil
	default:
		return outcomeRejected, fmt.Errorf("%w: submit status %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

// Report fetches GET /sessions/{id}.
func (c *Client) Report(ctx context.Context, id string) (Report, error) {
	resp, err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return Report{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Report{}, fmt.Errorf("%w: report status %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	var rep Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return rep, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// submitSessions submits sessions concurrently using a worker pool.
func submitSessions(ctx context.Context, config *Config, client *Client, subs []Submission, stats *Stats) {
	log := logger.Get().Named("submit")
	log.Info(ctx, "submitting sessions", logger.Int("sessions", len(subs)), logger.Int("workers", config.Workers))

	var submitted, accepted, duplicate, rejected atomic.Int64
	var lastReport atomic.Int64

	subChan := make(chan Submission, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range subChan {
				if ctx.Err() != nil {
					continue
				}
				outcome, err := client.Submit(ctx, sub)
				if err != nil && config.Verbose {
					log.Warn(ctx, "submit failed", logger.SessionID(sub.SessionID), logger.Error(err))
				}

				total := submitted.Add(1)
				switch outcome {
				case outcomeAccepted:
					accepted.Add(1)
				case outcomeDuplicate:
					duplicate.Add(1)
				default:
					rejected.Add(1)
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if time.Duration(now-last) >= progressInterval && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int("submitted", int(total)),
						logger.Int("total", len(subs)),
						logger.Int("accepted", int(accepted.Load())),
						logger.Int("duplicate", int(duplicate.Load())),
						logger.Int("rejected", int(rejected.Load())),
					)
				}
			}
		}()
	}

send:
	for _, sub := range subs {
		select {
		case <-ctx.Done():
			break send
		case subChan <- sub:
		}
	}
	close(subChan)
	wg.Wait()

	stats.SessionsSubmitted = int(submitted.Load())
	stats.SessionsAccepted = int(accepted.Load())
	stats.SessionsDuplicate = int(duplicate.Load())
	stats.SessionsRejected = int(rejected.Load())

	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.SessionsAccepted),
		logger.Int("duplicate", stats.SessionsDuplicate),
		logger.Int("rejected", stats.SessionsRejected),
	)
}

// collectReports polls every session until it is terminal or ctx ends.
// Sessions still running when ctx ends are returned non-terminal.
func collectReports(ctx context.Context, config *Config, client *Client, ids []string) []Report {
	log := logger.Get().Named("collect")
	log.Info(ctx, "collecting reports", logger.Int("sessions", len(ids)))

	reports := make([]Report, len(ids))
	idxChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range idxChan {
				reports[idx] = pollReport(ctx, config, client, ids[idx])
			}
		}()
	}

	for i := range ids {
		idxChan <- i
	}
	close(idxChan)
	wg.Wait()
	return reports
}

func pollReport(ctx context.Context, config *Config, client *Client, id string) Report {
	last := Report{SessionID: id}
	ticker := time.NewTicker(config.PollInterval)
	defer ticker.Stop()

	for {
		rep, err := client.Report(ctx, id)
		if err == nil {
			last = rep
			if rep.Terminal() {
				return rep
			}
		} else if config.Verbose {
			logger.Get().Debug(ctx, "report not ready", logger.SessionID(id), logger.Error(err))
		}

		select {
		case <-ctx.Done():
			return last
		case <-ticker.C:
		}
	}
}
