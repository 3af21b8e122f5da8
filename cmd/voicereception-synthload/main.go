// Command voicereception-synthload drives synthetic inbound voice webhooks
// against a running voicereceptiond instance, to smoke-test an environment
// after deploy without placing a real phone call.
//
// Exit codes (spec.md §6): 0 the request failure rate stayed at or below
// -failure-rate-threshold, 1 setup/config error (missing flags, unparsable
// -target-url, rate limiter failure), 2 the request failure rate exceeded
// -failure-rate-threshold (an unreachable target fails every request and so
// exits 2).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/glyphoxa/internal/ingress"
)

func main() {
	os.Exit(run())
}

func run() int {
	targetURL := flag.String("target-url", "", "base URL of the voicereceptiond instance, e.g. https://tenant.example.com")
	tenantID := flag.String("tenant-id", "", "tenant id to address the synthetic calls to")
	authToken := flag.String("auth-token", "", "the tenant's telephony provider auth token, used to sign requests")
	count := flag.Int("count", 20, "number of synthetic /voice webhook requests to send")
	rps := flag.Float64("rps", 5, "requests per second to sustain")
	failureRateThreshold := flag.Float64("failure-rate-threshold", 0.05, "fraction of failed requests that triggers a non-zero exit")
	timeout := flag.Duration("timeout", 5*time.Second, "per-request timeout")
	flag.Parse()

	if *targetURL == "" || *tenantID == "" || *authToken == "" {
		fmt.Fprintln(os.Stderr, "synthload: -target-url, -tenant-id, and -auth-token are all required")
		return 1
	}
	base, err := url.Parse(*targetURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "synthload: -target-url: %v\n", err)
		return 1
	}

	ctx := context.Background()
	limiter := rate.NewLimiter(rate.Limit(*rps), 1)
	client := &http.Client{Timeout: *timeout}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		failed    atomic.Int64
	)

	for i := 0; i < *count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "synthload: rate limiter: %v\n", err)
			return 1
		}

		callSID := "synth-" + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.Itoa(i)
		wg.Add(1)
		go func(callSID string) {
			defer wg.Done()
			if err := sendVoiceWebhook(ctx, client, base, *tenantID, *authToken, callSID); err != nil {
				slog.Warn("synthetic webhook failed", "call_sid", callSID, "err", err)
				failed.Add(1)
				return
			}
			succeeded.Add(1)
		}(callSID)
	}
	wg.Wait()

	total := succeeded.Load() + failed.Load()
	var failureRate float64
	if total > 0 {
		failureRate = float64(failed.Load()) / float64(total)
	}
	fmt.Printf("synthload: %d/%d succeeded, %.1f%% failure rate\n", succeeded.Load(), total, failureRate*100)

	if failureRate > *failureRateThreshold {
		return 2
	}
	return 0
}

// sendVoiceWebhook POSTs one signed synthetic /voice webhook and verifies
// the response looks like a valid voice-response XML document.
func sendVoiceWebhook(ctx context.Context, client *http.Client, base *url.URL, tenantID, authToken, callSID string) error {
	voiceURL := *base
	voiceURL.Path = "/voice"
	q := voiceURL.Query()
	q.Set("tenantId", tenantID)
	voiceURL.RawQuery = q.Encode()

	form := url.Values{
		"CallSid": {callSID},
		"To":      {"+15555550123"},
		"From":    {"+15555550999"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, voiceURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// X-Webhook-Signature mirrors the header name internal/ingress.Server
	// checks (internal/ingress/server.go's unexported signatureHeader).
	req.Header.Set("X-Webhook-Signature", ingress.Sign(authToken, voiceURL.String(), form))

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && ct != "text/xml" && ct != "text/xml; charset=utf-8" {
		return fmt.Errorf("unexpected content-type %q", ct)
	}
	return nil
}
