package agent

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxCheckedURLs   = 3
	maxExtractedText = 100000
	maxSummaryInput  = 12000
	fetchAttempts    = 3
	backoffInitial   = 1 * time.Second
	backoffCap       = 8 * time.Second
)

var urlRe = regexp.MustCompile(`https?://\S+`)

// WebChecker fetches the URLs mentioned in the request, extracts readable
// text and asks the model for a short per-page summary. Each URL is handled
// independently: one bad page never aborts the batch.
type WebChecker struct {
	planner   *Planner
	client    *http.Client
	userAgent string
	timeout   time.Duration
	logFunc   func(string)

	// replaced in tests to skip real backoff waits
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWebChecker(planner *Planner, timeout time.Duration, userAgent string, logFunc func(string)) *WebChecker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = "SusanBot/1.0"
	}
	if logFunc == nil {
		logFunc = func(string) {}
	}
	return &WebChecker{
		planner:   planner,
		client:    &http.Client{},
		userAgent: userAgent,
		timeout:   timeout,
		logFunc:   logFunc,
		sleep:     sleepCtx,
	}
}

func (w *WebChecker) Answer(ctx context.Context, state *State) *State {
	urls := urlRe.FindAllString(state.UserInput, -1)
	if len(urls) == 0 {
		state.AddMessage(RoleAssistant, "Provide a URL to check, or ask me to search specific sites.")
		return state
	}
	if len(urls) > maxCheckedURLs {
		urls = urls[:maxCheckedURLs]
	}

	parts := make([]string, 0, len(urls))
	for _, u := range urls {
		summary, err := w.checkOne(ctx, u)
		if err != nil {
			w.logFunc(fmt.Sprintf("[WEB] Check failed for %s: %v", u, err))
			parts = append(parts, fmt.Sprintf("Error for %s: %v", u, err))
			continue
		}
		parts = append(parts, fmt.Sprintf("Summary for %s:\n%s", u, summary))
	}

	state.WebSummary = strings.Join(parts, "\n\n")
	state.AddMessage(RoleAssistant, state.WebSummary)
	return state
}

func (w *WebChecker) checkOne(ctx context.Context, pageURL string) (string, error) {
	html, err := w.fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}

	text := truncateUTF8(extractMainText(html), maxSummaryInput)

	prompt := fmt.Sprintf(
		"Summarize this page in 5 bullets plus a one-line takeaway.\nURL: %s\n\nTEXT:\n%s",
		pageURL, text)
	return w.planner.Respond(ctx, prompt)
}

// fetch retries transient failures with exponential backoff: 1s initial, 8s
// cap, full jitter, three attempts total.
func (w *WebChecker) fetch(ctx context.Context, pageURL string) (string, error) {
	var lastErr error
	delay := backoffInitial
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if attempt > 1 {
			wait := delay + time.Duration(rand.Int63n(int64(delay)))
			if wait > backoffCap {
				wait = backoffCap
			}
			if err := w.sleep(ctx, wait); err != nil {
				return "", err
			}
			delay *= 2
			if delay > backoffCap {
				delay = backoffCap
			}
		}

		body, err := w.fetchOnce(ctx, pageURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		w.logFunc(fmt.Sprintf("[WEB] Attempt %d/%d failed for %s: %v", attempt, fetchAttempts, pageURL, err))
	}
	return "", lastErr
}

func (w *WebChecker) fetchOnce(ctx context.Context, pageURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %v", err)
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %v", err)
	}
	return string(body), nil
}

// extractMainText pulls readable text out of an HTML page, preferring
// content containers over the raw body, and caps the result.
func extractMainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, header, footer").Remove()

	var text string
	for _, sel := range []string{"article", "main", ".content", "#content", ".main-content"} {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			text = node.Text()
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		text = doc.Find("body").Text()
	}

	lines := make([]string, 0, 64)
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return truncateUTF8(strings.Join(lines, "\n"), maxExtractedText)
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
