// Command smoke posts a few contact submissions to a server started with
// SINK_ENABLED=true and checks that each one landed in the capture sink.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.io/infrasutra/portfolio/internal/contact"
	"github.io/infrasutra/portfolio/internal/form"
)

type sinkPage struct {
	Items []struct {
		ID      string `json:"id"`
		Subject string `json:"subject"`
		ReplyTo string `json:"replyTo"`
	} `json:"items"`
	Total int `json:"total"`
}

func main() {
	baseURL := getenvDefault("PORTFOLIO_URL", "http://localhost:3000")
	count := 3
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	before := listSink(ctx, baseURL)

	relay := form.NewHTTPRelay(baseURL+"/api/contact", nil)
	for i := 1; i <= count; i++ {
		resp, err := relay.Submit(ctx, contact.Submission{
			Name:    fmt.Sprintf("Smoke Tester %d", i),
			Email:   fmt.Sprintf("smoke%d@example.com", i),
			Subject: fmt.Sprintf("Smoke #%d", i),
			Message: "こんにちは from the smoke test.",
		})
		if err != nil {
			fail("submit %d: %v", i, err)
		}
		if !resp.Succeeded() {
			fail("submit %d: status %d error %q", i, resp.StatusCode, resp.Result.Error)
		}
		fmt.Printf("submitted #%d\n", i)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		after := listSink(ctx, baseURL)
		if after.Total-before.Total >= count {
			for _, item := range after.Items[:count] {
				fmt.Printf("- %s %q reply-to %s\n", item.ID, item.Subject, item.ReplyTo)
			}
			fmt.Println("all submissions captured")
			return
		}
		if time.Now().After(deadline) {
			fail("sink holds %d new messages, want %d", after.Total-before.Total, count)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func listSink(ctx context.Context, baseURL string) sinkPage {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/sink/messages?limit=20", nil)
	if err != nil {
		fail("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail("list sink: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fail("list sink: status %d (is SINK_ENABLED=true?)", resp.StatusCode)
	}
	var page sinkPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		fail("decode sink listing: %v", err)
	}
	return page
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
