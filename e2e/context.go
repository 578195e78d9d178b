// Package e2e drives a running fleetbook server through Cucumber scenarios.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// TestContext carries HTTP state across the steps of one scenario.
type TestContext struct {
	BaseURL string
	client  *http.Client

	lastStatus int
	lastBody   []byte

	// dayBase shifts every "day N" of a scenario to a date no other scenario
	// is likely to use, since the server keeps state between runs.
	dayBase    int
	remembered map[string]string
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
		dayBase:    365 + rand.IntN(20000),
		remembered: map[string]string{},
	}
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GET(path string) error { return tc.do(http.MethodGet, path, nil) }
func (tc *TestContext) POST(path string, body any) error { return tc.do(http.MethodPost, path, body) }
func (tc *TestContext) PUT(path string, body any) error { return tc.do(http.MethodPut, path, body) }
func (tc *TestContext) DELETE(path string, body any) error { return tc.do(http.MethodDelete, path, body) }

func (tc *TestContext) StatusCode() int { return tc.lastStatus }

// GetResponseField reads a top-level field of a JSON object response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var obj map[string]any
	if err := json.Unmarshal(tc.lastBody, &obj); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := obj[field]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", field, tc.lastBody)
	}
	return v, nil
}

// ResponseArrayLen returns the length of a JSON array response.
func (tc *TestContext) ResponseArrayLen() (int, error) {
	var arr []any
	if err := json.Unmarshal(tc.lastBody, &arr); err != nil {
		return 0, fmt.Errorf("response is not a JSON array: %s", tc.lastBody)
	}
	return len(arr), nil
}

// Day renders scenario day n as YYYY-MM-DD. Day 0 is well in the future.
func (tc *TestContext) Day(n int) string {
	return time.Now().UTC().AddDate(0, 0, tc.dayBase+n).Format(time.DateOnly)
}

func (tc *TestContext) Remember(name, value string) { tc.remembered[name] = value }

func (tc *TestContext) Recall(name string) (string, error) {
	v, ok := tc.remembered[name]
	if !ok {
		return "", fmt.Errorf("nothing remembered as %q", name)
	}
	return v, nil
}
