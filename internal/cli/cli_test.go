package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"option-analyzer/internal/analysis/chain"
	"option-analyzer/internal/config"
	"option-analyzer/internal/models"
)

const chainJSON = `{
  "symbol": "aapl",
  "price": 100,
  "expirationDate": "Dec 20, 2024",
  "strikes": [
    {"strike": 95, "lastPrice": 1.5, "volume": 100, "openInterest": 1000, "impliedVolatility": 25, "type": "put"},
    {"strike": 100, "lastPrice": 3.2, "volume": 400, "openInterest": 2500, "impliedVolatility": 22, "type": "call"},
    {"strike": 100, "lastPrice": 2.9, "volume": 300, "openInterest": 1800, "impliedVolatility": 23, "type": "put"}
  ]
}`

type stubCompleter struct {
	response string
	prompts  []string
}

func (s *stubCompleter) CompleteWithTool(_ context.Context, _, userPrompt string, _ openai.Tool) (string, error) {
	s.prompts = append(s.prompts, userPrompt)
	return s.response, nil
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	app := NewApp(zerolog.Nop())
	app.Config = &config.Config{
		AI:        config.AIConfig{Provider: "chatgpt", Timeout: time.Second},
		Store:     config.StoreConfig{Path: filepath.Join(dir, "cli.db")},
		Watchlist: config.WatchlistConfig{MaxItems: 50},
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func writeChain(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aapl.json")
	if err := os.WriteFile(path, []byte(chainJSON), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestChainStatsJSON(t *testing.T) {
	app := newTestApp(t)
	out, err := run(t, app, "chain", "stats", writeChain(t), "--json", "--now", "2024-12-01")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	var stats models.ChainStatistics
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	want := models.ChainStatistics{TotalVolume: 800, TotalOI: 5300, CallVolume: 400, PutVolume: 400, PCR: 1, DTE: 19}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestChainShowTable(t *testing.T) {
	app := newTestApp(t)
	out, err := run(t, app, "chain", "show", writeChain(t), "--now", "2024-12-01")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"AAPL  $100.00", "Dec 20, 2024 · 19 DTE", "STRIKE", "95.00", "4,300"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("colors should be disabled when not writing to a terminal")
	}

	out, err = run(t, app, "chain", "show", writeChain(t), "--json", "--min-volume", "500")
	if err != nil {
		t.Fatalf("show --min-volume: %v", err)
	}
	var strikes []models.StrikeAggregate
	if err := json.Unmarshal([]byte(out), &strikes); err != nil {
		t.Fatal(err)
	}
	if len(strikes) != 1 || strikes[0].Strike != 100 || strikes[0].Volume != 700 {
		t.Errorf("filtered strikes = %+v", strikes)
	}
}

func TestChainPayload(t *testing.T) {
	app := newTestApp(t)
	out, err := run(t, app, "chain", "payload", writeChain(t), "--now", "2024-12-01")
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	var payload models.AnalysisPayload
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.Symbol != "AAPL" || payload.DTE != 19 || payload.Summary.PutCallRatio != "1.00" {
		t.Errorf("payload = %+v", payload)
	}
	if len(payload.TopActivity) != 3 || payload.TopActivity[0].Volume != 400 {
		t.Errorf("top activity = %+v", payload.TopActivity)
	}
}

func TestInvalidNowFlag(t *testing.T) {
	app := newTestApp(t)
	if _, err := run(t, app, "chain", "stats", writeChain(t), "--now", "someday"); err == nil {
		t.Error("expected an error for an unparseable --now")
	}
}

func TestChainAISavesToWatchlist(t *testing.T) {
	app := newTestApp(t)
	stub := &stubCompleter{response: "```json\n" +
		`{"sentiment":"BEARISH","summary":"Put wall at 95","keyObservations":["PCR 1.00"],"tradingSuggestions":[],"supportResistance":{"support":95,"resistance":100,"reason":"OI"}}` +
		"\n```"}
	app.Completer = stub

	out, err := run(t, app, "chain", "ai", writeChain(t), "--save", "--json", "--prompt", "Where are the walls?")
	if err != nil {
		t.Fatalf("ai: %v", err)
	}
	var result struct {
		Analysis    models.OptionAnalysis `json:"analysis"`
		WatchlistID string                `json:"watchlistId"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if result.Analysis.Sentiment != models.Bearish || result.WatchlistID == "" {
		t.Errorf("result = %+v", result)
	}
	if len(stub.prompts) != 1 || !strings.HasPrefix(stub.prompts[0], "Where are the walls?\n\n{") {
		t.Errorf("prompt = %q", stub.prompts)
	}

	out, err = run(t, app, "watchlist", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var items []models.WatchlistItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != result.WatchlistID || items[0].Analysis == nil {
		t.Fatalf("watchlist = %+v", items)
	}

	if _, err := run(t, app, "watchlist", "rm", result.WatchlistID[:8]); err != nil {
		t.Fatalf("rm by prefix: %v", err)
	}
	out, _ = run(t, app, "watchlist", "list")
	if !strings.Contains(out, "Watchlist is empty") {
		t.Errorf("list after rm:\n%s", out)
	}
}

func TestWatchlistAddWithValuation(t *testing.T) {
	app := newTestApp(t)
	if _, err := run(t, app, "watchlist", "add", writeChain(t), "--valuation", "120"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := run(t, app, "watchlist", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"AAPL", "Dec 20, 2024", "$100.00", "$120.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, app, "watchlist", "clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := run(t, app, "watchlist", "rm", "missing"); err == nil {
		t.Error("removing an unknown id should fail")
	}
}

func TestCandidatesAdd(t *testing.T) {
	app := newTestApp(t)
	app.Engine = chain.NewEngineWithClock(chain.FixedClock(time.Date(2024, 12, 1, 12, 0, 0, 0, time.Local)))
	path := writeChain(t)

	out, err := run(t, app, "candidates", "add", path, "--strike", "95", "--type", "put", "--json")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var res struct {
		Added     bool             `json:"added"`
		Candidate models.Candidate `json:"candidate"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Added || res.Candidate.Strike != 95 || res.Candidate.Type != models.Put || res.Candidate.OptionPrice != 1.5 {
		t.Errorf("candidate = %+v", res)
	}

	out, err = run(t, app, "candidates", "add", path, "--strike", "95", "--type", "put")
	if err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	if !strings.Contains(out, "already pinned") {
		t.Errorf("duplicate output:\n%s", out)
	}

	if _, err := run(t, app, "candidates", "add", path, "--strike", "120"); err == nil {
		t.Error("pinning a strike missing from the chain should fail")
	}
	if _, err := run(t, app, "candidates", "add", path, "--strike", "95", "--type", "straddle"); err == nil {
		t.Error("an unknown side should fail")
	}

	out, err = run(t, app, "candidates", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var cands []models.Candidate
	if err := json.Unmarshal([]byte(out), &cands); err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Fatalf("candidates = %+v", cands)
	}
	if _, err := run(t, app, "candidates", "rm", cands[0].ID); err != nil {
		t.Fatalf("rm: %v", err)
	}
}

func TestVersion(t *testing.T) {
	app := newTestApp(t)
	out, err := run(t, app, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Option Analyzer v"+Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestConfigShowMasksKeys(t *testing.T) {
	app := newTestApp(t)
	key := "sk-" + strings.Repeat("q", 40)
	app.Config.Credentials.OpenAI.APIKey = key

	for _, args := range [][]string{{"config", "show"}, {"config", "show", "--json"}} {
		out, err := run(t, app, args...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		if strings.Contains(out, key) {
			t.Errorf("%v leaks the API key:\n%s", args, out)
		}
		if !strings.Contains(out, "(not set)") {
			t.Errorf("%v should mark missing keys:\n%s", args, out)
		}
	}

	if _, err := run(t, app, "config", "validate"); err == nil {
		t.Error("validate should reject the zero server port")
	}
}

func TestResolveID(t *testing.T) {
	ids := []string{"abc123", "abd456", "xyz789"}
	tests := []struct {
		prefix string
		want   string
	}{
		{"abc", "abc123"},
		{"xyz789", "xyz789"},
		{"ab", "ab"}, // ambiguous
		{"zzz", "zzz"},
	}
	for _, tc := range tests {
		if got := resolveID(tc.prefix, ids); got != tc.want {
			t.Errorf("resolveID(%q) = %q, want %q", tc.prefix, got, tc.want)
		}
	}
}

func TestTableAlignsColoredCells(t *testing.T) {
	var buf bytes.Buffer
	o := &Output{writer: &buf, colorEnabled: true}
	table := NewTable(o, "A", "B")
	table.AddRow(o.Green("x"), "1")
	table.AddRow("long", "2")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %q", lines)
	}
	if visibleWidth(lines[2]) != visibleWidth(lines[3]) {
		t.Errorf("rows not aligned: %q vs %q", lines[2], lines[3])
	}
}
