// Command shadow_compare replays a list of requests against the Go server and a
// legacy DocShare backend and reports where their answers diverge. Success bodies
// are compared after unwrapping the response envelope; errors are compared by
// normalised kind since the two servers use different error payloads.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/docshare-api/pkg/client"
	"github.com/noah-isme/docshare-api/pkg/logger"
)

type target struct {
	Name     string   `json:"name"`
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	Auth     bool     `json:"auth"`
	Critical bool     `json:"critical"`
	Ignore   []string `json:"ignore"`
}

type targetFile struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target        target
	GoStatus      int
	LegacyStatus  int
	GoKind        client.ErrorKind
	LegacyKind    client.ErrorKind
	StatusMatch   bool
	BodyMatch     bool
	Err           error
	GoLatency     time.Duration
	LegacyLatency time.Duration
}

func (c comparison) diverged() bool {
	return c.Err != nil || !c.StatusMatch || !c.BodyMatch
}

type side struct {
	base  string
	token string
}

func main() {
	var (
		goBase      string
		legacyBase  string
		goToken     string
		legacyToken string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8000/api", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:8001/api", "Legacy API base URL")
	flag.StringVar(&goToken, "go-token", os.Getenv("SHADOW_GO_TOKEN"), "Bearer token for authenticated targets on the Go API")
	flag.StringVar(&legacyToken, "legacy-token", os.Getenv("SHADOW_LEGACY_TOKEN"), "Bearer token for authenticated targets on the legacy API")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	log, err := logger.NewCLI("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatal("failed to load targets", zap.String("path", targetsPath), zap.Error(err))
	}

	httpClient := &http.Client{Timeout: timeout}
	goSide := side{base: goBase, token: goToken}
	legacySide := side{base: legacyBase, token: legacyToken}

	var results []comparison
	breaking, optional := 0, 0
	for _, tgt := range targets {
		res := compareTarget(httpClient, goSide, legacySide, tgt)
		if res.diverged() {
			if tgt.Critical {
				breaking++
			} else {
				optional++
			}
			log.Warn("target diverged", zap.String("target", tgt.label()), zap.Error(res.Err))
		}
		results = append(results, res)
	}

	printReport(os.Stdout, results)
	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func (t target) label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Method + " " + t.Path
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return file.Targets, nil
}

type reply struct {
	status  int
	body    []byte
	latency time.Duration
}

func compareTarget(httpClient *http.Client, goSide, legacySide side, tgt target) comparison {
	res := comparison{Target: tgt}

	goReply, err := fetch(httpClient, goSide, tgt)
	if err != nil {
		res.Err = fmt.Errorf("go request failed: %w", err)
		return res
	}
	legacyReply, err := fetch(httpClient, legacySide, tgt)
	if err != nil {
		res.Err = fmt.Errorf("legacy request failed: %w", err)
		return res
	}

	res.GoStatus, res.LegacyStatus = goReply.status, legacyReply.status
	res.GoLatency, res.LegacyLatency = goReply.latency, legacyReply.latency
	res.StatusMatch = goReply.status == legacyReply.status

	goOK, legacyOK := success(goReply.status), success(legacyReply.status)
	switch {
	case goOK && legacyOK:
		res.BodyMatch = payloadsEqual(client.Payload(goReply.body), client.Payload(legacyReply.body), tgt.Ignore)
	case !goOK && !legacyOK:
		res.GoKind = client.ErrorFromResponse(goReply.status, goReply.body).Kind
		res.LegacyKind = client.ErrorFromResponse(legacyReply.status, legacyReply.body).Kind
		res.BodyMatch = res.GoKind == res.LegacyKind
	}
	return res
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func fetch(httpClient *http.Client, s side, tgt target) (reply, error) {
	if httpClient == nil {
		return reply{}, errors.New("nil client")
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(s.base, "/")+path, nil)
	if err != nil {
		return reply{}, err
	}
	req.Header.Set("Accept", "application/json")
	if tgt.Auth && s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return reply{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply{}, fmt.Errorf("read body: %w", err)
	}
	return reply{status: resp.StatusCode, body: body, latency: time.Since(start)}, nil
}

// payloadsEqual compares two JSON payloads with the ignored keys removed at every depth.
func payloadsEqual(a, b []byte, ignore []string) bool {
	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		return strings.TrimSpace(string(a)) == strings.TrimSpace(string(b))
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	skip := make(map[string]struct{}, len(ignore))
	for _, key := range ignore {
		skip[key] = struct{}{}
	}
	return reflect.DeepEqual(normalize(av, skip), normalize(bv, skip))
}

func normalize(v interface{}, skip map[string]struct{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if _, ok := skip[k]; ok {
				continue
			}
			out[k] = normalize(inner, skip)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = normalize(inner, skip)
		}
		return out
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return val
	}
}

func printReport(w io.Writer, results []comparison) {
	fmt.Fprintln(w, "Shadow Compare Report")
	fmt.Fprintln(w, "=====================")
	for _, res := range results {
		status := "OK"
		if res.Err != nil {
			status = "ERROR"
		} else if res.diverged() {
			status = "DIFF"
		}
		fmt.Fprintf(w, "[%s] %s\n", status, res.Target.label())
		fmt.Fprintf(w, "  Go:     %d %s (%s)\n", res.GoStatus, res.GoKind, res.GoLatency)
		fmt.Fprintf(w, "  Legacy: %d %s (%s)\n", res.LegacyStatus, res.LegacyKind, res.LegacyLatency)
		if res.Err != nil {
			fmt.Fprintf(w, "  Error: %v\n", res.Err)
			continue
		}
		fmt.Fprintf(w, "  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
	}
}
