package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/claimpilot/claimpilot/internal/domain/orchestration"
	"github.com/claimpilot/claimpilot/internal/domain/tool"
	"github.com/claimpilot/claimpilot/internal/port/cache"
	"github.com/claimpilot/claimpilot/internal/resilience"
)

// cacheableTools lists tools whose output for identical arguments is
// stable within a cache TTL. User contract lookups dominate repeat
// traffic when several claims from one claimant process close together.
var cacheableTools = map[string]bool{
	"retrieve_user_info": true,
}

// Executor dispatches tool calls to their HTTP endpoints and normalizes
// results. Endpoint failures never surface as Go errors; they come back
// inside the ToolResult so the loop can feed them to the model.
type Executor struct {
	registry *tool.Registry
	client   *http.Client
	log      *slog.Logger
	cache    cache.Cache
	cacheTTL time.Duration

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker

	breakerMaxFailures int
	breakerTimeout     time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCache enables result caching for cacheable tools.
func WithCache(c cache.Cache, ttl time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithHTTPClient overrides the HTTP client used for tool calls.
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = c }
}

// NewExecutor creates an Executor over the given registry. Each distinct
// endpoint gets its own circuit breaker.
func NewExecutor(reg *tool.Registry, log *slog.Logger, breakerMaxFailures int, breakerTimeout time.Duration, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:           reg,
		client:             &http.Client{},
		log:                log,
		breakers:           make(map[string]*resilience.Breaker),
		breakerMaxFailures: breakerMaxFailures,
		breakerTimeout:     breakerTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one tool call and returns its normalized result. The
// terminal decision tool must not reach the executor; the loop handles
// it before dispatch.
func (e *Executor) Execute(ctx context.Context, call orchestration.ToolCall) orchestration.ToolResult {
	start := time.Now()
	res := orchestration.ToolResult{CallID: call.ID, Tool: call.Name}

	def, err := e.registry.Get(call.Name)
	if err != nil {
		res.Err = err.Error()
		res.Duration = time.Since(start)
		return res
	}
	if def.Terminal {
		res.Err = fmt.Sprintf("tool %s is not dispatchable", call.Name)
		res.Duration = time.Since(start)
		return res
	}

	cacheKey := ""
	if e.cache != nil && cacheableTools[call.Name] {
		cacheKey = "tool:" + call.Name + ":" + string(call.Arguments)
		if cached, ok, cerr := e.cache.Get(ctx, cacheKey); cerr == nil && ok {
			res.Output = cached
			res.Duration = time.Since(start)
			e.log.Debug("tool cache hit", "tool", call.Name)
			return res
		}
	}

	out, err := e.dispatch(ctx, def, call.Arguments)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err.Error()
		e.log.Warn("tool call failed",
			"tool", call.Name,
			"duration_ms", res.Duration.Milliseconds(),
			"error", err)
		return res
	}

	res.Output = out
	if cacheKey != "" {
		if cerr := e.cache.Set(ctx, cacheKey, out, e.cacheTTL); cerr != nil {
			e.log.Debug("tool cache set failed", "tool", call.Name, "error", cerr)
		}
	}
	e.log.Debug("tool call completed",
		"tool", call.Name,
		"duration_ms", res.Duration.Milliseconds())
	return res
}

// dispatch performs the HTTP POST behind the endpoint's circuit breaker.
func (e *Executor) dispatch(ctx context.Context, def tool.Definition, args json.RawMessage) (json.RawMessage, error) {
	if def.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	var out json.RawMessage
	err := e.breakerFor(def.Endpoint).Execute(func() error {
		body := args
		if len(body) == 0 {
			body = json.RawMessage(`{}`)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, def.Endpoint+def.Path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("call %s: %w", def.Name, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return fmt.Errorf("read %s response: %w", def.Name, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%s returned status %d: %s", def.Name, resp.StatusCode, truncate(string(data), 200))
		}

		out = data
		return nil
	})
	return out, err
}

// breakerFor returns the circuit breaker for an endpoint, creating it on
// first use.
func (e *Executor) breakerFor(endpoint string) *resilience.Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.breakers[endpoint]
	if !ok {
		b = resilience.NewBreaker(e.breakerMaxFailures, e.breakerTimeout)
		e.breakers[endpoint] = b
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
