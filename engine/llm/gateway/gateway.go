package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/compozy/vachanamrut/engine/core"
	llmadapter "github.com/compozy/vachanamrut/engine/llm/adapter"
	"github.com/compozy/vachanamrut/pkg/config"
	"github.com/compozy/vachanamrut/pkg/logger"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultTemperature = 0.1
)

var errFirstFragmentTimeout = errors.New("timed out waiting for the first stream fragment")

// Request is a provider-independent chat completion request.
type Request struct {
	Messages []llmadapter.Message
	// Temperature overrides the gateway default when set.
	Temperature *float64
	JSONMode    bool
	// Provider is tried first; empty means the primary provider.
	Provider core.ProviderName
}

// UserPrompt builds the single-message request every pipeline stage sends.
func UserPrompt(prompt string, jsonMode bool) Request {
	return Request{
		Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: prompt}},
		JSONMode: jsonMode,
	}
}

// FragmentFunc receives streamed text fragments in arrival order.
type FragmentFunc func(ctx context.Context, fragment string) error

// ProviderSettings describes one upstream provider.
type ProviderSettings struct {
	Name    core.ProviderName
	Model   string
	BaseURL string
	Keys    []string
}

type provider struct {
	name    core.ProviderName
	model   string
	baseURL string
	keys    *KeyPool
}

// Gateway executes chat completions against the configured providers with
// key rotation inside a provider and fallback across providers.
type Gateway struct {
	primary     core.ProviderName
	secondary   core.ProviderName
	providers   map[core.ProviderName]*provider
	factory     llmadapter.Factory
	limiter     *llmadapter.RateLimiterRegistry
	recorder    Recorder
	timeout     time.Duration
	temperature float64

	mu      sync.Mutex
	clients map[string]llmadapter.LLMClient
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithFactory(f llmadapter.Factory) Option {
	return func(g *Gateway) {
		if f != nil {
			g.factory = f
		}
	}
}

func WithRateLimiter(r *llmadapter.RateLimiterRegistry) Option {
	return func(g *Gateway) {
		g.limiter = r
	}
}

func WithRecorder(r Recorder) Option {
	return func(g *Gateway) {
		if r != nil {
			g.recorder = r
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithTemperature(t float64) Option {
	return func(g *Gateway) {
		g.temperature = t
	}
}

// New builds a gateway. secondary may be empty when only one provider is used.
func New(primary, secondary core.ProviderName, settings []ProviderSettings, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		primary:     primary,
		secondary:   secondary,
		providers:   make(map[core.ProviderName]*provider, len(settings)),
		factory:     llmadapter.NewDefaultFactory(),
		recorder:    NopRecorder(),
		timeout:     DefaultTimeout,
		temperature: DefaultTemperature,
		clients:     make(map[string]llmadapter.LLMClient),
	}
	for _, s := range settings {
		g.providers[s.Name] = &provider{
			name:    s.Name,
			model:   s.Model,
			baseURL: s.BaseURL,
			keys:    NewKeyPool(s.Keys),
		}
	}
	if _, ok := g.providers[primary]; !ok {
		return nil, fmt.Errorf("primary provider %q is not configured", primary)
	}
	if secondary != "" {
		if secondary == primary {
			return nil, fmt.Errorf("secondary provider must differ from primary %q", primary)
		}
		if _, ok := g.providers[secondary]; !ok {
			return nil, fmt.Errorf("secondary provider %q is not configured", secondary)
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// NewFromConfig builds a gateway from the llm configuration section.
func NewFromConfig(cfg *config.LLMConfig, opts ...Option) (*Gateway, error) {
	primary, err := core.ParseProviderName(cfg.Primary)
	if err != nil {
		return nil, err
	}
	var secondary core.ProviderName
	if cfg.Secondary != "" {
		if secondary, err = core.ParseProviderName(cfg.Secondary); err != nil {
			return nil, err
		}
	}
	settings := []ProviderSettings{
		{
			Name:    core.ProviderGroq,
			Model:   cfg.Groq.Model,
			BaseURL: cfg.Groq.BaseURL,
			Keys:    config.SecretValues(cfg.Groq.APIKeys),
		},
		{
			Name:  core.ProviderGoogle,
			Model: cfg.Google.Model,
			Keys:  config.SecretValues(cfg.Google.APIKeys),
		},
	}
	base := []Option{
		WithTimeout(cfg.Timeout),
		WithTemperature(cfg.Temperature),
		WithRateLimiter(llmadapter.NewRateLimiterRegistry(cfg.RateLimit)),
	}
	return New(primary, secondary, settings, append(base, opts...)...)
}

// Primary returns the default provider.
func (g *Gateway) Primary() core.ProviderName {
	return g.primary
}

// Secondary returns the fallback provider, if any.
func (g *Gateway) Secondary() core.ProviderName {
	return g.secondary
}

// KeyCount returns how many keys a provider has.
func (g *Gateway) KeyCount(name core.ProviderName) int {
	if p, ok := g.providers[name]; ok {
		return p.keys.Len()
	}
	return 0
}

// Order returns the providers tried for a request preferring the given one:
// the preferred provider first, then the other configured provider once.
func (g *Gateway) Order(preferred core.ProviderName) []core.ProviderName {
	if preferred == "" || (preferred != g.primary && preferred != g.secondary) {
		preferred = g.primary
	}
	order := []core.ProviderName{preferred}
	switch {
	case preferred == g.primary && g.secondary != "":
		order = append(order, g.secondary)
	case preferred == g.secondary:
		order = append(order, g.primary)
	}
	return order
}

// Generate returns the complete text of a completion.
func (g *Gateway) Generate(ctx context.Context, req Request) (string, error) {
	var text string
	err := g.run(ctx, req, func(ctx context.Context, p *provider, llmReq *llmadapter.LLMRequest) (bool, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		client, err := g.client(callCtx, p)
		if err != nil {
			return false, err
		}
		resp, err := client.GenerateContent(callCtx, llmReq)
		if err != nil {
			return false, err
		}
		text = resp.Content
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// Stream delivers completion fragments to onFragment in arrival order.
// Fallback to the next provider only happens before the first fragment is
// delivered; later failures are returned as is. The timeout bounds the wait
// for the first fragment.
func (g *Gateway) Stream(ctx context.Context, req Request, onFragment FragmentFunc) error {
	var consumerErr error
	return g.run(ctx, req, func(ctx context.Context, p *provider, llmReq *llmadapter.LLMRequest) (bool, error) {
		callCtx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		timer := time.AfterFunc(g.timeout, func() { cancel(errFirstFragmentTimeout) })
		defer timer.Stop()
		client, err := g.client(callCtx, p)
		if err != nil {
			return false, err
		}
		started := false
		_, err = client.StreamContent(callCtx, llmReq, func(ctx context.Context, chunk []byte) error {
			if !started {
				started = true
				timer.Stop()
			}
			if cerr := onFragment(ctx, string(chunk)); cerr != nil {
				consumerErr = cerr
				return cerr
			}
			return nil
		})
		if err == nil {
			return started, nil
		}
		if consumerErr != nil {
			return true, consumerErr
		}
		if cause := context.Cause(callCtx); errors.Is(cause, errFirstFragmentTimeout) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
		return started, err
	})
}

type callFunc func(ctx context.Context, p *provider, req *llmadapter.LLMRequest) (committed bool, err error)

// run walks the fallback order. A call that reports committed output is never
// retried on another provider.
func (g *Gateway) run(ctx context.Context, req Request, call callFunc) error {
	log := logger.FromContext(ctx)
	llmReq := g.buildRequest(req)
	order := g.Order(req.Provider)
	attempts := make([]Attempt, 0, len(order))
	for i, name := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			g.recorder.RecordFallback(ctx, order[i-1], name)
			log.Info("Switching LLM provider", "from", order[i-1], "to", name)
		}
		p := g.providers[name]
		if p.keys.Len() == 0 {
			g.recorder.RecordProviderCall(ctx, name, OutcomeSkipped, 0)
			attempts = append(attempts, Attempt{Provider: name, Err: ErrNoCredentials})
			continue
		}
		start := time.Now()
		committed, err := g.invoke(ctx, p, llmReq, call)
		if err == nil {
			g.recorder.RecordProviderCall(ctx, name, OutcomeSuccess, time.Since(start))
			return nil
		}
		g.recorder.RecordProviderCall(ctx, name, OutcomeError, time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if committed {
			return err
		}
		log.Warn("LLM provider failed", "provider", name, "model", p.model, "error", core.RedactError(err))
		attempts = append(attempts, Attempt{Provider: name, Err: err})
	}
	g.recorder.RecordExhausted(ctx)
	failed := &AllProvidersFailedError{Attempts: attempts}
	log.Error("All LLM providers failed", "error", failed.Error())
	return failed
}

func (g *Gateway) invoke(ctx context.Context, p *provider, req *llmadapter.LLMRequest, call callFunc) (bool, error) {
	if err := g.limiter.Acquire(ctx, p.name); err != nil {
		return false, err
	}
	defer g.limiter.Release(p.name)
	return call(ctx, p, req)
}

func (g *Gateway) buildRequest(req Request) *llmadapter.LLMRequest {
	temperature := g.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	return &llmadapter.LLMRequest{
		Messages: req.Messages,
		Options: llmadapter.CallOptions{
			Temperature: temperature,
			UseJSONMode: req.JSONMode,
		},
	}
}

// client returns a cached client for a randomly chosen key.
func (g *Gateway) client(ctx context.Context, p *provider) (llmadapter.LLMClient, error) {
	key, ok := p.keys.Pick()
	if !ok {
		return nil, ErrNoCredentials
	}
	cacheKey := string(p.name) + "\x00" + key
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[cacheKey]; ok {
		return c, nil
	}
	cfg := core.NewProviderConfig(p.name, p.model, key)
	cfg.APIURL = p.baseURL
	c, err := g.factory.CreateClient(context.WithoutCancel(ctx), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", p.name, err)
	}
	g.clients[cacheKey] = c
	return c, nil
}

// Close releases every cached provider client.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []string
	for k, c := range g.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		delete(g.clients, k)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close LLM clients: %s", strings.Join(errs, "; "))
	}
	return nil
}
