package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

const (
	groqBaseURL       = "https://api.groq.com/openai/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"

	speechTemperature = 0.8
	actionTemperature = 0.5

	retryDelay       = time.Second
	retryDelayFactor = 1.5
)

var (
	errEmptyResponse   = errors.New("empty response")
	errInvalidResponse = errors.New("invalid XML response")
)

// modelFactory creates the client for one model name.
type modelFactory func(model string) (llms.Model, error)

// llmAgent answers for every seat through a langchaingo model. Seats that
// name their own model get a dedicated client.
type llmAgent struct {
	provider     string
	defaultModel string
	newModel     modelFactory

	mu     sync.Mutex
	models map[string]llms.Model

	// temperature overrides the per-task default when set
	temperature *float64
	callOpts    []llms.CallOption
	limiter     *rate.Limiter
	retries     int
	retryDelay  time.Duration
	timeout     time.Duration
}

func newLLMAgent(provider, defaultModel string, factory modelFactory, cfg AppConfig) *llmAgent {
	a := &llmAgent{
		provider:     provider,
		defaultModel: defaultModel,
		newModel:     factory,
		models:       make(map[string]llms.Model),
		callOpts:     buildCallOpts(cfg),
		limiter:      rate.NewLimiter(rate.Inf, 1),
		retries:      max(cfg.AgentRetries, 0),
		retryDelay:   retryDelay,
		timeout:      cfg.AgentTimeout,
	}
	if cfg.AgentRPS > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.AgentRPS), 1)
	}
	if cfg.AgentTemperature != "" {
		if f, err := strconv.ParseFloat(cfg.AgentTemperature, 64); err == nil {
			a.temperature = &f
			log.Printf("Agent: temperature=%.2f", f)
		} else {
			log.Printf("Agent: invalid temperature %q: %v", cfg.AgentTemperature, err)
		}
	}
	return a
}

// buildCallOpts builds the LLM call options shared by every request.
func buildCallOpts(cfg AppConfig) []llms.CallOption {
	var opts []llms.CallOption

	if cfg.AgentThinking != "" {
		mode := llms.ThinkingMode(cfg.AgentThinking)
		switch mode {
		case llms.ThinkingModeNone, llms.ThinkingModeLow, llms.ThinkingModeMedium, llms.ThinkingModeHigh, llms.ThinkingModeAuto:
			opts = append(opts, llms.WithThinkingMode(mode))
			log.Printf("Agent: thinking=%s", mode)
		default:
			log.Printf("Agent: invalid thinking %q (valid: none, low, medium, high, auto)", cfg.AgentThinking)
		}
	}

	return opts
}

func (a *llmAgent) model(name string) (llms.Model, error) {
	if name == "" {
		name = a.defaultModel
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.models[name]; ok {
		return m, nil
	}
	m, err := a.newModel(name)
	if err != nil {
		return nil, fmt.Errorf("init %s model %q: %w", a.provider, name, err)
	}
	a.models[name] = m
	return m, nil
}

func (a *llmAgent) GenerateUtterance(ctx context.Context, req DecisionRequest) (string, error) {
	system, human := discussionPrompt(req)

	var text string
	err := a.withRetry(ctx, func() error {
		raw, err := a.complete(ctx, req.Actor, system, human, speechTemperature)
		if err != nil {
			return err
		}
		text = parseSpeech(raw)
		if text == "" {
			return errEmptyResponse
		}
		return nil
	})
	if err != nil {
		return "", &GenerationError{PlayerID: req.Actor.ID, Reason: "utterance", Err: err}
	}
	return text, nil
}

func (a *llmAgent) GenerateAction(ctx context.Context, req DecisionRequest) (ActionDecision, error) {
	system, human := actionPrompt(req)

	var decision ActionDecision
	err := a.withRetry(ctx, func() error {
		raw, err := a.complete(ctx, req.Actor, system, human, actionTemperature)
		if err != nil {
			return err
		}
		d, ok := parseAction(raw)
		if !ok {
			return errInvalidResponse
		}
		decision = d
		return nil
	})
	if err != nil {
		return ActionDecision{}, &GenerationError{PlayerID: req.Actor.ID, Reason: "action", Err: err}
	}
	return decision, nil
}

// withRetry runs op up to retries+1 times, growing the delay by
// retryDelayFactor between attempts.
func (a *llmAgent) withRetry(ctx context.Context, op func() error) error {
	delay := a.retryDelay
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt >= a.retries {
			return err
		}
		DebugLog("llmAgent.withRetry", "Attempt %d failed, retrying in %s: %v", attempt+1, delay, err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
		delay = time.Duration(float64(delay) * retryDelayFactor)
	}
}

// complete sends one system/human exchange and returns the raw text of the
// first choice.
func (a *llmAgent) complete(ctx context.Context, actor Player, system, human string, temperature float64) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}
	model, err := a.model(actor.Model)
	if err != nil {
		return "", err
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if a.temperature != nil {
		temperature = *a.temperature
	}
	opts := append([]llms.CallOption{llms.WithTemperature(temperature)}, a.callOpts...)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, human),
	}
	resp, err := model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}

	choice := resp.Choices[0]
	if blockedStop(choice.StopReason) {
		return "", fmt.Errorf("completion stopped: %s", choice.StopReason)
	}
	if strings.TrimSpace(choice.Content) == "" {
		return "", errEmptyResponse
	}
	return choice.Content, nil
}

// blockedStop reports stop reasons that mean the provider withheld the answer.
func blockedStop(reason string) bool {
	r := strings.ToLower(reason)
	for _, s := range []string{"safety", "content_filter", "blocked", "recitation", "prohibited"} {
		if strings.Contains(r, s) {
			return true
		}
	}
	return false
}

// initAgent builds the Agent for the configured provider. Unknown or
// unusable providers fall back to the offline random agent.
func initAgent(cfg AppConfig, logger *AppLogger, seed int64) Agent {
	httpClient := &http.Client{Transport: http.DefaultTransport}
	if logger != nil && logger.logRequests {
		httpClient.Transport = &LoggingRoundTripper{Transport: http.DefaultTransport, Logger: logger}
	}

	factory, err := providerFactory(cfg, httpClient)
	if err != nil {
		log.Printf("Agent: %v, falling back to random agent", err)
		return newRandomAgent(seed)
	}
	if factory == nil {
		log.Printf("Agent: random (set agent_provider to use a model)")
		return newRandomAgent(seed)
	}

	a := newLLMAgent(cfg.AgentProvider, cfg.AgentModel, factory, cfg)
	if _, err := a.model(""); err != nil {
		log.Printf("Agent: %v, falling back to random agent", err)
		return newRandomAgent(seed)
	}
	log.Printf("Agent: %s model=%s retries=%d", cfg.AgentProvider, cfg.AgentModel, a.retries)
	return a
}

// providerFactory maps the configured provider to a model constructor.
// A nil factory with a nil error selects the random agent.
func providerFactory(cfg AppConfig, httpClient *http.Client) (modelFactory, error) {
	switch cfg.AgentProvider {
	case "", "random":
		return nil, nil
	case "ollama":
		return func(model string) (llms.Model, error) {
			return ollama.New(ollama.WithModel(model), ollama.WithServerURL(cfg.AgentOllamaURL), ollama.WithHTTPClient(httpClient))
		}, nil
	case "openai":
		return func(model string) (llms.Model, error) {
			return openai.New(openai.WithModel(model), openai.WithHTTPClient(httpClient))
		}, nil
	case "claude":
		return func(model string) (llms.Model, error) {
			return anthropic.New(anthropic.WithModel(model), anthropic.WithHTTPClient(httpClient))
		}, nil
	case "gemini":
		return func(model string) (llms.Model, error) {
			return googleai.New(context.Background(), googleai.WithDefaultModel(model), googleai.WithHTTPClient(httpClient))
		}, nil
	case "groq":
		return openAICompatible(groqBaseURL, cfg.GroqAPIKey, httpClient), nil
	case "openrouter":
		return openAICompatible(openRouterBaseURL, cfg.OpenRouterAPIKey, httpClient), nil
	case "openai-compatible":
		if cfg.AgentURL == "" {
			return nil, errors.New("agent_url is required for openai-compatible provider")
		}
		return openAICompatible(cfg.AgentURL, cfg.AgentAPIKey, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.AgentProvider)
	}
}

func openAICompatible(baseURL, apiKey string, httpClient *http.Client) modelFactory {
	return func(model string) (llms.Model, error) {
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithBaseURL(baseURL),
			openai.WithHTTPClient(httpClient),
		}
		if apiKey != "" {
			opts = append(opts, openai.WithToken(apiKey))
		}
		return openai.New(opts...)
	}
}
