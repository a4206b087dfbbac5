package httpserver

import (
	"net/http"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// RateLimitScope defines how rate limiting keys are derived.
type RateLimitScope string

const (
	// ScopeGlobal shares one bucket across all callers.
	ScopeGlobal RateLimitScope = "global"
	// ScopePerClient keys buckets by client IP.
	ScopePerClient RateLimitScope = "per_client"
	// ScopePerConversation keys buckets by the conversation id of the
	// request, falling back to the client IP.
	ScopePerConversation RateLimitScope = "per_conversation"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limiter is the rate limiter to use. If nil, one is created from
	// Rate and Burst.
	Limiter ratelimit.RateLimiter

	// Scope determines how keys are generated. Default is ScopePerClient.
	Scope RateLimitScope

	// Rate is the number of tokens added per second.
	Rate int

	// Burst is the bucket capacity. Defaults to Rate.
	Burst int

	// FailOpen admits requests when the limiter itself fails.
	FailOpen bool
}

// DefaultRateLimitConfig returns a per-client limit of 10 requests per
// second.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Scope: ScopePerClient,
		Rate:  10,
		Burst: 20,
	}
}

// ConversationHeader lets chat clients name their conversation for
// per-conversation limiting without the body being read first.
const ConversationHeader = "X-Conversation-ID"

// RateLimit returns middleware that rejects requests over the limit with
// 429. It uses fortify's token bucket limiter.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := cfg.Limiter
	if limiter == nil {
		rate := cfg.Rate
		if rate <= 0 {
			rate = DefaultRateLimitConfig().Rate
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = rate
		}
		limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    burst,
			FailOpen: cfg.FailOpen,
		})
	}

	scope := cfg.Scope
	if scope == "" {
		scope = ScopePerClient
	}

	return func(c *gin.Context) {
		key := rateLimitKey(scope, c)
		if !limiter.Allow(c.Request.Context(), key) {
			logging.Warn().
				Add(logging.Component("http")).
				Add(logging.Str("scope", string(scope))).
				Add(logging.Str("key", key)).
				Add(logging.Str("path", c.FullPath())).
				Msg("rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func rateLimitKey(scope RateLimitScope, c *gin.Context) string {
	switch scope {
	case ScopeGlobal:
		return "global"
	case ScopePerConversation:
		if id := c.Param("id"); id != "" {
			return "conversation:" + id
		}
		if id := c.GetHeader(ConversationHeader); id != "" {
			return "conversation:" + id
		}
		return "client:" + c.ClientIP()
	default:
		return "client:" + c.ClientIP()
	}
}
