package config

import (
	"math"
	"strings"
	"time"
)

// HealConfig controls the heal pipeline and the job service that drives it.
type HealConfig struct {
	// VerifyCommand runs in the sandbox checkout after the patch is applied.
	VerifyCommand string `env:"VERIFY_CMD" envDefault:"npm test"`

	// RateRetries is how many times a rate-limited job is rescheduled before it fails.
	RateRetries int `env:"HEAL_RATE_RETRIES" envDefault:"2"`

	// RateRetryDelay is the wait before a rate-limited job runs again.
	RateRetryDelay time.Duration `env:"HEAL_RATE_RETRY_DELAY" envDefault:"25s"`

	// LogTailChars is how much of the failing run's log the pipeline keeps.
	LogTailChars int `env:"HEAL_LOG_TAIL_CHARS" envDefault:"80000"`

	// CloneTimeout and VerifyTimeout kill the child process when exceeded. Zero means no limit.
	CloneTimeout  time.Duration `env:"HEAL_CLONE_TIMEOUT"  envDefault:"0"`
	VerifyTimeout time.Duration `env:"HEAL_VERIFY_TIMEOUT" envDefault:"0"`

	// WorkDir is where sandbox checkouts are created. Empty means the OS temp dir.
	WorkDir string `env:"HEAL_WORK_DIR"`

	// ShutdownTimeout bounds how long shutdown waits for in-flight jobs.
	ShutdownTimeout time.Duration `env:"HEAL_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// AuthorName and AuthorEmail identify the bot on fix commits.
	AuthorName  string `env:"HEAL_GIT_AUTHOR_NAME"  envDefault:"selfheal-bot"`
	AuthorEmail string `env:"HEAL_GIT_AUTHOR_EMAIL" envDefault:"selfheal@bot.local"`
}

// Sanitize applies guardrails to heal configuration values.
func (h *HealConfig) Sanitize() {
	h.VerifyCommand = strings.TrimSpace(h.VerifyCommand)
	if h.VerifyCommand == "" {
		h.VerifyCommand = "npm test"
	}
	if h.RateRetries < 0 {
		h.RateRetries = 0
	}
	if h.RateRetryDelay < 0 {
		h.RateRetryDelay = 0
	}
	if h.LogTailChars < 1000 {
		h.LogTailChars = 1000
	}
	if h.CloneTimeout < 0 {
		h.CloneTimeout = 0
	}
	if h.VerifyTimeout < 0 {
		h.VerifyTimeout = 0
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 30 * time.Second
	}
	h.WorkDir = strings.TrimSpace(h.WorkDir)
}

// GitHubConfig supplies defaults for heal requests and the REST endpoint.
type GitHubConfig struct {
	// Owner, Repo, Base and Token fill in fields a request leaves empty.
	Owner string `env:"OWNER"`
	Repo  string `env:"REPO"`
	Base  string `env:"BASE"  envDefault:"main"`
	Token string `env:"TOKEN"`

	// APIURL is the REST root; override for GitHub Enterprise.
	APIURL string `env:"API_URL" envDefault:"https://api.github.com"`

	// CloneHost is the origin checkouts are cloned from.
	CloneHost string `env:"CLONE_HOST" envDefault:"https://github.com"`

	// MaxLogBytes caps the downloaded log archive.
	MaxLogBytes int64 `env:"MAX_LOG_BYTES" envDefault:"67108864"`
}

// Sanitize trims values and restores defaults for blank fields.
func (g *GitHubConfig) Sanitize() {
	g.Owner = strings.TrimSpace(g.Owner)
	g.Repo = strings.TrimSpace(g.Repo)
	g.Token = strings.TrimSpace(g.Token)
	if g.Base = strings.TrimSpace(g.Base); g.Base == "" {
		g.Base = "main"
	}
	if g.APIURL = strings.TrimRight(strings.TrimSpace(g.APIURL), "/"); g.APIURL == "" {
		g.APIURL = "https://api.github.com"
	}
	if g.CloneHost = strings.TrimRight(strings.TrimSpace(g.CloneHost), "/"); g.CloneHost == "" {
		g.CloneHost = "https://github.com"
	}
	if g.MaxLogBytes <= 0 {
		g.MaxLogBytes = 64 << 20
	}
}

// OpenAIConfig configures the rate-limited generation client.
type OpenAIConfig struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`

	// Model and Temperature are used when a request does not name its own.
	Model       string  `env:"MODEL"       envDefault:"gpt-4.1-mini"`
	Temperature float64 `env:"TEMPERATURE" envDefault:"0.2"`

	// MinDelay spaces admitted calls; MaxRetries bounds retries on 429 and 5xx.
	MinDelay   time.Duration `env:"MIN_DELAY"   envDefault:"25s"`
	MaxRetries int           `env:"MAX_RETRIES" envDefault:"4"`

	// NoTemperatureModels lists model prefixes that reject a temperature parameter.
	NoTemperatureModels []string `env:"NO_TEMPERATURE_MODELS" envDefault:"o1,o3,o4,gpt-5" envSeparator:","`
}

// Sanitize clamps numeric values into their valid ranges.
func (o *OpenAIConfig) Sanitize() {
	o.APIKey = strings.TrimSpace(o.APIKey)
	if o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/"); o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model = strings.TrimSpace(o.Model); o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	o.Temperature = ClampTemperature(o.Temperature)
	if o.MinDelay < 0 {
		o.MinDelay = 0
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
}

// DefaultTemperature is used when no valid sampling temperature is supplied.
const DefaultTemperature = 0.2

// ClampTemperature bounds t to [0, 1]. NaN becomes DefaultTemperature.
func ClampTemperature(t float64) float64 {
	switch {
	case math.IsNaN(t):
		return DefaultTemperature
	case t < 0:
		return 0
	case t > 1:
		return 1
	default:
		return t
	}
}
