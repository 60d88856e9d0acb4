package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is built once at
// process start and passed by reference into every component constructor;
// no component reads ambient environment state directly.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Filter    FilterConfig    `yaml:"filter" mapstructure:"filter"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Scan      ScanConfig      `yaml:"scan" mapstructure:"scan"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Expect    ExpectConfig    `yaml:"expect" mapstructure:"expect"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the product store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`     // sqlite DSN / file path
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RenderConfig holds rendering-service settings. An empty base URL disables
// the render backend and the scan agent falls back to direct HTTP fetches.
type RenderConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Key            string `yaml:"key" mapstructure:"key"`
	SessionMaxUses int    `yaml:"session_max_uses" mapstructure:"session_max_uses"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds semantic-extraction service settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// Circuit breaker guarding the service.
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// DiscoveryConfig configures the sitemap discovery phase.
type DiscoveryConfig struct {
	FetchTimeoutSecs int      `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	RequestsPerSec   float64  `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	UserAgent        string   `yaml:"user_agent" mapstructure:"user_agent"`
	DefaultSitemaps  []string `yaml:"default_sitemaps" mapstructure:"default_sitemaps"`
	MaxSitemaps      int      `yaml:"max_sitemaps" mapstructure:"max_sitemaps"`
}

// FilterConfig configures the product-URL filter predicate.
type FilterConfig struct {
	IncludeTokens  []string `yaml:"include_tokens" mapstructure:"include_tokens"`
	ExcludeTokens  []string `yaml:"exclude_tokens" mapstructure:"exclude_tokens"`
	RelaxedDomains []string `yaml:"relaxed_domains" mapstructure:"relaxed_domains"`
}

// ExtractConfig configures the field waterfall extractor.
type ExtractConfig struct {
	PriceMin           int                 `yaml:"price_min" mapstructure:"price_min"`
	PriceMax           int                 `yaml:"price_max" mapstructure:"price_max"`
	PriceSelectors     []string            `yaml:"price_selectors" mapstructure:"price_selectors"`
	SiteSelectors      map[string][]string `yaml:"site_selectors" mapstructure:"site_selectors"`
	StrategyOrder      []string            `yaml:"strategy_order" mapstructure:"strategy_order"`
	SiteStrategyOrder  map[string][]string `yaml:"site_strategy_order" mapstructure:"site_strategy_order"`
	BrandWhitelist     []string            `yaml:"brand_whitelist" mapstructure:"brand_whitelist"`
	HighlightRulesPath string              `yaml:"highlight_rules_path" mapstructure:"highlight_rules_path"`
}

// ScanConfig configures the per-page scan agent.
type ScanConfig struct {
	PageTimeoutSecs  int      `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	BlockBackoffSecs int      `yaml:"block_backoff_secs" mapstructure:"block_backoff_secs"`
	HumanDelayMinMs  int      `yaml:"human_delay_min_ms" mapstructure:"human_delay_min_ms"`
	HumanDelayMaxMs  int      `yaml:"human_delay_max_ms" mapstructure:"human_delay_max_ms"`
	DiagnosticsDir   string   `yaml:"diagnostics_dir" mapstructure:"diagnostics_dir"`
	FragileSources   []string `yaml:"fragile_sources" mapstructure:"fragile_sources"`
	SourceTag        string   `yaml:"source_tag" mapstructure:"source_tag"`
}

// BatchConfig configures the batch orchestrator.
type BatchConfig struct {
	Concurrency      int            `yaml:"concurrency" mapstructure:"concurrency"`
	TopBrands        int            `yaml:"top_brands" mapstructure:"top_brands"`
	URLsPerBrand     int            `yaml:"urls_per_brand" mapstructure:"urls_per_brand"`
	BrandURLCaps     map[string]int `yaml:"brand_url_caps" mapstructure:"brand_url_caps"`
	MaxRetries       int            `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs int            `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int            `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ExpectConfig holds per-brand yield expectations for the issue tracker.
type ExpectConfig struct {
	MinProducts        map[string]int `yaml:"min_products" mapstructure:"min_products"`
	DefaultMinProducts int            `yaml:"default_min_products" mapstructure:"default_min_products"`
	SuccessRate        float64        `yaml:"success_rate" mapstructure:"success_rate"`
	MaxZeroPriceRate   float64        `yaml:"max_zero_price_rate" mapstructure:"max_zero_price_rate"`
	MaxMissingImage    float64        `yaml:"max_missing_image_rate" mapstructure:"max_missing_image_rate"`
	MaxMissingHilights float64        `yaml:"max_missing_highlights_rate" mapstructure:"max_missing_highlights_rate"`
}

// OutputConfig names the run artifacts.
type OutputConfig struct {
	DataDir      string `yaml:"data_dir" mapstructure:"data_dir"`
	DomainsCSV   string `yaml:"domains_csv" mapstructure:"domains_csv"`
	ManifestPath string `yaml:"manifest_path" mapstructure:"manifest_path"`
	SnapshotCSV  string `yaml:"snapshot_csv" mapstructure:"snapshot_csv"`
	ErrorLog     string `yaml:"error_log" mapstructure:"error_log"`
	IssueDir     string `yaml:"issue_dir" mapstructure:"issue_dir"`
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RenderTimeout returns the render call timeout as a duration.
func (c RenderConfig) RenderTimeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SemanticTimeout returns the semantic-extraction call timeout.
func (c AnthropicConfig) SemanticTimeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// FetchTimeout returns the per-request sitemap fetch timeout.
func (c DiscoveryConfig) FetchTimeout() time.Duration {
	if c.FetchTimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// PageTimeout returns the hard per-page scan timeout.
func (c ScanConfig) PageTimeout() time.Duration {
	if c.PageTimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PageTimeoutSecs) * time.Second
}

// CapFor returns the URL quota for a brand, honoring per-brand overrides.
func (c BatchConfig) CapFor(brand string) int {
	if cap, ok := c.BrandURLCaps[brand]; ok && cap > 0 {
		return cap
	}
	if c.URLsPerBrand > 0 {
		return c.URLsPerBrand
	}
	return 30
}

// MinFor returns the expected product minimum for a brand.
func (c ExpectConfig) MinFor(brand string) int {
	if n, ok := c.MinProducts[brand]; ok {
		return n
	}
	return c.DefaultMinProducts
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/harvest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("render.session_max_uses", 20)
	v.SetDefault("render.timeout_secs", 30)

	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout_secs", 20)
	v.SetDefault("anthropic.circuit_failure_threshold", 5)
	v.SetDefault("anthropic.circuit_reset_secs", 60)

	v.SetDefault("discovery.fetch_timeout_secs", 10)
	v.SetDefault("discovery.requests_per_sec", 4.0)
	v.SetDefault("discovery.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("discovery.default_sitemaps", []string{
		"/sitemap.xml",
		"/sitemap_index.xml",
		"/sitemap_products_1.xml", // Shopify
		"/wp-sitemap.xml",         // WordPress 5.5+
	})
	v.SetDefault("discovery.max_sitemaps", 200)

	v.SetDefault("filter.include_tokens", []string{
		"/product/", "/products/", "/item/", "/goods/", "/merch/", "/shop/", "product.php",
	})
	v.SetDefault("filter.exclude_tokens", []string{
		"/blog", "/news", "/article", "/page", "/about", "/contact", "/faq", "/terms",
		"/collections/", "/category/", "/tag/", "/knowledge/", "/media/", "/policy/",
		"/account/", "/cart/", "/member/",
	})

	v.SetDefault("extract.price_min", 100)
	v.SetDefault("extract.price_max", 200000)
	v.SetDefault("extract.price_selectors", []string{
		".global-price", ".product-price", ".price-sale .price", ".price", ".money",
	})
	v.SetDefault("extract.strategy_order", []string{"dom", "jsonld", "meta", "state", "text"})
	v.SetDefault("extract.highlight_rules_path", "")

	v.SetDefault("scan.page_timeout_secs", 30)
	v.SetDefault("scan.block_backoff_secs", 10)
	v.SetDefault("scan.human_delay_min_ms", 2000)
	v.SetDefault("scan.human_delay_max_ms", 5000)
	v.SetDefault("scan.diagnostics_dir", "data/diagnostics")
	v.SetDefault("scan.source_tag", "d2c_hunter")

	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("batch.top_brands", 10)
	v.SetDefault("batch.urls_per_brand", 30)
	v.SetDefault("batch.max_retries", 3)
	v.SetDefault("batch.initial_backoff_ms", 2000)
	v.SetDefault("batch.max_backoff_ms", 8000)

	v.SetDefault("expect.default_min_products", 0)
	v.SetDefault("expect.success_rate", 0.6)
	v.SetDefault("expect.max_zero_price_rate", 0.2)
	v.SetDefault("expect.max_missing_image_rate", 0.3)
	v.SetDefault("expect.max_missing_highlights_rate", 0.5)

	v.SetDefault("output.data_dir", "data")
	v.SetDefault("output.domains_csv", "data/d2c_domains.csv")
	v.SetDefault("output.manifest_path", "data/target_product_urls.csv")
	v.SetDefault("output.snapshot_csv", "data/d2c_full_database.csv")
	v.SetDefault("output.error_log", "data/errors.log")
	v.SetDefault("output.issue_dir", "data/issue_tracker")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
