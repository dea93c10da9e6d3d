package configmgr

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"time"

	"github.com/AdguardTeam/WebStats/internal/filter"
	"github.com/AdguardTeam/WebStats/internal/whois"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
)

// Configuration Structures

// Config is the top-level on-disk configuration structure.
type Config struct {
	// Cache is the configuration of the WHOIS cache.
	Cache *CacheConfig `yaml:"cache"`

	// WHOIS is the configuration of the WHOIS lookups.
	WHOIS *WHOISConfig `yaml:"whois"`

	// Log is the configuration of the logging.
	Log *LogConfig `yaml:"log"`

	// LogDir is the directory containing the access log files.
	LogDir string `yaml:"log_dir"`

	// LogFilesDomain, if not empty, restricts the log files to those with
	// names containing it.
	LogFilesDomain string `yaml:"log_files_domain"`

	// OutputDir is the directory for the report files.
	OutputDir string `yaml:"output_dir"`

	// MetricsFile, if not empty, is the path of the file for the metrics of
	// the run in the Prometheus text format.
	MetricsFile string `yaml:"metrics_file"`

	// Domains, if not empty, restricts the records to those requesting these
	// domains or their subdomains.
	Domains []string `yaml:"domains"`

	// BotKeywords identify the networks of automated crawlers.
	BotKeywords []string `yaml:"bot_keywords"`

	// AcademicKeywords identify the networks of academic institutions.
	AcademicKeywords []string `yaml:"academic_keywords"`

	// ToplistLimit is the maximum number of items in each toplist.  Zero means
	// no limit.
	ToplistLimit int `yaml:"toplist_limit"`

	// OnlyAcademic, if true, restricts the reports to academic institutions.
	OnlyAcademic bool `yaml:"only_academic"`
}

// Default returns the default configuration.
func Default() (c *Config) {
	return &Config{
		Cache: &CacheConfig{
			Type: CacheTypeFile,
			File: DefaultCacheFile,
		},
		WHOIS: &WHOISConfig{
			Method:          whois.MethodWHOIS,
			DNSServer:       whois.DefaultDNSServer,
			RDAPURL:         whois.DefaultRDAPURL,
			Timeout:         timeutil.Duration(10 * time.Second),
			Retries:         5,
			RetryDelay:      timeutil.Duration(1 * time.Second),
			RateLimitDelay:  timeutil.Duration(1 * time.Minute),
			MaxRedirects:    5,
			MaxConnReadSize: 64 * datasize.KB,
			MaxInfoLen:      250,
		},
		Log: &LogConfig{
			MaxSize: 100,
			MaxAge:  3,
		},
		LogDir:           DefaultLogDir,
		OutputDir:        ".",
		BotKeywords:      filter.DefaultBotKeywords(),
		AcademicKeywords: filter.DefaultAcademicKeywords(),
	}
}

// Default values of the configuration.
const (
	DefaultLogDir    = "/var/log/nginx"
	DefaultCacheFile = "whois.gob"
)

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotEmpty("log_dir", c.LogDir),
		validate.NotEmpty("output_dir", c.OutputDir),
		validate.NotNegative("toplist_limit", c.ToplistLimit),
	}

	errs = append(errs, validateKeywords("bot_keywords", c.BotKeywords)...)
	errs = append(errs, validateKeywords("academic_keywords", c.AcademicKeywords)...)

	if c.OnlyAcademic && len(c.AcademicKeywords) == 0 {
		errs = append(errs, fmt.Errorf("academic_keywords: %w", errors.ErrEmptyValue))
	}

	for i, d := range c.Domains {
		err = netutil.ValidateDomainName(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("domains: at index %d: %w", i, err))
		}
	}

	// Keep this in the same order as the fields in the config.
	errs = validate.Append(errs, "cache", c.Cache)
	errs = validate.Append(errs, "whois", c.WHOIS)
	errs = validate.Append(errs, "log", c.Log)

	return errors.Join(errs...)
}

// validateKeywords returns the errors about the empty keywords in kw.
func validateKeywords(prop string, kw []string) (errs []error) {
	for i, k := range kw {
		err := validate.NotEmpty(fmt.Sprintf("%s: at index %d", prop, i), k)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// CacheType is the type of the storage of the WHOIS cache.
type CacheType string

// Valid cache types.
const (
	CacheTypeFile CacheType = "file"
	CacheTypeBolt CacheType = "bolt"
)

// CacheConfig is the on-disk configuration of the WHOIS cache.
type CacheConfig struct {
	// Type is the type of the storage.
	Type CacheType `yaml:"type"`

	// File is the path to the cache file.
	File string `yaml:"file"`

	// TTL is the time to live of resolved entries.  Zero means that the
	// entries never expire.
	TTL timeutil.Duration `yaml:"ttl"`

	// Size is the maximum number of resolved entries kept.  Zero means no
	// limit.
	Size int `yaml:"size"`
}

// type check
var _ validate.Interface = (*CacheConfig)(nil)

// Validate implements the [validate.Interface] interface for *CacheConfig.
func (c *CacheConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotEmpty("file", c.File),
		validate.NotNegative("ttl", time.Duration(c.TTL)),
		validate.NotNegative("size", c.Size),
	}

	switch c.Type {
	case CacheTypeFile, CacheTypeBolt:
		// Go on.
	default:
		errs = append(errs, fmt.Errorf("type: %w: %q", errors.ErrBadEnumValue, c.Type))
	}

	return errors.Join(errs...)
}

// WHOISConfig is the on-disk configuration of the WHOIS lookups.
type WHOISConfig struct {
	// Method is the protocol of the network record lookups.
	Method whois.Method `yaml:"method"`

	// DNSServer is the address of the DNS server used for the ASN lookups.
	DNSServer string `yaml:"dns_server"`

	// RDAPURL is the base URL of the RDAP lookups.
	RDAPURL string `yaml:"rdap_url"`

	// Timeout is the timeout of a single query.
	Timeout timeutil.Duration `yaml:"timeout"`

	// RetryDelay is the delay between the attempts of a lookup.
	RetryDelay timeutil.Duration `yaml:"retry_delay"`

	// RateLimitDelay is the delay after the server has reported a rate limit.
	RateLimitDelay timeutil.Duration `yaml:"rate_limit_delay"`

	// MaxConnReadSize is the maximum size of a WHOIS response.
	MaxConnReadSize datasize.ByteSize `yaml:"max_conn_read_size"`

	// Retries is the number of additional attempts of a failed lookup.
	Retries int `yaml:"retries"`

	// MaxRedirects is the maximum number of WHOIS referrals followed.
	MaxRedirects int `yaml:"max_redirects"`

	// MaxInfoLen is the maximum length of a single ownership field.
	MaxInfoLen int `yaml:"max_info_len"`
}

// type check
var _ validate.Interface = (*WHOISConfig)(nil)

// Validate implements the [validate.Interface] interface for *WHOISConfig.
func (c *WHOISConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNegative("retries", c.Retries),
		validate.NotNegative("retry_delay", time.Duration(c.RetryDelay)),
		validate.NotNegative("rate_limit_delay", time.Duration(c.RateLimitDelay)),
		validate.NotNegative("max_redirects", c.MaxRedirects),
		validate.NotNegative("max_info_len", c.MaxInfoLen),
	}

	if c.Timeout <= 0 {
		errs = append(errs, newErrNotPositive("timeout", c.Timeout))
	}

	if c.MaxConnReadSize == 0 {
		errs = append(errs, newErrNotPositive("max_conn_read_size", uint64(c.MaxConnReadSize)))
	}

	_, _, err = net.SplitHostPort(c.DNSServer)
	if err != nil {
		errs = append(errs, fmt.Errorf("dns_server: %w", err))
	}

	if !slices.Contains([]whois.Method{whois.MethodWHOIS, whois.MethodRDAP}, c.Method) {
		errs = append(errs, fmt.Errorf("method: %w: %q", errors.ErrBadEnumValue, c.Method))
	} else if c.Method == whois.MethodRDAP {
		errs = append(errs, validateRDAPURL(c.RDAPURL))
	}

	return errors.Join(errs...)
}

// validateRDAPURL returns an error if u isn't a valid absolute HTTP(S) URL.
func validateRDAPURL(u string) (err error) {
	defer func() { err = errors.Annotate(err, "rdap_url: %w") }()

	parsed, err := url.Parse(u)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	switch parsed.Scheme {
	case "http", "https":
		return validate.NotEmpty("host", parsed.Host)
	default:
		return fmt.Errorf("scheme: %w: %q", errors.ErrBadEnumValue, parsed.Scheme)
	}
}

// LogConfig is the on-disk configuration of the logging.
type LogConfig struct {
	// File is the path to the log file.  Empty means stderr.
	File string `yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes before it's
	// rotated.
	MaxSize int `yaml:"max_size"`

	// MaxBackups is the maximum number of rotated files kept.  Zero means all.
	MaxBackups int `yaml:"max_backups"`

	// MaxAge is the maximum number of days to keep the rotated files.
	MaxAge int `yaml:"max_age"`

	// Verbose, if true, enables debug logging.
	Verbose bool `yaml:"verbose"`

	// Compress, if true, compresses the rotated files.
	Compress bool `yaml:"compress"`

	// LocalTime, if true, uses the local time in the names of the rotated
	// files.
	LocalTime bool `yaml:"local_time"`
}

// type check
var _ validate.Interface = (*LogConfig)(nil)

// Validate implements the [validate.Interface] interface for *LogConfig.
func (c *LogConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.NotNegative("max_size", c.MaxSize),
		validate.NotNegative("max_backups", c.MaxBackups),
		validate.NotNegative("max_age", c.MaxAge),
	)
}
