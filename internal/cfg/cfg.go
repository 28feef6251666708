// Package cfg binds server configuration to flags, environment variables and
// an optional .env file. Precedence: cli flag > env var > .env > default.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/keithlinneman/linnemanlabs-folio/internal/auth"
	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/secrets"
)

// EnvPrefix is prepended to upper-cased flag names: -jwt-secret reads FOLIO_JWT_SECRET.
const EnvPrefix = "FOLIO_"

type App struct {
	// logging
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	// listeners
	HTTPPort       int
	AdminPort      int
	TrustedHops    int
	TrustedProxies string
	CORSOrigins    string
	EnableHSTS     bool
	RateLimitRPS   float64
	RateLimitBurst int

	// storage
	DataDir       string
	StaticDataDir string
	UploadsDir    string
	AdminUIDir    string

	// auth
	JWTSecret      string
	AdminHash      string
	ViewerHash     string
	SessionTTL     time.Duration
	SessionIssuer  string
	LoginDelay     time.Duration
	GuardThreshold int
	GuardWindow    time.Duration
	LoginRateRPS   float64
	LoginRateBurst int
	RedisAddr      string
	RedisPassword  string

	// uploads
	MaxUploadBytes   int64
	TranscodeImages  bool
	TranscodeWidth   int
	TranscodeQuality int

	// publish
	RepoDir        string
	GitRemote      string
	GitBranch      string
	GitTimeout     time.Duration
	GitAuthorName  string
	GitAuthorEmail string
	S3Bucket       string
	S3Prefix       string
	KMSKeyID       string
	AWSRegion      string

	// ops
	EnablePprof     bool
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error chain links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 3000, "API listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen TCP port for metrics, health and pprof (1..65535)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "reverse proxies in front of the server whose X-Forwarded-For is trusted")
	fs.StringVar(&c.TrustedProxies, "trusted-proxies", "", "comma-separated CIDRs allowed to set X-Forwarded-For (default: private ranges)")
	fs.StringVar(&c.CORSOrigins, "cors-origins", "", "comma-separated origins allowed to call the API from a browser")
	fs.BoolVar(&c.EnableHSTS, "enable-hsts", false, "send Strict-Transport-Security (only behind TLS)")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-IP request refill rate")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 60, "per-IP request burst")

	fs.StringVar(&c.DataDir, "data-dir", "data", "working directory for <category>.json documents")
	fs.StringVar(&c.StaticDataDir, "static-data-dir", "../static-site/data", "static site data directory that publish copies into")
	fs.StringVar(&c.UploadsDir, "uploads-dir", "uploads", "directory for uploaded files, served at /uploads/")
	fs.StringVar(&c.AdminUIDir, "admin-ui-dir", "", "optional directory served at /admin/")

	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HS256 signing secret, at least 32 bytes (or ssm:/path)")
	fs.StringVar(&c.AdminHash, "admin-password-hash", "", "bcrypt hash of the admin password (or ssm:/path)")
	fs.StringVar(&c.ViewerHash, "viewer-password-hash", "", "optional bcrypt hash for the read-only viewer role (or ssm:/path)")
	fs.DurationVar(&c.SessionTTL, "session-ttl", auth.DefaultSessionTTL, "session token lifetime")
	fs.StringVar(&c.SessionIssuer, "session-issuer", auth.DefaultIssuer, "iss claim written into and required of session tokens")
	fs.DurationVar(&c.LoginDelay, "login-delay", time.Second, "minimum login response time")
	fs.IntVar(&c.GuardThreshold, "guard-threshold", 10, "failed logins before an address is locked out")
	fs.DurationVar(&c.GuardWindow, "guard-window", 30*time.Minute, "lockout window")
	fs.Float64Var(&c.LoginRateRPS, "login-rate-rps", 0.2, "per-IP login refill rate")
	fs.IntVar(&c.LoginRateBurst, "login-rate-burst", 0, "per-IP login burst, above guard-threshold (default: guard-threshold+1)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis host:port for the failed-login store (default: in-memory)")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis password (or ssm:/path)")

	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", 5<<20, "maximum upload size in bytes")
	fs.BoolVar(&c.TranscodeImages, "transcode-images", true, "re-encode uploaded JPEG/PNG images as compressed JPEG")
	fs.IntVar(&c.TranscodeWidth, "transcode-max-width", 1920, "downscale transcoded images wider than this")
	fs.IntVar(&c.TranscodeQuality, "transcode-quality", 82, "JPEG quality for transcoded images (1..100)")

	fs.StringVar(&c.RepoDir, "repo-dir", "..", "git working tree containing the static data directory")
	fs.StringVar(&c.GitRemote, "git-remote", "origin", "git remote to push to")
	fs.StringVar(&c.GitBranch, "git-branch", "", "git branch to push (default: upstream of the current branch)")
	fs.DurationVar(&c.GitTimeout, "git-timeout", 60*time.Second, "timeout per git command")
	fs.StringVar(&c.GitAuthorName, "git-author-name", "", "commit author name (default: git config)")
	fs.StringVar(&c.GitAuthorEmail, "git-author-email", "", "commit author email (default: git config)")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "optional bucket that publish mirrors documents into")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "data", "key prefix inside s3-bucket")
	fs.StringVar(&c.KMSKeyID, "kms-key-id", "", "optional KMS key id/ARN used to sign the publish manifest")
	fs.StringVar(&c.AWSRegion, "aws-region", "", "AWS region (default: SDK resolution)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value overrides env %s", f.Name, key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				// value omitted, it may be a secret
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// SplitList splits a comma-separated flag value, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParsePrefixes parses TrustedProxies into CIDR prefixes.
func (c App) ParsePrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range SplitList(c.TrustedProxies) {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", s, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// Secrets returns pointers to the fields that may hold ssm: references.
func (c *App) Secrets() []*string {
	return []*string{&c.JWTSecret, &c.AdminHash, &c.ViewerHash, &c.RedisPassword}
}

// NeedsAWS reports whether any AWS client must be built.
// LoginBurst is the login limiter burst. It defaults to one more than the
// guard threshold so a guessing client is locked out by the guard before the
// limiter ever rejects it.
func (c App) LoginBurst() int {
	if c.LoginRateBurst > 0 {
		return c.LoginRateBurst
	}
	return c.GuardThreshold + 1
}

func (c App) NeedsAWS() bool {
	return c.S3Bucket != "" || c.KMSKeyID != "" ||
		secrets.NeedsClient(c.JWTSecret, c.AdminHash, c.ViewerHash, c.RedisPassword)
}

// Validate checks that config values are within expected ranges and formats.
// Secret values are checked only once resolved; a remaining ssm: reference is
// accepted here. Returns every problem joined, or nil.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be >= 0 (got %d)", c.TrustedHops))
	}
	if _, err := c.ParsePrefixes(); err != nil {
		errs = append(errs, err)
	}
	for _, o := range SplitList(c.CORSOrigins) {
		if o == "*" {
			continue
		}
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("CORS_ORIGINS entry must be an origin like https://host (got %q)", o))
		}
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be > 0 and RATE_LIMIT_BURST >= 1"))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("DATA_DIR is required"))
	}
	if c.StaticDataDir == "" {
		errs = append(errs, fmt.Errorf("STATIC_DATA_DIR is required"))
	}
	if c.UploadsDir == "" {
		errs = append(errs, fmt.Errorf("UPLOADS_DIR is required"))
	}
	if c.RepoDir == "" {
		errs = append(errs, fmt.Errorf("REPO_DIR is required"))
	}

	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	} else if !secrets.IsReference(c.JWTSecret) && len(c.JWTSecret) < auth.MinSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", auth.MinSecretLen))
	}
	if c.AdminHash == "" {
		errs = append(errs, fmt.Errorf("ADMIN_PASSWORD_HASH is required (generate one with hashpw)"))
	}
	if c.SessionTTL < time.Minute || c.SessionTTL > 7*24*time.Hour {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be between 1m and 168h (got %s)", c.SessionTTL))
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		errs = append(errs, fmt.Errorf("SESSION_ISSUER is required"))
	}
	if c.LoginDelay < 0 || c.LoginDelay > 10*time.Second {
		errs = append(errs, fmt.Errorf("LOGIN_DELAY must be 0..10s (got %s)", c.LoginDelay))
	}
	if c.GuardThreshold < 1 {
		errs = append(errs, fmt.Errorf("GUARD_THRESHOLD must be >= 1 (got %d)", c.GuardThreshold))
	}
	if c.GuardWindow <= 0 {
		errs = append(errs, fmt.Errorf("GUARD_WINDOW must be positive (got %s)", c.GuardWindow))
	}
	if c.LoginRateRPS <= 0 {
		errs = append(errs, fmt.Errorf("LOGIN_RATE_RPS must be > 0 (got %g)", c.LoginRateRPS))
	}
	if c.LoginRateBurst != 0 && c.LoginRateBurst <= c.GuardThreshold {
		errs = append(errs, fmt.Errorf("LOGIN_RATE_BURST must exceed GUARD_THRESHOLD (got %d <= %d)", c.LoginRateBurst, c.GuardThreshold))
	}
	if c.RedisAddr != "" {
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
	}

	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive (got %d)", c.MaxUploadBytes))
	}
	if c.TranscodeImages {
		if c.TranscodeWidth < 16 {
			errs = append(errs, fmt.Errorf("TRANSCODE_MAX_WIDTH must be >= 16 (got %d)", c.TranscodeWidth))
		}
		if c.TranscodeQuality < 1 || c.TranscodeQuality > 100 {
			errs = append(errs, fmt.Errorf("TRANSCODE_QUALITY must be 1..100 (got %d)", c.TranscodeQuality))
		}
	}

	if c.GitRemote == "" {
		errs = append(errs, fmt.Errorf("GIT_REMOTE is required"))
	}
	if c.GitTimeout < time.Second {
		errs = append(errs, fmt.Errorf("GIT_TIMEOUT must be >= 1s (got %s)", c.GitTimeout))
	}
	if (c.GitAuthorName == "") != (c.GitAuthorEmail == "") {
		errs = append(errs, fmt.Errorf("GIT_AUTHOR_NAME and GIT_AUTHOR_EMAIL must be set together"))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
	}

	return errors.Join(errs...)
}
