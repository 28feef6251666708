package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/linnemanlabs-folio/internal/apihttp"
	"github.com/keithlinneman/linnemanlabs-folio/internal/auth"
	"github.com/keithlinneman/linnemanlabs-folio/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-folio/internal/content"
	"github.com/keithlinneman/linnemanlabs-folio/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-folio/internal/guard"
	"github.com/keithlinneman/linnemanlabs-folio/internal/health"
	"github.com/keithlinneman/linnemanlabs-folio/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-folio/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-folio/internal/publish"
	"github.com/keithlinneman/linnemanlabs-folio/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-folio/internal/secrets"
	"github.com/keithlinneman/linnemanlabs-folio/internal/static"
	"github.com/keithlinneman/linnemanlabs-folio/internal/upload"

	"github.com/keithlinneman/linnemanlabs-folio/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-folio/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-folio/internal/prof"
	v "github.com/keithlinneman/linnemanlabs-folio/internal/version"
)

const (
	appName   = "folio"
	component = "server"

	// time between failing readiness and closing listeners
	drainPeriod = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	var envFile string

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading FOLIO_* variables (missing is fine)")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	// real environment wins over the file; flags win over both
	if _, err := cfg.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		stackLvl = lvl
	}
	lg, err := log.New(log.Options{
		App:               appName,
		Component:         component,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application", append(vi.LogFields(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"data_dir", conf.DataDir,
		"static_data_dir", conf.StaticDataDir,
		"uploads_dir", conf.UploadsDir,
		"admin_ui_dir", conf.AdminUIDir,
		"repo_dir", conf.RepoDir,
		"git_remote", conf.GitRemote,
		"s3_bucket", conf.S3Bucket,
		"kms_key_id", conf.KMSKeyID,
		"redis_addr", conf.RedisAddr,
		"viewer_enabled", conf.ViewerHash != "",
		"session_ttl", conf.SessionTTL,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
	)...)

	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": component,
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, component, &vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// AWS is optional: only ssm: secrets, the S3 mirror and KMS signing need it
	var awsCfg aws.Config
	if conf.NeedsAWS() {
		var loadOpts []func(*config.LoadOptions) error
		if conf.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(conf.AWSRegion))
		}
		awsCfg, err = config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
	}

	if secrets.NeedsClient(conf.JWTSecret, conf.AdminHash, conf.ViewerHash, conf.RedisPassword) {
		resolver := secrets.NewResolver(ssm.NewFromConfig(awsCfg))
		if err := resolver.ResolveAll(ctx, conf.Secrets()...); err != nil {
			L.Error(ctx, err, "failed to resolve secrets from SSM")
			os.Exit(1)
		}
		// resolved values get the same checks as inline ones
		if err := cfg.Validate(conf); err != nil {
			L.Error(ctx, err, "invalid config after resolving secrets")
			os.Exit(1)
		}
		L.Info(ctx, "resolved secrets from SSM")
	}

	// content store
	store, err := content.NewFileStore(conf.DataDir, content.WithLogger(L))
	if err != nil {
		L.Error(ctx, err, "failed to open content store")
		os.Exit(1)
	}

	// sessions
	issuerOpts := []auth.IssuerOption{
		auth.WithSessionTTL(conf.SessionTTL),
		auth.WithIssuerName(conf.SessionIssuer),
	}
	if conf.ViewerHash != "" {
		issuerOpts = append(issuerOpts, auth.WithViewerHash(conf.ViewerHash))
	}
	issuer, err := auth.NewIssuer([]byte(conf.JWTSecret), conf.AdminHash, issuerOpts...)
	if err != nil {
		L.Error(ctx, err, "failed to create session issuer")
		os.Exit(1)
	}
	validator := auth.NewValidator([]byte(conf.JWTSecret), auth.WithExpectedIssuer(conf.SessionIssuer))

	// failed-login guard, in-memory unless redis is configured
	var (
		failures   guard.FailureStore
		redisStore *guard.RedisStore
	)
	if conf.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
		})
		defer func() { _ = rdb.Close() }()
		redisStore = guard.NewRedisStore(rdb, guard.DefaultRedisPrefix)
		if err := redisStore.Ping(ctx); err != nil {
			// readiness stays red until redis answers
			L.Warn(ctx, "redis not reachable at startup", "redis_addr", conf.RedisAddr, "error", err)
		}
		failures = redisStore
	} else {
		failures = guard.NewMemoryStore(ctx)
	}
	loginGuard := guard.New(failures,
		guard.WithThreshold(conf.GuardThreshold),
		guard.WithWindow(conf.GuardWindow),
		guard.WithOnLocked(func(addr string, rec guard.Record) {
			m.IncLockout()
			L.Warn(ctx, "client address locked out", "client.address", addr, "failures", rec.Count)
		}),
	)

	// uploads
	uploadOpts := []upload.Option{
		upload.WithMaxBytes(conf.MaxUploadBytes),
		upload.WithLogger(L),
		upload.WithOnTranscode(m.IncTranscode),
	}
	if conf.TranscodeImages {
		uploadOpts = append(uploadOpts, upload.WithTranscoder(upload.NewTranscoder(conf.TranscodeWidth, conf.TranscodeQuality)))
	}
	uploads, err := upload.NewStore(conf.UploadsDir, uploadOpts...)
	if err != nil {
		L.Error(ctx, err, "failed to create upload store")
		os.Exit(1)
	}

	// publish pipeline
	gitOpts := []publish.GitOption{
		publish.WithRemote(conf.GitRemote),
		publish.WithBranch(conf.GitBranch),
		publish.WithCommandTimeout(conf.GitTimeout),
		publish.WithGitLogger(L),
	}
	if conf.GitAuthorName != "" {
		gitOpts = append(gitOpts, publish.WithAuthor(conf.GitAuthorName, conf.GitAuthorEmail))
	}
	git := publish.NewGit(conf.RepoDir, gitOpts...)

	pipelineOpts := []publish.Option{publish.WithLogger(L)}
	if conf.S3Bucket != "" {
		pipelineOpts = append(pipelineOpts, publish.WithMirror(publish.NewS3Mirror(s3.NewFromConfig(awsCfg), conf.S3Bucket, conf.S3Prefix)))
	}
	if conf.KMSKeyID != "" {
		pipelineOpts = append(pipelineOpts, publish.WithSigner(cryptoutil.NewKMSSigner(kms.NewFromConfig(awsCfg), conf.KMSKeyID)))
	}
	pipeline, err := publish.NewPipeline(store, conf.StaticDataDir, git, pipelineOpts...)
	if err != nil {
		L.Error(ctx, err, "failed to create publish pipeline")
		os.Exit(1)
	}
	if err := git.Ready(ctx); err != nil {
		// the API still serves reads and writes; only publish will fail
		L.Warn(ctx, "publish repository not usable", "repo_dir", conf.RepoDir, "error", err)
	}

	// static files
	uploadFiles, err := static.New(static.Options{
		Logger: L,
		FS:     os.DirFS(uploads.Dir()),
		Mount:  upload.DefaultURLPath,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create uploads handler")
		os.Exit(1)
	}
	var adminUI *static.Handler
	if conf.AdminUIDir != "" {
		adminUI, err = static.New(static.Options{
			Logger: L,
			FS:     os.DirFS(conf.AdminUIDir),
			Mount:  "/admin",
			Index:  "index.html",
		})
		if err != nil {
			L.Error(ctx, err, "failed to create admin UI handler")
			os.Exit(1)
		}
	}

	// rate limiters: a generous one for everything, a tight one for login
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
		ratelimit.WithOnDenied(func(ip string) { m.IncRateLimitDenied() }),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func(ip string) {
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted", "ip", ip)
		}),
	)
	loginLimiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.LoginRateRPS, conf.LoginBurst()),
		ratelimit.WithRetryAfter(time.Minute),
		ratelimit.WithOnDenied(func(ip string) { m.IncRateLimitDenied() }),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "login rate limit triggered", "ip", ip)
		}),
	)

	apiOpts := apihttp.Options{
		Logger:      L,
		Content:     store,
		Issuer:      issuer,
		Validator:   validator,
		Guard:       loginGuard,
		Publisher:   pipeline,
		Uploads:     uploads,
		Metrics:     m,
		LoginLimit:  loginLimiter.Middleware,
		UploadFiles: uploadFiles.Mount(),
		LoginDelay:  conf.LoginDelay,
	}
	if conf.LoginDelay == 0 {
		apiOpts.LoginDelay = -1
	}
	if adminUI != nil {
		apiOpts.AdminUI = adminUI.Mount()
	}
	api, err := apihttp.NewAPI(apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to create API")
		os.Exit(1)
	}

	var gate health.ShutdownGate

	checks := []health.Probe{
		gate.Probe(),
		health.Named("content", health.ErrFunc(store.ReadyErr)),
		health.Named("uploads", health.ErrFunc(uploads.ReadyErr)),
	}
	if redisStore != nil {
		checks = append(checks, health.Named("redis", health.Timeout(2*time.Second, health.CheckFunc(redisStore.Ping))))
	}
	readiness := health.All(checks...)

	trusted, _ := conf.ParsePrefixes() // validated above

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		WriteTimeout: writeTimeout(git.MaxRunTime()),
		ClientIPOpts: httpmw.ClientIPOptions{
			TrustedHops:    conf.TrustedHops,
			TrustedProxies: trusted,
		},
		Security:  securityOptions(conf),
		CORS:      httpmw.CORSOptions{AllowedOrigins: cfg.SplitList(conf.CORSOrigins)},
		Health:    health.Fixed(true, ""),
		Readiness: readiness,
		Routes:    api.RegisterRoutes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// ops listener: metrics, health, version and pprof. Public peers are
	// rejected in middleware in case the port is ever exposed.
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		Version:     &vi,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd readiness not sent", "reason", err.Error())
	}

	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")
	gate.Set("draining")

	// a second signal skips the drain
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "api http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// set when started with Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify: close: %w", err)
	}
	return nil
}

// securityOptions lets the static site embed uploaded images while every other
// response stays same-origin.
func securityOptions(conf cfg.App) httpmw.SecurityOptions {
	return httpmw.SecurityOptions{
		HSTS:                conf.EnableHSTS,
		CrossOriginPrefixes: []string{upload.DefaultURLPath},
	}
}

// writeTimeout keeps the API connection open long enough for a publish to
// answer, with headroom for the manifest, signing and mirror uploads.
func writeTimeout(gitRunTime time.Duration) time.Duration {
	return max(httpserver.DefaultWriteTimeout, gitRunTime+30*time.Second)
}
