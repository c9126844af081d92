// Command schemagen fetches an endpoint and writes the JSON Schema
// inferred from its response into the schema directory.
//
//	schemagen -category articles -name GET_articles -path /articles -param limit=10 -param offset=0
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/conduit-qa/conduit-tests/apilog"
	"github.com/conduit-qa/conduit-tests/config"
	"github.com/conduit-qa/conduit-tests/env"
	"github.com/conduit-qa/conduit-tests/request"
	"github.com/conduit-qa/conduit-tests/schema"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// paramFlags collects repeated -param key=value flags in order.
type paramFlags []request.QueryParam

func (p *paramFlags) String() string {
	parts := make([]string, len(*p))
	for i, q := range *p {
		parts[i] = fmt.Sprintf("%s=%v", q.Key, q.Value)
	}
	return strings.Join(parts, ",")
}

func (p *paramFlags) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	*p = append(*p, request.P(key, value))
	return nil
}

type options struct {
	category string
	name     string
	path     string
	params   paramFlags
	auth     bool
}

func main() {
	logerConfig := zap.NewProductionConfig()
	logerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logerConfig.Build()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var opts options
	configPath := flag.String("config", "", "Path to api-test.yaml (default: nearest one upwards)")
	flag.StringVar(&opts.category, "category", "", "Schema category, e.g. articles")
	flag.StringVar(&opts.name, "name", "", "Schema name, e.g. GET_articles")
	flag.StringVar(&opts.path, "path", "", "API path to GET, e.g. /articles")
	flag.Var(&opts.params, "param", "Query parameter key=value, repeatable")
	flag.BoolVar(&opts.auth, "auth", false, "Log in with the configured account first")
	flag.Parse()

	if opts.category == "" || opts.name == "" || opts.path == "" {
		flag.Usage()
		os.Exit(2)
	}

	path := *configPath
	if path == "" {
		if path, err = config.Locate("."); err != nil {
			logger.Fatal("Failed to locate config", zap.Error(err))
		}
	}
	cfg, err := config.Load(path, logger)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	logerConfig.Level.SetLevel(cfg.ParseLevel().Level())

	schemaDir := cfg.SchemaDir
	if !filepath.IsAbs(schemaDir) {
		schemaDir = filepath.Join(filepath.Dir(path), schemaDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	written, err := run(ctx, cfg, schema.NewStore(schemaDir, logger), opts, logger)
	if err != nil {
		logger.Fatal("Schema generation failed", zap.Error(err))
	}
	logger.Info("Done", zap.String("schema", written))
}

// run brings up the configured backend, fetches opts.path and writes the
// schema, returning the file path.
func run(ctx context.Context, cfg *config.Config, store *schema.Store, opts options, logger *zap.Logger) (string, error) {
	envs := env.NewEnvs(logger)
	envs.Register(env.NewConduitEnv(cfg))
	if opts.auth {
		envs.Register(env.NewAuthEnv(nil))
	}
	defer envs.StopAll()
	if err := envs.Execute(ctx); err != nil {
		return "", err
	}

	var token string
	if opts.auth {
		token, _ = envs.GetDetails(env.AuthComponentName).(string)
	}
	client := &http.Client{
		Transport: request.NewThrottledTransport(nil, cfg.RequestsPerSecond, 1),
		Timeout:   cfg.RequestTimeout,
	}
	api := request.New(client, apilog.NewRecorder(logger),
		request.WithBaseURL(envs.GetURL(env.ConduitComponentName)),
		request.WithDefaultAuth(token),
		request.WithLogger(logger),
	)

	resp, err := api.Path(opts.path).Params(opts.params...).Get(ctx, http.StatusOK)
	if err != nil {
		return "", err
	}
	if resp.Body == nil {
		return "", fmt.Errorf("%s returned no JSON body", opts.path)
	}
	if err := store.Generate(opts.category, opts.name, resp.Body); err != nil {
		return "", err
	}
	return store.Path(opts.category, opts.name), nil
}
