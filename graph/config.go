package graph

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the traversal core's own engine-wide tunables: the
// defaults New applies via Option when the host doesn't override them
// explicitly. It deliberately excludes the GraphStore connection URL and
// credentials — those are the embedding host's concern (spec.md §6
// "Environment variables consumed by the host that embeds the core").
type Config struct {
	RowCap            int
	QueryTimeoutMs    int
	VariableTimeoutMs int
	EvalTimeoutMs     int
}

// LoadConfig reads the core's tunables from the process environment,
// optionally loading a .env file first if one is present at envFile (pass
// "" to skip). A missing .env file is not an error — only a File-not-found
// outcome from godotenv.Load is swallowed; any other load failure (a
// malformed file) is returned.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	cfg := Config{
		RowCap:            0,
		QueryTimeoutMs:    0,
		VariableTimeoutMs: DefaultVariableTimeoutMs,
		EvalTimeoutMs:     DefaultEvalTimeoutMs,
	}

	if v, ok := envInt("QFLOW_ROW_CAP"); ok {
		cfg.RowCap = v
	}
	if v, ok := envInt("QFLOW_QUERY_TIMEOUT_MS"); ok {
		cfg.QueryTimeoutMs = v
	}
	if v, ok := envInt("QFLOW_VARIABLE_TIMEOUT_MS"); ok {
		cfg.VariableTimeoutMs = v
	}
	if v, ok := envInt("QFLOW_EVAL_TIMEOUT_MS"); ok {
		cfg.EvalTimeoutMs = v
	}
	return cfg, nil
}

// Options converts Config into the Option slice New expects, so a host can
// write `graph.New(store, sandbox, cfg.Options()...)`.
func (c Config) Options() []Option {
	opts := make([]Option, 0, 4)
	if c.RowCap != 0 {
		opts = append(opts, WithRowCap(c.RowCap))
	}
	if c.QueryTimeoutMs != 0 {
		opts = append(opts, WithQueryTimeoutMs(c.QueryTimeoutMs))
	}
	if c.VariableTimeoutMs != 0 {
		opts = append(opts, WithDefaultVariableTimeoutMs(c.VariableTimeoutMs))
	}
	if c.EvalTimeoutMs != 0 {
		opts = append(opts, WithDefaultEvalTimeoutMs(c.EvalTimeoutMs))
	}
	return opts
}

func envInt(key string) (int, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
