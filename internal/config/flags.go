package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command. They are
// persistent so every subcommand shares them.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.PersistentFlags())
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("base-url", DefaultBaseURL, "Base URL of the checkout API")
	flags.String("product-id", DefaultProductID, "Product UUID to check out")
	flags.String("user-id", DefaultUserID, "User UUID placing the orders")
	flags.Int("expected-stock", DefaultExpectedStock, "Initial stock of the product, shown in the banner")
	flags.Int("quantity", 1, "Quantity per checkout in the race scenarios")
	flags.Duration("timeout", defaultTimeout, "Per-request timeout")
	flags.Duration("pacing", defaultPacing, "Pause after each checkout iteration")

	// Load control flags
	flags.StringSlice("scenario", nil, "Run only the named scenario (repeatable)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing iterations (uniform or poisson)")
	flags.StringSlice("threshold", nil, "Pass/fail threshold replacing the defaults (repeatable, e.g. 'http_req_duration:p(95) < 500')")

	// Idempotency flags
	flags.Int("idempotency-attempts", 5, "Number of identical checkouts sent by the idempotency command")
	flags.Int("idempotency-quantity", 5, "Quantity used by the idempotency command")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.Bool("log-errors", false, "Log each failed iteration")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("summary-export", "", "Write the end-of-run summary as JSON to this path")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("env-file", ".env", "Path to a dotenv file with CHECKOUTRACE_* variables")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of checkouts to trace (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", true, "Inject W3C trace headers into checkout requests")
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := []struct {
		name string
		dst  *string
	}{
		{"base-url", &cfg.BaseURL},
		{"product-id", &cfg.ProductID},
		{"user-id", &cfg.UserID},
		{"log-level", &cfg.LogLevel},
		{"summary-export", &cfg.SummaryExport},
		{"metrics-addr", &cfg.MetricsAddr},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
	}
	for _, f := range stringFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(val)
	}

	intFlags := []struct {
		name string
		dst  *int
	}{
		{"expected-stock", &cfg.ExpectedStock},
		{"quantity", &cfg.Quantity},
		{"idempotency-attempts", &cfg.IdempotencyAttempts},
		{"idempotency-quantity", &cfg.IdempotencyQuantity},
	}
	for _, f := range intFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetInt(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("pacing") {
		val, err := fs.GetDuration("pacing")
		if err != nil {
			return err
		}
		cfg.Pacing = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.ArrivalModel = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}

	boolFlags := []struct {
		name string
		dst  *bool
	}{
		{"json-output", &cfg.JSONOutput},
		{"dashboard", &cfg.Dashboard},
		{"log-errors", &cfg.LogErrors},
		{"tracing-insecure", &cfg.Tracing.Insecure},
	}
	for _, f := range boolFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	if fs.Changed("threshold") {
		vals, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = vals
	}
	if fs.Changed("scenario") {
		vals, err := fs.GetStringSlice("scenario")
		if err != nil {
			return err
		}
		cfg.ScenarioFilter = vals
	}

	if f := fs.Lookup("config"); f != nil {
		cfg.ConfigFile = strings.TrimSpace(f.Value.String())
	}

	return nil
}
