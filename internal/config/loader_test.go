package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{" 7 ", 7},
		{"010", 10},
		{"", 0},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{1.5, 1500 * time.Millisecond},
		{" 250ms ", 250 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"base_url":       "http://checkout.internal:9000",
		"expected_stock": 250,
		"pacing":         "250ms",
		"log_errors":     "true",
		"thresholds":     "http_req_failed:rate < 0.2; checks:rate > 0.9",
		"tracing": map[string]interface{}{
			"endpoint":    "collector:4317",
			"sample_rate": 0.25,
			"propagate":   false,
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.BaseURL != "http://checkout.internal:9000" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.ExpectedStock != 250 {
		t.Errorf("ExpectedStock = %d, want 250", cfg.ExpectedStock)
	}
	if cfg.Pacing != 250*time.Millisecond {
		t.Errorf("Pacing = %s, want 250ms", cfg.Pacing)
	}
	if !cfg.LogErrors {
		t.Error("LogErrors = false, want true")
	}
	if len(cfg.Thresholds) != 2 || cfg.Thresholds[1] != "checks:rate > 0.9" {
		t.Errorf("Thresholds = %q", cfg.Thresholds)
	}
	if cfg.Tracing.Endpoint != "collector:4317" || cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.ShouldPropagate() {
		t.Error("propagate: false should disable propagation")
	}
	if cfg.UserID != DefaultUserID {
		t.Errorf("untouched setting changed: UserID = %q", cfg.UserID)
	}
}

func TestApplyConfigSettingsRejectsBadTypes(t *testing.T) {
	cfg := Defaults()
	err := applyConfigSettings(cfg, map[string]interface{}{"quantity": "many"})
	if err == nil {
		t.Fatal("expected error for non-numeric quantity")
	}
}

func TestParseScenariosList(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{
			"name":              "spike",
			"executor":          "ramping-arrival-rate",
			"start_rate":        5,
			"time_unit":         "1s",
			"pre_allocated_vus": 10,
			"max_vus":           20,
			"stages": []interface{}{
				map[string]interface{}{"duration": "2s", "target": 50},
				map[string]interface{}{"duration": 3, "target": 0},
			},
		},
	}

	scenarios, err := parseScenarios(raw)
	if err != nil {
		t.Fatalf("parseScenarios() error = %v", err)
	}
	if len(scenarios) != 1 {
		t.Fatalf("expected 1 scenario, got %d", len(scenarios))
	}
	sc := scenarios[0]
	if sc.Name != "spike" || sc.Executor != ExecutorRampingArrivalRate || sc.StartRate != 5 {
		t.Fatalf("unexpected scenario %+v", sc)
	}
	if len(sc.Stages) != 2 || sc.Stages[1].Duration != 3*time.Second || sc.Stages[0].Target != 50 {
		t.Fatalf("unexpected stages %+v", sc.Stages)
	}
	if sc.TotalDuration() != 5*time.Second {
		t.Fatalf("TotalDuration = %s", sc.TotalDuration())
	}
}

func TestParseScenariosMapOrderedByStartTime(t *testing.T) {
	raw := map[string]interface{}{
		"late": map[string]interface{}{
			"executor":   "constant-arrival-rate",
			"rate":       1,
			"duration":   "1s",
			"max_vus":    1,
			"start_time": "10s",
		},
		"early": map[string]interface{}{
			"executor": "constant-arrival-rate",
			"rate":     1,
			"duration": "1s",
			"max_vus":  1,
		},
	}

	scenarios, err := parseScenarios(raw)
	if err != nil {
		t.Fatalf("parseScenarios() error = %v", err)
	}
	if len(scenarios) != 2 || scenarios[0].Name != "early" || scenarios[1].Name != "late" {
		t.Fatalf("unexpected order: %+v", scenarios)
	}
	if scenarios[0].TimeUnit != time.Second {
		t.Fatalf("time unit should default to 1s, got %s", scenarios[0].TimeUnit)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()
	cfg.BaseURL = "http://from-file"

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{
		"--base-url", "http://from-flag",
		"--scenario", "burst_test",
		"--threshold", "checks:rate > 0.5",
		"--tracing-propagate=false",
		"--pacing", "0s",
	}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.BaseURL != "http://from-flag" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if len(cfg.ScenarioFilter) != 1 || cfg.ScenarioFilter[0] != "burst_test" {
		t.Errorf("ScenarioFilter = %v", cfg.ScenarioFilter)
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if cfg.Tracing.Propagate == nil || *cfg.Tracing.Propagate {
		t.Errorf("Propagate = %v", cfg.Tracing.Propagate)
	}
	if cfg.Pacing != 0 {
		t.Errorf("Pacing = %s, want 0", cfg.Pacing)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("unchanged flag overrode Timeout: %s", cfg.Timeout)
	}
}

func TestAsStringSlice(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  []string
	}{
		{"single expression", "race_condition_failures:rate < 0.05", []string{"race_condition_failures:rate < 0.05"}},
		{"yaml list", []interface{}{"checks:rate > 0.9", "http_req_failed:rate < 0.2"}, []string{"checks:rate > 0.9", "http_req_failed:rate < 0.2"}},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := asStringSlice(tt.input)
			if err != nil {
				t.Fatalf("asStringSlice() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("asStringSlice() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("asStringSlice()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestToStringKeyMap(t *testing.T) {
	got, err := toStringKeyMap(map[interface{}]interface{}{" Endpoint ": "collector:4317", "Sample_Rate": 0.5})
	if err != nil {
		t.Fatalf("toStringKeyMap() error = %v", err)
	}
	if got["endpoint"] != "collector:4317" || got["sample_rate"] != 0.5 {
		t.Fatalf("toStringKeyMap() = %v", got)
	}

	if _, err := toStringKeyMap([]interface{}{"not", "a", "map"}); err == nil {
		t.Fatal("expected error for a list")
	}
}

func TestToInterfaceSlice(t *testing.T) {
	items, err := toInterfaceSlice([]map[interface{}]interface{}{{"name": "a"}, {"name": "b"}})
	if err != nil || len(items) != 2 {
		t.Fatalf("toInterfaceSlice() = %v, %v", items, err)
	}
	if items, err := toInterfaceSlice(nil); err != nil || items != nil {
		t.Fatalf("toInterfaceSlice(nil) = %v, %v", items, err)
	}
	if _, err := toInterfaceSlice("scenario"); err == nil {
		t.Fatal("expected error for a string")
	}
}

func TestSplitNonEmpty(t *testing.T) {
	got := splitNonEmpty(" a ;; b;", ";")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("splitNonEmpty = %q", got)
	}
}
