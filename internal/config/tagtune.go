// Package config loads the optional JSON run configuration for tagtune.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/tagtune/internal/fsutil"
	"github.com/banshee-data/tagtune/internal/limelight"
	"github.com/banshee-data/tagtune/internal/tune"
)

// DefaultConfigPath is the path to the shipped run defaults.
const DefaultConfigPath = "config/tagtune.defaults.json"

// EnvConfigPath names the environment variable that overrides the config
// file location.
const EnvConfigPath = "TAGTUNE_CONFIG"

// maxFileSize bounds the config file.
const maxFileSize = 1 * 1024 * 1024

// TunerConfig is the on-disk run configuration. Every field is optional;
// the Get* methods fall back to the built-in defaults. Candidate lists are
// strings holding either a "min:max:step" range or comma-separated values;
// durations are strings like "100ms".
type TunerConfig struct {
	// Device
	Candidates   []string `json:"candidates,omitempty"`
	Port         *int     `json:"port,omitempty"`
	ProbeTimeout *string  `json:"probe_timeout,omitempty"`
	ApplyTimeout *string  `json:"apply_timeout,omitempty"`
	PollTimeout  *string  `json:"poll_timeout,omitempty"`

	// Target and starting point
	AcceptableMarkers   []int              `json:"acceptable_markers,omitempty"`
	Baseline            map[string]float64 `json:"baseline,omitempty"`
	EscalationExposures *string            `json:"escalation_exposures,omitempty"`

	// Thresholds
	DiscoveryMinDetectionPct  *float64 `json:"discovery_min_detection_pct,omitempty"`
	MinDetectionPct           *float64 `json:"min_detection_pct,omitempty"`
	ReliableDetectionPct      *float64 `json:"reliable_detection_pct,omitempty"`
	JointFallbackDetectionPct *float64 `json:"joint_fallback_detection_pct,omitempty"`
	PlateauTolerance          *float64 `json:"plateau_tolerance,omitempty"`

	// Candidates
	ExposureCoarse        *string  `json:"exposure_coarse,omitempty"`
	ExposureFineHalfWidth *float64 `json:"exposure_fine_half_width,omitempty"`
	ExposureFineStep      *float64 `json:"exposure_fine_step,omitempty"`
	ExposureMin           *float64 `json:"exposure_min,omitempty"`
	ExposureMax           *float64 `json:"exposure_max,omitempty"`
	GainCoarse            *string  `json:"gain_coarse,omitempty"`
	GainFineHalfWidth     *float64 `json:"gain_fine_half_width,omitempty"`
	GainFineStep          *float64 `json:"gain_fine_step,omitempty"`
	GainMin               *float64 `json:"gain_min,omitempty"`
	GainMax               *float64 `json:"gain_max,omitempty"`
	RefineMethods         *string  `json:"refine_methods,omitempty"`
	BlackLevels           *string  `json:"black_levels,omitempty"`
	Sharpening            *string  `json:"sharpening,omitempty"`
	JointExposureOffset   *float64 `json:"joint_exposure_offset,omitempty"`
	JointGainOffset       *float64 `json:"joint_gain_offset,omitempty"`

	// Windows, in polls
	BaselineWindow   *int `json:"baseline_window,omitempty"`
	EscalationWindow *int `json:"escalation_window,omitempty"`
	CoarseWindow     *int `json:"coarse_window,omitempty"`
	FineWindow       *int `json:"fine_window,omitempty"`
	SecondaryWindow  *int `json:"secondary_window,omitempty"`
	JointWindow      *int `json:"joint_window,omitempty"`
	VerifyWindow     *int `json:"verify_window,omitempty"`
	VerifyRounds     *int `json:"verify_rounds,omitempty"`

	// Waits
	PollInterval *string `json:"poll_interval,omitempty"`
	Settle       *string `json:"settle,omitempty"`
	FinalSettle  *string `json:"final_settle,omitempty"`
}

// defaults supplies the fallback for every search setting.
var defaults = tune.DefaultConfig()

// EmptyTunerConfig returns a TunerConfig with all fields unset.
func EmptyTunerConfig() *TunerConfig {
	return &TunerConfig{}
}

// LoadTunerConfig loads a TunerConfig from a JSON file on disk. Fields
// omitted from the file keep their defaults, so partial configs are safe.
func LoadTunerConfig(path string) (*TunerConfig, error) {
	return LoadTunerConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadTunerConfigFS loads a TunerConfig from fsys.
func LoadTunerConfigFS(fsys fsutil.FileSystem, path string) (*TunerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTunerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Load resolves the config file for a run. A path named by TAGTUNE_CONFIG
// must load. Otherwise DefaultConfigPath is used when present, and built-in
// defaults when it is not. The returned path is empty for built-ins.
func Load() (*TunerConfig, string, error) {
	return load(fsutil.OSFileSystem{}, os.Getenv(EnvConfigPath))
}

func load(fsys fsutil.FileSystem, override string) (*TunerConfig, string, error) {
	if override != "" {
		cfg, err := LoadTunerConfigFS(fsys, override)
		return cfg, override, err
	}
	if _, err := fsys.Stat(DefaultConfigPath); err == nil {
		cfg, err := LoadTunerConfigFS(fsys, DefaultConfigPath)
		return cfg, DefaultConfigPath, err
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, DefaultConfigPath, fmt.Errorf("failed to stat config file: %w", err)
	}
	return EmptyTunerConfig(), "", nil
}

// Validate checks the device settings and that the search settings resolve
// to a runnable configuration.
func (c *TunerConfig) Validate() error {
	var errs []error

	if c.Candidates != nil && len(c.Candidates) == 0 {
		errs = append(errs, errors.New("candidates must not be empty when set"))
	}
	if c.Port != nil && (*c.Port <= 0 || *c.Port > 65535) {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", *c.Port))
	}
	for _, d := range []struct {
		name string
		v    *string
	}{
		{"probe_timeout", c.ProbeTimeout},
		{"apply_timeout", c.ApplyTimeout},
		{"poll_timeout", c.PollTimeout},
	} {
		v, err := parseDuration(d.name, d.v, time.Second)
		if err != nil {
			errs = append(errs, err)
		} else if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, v))
		}
	}

	if _, err := c.Resolve(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Resolve converts the file representation into the runtime search config
// and validates it.
func (c *TunerConfig) Resolve() (tune.Config, error) {
	cfg := defaults
	var errs []error

	list := func(name string, v *string, fallback []float64) []float64 {
		if v == nil || *v == "" {
			return fallback
		}
		values, err := tune.ParseParamList(*v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
			return fallback
		}
		return values
	}
	duration := func(name string, v *string, fallback time.Duration) time.Duration {
		d, err := parseDuration(name, v, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	baseline := tune.RecommendedBaseline()
	if len(c.Baseline) > 0 {
		overrides, err := tune.NewParameterSet(c.Baseline)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid baseline: %w", err))
		}
		for name, v := range overrides.Map() {
			baseline = baseline.With(tune.ParamName(name), v)
		}
	}
	cfg.Baseline = baseline
	cfg.Acceptable = c.GetAcceptableMarkers()
	cfg.EscalationExposures = list("escalation_exposures", c.EscalationExposures, defaults.EscalationExposures)

	cfg.DiscoveryMinDetPct = getFloat(c.DiscoveryMinDetectionPct, defaults.DiscoveryMinDetPct)
	cfg.MinDetPct = getFloat(c.MinDetectionPct, defaults.MinDetPct)
	cfg.ReliableDetPct = getFloat(c.ReliableDetectionPct, defaults.ReliableDetPct)
	cfg.JointFallbackDetPct = getFloat(c.JointFallbackDetectionPct, defaults.JointFallbackDetPct)
	cfg.PlateauTolerance = getFloat(c.PlateauTolerance, defaults.PlateauTolerance)

	cfg.ExposureCoarse = list("exposure_coarse", c.ExposureCoarse, defaults.ExposureCoarse)
	cfg.ExposureFineHalfWidth = getFloat(c.ExposureFineHalfWidth, defaults.ExposureFineHalfWidth)
	cfg.ExposureFineStep = getFloat(c.ExposureFineStep, defaults.ExposureFineStep)
	cfg.ExposureSpan = tune.Span{
		Min: getFloat(c.ExposureMin, defaults.ExposureSpan.Min),
		Max: getFloat(c.ExposureMax, defaults.ExposureSpan.Max),
	}
	cfg.GainCoarse = list("gain_coarse", c.GainCoarse, defaults.GainCoarse)
	cfg.GainFineHalfWidth = getFloat(c.GainFineHalfWidth, defaults.GainFineHalfWidth)
	cfg.GainFineStep = getFloat(c.GainFineStep, defaults.GainFineStep)
	cfg.GainSpan = tune.Span{
		Min: getFloat(c.GainMin, defaults.GainSpan.Min),
		Max: getFloat(c.GainMax, defaults.GainSpan.Max),
	}
	cfg.RefineMethods = list("refine_methods", c.RefineMethods, defaults.RefineMethods)
	cfg.BlackLevels = list("black_levels", c.BlackLevels, defaults.BlackLevels)
	cfg.Sharpening = list("sharpening", c.Sharpening, defaults.Sharpening)
	cfg.JointExposureOffset = getFloat(c.JointExposureOffset, defaults.JointExposureOffset)
	cfg.JointGainOffset = getFloat(c.JointGainOffset, defaults.JointGainOffset)

	cfg.BaselineWindow = getInt(c.BaselineWindow, defaults.BaselineWindow)
	cfg.EscalationWindow = getInt(c.EscalationWindow, defaults.EscalationWindow)
	cfg.CoarseWindow = getInt(c.CoarseWindow, defaults.CoarseWindow)
	cfg.FineWindow = getInt(c.FineWindow, defaults.FineWindow)
	cfg.SecondaryWindow = getInt(c.SecondaryWindow, defaults.SecondaryWindow)
	cfg.JointWindow = getInt(c.JointWindow, defaults.JointWindow)
	cfg.VerifyWindow = getInt(c.VerifyWindow, defaults.VerifyWindow)
	cfg.VerifyRounds = getInt(c.VerifyRounds, defaults.VerifyRounds)

	cfg.PollInterval = duration("poll_interval", c.PollInterval, defaults.PollInterval)
	cfg.Settle = duration("settle", c.Settle, defaults.Settle)
	cfg.FinalSettle = duration("final_settle", c.FinalSettle, defaults.FinalSettle)

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return tune.Config{}, err
	}
	return cfg, nil
}

func getFloat(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func getInt(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

// parseDuration returns fallback for an unset value and for one that does
// not parse, reporting the latter as an error.
func parseDuration(name string, v *string, fallback time.Duration) (time.Duration, error) {
	if v == nil || *v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	return d, nil
}

// getDuration backs the timeout getters. Validate rejects values that do
// not parse, so the fallback only shows through on an unvalidated config.
func getDuration(name string, v *string, fallback time.Duration) time.Duration {
	d, _ := parseDuration(name, v, fallback)
	return d
}

// GetCandidates returns the addresses probed during discovery.
func (c *TunerConfig) GetCandidates() []string {
	if len(c.Candidates) == 0 {
		return append([]string(nil), limelight.DefaultCandidates...)
	}
	return c.Candidates
}

// GetPort returns the camera API port or the default.
func (c *TunerConfig) GetPort() int {
	return getInt(c.Port, limelight.DefaultPort)
}

// GetProbeTimeout returns the per-candidate discovery timeout.
func (c *TunerConfig) GetProbeTimeout() time.Duration {
	return getDuration("probe_timeout", c.ProbeTimeout, limelight.DefaultProbeTimeout)
}

// GetApplyTimeout returns the update-pipeline request timeout.
func (c *TunerConfig) GetApplyTimeout() time.Duration {
	return getDuration("apply_timeout", c.ApplyTimeout, limelight.DefaultApplyTimeout)
}

// GetPollTimeout returns the results request timeout.
func (c *TunerConfig) GetPollTimeout() time.Duration {
	return getDuration("poll_timeout", c.PollTimeout, limelight.DefaultPollTimeout)
}

// GetAcceptableMarkers returns the markers an untargeted window may lock onto.
func (c *TunerConfig) GetAcceptableMarkers() []tune.MarkerID {
	if len(c.AcceptableMarkers) == 0 {
		return append([]tune.MarkerID(nil), defaults.Acceptable...)
	}
	out := make([]tune.MarkerID, len(c.AcceptableMarkers))
	for i, m := range c.AcceptableMarkers {
		out[i] = tune.MarkerID(m)
	}
	return out
}
