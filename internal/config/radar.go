// Package config loads the radar engine's runtime parameters.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenSourceIronman/BikeRADAR/internal/cluster"
	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/motion"
	"github.com/OpenSourceIronman/BikeRADAR/internal/units"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/radar.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// RadarConfig is the engine configuration. Every field is optional; the
// Get* methods supply defaults for anything left unset, so partial files
// are safe.
type RadarConfig struct {
	// Grid and motion
	MaxRadius     *int     `json:"max_radius,omitempty"`
	Velocity      *float64 `json:"velocity,omitempty"`
	VelocityUnits *string  `json:"velocity_units,omitempty"`
	PollRate      *float64 `json:"poll_rate,omitempty"` // Hz
	HeadingDeg    *float64 `json:"heading_deg,omitempty"`
	ClusterMode   *string  `json:"cluster_mode,omitempty"`

	// Sensor
	SerialPort        *string `json:"serial_port,omitempty"`
	SerialBaud        *int    `json:"serial_baud,omitempty"`
	SerialReadTimeout *string `json:"serial_read_timeout,omitempty"` // duration, e.g. "1s"
	ScanCommand       *string `json:"scan_command,omitempty"`

	// Surroundings
	DBPath *string `json:"db_path,omitempty"`
	Listen *string `json:"listen,omitempty"`
}

// Empty returns a config with every field unset.
func Empty() *RadarConfig {
	return &RadarConfig{}
}

// LoadConfig loads a RadarConfig from a JSON file. The file must have a
// .json extension and be under 1MB.
func LoadConfig(path string) (*RadarConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching from the current
// directory up towards the repository root. Panics if the file cannot be
// loaded; intended for tests and dev mode.
func MustLoadDefaultConfig() *RadarConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the set fields. Failures wrap grid.ErrConfiguration.
func (c *RadarConfig) Validate() error {
	if c.MaxRadius != nil {
		if *c.MaxRadius <= 0 || *c.MaxRadius > grid.HardMaxRadius {
			return fmt.Errorf("%w: max_radius must be in (0, %d], got %d",
				grid.ErrConfiguration, grid.HardMaxRadius, *c.MaxRadius)
		}
	}

	if c.Velocity != nil && !finite(*c.Velocity) {
		return fmt.Errorf("%w: velocity must be finite", grid.ErrConfiguration)
	}

	if c.VelocityUnits != nil && !units.IsValid(*c.VelocityUnits) {
		return fmt.Errorf("%w: velocity_units %q must be one of %s",
			grid.ErrConfiguration, *c.VelocityUnits, units.ValidUnitsString())
	}

	if c.PollRate != nil {
		if !finite(*c.PollRate) || *c.PollRate <= 0 {
			return fmt.Errorf("%w: poll_rate must be a positive frequency in Hz, got %v",
				grid.ErrConfiguration, *c.PollRate)
		}
	}

	if c.HeadingDeg != nil && !finite(*c.HeadingDeg) {
		return fmt.Errorf("%w: heading_deg must be finite", grid.ErrConfiguration)
	}

	if c.ClusterMode != nil {
		if _, err := cluster.ParseMode(*c.ClusterMode); err != nil {
			return fmt.Errorf("%w: %v", grid.ErrConfiguration, err)
		}
	}

	if c.SerialBaud != nil && *c.SerialBaud < 0 {
		return fmt.Errorf("%w: serial_baud must not be negative, got %d", grid.ErrConfiguration, *c.SerialBaud)
	}

	if c.SerialReadTimeout != nil {
		d, err := time.ParseDuration(*c.SerialReadTimeout)
		if err != nil {
			return fmt.Errorf("%w: invalid serial_read_timeout %q: %v", grid.ErrConfiguration, *c.SerialReadTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: serial_read_timeout must be positive, got %s", grid.ErrConfiguration, d)
		}
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// GetMaxRadius returns the max_radius value or the default.
func (c *RadarConfig) GetMaxRadius() int {
	if c.MaxRadius == nil {
		return grid.HardMaxRadius // default
	}
	return *c.MaxRadius
}

// GetVelocity returns the velocity in the configured units.
func (c *RadarConfig) GetVelocity() float64 {
	if c.Velocity == nil {
		return 0 // default
	}
	return *c.Velocity
}

// GetVelocityUnits returns the velocity_units value or the default.
func (c *RadarConfig) GetVelocityUnits() string {
	if c.VelocityUnits == nil || *c.VelocityUnits == "" {
		return units.MPS // default
	}
	return *c.VelocityUnits
}

// VelocityMPS returns the velocity converted to metres per second.
func (c *RadarConfig) VelocityMPS() (float64, error) {
	return units.ToMPS(c.GetVelocity(), c.GetVelocityUnits())
}

// GetPollRate returns the poll_rate value or the default.
func (c *RadarConfig) GetPollRate() float64 {
	if c.PollRate == nil {
		return 2 // default
	}
	return *c.PollRate
}

// PollInterval returns the time between scans, 1/poll_rate.
func (c *RadarConfig) PollInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.GetPollRate())
}

// GetHeadingDeg returns the heading_deg value or the default.
func (c *RadarConfig) GetHeadingDeg() float64 {
	if c.HeadingDeg == nil {
		return motion.HeadingForward // default
	}
	return *c.HeadingDeg
}

// GetClusterMode returns the parsed cluster_mode, falling back to two-pass.
func (c *RadarConfig) GetClusterMode() cluster.Mode {
	if c.ClusterMode == nil {
		return cluster.ModeTwoPass // default
	}
	m, err := cluster.ParseMode(*c.ClusterMode)
	if err != nil {
		return cluster.ModeTwoPass // default on parse error
	}
	return m
}

// MotionParams builds the compensation parameters from the config.
func (c *RadarConfig) MotionParams() (motion.Params, error) {
	v, err := c.VelocityMPS()
	if err != nil {
		return motion.Params{}, err
	}
	return motion.Params{
		Velocity:   v,
		PollRate:   c.GetPollRate(),
		HeadingDeg: c.GetHeadingDeg(),
	}, nil
}

// GetSerialPort returns the serial_port value or the default.
func (c *RadarConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyUSB0" // default
	}
	return *c.SerialPort
}

// GetSerialBaud returns the serial_baud value or the default.
func (c *RadarConfig) GetSerialBaud() int {
	if c.SerialBaud == nil || *c.SerialBaud == 0 {
		return 9600 // default
	}
	return *c.SerialBaud
}

// GetSerialReadTimeout returns how long a serial read waits for data before
// the cycle is treated as having no data.
func (c *RadarConfig) GetSerialReadTimeout() time.Duration {
	if c.SerialReadTimeout == nil {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.SerialReadTimeout)
	if err != nil || d <= 0 {
		return time.Second // default on parse error
	}
	return d
}

// GetScanCommand returns the scan_command value or the default (none).
func (c *RadarConfig) GetScanCommand() string {
	if c.ScanCommand == nil {
		return ""
	}
	return *c.ScanCommand
}

// GetDBPath returns the db_path value or the default.
func (c *RadarConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "radar.db" // default
	}
	return *c.DBPath
}

// GetListen returns the listen value or the default.
func (c *RadarConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080" // default
	}
	return *c.Listen
}

// Effective is the fully-resolved view of a config, as served by the API.
type Effective struct {
	MaxRadius         int     `json:"max_radius"`
	Velocity          float64 `json:"velocity"`
	VelocityUnits     string  `json:"velocity_units"`
	VelocityMPS       float64 `json:"velocity_mps"`
	PollRate          float64 `json:"poll_rate"`
	HeadingDeg        float64 `json:"heading_deg"`
	ClusterMode       string  `json:"cluster_mode"`
	SerialPort        string  `json:"serial_port"`
	SerialBaud        int     `json:"serial_baud"`
	SerialReadTimeout string  `json:"serial_read_timeout"`
	ScanCommand       string  `json:"scan_command"`
	DBPath            string  `json:"db_path"`
	Listen            string  `json:"listen"`
}

// Effective resolves every field to its configured or default value.
func (c *RadarConfig) Effective() Effective {
	mps, _ := c.VelocityMPS()
	return Effective{
		MaxRadius:         c.GetMaxRadius(),
		Velocity:          c.GetVelocity(),
		VelocityUnits:     c.GetVelocityUnits(),
		VelocityMPS:       mps,
		PollRate:          c.GetPollRate(),
		HeadingDeg:        c.GetHeadingDeg(),
		ClusterMode:       c.GetClusterMode().String(),
		SerialPort:        c.GetSerialPort(),
		SerialBaud:        c.GetSerialBaud(),
		SerialReadTimeout: c.GetSerialReadTimeout().String(),
		ScanCommand:       c.GetScanCommand(),
		DBPath:            c.GetDBPath(),
		Listen:            c.GetListen(),
	}
}
