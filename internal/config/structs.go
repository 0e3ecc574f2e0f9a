//nolint:lll
package config

// Config represents the complete configuration for pogocls. It covers the
// classify and serve commands and is loaded from configuration files,
// environment variables and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier" json:"classifier"`
	GPU        GPUConfig        `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output" json:"output"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// ClassifierConfig contains text-line orientation model settings.
type ClassifierConfig struct {
	ModelPath   string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	Threshold   float64 `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	BatchSize   int     `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
	ImageHeight int     `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	ImageWidth  int     `mapstructure:"image_width" yaml:"image_width" json:"image_width"`
	Channels    int     `mapstructure:"channels" yaml:"channels" json:"channels"`
	NumThreads  int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	Resampler   string  `mapstructure:"resampler" yaml:"resampler" json:"resampler"`
	Warmup      bool    `mapstructure:"warmup" yaml:"warmup" json:"warmup"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}

// OutputConfig contains result formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
	Dir    string `mapstructure:"dir" yaml:"dir" json:"dir"` // corrected images are written here when set
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	MaxImages       int    `mapstructure:"max_images" yaml:"max_images" json:"max_images"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits for the HTTP server.
// A zero limit disables that particular check.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int  `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxImagesPerDay   int  `mapstructure:"max_images_per_day" yaml:"max_images_per_day" json:"max_images_per_day"`
}

// BatchConfig contains file discovery settings for the classify command.
type BatchConfig struct {
	Recursive bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include   []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude   []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
}
