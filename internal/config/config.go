// Package config loads runtime settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config collects every tunable the daemon reads at startup.
type Config struct {
	HTTPAddr string
	DBPath   string

	// Working resolution for the analysis pipeline.
	FrameWidth  int
	FrameHeight int
	CaptureFPS  int

	HardwareEncoder bool
	MediaMTXAPI     string

	// Motion engine.
	DiffThreshold  uint8
	MinContourArea int

	// Object detector sidecar; empty disables corroboration.
	DetectorEndpoint string
	ConfThreshold    float32

	// Event timing.
	ConsistencyWindow    time.Duration
	ScreenshotCooldown   time.Duration
	NotificationCooldown time.Duration
	MinRecordAge         time.Duration
	QuiescenceWindow     time.Duration

	RecordingDir  string
	ScreenshotDir string
	TempDir       string

	// Webhook notifier; empty URL disables it.
	WebhookURL    string
	WebhookAPIKey string

	// MQTT notifier; empty host disables it.
	MQTTHost     string
	MQTTPort     int
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string

	// MinIO archival; empty endpoint disables it.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Operator login.
	AuthEnabled  bool
	AuthUsername string
	AuthPassword string
	JWTSecret    string

	// Seed camera for installs without any persisted cameras.
	CameraName   string
	CameraSource string
	CameraOutput string
}

// Load reads the environment into a Config. A missing .env file is not an
// error; explicit environment variables win over file values.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: loading .env: %v\n", err)
	}

	cfg := &Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		DBPath:   getenv("DB_PATH", "vigil.db"),

		FrameWidth:  getenvInt("FRAME_WIDTH", 1280),
		FrameHeight: getenvInt("FRAME_HEIGHT", 720),
		CaptureFPS:  getenvInt("CAPTURE_FPS", 10),

		HardwareEncoder: getenvBool("HARDWARE_ENCODER", false),
		MediaMTXAPI:     getenv("MEDIAMTX_API", ""),

		DiffThreshold:  getenvUint8("DIFF_THRESHOLD", 50),
		MinContourArea: getenvInt("MIN_CONTOUR_AREA", 2000),

		DetectorEndpoint: getenv("DETECTOR_ENDPOINT", ""),
		ConfThreshold:    getenvFloat("DETECTOR_CONF_THRESHOLD", 0.5),

		ConsistencyWindow:    getenvDuration("CONSISTENCY_WINDOW", time.Second),
		ScreenshotCooldown:   getenvDuration("SCREENSHOT_COOLDOWN", 5*time.Second),
		NotificationCooldown: getenvDuration("NOTIFICATION_COOLDOWN", 30*time.Second),
		MinRecordAge:         getenvDuration("MIN_RECORD_AGE", 2*time.Second),
		QuiescenceWindow:     getenvDuration("QUIESCENCE_WINDOW", 5*time.Second),

		RecordingDir:  getenv("RECORDING_DIR", "recordings"),
		ScreenshotDir: getenv("SCREENSHOT_DIR", "screenshots"),
		TempDir:       getenv("TEMP_DIR", "recordings/tmp"),

		WebhookURL:    getenv("WEBHOOK_URL", ""),
		WebhookAPIKey: getenv("WEBHOOK_API_KEY", ""),

		MQTTHost:     getenv("MQTT_HOST", ""),
		MQTTPort:     getenvInt("MQTT_PORT", 1883),
		MQTTUsername: getenv("MQTT_USERNAME", ""),
		MQTTPassword: getenv("MQTT_PASSWORD", ""),
		MQTTTopic:    getenv("MQTT_TOPIC_PREFIX", "vigil/events"),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "vigil-recordings"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),

		AuthEnabled:  getenvBool("AUTH_ENABLED", false),
		AuthUsername: getenv("AUTH_USERNAME", "admin"),
		AuthPassword: getenv("AUTH_PASSWORD", ""),
		JWTSecret:    getenv("JWT_SECRET", ""),

		CameraName:   getenv("CAMERA_NAME", ""),
		CameraSource: getenv("CAMERA_SOURCE", ""),
		CameraOutput: getenv("CAMERA_OUTPUT", ""),
	}

	if cfg.FrameWidth <= 0 || cfg.FrameHeight <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", cfg.FrameWidth, cfg.FrameHeight)
	}
	if cfg.CaptureFPS <= 0 {
		return nil, fmt.Errorf("invalid capture fps %d", cfg.CaptureFPS)
	}
	if cfg.AuthEnabled && cfg.AuthPassword == "" {
		return nil, fmt.Errorf("AUTH_ENABLED requires AUTH_PASSWORD")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Printf("Warning: %s=%q is not an integer, using %d\n", key, v, def)
		return def
	}
	return n
}

func getenvUint8(key string, def uint8) uint8 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Printf("Warning: %s=%q is not an integer, using %d\n", key, v, def)
		return def
	}
	if n < 0 || n > 255 {
		fmt.Printf("Warning: %s=%d is outside 0-255, using %d\n", key, n, def)
		return def
	}
	return uint8(n)
}

func getenvFloat(key string, def float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		fmt.Printf("Warning: %s=%q is not a number, using %v\n", key, v, def)
		return def
	}
	return float32(f)
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		fmt.Printf("Warning: %s=%q is not a boolean, using %v\n", key, v, def)
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare numbers are taken as seconds.
		if n, nerr := strconv.Atoi(v); nerr == nil {
			return time.Duration(n) * time.Second
		}
		fmt.Printf("Warning: %s=%q is not a duration, using %v\n", key, v, def)
		return def
	}
	return d
}
