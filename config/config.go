package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the preview server settings
type ServerConfig struct {
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseDbname   string
	DatabaseSslmode  string
	FileDir          string //absolute path holding downloaded sources and converted artifacts
	BaseURL          string //prefix for externally addressable artifact urls
	CacheEnabled     bool
	DeleteSourceFile bool
	OfficeTypeWeb    bool   //spreadsheets and csv are rendered client side without conversion
	OfficePreview    string //default preview mode when the request carries none
	ConverterConfig
	RendererConfig
	FetchConfig
}

// ConverterConfig selects and tunes the office to PDF engine
type ConverterConfig struct {
	ConverterType  string // gotenberg or soffice
	GotenbergURL   string
	SofficePath    string
	ConvertWorkers int
	ConvertTimeout time.Duration
}

// RendererConfig selects and tunes the PDF to image engine
type RendererConfig struct {
	RendererType  string // pdfium or fitz
	ImageWidth    int
	ImageQuality  int
	RenderWorkers int
}

// FetchConfig holds the settings of the remote retrieval adapters
type FetchConfig struct {
	FetchTimeout time.Duration
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3Region     string
	S3Secure     bool
	GCSEnabled   bool
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvDuration gets a duration environment variable (eg "90s") with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	serverConfigLive := Load()

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)
	logger.Info("Preview configuration loaded",
		"fileDir", serverConfigLive.FileDir,
		"cacheEnabled", serverConfigLive.CacheEnabled,
		"deleteSourceFile", serverConfigLive.DeleteSourceFile,
		"officeTypeWeb", serverConfigLive.OfficeTypeWeb,
		"converter", serverConfigLive.ConverterType,
		"renderer", serverConfigLive.RendererType)

	return serverConfigLive, logger
}

// Load reads the configuration from the environment without touching the logger
func Load() ServerConfig {
	serverConfigLive := ServerConfig{}

	// Database configuration
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "preview")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "databases/preview.sqlite")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")

	// Artifact storage
	fileDir := filepath.ToSlash(getEnv("FILE_DIR", "files"))
	fileDirAbs, err := filepath.Abs(fileDir)
	if err != nil {
		if Logger != nil {
			Logger.Error("Failed creating absolute path for file directory", "error", err)
		}
		fileDirAbs = fileDir
	}
	serverConfigLive.FileDir = fileDirAbs
	serverConfigLive.BaseURL = strings.TrimSuffix(getEnv("BASE_URL", "/files"), "/")

	// Retention policy
	serverConfigLive.CacheEnabled = getEnvBool("CACHE_ENABLED", true)
	serverConfigLive.DeleteSourceFile = getEnvBool("DELETE_SOURCE_FILE", true)
	serverConfigLive.OfficeTypeWeb = strings.EqualFold(getEnv("OFFICE_TYPE_WEB", "web"), "web")
	serverConfigLive.OfficePreview = getEnv("OFFICE_PREVIEW_TYPE", "image-gallery")

	// Engines
	serverConfigLive.ConverterType = getEnv("CONVERTER_TYPE", "gotenberg")
	serverConfigLive.GotenbergURL = strings.TrimSuffix(getEnv("GOTENBERG_URL", "http://localhost:3000"), "/")
	serverConfigLive.SofficePath = getEnv("SOFFICE_PATH", "/usr/bin/soffice")
	serverConfigLive.ConvertWorkers = getEnvInt("CONVERT_WORKERS", 1)
	serverConfigLive.ConvertTimeout = getEnvDuration("CONVERT_TIMEOUT", 120*time.Second)
	serverConfigLive.RendererType = getEnv("RENDERER_TYPE", "pdfium")
	serverConfigLive.ImageWidth = getEnvInt("IMAGE_WIDTH", 1280)
	serverConfigLive.ImageQuality = getEnvInt("IMAGE_QUALITY", 85)
	serverConfigLive.RenderWorkers = getEnvInt("RENDER_WORKERS", 2)

	// Retrieval
	serverConfigLive.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 60*time.Second)
	serverConfigLive.S3Endpoint = getEnv("S3_ENDPOINT", "")
	serverConfigLive.S3AccessKey = getEnv("S3_ACCESS_KEY", "")
	serverConfigLive.S3SecretKey = getEnv("S3_SECRET_KEY", "")
	serverConfigLive.S3Region = getEnv("S3_REGION", "")
	serverConfigLive.S3Secure = getEnvBool("S3_SECURE", true)
	serverConfigLive.GCSEnabled = getEnvBool("GCS_ENABLED", false)

	if serverConfigLive.ConvertWorkers < 1 {
		serverConfigLive.ConvertWorkers = 1
	}
	if serverConfigLive.RenderWorkers < 1 {
		serverConfigLive.RenderWorkers = 1
	}

	return serverConfigLive
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "info")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "stdout")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stderr
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "preview.log")))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating log file path: %v\n", err)
			logWriter = os.Stderr
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
				logWriter = os.Stderr
			} else {
				logWriter = logFile
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// CheckExecutable verifies that an executable exists at the given path
func CheckExecutable(path string, logger *slog.Logger) error {
	info, err := os.Stat(path)
	if err != nil {
		logger.Error("Cannot find executable at location specified", "path", path)
		return err
	}
	if info.IsDir() {
		logger.Error("Executable path is a directory", "path", path)
		return fmt.Errorf("executable path is a directory: %s", path)
	}
	logger.Debug("Executable found", "path", path)
	return nil
}
