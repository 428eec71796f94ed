// ============================================================================
// backend/internal/shared/config.go
// Shared configuration management and environment variable helpers
// ============================================================================

package shared

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ============================================================================
// Configuration Structs
// ============================================================================

// ServiceConfig holds the configuration of the marks/exam service process
type ServiceConfig struct {
	ServiceName string
	HTTPPort    string
	GRPCPort    string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error

	// RequestTimeout bounds every HTTP request (chi Timeout middleware)
	RequestTimeout time.Duration

	// MongoDB Configuration
	MongoDB MongoConfig

	// Security Configuration
	Security SecurityConfig

	// CORS Configuration
	CORS CORSConfig

	// Exam cache (redis); disabled when Addr is empty
	Cache CacheConfig

	// Error reporting
	RollbarToken string

	// StrictTransitions enables the forward-only submission state machine
	StrictTransitions bool
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	JWTSecret  string
	BCryptCost int // used by the seeder only
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // in seconds
}

// CacheConfig holds the redis connection used for populated exam views
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// ============================================================================
// Configuration Loading Functions
// ============================================================================

// LoadEnv loads environment variables from .env file
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}

	if err := godotenv.Load(envFile); err != nil {
		log.Printf("Warning: %s file not found, using system environment variables", envFile)
		return err
	}

	log.Printf("Successfully loaded environment from %s", envFile)
	return nil
}

// newViper returns a viper instance with every default registered and the
// environment bound. An optional config.yaml in the working directory is read
// when present; environment variables always win over it.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("SERVICE_NAME", "lms-core")
	v.SetDefault("HTTP_PORT", DefaultHTTPPort)
	v.SetDefault("GRPC_PORT", DefaultGRPCPort)
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", 60*time.Second)

	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DB_NAME", "lms")
	v.SetDefault("MONGO_CONNECT_TIMEOUT", 20*time.Second)
	v.SetDefault("MONGO_MAX_POOL_SIZE", 50)
	v.SetDefault("MONGO_MIN_POOL_SIZE", 10)
	v.SetDefault("MONGO_MAX_IDLE_TIME", 30*time.Second)
	v.SetDefault("MONGO_USE_TRANSACTIONS", false)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("BCRYPT_COST", 10)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS,PATCH")
	v.SetDefault("CORS_ALLOWED_HEADERS", "Accept,Authorization,Content-Type,X-CSRF-Token")
	v.SetDefault("CORS_ALLOW_CREDENTIALS", true)
	v.SetDefault("CORS_MAX_AGE", 300)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("EXAM_CACHE_TTL", 5*time.Minute)

	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("SUBMISSION_STRICT_TRANSITIONS", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	}

	v.AutomaticEnv()
	return v, nil
}

// LoadServiceConfig loads the service configuration from environment and config.yaml
func LoadServiceConfig(serviceName string) (*ServiceConfig, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	if serviceName == "" {
		serviceName = v.GetString("SERVICE_NAME")
	}

	config := &ServiceConfig{
		ServiceName:       serviceName,
		HTTPPort:          v.GetString("HTTP_PORT"),
		GRPCPort:          v.GetString("GRPC_PORT"),
		Environment:       v.GetString("ENVIRONMENT"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		RequestTimeout:    v.GetDuration("REQUEST_TIMEOUT"),
		RollbarToken:      v.GetString("ROLLBAR_TOKEN"),
		StrictTransitions: v.GetBool("SUBMISSION_STRICT_TRANSITIONS"),
	}

	// Load MongoDB configuration
	mongoURI := v.GetString("MONGO_URI")
	if mongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI environment variable is required")
	}

	config.MongoDB = MongoConfig{
		URI:             mongoURI,
		Database:        v.GetString("MONGO_DB_NAME"),
		ConnectTimeout:  v.GetDuration("MONGO_CONNECT_TIMEOUT"),
		MaxPoolSize:     uint64(v.GetInt("MONGO_MAX_POOL_SIZE")),
		MinPoolSize:     uint64(v.GetInt("MONGO_MIN_POOL_SIZE")),
		MaxIdleTime:     v.GetDuration("MONGO_MAX_IDLE_TIME"),
		UseTransactions: v.GetBool("MONGO_USE_TRANSACTIONS"),
	}

	// Load security configuration
	config.Security = SecurityConfig{
		JWTSecret:  v.GetString("JWT_SECRET"),
		BCryptCost: v.GetInt("BCRYPT_COST"),
	}

	config.CORS = CORSConfig{
		AllowedOrigins:   splitCSV(v.GetString("CORS_ALLOWED_ORIGINS")),
		AllowedMethods:   splitCSV(v.GetString("CORS_ALLOWED_METHODS")),
		AllowedHeaders:   splitCSV(v.GetString("CORS_ALLOWED_HEADERS")),
		AllowCredentials: v.GetBool("CORS_ALLOW_CREDENTIALS"),
		MaxAge:           v.GetInt("CORS_MAX_AGE"),
	}

	config.Cache = CacheConfig{
		Addr:     v.GetString("REDIS_ADDR"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		TTL:      v.GetDuration("EXAM_CACHE_TTL"),
	}

	if config.Security.JWTSecret == "" && serviceName != "seeder" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	return config, nil
}

// ============================================================================
// Environment Variable Helper Functions
// ============================================================================

// GetEnv retrieves an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv retrieves an integer environment variable or returns a default value
func GetIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// splitCSV splits a comma-separated list, dropping blanks
func splitCSV(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ============================================================================
// Configuration Validation
// ============================================================================

// ValidateServiceConfig validates service configuration
func ValidateServiceConfig(config *ServiceConfig) error {
	if config.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if config.HTTPPort == "" {
		return fmt.Errorf("HTTP port is required")
	}

	if config.GRPCPort == "" {
		return fmt.Errorf("gRPC port is required")
	}

	if config.MongoDB.URI == "" {
		return fmt.Errorf("MongoDB URI is required")
	}

	if config.MongoDB.Database == "" {
		return fmt.Errorf("MongoDB database name is required")
	}

	if config.Security.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	return nil
}

// ============================================================================
// Configuration Display (for debugging)
// ============================================================================

// PrintConfig prints configuration (sanitized) for debugging
func PrintConfig(config *ServiceConfig) {
	log.Println("=== Service Configuration ===")
	log.Printf("Service Name: %s", config.ServiceName)
	log.Printf("HTTP Port: %s", config.HTTPPort)
	log.Printf("gRPC Port: %s", config.GRPCPort)
	log.Printf("Environment: %s", config.Environment)
	log.Printf("Log Level: %s", GetLogLevel(config))
	log.Println("=== MongoDB Configuration ===")
	log.Printf("Database: %s", config.MongoDB.Database)
	log.Printf("Max Pool Size: %d", config.MongoDB.MaxPoolSize)
	log.Printf("Min Pool Size: %d", config.MongoDB.MinPoolSize)
	log.Printf("Transactions: %t", config.MongoDB.UseTransactions)
	log.Println("=== Exam Cache ===")
	if config.Cache.Addr == "" {
		log.Println("Redis: disabled")
	} else {
		log.Printf("Redis: %s (db %d, ttl %v)", config.Cache.Addr, config.Cache.DB, config.Cache.TTL)
	}
	log.Println("=== CORS Configuration ===")
	log.Printf("Allowed Origins: %v", config.CORS.AllowedOrigins)
	log.Printf("Allowed Methods: %v", config.CORS.AllowedMethods)
	log.Printf("Allow Credentials: %t", config.CORS.AllowCredentials)
	log.Printf("Strict submission transitions: %t", config.StrictTransitions)
	log.Printf("Error reporting: %t", config.RollbarToken != "")
	log.Println("=============================")
}

// ============================================================================
// Default Ports
// ============================================================================

const (
	DefaultHTTPPort = "8080"
	DefaultGRPCPort = "50051"
)

// ============================================================================
// Environment-Specific Configuration
// ============================================================================

// IsDevelopment checks if running in development environment
func IsDevelopment(config *ServiceConfig) bool {
	return config.Environment == "development"
}

// IsProduction checks if running in production environment
func IsProduction(config *ServiceConfig) bool {
	return config.Environment == "production"
}

// GetLogLevel returns the configured log level
func GetLogLevel(config *ServiceConfig) string {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[config.LogLevel] {
		return config.LogLevel
	}

	return "info" // Default
}
