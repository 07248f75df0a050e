package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"qa-escrow/internal/utils"
)

// Custody backends.
const (
	CustodyModeMemory = "memory"
	CustodyModeSolana = "solana"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const defaultConfigPath = "configs/config.yaml"

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	App      AppConfig      `yaml:"app"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Solana   SolanaConfig   `yaml:"solana"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"name"`
	SQLitePath string `yaml:"sqlitePath"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret      string        `yaml:"jwtSecret"`
	RateLimitRPS   float64       `yaml:"rateLimitRps"`
	RateLimitBurst int           `yaml:"rateLimitBurst"`
	LoginNonceTTL  time.Duration `yaml:"loginNonceTtl"`
}

// LedgerConfig holds the marketplace rules
type LedgerConfig struct {
	OwnerAddress        string        `yaml:"owner"`
	MinDepositSOL       string        `yaml:"minDepositSol"`
	OverdueScanInterval time.Duration `yaml:"overdueScanInterval"`
}

// SolanaConfig holds custody settings
type SolanaConfig struct {
	Network          string `yaml:"network"`
	RPCURL           string `yaml:"rpcUrl"`
	EscrowPrivateKey string `yaml:"escrowPrivateKey"`
	CustodyMode      string `yaml:"custodyMode"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:     DriverPostgres,
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			DBName:     "qa_escrow",
			SQLitePath: "qa_escrow.db",
		},
		Server: ServerConfig{
			Port: "8080",
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173", // Vite dev server
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			},
		},
		App: AppConfig{
			RateLimitRPS:   2,
			RateLimitBurst: 10,
			LoginNonceTTL:  5 * time.Minute,
		},
		Ledger: LedgerConfig{
			MinDepositSOL:       "0.1",
			OverdueScanInterval: time.Minute,
		},
		Solana: SolanaConfig{
			Network:     "devnet",
			CustodyMode: CustodyModeMemory,
		},
	}
}

// Load loads configuration from .env, an optional YAML file and environment
// variables, in that order of precedence from lowest to highest.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := Default()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = defaultConfigPath
	}
	if err := config.mergeFile(path, os.Getenv("CONFIG_FILE") != ""); err != nil {
		return nil, err
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// mergeFile overlays the YAML file at path. Keys missing from the file keep
// their current values. A missing file is an error only when required.
func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SQLitePath = getEnv("DB_SQLITE_PATH", c.Database.SQLitePath)

	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	// Add additional frontend URL from environment if provided
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, frontendURL)
	}

	c.App.JWTSecret = getEnv("JWT_SECRET", c.App.JWTSecret)
	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		rps, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", raw, err)
		}
		c.App.RateLimitRPS = rps
	}
	if raw := os.Getenv("RATE_LIMIT_BURST"); raw != "" {
		burst, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST %q: %w", raw, err)
		}
		c.App.RateLimitBurst = burst
	}
	if raw := os.Getenv("LOGIN_NONCE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid LOGIN_NONCE_TTL %q: %w", raw, err)
		}
		c.App.LoginNonceTTL = ttl
	}

	c.Ledger.OwnerAddress = getEnv("LEDGER_OWNER", c.Ledger.OwnerAddress)
	c.Ledger.MinDepositSOL = getEnv("MIN_DEPOSIT_SOL", c.Ledger.MinDepositSOL)
	if raw := os.Getenv("OVERDUE_SCAN_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid OVERDUE_SCAN_INTERVAL %q: %w", raw, err)
		}
		c.Ledger.OverdueScanInterval = interval
	}

	c.Solana.Network = getEnv("SOLANA_NETWORK", c.Solana.Network)
	c.Solana.RPCURL = getEnv("SOLANA_RPC_URL", c.Solana.RPCURL)
	c.Solana.EscrowPrivateKey = getEnv("ESCROW_WALLET_PRIVATE_KEY", c.Solana.EscrowPrivateKey)
	c.Solana.CustodyMode = strings.ToLower(getEnv("CUSTODY_MODE", c.Solana.CustodyMode))
	return nil
}

// Validate checks required fields and cross-field rules
func (c *Config) Validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Ledger.OwnerAddress == "" {
		return fmt.Errorf("LEDGER_OWNER is required")
	}

	minDeposit, err := c.MinDepositLamports()
	if err != nil {
		return err
	}
	if minDeposit == 0 {
		return fmt.Errorf("minimum deposit must be greater than zero")
	}
	if c.Ledger.OverdueScanInterval <= 0 {
		return fmt.Errorf("overdue scan interval must be positive")
	}
	if c.App.LoginNonceTTL <= 0 {
		return fmt.Errorf("login nonce TTL must be positive")
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Solana.CustodyMode {
	case CustodyModeMemory:
	case CustodyModeSolana:
		if c.Solana.EscrowPrivateKey == "" {
			return fmt.Errorf("ESCROW_WALLET_PRIVATE_KEY is required in solana custody mode")
		}
	default:
		return fmt.Errorf("unsupported custody mode %q", c.Solana.CustodyMode)
	}
	return nil
}

// MinDepositLamports returns the configured minimum deposit in lamports
func (c *Config) MinDepositLamports() (uint64, error) {
	lamports, err := utils.ParseSOL(c.Ledger.MinDepositSOL)
	if err != nil {
		return 0, fmt.Errorf("invalid minimum deposit: %w", err)
	}
	return lamports, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
