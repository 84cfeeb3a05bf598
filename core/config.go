package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		Server    ServerConfig
		Database  DatabaseConfig
		Fees      FeesConfig
		Scheduler SchedulerConfig
		SMS       SMSConfig
	}

	ServerConfig struct {
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	FeesConfig struct {
		// AcademicYears is ordered; every new student gets a ledger for each of them.
		AcademicYears []string
		Currency      string
	}

	SchedulerConfig struct {
		TickInterval time.Duration
		MaxLeadHours int
		Concurrency  int // parallel dispatches per branch broadcast
	}

	SMSConfig struct {
		GatewayURL string
		APIKey     string
		Sender     string
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// HasAcademicYear reports whether year is one of the configured academic years.
func (fc FeesConfig) HasAcademicYear(year string) bool {
	for _, y := range fc.AcademicYears {
		if y == year {
			return true
		}
	}
	return false
}

// NewConfig loads the app configuration from the environment (and `config/.env.<env>` if it exists).
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Fee Portal")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("secretKey", "x9r$k2!dq7+u=ms&vpe4(b)8z#w*l1(#hf3c^@tna5o6jy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "feeportal")
	v.SetDefault("database.user", "feeportal")
	v.SetDefault("database.password", "feeportal")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("fees.academicYears", []string{"2022-23", "2023-24", "2024-25", "2025-26"})
	v.SetDefault("fees.currency", "INR")

	v.SetDefault("scheduler.tickInterval", time.Minute)
	v.SetDefault("scheduler.maxLeadHours", 168)
	v.SetDefault("scheduler.concurrency", 8)

	v.SetDefault("sms.gatewayURL", "")
	v.SetDefault("sms.apiKey", "")
	v.SetDefault("sms.sender", "FEEPORTAL")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Fees: FeesConfig{
			AcademicYears: v.GetStringSlice("fees.academicYears"),
			Currency:      v.GetString("fees.currency"),
		},
		Scheduler: SchedulerConfig{
			TickInterval: v.GetDuration("scheduler.tickInterval"),
			MaxLeadHours: v.GetInt("scheduler.maxLeadHours"),
			Concurrency:  v.GetInt("scheduler.concurrency"),
		},
		SMS: SMSConfig{
			GatewayURL: v.GetString("sms.gatewayURL"),
			APIKey:     v.GetString("sms.apiKey"),
			Sender:     v.GetString("sms.sender"),
		},
	}
}

// String hides secrets; handy when logging the config at startup.
func (c Config) String() string {
	return fmt.Sprintf("%s (env=%s build=%s debug=%t years=%v)", c.AppName, c.Env, c.Build, c.Debug, c.Fees.AcademicYears)
}
