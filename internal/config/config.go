package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	NotesBackendPostgres = "postgres"
	NotesBackendSQLite   = "sqlite"
)

type Config struct {
	Environment string

	MailArchiveGitDir string
	MailArchiveBranch string
	PublicInboxDir    string
	BootstrapCommit   string
	StateKey          string

	NotesBackend string
	SQLitePath   string
	DBHost       string
	DBPort       string
	DBUsername   string
	DBPassword   string
	DBName       string
	DBSSLMode    string

	GitHubToken      string
	GitHubAPIURL     string
	GitHubGraphQLURL string
	ForgeGitDir      string

	ListName       string
	ArchiveURL     string
	ReplyToThisURL string

	SMTPHost     string
	SMTPUser     string
	SMTPPassword string
	SMTPInsecure bool
}

func NewConfig() (*Config, error) {
	config := Load()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load reads the configuration from the environment without validating it.
// Commands that only need part of it (like send-mail) validate what they use.
func Load() *Config {
	env := os.Getenv("LISTBRIDGE_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	return &Config{
		Environment:       env,
		MailArchiveGitDir: os.Getenv("MAIL_ARCHIVE_GIT_DIR"),
		MailArchiveBranch: getEnvOrDefault("MAIL_ARCHIVE_BRANCH", "master"),
		PublicInboxDir:    os.Getenv("PUBLIC_INBOX_DIR"),
		BootstrapCommit:   getEnvOrDefault("LISTBRIDGE_BOOTSTRAP_COMMIT", "d41d9585ddfc49439af6a3660cc4879a0f873c5b"),
		StateKey:          getEnvOrDefault("LISTBRIDGE_STATE_KEY", "ffmpeg-devel@ffmpeg.org <-> ffgithub"),
		NotesBackend:      getEnvOrDefault("LISTBRIDGE_NOTES_BACKEND", NotesBackendPostgres),
		SQLitePath:        getEnvOrDefault("LISTBRIDGE_SQLITE_PATH", "listbridge.db"),
		DBHost:            getEnvOrDefault("LISTBRIDGE_DB_HOST", "localhost"),
		DBPort:            getEnvOrDefault("LISTBRIDGE_DB_PORT", "5432"),
		DBUsername:        getEnvOrDefault("LISTBRIDGE_DB_USER", "listbridge"),
		DBPassword:        os.Getenv("LISTBRIDGE_DB_PASSWORD"),
		DBName:            getEnvOrDefault("LISTBRIDGE_DB_NAME", "listbridge"),
		DBSSLMode:         getEnvOrDefault("LISTBRIDGE_DB_SSLMODE", "disable"),
		GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		GitHubAPIURL:      getEnvOrDefault("GITHUB_API_URL", "https://api.github.com"),
		GitHubGraphQLURL:  getEnvOrDefault("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql"),
		ForgeGitDir:       os.Getenv("FORGE_GIT_DIR"),
		ListName:          getEnvOrDefault("LISTBRIDGE_LIST_NAME", "FFmpeg"),
		ArchiveURL:        getEnvOrDefault("LISTBRIDGE_ARCHIVE_URL", "https://master.gitmailbox.com/ffmpegdev/"),
		ReplyToThisURL:    getEnvOrDefault("LISTBRIDGE_REPLY_TO_THIS_URL", "https://github.com/ffstaging/FFmpeg/wiki/Reply-To-This"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPUser:          os.Getenv("SMTP_USER"),
		SMTPPassword:      os.Getenv("SMTP_PASS"),
		SMTPInsecure:      os.Getenv("SMTP_INSECURE") == "true",
	}
}

func (c *Config) Validate() error {
	if c.MailArchiveGitDir == "" {
		return fmt.Errorf("MAIL_ARCHIVE_GIT_DIR is required")
	}

	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}

	switch c.NotesBackend {
	case NotesBackendPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("LISTBRIDGE_DB_PASSWORD is required")
		}
		if !isValidPort(c.DBPort) {
			return fmt.Errorf("LISTBRIDGE_DB_PORT is not a valid port number: %s", c.DBPort)
		}
	case NotesBackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("LISTBRIDGE_SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("LISTBRIDGE_NOTES_BACKEND must be %q or %q, got %q", NotesBackendPostgres, NotesBackendSQLite, c.NotesBackend)
	}

	return nil
}

// ValidateSMTP checks the settings the send-mail command needs.
func (c *Config) ValidateSMTP() error {
	if c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required")
	}
	if c.SMTPUser != "" && c.SMTPPassword == "" {
		return fmt.Errorf("SMTP_PASS is required when SMTP_USER is set")
	}
	return nil
}

func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUsername, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

func isValidPort(port string) bool {
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
