package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Messages      MessagesConfig      `mapstructure:"messages"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Parser        ParserConfig        `mapstructure:"parser"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Questionnaire QuestionnaireConfig `mapstructure:"questionnaire"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig selects the relational store for conversations and answers.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres or sqlite
	URL      string `mapstructure:"url"`    // full DSN, overrides the discrete fields
	Path     string `mapstructure:"path"`   // sqlite file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// AWSConfig is shared by the SQS, DynamoDB, S3 and Transcribe clients.
// Endpoint points every client at a local emulator when set.
type AWSConfig struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type QueueConfig struct {
	Provider string `mapstructure:"provider"` // sqs or memory

	TranscriptionURL           string `mapstructure:"transcription_url"`
	TranscriptionDeadLetterURL string `mapstructure:"transcription_dead_letter_url"`
	ParserURL                  string `mapstructure:"parser_url"`
	ParserDeadLetterURL        string `mapstructure:"parser_dead_letter_url"`

	WaitTime    time.Duration `mapstructure:"wait_time"`
	MaxMessages int           `mapstructure:"max_messages"`

	TranscriptionVisibility time.Duration `mapstructure:"transcription_visibility"`
	ParserVisibility        time.Duration `mapstructure:"parser_visibility"`
}

// MessagesConfig selects the document store holding conversation messages.
type MessagesConfig struct {
	Provider        string `mapstructure:"provider"` // dynamodb, mongo or memory
	Table           string `mapstructure:"table"`
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`
}

// StorageConfig describes the bucket holding transcript output.
type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type TranscriptionConfig struct {
	Provider     string        `mapstructure:"provider"` // aws, http or mock
	LanguageCode string        `mapstructure:"language_code"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	MaxSpeakers  int           `mapstructure:"max_speakers"`
	OutputBucket string        `mapstructure:"output_bucket"`
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
}

type ParserConfig struct {
	Segmentation string `mapstructure:"segmentation"` // single, alternating or diarized
	Speakers     int    `mapstructure:"speakers"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
}

type QuestionnaireConfig struct {
	Confidence          float64 `mapstructure:"confidence"`
	AnsweredThreshold   float64 `mapstructure:"answered_threshold"`
	DefaultInstructions string  `mapstructure:"default_instructions"`
}

type IngestConfig struct {
	SupportedExtensions []string `mapstructure:"supported_extensions"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and deployment-specific values use conventional variable names.
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("aws.region", "AWS_REGION")
	v.BindEnv("aws.endpoint", "AWS_ENDPOINT_URL")
	v.BindEnv("aws.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("aws.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("queue.transcription_url", "TRANSCRIPTION_QUEUE_URL")
	v.BindEnv("queue.parser_url", "PARSER_QUEUE_URL")
	v.BindEnv("messages.table", "MESSAGES_TABLE")
	v.BindEnv("messages.mongo_uri", "MONGO_URI")
	v.BindEnv("transcription.output_bucket", "TRANSCRIPTION_OUTPUT_BUCKET")
	v.BindEnv("transcription.api_key", "TRANSCRIPTION_API_KEY")
	v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.LLM.ResolveEnvVars()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/callinsight.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "callinsight")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("aws.region", "us-east-1")

	v.SetDefault("queue.provider", "sqs")
	v.SetDefault("queue.wait_time", 20*time.Second)
	v.SetDefault("queue.max_messages", 1)
	v.SetDefault("queue.transcription_visibility", 15*time.Minute)
	v.SetDefault("queue.parser_visibility", 10*time.Minute)

	v.SetDefault("messages.provider", "dynamodb")
	v.SetDefault("messages.table", "ChatsMessages")
	v.SetDefault("messages.mongo_database", "callinsight")
	v.SetDefault("messages.mongo_collection", "messages")

	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.use_ssl", true)

	v.SetDefault("transcription.provider", "aws")
	v.SetDefault("transcription.language_code", "en-US")
	v.SetDefault("transcription.poll_interval", 5*time.Second)
	v.SetDefault("transcription.timeout", 10*time.Minute)
	v.SetDefault("transcription.max_attempts", 3)
	v.SetDefault("transcription.max_speakers", 10)

	v.SetDefault("parser.segmentation", "single")
	v.SetDefault("parser.speakers", 2)
	v.SetDefault("parser.max_attempts", 5)

	v.SetDefault("llm.provider", "openai-compatible")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 3)

	v.SetDefault("questionnaire.confidence", 0.8)
	v.SetDefault("questionnaire.answered_threshold", 0.5)
	v.SetDefault("questionnaire.default_instructions", "Provide a clear and concise answer.")

	v.SetDefault("ingest.supported_extensions", []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".mp4", ".webm"})

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "conversation-events")

	v.SetDefault("metrics.port", 9090)
}
