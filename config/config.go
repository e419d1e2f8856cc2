package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Debug            bool   `envconfig:"debug"`
	Port             int    `envconfig:"port" default:"8080"`
	Env              string `envconfig:"env"`
	Host             string `envconfig:"host"`
	PostgresHost     string `envconfig:"postgres_host"`
	PostgresUser     string `envconfig:"postgres_user"`
	PostgresDB       string `envconfig:"postgres_db"`
	PostgresPort     int    `envconfig:"postgres_port"`
	PostgresPassword string `envconfig:"postgres_password"`
	JWTSecret        string `envconfig:"jwt_secret"`

	// Websocket heartbeat. A connection missing two consecutive pings is
	// force-closed by the read deadline.
	PingInterval time.Duration `envconfig:"ping_interval" default:"30s"`
	WriteWait    time.Duration `envconfig:"write_wait" default:"10s"`

	// Typing presence.
	TypingTTL             time.Duration `envconfig:"typing_ttl" default:"10s"`
	PresenceSweepInterval time.Duration `envconfig:"presence_sweep_interval" default:"3s"`

	// Message history pagination.
	MessagePageSize    int `envconfig:"message_page_size" default:"50"`
	MessagePageSizeMax int `envconfig:"message_page_size_max" default:"100"`

	// How long soft-deleted messages keep their tombstone row before the
	// purge job removes them for good.
	MessageRetention time.Duration `envconfig:"message_retention" default:"720h"`

	// Attachments.
	AttachmentMaxBytes int64  `envconfig:"attachment_max_bytes" default:"10485760"`
	AwsRegion          string `envconfig:"aws_region"`
	AwsAccessKeyID     string `envconfig:"aws_access_key_id"`
	AwsSecretAccessKey string `envconfig:"aws_secret_access_key"`
	S3Bucket           string `envconfig:"s3_bucket"`

	// Offline notification channels.
	FirebaseCredentialsFile string `envconfig:"firebase_credentials_file" default:"./google-services.json"`
	MailgunApiKey           string `envconfig:"mg_public_api_key"`
	MgDomain                string `envconfig:"mg_domain"`
	MgEmailFrom             string `envconfig:"email_from"`

	AccessControlAllowOrigin string `envconfig:"access_control_allow_origin"`
}

// PongWait is how long the read side waits for life signs before the
// connection is declared dead: two missed pings plus write slack.
func (c *Config) PongWait() time.Duration {
	return 2*c.PingInterval + c.WriteWait
}

func Load() (*Config, error) {
	env := os.Getenv("GIN_MODE")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("chat", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}
