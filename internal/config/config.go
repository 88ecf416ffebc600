package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all server configuration.
//
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
//	required: Must be provided (no default)
type Config struct {
	// Rendezvous listeners
	AuthAddr   string `env:"AMKJ_AUTH_ADDR" envDefault:":10500"`
	SecureAddr string `env:"AMKJ_SECURE_ADDR" envDefault:":10501"`
	// External address handed to clients at login
	ExternalAddress string `env:"AMKJ_EXTERNAL_ADDRESS" envDefault:"127.0.0.1"`
	SecurePort      uint16 `env:"AMKJ_SECURE_PORT" envDefault:"10501"`

	// Shared secrets
	SecurePassword string `env:"AMKJ_SECURE_PASSWORD,required"`
	AccessKey      string `env:"AMKJ_ACCESS_KEY" envDefault:"25dbf96a"`

	// Admin side channel
	AdminAddr   string `env:"AMKJ_ADMIN_ADDR" envDefault:":10502"`
	AdminAPIKey string `env:"AMKJ_ADMIN_API_KEY,required"`

	// External services
	FriendsURL    string `env:"AMKJ_FRIENDS_URL" envDefault:"http://127.0.0.1:10601"`
	FriendsAPIKey string `env:"AMKJ_FRIENDS_API_KEY" envDefault:""`
	AccountURL    string `env:"AMKJ_ACCOUNT_URL" envDefault:"http://127.0.0.1:10602"`
	AccountAPIKey string `env:"AMKJ_ACCOUNT_API_KEY" envDefault:""`

	// Persistence
	MongoURI string `env:"AMKJ_MONGO_URI" envDefault:"mongodb://127.0.0.1:27017"`
	Database string `env:"AMKJ_DATABASE" envDefault:"amkj"`

	// Collection names
	CountersCollection         string `env:"AMKJ_COUNTERS_COLLECTION" envDefault:"counters"`
	GatheringsCollection       string `env:"AMKJ_GATHERINGS_COLLECTION" envDefault:"gatherings"`
	SessionsCollection         string `env:"AMKJ_SESSIONS_COLLECTION" envDefault:"sessions"`
	TournamentsCollection      string `env:"AMKJ_TOURNAMENTS_COLLECTION" envDefault:"tournaments"`
	TournamentScoresCollection string `env:"AMKJ_TOURNAMENT_SCORES_COLLECTION" envDefault:"tournaments_scores"`
	CommonDataCollection       string `env:"AMKJ_COMMONDATA_COLLECTION" envDefault:"commondata"`
	RankingsCollection         string `env:"AMKJ_RANKINGS_COLLECTION" envDefault:"rankings"`
	DataStoreCollection        string `env:"AMKJ_DATASTORE_COLLECTION" envDefault:"datastore"`
	StatusCollection           string `env:"AMKJ_STATUS_COLLECTION" envDefault:"status"`

	// Counter store
	RedisURI string `env:"AMKJ_REDIS_URI" envDefault:"redis://127.0.0.1:6379"`

	// Object store
	BucketName string `env:"AMKJ_BUCKET_NAME" envDefault:"amkj"`
	CDNDomain  string `env:"AMKJ_CDN_DOMAIN" envDefault:"b-cdn.net"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from a .env file and environment variables.
// Priority: ENV vars > .env file > defaults. A missing .env file is fine;
// a missing required variable is not.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
