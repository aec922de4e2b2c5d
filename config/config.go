package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting the service needs. Load validates the
// required settings up front so a misconfigured process dies at startup
// instead of mid-notification.
type Config struct {
	TargetUsers []string

	SheetID    string
	SheetRange string
	SheetName  string

	WebhookURL string

	// CredentialsFile points at the service account JSON used to impersonate
	// target users. CredentialsJSON takes precedence when set.
	CredentialsFile string
	CredentialsJSON string

	MinLease time.Duration
	WatchTTL time.Duration

	Threshold int

	SlackWebhookURL string
	SlackMentions   string
	SlackCCMentions string

	Timezone string
	Location *time.Location

	// UserLabels maps a subject email to the label used in alerts, overriding
	// anything derivable from the event summary.
	UserLabels map[string]string

	RedisURL  string
	Port      string
	SweepCron string
}

// Load reads configuration from the environment. Missing required variables
// are reported together so operators fix them in one pass.
func Load() (*Config, error) {
	var missing []string

	users := splitList(os.Getenv("TARGET_USERS"))
	if len(users) == 0 {
		missing = append(missing, "TARGET_USERS")
	}

	sheetID := strings.TrimSpace(os.Getenv("SHEET_ID"))
	if sheetID == "" {
		missing = append(missing, "SHEET_ID")
	}

	webhookURL := strings.TrimSpace(os.Getenv("CALENDAR_WEBHOOK_URL"))
	if webhookURL == "" {
		missing = append(missing, "CALENDAR_WEBHOOK_URL")
	}

	credFile := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_FILE"))
	credJSON := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_JSON"))
	if credFile == "" && credJSON == "" {
		missing = append(missing, "GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required env variables: %s", strings.Join(missing, ", "))
	}

	minLease, err := secondsEnv("MIN_LEASE_SECONDS", 3600)
	if err != nil {
		return nil, err
	}
	watchTTL, err := secondsEnv("WATCH_TTL_SECONDS", 604800)
	if err != nil {
		return nil, err
	}

	threshold := 3
	if raw := strings.TrimSpace(os.Getenv("PTO_THRESHOLD")); raw != "" {
		threshold, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("PTO_THRESHOLD must be an integer: %w", err)
		}
	}

	tzName := getEnv("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE value %q: %w", tzName, err)
	}

	labels, err := loadUserLabels()
	if err != nil {
		return nil, err
	}

	return &Config{
		TargetUsers:     users,
		SheetID:         sheetID,
		SheetRange:      getEnv("SHEET_RANGE", "OOO_Events!A:E"),
		SheetName:       getEnv("SHEET_NAME", "OOO"),
		WebhookURL:      webhookURL,
		CredentialsFile: credFile,
		CredentialsJSON: credJSON,
		MinLease:        minLease,
		WatchTTL:        watchTTL,
		Threshold:       threshold,
		SlackWebhookURL: strings.TrimSpace(os.Getenv("SLACK_WEBHOOK_URL")),
		SlackMentions:   strings.TrimSpace(os.Getenv("SLACK_MENTIONS")),
		SlackCCMentions: strings.TrimSpace(os.Getenv("SLACK_CC_MENTIONS")),
		Timezone:        tzName,
		Location:        loc,
		UserLabels:      labels,
		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),
		Port:            getEnv("PORT", "8080"),
		SweepCron:       getEnv("SWEEP_CRON", "@hourly"),
	}, nil
}

// loadUserLabels merges USER_LABELS_JSON (inline JSON object) with
// USER_LABELS_FILE (YAML mapping). The file wins on conflicting keys.
func loadUserLabels() (map[string]string, error) {
	labels := make(map[string]string)

	if raw := strings.TrimSpace(os.Getenv("USER_LABELS_JSON")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &labels); err != nil {
			return nil, fmt.Errorf("USER_LABELS_JSON must be a valid JSON object: %w", err)
		}
	}

	if path := strings.TrimSpace(os.Getenv("USER_LABELS_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read USER_LABELS_FILE: %w", err)
		}
		fileLabels := make(map[string]string)
		if err := yaml.Unmarshal(data, &fileLabels); err != nil {
			return nil, fmt.Errorf("parse USER_LABELS_FILE: %w", err)
		}
		for k, v := range fileLabels {
			labels[k] = v
		}
	}

	return labels, nil
}

func secondsEnv(key string, def int64) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return time.Duration(def) * time.Second, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer number of seconds: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	seen := make(map[string]struct{})
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
