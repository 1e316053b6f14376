package cfg

import (
	"os"
	"path/filepath"
	"testing"
)

const testYaml = `
giteeApi:
  apiUrl: http://127.0.0.1:9999/api/v5
fetch:
  owner: chaoss
  repository: grimoirelab
  perPage: 50
  categories: [issue]
checkpoint:
  driver: file
  file: /tmp/checkpoints.yaml
kafka:
  brokers: ["broker-1:9092", "broker-2:9092"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mode.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestViperLoader_Load(t *testing.T) {
	loader, _ := NewViperLoader(WithConfigFile(writeConfig(t, testYaml)))
	config, err := loader.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.GiteeApi.ApiUrl != "http://127.0.0.1:9999/api/v5" {
		t.Errorf("apiurl = %q", config.GiteeApi.ApiUrl)
	}
	if config.Fetch.Owner != "chaoss" || config.Fetch.Repository != "grimoirelab" {
		t.Errorf("owner/repo = %q/%q", config.Fetch.Owner, config.Fetch.Repository)
	}
	if config.Fetch.PerPage != 50 {
		t.Errorf("perpage = %d, want 50", config.Fetch.PerPage)
	}
	if len(config.Fetch.Categories) != 1 || config.Fetch.Categories[0] != "issue" {
		t.Errorf("categories = %v", config.Fetch.Categories)
	}
	if len(config.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", config.Kafka.Brokers)
	}
	// untouched keys fall back to defaults
	if config.Fetch.MaxRetries != 5 {
		t.Errorf("maxretries = %d, want default 5", config.Fetch.MaxRetries)
	}
	if config.Kafka.Producer.TopicIssue != "gitee.issues" {
		t.Errorf("topic = %q", config.Kafka.Producer.TopicIssue)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestViperLoader_EnvOverride(t *testing.T) {
	t.Setenv("GITEE_GITEEAPI_ACCESSTOKEN", "secret-token")
	loader, _ := NewViperLoader(WithConfigFile(writeConfig(t, testYaml)))
	config, err := loader.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.GiteeApi.AccessToken != "secret-token" {
		t.Errorf("access token = %q, want env value", config.GiteeApi.AccessToken)
	}
}

func TestViperLoader_MissingFile(t *testing.T) {
	loader, _ := NewViperLoader(WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml")))
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		ml, _ := NewMockLoader()
		c, _ := ml.Load()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero per page", func(c *Config) { c.Fetch.PerPage = 0 }, true},
		{"per page too large", func(c *Config) { c.Fetch.PerPage = 101 }, true},
		{"unknown driver", func(c *Config) { c.Checkpoint.Driver = "redis" }, true},
		{"file driver without file", func(c *Config) { c.Checkpoint.Driver = "file" }, true},
		{"kafka sink without brokers", func(c *Config) { c.Fetch.Sink = "kafka" }, true},
		{"kafka sink with brokers", func(c *Config) {
			c.Fetch.Sink = "kafka"
			c.Kafka.Brokers = []string{"b:9092"}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKafka_Topic(t *testing.T) {
	ml, _ := NewMockLoader()
	c, _ := ml.Load()
	if got := c.Kafka.Topic("pull_request"); got != "gitee.pull_requests" {
		t.Errorf("topic = %q", got)
	}
	if got := c.Kafka.Topic("unknown"); got != "" {
		t.Errorf("topic = %q, want empty", got)
	}
}
