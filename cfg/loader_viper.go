package cfg

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "GITEE"

type ViperLoader struct {
	v                     *viper.Viper
	configFile            string
	watch                 bool
	mu                    sync.RWMutex
	once                  sync.Once
	cfg                   *Config
	configChangeCallbacks []func(*Config)
}

type ViperOption func(*ViperLoader)

// WithConfigFile reads an explicit file instead of cfg/yaml/mode.yaml.
func WithConfigFile(path string) ViperOption {
	return func(yl *ViperLoader) {
		yl.configFile = path
	}
}

// WithWatch reloads the config when the file changes on disk.
func WithWatch(watch bool) ViperOption {
	return func(yl *ViperLoader) {
		yl.watch = watch
	}
}

func NewViperLoader(opts ...ViperOption) (*ViperLoader, error) {
	yl := &ViperLoader{
		v:                     viper.New(),
		configChangeCallbacks: make([]func(*Config), 0),
	}
	for _, opt := range opts {
		opt(yl)
	}
	return yl, nil
}

func (yl *ViperLoader) Load() (*Config, error) {
	var err error
	yl.once.Do(func() {
		err = yl.loadConfig()
		if err == nil && yl.IsWatchChange() {
			yl.v.OnConfigChange(func(e fsnotify.Event) {
				fmt.Printf("[INFO][CONFIG] Config file changed: %s\n", e.Name)
				if errReload := yl.reloadConfig(); errReload != nil {
					fmt.Printf("[ERROR][CONFIG] Failed to reload config: %v\n", errReload)
				}
			})
			yl.v.WatchConfig()
		}
	})

	if err != nil {
		return nil, err
	}

	yl.mu.RLock()
	defer yl.mu.RUnlock()
	return yl.cfg, nil
}

func (yl *ViperLoader) IsWatchChange() bool {
	return yl.watch
}

func (yl *ViperLoader) RegisterConfigChangeCallback(callback func(*Config)) {
	yl.mu.Lock()
	yl.configChangeCallbacks = append(yl.configChangeCallbacks, callback)
	yl.mu.Unlock()
}

func (yl *ViperLoader) setDefaults() {
	defaults, _ := NewMockLoader()
	d, _ := defaults.Load()

	yl.v.SetDefault("app.name", d.App.Name)
	yl.v.SetDefault("app.version", d.App.Version)
	yl.v.SetDefault("mysql.host", d.Mysql.Host)
	yl.v.SetDefault("mysql.port", d.Mysql.Port)
	yl.v.SetDefault("mysql.username", d.Mysql.Username)
	yl.v.SetDefault("mysql.password", d.Mysql.Password)
	yl.v.SetDefault("mysql.database", d.Mysql.Database)
	yl.v.SetDefault("mysql.maxidleconnection", d.Mysql.MaxIdleConnection)
	yl.v.SetDefault("mysql.maxopenconnection", d.Mysql.MaxOpenConnection)
	yl.v.SetDefault("mysql.maxlifetimeconnection", d.Mysql.MaxLifeTimeConnection)
	yl.v.SetDefault("sqlite.path", d.Sqlite.Path)
	yl.v.SetDefault("giteeapi.siteurl", d.GiteeApi.SiteUrl)
	yl.v.SetDefault("giteeapi.apiurl", d.GiteeApi.ApiUrl)
	yl.v.SetDefault("giteeapi.refreshtokenurl", d.GiteeApi.RefreshTokenUrl)
	yl.v.SetDefault("giteeapi.accesstoken", "")
	yl.v.SetDefault("giteeapi.refreshtoken", false)
	yl.v.SetDefault("giteeapi.requestspersecond", d.GiteeApi.RequestsPerSecond)
	yl.v.SetDefault("giteeapi.throttledelay", d.GiteeApi.ThrottleDelay)
	yl.v.SetDefault("giteeapi.ratelimitresetmin", d.GiteeApi.RateLimitResetMin)
	yl.v.SetDefault("giteeapi.timeoutsec", d.GiteeApi.TimeoutSec)
	yl.v.SetDefault("fetch.owner", "")
	yl.v.SetDefault("fetch.repository", "")
	yl.v.SetDefault("fetch.categories", d.Fetch.Categories)
	yl.v.SetDefault("fetch.perpage", d.Fetch.PerPage)
	yl.v.SetDefault("fetch.maxretries", d.Fetch.MaxRetries)
	yl.v.SetDefault("fetch.sleeptime", d.Fetch.SleepTime)
	yl.v.SetDefault("fetch.excludeuserdata", false)
	yl.v.SetDefault("fetch.skipmalformed", false)
	yl.v.SetDefault("fetch.sink", d.Fetch.Sink)
	yl.v.SetDefault("checkpoint.driver", d.Checkpoint.Driver)
	yl.v.SetDefault("checkpoint.file", "")
	yl.v.SetDefault("kafka.groupid", d.Kafka.GroupID)
	yl.v.SetDefault("kafka.producer.topicissue", d.Kafka.Producer.TopicIssue)
	yl.v.SetDefault("kafka.producer.topicpullrequest", d.Kafka.Producer.TopicPullRequest)
	yl.v.SetDefault("kafka.producer.topicrepository", d.Kafka.Producer.TopicRepository)
	yl.v.SetDefault("server.port", d.Server.Port)
	yl.v.SetDefault("log.level", d.Log.Level)
}

func (yl *ViperLoader) loadConfig() error {
	yl.setDefaults()
	if yl.configFile != "" {
		yl.v.SetConfigFile(yl.configFile)
	} else {
		yl.v.AddConfigPath("cfg/yaml")
		yl.v.SetConfigName("mode")
		yl.v.SetConfigType("yaml")
	}

	// GITEE_GITEEAPI_ACCESSTOKEN overrides giteeapi.accesstoken
	yl.v.SetEnvPrefix(envPrefix)
	yl.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	yl.v.AutomaticEnv()

	if err := yl.v.ReadInConfig(); err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yl.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to unmarshal config: %w", err)
	}

	yl.mu.Lock()
	yl.cfg = cfg
	yl.mu.Unlock()

	return nil
}

func (yl *ViperLoader) reloadConfig() error {
	cfg := &Config{}
	if err := yl.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to unmarshal config during reload: %w", err)
	}

	yl.mu.Lock()
	yl.cfg = cfg

	// Notify all registered callbacks
	callbacks := make([]func(*Config), len(yl.configChangeCallbacks))
	copy(callbacks, yl.configChangeCallbacks)
	yl.mu.Unlock()
	for _, callback := range callbacks {
		go callback(cfg)
	}

	fmt.Println("[INFO][CONFIG] Configuration reloaded successfully")
	return nil
}
