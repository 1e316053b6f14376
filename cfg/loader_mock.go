package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (ml *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "gitee-crawler",
			Version: "0.1.0",
		},

		// Mysql
		Mysql: Mysql{
			Host:                  "127.0.0.1",
			Password:              "root",
			Username:              "root",
			Port:                  "3306",
			Database:              "gitee_crawler",
			MaxIdleConnection:     10,
			MaxOpenConnection:     100,
			MaxLifeTimeConnection: 3600,
		},

		Sqlite: Sqlite{
			Path: "gitee_crawler.db",
		},

		// GiteeApi
		GiteeApi: GiteeApi{
			SiteUrl:           "https://gitee.com",
			ApiUrl:            "https://gitee.com/api/v5",
			RefreshTokenUrl:   "https://gitee.com/oauth/token",
			RequestsPerSecond: 5,
			ThrottleDelay:     200,
			RateLimitResetMin: 1,
			TimeoutSec:        30,
		},

		Fetch: Fetch{
			Categories: []string{"issue", "pull_request"},
			PerPage:    100,
			MaxRetries: 5,
			SleepTime:  1,
			Sink:       "mysql",
		},

		Checkpoint: Checkpoint{
			Driver: "sqlite",
		},

		Kafka: Kafka{
			GroupID: "gitee-crawler",
			Producer: Producer{
				TopicIssue:       "gitee.issues",
				TopicPullRequest: "gitee.pull_requests",
				TopicRepository:  "gitee.repositories",
			},
		},

		Server: Server{
			Port: 8080,
		},

		Log: Log{
			Level: "info",
		},
	}, nil
}
