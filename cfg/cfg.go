package cfg

type (
	App struct {
		Name    string
		Version string
	}

	Mysql struct {
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	Sqlite struct {
		Path string
	}

	GiteeApi struct {
		// Gitee site, used to build the origin of every fetched item
		SiteUrl           string
		ApiUrl            string
		RefreshTokenUrl   string
		AccessToken       string
		RefreshToken      bool
		RequestsPerSecond int
		ThrottleDelay     int
		RateLimitResetMin int
		TimeoutSec        int
	}

	Fetch struct {
		Owner           string
		Repository      string
		Categories      []string
		PerPage         int
		MaxRetries      int
		SleepTime       int
		ExcludeUserData bool
		SkipMalformed   bool
		// Sink is where fetched items go: "mysql" or "kafka"
		Sink string
	}

	Checkpoint struct {
		// Driver is one of "mysql", "sqlite", "file"
		Driver string
		File   string
	}

	Producer struct {
		TopicIssue       string
		TopicPullRequest string
		TopicRepository  string
	}

	Kafka struct {
		Brokers  []string
		GroupID  string
		Producer Producer
	}

	Server struct {
		Port int
	}

	Log struct {
		Level string
	}
)

type Config struct {
	App        App
	Mysql      Mysql
	Sqlite     Sqlite
	GiteeApi   GiteeApi
	Fetch      Fetch
	Checkpoint Checkpoint
	Kafka      Kafka
	Server     Server
	Log        Log
}

// Topic returns the kafka topic configured for an item category.
func (k Kafka) Topic(category string) string {
	switch category {
	case "issue":
		return k.Producer.TopicIssue
	case "pull_request":
		return k.Producer.TopicPullRequest
	case "repository":
		return k.Producer.TopicRepository
	}
	return ""
}
