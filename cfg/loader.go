package cfg

import "errors"

type Loader interface {
	Load() (*Config, error)
}

func NewLoader(l Loader) (Loader, error) {
	if l == nil {
		return nil, errors.New("[ERROR][CONFIG] nil loader")
	}
	return l, nil
}

// Validate checks the values a fetch run cannot work without.
func (c *Config) Validate() error {
	var errs []error
	if c.GiteeApi.ApiUrl == "" {
		errs = append(errs, errors.New("giteeapi.apiurl is required"))
	}
	if c.Fetch.PerPage <= 0 || c.Fetch.PerPage > 100 {
		errs = append(errs, errors.New("fetch.perpage must be between 1 and 100"))
	}
	switch c.Checkpoint.Driver {
	case "mysql", "sqlite":
	case "file":
		if c.Checkpoint.File == "" {
			errs = append(errs, errors.New("checkpoint.file is required for the file driver"))
		}
	default:
		errs = append(errs, errors.New("checkpoint.driver must be mysql, sqlite or file"))
	}
	switch c.Fetch.Sink {
	case "mysql":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required for the kafka sink"))
		}
	default:
		errs = append(errs, errors.New("fetch.sink must be mysql or kafka"))
	}
	return errors.Join(errs...)
}
