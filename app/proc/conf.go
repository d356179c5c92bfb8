package proc

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/Jthora/intel-feed/app/cors"
	"github.com/Jthora/intel-feed/app/feed"
)

// Conf is the yml config for sources, resilience knobs and the cors
// strategy setup. The core never reads settings from a global, the loaded
// Conf is injected everywhere.
type Conf struct {
	Sources []feed.Source `yaml:"sources"`

	System struct {
		UpdateInterval  time.Duration `yaml:"update"`
		Concurrent      int           `yaml:"concurrent"`
		CacheTTLSeconds int           `yaml:"cache_ttl"`
		MaxRetries      int           `yaml:"max_retries"`
		Backoff         time.Duration `yaml:"backoff"`
		Timeout         time.Duration `yaml:"timeout"`
	} `yaml:"system"`

	CORS struct {
		DefaultStrategy string            `yaml:"default_strategy"`
		Overrides       map[string]string `yaml:"overrides"` // protocol -> strategy
		RSS2JSON        []string          `yaml:"rss2json"`
		Proxies         []string          `yaml:"cors_proxies"`
	} `yaml:"cors"`

	Credentials map[string]string `yaml:"credentials"` // api host -> bearer token
}

// LoadConf reads and validates the yml config file.
func LoadConf(fname string) (*Conf, error) {
	res := &Conf{}
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read config %s", fname)
	}
	if err := yaml.Unmarshal(data, res); err != nil {
		return nil, errors.Wrapf(err, "can't parse config %s", fname)
	}
	res.setDefaults()
	return res, nil
}

// Services builds the per-strategy seed registry, with the local relay
// appended to the proxy chain.
func (c *Conf) Services(proxyURL string) map[cors.Strategy][]string {
	proxies := append([]string{}, c.CORS.Proxies...)
	if proxyURL != "" {
		proxies = append(proxies, proxyURL)
	}
	return map[cors.Strategy][]string{
		cors.RSS2JSON:      append([]string{}, c.CORS.RSS2JSON...),
		cors.ServiceWorker: proxies,
	}
}

func (c *Conf) setDefaults() {
	if c.System.UpdateInterval == 0 {
		c.System.UpdateInterval = 5 * time.Minute
	}
	if c.System.Concurrent == 0 {
		c.System.Concurrent = 8
	}
	if c.System.CacheTTLSeconds == 0 {
		c.System.CacheTTLSeconds = 300
	}
	if c.System.MaxRetries == 0 {
		c.System.MaxRetries = 3
	}
	if c.System.Backoff == 0 {
		c.System.Backoff = 300 * time.Millisecond
	}
	if c.System.Timeout == 0 {
		c.System.Timeout = 20 * time.Second
	}
}
