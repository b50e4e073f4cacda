package main

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/stefchosov/walkdata/internal/email"
	"github.com/stefchosov/walkdata/internal/krypto"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	secureCookie    bool
}

// geoConfig is the configuration for the address resolving pipeline.
type geoConfig struct {
	nominatimURL *url.URL
	censusURL    *url.URL
	userAgent    string
	timeout      time.Duration
}

// emailConfig is the configuration for outgoing email.
// When the Postmark token is empty, outgoing emails are logged instead.
type emailConfig struct {
	postmarkURL    *url.URL
	postmarkToken  krypto.Secret
	postmarkStream string
	from           email.Address
}

// config is the configuration for the server command.
type config struct {
	http       httpConfig
	dbFile     string
	sessionKey krypto.Key
	csrfKey    krypto.Key
	geo        geoConfig
	email      emailConfig
}

// defaultConfig returns a config with sane default values.
//
// The session and CSRF keys have no defaults, they are required
// environment variables.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
			secureCookie:    true,
		},
		dbFile: "walkdata.db",
		geo: geoConfig{
			nominatimURL: mustParseURL("https://nominatim.openstreetmap.org"),
			censusURL:    mustParseURL("https://geocoding.geo.census.gov"),
			userAgent:    "walkdata",
			timeout:      time.Second * 30,
		},
		email: emailConfig{
			postmarkURL:    mustParseURL("https://api.postmarkapp.com/email"),
			postmarkStream: "outbound",
			from:           email.Address("walkdata@localhost"),
		},
	}
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_SECURE_COOKIE": func(v string, c *config) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.http.secureCookie = b
		return nil
	},
	"DB_FILE": func(v string, c *config) error {
		c.dbFile = v
		return nil
	},
	"SESSION_KEY": func(v string, c *config) error {
		return confKey(v, &c.sessionKey)
	},
	"CSRF_KEY": func(v string, c *config) error {
		return confKey(v, &c.csrfKey)
	},
	"NOMINATIM_URL": func(v string, c *config) error {
		return confURL(v, &c.geo.nominatimURL)
	},
	"CENSUS_URL": func(v string, c *config) error {
		return confURL(v, &c.geo.censusURL)
	},
	"GEO_USER_AGENT": func(v string, c *config) error {
		c.geo.userAgent = v
		return nil
	},
	"GEO_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.geo.timeout, 0, math.MaxInt64)
	},
	"POSTMARK_URL": func(v string, c *config) error {
		return confURL(v, &c.email.postmarkURL)
	},
	"POSTMARK_SERVER_TOKEN": func(v string, c *config) error {
		c.email.postmarkToken = krypto.NewSecret(v)
		return nil
	},
	"POSTMARK_MESSAGE_STREAM": func(v string, c *config) error {
		c.email.postmarkStream = v
		return nil
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.from = addr
		return nil
	},
}

// requiredEnvKeys are environment variables that have no default value.
var requiredEnvKeys = []string{
	"SESSION_KEY",
	"CSRF_KEY",
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	for _, key := range requiredEnvKeys {
		if _, ok := os.LookupEnv(key); !ok {
			return c, fmt.Errorf("missing required env variable %s", key)
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				return c, fmt.Errorf("invalid env variable %s: %w", key, err)
			}
		}
	}

	return c, nil
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

func confKey(v string, tgt *krypto.Key) error {
	key, err := krypto.ParseKey(v)
	if err != nil {
		return err
	}

	*tgt = key

	return nil
}

func confURL(v string, tgt **url.URL) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}

	*tgt = u

	return nil
}

func mustParseURL(v string) *url.URL {
	u, err := url.Parse(v)
	if err != nil {
		panic(err)
	}

	return u
}
