// Package sources holds the Feed Registry domain: configured feeds and the policy
// that turns their fetch counters into a health verdict.
package sources

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// UnhealthyErrorCount is the number of consecutive failures after which a source is unhealthy.
	UnhealthyErrorCount = 3
	// StaleAfter is how long a source may go without a successful fetch.
	StaleAfter = 24 * time.Hour
)

// Source is one configured feed.
type Source struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	URL            string     `json:"url"`
	Active         bool       `json:"active"`
	AlwaysRelevant bool       `json:"alwaysRelevant"`
	ErrorCount     int        `json:"errorCount"`
	LastError      string     `json:"lastError,omitempty"`
	LastFetchedAt  *time.Time `json:"lastFetchedAt"` // last attempt, successful or not
	LastSuccessAt  *time.Time `json:"lastSuccessAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusPending   HealthStatus = "pending" // never fetched yet
	StatusInactive  HealthStatus = "inactive"
)

// Health is the verdict for one source at a point in time.
type Health struct {
	Status HealthStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

func (h Health) Healthy() bool {
	return h.Status == StatusHealthy || h.Status == StatusPending || h.Status == StatusInactive
}

// Evaluate applies the health policy: 3+ consecutive failures, or no success in 24h
// once the source has been attempted, is unhealthy.
func Evaluate(s Source, now time.Time) Health {
	if !s.Active {
		return Health{Status: StatusInactive}
	}
	if s.ErrorCount >= UnhealthyErrorCount {
		return Health{
			Status: StatusUnhealthy,
			Reason: fmt.Sprintf("%d consecutive failures: %s", s.ErrorCount, s.LastError),
		}
	}
	if s.LastFetchedAt == nil {
		return Health{Status: StatusPending}
	}
	if s.LastSuccessAt == nil {
		return Health{Status: StatusUnhealthy, Reason: "no successful fetch yet"}
	}
	if age := now.Sub(*s.LastSuccessAt); age >= StaleAfter {
		return Health{
			Status: StatusUnhealthy,
			Reason: fmt.Sprintf("no successful fetch for %s", age.Truncate(time.Minute)),
		}
	}
	return Health{Status: StatusHealthy}
}

// FileConfig is the YAML layout used to seed the registry:
//
//	sources:
//	  - name: Borneo Post
//	    url: https://www.theborneopost.com/feed/
//	    always_relevant: true
type FileConfig struct {
	Sources []FileSource `yaml:"sources"`
}

type FileSource struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	AlwaysRelevant bool   `yaml:"always_relevant"`
	Inactive       bool   `yaml:"inactive"`
}

// LoadFile reads a sources YAML file.
func LoadFile(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FileConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	out := make([]Source, 0, len(cfg.Sources))
	seen := make(map[string]struct{}, len(cfg.Sources))
	for i, fs := range cfg.Sources {
		name := strings.TrimSpace(fs.Name)
		url := strings.TrimSpace(fs.URL)
		if name == "" || url == "" {
			return nil, fmt.Errorf("%s: source #%d needs both name and url", path, i+1)
		}
		if _, dup := seen[url]; dup {
			return nil, fmt.Errorf("%s: duplicate url %s", path, url)
		}
		seen[url] = struct{}{}
		out = append(out, Source{
			Name:           name,
			URL:            url,
			Active:         !fs.Inactive,
			AlwaysRelevant: fs.AlwaysRelevant,
		})
	}
	return out, nil
}
