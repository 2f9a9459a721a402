// Package hostlist holds the set of trusted hostnames used for the CORS echo and the referer check.
//
// The set is built from a static list and, optionally, a YAML file of the form
//
//	hosts:
//	  - maps.example.com
//	  - tiles.example.com
//
// which is reloaded whenever it changes on disk.
package hostlist

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type List struct {
	mu     sync.RWMutex
	static []string
	hosts  map[string]struct{}
}

type fileFormat struct {
	Hosts []string `yaml:"hosts"`
}

func New(hosts []string) *List {
	l := &List{static: hosts}
	l.Replace(nil)
	return l
}

func normalize(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}

// Contains reports whether host is trusted. Matching is exact and case-insensitive.
func (l *List) Contains(host string) bool {
	host = normalize(host)
	if host == "" {
		return false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.hosts[host]
	return ok
}

// Replace swaps the dynamic part of the list. Static hosts are always kept.
func (l *List) Replace(dynamic []string) {
	hosts := make(map[string]struct{}, len(l.static)+len(dynamic))
	for _, group := range [][]string{l.static, dynamic} {
		for _, h := range group {
			if h = normalize(h); h != "" {
				hosts[h] = struct{}{}
			}
		}
	}

	l.mu.Lock()
	l.hosts = hosts
	l.mu.Unlock()
}

func (l *List) Hosts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.hosts))
	for h := range l.hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trusted hosts file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse trusted hosts file %s: %w", path, err)
	}
	return f.Hosts, nil
}
