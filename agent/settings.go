package agent

import "os"

// Settings resolves configuration values by key. An unset key yields "".
type Settings interface {
	GetSetting(key string) string
}

// MapSettings serves settings from a map.
type MapSettings map[string]string

func (m MapSettings) GetSetting(key string) string {
	return m[key]
}

// EnvSettings serves settings from the process environment. Prefix, when
// set, is prepended to every key.
type EnvSettings struct {
	Prefix string
}

func (e EnvSettings) GetSetting(key string) string {
	return os.Getenv(e.Prefix + key)
}

// ChainSettings consults each source in order and returns the first
// non-empty value.
type ChainSettings []Settings

func (c ChainSettings) GetSetting(key string) string {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v := s.GetSetting(key); v != "" {
			return v
		}
	}
	return ""
}
