package moderation

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/wordwarden/wordwarden/resources"
)

// Matcher is the cheap local keyword check that runs before any upstream
// call. Patterns are case-insensitive literal matches.
type Matcher struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
	logger   *log.Entry
}

func NewMatcher(words []string) *Matcher {
	m := &Matcher{
		patterns: make(map[string]*regexp.Regexp),
		logger:   log.WithField("context", "keywords"),
	}
	for _, word := range words {
		m.Add(word)
	}
	return m
}

// DefaultWords returns the embedded seed keyword list.
func DefaultWords() []string {
	data, err := resources.FS.ReadFile("keywords/default.yml")
	if err != nil {
		log.WithError(err).Error("cant load default keywords")
		return nil
	}
	var words []string
	if err := yaml.Unmarshal(data, &words); err != nil {
		log.WithError(err).Error("cant unmarshal default keywords")
		return nil
	}
	return words
}

// Match returns the distinct configured words found in text, in sorted order.
func (m *Matcher) Match(text string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []string
	for word, pattern := range m.patterns {
		if pattern.MatchString(text) {
			found = append(found, word)
		}
	}
	sort.Strings(found)
	return found
}

// Add registers a word; it reports whether the list changed.
func (m *Matcher) Add(word string) bool {
	word = strings.TrimSpace(word)
	if word == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patterns[word]; ok {
		return false
	}
	pattern, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(word))
	if err != nil {
		m.logger.WithError(err).WithField("word", word).Error("cant compile keyword pattern")
		return false
	}
	m.patterns[word] = pattern
	return true
}

// Remove unregisters a word; it reports whether the word was present.
func (m *Matcher) Remove(word string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patterns[word]; !ok {
		return false
	}
	delete(m.patterns, word)
	return true
}

// Words lists the configured words in sorted order.
func (m *Matcher) Words() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	words := make([]string, 0, len(m.patterns))
	for word := range m.patterns {
		words = append(words, word)
	}
	sort.Strings(words)
	return words
}
