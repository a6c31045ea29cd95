// Package workflow builds the stage lists for the slides and video sites.
// Every locator and wait has a built-in default that config can replace key
// by key.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"autolecture/config"
	"autolecture/internal/uidriver"
)

// Alternatives in one locator setting are tried left to right.
const alternativeSep = "||"

type plan struct {
	locators map[string][]uidriver.Locator
	timeouts map[string]time.Duration
}

func newPlan(defaultLocators map[string]string, defaultTimeouts map[string]int, site config.Site) (*plan, error) {
	p := &plan{
		locators: make(map[string][]uidriver.Locator, len(defaultLocators)),
		timeouts: make(map[string]time.Duration, len(defaultTimeouts)),
	}
	for key, raw := range defaultLocators {
		if override, ok := site.Locators[key]; ok && strings.TrimSpace(override) != "" {
			raw = override
		}
		locs, err := parseAlternatives(raw)
		if err != nil {
			return nil, fmt.Errorf("locator %s: %w", key, err)
		}
		p.locators[key] = locs
	}
	for key := range site.Locators {
		if _, ok := defaultLocators[key]; !ok {
			return nil, fmt.Errorf("unknown locator key %q", key)
		}
	}
	for key, secs := range defaultTimeouts {
		if override, ok := site.Timeouts[key]; ok && override > 0 {
			secs = override
		}
		p.timeouts[key] = time.Duration(secs) * time.Second
	}
	return p, nil
}

func parseAlternatives(raw string) ([]uidriver.Locator, error) {
	var out []uidriver.Locator
	for _, part := range strings.Split(raw, alternativeSep) {
		loc, err := uidriver.ParseLocator(part)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

func (p *plan) loc(key string) []uidriver.Locator {
	return p.locators[key]
}

func (p *plan) first(key string) uidriver.Locator {
	return p.locators[key][0]
}

func (p *plan) timeout(key string) time.Duration {
	if d, ok := p.timeouts[key]; ok {
		return d
	}
	return defaultWait
}
