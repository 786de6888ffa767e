package campaign

import (
	"regexp"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"daoup/internal/model"
)

// Predicate selects campaigns.
type Predicate func(model.Campaign) bool

var filterMakers = map[string]func(value string) Predicate{
	"status": func(value string) Predicate {
		return func(c model.Campaign) bool {
			return strings.EqualFold(string(c.Status), value)
		}
	},
}

// Matches `key:value` or `key:"value"`, with optional whitespace around the colon.
var filterRegex = regexp.MustCompile(`(?i)(status)\s*:\s*([^\s]+|"[^"]+")`)

// GetFilterFns extracts key:value tokens from filter. It returns the remaining
// free-text query and one predicate per key; values of the same key are OR'd and
// the returned predicates are meant to be AND'd.
func GetFilterFns(filter string) (string, []Predicate) {
	query := filter

	var keys []string
	byKey := make(map[string][]Predicate)
	for _, match := range filterRegex.FindAllStringSubmatch(filter, -1) {
		key := strings.ToLower(strings.TrimSpace(match[1]))
		maker, ok := filterMakers[key]
		if !ok {
			continue
		}

		query = strings.Replace(query, match[0], "", 1)

		value := strings.TrimSpace(match[2])
		value = strings.TrimPrefix(value, `"`)
		value = strings.TrimSuffix(value, `"`)
		value = strings.TrimSpace(value)

		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], maker(value))
	}

	predicates := make([]Predicate, 0, len(keys))
	for _, key := range keys {
		anyOf := byKey[key]
		predicates = append(predicates, func(c model.Campaign) bool {
			for _, fn := range anyOf {
				if fn(c) {
					return true
				}
			}
			return false
		})
	}

	return strings.Join(strings.Fields(query), " "), predicates
}

func singleFilter(key, value string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(key) + `\s*:\s*"?` + regexp.QuoteMeta(value) + `"?`)
}

// FilterExists reports whether filter contains key:value.
func FilterExists(filter, key, value string) bool {
	return singleFilter(key, value).MatchString(filter)
}

// AddFilter appends key:value to filter.
func AddFilter(filter, key, value string) string {
	return strings.TrimSpace(filter + " " + key + ":" + value)
}

// RemoveFilter removes every key:value occurrence from filter.
func RemoveFilter(filter, key, value string) string {
	return strings.TrimSpace(singleFilter(key, value).ReplaceAllString(filter, ""))
}

// Visible reports whether a campaign belongs in a list with the given flags.
func Visible(c model.Campaign, includeHidden, includePending bool) bool {
	return (includeHidden || !c.Hidden) && (includePending || c.Status != model.StatusPending)
}

// FilterCampaigns applies key:value predicates, then fuzzy-matches the remaining
// query against name and description. Fuzzy results are ordered best match first.
func FilterCampaigns(campaigns []model.Campaign, filter string) []model.Campaign {
	if strings.TrimSpace(filter) == "" {
		return campaigns
	}

	query, predicates := GetFilterFns(filter)

	matched := make([]model.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		ok := true
		for _, fn := range predicates {
			if !fn(c) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, c)
		}
	}

	if query == "" {
		return matched
	}
	return fuzzyFilter(matched, query)
}

type ranked struct {
	campaign model.Campaign
	distance int
}

// Every query word must fuzzy-match the name or the description.
func fuzzyFilter(campaigns []model.Campaign, query string) []model.Campaign {
	words := strings.Fields(query)

	var results []ranked
	for _, c := range campaigns {
		total := 0
		ok := true
		for _, word := range words {
			best := -1
			for _, target := range []string{c.Name, c.Description} {
				if d := fuzzy.RankMatchNormalizedFold(word, target); d >= 0 && (best < 0 || d < best) {
					best = d
				}
			}
			if best < 0 {
				ok = false
				break
			}
			total += best
		}
		if ok {
			results = append(results, ranked{campaign: c, distance: total})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].distance < results[j].distance
	})

	out := make([]model.Campaign, 0, len(results))
	for _, r := range results {
		out = append(out, r.campaign)
	}
	return out
}

// Page returns the 1-based page of items, empty when out of range.
func Page[T any](items []T, page, size int) []T {
	if page < 1 || size < 1 {
		return []T{}
	}
	start := (page - 1) * size
	end := page * size
	if start >= len(items) {
		return []T{}
	}
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
