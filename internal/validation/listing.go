package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLength = 120
	maxTags        = 10
	maxTagLength   = 32
)

// ValidateTitle validates a listing title
func ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)

	if trimmed == "" {
		return errors.New("title is required")
	}

	if utf8.RuneCountInString(trimmed) > maxTitleLength {
		return fmt.Errorf("title is too long (max %d characters)", maxTitleLength)
	}

	return nil
}

// ValidatePrice validates a price in minor units
func ValidatePrice(price int64) error {
	if price <= 0 {
		return errors.New("price must be positive")
	}
	return nil
}

// NormalizeTags lowercases, trims and de-duplicates tags, keeping order.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		if utf8.RuneCountInString(tag) > maxTagLength {
			return nil, fmt.Errorf("tag %q is too long (max %d characters)", tag, maxTagLength)
		}
		if strings.ContainsAny(tag, `"\`) {
			return nil, fmt.Errorf("tag %q contains invalid characters", tag)
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) > maxTags {
		return nil, fmt.Errorf("too many tags (max %d)", maxTags)
	}
	return out, nil
}
