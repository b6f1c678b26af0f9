package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/user/collector/internal/apperrors"
)

var (
	// Letters (any script), digits and underscores; must not start with a digit
	identifierPattern = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)

	// Tables owned by the engine itself
	reservedTables = map[string]bool{
		"data_sources":      true,
		"templates":         true,
		"schema_migrations": true,
	}
)

// MinInterval is the shortest allowed auto-run interval
const MinInterval = time.Second

// ValidateIdentifier validates a table or column identifier
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", apperrors.ErrInvalidIdentifier)
	}

	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q must start with a letter or underscore and contain only letters, digits and underscores", apperrors.ErrInvalidIdentifier, name)
	}

	return nil
}

// ValidateTableName validates a template name used as a backing table identifier
func ValidateTableName(name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}

	lower := strings.ToLower(name)
	if reservedTables[lower] || strings.HasPrefix(lower, "sqlite_") {
		return fmt.Errorf("%w: %q is reserved", apperrors.ErrInvalidIdentifier, name)
	}

	return nil
}

// IsReservedTable reports whether a table belongs to the engine's metadata
func IsReservedTable(name string) bool {
	lower := strings.ToLower(name)
	return reservedTables[lower] || strings.HasPrefix(lower, "sqlite_")
}

// ValidateEndpoint validates a data source endpoint URL
func ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}

	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}

	return nil
}

// ValidateInterval validates an auto-run interval
func ValidateInterval(interval time.Duration) error {
	if interval < MinInterval {
		return fmt.Errorf("interval must be at least %s, got %s", MinInterval, interval)
	}
	return nil
}
