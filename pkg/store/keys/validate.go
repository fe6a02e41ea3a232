package keys

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// conservative user id validation: letters, digits, dot, underscore, dash, at
// and a bound to protect DB key shapes. ":" is the key separator.
var userIDRegexp = regexp.MustCompile(`^[A-Za-z0-9._@-]{1,128}$`)

func ValidateUserID(id string) error {
	if id == "" {
		return errors.New("user id empty")
	}
	if !userIDRegexp.MatchString(id) {
		return fmt.Errorf("invalid user id: %q", id)
	}
	return nil
}

// ValidateID checks message and group ids, which are uuids.
func ValidateID(id string) error {
	if id == "" {
		return errors.New("id empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid id %q: %w", id, err)
	}
	return nil
}
