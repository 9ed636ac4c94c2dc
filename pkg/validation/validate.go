package validation

import (
	"errors"
	"fmt"
	"strings"

	"tradetalk/pkg/models"
)

// Rules holds the configurable limits applied to inbound messages.
type Rules struct {
	MaxTextBytes int
	MaxIDBytes   int
}

var rules = Rules{MaxTextBytes: 8 * 1024, MaxIDBytes: 128}

// SetRules installs validation limits from the effective config. Zero
// values keep the current limit.
func SetRules(r Rules) {
	if r.MaxTextBytes > 0 {
		rules.MaxTextBytes = r.MaxTextBytes
	}
	if r.MaxIDBytes > 0 {
		rules.MaxIDBytes = r.MaxIDBytes
	}
}

// ValidateText checks a message body before append.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("text is required")
	}
	if len(text) > rules.MaxTextBytes {
		return fmt.Errorf("text too long: %d > %d", len(text), rules.MaxTextBytes)
	}
	return nil
}

// ValidateRef checks a participant reference used for addressing.
func ValidateRef(ref models.Participant) error {
	if strings.TrimSpace(ref.ID) == "" {
		return errors.New("participant id is required")
	}
	if len(ref.ID) > rules.MaxIDBytes {
		return fmt.Errorf("participant id too long: %d > %d", len(ref.ID), rules.MaxIDBytes)
	}
	switch ref.Kind {
	case models.KindUser, models.KindContractor, "":
		// empty kind is allowed: the resolver decides
	default:
		return fmt.Errorf("unknown participant kind: %q", ref.Kind)
	}
	return nil
}

// ValidateID checks an opaque identity or message ID.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id is required")
	}
	if len(id) > rules.MaxIDBytes {
		return fmt.Errorf("id too long: %d > %d", len(id), rules.MaxIDBytes)
	}
	return nil
}
