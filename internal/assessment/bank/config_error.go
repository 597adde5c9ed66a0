package bank

import (
	"fmt"

	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

type ConfigErrorCode string

const (
	ConfigErrorEmptyBank        ConfigErrorCode = "empty_bank"
	ConfigErrorMalformed        ConfigErrorCode = "malformed"
	ConfigErrorMissingID        ConfigErrorCode = "missing_id"
	ConfigErrorDuplicateID      ConfigErrorCode = "duplicate_id"
	ConfigErrorMissingDomain    ConfigErrorCode = "missing_domain"
	ConfigErrorUnknownModel     ConfigErrorCode = "unknown_model"
	ConfigErrorMissingParam     ConfigErrorCode = "missing_param"
	ConfigErrorInvalidA         ConfigErrorCode = "invalid_a"
	ConfigErrorInvalidB         ConfigErrorCode = "invalid_b"
	ConfigErrorInvalidC         ConfigErrorCode = "invalid_c"
	ConfigErrorUnknownItem      ConfigErrorCode = "unknown_item"
	ConfigErrorDomainMismatch   ConfigErrorCode = "domain_mismatch"
	ConfigErrorInvalidBlueprint ConfigErrorCode = "invalid_blueprint"
)

// ConfigError describes an item bank or forms file that cannot be used.
// It matches errors.ErrConfig under errors.Is.
type ConfigError struct {
	Code   ConfigErrorCode
	ItemID string
	Value  string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid item bank"
	}
	switch e.Code {
	case ConfigErrorEmptyBank:
		return "item bank has no items"
	case ConfigErrorMalformed:
		return fmt.Sprintf("item bank could not be decoded: %v", e.Cause)
	case ConfigErrorMissingID:
		return fmt.Sprintf("item #%s has no id", e.Value)
	case ConfigErrorDuplicateID:
		return fmt.Sprintf("duplicate item id %q", e.ItemID)
	case ConfigErrorMissingDomain:
		return fmt.Sprintf("item %q has no domain", e.ItemID)
	case ConfigErrorUnknownModel:
		return fmt.Sprintf("item %q: unknown model %q; expected 2PL or 3PL", e.ItemID, e.Value)
	case ConfigErrorMissingParam:
		return fmt.Sprintf("item %q: missing IRT parameter %s", e.ItemID, e.Value)
	case ConfigErrorInvalidA:
		return fmt.Sprintf("item %q: invalid a=%s; expected finite value > 0", e.ItemID, e.Value)
	case ConfigErrorInvalidB:
		return fmt.Sprintf("item %q: invalid b=%s; expected finite value", e.ItemID, e.Value)
	case ConfigErrorInvalidC:
		return fmt.Sprintf("item %q: invalid c=%s; expected 0 <= c < 1 (and 0 for 2PL)", e.ItemID, e.Value)
	case ConfigErrorUnknownItem:
		return fmt.Sprintf("unknown item id %q", e.ItemID)
	case ConfigErrorDomainMismatch:
		return fmt.Sprintf("item %q is not in domain %s", e.ItemID, e.Value)
	case ConfigErrorInvalidBlueprint:
		return fmt.Sprintf("invalid blueprint share %s for family %q", e.Value, e.ItemID)
	default:
		return "invalid item bank"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *ConfigError) Is(target error) bool {
	return target == errors.ErrConfig
}
