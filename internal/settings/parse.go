package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	errPositiveIntegerValue    = errors.New("value must be a positive integer")
	errNonNegativeIntegerValue = errors.New("value must be a non-negative integer")
	errBoolValue               = errors.New("value must be a boolean")
	errStringValue             = errors.New("value must be a string")
	errInvalidJSON             = errors.New("value must be valid JSON")
)

var positiveIntKeys = map[string]struct{}{
	AuthRateLimitWindowSecondsKey: {},
}

var nonNegativeIntKeys = map[string]struct{}{
	AuthRateLimitKey:    {},
	RateLimitRedisDBKey: {},
}

var boolKeys = map[string]struct{}{
	RateLimitRedisEnabledKey: {},
}

var stringKeys = map[string]struct{}{
	SiteNameKey:               {},
	RateLimitRedisAddrKey:     {},
	RateLimitRedisPasswordKey: {},
	RateLimitRedisPrefixKey:   {},
}

// Validate checks that raw is acceptable for key. Unknown keys accept any JSON value.
func Validate(key string, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return errInvalidJSON
	}
	if _, ok := positiveIntKeys[key]; ok {
		if _, okParse := ParsePositiveInt(raw); !okParse {
			return errPositiveIntegerValue
		}
		return nil
	}
	if _, ok := nonNegativeIntKeys[key]; ok {
		if _, okParse := ParseNonNegativeInt(raw); !okParse {
			return errNonNegativeIntegerValue
		}
		return nil
	}
	if _, ok := boolKeys[key]; ok {
		if _, okParse := ParseBool(raw); !okParse {
			return errBoolValue
		}
		return nil
	}
	if _, ok := stringKeys[key]; ok {
		if _, okParse := ParseString(raw); !okParse {
			return errStringValue
		}
	}
	return nil
}

// ParseBool accepts JSON booleans, 0/1 and common truthy strings.
func ParseBool(raw json.RawMessage) (bool, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false, false
	}
	var parsedBool bool
	if errUnmarshalBool := json.Unmarshal(raw, &parsedBool); errUnmarshalBool == nil {
		return parsedBool, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		switch strings.ToLower(strings.TrimSpace(parsedString)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		default:
			return false, false
		}
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		switch parsedFloat {
		case 1:
			return true, true
		case 0:
			return false, true
		}
	}
	return false, false
}

// ParseString accepts a JSON string and trims it.
func ParseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		return strings.TrimSpace(parsedString), true
	}
	return "", false
}

// ParseNonNegativeInt accepts integers, integral floats and numeric strings >= 0.
func ParseNonNegativeInt(raw json.RawMessage) (int, bool) {
	n, ok := parseInt(raw)
	return n, ok && n >= 0
}

// ParsePositiveInt accepts integers, integral floats and numeric strings > 0.
func ParsePositiveInt(raw json.RawMessage) (int, bool) {
	n, ok := parseInt(raw)
	return n, ok && n > 0
}

func parseInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, true
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) || parsedFloat != math.Trunc(parsedFloat) {
			return 0, false
		}
		if parsedFloat > math.MaxInt32 || parsedFloat < math.MinInt32 {
			return 0, false
		}
		return int(parsedFloat), true
	}
	return 0, false
}

// ErrEmptyKey rejects blank setting keys.
var ErrEmptyKey = errors.New("settings: key is required")

// ValueError reports a value rejected by Validate.
type ValueError struct {
	Key string
	Err error
}

func (e *ValueError) Error() string { return "settings: " + e.Key + ": " + e.Err.Error() }

func (e *ValueError) Unwrap() error { return e.Err }
