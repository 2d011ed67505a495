package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/dylan3796/attribution-mvp/pkg/db/option"
	"github.com/dylan3796/attribution-mvp/pkg/db/pagination"
)

// cursorAfter turns a page token into an id-ordered continuation condition.
func cursorAfter(token string) (option.QueryOption, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, errors.New("invalid_page_token")
	}
	afterID, err := strconv.ParseInt(cursor.ID, 10, 64)
	if err != nil {
		return nil, errors.New("invalid_page_token")
	}
	return option.WithCondition("id > ?", afterID), nil
}

func parseSnowflakeParam(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid_id")
	}
	return parsed, nil
}

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalTime(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func trimStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
