package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const monthLayout = "2006-01"

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

func parseSnowflakeID(value string) (snowflake.ID, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, false
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

// pathID reads the :id path parameter, aborting with a validation error when
// it is not a snowflake id.
func pathID(c *gin.Context) (snowflake.ID, bool) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}

// parseMonth accepts "YYYY-MM" or a full date and returns the first day of
// that month in UTC.
func parseMonth(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(monthLayout, trimmed)
	if err != nil {
		parsed, err = time.Parse(time.DateOnly, trimmed)
		if err != nil {
			return nil, err
		}
	}
	month := time.Date(parsed.Year(), parsed.Month(), 1, 0, 0, 0, 0, time.UTC)
	return &month, nil
}
