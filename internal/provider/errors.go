package provider

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// APIError is a provider rejection with its machine-readable parts.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s (%d)", e.Description, e.Code)
}

// ErrTooLarge is returned before any upload is attempted for files above the ceiling.
var ErrTooLarge = errors.New("file too large")

// hardError stops the cascade: the item fails with the wrapped error.
type hardError struct{ err error }

func (e *hardError) Error() string { return e.err.Error() }
func (e *hardError) Unwrap() error { return e.err }

type FailureClass int

const (
	ClassHard FailureClass = iota
	ClassFetch
	ClassSize
	ClassRateLimit
)

func (c FailureClass) String() string {
	switch c {
	case ClassFetch:
		return "fetch"
	case ClassSize:
		return "size"
	case ClassRateLimit:
		return "rate_limit"
	default:
		return "hard"
	}
}

var fetchMarkers = []string{
	"failed to get http url content",
	"wrong file identifier",
	"bad file identifier",
	"wrong type of the web page content",
	"wrong remote file",
	"cannot fetch",
	"can't fetch",
}

var sizeMarkers = []string{
	"entity too large",
	"too large",
	"too big",
	"invalid dimensions",
	"photo_invalid_dimensions",
	"photo_save_file_invalid",
	"image_process_failed",
}

// Classify maps a provider error onto the cascade's failure classes.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassHard
	}
	var hard *hardError
	if errors.As(err, &hard) || errors.Is(err, ErrTooLarge) {
		return ClassHard
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0) {
		return ClassRateLimit
	}

	text := strings.ToLower(err.Error())
	for _, m := range fetchMarkers {
		if strings.Contains(text, m) {
			return ClassFetch
		}
	}
	for _, m := range sizeMarkers {
		if strings.Contains(text, m) {
			return ClassSize
		}
	}
	return ClassHard
}

// retryDelay is the provider-requested cooldown, one second when unspecified.
func retryDelay(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return time.Second
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry after (\d+)`)

func parseRetryAfter(description string) int {
	m := retryAfterPattern.FindStringSubmatch(description)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
