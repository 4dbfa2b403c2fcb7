package scrape

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nao1215/sitescope/internal/model"
)

// ErrUnsupportedContent is returned for responses that are neither HTML nor plain text.
var ErrUnsupportedContent = errors.New("unsupported content type")

// ErrBlockedAddress is returned when a fetch, or a redirect it follows,
// would connect to a private address.
var ErrBlockedAddress = errors.New("blocked address")

// StatusError reports a non-2xx response from the target site.
type StatusError struct {
	URL  string
	Code int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Unwrap lets client errors other than 429 classify as rejected requests
// so the executor does not retry them.
func (e *StatusError) Unwrap() error {
	if e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests {
		return model.ErrProviderRejected
	}
	return nil
}
