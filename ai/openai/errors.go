package openai

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/poiesic/embedbase/ai"
)

// ErrUnknownDimensions is returned when the model's vector length is not
// known and was not configured.
var ErrUnknownDimensions = errors.New("embedding dimensions unknown for model; set Dimensions")

// langchaingo reports non-200 responses as "API returned unexpected status code: NNN".
var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

// classify marks definitive client-side rejections so they are not retried.
// 408 and 429 are transient; 5xx and transport errors are left as-is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return err
	}
	code, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return err
	}
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ai.ErrRejected, err)
	}
	return err
}
