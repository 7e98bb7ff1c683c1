package awsauth

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// AuthenticationError is a permanent credential failure for one scan target.
// It is never retried; the engine surfaces it as an error finding for that
// target and the scan continues.
type AuthenticationError struct {
	Target  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed for %s: %s: %v", e.Target, e.Message, e.Cause)
	}
	return fmt.Sprintf("authentication failed for %s: %s", e.Target, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// IsAuthenticationError reports whether err is a permanent credential failure.
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// accessDeniedCodes covers the API error codes AWS services return for
// permission failures. These are permanent: retrying cannot succeed.
var accessDeniedCodes = map[string]struct{}{
	"AccessDenied":          {},
	"AccessDeniedException": {},
	"UnauthorizedOperation": {},
	"AuthFailure":           {},
	"ExpiredToken":          {},
	"InvalidClientTokenId":  {},
}

// throttlingCodes covers the API error codes for rate limiting. These are
// transient and retried with bounded exponential backoff.
var throttlingCodes = map[string]struct{}{
	"Throttling":                             {},
	"ThrottlingException":                    {},
	"TooManyRequestsException":               {},
	"RequestLimitExceeded":                   {},
	"RequestThrottled":                       {},
	"RequestThrottledException":              {},
	"ProvisionedThroughputExceededException": {},
}

// optInCodes covers the codes Cost Explorer and related billing APIs return
// when the account has not opted in. Not an error: it triggers the mock-data
// fallback.
var optInCodes = map[string]struct{}{
	"OptInRequired":                 {},
	"SubscriptionRequiredException": {},
	"DataUnavailableException":      {},
}

// apiErrorCode extracts the service error code from err, or "" when err is
// not an AWS API error.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsAccessDenied reports whether err is a permanent permission failure.
func IsAccessDenied(err error) bool {
	_, ok := accessDeniedCodes[apiErrorCode(err)]
	return ok
}

// IsThrottling reports whether err is a transient rate-limit failure.
func IsThrottling(err error) bool {
	_, ok := throttlingCodes[apiErrorCode(err)]
	return ok
}

// IsOptInRequired reports whether err means the billing data source is not
// enabled for the account.
func IsOptInRequired(err error) bool {
	_, ok := optInCodes[apiErrorCode(err)]
	return ok
}
