package ena

import (
	"fmt"
)

// InvalidAccessionError is returned for an accession of an unknown or
// unexpected type.
type InvalidAccessionError struct {
	Accession, Expected string
}

func (e InvalidAccessionError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s is not a valid %s", e.Accession, e.Expected)
	}
	return fmt.Sprintf("%s is not a valid accession", e.Accession)
}

// NotFoundError is returned when ENA holds no data for an accession, either
// straight away or after every retry was spent.
type NotFoundError struct {
	Accession string
	Attempts  int
	Err       error
}

func (e NotFoundError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("Could not find %s in ENA after %d attempts", e.Accession, e.Attempts)
	}
	return fmt.Sprintf("Could not find %s in ENA", e.Accession)
}

func (e NotFoundError) Unwrap() error {
	return e.Err
}

// HTTPError is returned for a client-side (4xx) failure, which is never retried.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("request to %s failed with HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// UnavailableError is returned when ENA answers with a server-side (5xx) failure.
type UnavailableError struct {
	URL        string
	StatusCode int
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("ENA at %s is unavailable (HTTP %d)", e.URL, e.StatusCode)
}

// DowngradedRedirectError is returned if an HTTPS request is redirected to HTTP.
type DowngradedRedirectError struct {
	Endpoint string
}

func (e DowngradedRedirectError) Error() string {
	return fmt.Sprintf("The endpoint %s is attempting to downgrade an HTTPS request to HTTP",
		e.Endpoint)
}

// noDataError marks an HTTP 204 answer, which ENA sends while a freshly
// submitted object is not indexed yet.
type noDataError struct {
	URL string
}

func (e noDataError) Error() string {
	return fmt.Sprintf("no data returned from %s", e.URL)
}
