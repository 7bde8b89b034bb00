package scraper

import "fmt"

// UpstreamError describes a failed fetch from one provider.
type UpstreamError struct {
	Provider Provider
	Status   string
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s upstream %s: %s", e.Provider, e.Status, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
