package social

import (
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ProviderError is the normalized shape of a failed provider call. The
// transport detail (OAuth error code, HTTP status, raw response body) is
// kept so the flow can fold it into the rich error's metadata instead of
// losing it in a formatted string.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
	Raw         map[string]any
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteByte(' ')
	}
	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteByte(' ')
	}
	if b.Len() == 0 {
		b.WriteString("provider ")
	}
	b.WriteString("failed")

	switch {
	case e.Description != "":
		fmt.Fprintf(&b, ": %s", e.Description)
	case e.Code != "":
		fmt.Fprintf(&b, ": %s", e.Code)
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// metadata flattens the provider response for attachment to a rich error.
// Zero-valued fields are omitted so the metadata only carries what the
// provider actually returned.
func (e *ProviderError) metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if e.Code != "" {
		meta["code"] = e.Code
	}
	if e.Description != "" {
		meta["description"] = e.Description
	}
	if len(e.Raw) > 0 {
		meta["raw"] = e.Raw
	}

	return meta
}

// wrapProviderError folds a provider failure into a clone of the given
// sentinel, so callers classify on the sentinel while the normalized
// response travels as metadata.
func wrapProviderError(base *goerrors.Error, provider, operation string, err error) error {
	meta := map[string]any{
		"provider":  provider,
		"operation": operation,
	}

	var perr *ProviderError
	switch {
	case errors.As(err, &perr) && perr != nil:
		for k, v := range perr.metadata() {
			meta[k] = v
		}
	case err != nil:
		meta["error"] = err.Error()
	}

	clone := base.Clone()
	clone.Source = err

	return clone.WithMetadata(meta)
}
