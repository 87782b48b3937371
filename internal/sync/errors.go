package sync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/tildaslashalef/notesync/internal/markdown"
	"github.com/tildaslashalef/notesync/internal/notion"
	"github.com/tildaslashalef/notesync/internal/vault"
)

// errNoConflictTarget is the cause of a conflict fallback without a note to rewrite
var errNoConflictTarget = errors.New("no note with this title at the vault root")

// ConfigurationError is returned before any remote call when a pass lacks
// required settings
type ConfigurationError struct {
	Direction Direction
	Missing   []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: missing %s", e.Direction, strings.Join(e.Missing, ", "))
}

// ClassifyError maps an error to the type recorded in sync logs
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}

	var (
		cfgErr      *ConfigurationError
		conflictErr *notion.ConflictError
		remoteErr   *notion.RemoteError
		convErr     *markdown.ConversionError
		ioErr       *vault.LocalIOError
		urlErr      *url.Error
		netErr      net.Error
	)

	switch {
	case errors.As(err, &cfgErr):
		return ErrorTypeConfiguration
	case errors.As(err, &conflictErr):
		return ErrorTypeConflict
	case errors.As(err, &remoteErr):
		switch {
		case remoteErr.StatusCode == http.StatusUnauthorized || remoteErr.StatusCode == http.StatusForbidden:
			return ErrorTypeRemoteAuth
		case remoteErr.RateLimited():
			return ErrorTypeRateLimited
		case remoteErr.StatusCode >= 500:
			return ErrorTypeRemoteServer
		default:
			return ErrorTypeRemoteClient
		}
	case errors.As(err, &convErr):
		return ErrorTypeConversion
	case errors.As(err, &ioErr):
		return ErrorTypeLocalIO
	case errors.Is(err, context.Canceled):
		return ErrorTypeCancelled
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return ErrorTypeNetwork
	}
	return ErrorTypeUnknown
}
