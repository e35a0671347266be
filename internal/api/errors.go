package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

// statusOf maps domain errors onto HTTP status codes. Unknown errors are
// internal failures.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrAddressNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrTransferNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPassphrase):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientFee),
		errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, domain.ErrClientUnavailable),
		errors.Is(err, domain.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrAddressInvalid),
		errors.Is(err, domain.ErrUnknownTransferInput),
		errors.Is(err, domain.ErrUnknownContract),
		errors.Is(err, domain.ErrTransferEventNotFound),
		errors.Is(err, domain.ErrNotConfirmed),
		errors.Is(err, domain.ErrUnrecognized):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

func invalid(c *gin.Context, message string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": message})
}
