package wire

import "net/http"

// ErrorCode is a stable, UI-facing identifier. Never surface the raw
// HTTP status or an internal error string in its place.
type ErrorCode string

const (
	ErrSendFailed             ErrorCode = "SEND_FAILED"
	ErrRetrieveFailed         ErrorCode = "RETRIEVE_FAILED"
	ErrAuthenticationRequired ErrorCode = "AUTHENTICATION_REQUIRED"
	ErrInvalidToken           ErrorCode = "INVALID_TOKEN"
	ErrPayloadTooLarge        ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrNotSupported           ErrorCode = "NOT_SUPPORTED"
	ErrAccessDenied           ErrorCode = "ACCESS_DENIED"
	ErrPassphraseRequired     ErrorCode = "PASSPHRASE_REQUIRED"

	ErrSecretNotFound        ErrorCode = "SECRET_NOT_FOUND"
	ErrSecretAlreadyAccessed ErrorCode = "SECRET_ALREADY_ACCESSED"

	ErrCryptoAPIUnavailable  ErrorCode = "CRYPTO_API_UNAVAILABLE"
	ErrBase64                ErrorCode = "BASE64_ERROR"
	ErrInvalidEncryptedData  ErrorCode = "INVALID_ENCRYPTED_DATA"
	ErrInvalidKeyLength      ErrorCode = "INVALID_KEY_LENGTH"
	ErrDecryptionFailed      ErrorCode = "DECRYPTION_FAILED"
	ErrHashMismatch          ErrorCode = "HASH_MISMATCH"
	ErrInvalidURLFormat      ErrorCode = "INVALID_URL_FORMAT"
	ErrMissingSecretID       ErrorCode = "MISSING_SECRET_ID"
	ErrMissingDecryptionKey  ErrorCode = "MISSING_DECRYPTION_KEY"
	ErrMissingHash           ErrorCode = "MISSING_HASH"
	ErrInvalidPayload        ErrorCode = "INVALID_PAYLOAD"
	ErrInvalidServerResponse ErrorCode = "INVALID_SERVER_RESPONSE"
	ErrInvalidRestrictions   ErrorCode = "INVALID_RESTRICTIONS"

	ErrInternal ErrorCode = "INTERNAL"
)

// statusFor maps each server-observable error code to its HTTP status,
// per spec.md §4.2/§4.3's error mapping tables.
var statusFor = map[ErrorCode]int{
	ErrAuthenticationRequired: http.StatusUnauthorized,
	ErrInvalidToken:           http.StatusForbidden,
	ErrPayloadTooLarge:        http.StatusRequestEntityTooLarge,
	ErrInvalidRestrictions:    http.StatusBadRequest,
	ErrNotSupported:           http.StatusNotImplemented,
	ErrSendFailed:             http.StatusInternalServerError,

	ErrPassphraseRequired:    http.StatusUnauthorized,
	ErrAccessDenied:          http.StatusForbidden,
	ErrSecretNotFound:        http.StatusNotFound,
	ErrSecretAlreadyAccessed: http.StatusGone,

	ErrInternal: http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for a server-observable error code,
// defaulting to 500 for anything not in the table (a deliberately
// generic INTERNAL condition, never a more specific guess).
func StatusFor(code ErrorCode) int {
	if status, ok := statusFor[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
