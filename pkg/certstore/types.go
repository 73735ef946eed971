// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

// UpdateMode expresses what the caller wants from an update request.
type UpdateMode int

const (
	// UpdateModeDefault fetches only when the update policy requires it.
	UpdateModeDefault UpdateMode = iota

	// UpdateModeForced always fetches.
	UpdateModeForced
)

// UpdateType describes what an update request actually does.
type UpdateType int

const (
	// UpdateTypeNone means no fetch is needed; the request completes with UpdateOK.
	UpdateTypeNone UpdateType = iota

	// UpdateTypeDirect means the store has no usable data and the caller
	// should wait for the update before relying on validation.
	UpdateTypeDirect

	// UpdateTypeSilent means the store has usable data and refreshes it in
	// the background.
	UpdateTypeSilent
)

// UpdateResult is the terminal outcome of an update attempt.
type UpdateResult int

const (
	// UpdateOK means the update succeeded or no fetch was needed.
	UpdateOK UpdateResult = iota

	// UpdateStoreIsEmpty means the service returned no usable entries.
	UpdateStoreIsEmpty

	// UpdateNetworkError means the transport or the storage collaborator failed.
	UpdateNetworkError

	// UpdateInvalidData means the payload could not be parsed.
	UpdateInvalidData

	// UpdateInvalidSignature means an entry or the response signature did not verify.
	UpdateInvalidSignature
)

// ValidationResult is the three-valued trust verdict for a certificate.
type ValidationResult int

const (
	// ValidationTrusted means the fingerprint matches a pinned entry.
	ValidationTrusted ValidationResult = iota

	// ValidationUntrusted means pins exist for the host but none match, or
	// the host is outside the expected common names.
	ValidationUntrusted

	// ValidationEmpty means no pinning data is available for the host.
	ValidationEmpty
)

var updateModeNames = map[UpdateMode]string{
	UpdateModeDefault: "default",
	UpdateModeForced:  "forced",
}

var updateTypeNames = map[UpdateType]string{
	UpdateTypeNone:   "none",
	UpdateTypeDirect: "direct",
	UpdateTypeSilent: "silent",
}

var updateResultNames = map[UpdateResult]string{
	UpdateOK:               "ok",
	UpdateStoreIsEmpty:     "store_is_empty",
	UpdateNetworkError:     "network_error",
	UpdateInvalidData:      "invalid_data",
	UpdateInvalidSignature: "invalid_signature",
}

var validationResultNames = map[ValidationResult]string{
	ValidationTrusted:   "trusted",
	ValidationUntrusted: "untrusted",
	ValidationEmpty:     "empty",
}

func (m UpdateMode) String() string {
	if name, ok := updateModeNames[m]; ok {
		return name
	}
	return "unknown"
}

func (t UpdateType) String() string {
	if name, ok := updateTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

func (r UpdateResult) String() string {
	if name, ok := updateResultNames[r]; ok {
		return name
	}
	return "unknown"
}

func (v ValidationResult) String() string {
	if name, ok := validationResultNames[v]; ok {
		return name
	}
	return "unknown"
}
