// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package dane

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

func TestGenerateRecord_PinForm(t *testing.T) {
	cert := generateTestCert(t, "api.example.com")
	sum := sha256.Sum256(cert.Raw)

	rec, err := GenerateRecord(cert, "api.example.com", 443)
	require.NoError(t, err)
	assert.Equal(t, "_443._tcp.api.example.com.", rec.Name)
	assert.Equal(t, UsageDANEEE, rec.Usage)
	assert.Equal(t, SelectorFullCert, rec.Selector)
	assert.Equal(t, MatchingSHA256, rec.MatchingType)
	assert.Equal(t, hex.EncodeToString(sum[:]), rec.HexData)
	assert.Equal(t, fmt.Sprintf("_443._tcp.api.example.com. IN TLSA 3 0 1 %x", sum[:]), rec.ZoneLine)
}

func TestGenerateRecordFull_Errors(t *testing.T) {
	cert := generateTestCert(t, "api.example.com")

	_, err := GenerateRecordFull(nil, "a.example.com", 443, 3, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidCertificate)
	_, err = GenerateRecordFull(cert, "", 443, 3, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidHostname)
	_, err = GenerateRecordFull(cert, "a.example.com", 0, 3, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidPort)
	_, err = GenerateRecordFull(cert, "a.example.com", 443, 3, 5, 1)
	assert.ErrorIs(t, err, ErrUnsupportedSelector)
	_, err = GenerateRecordFull(cert, "a.example.com", 443, 3, 0, 5)
	assert.ErrorIs(t, err, ErrUnsupportedMatching)
}

func TestGenerateCommonRecords(t *testing.T) {
	cert := generateTestCert(t, "api.example.com")

	records, err := GenerateCommonRecords(cert, "api.example.com", 8443)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for i, rec := range records {
		assert.Equal(t, commonRecordParams[i].Selector, rec.Selector)
		assert.Equal(t, commonRecordParams[i].MatchingType, rec.MatchingType)
		assert.True(t, strings.HasPrefix(rec.ZoneLine, "_8443._tcp.api.example.com. IN TLSA 3 "))
	}
	assert.Len(t, records[2].HexData, 128, "sha512 digest")

	_, err = GenerateCommonRecords(nil, "api.example.com", 443)
	assert.ErrorIs(t, err, ErrInvalidCertificate)
}

func TestGenerateFromEntries(t *testing.T) {
	fp := sha256.Sum256([]byte("pin"))
	entries := []certstore.Entry{
		{CommonName: "a.example.com", Fingerprint: fp[:], Expires: time.Now().Add(time.Hour)},
		{CommonName: "b.example.com", Fingerprint: fp[:], Expires: time.Now().Add(time.Hour)},
	}

	records, err := GenerateFromEntries(entries, 443)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "_443._tcp.a.example.com. IN TLSA 3 0 1 "+hex.EncodeToString(fp[:]), records[0].ZoneLine)
	assert.Equal(t, "_443._tcp.b.example.com.", records[1].Name)

	_, err = GenerateFromEntries([]certstore.Entry{{CommonName: "a.example.com", Fingerprint: []byte{1}}}, 443)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	_, err = GenerateFromEntries(entries, 0)
	assert.ErrorIs(t, err, ErrInvalidPort)
}
