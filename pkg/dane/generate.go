// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package dane

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

// commonRecordParams lists the DANE-EE parameter sets published by
// GenerateCommonRecords, the preferred 3 0 1 form first.
var commonRecordParams = []struct {
	Usage        uint8
	Selector     uint8
	MatchingType uint8
}{
	{UsageDANEEE, SelectorFullCert, MatchingSHA256},
	{UsageDANEEE, SelectorSPKI, MatchingSHA256},
	{UsageDANEEE, SelectorFullCert, MatchingSHA512},
	{UsageDANEEE, SelectorSPKI, MatchingSHA512},
}

// GenerateRecord returns the 3 0 1 record pinning cert, the form LookupPins
// understands.
func GenerateRecord(cert *x509.Certificate, hostname string, port uint16) (*ZoneRecord, error) {
	return GenerateRecordFull(cert, hostname, port, UsageDANEEE, SelectorFullCert, MatchingSHA256)
}

// GenerateRecordFull returns a zone record with explicit parameters. The
// usage is copied into the record as given; selector and matching type must
// be supported by ComputeAssociationData.
func GenerateRecordFull(cert *x509.Certificate, hostname string, port uint16, usage, selector, matchingType uint8) (*ZoneRecord, error) {
	if cert == nil {
		return nil, ErrInvalidCertificate
	}
	if err := checkTarget(hostname, port); err != nil {
		return nil, err
	}
	data, err := ComputeAssociationData(cert, selector, matchingType)
	if err != nil {
		return nil, err
	}
	return zoneRecord(hostname, port, &Record{Usage: usage, Selector: selector, MatchingType: matchingType, CertData: data}), nil
}

// GenerateCommonRecords returns the DANE-EE records for both selectors and
// both hash algorithms.
func GenerateCommonRecords(cert *x509.Certificate, hostname string, port uint16) ([]*ZoneRecord, error) {
	records := make([]*ZoneRecord, 0, len(commonRecordParams))
	for _, p := range commonRecordParams {
		rec, err := GenerateRecordFull(cert, hostname, port, p.Usage, p.Selector, p.MatchingType)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// GenerateFromEntries returns one 3 0 1 record per entry, owned by the
// entry's common name.
func GenerateFromEntries(entries []certstore.Entry, port uint16) ([]*ZoneRecord, error) {
	records := make([]*ZoneRecord, 0, len(entries))
	for _, e := range entries {
		if err := checkTarget(e.CommonName, port); err != nil {
			return nil, err
		}
		rec, err := RecordFromEntry(e)
		if err != nil {
			return nil, err
		}
		records = append(records, zoneRecord(e.CommonName, port, rec))
	}
	return records, nil
}

func checkTarget(hostname string, port uint16) error {
	if hostname == "" {
		return ErrInvalidHostname
	}
	if port == 0 {
		return ErrInvalidPort
	}
	return nil
}

func zoneRecord(hostname string, port uint16, r *Record) *ZoneRecord {
	name := formatTLSAName(hostname, port)
	hexData := hex.EncodeToString(r.CertData)
	return &ZoneRecord{
		Name:         name,
		Usage:        r.Usage,
		Selector:     r.Selector,
		MatchingType: r.MatchingType,
		HexData:      hexData,
		ZoneLine:     fmt.Sprintf("%s IN TLSA %d %d %d %s", name, r.Usage, r.Selector, r.MatchingType, hexData),
	}
}
