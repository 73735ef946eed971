// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/dane"
	"github.com/jeremyhahn/go-certpin/pkg/distributor"
)

// daneCmd is the parent command for DANE/TLSA operations.
var daneCmd = &cobra.Command{
	Use:   "dane",
	Short: "DANE/TLSA record tools",
	Long: `Tools for publishing pins as DANE TLSA records (RFC 6698) and reading
them back. DANE-EE records with selector 0 and matching type 1 (3 0 1) carry
exactly the pin fingerprint and can serve as fallback entries through
--dane-fallback.`,
}

var daneLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Display TLSA records and the pins they carry",
	RunE:  runDANELookup,
}

var daneVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a certificate against TLSA records",
	Long: `Resolve the TLSA records of --host and check that the certificate from
--cert-file, or the chain presented by the live server, matches one of them.`,
	RunE: runDANEVerify,
}

var daneGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate TLSA records for DNS publishing",
	Long: `Generate zone file lines from a certificate or from a signed
fingerprint document. Document entries produce one 3 0 1 record each, owned
by the entry's common name. --all emits every DANE-EE combination for a
certificate.`,
	RunE: runDANEGenerate,
}

func init() {
	daneCmd.AddCommand(daneLookupCmd)
	daneCmd.AddCommand(daneVerifyCmd)
	daneCmd.AddCommand(daneGenerateCmd)

	pf := daneCmd.PersistentFlags()
	pf.Bool("dns-over-tls", false, "use DNS-over-TLS for TLSA lookups")
	pf.String("dns-tls-server-name", "", "TLS server name for DNS-over-TLS")
	pf.Bool("require-ad", false, "require a DNSSEC-validated (AD) answer")

	daneLookupCmd.Flags().String("host", "", "hostname to query (required)")
	daneLookupCmd.Flags().Uint16("port", defaultTLSPort, "TLS port of the service")

	daneVerifyCmd.Flags().String("host", "", "hostname to query (required)")
	daneVerifyCmd.Flags().Uint16("port", defaultTLSPort, "TLS port of the service")
	daneVerifyCmd.Flags().String("cert-file", "", "PEM certificate to verify (default: connect to host:port)")

	daneGenerateCmd.Flags().String("cert-file", "", "PEM certificate file")
	daneGenerateCmd.Flags().String("document", "", "signed fingerprint document")
	daneGenerateCmd.Flags().String("host", "", "owner hostname for --cert-file records")
	daneGenerateCmd.Flags().Uint16("port", defaultTLSPort, "TLS port of the service")
	daneGenerateCmd.Flags().Bool("all", false, "emit all DANE-EE selector and matching combinations")
}

// newDANEResolver builds a resolver from the --dns-server setting and the
// dane persistent flags.
func newDANEResolver(cmd *cobra.Command) (*dane.Resolver, error) {
	useTLS, _ := cmd.Flags().GetBool("dns-over-tls")
	tlsServerName, _ := cmd.Flags().GetString("dns-tls-server-name")
	requireAD, _ := cmd.Flags().GetBool("require-ad")

	resolver, err := dane.NewResolver(&dane.ResolverConfig{
		Server:        config.GetString(keyDNSServer),
		UseTLS:        useTLS,
		TLSServerName: tlsServerName,
		RequireAD:     requireAD,
		Timeout:       config.GetDuration(keyTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: resolver: %w", ErrInvalidInput, err)
	}
	return resolver, nil
}

// recordOutput is one TLSA record.
type recordOutput struct {
	Usage        string `json:"usage"`
	Selector     string `json:"selector"`
	MatchingType string `json:"matching_type"`
	Data         string `json:"data"`
	TTL          string `json:"ttl"`
	Pin          bool   `json:"pin"`
}

// lookupOutput is the dane lookup result.
type lookupOutput struct {
	Name    string         `json:"name"`
	Records []recordOutput `json:"records"`
	Pins    []entryOutput  `json:"pins"`
}

func runDANELookup(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetUint16("port")
	if host == "" {
		return fmt.Errorf("%w: --host is required", ErrInvalidInput)
	}

	resolver, err := newDANEResolver(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	slog.Debug("querying TLSA records", "host", host, "port", port, "dns_server", resolver.Server())
	records, err := resolver.LookupTLSA(ctx, host, port)
	if err != nil {
		return fmt.Errorf("%w: TLSA lookup: %w", ErrFetchFailed, err)
	}

	out := lookupOutput{Name: fmt.Sprintf("_%d._tcp.%s", port, strings.TrimSuffix(host, "."))}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		r := recordOutput{
			Usage:        tlsaName(usageNames, rec.Usage),
			Selector:     tlsaName(selectorNames, rec.Selector),
			MatchingType: tlsaName(matchingNames, rec.MatchingType),
			Data:         hex.EncodeToString(rec.CertData),
			TTL:          rec.TTL.String(),
			Pin:          rec.IsPin(),
		}
		out.Records = append(out.Records, r)
		rows = append(rows, []string{
			fmt.Sprintf("%d %s", rec.Usage, r.Usage),
			fmt.Sprintf("%d %s", rec.Selector, r.Selector),
			fmt.Sprintf("%d %s", rec.MatchingType, r.MatchingType),
			r.TTL,
			strconv.FormatBool(r.Pin),
			r.Data,
		})
	}

	expires := time.Now().Add(dane.DefaultPinValidity)
	for _, e := range dane.Entries(records, strings.TrimSuffix(host, "."), expires) {
		out.Pins = append(out.Pins, newEntryOutput(e, "dane"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "TLSA records for %s:\n\n", out.Name)
	b.WriteString(renderTable([]string{"USAGE", "SELECTOR", "MATCHING", "TTL", "PIN", "DATA"}, rows))
	fmt.Fprintf(&b, "\nTotal: %d record(s), %d usable as pins", len(records), len(out.Pins))
	return printResult(out, b.String())
}

func runDANEVerify(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetUint16("port")
	certFile, _ := cmd.Flags().GetString("cert-file")
	if host == "" {
		return fmt.Errorf("%w: --host is required", ErrInvalidInput)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	var certs []*x509.Certificate
	var err error
	if certFile != "" {
		certs, err = loadCertificatesPEMFile(certFile)
	} else {
		certs, err = fetchPeerCertificates(ctx, fmt.Sprintf("%s:%d", host, port), host)
	}
	if err != nil {
		return err
	}

	resolver, err := newDANEResolver(cmd)
	if err != nil {
		return err
	}
	records, err := resolver.LookupTLSA(ctx, host, port)
	if err != nil {
		return fmt.Errorf("%w: TLSA lookup: %w", ErrFetchFailed, err)
	}

	out := map[string]any{"host": host, "port": port, "records": len(records)}
	if err := dane.VerifyAny(certs, records); err != nil {
		out["result"] = "fail"
		_ = printResult(out, fmt.Sprintf("%s: FAIL (%d record(s), none matched)", host, len(records)))
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	out["result"] = "pass"
	return printResult(out, fmt.Sprintf("%s: PASS (%d record(s))", host, len(records)))
}

func runDANEGenerate(cmd *cobra.Command, args []string) error {
	certFile, _ := cmd.Flags().GetString("cert-file")
	docFile, _ := cmd.Flags().GetString("document")
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetUint16("port")
	all, _ := cmd.Flags().GetBool("all")

	var records []*dane.ZoneRecord
	switch {
	case certFile != "" && docFile != "":
		return fmt.Errorf("%w: --cert-file and --document are mutually exclusive", ErrInvalidInput)
	case docFile != "":
		data, err := os.ReadFile(docFile)
		if err != nil {
			return fmt.Errorf("%w: reading %s: %w", ErrFileOperation, docFile, err)
		}
		entries, err := distributor.ParseDocument(data)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidInput, docFile, err)
		}
		if records, err = dane.GenerateFromEntries(liveEntries(entries), port); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	case certFile != "":
		certs, err := loadCertificatesPEMFile(certFile)
		if err != nil {
			return err
		}
		if host == "" {
			host = certs[0].Subject.CommonName
		}
		if all {
			records, err = dane.GenerateCommonRecords(certs[0], host, port)
		} else {
			var rec *dane.ZoneRecord
			rec, err = dane.GenerateRecord(certs[0], host, port)
			records = []*dane.ZoneRecord{rec}
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	default:
		return fmt.Errorf("%w: --cert-file or --document is required", ErrInvalidInput)
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, rec.ZoneLine)
	}
	return printResult(records, strings.Join(lines, "\n"))
}

// liveEntries drops expired entries.
func liveEntries(entries []certstore.Entry) []certstore.Entry {
	now := time.Now()
	out := entries[:0:0]
	for _, e := range entries {
		if !e.IsExpired(now) {
			out = append(out, e)
		} else {
			slog.Debug("skipping expired entry", "name", e.CommonName, "expires", e.Expires)
		}
	}
	return out
}

var usageNames = map[uint8]string{
	dane.UsageCAConstraint: "PKIX-TA",
	dane.UsageServiceCert:  "PKIX-EE",
	dane.UsageDANETA:       "DANE-TA",
	dane.UsageDANEEE:       "DANE-EE",
}

var selectorNames = map[uint8]string{
	dane.SelectorFullCert: "Full Certificate",
	dane.SelectorSPKI:     "SubjectPublicKeyInfo",
}

var matchingNames = map[uint8]string{
	dane.MatchingExact:  "Exact Match",
	dane.MatchingSHA256: "SHA-256",
	dane.MatchingSHA512: "SHA-512",
}

func tlsaName(names map[uint8]string, v uint8) string {
	if name, ok := names[v]; ok {
		return name
	}
	return "Unknown"
}
