// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the fingerprint database from the service",
	Long: `Fetch the signed fingerprint document from the service, verify every
entry against the distributor public key and persist the result.

Without --forced the update only talks to the service when the cached
database is empty, expired or due for a periodic refresh.`,
	RunE: runUpdate,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the fingerprints held by the local database",
	RunE:  runList,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the persisted fingerprint database",
	RunE:  runReset,
}

func init() {
	updateCmd.Flags().Bool("forced", false, "fetch even when the cached database is current")
}

// updateOutput is the update command result.
type updateOutput struct {
	Type       string    `json:"type"`
	Result     string    `json:"result"`
	Entries    int       `json:"entries"`
	NextUpdate time.Time `json:"next_update,omitempty"`
}

func runUpdate(cmd *cobra.Command, args []string) error {
	forced, _ := cmd.Flags().GetBool("forced")

	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, closeStore, err := openClientStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	mode := certstore.UpdateModeDefault
	if forced {
		mode = certstore.UpdateModeForced
	}
	updateType, result, err := store.Update(ctx, mode)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	db := store.Database()
	out := updateOutput{
		Type:       updateType.String(),
		Result:     result.String(),
		Entries:    len(db.Entries()),
		NextUpdate: db.NextUpdate(),
	}
	text := fmt.Sprintf("update: %s (%s), %d entries", out.Result, out.Type, out.Entries)
	if !out.NextUpdate.IsZero() {
		text += ", next update " + out.NextUpdate.UTC().Format(time.RFC3339)
	}
	if err := printResult(out, text); err != nil {
		return err
	}

	if result != certstore.UpdateOK {
		return fmt.Errorf("%w: %s", ErrFetchFailed, result)
	}
	return nil
}

// entryOutput is one database entry as printed by list.
type entryOutput struct {
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	Expires     time.Time `json:"expires"`
	Source      string    `json:"source"`
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, closeStore, err := openClientStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	db := store.Database()
	var out []entryOutput
	for _, e := range db.Entries() {
		out = append(out, newEntryOutput(e, "service"))
	}
	for _, e := range db.Fallback() {
		out = append(out, newEntryOutput(e, "fallback"))
	}

	rows := make([][]string, 0, len(out))
	for _, e := range out {
		rows = append(rows, []string{e.Name, e.Fingerprint, e.Expires.UTC().Format(time.RFC3339), e.Source})
	}
	return printResult(out, renderTable([]string{"NAME", "FINGERPRINT", "EXPIRES", "SOURCE"}, rows))
}

func newEntryOutput(e certstore.Entry, source string) entryOutput {
	return entryOutput{
		Name:        e.CommonName,
		Fingerprint: hex.EncodeToString(e.Fingerprint),
		Expires:     e.Expires.UTC(),
		Source:      source,
	}
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, closeStore, err := openClientStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Reset(); err != nil {
		return fmt.Errorf("%w: %w", ErrFileOperation, err)
	}
	return printResult(map[string]string{"result": "reset"}, "fingerprint database reset")
}

// commandContext bounds a client command at twice --timeout, enough for a
// DANE lookup followed by a fetch.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := config.GetDuration(keyTimeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, 2*timeout)
}
