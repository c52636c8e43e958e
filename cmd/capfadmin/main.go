// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// capfadmin is a read-only inspection tool for the CAPF device store. It
// does not implement the wire protocol; it talks to the SQLite database
// directly, the way an operator debugging a stuck phone enrollment would.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"capf-tvs-gateway/internal/store"
	"capf-tvs-gateway/internal/store/sqlite"
)

var storePath = flag.String("store", "", "Path to the CAPF SQLite store")

func main() {
	flag.Usage = usage
	flag.Parse()

	if *storePath == "" {
		fmt.Fprintln(os.Stderr, "capfadmin: -store is required")
		usage()
		os.Exit(2)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	db, err := sqlite.OpenCAPFStore(*storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "capfadmin: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	var cmdErr error
	switch args[0] {
	case "list":
		cmdErr = runList(db)
	case "show":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "capfadmin: show requires a device name")
			os.Exit(2)
		}
		cmdErr = runDevice(db, args[1])
	default:
		fmt.Fprintf(os.Stderr, "capfadmin: unknown subcommand %q\n", args[0])
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "capfadmin: %v\n", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: capfadmin -store <path> <command> [args]

Commands:
  list             list all known devices
  show <name>      show full detail for one device

`)
	flag.PrintDefaults()
}

func runList(db *sqlite.CAPFStore) error {
	devices, err := db.ListDevices()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tOPERATION\tAUTH_MODE\tSERIAL\tLAST_SESSION\tLAST_SEEN")
	for _, d := range devices {
		lastSeen := "-"
		if !d.LastSeenAt.IsZero() {
			lastSeen = d.LastSeenAt.Format("2006-01-02T15:04:05Z")
		}
		serial := d.SerialHex
		if serial == "" {
			serial = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			d.DeviceName, d.Operation, d.AuthMode, serial, d.LastSessionID, lastSeen)
	}
	return w.Flush()
}

func runDevice(db *sqlite.CAPFStore, name string) error {
	d, err := db.GetDevice(name)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("no such device: %s", name)
	}
	printDevice(d)
	return nil
}

func printDevice(d *store.Device) {
	fmt.Printf("device_name:       %s\n", d.DeviceName)
	fmt.Printf("operation:         %s\n", d.Operation)
	fmt.Printf("auth_mode:         %s\n", d.AuthMode)
	if d.KeySize > 0 {
		fmt.Printf("key_size:          %d\n", d.KeySize)
	}
	if d.Curve != "" {
		fmt.Printf("curve:             %s\n", d.Curve)
	}
	if d.SerialHex != "" {
		fmt.Printf("serial:            %s\n", d.SerialHex)
		fmt.Printf("not_valid_before:  %s\n", d.NotValidBefore)
		fmt.Printf("not_valid_after:   %s\n", d.NotValidAfter)
	} else {
		fmt.Println("certificate:       none issued")
	}
	if d.LastSessionID != 0 {
		fmt.Printf("last_session_id:   %d\n", d.LastSessionID)
		fmt.Printf("last_seen_at:      %s\n", d.LastSeenAt)
	}
}
