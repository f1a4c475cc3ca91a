package main

import (
	"flag"
	"fmt"
	"os"
)

const version = "1.0.0"

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"run", "Stream bank SMS, store them and show popups", cmdRun},
	{"parse", "Parse one SMS and print the transaction as JSON", cmdParse},
	{"validate", "Check whether an SMS looks like a supported bank message", cmdValidate},
	{"samples", "Print the sample SMS of every supported bank", cmdSamples},
	{"backfill", "Import SMS archives (.txt or .pdf) into the database", cmdBackfill},
	{"export", "Write stored transactions to CSV", cmdExport},
	{"history", "Fetch recent pushes from Pushbullet and parse them", cmdHistory},
	{"test-relay", "Check the Pushbullet access token", cmdTestRelay},
}

func main() {
	flag.Usage = usage
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("bank-sms-notifier v%s\n", version)
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Bank SMS Notifier
by Insight Delivered

Relays VietinBank and Vietcombank transaction SMS from a phone through
Pushbullet and shows them as a stack of popups.

Usage:
  bank-sms-notifier [flags] <command> [command flags]

Commands:
`)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, `
Flags:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  # Run the notifier with settings from .env
  bank-sms-notifier run

  # Try the parser on a message
  bank-sms-notifier parse "SD TK 0811000010904 +1,400,000VND luc 11-08-2025 11:26:18. SD 29,796,653VND. Ref ..."

  # Import an exported SMS archive and write it to CSV
  bank-sms-notifier backfill --csv=august.csv sms-backup.pdf

Configuration is read from the environment and an optional .env file.
PUSHBULLET_API_KEY is required by run, history and test-relay.
`)
}
