package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type cliOptions struct {
	command    string
	message    string
	configPath string
	cdpURL     string
	addr       string
	port       int
	binary     string
	startURL   string
	timeoutSec int
	noWait     bool
	verbose    bool
}

func parseArgs() cliOptions {
	opts := cliOptions{}

	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "--") {
		opts.command = args[0]
		args = args[1:]
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--help":
			printHelp()
			os.Exit(0)
		case "--config":
			if i+1 < len(args) {
				opts.configPath = args[i+1]
				i++
			}
		case "--cdp-url":
			if i+1 < len(args) {
				opts.cdpURL = args[i+1]
				i++
			}
		case "--addr":
			if i+1 < len(args) {
				opts.addr = args[i+1]
				i++
			}
		case "--port":
			if i+1 < len(args) {
				if val, err := strconv.Atoi(args[i+1]); err == nil && val > 0 {
					opts.port = val
				}
				i++
			}
		case "--binary":
			if i+1 < len(args) {
				opts.binary = args[i+1]
				i++
			}
		case "--url":
			if i+1 < len(args) {
				opts.startURL = args[i+1]
				i++
			}
		case "--timeout":
			if i+1 < len(args) {
				if val, err := strconv.Atoi(args[i+1]); err == nil && val > 0 {
					opts.timeoutSec = val
				}
				i++
			}
		case "--no-wait":
			opts.noWait = true
		case "--verbose":
			opts.verbose = true
		default:
			if opts.command == "chat" && opts.message == "" && !strings.HasPrefix(arg, "--") {
				opts.message = arg
			}
		}
	}

	return opts
}

func printHelp() {
	fmt.Print(`orcabridge - drive a browser chat session from the command line

Usage: orcabridge <command> [options]

Commands:
  launch                     Start a browser with remote debugging enabled
  chat [message]             Send a message and print the reply; without a
                             message, start an interactive loop
  messages                   Print the current conversation
  status                     Show which tab would be used
  page                       Dump the current page as plain text
  serve                      Run the local HTTP control server
  help                       Show this help message

Options:
  --config <path>            Load settings from a YAML file
  --cdp-url <url>            Remote debugging endpoint (default: http://127.0.0.1:9222)
  --addr <host:port>         Listen address for serve (default: 127.0.0.1:18765)
  --port <number>            Remote debugging port for launch (default: 9222)
  --binary <path>            Browser executable for launch (default: autodetect)
  --url <url>                Page to open on launch (default: the chat app)
  --timeout <seconds>        How long to wait for a reply (default: 60)
  --no-wait                  Send without waiting for the reply
  --verbose                  Debug logging

Examples:
  orcabridge launch
  orcabridge chat "summarize this file for me"
  orcabridge chat --timeout 120 "a longer question"
  orcabridge serve --addr 127.0.0.1:18765
`)
}
