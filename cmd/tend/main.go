package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

var correlationIDValue atomic.Value

func init() {
	correlationIDValue.Store("")
}

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	startedAt := time.Now()
	correlationID := newCorrelationID(arguments)
	setCurrentCorrelationID(correlationID)
	command := normalizeCommand(arguments)
	writeOperationalEvent(operationalEvent{
		Phase:         "start",
		Command:       command,
		CorrelationID: correlationID,
		At:            startedAt.UTC(),
	})
	exitCode := runDispatch(arguments)
	writeOperationalEvent(operationalEvent{
		Phase:         "end",
		Command:       command,
		CorrelationID: correlationID,
		ExitCode:      exitCode,
		ElapsedMillis: time.Since(startedAt).Milliseconds(),
		At:            time.Now().UTC(),
	})
	setCurrentCorrelationID("")
	return exitCode
}

func runDispatch(arguments []string) int {
	if len(arguments) < 2 {
		fmt.Println("tend", version)
		return exitOK
	}
	if arguments[1] == "--explain" {
		return writeExplain("Tend is an offline-first CLI for schema-validated session and list state with dry-run previews and confirm-gated destructive mutations.")
	}

	switch arguments[1] {
	case "session":
		return runSession(arguments[2:])
	case "list":
		return runList(arguments[2:])
	case "registry":
		return runRegistry(arguments[2:])
	case "schema":
		return runSchema(arguments[2:])
	case "doctor":
		return runDoctor(arguments[2:])
	case "version", "--version", "-v":
		if hasExplainFlag(arguments[2:]) {
			return writeExplain("Print the CLI version.")
		}
		fmt.Println("tend", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func normalizeCommand(arguments []string) string {
	if len(arguments) < 2 {
		return "version"
	}
	command := strings.TrimSpace(arguments[1])
	switch command {
	case "":
		return "unknown"
	case "--version", "-v", "version":
		return "version"
	case "--help", "-h", "help":
		return "help"
	case "--explain":
		return "explain"
	case "session", "list", "registry", "schema":
		if len(arguments) > 2 {
			subcommand := strings.TrimSpace(arguments[2])
			if subcommand != "" && !strings.HasPrefix(subcommand, "-") {
				return command + " " + subcommand
			}
		}
	}
	return command
}

func newCorrelationID(arguments []string) string {
	if len(arguments) == 0 {
		return "000000000000000000000000"
	}
	normalized := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		normalized = append(normalized, strings.TrimSpace(argument))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "\x1f")))
	return hex.EncodeToString(sum[:12])
}

func setCurrentCorrelationID(correlationID string) {
	correlationIDValue.Store(strings.TrimSpace(correlationID))
}

func currentCorrelationID() string {
	value, _ := correlationIDValue.Load().(string)
	return strings.TrimSpace(value)
}

func hasExplainFlag(arguments []string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == "--explain" {
			return true
		}
	}
	return false
}

func writeExplain(text string) int {
	fmt.Println(text)
	return exitOK
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  tend session init --conversation <id> --type build|research|discussion|planning [--load-system] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend session update --conversation <id> [--note <text>] [--decision <text>] [--phase <name>] [--objective-add <text>]... [--objective-done <text>]... [--version <n>] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend session terminate --conversation <id> [--dry-run | --confirm <token>] [--version <n>] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend session status --conversation <id> [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend session log --conversation <id> [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list create --name <display name> --stages <csv> [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list add --list <ref> --stage <stage> --content <text> [--meta <k=v>]... [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list move --list <ref> --item <id> --from <stage> --to <stage> [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list delete --list <ref> [--dry-run | --confirm <token>] [--version <n>] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list remove-stage --list <ref> --stage <stage> [--reassign <stage>] [--dry-run | --confirm <token>] [--version <n>] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list show --list <ref> [--stage <stage>] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend registry list [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend registry resolve --trigger <text> [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend schema check --schema <ref> --record <file.json> [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend doctor [--summary] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend version")
}
