// Command hashpw prints a bcrypt hash for FOLIO_ADMIN_PASSWORD_HASH or
// FOLIO_VIEWER_PASSWORD_HASH.
//
// The password is read from the terminal without echo, or from stdin when
// stdin is not a terminal:
//
//	hashpw
//	printf '%s' "$PW" | hashpw -cost 12
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/keithlinneman/linnemanlabs-folio/internal/auth"
)

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost (4..31)")
	envLine := flag.Bool("env", false, "print as a FOLIO_ADMIN_PASSWORD_HASH= line")
	flag.Parse()

	if err := run(os.Stdin, os.Stdout, os.Stderr, *cost, *envLine); err != nil {
		fmt.Fprintln(os.Stderr, "hashpw:", err)
		os.Exit(1)
	}
}

func run(stdin *os.File, stdout, stderr io.Writer, cost int, envLine bool) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("cost must be %d..%d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	var pw string
	var err error
	if term.IsTerminal(int(stdin.Fd())) {
		pw, err = prompt(stdin, stderr)
	} else {
		pw, err = readLine(stdin)
	}
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(pw, cost)
	if err != nil {
		return err
	}
	if envLine {
		// single quotes keep $ in the hash literal for dotenv and shells
		_, err = fmt.Fprintf(stdout, "FOLIO_ADMIN_PASSWORD_HASH='%s'\n", hash)
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func prompt(tty *os.File, stderr io.Writer) (string, error) {
	fd := int(tty.Fd())

	fmt.Fprint(stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(stderr, "Confirm:  ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

// readLine reads the first line of r without its line ending.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
