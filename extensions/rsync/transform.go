package rsync

import (
	"regexp"
	"strconv"
	"strings"
)

var safeWord = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// quote makes s a single shell word. A leading ~/ stays unquoted so the
// shell expands it.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if rest, ok := strings.CutPrefix(s, "~/"); ok && rest != "" {
		return "~/" + quote(rest)
	}
	if safeWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// CommandLine renders e as a /bin/sh command line.
func CommandLine(rsyncPath string, e Entry) string {
	words := []string{quote(rsyncPath)}
	for _, f := range e.Flags {
		words = append(words, quote(f))
	}
	if e.Delete {
		words = append(words, "--delete")
	}
	if e.DryRun {
		words = append(words, "--dry-run")
	}
	for _, x := range e.Excludes {
		words = append(words, "--exclude="+quote(x))
	}
	if e.SSHPort > 0 {
		words = append(words, "-e", quote("ssh -p "+strconv.Itoa(e.SSHPort)))
	}
	words = append(words, quote(e.Source), quote(e.Destination))
	return strings.Join(words, " ")
}

// splitList splits on commas and newlines, dropping blanks.
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// entryFromValues builds an entry from validated form values.
func entryFromValues(v map[string]string) Entry {
	port, _ := strconv.Atoi(v["ssh_port"])
	e := Entry{
		Name:        strings.TrimSpace(v["name"]),
		Source:      strings.TrimSpace(v["source"]),
		Destination: strings.TrimSpace(v["destination"]),
		Flags:       strings.Fields(v["flags"]),
		Excludes:    splitList(v["excludes"]),
		SSHPort:     port,
		Delete:      v["delete"] == "true",
		DryRun:      v["dry_run"] == "true",
	}
	if e.Name == "" {
		e.Name = e.Source + " → " + e.Destination
	}
	return e
}
