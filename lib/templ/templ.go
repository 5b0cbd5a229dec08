// Package templ renders the service descriptors minit installs for the init
// systems it can chain into.
package templ

import (
	"sort"
	"strings"
	"text/template"

	"github.com/Nanite-Factory-Games/minit/lib"
)

// service is the data every descriptor template sees.
type service struct {
	Argv []string
	Env  [][2]string // sorted key/value pairs
}

func newService(cfg *lib.SystemConfig) service {
	s := service{Argv: cfg.Command()}

	keys := make([]string, 0, len(cfg.Environment))
	for k := range cfg.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Env = append(s.Env, [2]string{k, cfg.Environment[k]})
	}
	return s
}

var funcs = template.FuncMap{
	"sh":      shellJoin,
	"shq":     shellQuote,
	"dq":      doubleQuoted,
	"unit":    unitJoin,
	"unitenv": unitEnv,
}

func render(t *template.Template, cfg *lib.SystemConfig) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, newService(cfg)); err != nil {
		return "", err
	}
	return b.String(), nil
}

func shellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_./=:,+@%", r)
}

// shellQuote quotes s for a POSIX shell, leaving plain words untouched.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool { return !shellSafe(r) }) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// doubleQuoted escapes s for use inside a double-quoted shell string.
func doubleQuoted(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
	return r.Replace(s)
}

var unitEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)

// unitQuote quotes a word for a systemd unit file. % and $ are specifier and
// variable prefixes there and are doubled. Line breaks are C-escaped so a
// value can never start a directive of its own.
func unitQuote(s string) string {
	s = strings.NewReplacer("%", "%%", "$", "$$").Replace(s)
	if s != "" && strings.IndexFunc(s, func(r rune) bool { return !shellSafe(r) }) < 0 {
		return s
	}
	return `"` + unitEscaper.Replace(s) + `"`
}

func unitJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = unitQuote(a)
	}
	return strings.Join(quoted, " ")
}

func unitEnv(kv [2]string) string {
	return unitQuote(kv[0] + "=" + kv[1])
}
