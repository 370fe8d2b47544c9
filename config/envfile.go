package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// EnvLine is a single KEY=value assignment from a dotenv file.
type EnvLine struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// EnvLines is a parsed dotenv file.
type EnvLines []EnvLine

// Lookup returns the last value assigned to key. It satisfies LookupFunc.
func (e EnvLines) Lookup(key string) (string, bool) {
	for i := len(e) - 1; i >= 0; i-- {
		if e[i].Key == key {
			return e[i].Val, true
		}
	}
	return "", false
}

// ParseEnvFile parses a dotenv file. A missing file yields no lines.
func ParseEnvFile(filename string) (EnvLines, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return EnvLines{}, nil
		}
		return nil, errors.Wrapf(err, "config: read %s", filename)
	}
	return ParseEnvBuffer(buf), nil
}

// ParseEnvBuffer parses dotenv content. Blank lines and lines starting with
// # are skipped, an optional "export " is dropped, values may be single or
// double quoted, and ${NAME} or ${NAME:-default} refer to earlier lines or,
// with an env: prefix, to the process environment.
func ParseEnvBuffer(buf []byte) EnvLines {
	lines := EnvLines{}
	vars := make(map[string]string)
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		val = strings.TrimSpace(val)
		single := len(val) >= 2 && val[0] == '\'' && val[len(val)-1] == '\''
		val = dequote(val)
		if !single {
			val = interpolate(val, vars)
		}
		vars[key] = val
		lines = append(lines, EnvLine{Key: key, Val: val})
	}
	return lines
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// interpolate expands ${...} references. Unresolvable references without a
// default are kept verbatim.
func interpolate(input string, vars map[string]string) string {
	if !strings.Contains(input, "${") {
		return input
	}
	var out strings.Builder
	rest := input
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			out.WriteString(rest)
			return out.String()
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			out.WriteString(rest)
			return out.String()
		}
		end += start
		out.WriteString(rest[:start])
		ref := rest[start : end+1]
		name, def, _ := strings.Cut(ref[2:len(ref)-1], ":-")

		var val string
		if envKey, isEnv := strings.CutPrefix(name, "env:"); isEnv {
			val = os.Getenv(envKey)
		} else {
			val = vars[name]
		}
		switch {
		case name == "":
			out.WriteString(ref)
		case val != "":
			out.WriteString(val)
		case def != "":
			out.WriteString(def)
		default:
			out.WriteString(ref)
		}
		rest = rest[end+1:]
	}
}
