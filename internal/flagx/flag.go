// Package flagx helps several configuration layers share os.Args: each layer
// picks out only the flags it owns and parses them in its own FlagSet.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// FilterArgs keeps the flags listed in allowedFlags together with their
// values and drops everything else. Both "-f value" and "-f=value" forms are
// understood; a token starting with "-" is never consumed as a value.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// JsonConfigFlags returns the JSON config path given with -c or -config,
// or "" when neither is present.
func JsonConfigFlags() string {
	return stringFlag("json", "config", "c", "path to JSON config file")
}

// EnvFileFlags returns the dotenv file path given with -env-file,
// or "" when it is absent.
func EnvFileFlags() string {
	return stringFlag("env", "env-file", "", "path to .env file")
}

func stringFlag(set, long, short, usage string) string {
	var value string

	names := []string{"-" + long}
	fs := flag.NewFlagSet(set, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&value, long, "", usage)
	if short != "" {
		names = append(names, "-"+short)
		fs.StringVar(&value, short, "", usage)
	}

	_ = fs.Parse(FilterArgs(os.Args[1:], names))
	return value
}
