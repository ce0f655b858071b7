// Package flagx holds helpers for components that parse their own subset of
// the command line.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// name strips the leading dashes so "-q" and "--q" refer to the same flag.
func name(arg string) string {
	return strings.TrimLeft(arg, "-")
}

// FilterArgs returns the arguments of args that belong to one of the allowed
// flags, together with their values. Both "-q value" and "--q=value" forms are
// recognized, and single and double dash spellings are treated as equal.
//
// The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[name(f)] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		if before, _, ok := strings.Cut(arg, "="); ok {
			if _, ok := allowed[name(before)]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[name(arg)]; !ok {
			continue
		}
		filtered = append(filtered, arg)

		// a following token that is not a flag is the value
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// JsonConfigFlags returns the config file path given with -c or -config, or
// an empty string when neither is present.
func JsonConfigFlags() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "path to config file")
	fs.StringVar(&config, "c", "", "path to config file (short)")
	_ = fs.Parse(args)

	return config
}
