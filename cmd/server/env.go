package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const envPrefix = "RELAY_"

// setFlagsFromEnvVars reads and updates flag values from environment variables with prefix RELAY_.
// A value that does not parse leaves the flag at its default and is reported in the returned error.
func setFlagsFromEnvVars(cmd *cobra.Command) error {
	var errs error

	flags := cmd.PersistentFlags()
	flags.VisitAll(func(f *pflag.Flag) {
		newEnvVar := flagNameToEnvVar(f.Name, envPrefix)
		value, present := os.LookupEnv(newEnvVar)
		if !present {
			return
		}

		if err := flags.Set(f.Name, value); err != nil {
			// pflag stores the zero value before reporting a parse error
			if restoreErr := flags.Set(f.Name, f.DefValue); restoreErr != nil {
				log.Errorf("unable to restore default of flag %s: %v", f.Name, restoreErr)
			}
			log.Warnf("unable to configure flag %s using variable %s, err: %v", f.Name, newEnvVar, err)
			errs = multierror.Append(errs, fmt.Errorf("invalid %s: %w", newEnvVar, err))
		}
	})

	return errs
}

// flagNameToEnvVar converts flag name to environment var name adding a prefix,
// replacing dashes and making all uppercase (e.g. log-level is converted to RELAY_LOG_LEVEL)
func flagNameToEnvVar(cmdFlag string, prefix string) string {
	parsed := strings.ReplaceAll(cmdFlag, "-", "_")
	upper := strings.ToUpper(parsed)
	return prefix + upper
}
