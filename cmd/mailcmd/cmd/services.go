package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sekia-ai/mailcmd/internal/actions"
	"github.com/sekia-ai/mailcmd/internal/registry"
	"github.com/sekia-ai/mailcmd/internal/router"
)

func newServicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List registered actions and check them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cfg.Services, logger)
			if err != nil {
				return err
			}

			if reg.Len() == 0 {
				fmt.Println("No services registered.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACTION\tKIND\tTARGET\tPARAMETERS")
			for _, svc := range reg.Services() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", svc.Action, svc.Kind(), target(svc.Spec), parameters(svc))
			}
			w.Flush()

			rt := router.New(cfg.RouterConfig(), actions.Builtin(logger), logger)
			return rt.Verify(reg)
		},
	}
}

func target(spec registry.Spec) string {
	switch s := spec.(type) {
	case registry.FunctionSpec:
		return s.Name
	case registry.HTTPSpec:
		return s.Method + " " + s.URL
	case registry.ShellSpec:
		return s.Command
	case registry.DatabaseSpec:
		return s.Query
	case registry.MQTTSpec:
		return fmt.Sprintf("%s (qos %d)", s.Topic, s.QoS)
	case registry.NATSSpec:
		return s.Subject
	case registry.KafkaSpec:
		return s.Topic
	default:
		return "-"
	}
}

// parameters renders the schema with required names marked by *.
func parameters(svc registry.Service) string {
	if len(svc.Parameters) == 0 {
		return "-"
	}
	names := make([]string, 0, len(svc.Parameters))
	for _, p := range svc.Parameters {
		if p.Required {
			names = append(names, p.Name+"*")
		} else {
			names = append(names, p.Name)
		}
	}
	return strings.Join(names, ", ")
}
