// Command mvrec moves records between files, records directories and
// database tables.
//
//	mvrec move ./people.csv db://warehouse/public.people --existing-table truncate_and_overwrite
//	mvrec move db://warehouse/public.people s3://bucket/exports/people/
//	mvrec sniff s3://bucket/incoming/people.csv.gz
//	mvrec schema db://warehouse/public.people
//
// Databases and scratch locations come from the YAML file named by
// --config and from MVREC_* environment variables. Exit status is 0 on
// success and 1 on any failure.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bluelabsio/records-mover-sub001/internal/config"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"

	_ "github.com/bluelabsio/records-mover-sub001/internal/db/bigquery"
	_ "github.com/bluelabsio/records-mover-sub001/internal/db/mssql"
	_ "github.com/bluelabsio/records-mover-sub001/internal/db/mysql"
	_ "github.com/bluelabsio/records-mover-sub001/internal/db/postgres"
	_ "github.com/bluelabsio/records-mover-sub001/internal/db/redshift"
	_ "github.com/bluelabsio/records-mover-sub001/internal/db/sqlite"
	_ "github.com/bluelabsio/records-mover-sub001/internal/db/vertica"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	loc     *location.Resolver
	out     io.Writer
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newRootCmd(out io.Writer) (*cobra.Command, *app) {
	a := &app{v: config.New(), out: out}
	var cfgPath string

	root := &cobra.Command{
		Use:   "mvrec",
		Short: "Move records between files, directories and databases",
		Long: `mvrec moves tabular records between data files, records directories
and database tables, negotiating a bulk format both sides understand and
transcoding only when none exists.

Endpoints:
  db://<database>/<schema>.<table>   table in a configured database
  <url-or-path>/                     records directory (file://, s3://, gs://)
  <url-or-path>                      single data file (sources only)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			if err := logging.Initialize(cfg.Log.JSON, cfg.Log.Verbose); err != nil {
				return errors.Wrap(err, "initialize logger")
			}
			a.loc = location.NewResolver(logging.Logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
			logging.Sync()
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "YAML configuration file")
	pf.Bool("json-logs", false, "Log JSON lines instead of console output")
	pf.BoolP("verbose", "v", false, "Debug logging")
	_ = a.v.BindPFlag("log.json", pf.Lookup("json-logs"))
	_ = a.v.BindPFlag("log.verbose", pf.Lookup("verbose"))

	root.AddCommand(newMoveCmd(a), newSniffCmd(a), newSchemaCmd(a))
	return root, a
}

func main() {
	root, a := newRootCmd(os.Stdout)
	if err := root.Execute(); err != nil {
		a.close()
		logging.Logger.Errorw("mvrec failed", "error", err)
		logging.Sync()
		fmt.Fprintf(os.Stderr, "mvrec: %v\n", err)
		for _, h := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "hint: %s\n", h)
		}
		os.Exit(1)
	}
}
