package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	batchapp "claim-batch/internal/batch/application"
	eventingpg "claim-batch/internal/eventing/infrastructure/postgres"
)

type runOptions struct {
	year        int
	month       int
	location    int64
	auditUserID int64
}

type runOutput struct {
	RunID             int64   `json:"run_id"`
	Products          int     `json:"products"`
	PlansProcessed    int     `json:"plans_processed"`
	ClaimsValuated    []int64 `json:"claims_valuated"`
	CapitationCreated int     `json:"capitation_created"`
}

// submitBatch runs command through the legacy submit contract and prints
// the run summary as JSON.
func submitBatch(ctx context.Context, submitter *batchapp.SubmitService, command batchapp.RunCommand, out io.Writer) error {
	summary, errs := submitter.SubmitCommand(ctx, command)
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	result := runOutput{
		Products:          summary.Products,
		PlansProcessed:    summary.PlansProcessed,
		ClaimsValuated:    summary.ClaimsValuated,
		CapitationCreated: summary.CapitationCreated,
	}
	if summary.Run != nil {
		result.RunID = summary.Run.ID()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func newRunCommand(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the batch for one month",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			service, err := a.batchService(db, eventingpg.NewOutboxStore(db))
			if err != nil {
				return err
			}
			command := batchapp.RunCommand{
				AuditUserID: opts.auditUserID,
				Month:       opts.month,
				Year:        opts.year,
			}
			if cmd.Flags().Changed("location") {
				location := opts.location
				command.LocationID = &location
			}
			return submitBatch(ctx, batchapp.NewSubmitService(service), command, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.year, "year", 0, "batch year")
	flags.IntVar(&opts.month, "month", 0, "batch month (1-12)")
	flags.Int64Var(&opts.location, "location", 0, "region or district id; omit for a national run")
	flags.Int64Var(&opts.auditUserID, "audit-user", 0, "audit user id recorded on the run")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}
