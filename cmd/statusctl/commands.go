package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"squares/apiclient"
	"squares/config"
	"squares/customer"
	"squares/listing"
	"squares/logging"
	"squares/notify"
	"squares/workflow"
)

// ErrAmbiguousCustomer signals a customer query matching more than one account.
var ErrAmbiguousCustomer = errors.New("customer query matches more than one customer")

type app struct {
	out        io.Writer
	configPath string
	apiURL     string
	token      string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
	client *apiclient.Client
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "statusctl",
		Short:         "Change property statuses through the marketplace API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "squares.toml", "path to TOML config")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "API base URL (overrides config)")
	root.PersistentFlags().StringVar(&a.token, "token", "", "bearer token (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(a.actionCmd(), a.customersCmd(), a.transitionCmd(), a.historyCmd())
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath, config.Default())
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.Client.BaseURL = a.apiURL
	}
	if a.token != "" {
		cfg.Client.Token = a.token
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	if a.logger, err = logging.New(cfg.Logging); err != nil {
		return err
	}
	client, err := apiclient.New(cfg.Client.BaseURL, cfg.Client.Token)
	if err != nil {
		return err
	}
	if cfg.Client.Timeout.Duration > 0 {
		client = client.WithTimeout(cfg.Client.Timeout.Duration)
	}
	a.client = client.WithLogger(a.logger.Named("api"))
	return nil
}

func (a *app) newPicker() (*customer.Picker, error) {
	fields, err := a.cfg.Picker.Fields()
	if err != nil {
		return nil, err
	}
	return customer.NewPicker(a.client, fields).WithFilter(a.customerFilter()), nil
}

func (a *app) customerFilter() customer.Filter {
	return customer.Filter{Status: a.cfg.Picker.CustomerStatus, Limit: a.cfg.Picker.Limit}
}

func (a *app) actionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "action <property-id>",
		Short: "Show the status change offered for a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.client.GetProperty(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s  %s  [%s, %s]\n", p.ID, p.Title, listing.LabelFor(p.Status), p.ListingType.Normalize())

			action, err := a.client.GetAction(cmd.Context(), p.ID)
			if err != nil {
				return err
			}
			if !action.Available {
				fmt.Fprintln(a.out, "no action available")
				return nil
			}
			state := "enabled"
			if !action.Enabled {
				state = "disabled until approved"
			}
			customerNote := "no customer"
			if action.RequiresCustomer {
				customerNote = "customer required"
			}
			fmt.Fprintf(a.out, "%s (%s, %s)\n", action.Label, state, customerNote)
			return nil
		},
	}
}

func (a *app) customersCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Search customer accounts the way the dialog does",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			picker, err := a.newPicker()
			if err != nil {
				return err
			}
			if err := picker.Load(cmd.Context()); err != nil {
				return err
			}
			matches := picker.Search(query)
			if len(matches) == 0 {
				fmt.Fprintln(a.out, "No customers found")
				return nil
			}
			printCustomers(a.out, matches)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "name, email or phone fragment")
	return cmd
}

func printCustomers(out io.Writer, list []customer.Customer) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.DisplayName(), c.Email, c.Phone())
	}
	_ = tw.Flush()
}

type transitionOptions struct {
	customerID    string
	customerQuery string
	reason        string
}

func (a *app) transitionCmd() *cobra.Command {
	var opts transitionOptions
	cmd := &cobra.Command{
		Use:   "transition <property-id>",
		Short: "Apply the offered status change to a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTransition(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.customerID, "customer-id", "", "customer to record on a sale, rental or lease")
	cmd.Flags().StringVar(&opts.customerQuery, "customer-query", "", "pick the single customer matching this text")
	cmd.Flags().StringVar(&opts.reason, "reason", "", "optional reason stored with the change")
	cmd.MarkFlagsMutuallyExclusive("customer-id", "customer-query")
	return cmd
}

func (a *app) runTransition(ctx context.Context, propertyID string, opts transitionOptions) error {
	p, err := a.client.GetProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	fields, err := a.cfg.Picker.Fields()
	if err != nil {
		return err
	}

	executor := workflow.NewExecutor(a.client).WithLogger(a.logger)
	dialog := workflow.NewDialog(executor, a.client).
		WithNotifier(notify.NewWriterSink(a.out)).
		WithMatchFields(fields).
		WithCustomerFilter(a.customerFilter()).
		WithLogger(a.logger)

	dialog.Open(p)
	defer dialog.Close()

	if err := dialog.ConfirmAction(ctx); err != nil {
		return err
	}
	target, _ := dialog.Target()

	if target.RequiresCustomer {
		if err := selectCustomer(a.out, dialog, opts); err != nil {
			return err
		}
	}
	if opts.reason != "" {
		if err := dialog.SetReason(opts.reason); err != nil {
			return err
		}
	}
	return dialog.Submit(ctx)
}

// selectCustomer applies --customer-id or --customer-query to the dialog.
// Neither flag leaves the selection empty; Submit then rejects a transition
// that needs a customer.
func selectCustomer(out io.Writer, dialog *workflow.Dialog, opts transitionOptions) error {
	switch {
	case opts.customerID != "":
		_, err := dialog.SelectCustomer(opts.customerID)
		return err
	case opts.customerQuery != "":
		matches := dialog.SearchCustomers(opts.customerQuery)
		switch len(matches) {
		case 0:
			return fmt.Errorf("%w: %q", customer.ErrUnknownCustomer, opts.customerQuery)
		case 1:
			_, err := dialog.SelectCustomer(matches[0].ID)
			return err
		default:
			printCustomers(out, matches)
			return fmt.Errorf("%w: %q", ErrAmbiguousCustomer, opts.customerQuery)
		}
	}
	return nil
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <property-id>",
		Short: "List the status changes recorded for a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.client.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "no status changes recorded")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tFROM\tTO\tCUSTOMER\tREASON")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"),
					listing.LabelFor(listing.Status(e.Previous)),
					listing.LabelFor(listing.Status(e.Next)),
					orDash(e.CustomerID), orDash(e.Reason))
			}
			return tw.Flush()
		},
	}
}

func orDash(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "-"
	}
	return *s
}
