package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xtruel/roma-map-revamp/internal/services"
)

func newStatusCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of every collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withSession(cmd, func(ctx context.Context, s *session, out io.Writer) error {
				s.container.OpenAll(ctx)
				return o.writeStatuses(out, s.container.Statuses())
			})
		},
	}
}

func newSeedCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Mount every collection, writing the shipped defaults where the store holds none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withSession(cmd, func(ctx context.Context, s *session, out io.Writer) error {
				s.container.OpenAll(ctx)
				statuses := s.container.Statuses()
				if o.output != "table" {
					return o.writeStatuses(out, statuses)
				}
				for _, st := range statuses {
					fmt.Fprintf(out, "%s: %s (%d records)\n", st.Key, st.Seed, st.Count)
				}
				return nil
			})
		},
	}
}

func newListCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:       "list <collection>",
		Short:     "Print the records of a collection",
		Args:      cobra.ExactArgs(1),
		ValidArgs: collectionNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withSession(cmd, func(ctx context.Context, s *session, out io.Writer) error {
				records, rows, err := listRecords(ctx, s, args[0])
				if err != nil {
					return err
				}
				switch o.output {
				case "table":
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tSUMMARY")
					for _, row := range rows {
						fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
					}
					return tw.Flush()
				default:
					return o.encode(out, records)
				}
			})
		},
	}
}

func newExportCommand(o *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export <collection>",
		Short: "Write the stored envelope of a collection",
		Long:  "export writes the bytes stored under the collection key, versioned envelope included, so they can be restored with any key-value tool.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withSession(cmd, func(ctx context.Context, s *session, out io.Writer) error {
				coll, err := lookupCollection(s, args[0])
				if err != nil {
					return err
				}
				coll.Open(ctx)
				raw, ok, err := coll.Export()
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("collection %s has no stored value", args[0])
				}
				if file != "" {
					return os.WriteFile(file, raw, 0o600)
				}
				_, err = out.Write(append(raw, '\n'))
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "write to file instead of stdout")
	return cmd
}

func newResetCommand(o *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reset [collection]",
		Short: "Discard a stored collection and write the shipped defaults again",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withSession(cmd, func(ctx context.Context, s *session, out io.Writer) error {
				names := args
				if all {
					names = collectionNames()
				}
				for _, name := range names {
					coll, err := lookupCollection(s, name)
					if err != nil {
						return err
					}
					report, err := coll.Reset(ctx)
					if err != nil {
						return fmt.Errorf("reset %s: %w", name, err)
					}
					fmt.Fprintf(out, "%s: %s (%d records)\n", report.Key, report.Outcome, report.Count)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reset every collection")
	return cmd
}

func collectionNames() []string {
	names := []string{
		services.CollectionMatches,
		services.CollectionPackages,
		services.CollectionArticles,
		services.CollectionPlaces,
		"sponsors",
		services.CollectionOrders,
	}
	sort.Strings(names)
	return names
}

func lookupCollection(s *session, name string) (services.Synced, error) {
	coll, ok := s.container.Collections()[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q (want one of %s)", name, strings.Join(collectionNames(), ", "))
	}
	return coll, nil
}

// listRecords returns the records of a collection and an id/summary row for each one.
func listRecords(ctx context.Context, s *session, name string) (any, [][2]string, error) {
	svc := s.container.Services
	var rows [][2]string
	switch strings.ToLower(strings.TrimSpace(name)) {
	case services.CollectionMatches:
		items := svc.Matches.List(ctx)
		for _, m := range items {
			rows = append(rows, [2]string{m.ID, fmt.Sprintf("%s %s  %s - %s", m.Date, m.Time, m.HomeTeam, m.AwayTeam)})
		}
		return items, rows, nil
	case services.CollectionPackages:
		items := svc.Packages.List(ctx)
		for _, p := range items {
			rows = append(rows, [2]string{p.ID, fmt.Sprintf("%s  %s  %s  active=%t", p.Name, p.Type, strconv.FormatFloat(p.Price, 'f', 2, 64), p.Active)})
		}
		return items, rows, nil
	case services.CollectionArticles:
		items := svc.Articles.List(ctx)
		for _, a := range items {
			rows = append(rows, [2]string{a.ID, fmt.Sprintf("%s  %s  [%s]", a.Date, a.Title, a.Status)})
		}
		return items, rows, nil
	case services.CollectionPlaces:
		items := svc.Places.List(ctx)
		for _, p := range items {
			rows = append(rows, [2]string{p.ID, fmt.Sprintf("%s  (%s)", p.Name, p.Category)})
		}
		return items, rows, nil
	case "sponsors":
		items := svc.Sponsors.Restaurants(ctx)
		for _, r := range items {
			rows = append(rows, [2]string{r.ID, fmt.Sprintf("%s  sponsor=%t", r.Name, r.IsSponsor)})
		}
		return items, rows, nil
	case services.CollectionOrders:
		items := svc.Orders.List(ctx, services.OrderFilter{})
		for _, ord := range items {
			rows = append(rows, [2]string{ord.ID, fmt.Sprintf("%s  %s  %s  %s", ord.Number, ord.Date, ord.Customer.Email, ord.Status)})
		}
		return items, rows, nil
	}
	_, err := lookupCollection(s, name)
	return nil, nil, err
}

func (o *options) writeStatuses(out io.Writer, statuses []services.CollectionStatus) error {
	if o.output != "table" {
		return o.encode(out, statuses)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKEY\tSTATE\tRECORDS\tSEED\tERROR")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", st.Name, st.Key, st.State, st.Count, st.Seed, st.Error)
	}
	return tw.Flush()
}

// encode writes v as indented JSON or as YAML. YAML goes through JSON first so field names match
// the stored records.
func (o *options) encode(out io.Writer, v any) error {
	switch o.output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output %q", o.output)
	}
}
