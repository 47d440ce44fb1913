package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fractal-lba/quantcore/internal/api"
	"github.com/fractal-lba/quantcore/internal/causal"
)

// causalCmd groups the causal reasoning commands
func causalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "causal",
		Short: "Discover causal structure and reason over it",
	}
	cmd.AddCommand(discoverCmd())
	cmd.AddCommand(interveneCmd())
	cmd.AddCommand(counterfactualCmd())
	cmd.AddCommand(rootCausesCmd())
	return cmd
}

// graphFile accepts a bare graph or the envelope printed by "causal discover".
type graphFile struct {
	Result *causal.Graph `json:"result"`
	causal.Graph
}

func loadGraph(path string) (*causal.Graph, error) {
	data, _, err := readInput(path)
	if err != nil {
		return nil, err
	}
	var f graphFile
	if err := decodeJSON(data, &f); err != nil {
		return nil, err
	}
	if f.Result != nil {
		return f.Result, nil
	}
	if len(f.Variables) == 0 {
		return nil, fmt.Errorf("%s: no variables in graph", path)
	}
	g := f.Graph
	return &g, nil
}

// loadSeries reads variable series from CSV (one column per variable) or a
// JSON object of name to values.
func loadSeries(path string) (map[string][]float64, error) {
	data, format, err := readInput(path)
	if err != nil {
		return nil, err
	}
	if format == "csv" {
		return variablesFromCSV(data)
	}
	var req api.DiscoverRequest
	if err := decodeJSON(data, &req); err == nil && len(req.Series) > 0 {
		return req.Series, nil
	}
	var series map[string][]float64
	if err := decodeJSON(data, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// graphSourceFlags binds the shared --graph / --input pair.
type graphSourceFlags struct {
	graph    string
	input    string
	maxLag   int
	alpha    float64
	noConfds bool
}

func (f *graphSourceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.graph, "graph", "g", "", "Graph JSON from an earlier discovery")
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Series to discover the graph from (CSV or JSON)")
	cmd.Flags().IntVar(&f.maxLag, "max-lag", 0, "Maximum lag tested during discovery")
	cmd.Flags().Float64Var(&f.alpha, "significance", 0, "Significance level for discovery")
	cmd.Flags().BoolVar(&f.noConfds, "no-confounders", false, "Skip confounder detection")
}

func (f *graphSourceFlags) options() causal.Options {
	opts := causal.Options{MaxLag: f.maxLag, SignificanceLevel: f.alpha}
	if f.noConfds {
		off := false
		opts.IncludeConfounders = &off
	}
	return opts
}

func (f *graphSourceFlags) source() (api.GraphSource, error) {
	switch {
	case f.graph != "" && f.input != "":
		return api.GraphSource{}, fmt.Errorf("--graph and --input are mutually exclusive")
	case f.graph != "":
		g, err := loadGraph(f.graph)
		if err != nil {
			return api.GraphSource{}, err
		}
		return api.GraphSource{Graph: g}, nil
	case f.input != "":
		series, err := loadSeries(f.input)
		if err != nil {
			return api.GraphSource{}, err
		}
		return api.GraphSource{Series: series, Discovery: f.options()}, nil
	default:
		return api.GraphSource{}, fmt.Errorf("one of --graph or --input is required")
	}
}

func discoverCmd() *cobra.Command {
	var flags graphSourceFlags
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover causal relationships between variable series",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := flags.input
			if input == "" {
				input = "-"
			}
			series, err := loadSeries(input)
			if err != nil {
				return err
			}

			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.svc.DiscoverCausalGraph(cmd.Context(), &api.DiscoverRequest{Series: series, Options: flags.options()})
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
	flags.bind(cmd)
	_ = cmd.Flags().MarkHidden("graph")
	return cmd
}

func interveneCmd() *cobra.Command {
	var (
		flags    graphSourceFlags
		variable string
		value    float64
	)
	cmd := &cobra.Command{
		Use:   "intervene",
		Short: "Propagate do(variable = value) through the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := flags.source()
			if err != nil {
				return err
			}

			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.svc.AnalyzeIntervention(cmd.Context(), &api.InterventionRequest{
				GraphSource: src,
				Variable:    variable,
				Value:       value,
			})
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&variable, "variable", "", "Variable to intervene on")
	cmd.Flags().Float64Var(&value, "value", 0, "Value to set")
	_ = cmd.MarkFlagRequired("variable")
	return cmd
}

// parseAssignment parses "name=value".
func parseAssignment(s string) (string, float64, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", 0, fmt.Errorf("expected name=value, got %q", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", name, err)
	}
	return name, v, nil
}

func counterfactualCmd() *cobra.Command {
	var (
		flags  graphSourceFlags
		sets   []string
		actual []string
	)
	cmd := &cobra.Command{
		Use:   "counterfactual",
		Short: "Compare actual values with an alternate scenario",
		Example: `  quantctl causal counterfactual -g graph.json --set price=12 --set ads=300
  quantctl causal counterfactual -i history.csv --set price=12 --actual price=10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := flags.source()
			if err != nil {
				return err
			}
			req := &api.CounterfactualRequest{GraphSource: src}
			for _, s := range sets {
				name, v, err := parseAssignment(s)
				if err != nil {
					return err
				}
				req.Changes = append(req.Changes, causal.Change{Variable: name, Value: v})
			}
			if len(actual) > 0 {
				req.Actual = make(map[string]float64, len(actual))
				for _, s := range actual {
					name, v, err := parseAssignment(s)
					if err != nil {
						return err
					}
					req.Actual[name] = v
				}
			}

			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.svc.AnalyzeCounterfactual(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Change name=value (repeatable, applied in order)")
	cmd.Flags().StringArrayVar(&actual, "actual", nil, "Observed name=value overriding the graph mean (repeatable)")
	return cmd
}

func rootCausesCmd() *cobra.Command {
	var (
		flags  graphSourceFlags
		target string
		top    int
	)
	cmd := &cobra.Command{
		Use:   "root-causes",
		Short: "Rank the upstream drivers of a target variable",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := flags.source()
			if err != nil {
				return err
			}

			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.svc.RankRootCauses(cmd.Context(), &api.RootCauseRequest{GraphSource: src, Target: target})
			if err != nil {
				return err
			}
			if top > 0 && len(res.Result.Causes) > top {
				res.Result.Causes = res.Result.Causes[:top]
			}
			return printResult(res)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&target, "target", "", "Target variable")
	cmd.Flags().IntVar(&top, "top", 0, "Show only the strongest causes")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}
